package domain

// DefaultSampleCount is the number of probe points taken along a route when
// the caller does not choose one.
const DefaultSampleCount = 10

// Route is one candidate path from the routing feed. Geometry order is the
// direction of travel and always holds at least two points.
type Route struct {
	ID              string  `json:"id"`
	Geometry        []Point `json:"geometry"`
	DistanceMeters  float64 `json:"distance_meters"`
	DurationSeconds float64 `json:"duration_seconds"`
	CostWeight      float64 `json:"cost_weight"`
}

// SampleRoute picks the points along a route to probe for hazards.
// Every stride-th vertex is taken from index 0, with stride = max(1, n/targetCount),
// and the final vertex is appended when the walk does not land on it.
// Spacing of the last segment may be uneven; the endpoint is always covered.
func SampleRoute(route Route, targetCount int) []Point {
	n := len(route.Geometry)
	if n == 0 {
		return nil
	}
	if targetCount <= 0 {
		targetCount = DefaultSampleCount
	}

	stride := max(1, n/targetCount)

	samples := make([]Point, 0, n/stride+1)
	for i := 0; i < n; i += stride {
		samples = append(samples, route.Geometry[i])
	}

	last := route.Geometry[n-1]
	if samples[len(samples)-1] != last {
		samples = append(samples, last)
	}
	return samples
}
