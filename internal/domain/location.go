package domain

import (
	"encoding/json"
	"fmt"
)

// Location is a resolved point the pipeline evaluates.
// IsSynthetic marks locations taken from the demo scenario table rather than
// from the device or a live geocoding lookup.
type Location struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	PostalCode  string  `json:"postal_code,omitempty"`
	IsSynthetic bool    `json:"is_synthetic"`
}

// NewLocation validates WGS-84 bounds and builds a Location.
func NewLocation(lat, lon float64, postalCode string, synthetic bool) (Location, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return Location{}, fmt.Errorf("%w: lat=%f lon=%f", ErrCoordinatesOutOfBounds, lat, lon)
	}
	return Location{
		Latitude:    lat,
		Longitude:   lon,
		PostalCode:  postalCode,
		IsSynthetic: synthetic,
	}, nil
}

// Point is a single geometry vertex. It is serialized as [lon, lat] to match
// GeoJSON coordinate order.
type Point struct {
	Lon float64
	Lat float64
}

// MarshalJSON encodes the point as a GeoJSON position.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lon, p.Lat})
}

// UnmarshalJSON decodes a GeoJSON position. Extra elements (altitude) are ignored.
func (p *Point) UnmarshalJSON(data []byte) error {
	var coords []float64
	if err := json.Unmarshal(data, &coords); err != nil {
		return fmt.Errorf("decode point: %w", err)
	}
	if len(coords) < 2 {
		return fmt.Errorf("decode point: want at least 2 coordinates, got %d", len(coords))
	}
	p.Lon = coords[0]
	p.Lat = coords[1]
	return nil
}
