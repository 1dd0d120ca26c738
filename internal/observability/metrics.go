package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hazard_advisor"

// Metrics holds the Prometheus counters, histograms, and gauges for the advisory pipeline.
type Metrics struct {
	// Feed metrics.
	HazardFetches       *prometheus.CounterVec // labels: outcome={success,error}
	HazardFetchDuration prometheus.Histogram
	RouteRequests       *prometheus.CounterVec // labels: outcome={success,not_found}
	GeocodeRequests     *prometheus.CounterVec // labels: outcome={success,not_found,error}
	GeocodeCache        *prometheus.CounterVec // labels: result={hit,miss}

	// Decision metrics.
	Evaluations        *prometheus.CounterVec // labels: mode={point,route}, outcome={clear,advisory}
	AdvisoriesIssued   *prometheus.CounterVec // labels: hazard_type
	RoutePointsScanned prometheus.Counter
	StaleResults       prometheus.Counter
	ActiveSessions     prometheus.Gauge
	SessionsEvicted    prometheus.Counter

	// Decision sink metrics.
	DecisionsPublished prometheus.Counter
	PublishErrors      prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.HazardFetches,
		m.HazardFetchDuration,
		m.RouteRequests,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.Evaluations,
		m.AdvisoriesIssued,
		m.RoutePointsScanned,
		m.StaleResults,
		m.ActiveSessions,
		m.SessionsEvicted,
		m.DecisionsPublished,
		m.PublishErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		HazardFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hazard_fetches_total",
			Help:      "Hazard feed requests by outcome. Errors degrade to zero hazards.",
		}, []string{"outcome"}),
		HazardFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hazard_fetch_duration_seconds",
			Help:      "Hazard feed request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		RouteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_requests_total",
			Help:      "Routing feed requests by outcome.",
		}, []string{"outcome"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Postal geocoding requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Postal geocoding cache lookups by result.",
		}, []string{"result"}),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Committed evaluations by mode and outcome.",
		}, []string{"mode", "outcome"}),
		AdvisoriesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisories_issued_total",
			Help:      "Advisories issued by hazard type.",
		}, []string{"hazard_type"}),
		RoutePointsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_points_scanned_total",
			Help:      "Route sample points probed for hazards.",
		}),
		StaleResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_results_discarded_total",
			Help:      "Results dropped because their cycle was reset or superseded.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Orchestrator sessions currently held in memory.",
		}),
		SessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Sessions dropped after sitting idle past the TTL.",
		}),
		DecisionsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_published_total",
			Help:      "Decision events written to the sink.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_publish_errors_total",
			Help:      "Decision events that failed to publish.",
		}),
	}
}
