package domain

import "time"

// Outcome is the result class of one committed evaluation.
type Outcome string

const (
	OutcomeClear    Outcome = "clear"
	OutcomeAdvisory Outcome = "advisory"
)

// DecisionEvent records a committed evaluation for downstream consumers.
type DecisionEvent struct {
	SessionID   string    `json:"session_id"`
	Generation  uint64    `json:"generation"`
	Mode        string    `json:"mode"`
	Outcome     Outcome   `json:"outcome"`
	Location    Location  `json:"location"`
	RouteID     string    `json:"route_id,omitempty"`
	SamplePoint *Point    `json:"sample_point,omitempty"`
	Advisory    *Advisory `json:"advisory,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}
