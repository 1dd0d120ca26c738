package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/hazard-advisory-service/internal/domain"
)

// Mode selects whether a session evaluates a single point or a route.
type Mode string

const (
	ModePoint Mode = "point"
	ModeRoute Mode = "route"
)

// ParseMode converts a configuration or request value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePoint:
		return ModePoint, nil
	case ModeRoute:
		return ModeRoute, nil
	default:
		return "", fmt.Errorf("unknown mode %q: want point or route", s)
	}
}

// State is the orchestrator's position in the resolve, evaluate, advise cycle.
type State string

const (
	StateIdle         State = "idle"
	StateResolving    State = "resolving"
	StateRoutePending State = "route_pending"
	StateEvaluating   State = "evaluating"
	StateClear        State = "clear"
	StateAdvising     State = "advising"
)

// IsLoading reports whether a cycle is in flight in this state.
func (s State) IsLoading() bool {
	return s == StateResolving || s == StateEvaluating
}

var (
	// ErrCycleSuperseded is returned to the caller of a cycle whose result was
	// discarded because Reset or a newer cycle started first.
	ErrCycleSuperseded = errors.New("cycle superseded")

	// ErrInvalidState means the operation is not allowed in the current state or mode.
	ErrInvalidState = errors.New("operation not allowed in current state")

	// ErrUnknownRoute means the route id is not among the current candidates.
	ErrUnknownRoute = errors.New("unknown route")
)

// Snapshot is a read-only copy of the orchestrator state for rendering.
type Snapshot struct {
	SessionID       string           `json:"session_id"`
	Mode            Mode             `json:"mode"`
	State           State            `json:"state"`
	Generation      uint64           `json:"generation"`
	Location        *domain.Location `json:"location,omitempty"`
	Destination     *domain.Location `json:"destination,omitempty"`
	Routes          []domain.Route   `json:"routes,omitempty"`
	SelectedRouteID string           `json:"selected_route_id,omitempty"`
	Advisory        *domain.Advisory `json:"advisory,omitempty"`
	HazardPoint     *domain.Point    `json:"hazard_point,omitempty"`
	IsLoading       bool             `json:"is_loading"`
	HasEvaluated    bool             `json:"has_evaluated"`
	Error           string           `json:"error,omitempty"`

	// Err is the last recorded failure, for callers that classify it.
	Err error `json:"-"`
}
