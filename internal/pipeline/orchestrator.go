package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/couchcryptid/hazard-advisory-service/internal/domain"
	"github.com/couchcryptid/hazard-advisory-service/internal/observability"
)

// LocationResolver turns a device fix or a location code into a Location.
type LocationResolver interface {
	ResolveFromDevice(ctx context.Context) (domain.Location, error)
	ResolveFromCode(ctx context.Context, code string) (domain.Location, error)
	Clear()
}

// HazardSource returns the hazards active at a point. It never fails: feed
// errors yield an empty slice.
type HazardSource interface {
	FetchHazards(ctx context.Context, lat, lon float64) []domain.Hazard
}

// RouteSource returns candidate routes between two locations.
type RouteSource interface {
	FetchRoutes(ctx context.Context, origin, destination domain.Location) ([]domain.Route, error)
}

// AdviceGenerator turns the triggering hazard into an advisory.
type AdviceGenerator interface {
	Generate(ctx context.Context, h domain.Hazard) (domain.Advisory, error)
}

// DecisionPublisher receives every committed evaluation.
type DecisionPublisher interface {
	Publish(ctx context.Context, event domain.DecisionEvent) error
}

// Stages bundles the collaborators of an Orchestrator. Publisher is optional.
type Stages struct {
	Resolver  LocationResolver
	Hazards   HazardSource
	Routes    RouteSource
	Advisor   AdviceGenerator
	Publisher DecisionPublisher
}

// Options tune one Orchestrator.
type Options struct {
	SessionID   string
	SampleCount int
}

// Orchestrator drives one session through resolve, evaluate and advise.
// All state lives behind mu; feed calls run outside it. Every cycle captures
// the generation at its start and commits only if it is still current.
type Orchestrator struct {
	stages      Stages
	mode        Mode
	sessionID   string
	sampleCount int
	logger      *slog.Logger
	metrics     *observability.Metrics

	mu           sync.Mutex
	state        State
	generation   uint64
	location     *domain.Location
	destination  *domain.Location
	routes       []domain.Route
	selectedID   string
	advisory     *domain.Advisory
	hazardPoint  *domain.Point
	hasEvaluated bool
	lastErr      error
}

// New creates an Orchestrator in the Idle state.
func New(stages Stages, mode Mode, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	sampleCount := opts.SampleCount
	if sampleCount <= 0 {
		sampleCount = domain.DefaultSampleCount
	}
	return &Orchestrator{
		stages:      stages,
		mode:        mode,
		sessionID:   opts.SessionID,
		sampleCount: sampleCount,
		logger:      logger.With("session_id", opts.SessionID, "mode", string(mode)),
		metrics:     metrics,
		state:       StateIdle,
	}
}

// Mode returns the session mode.
func (o *Orchestrator) Mode() Mode {
	return o.mode
}

// ResolveDeviceLocation resolves the device position. In point mode the new
// location is evaluated in the same cycle.
func (o *Orchestrator) ResolveDeviceLocation(ctx context.Context) (Snapshot, error) {
	return o.resolve(ctx, func(ctx context.Context) (domain.Location, error) {
		return o.stages.Resolver.ResolveFromDevice(ctx)
	})
}

// ResolveLocationByCode resolves a demo or postal code. In point mode the new
// location is evaluated in the same cycle.
func (o *Orchestrator) ResolveLocationByCode(ctx context.Context, code string) (Snapshot, error) {
	return o.resolve(ctx, func(ctx context.Context) (domain.Location, error) {
		return o.stages.Resolver.ResolveFromCode(ctx, code)
	})
}

// EvaluateSinglePoint re-checks the current location for active hazards.
func (o *Orchestrator) EvaluateSinglePoint(ctx context.Context) (Snapshot, error) {
	if o.mode != ModePoint {
		return o.Snapshot(), fmt.Errorf("%w: single-point evaluation in %s mode", ErrInvalidState, o.mode)
	}

	o.mu.Lock()
	if o.location == nil {
		o.mu.Unlock()
		return o.Snapshot(), fmt.Errorf("%w: no location resolved", ErrInvalidState)
	}
	loc := *o.location
	gen := o.startCycleLocked(StateEvaluating)
	o.mu.Unlock()

	err := o.evaluatePoint(ctx, gen, loc)
	return o.Snapshot(), err
}

// Reset returns to Idle, discards all session data and invalidates any cycle
// in flight. Resetting an already idle, empty session does nothing.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	if o.isPristineLocked() {
		o.mu.Unlock()
		return
	}
	o.generation++
	o.state = StateIdle
	o.location = nil
	o.destination = nil
	o.routes = nil
	o.selectedID = ""
	o.clearResultLocked()
	o.lastErr = nil
	gen := o.generation
	o.mu.Unlock()

	o.stages.Resolver.Clear()
	o.logger.Debug("session reset", "generation", gen)
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Snapshot{
		SessionID:       o.sessionID,
		Mode:            o.mode,
		State:           o.state,
		Generation:      o.generation,
		SelectedRouteID: o.selectedID,
		IsLoading:       o.state.IsLoading(),
		HasEvaluated:    o.hasEvaluated,
		Err:             o.lastErr,
	}
	if o.location != nil {
		loc := *o.location
		s.Location = &loc
	}
	if o.destination != nil {
		dst := *o.destination
		s.Destination = &dst
	}
	if o.routes != nil {
		s.Routes = append([]domain.Route(nil), o.routes...)
	}
	if o.advisory != nil {
		adv := *o.advisory
		s.Advisory = &adv
	}
	if o.hazardPoint != nil {
		p := *o.hazardPoint
		s.HazardPoint = &p
	}
	if o.lastErr != nil {
		s.Error = o.lastErr.Error()
	}
	return s
}

func (o *Orchestrator) resolve(ctx context.Context, resolveFn func(context.Context) (domain.Location, error)) (Snapshot, error) {
	o.mu.Lock()
	gen := o.startCycleLocked(StateResolving)
	if o.mode == ModeRoute {
		o.destination = nil
		o.routes = nil
		o.selectedID = ""
	}
	o.mu.Unlock()

	loc, err := resolveFn(ctx)

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return o.Snapshot(), o.discardStale(gen)
	}
	if err != nil {
		o.failLocked(StateIdle, err)
		o.mu.Unlock()
		o.logger.Info("location resolution failed", "error", err)
		return o.Snapshot(), err
	}
	o.location = &loc
	if o.mode == ModeRoute {
		o.state = StateIdle
		o.mu.Unlock()
		return o.Snapshot(), nil
	}
	o.state = StateEvaluating
	o.mu.Unlock()

	err = o.evaluatePoint(ctx, gen, loc)
	return o.Snapshot(), err
}

// evaluatePoint checks one location and commits Clear or Advising.
func (o *Orchestrator) evaluatePoint(ctx context.Context, gen uint64, loc domain.Location) error {
	hazards := o.stages.Hazards.FetchHazards(ctx, loc.Latitude, loc.Longitude)
	if err := ctx.Err(); err != nil {
		return o.abort(gen, StateIdle, err)
	}

	result := domain.EvaluateTriggers(hazards)
	if !result.Triggered {
		return o.commit(ctx, gen, nil, nil)
	}

	adv, err := o.stages.Advisor.Generate(ctx, result.ActiveHazards[0])
	if err != nil {
		return o.abort(gen, StateIdle, fmt.Errorf("generate advice: %w", err))
	}
	adv = domain.EnrichForDemo(adv, loc)
	return o.commit(ctx, gen, &adv, nil)
}

// commit records an evaluation outcome if gen is still current and hands the
// decision to the publisher.
func (o *Orchestrator) commit(ctx context.Context, gen uint64, adv *domain.Advisory, hazardPoint *domain.Point) error {
	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return o.discardStale(gen)
	}

	now := domain.Now()
	outcome := domain.OutcomeClear
	o.state = StateClear
	if adv != nil {
		outcome = domain.OutcomeAdvisory
		o.state = StateAdvising
		adv.IssuedAt = now
	}
	o.advisory = adv
	o.hazardPoint = hazardPoint
	o.hasEvaluated = true
	o.lastErr = nil

	event := domain.DecisionEvent{
		SessionID:   o.sessionID,
		Generation:  gen,
		Mode:        string(o.mode),
		Outcome:     outcome,
		RouteID:     o.selectedID,
		SamplePoint: hazardPoint,
		Advisory:    adv,
		EvaluatedAt: now,
	}
	if o.location != nil {
		event.Location = *o.location
	}
	o.mu.Unlock()

	o.metrics.Evaluations.WithLabelValues(string(o.mode), string(outcome)).Inc()
	if adv != nil {
		o.metrics.AdvisoriesIssued.WithLabelValues(string(adv.HazardType)).Inc()
	}
	o.logger.Info("evaluation committed",
		"generation", gen,
		"outcome", outcome,
		"route_id", event.RouteID,
	)

	o.publish(ctx, event)
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, event domain.DecisionEvent) {
	if o.stages.Publisher == nil {
		return
	}
	if err := o.stages.Publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		o.logger.Warn("decision publish failed", "error", err, "generation", event.Generation)
	}
}

// abort records err and moves to fallback, unless gen is no longer current.
func (o *Orchestrator) abort(gen uint64, fallback State, err error) error {
	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return o.discardStale(gen)
	}
	o.failLocked(fallback, err)
	o.mu.Unlock()
	o.logger.Warn("evaluation aborted", "generation", gen, "error", err)
	return err
}

func (o *Orchestrator) discardStale(gen uint64) error {
	o.metrics.StaleResults.Inc()
	o.logger.Debug("discarding stale result", "generation", gen)
	return ErrCycleSuperseded
}

func (o *Orchestrator) isCurrent(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return gen == o.generation
}

// startCycleLocked supersedes any cycle in flight and enters next.
func (o *Orchestrator) startCycleLocked(next State) uint64 {
	o.generation++
	o.state = next
	o.clearResultLocked()
	o.lastErr = nil
	return o.generation
}

func (o *Orchestrator) clearResultLocked() {
	o.advisory = nil
	o.hazardPoint = nil
	o.hasEvaluated = false
}

func (o *Orchestrator) failLocked(next State, err error) {
	o.state = next
	o.lastErr = err
	o.clearResultLocked()
}

func (o *Orchestrator) isPristineLocked() bool {
	return o.state == StateIdle &&
		o.location == nil &&
		o.destination == nil &&
		o.routes == nil &&
		o.advisory == nil &&
		!o.hasEvaluated &&
		o.lastErr == nil
}
