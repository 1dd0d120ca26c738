package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/hazard-advisory-service/internal/domain"
)

// FetchCandidateRoutes resolves both ends of a trip and loads the candidate
// routes between them. An empty originCode reuses the current location.
func (o *Orchestrator) FetchCandidateRoutes(ctx context.Context, originCode, destinationCode string) (Snapshot, error) {
	if o.mode != ModeRoute {
		return o.Snapshot(), fmt.Errorf("%w: route planning in %s mode", ErrInvalidState, o.mode)
	}

	o.mu.Lock()
	var current *domain.Location
	if o.location != nil {
		loc := *o.location
		current = &loc
	}
	gen := o.startCycleLocked(StateResolving)
	o.destination = nil
	o.routes = nil
	o.selectedID = ""
	o.mu.Unlock()

	origin, err := o.resolveOrigin(ctx, originCode, current)
	if err != nil {
		return o.Snapshot(), o.abort(gen, StateIdle, fmt.Errorf("origin: %w", err))
	}
	if !o.isCurrent(gen) {
		return o.Snapshot(), o.discardStale(gen)
	}

	destination, err := o.stages.Resolver.ResolveFromCode(ctx, destinationCode)
	if err != nil {
		return o.Snapshot(), o.abort(gen, StateIdle, fmt.Errorf("destination: %w", err))
	}
	if !o.isCurrent(gen) {
		return o.Snapshot(), o.discardStale(gen)
	}

	routes, err := o.stages.Routes.FetchRoutes(ctx, origin, destination)
	if err != nil {
		return o.Snapshot(), o.abort(gen, StateIdle, err)
	}

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return o.Snapshot(), o.discardStale(gen)
	}
	o.location = &origin
	o.destination = &destination
	o.routes = routes
	o.state = StateRoutePending
	o.mu.Unlock()

	o.logger.Info("candidate routes loaded", "generation", gen, "count", len(routes))
	return o.Snapshot(), nil
}

func (o *Orchestrator) resolveOrigin(ctx context.Context, code string, current *domain.Location) (domain.Location, error) {
	if code == "" && current != nil {
		return *current, nil
	}
	return o.stages.Resolver.ResolveFromCode(ctx, code)
}

// SelectRoute samples the chosen route and probes the points in travel order.
// The first point with an active hazard decides the outcome; later points are
// never fetched.
func (o *Orchestrator) SelectRoute(ctx context.Context, routeID string) (Snapshot, error) {
	if o.mode != ModeRoute {
		return o.Snapshot(), fmt.Errorf("%w: route selection in %s mode", ErrInvalidState, o.mode)
	}

	o.mu.Lock()
	switch o.state {
	case StateRoutePending, StateClear, StateAdvising:
	default:
		state := o.state
		o.mu.Unlock()
		return o.Snapshot(), fmt.Errorf("%w: cannot select a route while %s", ErrInvalidState, state)
	}
	route, ok := o.findRouteLocked(routeID)
	if !ok {
		o.mu.Unlock()
		return o.Snapshot(), fmt.Errorf("%w: %q", ErrUnknownRoute, routeID)
	}
	gen := o.startCycleLocked(StateEvaluating)
	o.selectedID = routeID
	o.mu.Unlock()

	err := o.scanRoute(ctx, gen, route)
	return o.Snapshot(), err
}

func (o *Orchestrator) scanRoute(ctx context.Context, gen uint64, route domain.Route) error {
	samples := domain.SampleRoute(route, o.sampleCount)
	o.logger.Debug("scanning route", "route_id", route.ID, "samples", len(samples), "vertices", len(route.Geometry))

	for i, p := range samples {
		if err := ctx.Err(); err != nil {
			return o.abort(gen, StateRoutePending, err)
		}
		if !o.isCurrent(gen) {
			return o.discardStale(gen)
		}

		hazards := o.stages.Hazards.FetchHazards(ctx, p.Lat, p.Lon)
		o.metrics.RoutePointsScanned.Inc()
		if err := ctx.Err(); err != nil {
			return o.abort(gen, StateRoutePending, err)
		}

		result := domain.EvaluateTriggers(hazards)
		if !result.Triggered {
			continue
		}

		o.logger.Info("hazard found along route", "route_id", route.ID, "sample", i, "lat", p.Lat, "lon", p.Lon)
		adv, err := o.stages.Advisor.Generate(ctx, result.ActiveHazards[0])
		if err != nil {
			return o.abort(gen, StateRoutePending, fmt.Errorf("generate advice: %w", err))
		}
		hit := p
		return o.commit(ctx, gen, &adv, &hit)
	}

	return o.commit(ctx, gen, nil, nil)
}

func (o *Orchestrator) findRouteLocked(id string) (domain.Route, bool) {
	for _, r := range o.routes {
		if r.ID == id {
			return r, true
		}
	}
	return domain.Route{}, false
}
