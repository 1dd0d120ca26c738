package location

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/couchcryptid/hazard-advisory-service/internal/domain"
)

// Position is a device-reported coordinate.
type Position struct {
	Latitude  float64
	Longitude float64
}

// DeviceLocator supplies the device's current position.
type DeviceLocator interface {
	// CurrentPosition returns domain.ErrPermissionDenied or
	// domain.ErrPositionUnavailable when the platform cannot provide a fix.
	CurrentPosition(ctx context.Context) (Position, error)
}

// PostalGeocoder converts a postal code to a live location.
type PostalGeocoder interface {
	// LookupPostalCode returns an error wrapping domain.ErrInvalidCode when the
	// code is unknown or the payload is malformed.
	LookupPostalCode(ctx context.Context, code string) (domain.Location, error)
}

// Resolver turns a device fix or a location code into a domain.Location and
// remembers the last result until Clear. It never retries.
type Resolver struct {
	locator  DeviceLocator
	geocoder PostalGeocoder
	logger   *slog.Logger

	mu      sync.Mutex
	current *domain.Location
	lastErr error
}

// NewResolver creates a Resolver. A nil locator means the platform has no
// geolocation capability.
func NewResolver(locator DeviceLocator, geocoder PostalGeocoder, logger *slog.Logger) *Resolver {
	return &Resolver{
		locator:  locator,
		geocoder: geocoder,
		logger:   logger,
	}
}

// ResolveFromDevice asks the device locator for the current position.
func (r *Resolver) ResolveFromDevice(ctx context.Context) (domain.Location, error) {
	if r.locator == nil {
		return r.fail(domain.ErrUnsupportedCapability)
	}

	pos, err := r.locator.CurrentPosition(ctx)
	if err != nil {
		return r.fail(fmt.Errorf("device position: %w", err))
	}

	loc, err := domain.NewLocation(pos.Latitude, pos.Longitude, "", false)
	if err != nil {
		return r.fail(fmt.Errorf("%w: %v", domain.ErrPositionUnavailable, err))
	}
	return r.succeed(loc), nil
}

// ResolveFromCode resolves a demo code from the static scenario table, or
// otherwise a postal code through the geocoder. Demo codes never reach the
// network.
func (r *Resolver) ResolveFromCode(ctx context.Context, code string) (domain.Location, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return r.fail(fmt.Errorf("%w: empty code", domain.ErrInvalidCode))
	}

	if scenario, ok := domain.LookupDemoScenario(code); ok {
		r.logger.Debug("resolved demo code", "code", code, "scenario", scenario.Name)
		return r.succeed(scenario.Location()), nil
	}

	if r.geocoder == nil {
		return r.fail(fmt.Errorf("%w: no geocoder configured for %q", domain.ErrInvalidCode, code))
	}

	loc, err := r.geocoder.LookupPostalCode(ctx, code)
	if err != nil {
		return r.fail(fmt.Errorf("resolve code %q: %w", code, err))
	}
	loc.IsSynthetic = false
	return r.succeed(loc), nil
}

// Clear drops the current location and any pending error.
func (r *Resolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = nil
	r.lastErr = nil
}

// Current returns the last resolved location.
func (r *Resolver) Current() (domain.Location, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return domain.Location{}, false
	}
	return *r.current, true
}

// Err returns the error from the last failed resolution, if any.
func (r *Resolver) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

func (r *Resolver) succeed(loc domain.Location) domain.Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = &loc
	r.lastErr = nil
	return loc
}

func (r *Resolver) fail(err error) (domain.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = err
	return domain.Location{}, err
}
