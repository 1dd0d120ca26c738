package location

import (
	"context"

	"github.com/couchcryptid/hazard-advisory-service/internal/domain"
)

type reportedPositionKey struct{}

type reportedPosition struct {
	pos Position
	err error
}

// WithReportedPosition attaches a position reported by the client device to ctx.
func WithReportedPosition(ctx context.Context, lat, lon float64) context.Context {
	return context.WithValue(ctx, reportedPositionKey{}, reportedPosition{pos: Position{Latitude: lat, Longitude: lon}})
}

// WithReportedError attaches a geolocation failure reported by the client device to ctx.
func WithReportedError(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, reportedPositionKey{}, reportedPosition{err: err})
}

// ContextLocator is a DeviceLocator for remote clients: the device's
// geolocation result travels with the request context.
type ContextLocator struct{}

// CurrentPosition returns the position or failure carried by ctx, or
// domain.ErrPositionUnavailable when the request carried neither.
func (ContextLocator) CurrentPosition(ctx context.Context) (Position, error) {
	rp, ok := ctx.Value(reportedPositionKey{}).(reportedPosition)
	if !ok {
		return Position{}, domain.ErrPositionUnavailable
	}
	if rp.err != nil {
		return Position{}, rp.err
	}
	return rp.pos, nil
}
