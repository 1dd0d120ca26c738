package domain

import "errors"

// Location resolution failures. These block the user and are always surfaced.
var (
	ErrPermissionDenied       = errors.New("location permission denied")
	ErrPositionUnavailable    = errors.New("position unavailable")
	ErrUnsupportedCapability  = errors.New("geolocation is not supported")
	ErrInvalidCode            = errors.New("invalid location code")
	ErrCoordinatesOutOfBounds = errors.New("coordinates out of bounds")
)

// ErrRouteNotFound is returned when the routing feed has no usable path.
var ErrRouteNotFound = errors.New("route not found")
