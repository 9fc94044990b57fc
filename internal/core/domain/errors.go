package domain

import "errors"

var (
	// ErrCapacityExceeded is returned when a booking asks for more units
	// than are free on the requested segment. Retryable by the user with
	// fewer units or another date.
	ErrCapacityExceeded = errors.New("capacity exceeded for segment")

	// ErrPriceNotConfigured means the price matrix has no entry (or a zero
	// fare) for the requested pair. The route is not sellable for it.
	ErrPriceNotConfigured = errors.New("price not configured for station pair")

	// ErrPairNotAllowed means the pair is on the route's denylist.
	ErrPairNotAllowed = errors.New("station pair not allowed on route")

	// ErrGatewayUnavailable means a payment gateway call timed out or
	// failed. State is left unchanged; the caller decides how to retry.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrStaleReservation means a payment confirmation referenced a unit
	// that no longer exists or is no longer awaiting payment.
	ErrStaleReservation = errors.New("reservation no longer exists")

	ErrStopNotOnRoute    = errors.New("station is not a stop on route")
	ErrInvalidSegment    = errors.New("origin stop must precede destination stop")
	ErrRouteInactive     = errors.New("route is not active")
	ErrRouteNotFound     = errors.New("route not found")
	ErrUnitNotFound      = errors.New("reservation unit not found")
	ErrActionNotFound    = errors.New("scheduled action not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidTransition = errors.New("invalid reservation state transition")
)
