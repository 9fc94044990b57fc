package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/olehbas/marshrut/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, not_found, internal_error, etc.
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, 400, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, 404, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}

// errConflict returns a 409 error.
func errConflict(c *fiber.Ctx, msg string) error {
	return newError(c, 409, "conflict", msg)
}

// errDomain translates a core sentinel into its HTTP shape. Anything
// unrecognized is a 500 without leaking internals.
func errDomain(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrRouteNotFound),
		errors.Is(err, domain.ErrUnitNotFound),
		errors.Is(err, domain.ErrStopNotOnRoute):
		return errNotFound(c, err.Error())
	case errors.Is(err, domain.ErrInvalidSegment),
		errors.Is(err, domain.ErrPairNotAllowed),
		errors.Is(err, domain.ErrPriceNotConfigured),
		errors.Is(err, domain.ErrRouteInactive):
		return errBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrCapacityExceeded),
		errors.Is(err, domain.ErrStaleReservation):
		return errConflict(c, err.Error())
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return newError(c, 502, "gateway_unavailable", err.Error())
	}
	return errInternal(c, "internal error")
}
