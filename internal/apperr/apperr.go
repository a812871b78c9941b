package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

var (
	// ErrConflict means a rider already has an active session.
	ErrConflict = errors.New("active session already exists")
	// ErrNotFound means the session, alert or replay is unknown.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the requester's role or ownership does not allow the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidSession means a reading references a session that is not
	// active or not owned by its sender.
	ErrInvalidSession = errors.New("invalid session")
	// ErrUpstreamUnavailable means the durable store or broker is unreachable.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// StatusCode maps the error taxonomy to HTTP statuses.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, ErrInvalidSession):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, ErrUpstreamUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
