package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/samirrijal/ecoleta/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int               `json:"status"`
	Code      string            `json:"code"`    // Error code: bad_request, not_found, internal_error, etc.
	Message   string            `json:"message"` // Human-readable message
	Fields    map[string]string `json:"fields,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	return sendError(c, APIError{Status: status, Code: code, Message: message})
}

func sendError(c *fiber.Ctx, e APIError) error {
	e.RequestID = requestID(c)
	return c.Status(e.Status).JSON(e)
}

func requestID(c *fiber.Ctx) string {
	rid, _ := c.Locals("requestid").(string)
	return rid
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

// writeError maps a service error onto the APIError envelope.
func writeError(c *fiber.Ctx, err error) error {
	return sendError(c, classify(err))
}

func classify(err error) APIError {
	var (
		verr   *domain.ValidationError
		remote *domain.RemoteError
	)
	switch {
	case errors.As(err, &verr):
		return APIError{Status: fiber.StatusBadRequest, Code: "validation_failed", Message: err.Error(), Fields: verr.Fields}
	case errors.Is(err, domain.ErrNotFound):
		return APIError{Status: fiber.StatusNotFound, Code: "not_found", Message: err.Error()}
	case errors.Is(err, domain.ErrPermissionDenied):
		return APIError{Status: fiber.StatusForbidden, Code: "permission_denied", Message: err.Error()}
	case errors.Is(err, domain.ErrConflict):
		return APIError{Status: fiber.StatusConflict, Code: "conflict", Message: err.Error()}
	case errors.Is(err, domain.ErrSessionClosed):
		return APIError{Status: fiber.StatusGone, Code: "session_closed", Message: err.Error()}
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return APIError{Status: fiber.StatusRequestEntityTooLarge, Code: "payload_too_large", Message: err.Error()}
	case errors.Is(err, domain.ErrUnavailable):
		return APIError{Status: fiber.StatusServiceUnavailable, Code: "unavailable", Message: err.Error()}
	case errors.As(err, &remote):
		return APIError{Status: fiber.StatusBadGateway, Code: "upstream_error", Message: err.Error(), Retryable: remote.Retryable()}
	case errors.Is(err, context.DeadlineExceeded):
		return APIError{Status: fiber.StatusGatewayTimeout, Code: "timeout", Message: err.Error(), Retryable: true}
	default:
		return APIError{Status: fiber.StatusInternalServerError, Code: "internal_error", Message: err.Error()}
	}
}
