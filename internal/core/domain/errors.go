package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a session or resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is returned when the device refused to share its position.
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrSessionClosed is returned when operating on a closed or completed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrConflict is returned when an operation is already in progress.
	ErrConflict = errors.New("operation already in progress")

	// ErrUnavailable is returned when an optional backend is not configured.
	ErrUnavailable = errors.New("service unavailable")

	// ErrPayloadTooLarge is returned when a submission does not fit the
	// background workflow's input limit.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// RemoteError reports a failed call to an external service (registry API, IBGE).
type RemoteError struct {
	Service    string
	Op         string
	StatusCode int
	Err        error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("%s %s: status %d: %v", e.Service, e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
	default:
		return fmt.Sprintf("%s %s: status %d", e.Service, e.Op, e.StatusCode)
	}
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the call may succeed.
// Client errors (4xx) are not retryable.
func (e *RemoteError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == 429
}

// ValidationError lists invalid fields and their problems.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, problem string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: problem}}
}

// Add records a problem for field.
func (e *ValidationError) Add(field, problem string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = problem
}

// Empty reports whether no problems were recorded.
func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ErrorView is the client-facing rendition of a failed read or write.
type ErrorView struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// NewErrorView classifies err for display.
func NewErrorView(err error) *ErrorView {
	if err == nil {
		return nil
	}
	var remote *RemoteError
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return &ErrorView{Code: "permission_denied", Message: err.Error()}
	case errors.Is(err, ErrValidation):
		return &ErrorView{Code: "validation_failed", Message: err.Error()}
	case errors.As(err, &remote):
		return &ErrorView{Code: "upstream_error", Message: err.Error(), Retryable: remote.Retryable()}
	default:
		return &ErrorView{Code: "internal_error", Message: err.Error(), Retryable: true}
	}
}
