// Package apierror defines the structured error taxonomy surfaced by the
// dispatch pipeline. Every error carries a stable HTTP status, a machine
// code, a server-generated ID for log correlation, and a caller-safe
// detail string.
package apierror

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InternalDetail is the only detail string ever exposed for unexpected
// failures. The original error text stays in server-side logs.
const InternalDetail = "Internal server error"

// FieldError describes a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a structured pipeline error.
type Error struct {
	// Status is the HTTP status code for this error.
	Status int `json:"status"`

	// Code is a stable machine-readable code, "ERR_<status>" by default.
	Code string `json:"code"`

	// Detail is the caller-safe description.
	Detail string `json:"detail"`

	// Fields carries per-field messages for validation errors.
	Fields []FieldError `json:"fields,omitempty"`

	// ID is a server-generated identifier correlating the response with
	// server-side logs.
	ID string `json:"id"`

	// Timestamp is when the error was created.
	Timestamp time.Time `json:"timestamp"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Detail)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Cause returns the wrapped internal error. Used by the pipeline to log
// the original failure without exposing it to the caller.
func (e *Error) Cause() error {
	return e.cause
}

// New creates an Error with the given status and detail.
func New(status int, detail string) *Error {
	return &Error{
		Status:    status,
		Code:      fmt.Sprintf("ERR_%d", status),
		Detail:    detail,
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
	}
}

// RateLimitExceeded returns the 429 admission rejection error.
func RateLimitExceeded() *Error {
	return New(429, "Too many requests")
}

// Unauthenticated returns a 401 error: identity missing or unresolvable.
func Unauthenticated(detail string) *Error {
	if detail == "" {
		detail = "Authentication required"
	}
	return New(401, detail)
}

// Forbidden returns a 403 error: identity known but insufficient.
func Forbidden(detail string) *Error {
	if detail == "" {
		detail = "Permission denied"
	}
	return New(403, detail)
}

// Validation returns a 422 error carrying field-level messages.
func Validation(fields []FieldError) *Error {
	e := New(422, "Request validation failed")
	e.Fields = fields
	return e
}

// Internal returns a 500 error with the fixed generic detail. The cause is
// retained for logging only and never serialized toward the caller.
func Internal(cause error) *Error {
	e := New(500, InternalDetail)
	e.cause = cause
	return e
}

// FromError normalizes any error into a structured *Error. Recognized
// structured errors pass through unchanged; everything else is wrapped as
// a generic internal error so internal detail never crosses the boundary.
func FromError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal(err)
}

// IsStatus reports whether err is a structured error with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}
