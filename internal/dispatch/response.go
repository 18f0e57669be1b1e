package dispatch

import (
	"time"

	"github.com/vyrodovalexey/avdispatch/internal/apierror"
)

// Response is the uniform caller-visible outcome of a dispatch. Every
// exit path of the pipeline produces one, success or failure.
type Response struct {
	// Status is the HTTP status code of the outcome.
	Status int `json:"status"`

	// Data carries the handler result on success.
	Data any `json:"data,omitempty"`

	// Error carries the structured error detail on failure.
	Error *apierror.Error `json:"error,omitempty"`

	// Meta carries optional response metadata.
	Meta map[string]any `json:"meta,omitempty"`

	// Timestamp is when the response was produced.
	Timestamp time.Time `json:"timestamp"`
}

// OK builds a successful response around the handler's result.
func OK(data any) *Response {
	return &Response{
		Status:    200,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Fail builds a failure response from a structured error.
func Fail(err *apierror.Error) *Response {
	return &Response{
		Status:    err.Status,
		Error:     err,
		Timestamp: time.Now().UTC(),
	}
}

// Success reports whether the response represents a successful call.
func (r *Response) Success() bool {
	return r.Error == nil && r.Status < 400
}
