// Package schema defines the payload validation capability consumed by the
// dispatch pipeline. The pipeline is agnostic to the validation technology;
// it only depends on the Validator interface and the structured
// ValidationError.
package schema

import (
	"fmt"
	"strings"
)

// Validator validates an untyped payload against a schema and returns the
// validated, typed value.
type Validator interface {
	// Validate returns the validated value, or a *ValidationError carrying
	// per-field messages when the payload does not conform.
	Validate(payload map[string]any) (any, error)
}

// FieldError describes one field-level violation.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError is the structured error raised when a payload does not
// match the schema.
type ValidationError struct {
	Fields []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "schema validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "schema validation failed: " + strings.Join(parts, "; ")
}
