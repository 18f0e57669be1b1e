package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// StructValidator validates payloads against a Go struct type T using
// `validate` struct tags. The untyped payload is decoded through a JSON
// round trip, then checked with go-playground/validator.
type StructValidator[T any] struct {
	validate *validator.Validate
}

// NewStructValidator creates a validator for type T.
func NewStructValidator[T any]() *StructValidator[T] {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report field names by their json tag so callers see wire names,
	// not Go identifiers.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &StructValidator[T]{validate: v}
}

var _ Validator = (*StructValidator[struct{}])(nil)

// Validate implements Validator.
func (s *StructValidator[T]) Validate(payload map[string]any) (any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "_payload", Message: "not serializable"}}}
	}

	var value T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&value); err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "_payload", Message: err.Error()}}}
	}

	if err := s.validate.Struct(value); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]FieldError, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, FieldError{
					Field:   fe.Field(),
					Message: violationMessage(fe),
				})
			}
			return nil, &ValidationError{Fields: fields}
		}
		return nil, err
	}

	return value, nil
}

// violationMessage renders a compact, caller-safe message for a violation.
func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
