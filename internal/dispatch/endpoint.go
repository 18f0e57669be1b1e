package dispatch

import (
	"context"

	"github.com/vyrodovalexey/avdispatch/internal/auth"
	"github.com/vyrodovalexey/avdispatch/internal/schema"
)

// HandlerFunc is the user-supplied handler wrapped by the pipeline. The
// context carries the resolved principal when the endpoint requires
// authentication.
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

// Endpoint declares one protected operation. Registrations are created
// once at startup and are immutable thereafter.
type Endpoint struct {
	// Route is the unique route identifier.
	Route string

	// Methods is the set of allowed call methods.
	Methods []string

	// AuthRequired enables the credential gate for this endpoint. When
	// false the gate is skipped entirely and no principal is produced.
	AuthRequired bool

	// RequiredRoles lists roles accepted by the endpoint. Only consulted
	// when AuthRequired is true.
	RequiredRoles []string

	// SecondFactor requires second-factor verification. Only consulted
	// when AuthRequired is true.
	SecondFactor bool

	// RateLimit is the admission budget in calls per minute. Zero
	// disables rate limiting for this endpoint.
	RateLimit int

	// RequestSchema validates the request payload before the handler
	// runs. Nil skips request validation.
	RequestSchema schema.Validator

	// ResponseSchema validates the handler output. A mismatch is an
	// internal error, never surfaced as a validation problem.
	ResponseSchema schema.Validator

	// Handler is the wrapped handler.
	Handler HandlerFunc

	// Summary and Description document the endpoint for registry
	// consumers. Neither affects dispatch.
	Summary     string
	Description string
}

// requirement builds the gate requirement from the registration.
func (e *Endpoint) requirement() auth.Requirement {
	return auth.Requirement{
		SecondFactor: e.SecondFactor,
		Roles:        e.RequiredRoles,
	}
}

// AllowsMethod reports whether the endpoint accepts the given method.
func (e *Endpoint) AllowsMethod(method string) bool {
	for _, m := range e.Methods {
		if m == method {
			return true
		}
	}
	return false
}
