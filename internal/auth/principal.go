package auth

import (
	"context"
	"errors"
)

// Principal represents the resolved identity and authorization
// attributes of a caller. It is immutable for the duration of a call.
type Principal struct {
	// ID is the unique identifier for the principal (e.g., user ID).
	ID string `json:"id"`

	// Name is the display name of the principal.
	Name string `json:"name,omitempty"`

	// Active indicates whether the principal account is active.
	// Inactive principals fail authentication even with a valid token.
	Active bool `json:"active"`

	// Roles contains the roles assigned to the principal.
	Roles []string `json:"roles,omitempty"`

	// Metadata contains additional attributes about the principal.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// HasRole checks if the principal has a specific role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole checks if the principal has any of the specified roles.
func (p *Principal) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if p.HasRole(role) {
			return true
		}
	}
	return false
}

// Context key type for principal.
type principalContextKey struct{}

// ContextWithPrincipal adds a principal to the context.
func ContextWithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext extracts the principal from the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(*Principal)
	return principal, ok
}

// ErrPrincipalNotFound is returned when no principal is found in context.
var ErrPrincipalNotFound = errors.New("principal not found in context")

// PrincipalFromContextOrError extracts the principal from the context
// or returns an error. Returns ErrPrincipalNotFound if the context does
// not carry a principal.
func PrincipalFromContextOrError(ctx context.Context) (*Principal, error) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok || principal == nil {
		return nil, ErrPrincipalNotFound
	}
	return principal, nil
}
