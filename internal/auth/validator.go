package auth

import "context"

// TokenValidator resolves a bearer token to a principal.
//
// Implementations may perform external I/O (network or database lookup)
// and must honor context cancellation. A token that cannot be resolved
// returns ErrInvalidToken; transport failures return their own error.
type TokenValidator interface {
	// Validate exchanges a bearer token for a principal.
	Validate(ctx context.Context, token string) (*Principal, error)
}

// SecondFactorVerifier verifies a second authentication factor for an
// already-resolved principal.
type SecondFactorVerifier interface {
	// Verify reports whether the principal passes second-factor
	// verification. A false result with nil error is a clean denial;
	// a non-nil error indicates the verifier itself failed.
	Verify(ctx context.Context, principal *Principal) (bool, error)
}

// TokenValidatorFunc adapts a function to the TokenValidator interface.
type TokenValidatorFunc func(ctx context.Context, token string) (*Principal, error)

// Validate implements TokenValidator.
func (f TokenValidatorFunc) Validate(ctx context.Context, token string) (*Principal, error) {
	return f(ctx, token)
}

// SecondFactorFunc adapts a function to the SecondFactorVerifier interface.
type SecondFactorFunc func(ctx context.Context, principal *Principal) (bool, error)

// Verify implements SecondFactorVerifier.
func (f SecondFactorFunc) Verify(ctx context.Context, principal *Principal) (bool, error) {
	return f(ctx, principal)
}
