package auth

import "errors"

// Sentinel errors for authentication and authorization operations.
var (
	// ErrNoCredentials indicates that no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrMalformedCredentials indicates a malformed authorization scheme.
	ErrMalformedCredentials = errors.New("malformed credentials")

	// ErrInvalidToken indicates that the token could not be resolved
	// to a principal.
	ErrInvalidToken = errors.New("invalid token")

	// ErrPrincipalInactive indicates the resolved principal is disabled.
	ErrPrincipalInactive = errors.New("principal inactive")

	// ErrSecondFactorFailed indicates second-factor verification failed
	// for a known principal.
	ErrSecondFactorFailed = errors.New("second factor verification failed")

	// ErrInsufficientRole indicates the principal holds none of the
	// roles required by the endpoint.
	ErrInsufficientRole = errors.New("insufficient role")

	// ErrValidatorUnavailable indicates the external credential
	// validator could not be reached.
	ErrValidatorUnavailable = errors.New("credential validator unavailable")
)
