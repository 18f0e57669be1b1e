// Package jwt provides a JWT-backed token validator for the credential
// gate. Tokens are verified and validated with lestrrat-go/jwx.
package jwt

import (
	"context"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/avdispatch/internal/auth"
	"github.com/vyrodovalexey/avdispatch/internal/observability"
)

// Config configures the JWT validator.
type Config struct {
	// Issuer, when set, must match the token's iss claim.
	Issuer string `yaml:"issuer"`

	// Audience, when set, must be present in the token's aud claim.
	Audience string `yaml:"audience"`

	// RolesClaim names the private claim carrying the role list.
	RolesClaim string `yaml:"rolesClaim"`

	// ActiveClaim names the private claim indicating the account is
	// active. Absent claim means active.
	ActiveClaim string `yaml:"activeClaim"`
}

// DefaultConfig returns the default JWT validator configuration.
func DefaultConfig() *Config {
	return &Config{
		RolesClaim:  "roles",
		ActiveClaim: "active",
	}
}

// Validator resolves bearer tokens by verifying them as JWTs against a
// signing key or key set.
type Validator struct {
	config *Config
	logger observability.Logger

	key    jwk.Key
	alg    jwa.SignatureAlgorithm
	keySet jwk.Set
}

var _ auth.TokenValidator = (*Validator)(nil)

// ValidatorOption is a functional option for the validator.
type ValidatorOption func(*Validator)

// WithLogger sets the logger for the validator.
func WithLogger(logger observability.Logger) ValidatorOption {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithKey verifies tokens with a single key and algorithm.
func WithKey(alg jwa.SignatureAlgorithm, key jwk.Key) ValidatorOption {
	return func(v *Validator) {
		v.alg = alg
		v.key = key
	}
}

// WithKeySet verifies tokens against a JWK set. Keys in the set must
// carry their algorithm.
func WithKeySet(set jwk.Set) ValidatorOption {
	return func(v *Validator) {
		v.keySet = set
	}
}

// NewValidator creates a JWT validator.
func NewValidator(config *Config, opts ...ValidatorOption) (*Validator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.RolesClaim == "" {
		config.RolesClaim = "roles"
	}
	if config.ActiveClaim == "" {
		config.ActiveClaim = "active"
	}

	v := &Validator{
		config: config,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(v)
	}

	if v.key == nil && v.keySet == nil {
		return nil, fmt.Errorf("no verification key configured")
	}

	return v, nil
}

// Validate implements auth.TokenValidator.
func (v *Validator) Validate(ctx context.Context, token string) (*auth.Principal, error) {
	opts := []jwt.ParseOption{jwt.WithContext(ctx)}

	if v.key != nil {
		opts = append(opts, jwt.WithKey(v.alg, v.key))
	} else {
		opts = append(opts, jwt.WithKeySet(v.keySet))
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}

	parsed, err := jwt.Parse([]byte(token), opts...)
	if err != nil {
		v.logger.Debug("token rejected", observability.Error(err))
		return nil, auth.ErrInvalidToken
	}

	if parsed.Subject() == "" {
		return nil, auth.ErrInvalidToken
	}

	principal := &auth.Principal{
		ID:     parsed.Subject(),
		Active: true,
		Roles:  claimStrings(parsed, v.config.RolesClaim),
	}

	if raw, ok := parsed.Get(v.config.ActiveClaim); ok {
		if active, ok := raw.(bool); ok {
			principal.Active = active
		}
	}
	if raw, ok := parsed.Get("name"); ok {
		if name, ok := raw.(string); ok {
			principal.Name = name
		}
	}

	return principal, nil
}

// claimStrings reads a private claim as a string slice.
func claimStrings(token jwt.Token, claim string) []string {
	raw, ok := token.Get(claim)
	if !ok {
		return nil
	}

	switch val := raw.(type) {
	case []string:
		return val
	case []interface{}:
		result := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}
