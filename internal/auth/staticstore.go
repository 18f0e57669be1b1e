package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// StaticValidator is an in-memory TokenValidator backed by a fixed set
// of tokens. Tokens are stored by their SHA-256 hash so the plaintext
// never lives in the store.
type StaticValidator struct {
	mu         sync.RWMutex
	principals map[string]*Principal
}

// NewStaticValidator creates an empty static validator.
func NewStaticValidator() *StaticValidator {
	return &StaticValidator{
		principals: make(map[string]*Principal),
	}
}

var _ TokenValidator = (*StaticValidator)(nil)

// Register associates a token with a principal.
func (s *StaticValidator) Register(token string, principal *Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principals[hashToken(token)] = principal
}

// Revoke removes a token from the store.
func (s *StaticValidator) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.principals, hashToken(token))
}

// Count returns the number of registered tokens.
func (s *StaticValidator) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.principals)
}

// Validate implements TokenValidator.
func (s *StaticValidator) Validate(ctx context.Context, token string) (*Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	principal, ok := s.principals[hashToken(token)]
	if !ok {
		return nil, ErrInvalidToken
	}

	return principal, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// BcryptSecondFactor verifies second-factor secrets against stored
// bcrypt hashes, keyed by principal ID.
type BcryptSecondFactor struct {
	mu      sync.RWMutex
	hashes  map[string][]byte
	secrets SecretSource
}

// SecretSource supplies the secret presented by the caller for a
// principal, typically carried alongside the request.
type SecretSource func(ctx context.Context, principalID string) (string, bool)

// Context key type for the presented second-factor secret.
type secondFactorContextKey struct{}

// ContextWithSecondFactorSecret attaches the caller-presented
// second-factor secret to the context. Transports call this before
// dispatching so the verifier can read it.
func ContextWithSecondFactorSecret(ctx context.Context, secret string) context.Context {
	return context.WithValue(ctx, secondFactorContextKey{}, secret)
}

// SecondFactorSecretFromContext reads the presented secret.
func SecondFactorSecretFromContext(ctx context.Context) (string, bool) {
	secret, ok := ctx.Value(secondFactorContextKey{}).(string)
	return secret, ok && secret != ""
}

// ContextSecretSource reads the presented secret from the context.
func ContextSecretSource(ctx context.Context, principalID string) (string, bool) {
	return SecondFactorSecretFromContext(ctx)
}

// NewBcryptSecondFactor creates a verifier reading presented secrets
// from the given source.
func NewBcryptSecondFactor(secrets SecretSource) *BcryptSecondFactor {
	return &BcryptSecondFactor{
		hashes:  make(map[string][]byte),
		secrets: secrets,
	}
}

var _ SecondFactorVerifier = (*BcryptSecondFactor)(nil)

// Enroll stores the bcrypt hash of a principal's second-factor secret.
func (b *BcryptSecondFactor) Enroll(principalID, secret string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.hashes[principalID] = hash
	return nil
}

// Verify implements SecondFactorVerifier.
func (b *BcryptSecondFactor) Verify(ctx context.Context, principal *Principal) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	b.mu.RLock()
	hash, enrolled := b.hashes[principal.ID]
	b.mu.RUnlock()

	if !enrolled {
		return false, nil
	}

	presented, ok := b.secrets(ctx, principal.ID)
	if !ok {
		return false, nil
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(presented)); err != nil {
		return false, nil
	}

	return true, nil
}
