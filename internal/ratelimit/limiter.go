// Package ratelimit provides per-endpoint admission control for the
// dispatch pipeline using the token bucket algorithm.
package ratelimit

import (
	"context"
	"time"
)

// Limiter defines the interface for admission control.
type Limiter interface {
	// Allow checks whether a single call is admitted for the given key.
	// Exactly one token is consumed on admission; a rejected call consumes
	// nothing.
	Allow(ctx context.Context, key string) (*Result, error)

	// Reset clears the rate limit state for the given key.
	Reset(ctx context.Context, key string) error

	// Close releases limiter resources.
	Close() error
}

// Result represents the outcome of an admission check.
type Result struct {
	// Allowed indicates whether the call is admitted.
	Allowed bool

	// Limit is the bucket capacity.
	Limit int

	// Remaining is the number of whole tokens left in the bucket.
	Remaining int

	// RetryAfter is how long to wait for the next token (when rejected).
	RetryAfter time.Duration
}

// Config holds configuration for a token bucket.
type Config struct {
	// Capacity is the maximum number of tokens in the bucket.
	Capacity int

	// RefillPerSecond is the continuous refill rate in tokens per second.
	RefillPerSecond float64
}

// PerMinute returns a Config for the common "N requests per minute" shape:
// a bucket of capacity n refilled at n/60 tokens per second.
func PerMinute(n int) Config {
	return Config{
		Capacity:        n,
		RefillPerSecond: float64(n) / 60.0,
	}
}

// NoopLimiter admits every call. Used when an endpoint has rate limiting
// disabled.
type NoopLimiter struct{}

// NewNoopLimiter creates a new noop limiter.
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

// Allow implements Limiter.
func (l *NoopLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return &Result{Allowed: true}, nil
}

// Reset implements Limiter.
func (l *NoopLimiter) Reset(ctx context.Context, key string) error {
	return nil
}

// Close implements Limiter.
func (l *NoopLimiter) Close() error {
	return nil
}
