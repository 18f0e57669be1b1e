package ratelimit

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"github.com/vyrodovalexey/avdispatch/internal/observability"
)

// Ensure TokenBucketLimiter implements Limiter and io.Closer.
var (
	_ Limiter   = (*TokenBucketLimiter)(nil)
	_ io.Closer = (*TokenBucketLimiter)(nil)
)

// TokenBucketLimiter implements the token bucket algorithm with continuous
// refill. Each key owns an independent bucket; an admitted call consumes
// exactly one token, a rejected call consumes nothing. The bucket count
// never exceeds capacity and never drops below zero.
//
// Call Close when done to stop the background cleanup goroutine.
type TokenBucketLimiter struct {
	config  Config
	logger  observability.Logger
	metrics *Metrics

	buckets sync.Map

	// now is the clock used for refill math. Replaced in tests.
	// It must be monotonic: refill uses the difference of two readings,
	// never absolute wall time.
	now func() time.Time

	cleanupInterval time.Duration
	bucketTTL       time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

// bucket holds the admission state for a single key. The read-modify-write
// of tokens and lastRefill is one critical section so concurrent callers
// always observe a serializable refill-then-decrement sequence.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// TokenBucketOption is a functional option for the limiter.
type TokenBucketOption func(*TokenBucketLimiter)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		l.logger = logger
	}
}

// WithMetrics sets the metrics used to record admission decisions.
func WithMetrics(metrics *Metrics) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		l.metrics = metrics
	}
}

// WithCleanup overrides the stale-bucket cleanup interval and TTL.
func WithCleanup(interval, ttl time.Duration) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		l.cleanupInterval = interval
		l.bucketTTL = ttl
	}
}

// NewTokenBucketLimiter creates a new token bucket limiter. A background
// goroutine removes buckets idle longer than the TTL so per-key state does
// not grow without bound.
func NewTokenBucketLimiter(config Config, opts ...TokenBucketOption) *TokenBucketLimiter {
	l := &TokenBucketLimiter{
		config:          config,
		logger:          observability.NopLogger(),
		now:             time.Now,
		cleanupInterval: 5 * time.Minute,
		bucketTTL:       10 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	go l.cleanupLoop()

	return l
}

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	value, _ := l.buckets.LoadOrStore(key, &bucket{
		tokens:     float64(l.config.Capacity),
		lastRefill: l.now(),
	})
	b := value.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()

	// Refill proportionally to elapsed time, clamped to capacity. The
	// timestamp advances even when the call is rejected so the next check
	// never double-counts elapsed time.
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = math.Min(b.tokens+elapsed*l.config.RefillPerSecond, float64(l.config.Capacity))
	b.lastRefill = now

	allowed := b.tokens >= 1
	if allowed {
		b.tokens--
	}

	if l.metrics != nil {
		l.metrics.RecordDecision(key, allowed)
	}

	result := &Result{
		Allowed:   allowed,
		Limit:     l.config.Capacity,
		Remaining: int(b.tokens),
	}
	if !allowed && l.config.RefillPerSecond > 0 {
		needed := 1 - b.tokens
		result.RetryAfter = time.Duration(needed / l.config.RefillPerSecond * float64(time.Second))
	}

	return result, nil
}

// Reset implements Limiter.
func (l *TokenBucketLimiter) Reset(ctx context.Context, key string) error {
	l.buckets.Delete(key)
	return nil
}

// Close implements io.Closer. Stops the cleanup goroutine; safe to call
// multiple times.
func (l *TokenBucketLimiter) Close() error {
	l.cleanupOnce.Do(func() {
		close(l.stopCleanup)
	})
	return nil
}

// cleanupLoop periodically removes stale buckets.
func (l *TokenBucketLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.removeStale(l.bucketTTL)
		case <-l.stopCleanup:
			return
		}
	}
}

// removeStale deletes buckets that have not been touched within maxAge.
func (l *TokenBucketLimiter) removeStale(maxAge time.Duration) {
	now := l.now()
	removed := 0

	l.buckets.Range(func(key, value interface{}) bool {
		b := value.(*bucket)
		b.mu.Lock()
		stale := now.Sub(b.lastRefill) > maxAge
		b.mu.Unlock()
		if stale {
			l.buckets.Delete(key)
			removed++
		}
		return true
	})

	if removed > 0 {
		l.logger.Debug("removed stale rate limit buckets",
			observability.Int("removed", removed),
		)
	}
}
