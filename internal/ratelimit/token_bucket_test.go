package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the limiter's refill math deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T, config Config) (*TokenBucketLimiter, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	l := NewTokenBucketLimiter(config)
	l.now = clock.Now
	t.Cleanup(func() { _ = l.Close() })
	return l, clock
}

func TestTokenBucketLimiter_BurstThenReject(t *testing.T) {
	l, _ := newTestLimiter(t, PerMinute(60))
	ctx := context.Background()

	// A fresh bucket admits exactly its capacity.
	for i := 0; i < 60; i++ {
		result, err := l.Allow(ctx, "ep")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "call %d should be admitted", i+1)
	}

	// The 61st rapid call is rejected.
	result, err := l.Allow(ctx, "ep")
	require.NoError(t, err)
	assert.False(t, result.Allowed, "61st call should be rejected")
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestTokenBucketLimiter_RefillAfterElapsed(t *testing.T) {
	l, clock := newTestLimiter(t, PerMinute(60))
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		_, err := l.Allow(ctx, "ep")
		require.NoError(t, err)
	}

	result, err := l.Allow(ctx, "ep")
	require.NoError(t, err)
	require.False(t, result.Allowed)

	// 60/min refills one token per second.
	clock.Advance(time.Second)

	result, err = l.Allow(ctx, "ep")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = l.Allow(ctx, "ep")
	require.NoError(t, err)
	assert.False(t, result.Allowed, "only one token refilled")
}

func TestTokenBucketLimiter_RejectionDoesNotConsume(t *testing.T) {
	l, clock := newTestLimiter(t, PerMinute(60))
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		_, err := l.Allow(ctx, "ep")
		require.NoError(t, err)
	}

	// Hammer the exhausted bucket; rejections must not drive tokens
	// negative or eat the refill accrued meanwhile.
	for i := 0; i < 100; i++ {
		result, err := l.Allow(ctx, "ep")
		require.NoError(t, err)
		require.False(t, result.Allowed)
		require.GreaterOrEqual(t, result.Remaining, 0)
	}

	clock.Advance(time.Second)
	result, err := l.Allow(ctx, "ep")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestTokenBucketLimiter_RefillClampedToCapacity(t *testing.T) {
	l, clock := newTestLimiter(t, PerMinute(10))
	ctx := context.Background()

	// Long idle period must not accumulate beyond capacity.
	clock.Advance(time.Hour)

	admitted := 0
	for i := 0; i < 100; i++ {
		result, err := l.Allow(ctx, "ep")
		require.NoError(t, err)
		if result.Allowed {
			admitted++
		}
	}
	assert.Equal(t, 10, admitted)
}

func TestTokenBucketLimiter_InvariantUnderRandomElapsed(t *testing.T) {
	const capacity = 17
	l, clock := newTestLimiter(t, Config{Capacity: capacity, RefillPerSecond: 3.5})
	ctx := context.Background()

	rng := rand.New(rand.NewSource(42))
	admittedSinceRefill := 0

	for i := 0; i < 5000; i++ {
		clock.Advance(time.Duration(rng.Int63n(int64(2 * time.Second))))

		result, err := l.Allow(ctx, "ep")
		require.NoError(t, err)

		// Remaining reflects the bucket after the decision: it must stay
		// within [0, capacity] for every interleaving of refills and
		// admissions.
		require.GreaterOrEqual(t, result.Remaining, 0)
		require.LessOrEqual(t, result.Remaining, capacity)

		if result.Allowed {
			admittedSinceRefill++
		}
	}
	assert.Greater(t, admittedSinceRefill, 0)
}

func TestTokenBucketLimiter_IndependentKeys(t *testing.T) {
	l, _ := newTestLimiter(t, PerMinute(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := l.Allow(ctx, "a")
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	result, err := l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	// Exhausting "a" must not affect "b".
	result, err = l.Allow(ctx, "b")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestTokenBucketLimiter_Reset(t *testing.T) {
	l, _ := newTestLimiter(t, PerMinute(1))
	ctx := context.Background()

	result, err := l.Allow(ctx, "ep")
	require.NoError(t, err)
	require.True(t, result.Allowed)

	result, err = l.Allow(ctx, "ep")
	require.NoError(t, err)
	require.False(t, result.Allowed)

	require.NoError(t, l.Reset(ctx, "ep"))

	result, err = l.Allow(ctx, "ep")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestTokenBucketLimiter_ConcurrentNoLostUpdates(t *testing.T) {
	const capacity = 100
	l, _ := newTestLimiter(t, Config{Capacity: capacity, RefillPerSecond: 0})
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				result, err := l.Allow(ctx, "ep")
				require.NoError(t, err)
				if result.Allowed {
					mu.Lock()
					admitted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// With zero refill, exactly capacity admissions across all goroutines.
	assert.Equal(t, capacity, admitted)
}

func TestTokenBucketLimiter_CancelledContext(t *testing.T) {
	l, _ := newTestLimiter(t, PerMinute(10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Allow(ctx, "ep")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPerMinute(t *testing.T) {
	cfg := PerMinute(60)
	assert.Equal(t, 60, cfg.Capacity)
	assert.InDelta(t, 1.0, cfg.RefillPerSecond, 1e-9)

	cfg = PerMinute(90)
	assert.InDelta(t, 1.5, cfg.RefillPerSecond, 1e-9)
}

func TestNoopLimiter(t *testing.T) {
	l := NewNoopLimiter()
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		result, err := l.Allow(ctx, "anything")
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}
	assert.NoError(t, l.Reset(ctx, "anything"))
	assert.NoError(t, l.Close())
}
