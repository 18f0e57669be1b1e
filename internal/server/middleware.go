package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avdispatch/internal/apierror"
	"github.com/vyrodovalexey/avdispatch/internal/dispatch"
	"github.com/vyrodovalexey/avdispatch/internal/observability"
)

// RequestIDHeader is the header name for request correlation IDs.
const RequestIDHeader = "X-Request-ID"

// RequestID returns a middleware that assigns each request a UUID,
// echoes it in the response header, and threads it through the context
// for log correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Header(RequestIDHeader, requestID)
		ctx := observability.ContextWithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// Recovery returns a middleware that converts handler panics into the
// uniform 500 response envelope.
func Recovery(logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					observability.Any("error", r),
					observability.String("method", c.Request.Method),
					observability.String("path", c.Request.URL.Path),
					observability.String("stack", string(debug.Stack())),
				)

				apiErr := apierror.Internal(fmt.Errorf("panic: %v", r))
				c.AbortWithStatusJSON(http.StatusInternalServerError, dispatch.Fail(apiErr))
			}
		}()

		c.Next()
	}
}

// clientEntry holds a limiter and its last access time for TTL cleanup.
type clientEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ClientLimiter applies a per-client request rate across all endpoints,
// ahead of the per-endpoint token buckets.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	rps     rate.Limit
	burst   int
	ttl     time.Duration
	stopCh  chan struct{}
	once    sync.Once
	logger  observability.Logger
}

// NewClientLimiter creates a per-client limiter at rps requests per
// second with the given burst.
func NewClientLimiter(rps float64, burst int, logger observability.Logger) *ClientLimiter {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if burst <= 0 {
		burst = 1
	}

	cl := &ClientLimiter{
		clients: make(map[string]*clientEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		ttl:     10 * time.Minute,
		stopCh:  make(chan struct{}),
		logger:  logger,
	}

	go cl.cleanupLoop()
	return cl
}

// Allow reports whether a request from the client is admitted.
func (cl *ClientLimiter) Allow(clientIP string) bool {
	now := time.Now()

	cl.mu.Lock()
	entry, exists := cl.clients[clientIP]
	if !exists {
		entry = &clientEntry{
			limiter:    rate.NewLimiter(cl.rps, cl.burst),
			lastAccess: now,
		}
		cl.clients[clientIP] = entry
	} else {
		entry.lastAccess = now
	}
	limiter := entry.limiter
	cl.mu.Unlock()

	return limiter.Allow()
}

// Stop stops the cleanup goroutine.
func (cl *ClientLimiter) Stop() {
	cl.once.Do(func() {
		close(cl.stopCh)
	})
}

func (cl *ClientLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cl.removeStale()
		case <-cl.stopCh:
			return
		}
	}
}

func (cl *ClientLimiter) removeStale() {
	now := time.Now()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	removed := 0
	for ip, entry := range cl.clients {
		if now.Sub(entry.lastAccess) > cl.ttl {
			delete(cl.clients, ip)
			removed++
		}
	}

	if removed > 0 {
		cl.logger.Debug("cleaned up stale client limiters",
			observability.Int("removed", removed),
			observability.Int("remaining", len(cl.clients)),
		)
	}
}

// GlobalRateLimit returns a middleware rejecting clients that exceed
// the process-wide rate, with the uniform 429 envelope.
func GlobalRateLimit(cl *ClientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cl.Allow(c.ClientIP()) {
			cl.logger.Warn("global rate limit exceeded",
				observability.String("client_ip", c.ClientIP()),
				observability.String("path", c.Request.URL.Path),
			)

			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				dispatch.Fail(apierror.RateLimitExceeded()))
			return
		}

		c.Next()
	}
}
