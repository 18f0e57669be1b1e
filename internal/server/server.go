// Package server exposes the dispatch pipeline over HTTP. It adapts
// registered endpoints onto a gin engine and owns the listener
// lifecycle.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/avdispatch/internal/apierror"
	"github.com/vyrodovalexey/avdispatch/internal/auth"
	"github.com/vyrodovalexey/avdispatch/internal/config"
	"github.com/vyrodovalexey/avdispatch/internal/dispatch"
	"github.com/vyrodovalexey/avdispatch/internal/observability"
)

// ginModeOnce ensures gin.SetMode is only called once.
var ginModeOnce sync.Once

// Server is the HTTP front of the dispatch pipeline.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	pipeline   *dispatch.Pipeline
	registry   *dispatch.Registry
	logger     observability.Logger
	config     config.ServerConfig

	mu      sync.Mutex
	running bool
}

// ServerOption is a functional option for configuring the server.
type ServerOption func(*Server)

// WithServerLogger sets the logger for the server.
func WithServerLogger(logger observability.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates an HTTP server exposing every endpoint in the
// registry through the pipeline.
func NewServer(
	cfg config.ServerConfig,
	registry *dispatch.Registry,
	pipeline *dispatch.Pipeline,
	opts ...ServerOption,
) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		engine:   gin.New(),
		pipeline: pipeline,
		registry: registry,
		logger:   observability.NopLogger(),
		config:   cfg,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.engine.Use(RequestID())
	s.engine.Use(Recovery(s.logger))

	if cfg.GlobalRateLimit > 0 {
		cl := NewClientLimiter(cfg.GlobalRateLimit, cfg.GlobalBurst, s.logger)
		s.engine.Use(GlobalRateLimit(cl))
	}

	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.mountEndpoints()

	return s
}

// Engine returns the underlying gin engine. Used by tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// mountEndpoints registers one gin route per endpoint method pair.
func (s *Server) mountEndpoints() {
	for _, endpoint := range s.registry.Endpoints() {
		methods := endpoint.Methods
		if len(methods) == 0 {
			methods = []string{http.MethodPost}
		}
		for _, method := range methods {
			s.engine.Handle(method, endpoint.Route, s.handle(endpoint.Route))
		}
	}
}

// handle adapts one inbound HTTP call into a pipeline dispatch.
func (s *Server) handle(route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := decodePayload(c)
		if err != nil {
			apiErr := apierror.Validation([]apierror.FieldError{
				{Field: "_payload", Message: err.Error()},
			})
			c.JSON(apiErr.Status, dispatch.Fail(apiErr))
			return
		}

		req := &dispatch.Request{
			Endpoint:   route,
			Method:     c.Request.Method,
			Payload:    payload,
			RemoteAddr: c.ClientIP(),
			Metadata: map[string]string{
				"Authorization": c.GetHeader("Authorization"),
			},
		}
		ctx := c.Request.Context()
		if secret := c.GetHeader("X-Second-Factor"); secret != "" {
			req.Metadata["X-Second-Factor"] = secret
			ctx = auth.ContextWithSecondFactorSecret(ctx, secret)
		}

		resp := s.pipeline.Dispatch(ctx, req)
		c.JSON(resp.Status, resp)
	}
}

// decodePayload reads the request body as a JSON object. An empty body
// yields a nil payload; a malformed body is a caller error.
func decodePayload(c *gin.Context) (map[string]any, error) {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil, nil
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) == 0 {
		return nil, nil
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("body is not a JSON object")
	}
	return payload, nil
}

// Start begins serving. It blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true

	s.httpServer = &http.Server{
		Addr:         s.config.Address,
		Handler:      s.engine,
		ReadTimeout:  s.config.ReadTimeout.Duration(),
		WriteTimeout: s.config.WriteTimeout.Duration(),
	}
	s.mu.Unlock()

	s.logger.Info("http server listening",
		observability.String("address", s.config.Address),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.httpServer == nil {
		return nil
	}
	s.running = false

	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
