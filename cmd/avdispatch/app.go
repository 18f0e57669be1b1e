package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vyrodovalexey/avdispatch/internal/auth"
	"github.com/vyrodovalexey/avdispatch/internal/config"
	"github.com/vyrodovalexey/avdispatch/internal/dispatch"
	"github.com/vyrodovalexey/avdispatch/internal/envelope"
	"github.com/vyrodovalexey/avdispatch/internal/insight"
	"github.com/vyrodovalexey/avdispatch/internal/observability"
	"github.com/vyrodovalexey/avdispatch/internal/ratelimit"
	"github.com/vyrodovalexey/avdispatch/internal/ratelimit/store"
	"github.com/vyrodovalexey/avdispatch/internal/server"
)

// application holds the assembled service.
type application struct {
	cfg      *config.ServiceConfig
	logger   observability.Logger
	tracer   *observability.Tracer
	registry *dispatch.Registry
	server   *server.Server
	rlStore  store.Store
}

// newApplication wires configuration into a runnable service.
func newApplication(cfg *config.ServiceConfig, logger observability.Logger) (*application, error) {
	tracer, err := observability.NewTracer(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	app := &application{
		cfg:    cfg,
		logger: logger,
		tracer: tracer,
	}

	registry, err := app.buildRegistry()
	if err != nil {
		return nil, err
	}
	app.registry = registry

	gate := buildGate(cfg, logger)

	pipeline := dispatch.NewPipeline(registry,
		dispatch.WithGate(gate),
		dispatch.WithLogger(logger),
		dispatch.WithAccessLogger(dispatch.NewLoggerSink(logger)),
	)

	app.server = server.NewServer(cfg.Server, registry, pipeline,
		server.WithServerLogger(logger))

	return app, nil
}

// buildRegistry creates the endpoint registry, selecting the rate limit
// backend and registering the configured endpoints plus the built-in
// insight endpoint.
func (a *application) buildRegistry() (*dispatch.Registry, error) {
	var opts []dispatch.RegistryOption

	if a.cfg.RateLimit.Backend == "redis" {
		redisStore, err := store.NewRedisStore(a.cfg.RateLimit.Redis.ToStore())
		if err != nil {
			return nil, fmt.Errorf("failed to connect rate limit store: %w", err)
		}
		a.rlStore = redisStore

		logger := a.logger
		rlMetrics := ratelimit.NewMetrics("")
		opts = append(opts, dispatch.WithLimiterFactory(
			func(cfg ratelimit.Config) ratelimit.Limiter {
				return ratelimit.NewDistributedLimiter(cfg, redisStore, logger,
					ratelimit.WithDistributedMetrics(rlMetrics))
			}))
	}

	registry := dispatch.NewRegistry(opts...)

	if err := registry.Register(insightEndpoint()); err != nil {
		return nil, err
	}

	for _, ep := range a.cfg.Endpoints {
		spec := ep
		err := registry.Register(&dispatch.Endpoint{
			Route:         spec.Route,
			Methods:       spec.Methods,
			AuthRequired:  spec.AuthRequired,
			RequiredRoles: spec.RequiredRoles,
			SecondFactor:  spec.SecondFactor,
			RateLimit:     spec.RateLimit,
			Handler:       insightHandler,
		})
		if err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// buildGate assembles the credential gate. Demo tokens come from the
// environment so no secret is baked into the binary.
func buildGate(cfg *config.ServiceConfig, logger observability.Logger) *auth.Gate {
	validator := auth.NewStaticValidator()
	if token := os.Getenv("AVDISPATCH_ADMIN_TOKEN"); token != "" {
		validator.Register(token, &auth.Principal{
			ID:     "admin",
			Name:   "Administrator",
			Active: true,
			Roles:  []string{"admin"},
		})
	}

	verifier := auth.NewBcryptSecondFactor(auth.ContextSecretSource)
	if secret := os.Getenv("AVDISPATCH_ADMIN_SECOND_FACTOR"); secret != "" {
		if err := verifier.Enroll("admin", secret); err != nil {
			logger.Warn("failed to enroll second factor", observability.Error(err))
		}
	}

	return auth.NewGate(validator, cfg.Gate.ToGate(),
		auth.WithGateLogger(logger),
		auth.WithSecondFactor(verifier),
	)
}

// insightEndpoint is the built-in demo registration.
func insightEndpoint() *dispatch.Endpoint {
	return &dispatch.Endpoint{
		Route:        "/secure_ai",
		Methods:      []string{"POST"},
		AuthRequired: true,
		RateLimit:    60,
		Handler:      insightHandler,
	}
}

// insightHandler runs the protected analysis flow: the user payload is
// sealed under a fresh ephemeral key, a prediction is derived from the
// sealed bytes, synthesized into an insight, and the insight travels
// sealed under the same key until it is opened for the response. The
// key never outlives the call.
func insightHandler(ctx context.Context, req *dispatch.Request) (any, error) {
	raw, ok := req.Payload["data"].(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("missing 'data' in the request payload")
	}

	key, err := envelope.NewKey()
	if err != nil {
		return nil, err
	}
	defer envelope.Zero(key)

	sealed, err := envelope.Seal([]byte(raw), key)
	if err != nil {
		return nil, err
	}

	prediction := insight.Predict([]byte(sealed))

	seed, err := insight.NewSeed()
	if err != nil {
		return nil, err
	}
	synthesized := insight.Synthesize(prediction, seed)

	sealedInsight, err := envelope.Seal([]byte(synthesized), key)
	if err != nil {
		return nil, err
	}

	opened, err := envelope.Open(sealedInsight, key)
	if err != nil {
		return nil, err
	}

	return map[string]any{"insights": string(opened)}, nil
}

// Start runs the HTTP server. It blocks until failure or shutdown.
func (a *application) Start() error {
	return a.server.Start()
}

// Shutdown stops the server and releases resources.
func (a *application) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(),
		a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	err := a.server.Shutdown(ctx)

	_ = a.registry.Close()
	if a.rlStore != nil {
		_ = a.rlStore.Close()
	}
	if a.tracer != nil {
		_ = a.tracer.Shutdown(ctx)
	}

	return err
}
