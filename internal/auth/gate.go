// Package auth implements the credential gate: bearer token extraction,
// principal resolution, second factor verification and role checks.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/avdispatch/internal/observability"
)

// Requirement declares what an endpoint demands from a caller.
type Requirement struct {
	// SecondFactor requires second-factor verification after the
	// principal is resolved.
	SecondFactor bool

	// Roles lists the roles accepted by the endpoint. Empty means any
	// authenticated principal is authorized.
	Roles []string
}

// GateConfig configures the credential gate.
type GateConfig struct {
	// ResolveTimeout bounds a single token resolution call.
	ResolveTimeout time.Duration `yaml:"resolveTimeout"`

	// VerifyTimeout bounds a single second-factor verification call.
	VerifyTimeout time.Duration `yaml:"verifyTimeout"`

	// BreakerThreshold is the request count before the failure ratio
	// is evaluated for tripping the validator circuit breaker.
	BreakerThreshold int `yaml:"breakerThreshold"`

	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration `yaml:"breakerTimeout"`
}

// DefaultGateConfig returns the default gate configuration.
func DefaultGateConfig() *GateConfig {
	return &GateConfig{
		ResolveTimeout:   2 * time.Second,
		VerifyTimeout:    2 * time.Second,
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// Gate runs the per-call credential checks: extract, resolve, second
// factor, authorize. The sequence is linear with no retries; second
// factor is always checked before roles so a caller with insufficient
// roles and no second factor sees the second-factor denial.
type Gate struct {
	validator TokenValidator
	verifier  SecondFactorVerifier
	config    *GateConfig
	breaker   *gobreaker.CircuitBreaker
	logger    observability.Logger
	metrics   *Metrics
}

// GateOption is a functional option for configuring the gate.
type GateOption func(*Gate)

// WithGateLogger sets the logger for the gate.
func WithGateLogger(logger observability.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithGateMetrics sets the metrics for the gate.
func WithGateMetrics(metrics *Metrics) GateOption {
	return func(g *Gate) {
		g.metrics = metrics
	}
}

// WithSecondFactor sets the second-factor verifier.
func WithSecondFactor(verifier SecondFactorVerifier) GateOption {
	return func(g *Gate) {
		g.verifier = verifier
	}
}

// NewGate creates a credential gate over the given token validator.
func NewGate(validator TokenValidator, config *GateConfig, opts ...GateOption) *Gate {
	if config == nil {
		config = DefaultGateConfig()
	}

	g := &Gate{
		validator: validator,
		config:    config,
		logger:    observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.metrics == nil {
		g.metrics = NewMetrics()
	}

	threshold := uint32(config.BreakerThreshold) //nolint:gosec // small configured value
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "credential-validator",
		MaxRequests: threshold,
		Interval:    config.BreakerTimeout,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= threshold && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			g.logger.Info("credential validator breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// Only infrastructure failures count against the breaker.
			// A cleanly rejected token is a healthy validator.
			return err == nil || errors.Is(err, ErrInvalidToken)
		},
	})

	return g
}

// Check runs the gate for one call. The header argument is the raw
// Authorization header (or gRPC metadata) value. On success the
// resolved principal is returned. On second-factor or role denial the
// principal is returned alongside the error so callers can attribute
// the failure in their logs. Errors are the package sentinels,
// possibly wrapped.
func (g *Gate) Check(ctx context.Context, header string, req Requirement) (*Principal, error) {
	token, err := ParseBearer(header)
	if err != nil {
		g.metrics.RecordCheck("extract", "denied")
		return nil, err
	}

	principal, err := g.resolve(ctx, token)
	if err != nil {
		g.metrics.RecordCheck("resolve", "denied")
		return nil, err
	}

	if !principal.Active {
		g.metrics.RecordCheck("resolve", "denied")
		g.logger.Debug("inactive principal rejected",
			observability.String("principal", principal.ID),
		)
		return nil, ErrPrincipalInactive
	}

	if req.SecondFactor {
		if err := g.verifySecondFactor(ctx, principal); err != nil {
			g.metrics.RecordCheck("second_factor", "denied")
			return principal, err
		}
	}

	if len(req.Roles) > 0 && !principal.HasAnyRole(req.Roles...) {
		g.metrics.RecordCheck("authorize", "denied")
		g.logger.Debug("principal lacks required role",
			observability.String("principal", principal.ID),
			observability.Strings("required", req.Roles),
			observability.Strings("held", principal.Roles),
		)
		return principal, ErrInsufficientRole
	}

	g.metrics.RecordCheck("authorize", "allowed")
	return principal, nil
}

// resolve exchanges the token for a principal through the circuit
// breaker, bounded by ResolveTimeout. A hung or unavailable validator
// is reported as an authentication failure, never a silent pass.
func (g *Gate) resolve(ctx context.Context, token string) (*Principal, error) {
	rctx, cancel := context.WithTimeout(ctx, g.config.ResolveTimeout)
	defer cancel()

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.validator.Validate(rctx, token)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			g.logger.Warn("credential validator breaker open")
			return nil, errors.Join(ErrValidatorUnavailable, ErrInvalidToken)
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, errors.Join(ErrValidatorUnavailable, ErrInvalidToken)
		}
		return nil, err
	}

	principal, ok := result.(*Principal)
	if !ok || principal == nil {
		return nil, ErrInvalidToken
	}

	return principal, nil
}

// verifySecondFactor consults the verifier, bounded by VerifyTimeout.
// A missing verifier on an endpoint that demands one is a denial.
func (g *Gate) verifySecondFactor(ctx context.Context, principal *Principal) error {
	if g.verifier == nil {
		return ErrSecondFactorFailed
	}

	vctx, cancel := context.WithTimeout(ctx, g.config.VerifyTimeout)
	defer cancel()

	ok, err := g.verifier.Verify(vctx, principal)
	if err != nil {
		g.logger.Warn("second factor verification errored",
			observability.String("principal", principal.ID),
			observability.Error(err),
		)
		return ErrSecondFactorFailed
	}
	if !ok {
		return ErrSecondFactorFailed
	}

	return nil
}
