// Package dispatch routes requests through admission control, the credential
// gate and payload validation before invoking endpoint handlers, and renders
// every outcome into a uniform response envelope.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avdispatch/internal/apierror"
	"github.com/vyrodovalexey/avdispatch/internal/auth"
	"github.com/vyrodovalexey/avdispatch/internal/observability"
	"github.com/vyrodovalexey/avdispatch/internal/schema"
)

// pipelineTracer is the OTEL tracer for dispatch spans.
var pipelineTracer = otel.Tracer("avdispatch/dispatch")

// Pipeline sequences admission control, the credential gate, payload
// validation, and handler invocation around each call, normalizing
// every outcome into the uniform response contract.
type Pipeline struct {
	registry  *Registry
	gate      *auth.Gate
	accessLog AccessLogger
	logger    observability.Logger
	metrics   *Metrics
}

// PipelineOption is a functional option for configuring the pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger for the pipeline.
func WithLogger(logger observability.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithAccessLogger sets the access log sink.
func WithAccessLogger(sink AccessLogger) PipelineOption {
	return func(p *Pipeline) {
		p.accessLog = sink
	}
}

// WithMetrics sets the metrics for the pipeline.
func WithMetrics(metrics *Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = metrics
	}
}

// WithGate sets the credential gate used for endpoints that require
// authentication.
func WithGate(gate *auth.Gate) PipelineOption {
	return func(p *Pipeline) {
		p.gate = gate
	}
}

// NewPipeline creates a dispatch pipeline over the given registry.
func NewPipeline(registry *Registry, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		registry: registry,
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.metrics == nil {
		p.metrics = NewMetrics()
	}
	if p.accessLog == nil {
		p.accessLog = NewLoggerSink(p.logger)
	}

	return p
}

// Dispatch runs one call through the pipeline. It always returns a
// response; errors never escape as panics or raw error values. Exactly
// one access log record is emitted per call, on every exit path.
func (p *Pipeline) Dispatch(ctx context.Context, req *Request) *Response {
	start := time.Now()

	// A missing call context is a programming error. It fails before
	// rate limiting or auth, and still produces one log record.
	if req == nil {
		apiErr := apierror.Internal(errors.New("dispatch called with nil request"))
		p.logFailure(ctx, apiErr, Record{
			Status:   apiErr.Status,
			Duration: time.Since(start),
			Error:    apiErr.Cause().Error(),
		})
		return Fail(apiErr)
	}

	ctx, span := pipelineTracer.Start(ctx, "dispatch "+req.Endpoint,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("dispatch.endpoint", req.Endpoint),
			attribute.String("dispatch.method", req.Method),
		),
	)
	defer span.End()

	record := Record{
		Endpoint: req.Endpoint,
		Method:   req.Method,
	}

	resp := p.run(ctx, req, &record)

	record.Status = resp.Status
	record.Success = resp.Success()
	record.Duration = time.Since(start)
	emit(p.accessLog, record)

	span.SetAttributes(attribute.Int("dispatch.status", resp.Status))
	p.metrics.RecordDispatch(req.Endpoint, resp.Status, record.Duration)

	return resp
}

// run executes the pipeline stages in order: rate limit, credential
// gate, request validation, handler, response validation. The record is
// filled in as facts become known.
func (p *Pipeline) run(ctx context.Context, req *Request, record *Record) *Response {
	reg, ok := p.registry.lookupRegistration(req.Endpoint)
	if !ok {
		apiErr := apierror.Internal(fmt.Errorf("no registration for endpoint %q", req.Endpoint))
		record.Error = apiErr.Cause().Error()
		p.logInternal(ctx, apiErr)
		return Fail(apiErr)
	}
	endpoint := reg.endpoint

	result, err := reg.limiter.Allow(ctx, req.Endpoint)
	if err != nil {
		apiErr := apierror.Internal(fmt.Errorf("rate limiter: %w", err))
		record.Error = apiErr.Cause().Error()
		p.logInternal(ctx, apiErr)
		return Fail(apiErr)
	}
	if !result.Allowed {
		apiErr := apierror.RateLimitExceeded()
		record.Error = apiErr.Detail
		return Fail(apiErr)
	}

	if endpoint.AuthRequired {
		principal, err := p.gateCheck(ctx, req, endpoint)
		if principal != nil {
			record.UserID = principal.ID
		}
		if err != nil {
			apiErr := authError(err)
			record.Error = err.Error()
			return Fail(apiErr)
		}
		ctx = auth.ContextWithPrincipal(ctx, principal)
	}

	if endpoint.RequestSchema != nil {
		validated, err := endpoint.RequestSchema.Validate(req.Payload)
		if err != nil {
			var verr *schema.ValidationError
			if errors.As(err, &verr) {
				record.Error = verr.Error()
				return Fail(apierror.Validation(fieldErrors(verr)))
			}
			apiErr := apierror.Internal(fmt.Errorf("request validation: %w", err))
			record.Error = apiErr.Cause().Error()
			p.logInternal(ctx, apiErr)
			return Fail(apiErr)
		}
		_ = validated
	}

	data, err := p.invoke(ctx, endpoint, req)
	if err != nil {
		apiErr := apierror.FromError(err)
		if cause := apiErr.Cause(); cause != nil {
			record.Error = cause.Error()
			p.logInternal(ctx, apiErr)
		} else {
			record.Error = apiErr.Detail
		}
		return Fail(apiErr)
	}

	// A response shape mismatch is a server defect, not a caller
	// problem. It surfaces as a generic internal error.
	if endpoint.ResponseSchema != nil {
		if payload, ok := data.(map[string]any); ok {
			if _, err := endpoint.ResponseSchema.Validate(payload); err != nil {
				apiErr := apierror.Internal(fmt.Errorf("response validation: %w", err))
				record.Error = apiErr.Cause().Error()
				p.logInternal(ctx, apiErr)
				return Fail(apiErr)
			}
		} else {
			apiErr := apierror.Internal(fmt.Errorf("response payload is %T, not an object", data))
			record.Error = apiErr.Cause().Error()
			p.logInternal(ctx, apiErr)
			return Fail(apiErr)
		}
	}

	return OK(data)
}

// gateCheck runs the credential gate for an auth-required endpoint.
func (p *Pipeline) gateCheck(ctx context.Context, req *Request, endpoint *Endpoint) (*auth.Principal, error) {
	if p.gate == nil {
		return nil, fmt.Errorf("endpoint %q requires auth but no gate is configured: %w",
			endpoint.Route, auth.ErrValidatorUnavailable)
	}
	return p.gate.Check(ctx, req.Authorization(), endpoint.requirement())
}

// invoke calls the handler, converting a panic into an error so one
// misbehaving handler cannot take down the dispatcher.
func (p *Pipeline) invoke(ctx context.Context, endpoint *Endpoint, req *Request) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return endpoint.Handler(ctx, req)
}

// logInternal records the full cause of an internal error server-side,
// keyed by the error ID surfaced to the caller.
func (p *Pipeline) logInternal(ctx context.Context, apiErr *apierror.Error) {
	p.logger.WithContext(ctx).Error("internal dispatch error",
		observability.String("error_id", apiErr.ID),
		observability.Error(apiErr.Cause()),
	)
}

// logFailure emits the access record for failures that occur before a
// request context exists.
func (p *Pipeline) logFailure(ctx context.Context, apiErr *apierror.Error, record Record) {
	p.logInternal(ctx, apiErr)
	emit(p.accessLog, record)
}

// authError maps gate sentinels onto the structured error taxonomy.
// Missing, malformed, or unresolvable credentials are 401; a known but
// insufficiently verified or authorized principal is 403.
func authError(err error) *apierror.Error {
	switch {
	case errors.Is(err, auth.ErrSecondFactorFailed):
		return apierror.Forbidden("Second factor verification required")
	case errors.Is(err, auth.ErrInsufficientRole):
		return apierror.Forbidden("Insufficient permissions")
	case errors.Is(err, auth.ErrNoCredentials):
		return apierror.Unauthenticated("Authentication required")
	case errors.Is(err, auth.ErrMalformedCredentials):
		return apierror.Unauthenticated("Invalid authorization scheme")
	case errors.Is(err, auth.ErrPrincipalInactive):
		return apierror.Unauthenticated("Account disabled")
	default:
		return apierror.Unauthenticated("Invalid credentials")
	}
}

// fieldErrors converts schema field violations to the wire shape.
func fieldErrors(verr *schema.ValidationError) []apierror.FieldError {
	fields := make([]apierror.FieldError, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		fields = append(fields, apierror.FieldError{
			Field:   f.Field,
			Message: f.Message,
		})
	}
	return fields
}
