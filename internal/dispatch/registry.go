package dispatch

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vyrodovalexey/avdispatch/internal/ratelimit"
)

// registration pairs an endpoint with its owned rate limiter. Each
// endpoint's bucket is independent; there is no cross-endpoint
// coordination.
type registration struct {
	endpoint *Endpoint
	limiter  ratelimit.Limiter
}

// Registry holds endpoint registrations. It is populated explicitly at
// startup; nothing registers itself as an import side effect.
type Registry struct {
	mu            sync.RWMutex
	registrations map[string]*registration

	// newLimiter builds the limiter for a registration. Overridable so
	// tests can inject a deterministic clock.
	newLimiter func(cfg ratelimit.Config) ratelimit.Limiter
}

// RegistryOption is a functional option for configuring the registry.
type RegistryOption func(*Registry)

// WithLimiterFactory overrides how per-endpoint limiters are built, for
// example to back them with a shared store.
func WithLimiterFactory(factory func(cfg ratelimit.Config) ratelimit.Limiter) RegistryOption {
	return func(r *Registry) {
		r.newLimiter = factory
	}
}

// NewRegistry creates an empty endpoint registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	rlMetrics := ratelimit.NewMetrics("")
	r := &Registry{
		registrations: make(map[string]*registration),
		newLimiter: func(cfg ratelimit.Config) ratelimit.Limiter {
			return ratelimit.NewTokenBucketLimiter(cfg, ratelimit.WithMetrics(rlMetrics))
		},
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an endpoint to the registry and creates its rate
// limiter. Registering a duplicate route or an endpoint without a
// handler is an error.
func (r *Registry) Register(endpoint *Endpoint) error {
	if endpoint == nil {
		return fmt.Errorf("endpoint is nil")
	}
	if endpoint.Route == "" {
		return fmt.Errorf("endpoint route is empty")
	}
	if endpoint.Handler == nil {
		return fmt.Errorf("endpoint %q has no handler", endpoint.Route)
	}
	if endpoint.RateLimit < 0 {
		return fmt.Errorf("endpoint %q has negative rate limit", endpoint.Route)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.registrations[endpoint.Route]; exists {
		return fmt.Errorf("endpoint %q already registered", endpoint.Route)
	}

	var limiter ratelimit.Limiter
	if endpoint.RateLimit > 0 {
		limiter = r.newLimiter(ratelimit.PerMinute(endpoint.RateLimit))
	} else {
		limiter = ratelimit.NewNoopLimiter()
	}

	r.registrations[endpoint.Route] = &registration{
		endpoint: endpoint,
		limiter:  limiter,
	}
	return nil
}

// Lookup returns the registration for a route.
func (r *Registry) Lookup(route string) (*Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.registrations[route]
	if !ok {
		return nil, false
	}
	return reg.endpoint, true
}

// Routes returns the registered route identifiers, sorted.
func (r *Registry) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]string, 0, len(r.registrations))
	for route := range r.registrations {
		routes = append(routes, route)
	}
	sort.Strings(routes)
	return routes
}

// Endpoints returns all registered endpoints in route order.
func (r *Registry) Endpoints() []*Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]string, 0, len(r.registrations))
	for route := range r.registrations {
		routes = append(routes, route)
	}
	sort.Strings(routes)

	endpoints := make([]*Endpoint, 0, len(routes))
	for _, route := range routes {
		endpoints = append(endpoints, r.registrations[route].endpoint)
	}
	return endpoints
}

// Close releases every registration's limiter resources.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range r.registrations {
		_ = reg.limiter.Close()
	}
	return nil
}

// lookupRegistration returns the full registration for internal use by
// the pipeline.
func (r *Registry) lookupRegistration(route string) (*registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.registrations[route]
	return reg, ok
}
