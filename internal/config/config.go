// Package config defines the service configuration schema, its loader
// with environment variable substitution, and a file watcher for hot
// reload.
package config

import (
	"fmt"
	"time"

	"github.com/vyrodovalexey/avdispatch/internal/auth"
	"github.com/vyrodovalexey/avdispatch/internal/observability"
	"github.com/vyrodovalexey/avdispatch/internal/ratelimit/store"
)

// ServiceConfig is the root configuration for the dispatch service.
type ServiceConfig struct {
	Server    ServerConfig               `yaml:"server"`
	Logging   observability.LogConfig    `yaml:"logging"`
	Tracing   observability.TracerConfig `yaml:"tracing"`
	Gate      GateConfig                 `yaml:"gate"`
	RateLimit RateLimitConfig            `yaml:"rateLimit"`
	Endpoints []EndpointConfig           `yaml:"endpoints"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string   `yaml:"address"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`

	// GlobalRateLimit caps requests per second per client across all
	// endpoints, before per-endpoint buckets. Zero disables it.
	GlobalRateLimit float64 `yaml:"globalRateLimit"`
	GlobalBurst     int     `yaml:"globalBurst"`
}

// GateConfig configures the credential gate.
type GateConfig struct {
	ResolveTimeout   Duration `yaml:"resolveTimeout"`
	VerifyTimeout    Duration `yaml:"verifyTimeout"`
	BreakerThreshold int      `yaml:"breakerThreshold"`
	BreakerTimeout   Duration `yaml:"breakerTimeout"`
}

// ToGate converts the section to the gate's own config type, applying
// defaults for unset values.
func (g GateConfig) ToGate() *auth.GateConfig {
	cfg := auth.DefaultGateConfig()
	if g.ResolveTimeout > 0 {
		cfg.ResolveTimeout = g.ResolveTimeout.Duration()
	}
	if g.VerifyTimeout > 0 {
		cfg.VerifyTimeout = g.VerifyTimeout.Duration()
	}
	if g.BreakerThreshold > 0 {
		cfg.BreakerThreshold = g.BreakerThreshold
	}
	if g.BreakerTimeout > 0 {
		cfg.BreakerTimeout = g.BreakerTimeout.Duration()
	}
	return cfg
}

// RateLimitConfig selects the rate limit state backend. The default
// in-memory backend keeps per-endpoint buckets in process memory;
// the redis backend shares counters between replicas.
type RateLimitConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis rate limit backend.
type RedisConfig struct {
	Address      string   `yaml:"address"`
	Password     string   `yaml:"password"`
	DB           int      `yaml:"db"`
	Prefix       string   `yaml:"prefix"`
	DialTimeout  Duration `yaml:"dialTimeout"`
	ReadTimeout  Duration `yaml:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout"`
}

// ToStore converts the section to the store's own config type.
func (r RedisConfig) ToStore() *store.RedisConfig {
	cfg := store.DefaultRedisConfig()
	if r.Address != "" {
		cfg.Address = r.Address
	}
	cfg.Password = r.Password
	cfg.DB = r.DB
	if r.Prefix != "" {
		cfg.Prefix = r.Prefix
	}
	if r.DialTimeout > 0 {
		cfg.DialTimeout = r.DialTimeout.Duration()
	}
	if r.ReadTimeout > 0 {
		cfg.ReadTimeout = r.ReadTimeout.Duration()
	}
	if r.WriteTimeout > 0 {
		cfg.WriteTimeout = r.WriteTimeout.Duration()
	}
	return cfg
}

// EndpointConfig declares one endpoint registration.
type EndpointConfig struct {
	Route         string   `yaml:"route"`
	Methods       []string `yaml:"methods"`
	AuthRequired  bool     `yaml:"authRequired"`
	RequiredRoles []string `yaml:"requiredRoles"`
	SecondFactor  bool     `yaml:"secondFactor"`
	RateLimit     int      `yaml:"rateLimit"`
}

// DefaultConfig returns the default service configuration.
func DefaultConfig() *ServiceConfig {
	return &ServiceConfig{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(10 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Logging: observability.DefaultLogConfig(),
		Tracing: observability.TracerConfig{
			ServiceName:  "avdispatch",
			SamplingRate: 1.0,
		},
		RateLimit: RateLimitConfig{
			Backend: "memory",
		},
	}
}

// Validate checks the configuration for inconsistencies.
func Validate(cfg *ServiceConfig) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}

	switch cfg.RateLimit.Backend {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("rateLimit.backend %q is not supported", cfg.RateLimit.Backend)
	}
	if cfg.RateLimit.Backend == "redis" && cfg.RateLimit.Redis.Address == "" {
		return fmt.Errorf("rateLimit.redis.address is required for the redis backend")
	}

	seen := make(map[string]bool, len(cfg.Endpoints))
	for i, ep := range cfg.Endpoints {
		if ep.Route == "" {
			return fmt.Errorf("endpoints[%d].route is required", i)
		}
		if seen[ep.Route] {
			return fmt.Errorf("endpoints[%d].route %q is duplicated", i, ep.Route)
		}
		seen[ep.Route] = true

		if ep.RateLimit < 0 {
			return fmt.Errorf("endpoints[%d].rateLimit must not be negative", i)
		}
		if len(ep.RequiredRoles) > 0 && !ep.AuthRequired {
			return fmt.Errorf("endpoints[%d] declares requiredRoles without authRequired", i)
		}
		if ep.SecondFactor && !ep.AuthRequired {
			return fmt.Errorf("endpoints[%d] declares secondFactor without authRequired", i)
		}
	}

	return nil
}
