package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for gate decisions.
type Metrics struct {
	checksTotal *prometheus.CounterVec
	registerer  prometheus.Registerer
}

// NewMetrics creates a new Metrics instance registered with the default
// registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer("", prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Metrics instance with a custom
// registerer. Useful for tests that want a private registry.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "dispatch"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{registerer: registerer}

	m.checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "checks_total",
			Help:      "Total number of credential gate decisions by step",
		},
		[]string{"step", "result"},
	)

	// Ignore duplicate registration, the descriptors are identical.
	_ = m.registerer.Register(m.checksTotal)

	return m
}

// RecordCheck records one gate decision at the given step.
func (m *Metrics) RecordCheck(step, result string) {
	m.checksTotal.WithLabelValues(step, result).Inc()
}
