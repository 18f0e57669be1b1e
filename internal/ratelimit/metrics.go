package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for admission control.
type Metrics struct {
	decisionsTotal *prometheus.CounterVec
	registerer     prometheus.Registerer
}

// NewMetrics creates a new Metrics instance registered with the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Metrics instance with a custom
// registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "dispatch"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{registerer: registerer}

	m.decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Total number of admission decisions",
		},
		[]string{"endpoint", "decision"},
	)

	_ = m.registerer.Register(m.decisionsTotal)

	return m
}

// RecordDecision records one admission decision for an endpoint.
func (m *Metrics) RecordDecision(endpoint string, allowed bool) {
	decision := "allowed"
	if !allowed {
		decision = "rejected"
	}
	m.decisionsTotal.WithLabelValues(endpoint, decision).Inc()
}
