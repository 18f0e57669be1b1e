package dispatch

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for dispatched calls.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	registerer      prometheus.Registerer
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

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Total number of dispatched calls by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "request_duration_seconds",
			Help:      "Dispatch duration by endpoint",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	for _, c := range []prometheus.Collector{m.requestsTotal, m.requestDuration} {
		// Ignore duplicate registration, the descriptors are identical.
		_ = m.registerer.Register(c)
	}

	return m
}

// RecordDispatch records one completed dispatch.
func (m *Metrics) RecordDispatch(endpoint string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
