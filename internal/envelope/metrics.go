package envelope

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sealsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dispatch",
			Subsystem: "envelope",
			Name:      "seals_total",
			Help:      "Total number of envelope seal operations",
		},
	)

	opensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatch",
			Subsystem: "envelope",
			Name:      "opens_total",
			Help:      "Total number of envelope open operations",
		},
		[]string{"status"},
	)

	payloadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dispatch",
			Subsystem: "envelope",
			Name:      "payload_bytes",
			Help:      "Size of sealed payloads in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		},
	)
)

func recordSeal(payloadLen int) {
	sealsTotal.Inc()
	payloadBytes.Observe(float64(payloadLen))
}

func recordOpen(ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	opensTotal.WithLabelValues(status).Inc()
}
