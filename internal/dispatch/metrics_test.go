package dispatch

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordDispatch(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m := NewMetricsWithRegisterer("test", registry)

	m.RecordDispatch("/orders", 200, 25*time.Millisecond)
	m.RecordDispatch("/orders", 200, 35*time.Millisecond)
	m.RecordDispatch("/orders", 429, 1*time.Millisecond)

	counter, err := m.requestsTotal.GetMetricWithLabelValues("/orders", "200")
	require.NoError(t, err)

	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	require.NotNil(t, metric.Counter)
	assert.Equal(t, float64(2), *metric.Counter.Value)

	counter, err = m.requestsTotal.GetMetricWithLabelValues("/orders", "429")
	require.NoError(t, err)
	require.NoError(t, counter.Write(metric))
	assert.Equal(t, float64(1), *metric.Counter.Value)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "test_pipeline_requests_total")
	assert.Contains(t, names, "test_pipeline_request_duration_seconds")
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()

	first := NewMetricsWithRegisterer("test", registry)
	second := NewMetricsWithRegisterer("test", registry)

	require.NotNil(t, first)
	require.NotNil(t, second)

	first.RecordDispatch("/a", 200, time.Millisecond)
	second.RecordDispatch("/a", 200, time.Millisecond)
}
