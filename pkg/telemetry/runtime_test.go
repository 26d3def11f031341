package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestProvider_RuntimeMetrics(t *testing.T) {
	_, reader := newTestProvider(t, WithRuntimeMetrics())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	gauges := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if g, ok := m.Data.(metricdata.Gauge[int64]); ok && len(g.DataPoints) > 0 {
				gauges[m.Name] = g.DataPoints[0].Value
			}
		}
	}

	assert.Positive(t, gauges["go_goroutines"])
	assert.Positive(t, gauges["go_cpu_count"])
	assert.Positive(t, gauges["go_memory_heap_bytes"])
}

func TestProvider_RuntimeMetricsOptIn(t *testing.T) {
	_, reader := newTestProvider(t)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			assert.NotEqual(t, "go_goroutines", m.Name)
		}
	}
}
