package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewEngineMetrics("test_engine", reg)
	assert.NotNil(t, metrics)

	// Test counter operations
	metrics.Attempts.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Attempts))

	metrics.Failures.WithLabelValues("venue").Inc()
	metrics.Failures.WithLabelValues("venue").Inc()
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.Failures.WithLabelValues("venue")))

	metrics.Profit.Add(5_500000)
	assert.Equal(t, float64(5_500000), testutil.ToFloat64(metrics.Profit))

	// Histograms expose their sample count
	metrics.DeviationBps.Observe(100)
	var m dto.Metric
	require.NoError(t, metrics.DeviationBps.Write(&m))
	assert.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())

	count, err := testutil.GatherAndCount(reg, "test_engine_arbitrage_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEngineMetricsUnregistered(t *testing.T) {
	a := NewEngineMetrics("dup", nil)
	b := NewEngineMetrics("dup", nil)
	a.Attempts.Inc()
	assert.Equal(t, float64(0), testutil.ToFloat64(b.Attempts))
}
