package middleware

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sotruth/dualtrack/infrastructure/llm"
)

func newTestMetrics(t *testing.T) (*PrometheusMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewPrometheusMetrics(reg), reg
}

func TestPrometheusMetrics_Counters(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.RecordCounter(MetricScoring, 1, map[string]string{"outcome": "success"})
	pm.RecordCounter(MetricScoring, 1, map[string]string{"outcome": "success"})
	pm.RecordCounter(MetricScoring, 1, map[string]string{"outcome": "parse_error"})
	pm.RecordCounter(MetricAnalysis, 1, nil)
	pm.RecordCounter(llm.MetricLLMRequests, 1, map[string]string{"provider": "anthropic", "model": "m", "status": "success"})
	pm.RecordCounter(llm.MetricLLMTokens, 42, map[string]string{"provider": "anthropic", "model": "m", "token_type": "input"})
	pm.RecordCounter("cache_hits", 3, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.scoring.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.scoring.WithLabelValues("parse_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.analysis.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.llmRequests.WithLabelValues("anthropic", "m", "success")))
	assert.Equal(t, 42.0, testutil.ToFloat64(pm.llmTokens.WithLabelValues("anthropic", "m", "input")))
	assert.Equal(t, 3.0, testutil.ToFloat64(pm.otherCounters.WithLabelValues("cache_hits")))
}

func TestPrometheusMetrics_Gauges(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.RecordGauge(MetricCorrelation, 0.42, map[string]string{"rubric": "7"})
	pm.RecordGauge(MetricCorrelation, 0.81, map[string]string{"rubric": "7"})
	pm.RecordGauge(MetricSignificantDiscrepancies, 12, map[string]string{"rubric": "7"})
	pm.RecordGauge("queue_depth", 5, nil)

	assert.Equal(t, 0.81, testutil.ToFloat64(pm.correlation.WithLabelValues("7")))
	assert.Equal(t, 12.0, testutil.ToFloat64(pm.discrepancies.WithLabelValues("7")))
	assert.Equal(t, 5.0, testutil.ToFloat64(pm.otherGauges.WithLabelValues("queue_depth")))
}

func TestPrometheusMetrics_Histograms(t *testing.T) {
	pm, reg := newTestMetrics(t)

	pm.RecordLatency(OperationScoring, 250*time.Millisecond, nil)
	pm.RecordHistogram(llm.MetricLLMLatency, 1.5, map[string]string{"provider": "openai", "model": "gpt-4.1", "status": "success"})

	assert.Equal(t, 1, testutil.CollectAndCount(pm.operationDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.llmLatency))

	expected := `
# HELP dualtrack_scoring_total AI scoring runs by outcome.
# TYPE dualtrack_scoring_total counter
dualtrack_scoring_total{outcome="success"} 1
`
	pm.RecordCounter(MetricScoring, 1, map[string]string{"outcome": "success"})
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), MetricScoring))
}

func TestPrometheusMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheusMetrics(prometheus.NewRegistry())
		NewPrometheusMetrics(prometheus.NewRegistry())
	})

	reg := prometheus.NewRegistry()
	NewPrometheusMetrics(reg)
	assert.Panics(t, func() { NewPrometheusMetrics(reg) })
}

func TestPrometheusMetrics_CircuitBreaker(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.RecordState(llm.StateOpen)
	pm.RecordTrip()
	pm.RecordFailure()
	pm.RecordFailure()
	pm.RecordSuccess()

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.breakerState))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.breakerEvents.WithLabelValues("trip")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.breakerEvents.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.breakerEvents.WithLabelValues("success")))
}
