// Package middleware provides cross-cutting concerns for the bias detection
// engine: Prometheus metrics and OpenTelemetry tracing around scoring and
// analysis.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sotruth/dualtrack/infrastructure/llm"
	"github.com/sotruth/dualtrack/internal/ports"
)

// Metric names understood by PrometheusMetrics.
const (
	MetricScoring                  = "dualtrack_scoring_total"
	MetricAnalysis                 = "dualtrack_analysis_total"
	MetricOperationDuration        = "dualtrack_operation_duration_seconds"
	MetricCorrelation              = "dualtrack_correlation"
	MetricSignificantDiscrepancies = "dualtrack_significant_discrepancies"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It covers scoring and analysis outcomes, per-rubric agreement
// gauges, and the LLM request metrics emitted by llm.MetricsMiddleware.
type PrometheusMetrics struct {
	scoring           *prometheus.CounterVec
	analysis          *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	correlation       *prometheus.GaugeVec
	discrepancies     *prometheus.GaugeVec

	llmRequests *prometheus.CounterVec
	llmTokens   *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec

	breakerState  prometheus.Gauge
	breakerEvents *prometheus.CounterVec

	otherCounters *prometheus.CounterVec
	otherGauges   *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and registers all
// of its collectors with reg. A nil reg uses the default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		scoring: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricScoring,
				Help: "AI scoring runs by outcome.",
			},
			[]string{"outcome"},
		),
		analysis: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricAnalysis,
				Help: "Bias analysis runs by outcome.",
			},
			[]string{"outcome"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricOperationDuration,
				Help:    "Duration of scoring and analysis operations.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"operation"},
		),
		correlation: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricCorrelation,
				Help: "Pearson correlation between human and AI totals from the latest analysis.",
			},
			[]string{"rubric"},
		),
		discrepancies: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricSignificantDiscrepancies,
				Help: "Significant discrepancies found by the latest analysis.",
			},
			[]string{"rubric"},
		),

		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: llm.MetricLLMRequests,
				Help: "LLM requests by provider, model and status.",
			},
			[]string{"provider", "model", "status"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: llm.MetricLLMTokens,
				Help: "Tokens consumed by LLM requests.",
			},
			[]string{"provider", "model", "token_type"},
		),
		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    llm.MetricLLMLatency,
				Help:    "LLM request latency.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"provider", "model", "status"},
		),

		breakerState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "llm_circuit_breaker_state",
				Help: "Circuit breaker state: 0 closed, 1 open, 2 half open.",
			},
		),
		breakerEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_circuit_breaker_events_total",
				Help: "Circuit breaker trips, successes and failures.",
			},
			[]string{"event"},
		),

		otherCounters: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dualtrack_events_total",
				Help: "Counters without a dedicated collector.",
			},
			[]string{"metric"},
		),
		otherGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dualtrack_state",
				Help: "Gauges without a dedicated collector.",
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency records duration under the operation label.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, _ map[string]string) {
	pm.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case MetricScoring:
		pm.scoring.WithLabelValues(label(labels, "outcome")).Add(value)
	case MetricAnalysis:
		pm.analysis.WithLabelValues(label(labels, "outcome")).Add(value)
	case llm.MetricLLMRequests:
		pm.llmRequests.WithLabelValues(
			label(labels, "provider"), label(labels, "model"), label(labels, "status"),
		).Add(value)
	case llm.MetricLLMTokens:
		pm.llmTokens.WithLabelValues(
			label(labels, "provider"), label(labels, "model"), label(labels, "token_type"),
		).Add(value)
	default:
		pm.otherCounters.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	switch metric {
	case MetricCorrelation:
		pm.correlation.WithLabelValues(label(labels, "rubric")).Set(value)
	case MetricSignificantDiscrepancies:
		pm.discrepancies.WithLabelValues(label(labels, "rubric")).Set(value)
	default:
		pm.otherGauges.WithLabelValues(metric).Set(value)
	}
}

// RecordHistogram implements the MetricsCollector interface. Values for
// unknown metrics land in the operation duration histogram keyed by name.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case llm.MetricLLMLatency:
		pm.llmLatency.WithLabelValues(
			label(labels, "provider"), label(labels, "model"), label(labels, "status"),
		).Observe(value)
	default:
		pm.operationDuration.WithLabelValues(metric).Observe(value)
	}
}

// RecordState implements llm.CircuitBreakerMetrics.
func (pm *PrometheusMetrics) RecordState(state llm.CircuitBreakerState) {
	pm.breakerState.Set(float64(state))
}

// RecordTrip, RecordSuccess and RecordFailure count circuit breaker events.
func (pm *PrometheusMetrics) RecordTrip()    { pm.breakerEvents.WithLabelValues("trip").Inc() }
func (pm *PrometheusMetrics) RecordSuccess() { pm.breakerEvents.WithLabelValues("success").Inc() }
func (pm *PrometheusMetrics) RecordFailure() { pm.breakerEvents.WithLabelValues("failure").Inc() }

func label(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return "unknown"
}

var (
	_ ports.MetricsCollector    = (*PrometheusMetrics)(nil)
	_ llm.CircuitBreakerMetrics = (*PrometheusMetrics)(nil)
)
