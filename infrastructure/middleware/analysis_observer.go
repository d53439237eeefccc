package middleware

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sotruth/dualtrack/internal/domain"
	"github.com/sotruth/dualtrack/internal/ports"
)

// Span names created by AnalysisObserver.
const (
	SpanScoreApplication = "dualtrack.score_application"
	SpanAnalyzeBias      = "dualtrack.analyze_bias"
)

// Operation labels used for the duration histogram.
const (
	OperationScoring  = "scoring"
	OperationAnalysis = "analysis"
)

// AnalysisObserver wraps scoring and analysis runs in OpenTelemetry spans
// and reports their outcomes to a MetricsCollector.
type AnalysisObserver struct {
	tracer  trace.Tracer
	metrics ports.MetricsCollector
	now     func() time.Time
}

// NewAnalysisObserver uses the global tracer provider. metrics may be nil.
func NewAnalysisObserver(metrics ports.MetricsCollector) *AnalysisObserver {
	return NewAnalysisObserverWithProvider(otel.GetTracerProvider(), metrics)
}

// NewAnalysisObserverWithProvider creates an observer bound to tp.
func NewAnalysisObserverWithProvider(tp trace.TracerProvider, metrics ports.MetricsCollector) *AnalysisObserver {
	return &AnalysisObserver{
		tracer:  tp.Tracer("dualtrack"),
		metrics: metrics,
		now:     time.Now,
	}
}

// ObserveScoring runs fn inside a scoring span.
func (o *AnalysisObserver) ObserveScoring(
	ctx context.Context,
	applicationID, rubricID int64,
	fn func(context.Context) (domain.Evaluation, error),
) (domain.Evaluation, error) {
	ctx, span := o.tracer.Start(ctx, SpanScoreApplication, trace.WithAttributes(
		attribute.Int64("dualtrack.application_id", applicationID),
		attribute.Int64("dualtrack.rubric_id", rubricID),
	))
	defer span.End()

	start := o.now()
	eval, err := fn(ctx)
	o.record(OperationScoring, MetricScoring, start, err)

	if err != nil {
		o.fail(span, err)
		return eval, err
	}

	span.SetAttributes(
		attribute.Float64("dualtrack.total_score", eval.TotalScore),
		attribute.Int("dualtrack.criteria_scored", len(eval.CriterionScores)),
		attribute.String("dualtrack.evaluator", eval.EvaluatorName),
	)
	if len(eval.FlaggedConcerns) > 0 {
		span.AddEvent("dualtrack.concerns_flagged", trace.WithAttributes(
			attribute.StringSlice("concerns", eval.FlaggedConcerns),
		))
	}
	span.SetStatus(codes.Ok, "")
	return eval, nil
}

// ObserveAnalysis runs fn inside an analysis span and publishes the
// resulting correlation and discrepancy count as per-rubric gauges.
func (o *AnalysisObserver) ObserveAnalysis(
	ctx context.Context,
	rubricID int64,
	fn func(context.Context) (domain.BiasAnalysis, error),
) (domain.BiasAnalysis, error) {
	ctx, span := o.tracer.Start(ctx, SpanAnalyzeBias, trace.WithAttributes(
		attribute.Int64("dualtrack.rubric_id", rubricID),
	))
	defer span.End()

	start := o.now()
	analysis, err := fn(ctx)
	o.record(OperationAnalysis, MetricAnalysis, start, err)

	if err != nil {
		o.fail(span, err)
		return analysis, err
	}

	span.SetAttributes(
		attribute.String("dualtrack.analysis_id", analysis.ID),
		attribute.Float64("dualtrack.correlation", analysis.OverallCorrelation),
		attribute.Float64("dualtrack.average_difference", analysis.AverageScoreDifference),
		attribute.Int("dualtrack.significant_discrepancies", len(analysis.SignificantDiscrepancies)),
		attribute.Int("dualtrack.bias_indicators", len(analysis.BiasIndicators)),
	)
	for _, ind := range analysis.BiasIndicators {
		if ind.Severity == domain.SeverityHigh {
			span.AddEvent("dualtrack.high_severity_bias", trace.WithAttributes(
				attribute.String("type", ind.Type),
				attribute.Int("affected", len(ind.AffectedApplications)),
			))
		}
	}

	if o.metrics != nil {
		labels := map[string]string{"rubric": strconv.FormatInt(rubricID, 10)}
		o.metrics.RecordGauge(MetricCorrelation, analysis.OverallCorrelation, labels)
		o.metrics.RecordGauge(MetricSignificantDiscrepancies, float64(len(analysis.SignificantDiscrepancies)), labels)
	}
	span.SetStatus(codes.Ok, "")
	return analysis, nil
}

func (o *AnalysisObserver) record(operation, counter string, start time.Time, err error) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordLatency(operation, o.now().Sub(start), map[string]string{"operation": operation})
	o.metrics.RecordCounter(counter, 1, map[string]string{"outcome": outcome(err)})
}

func (o *AnalysisObserver) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// outcome buckets err into a low-cardinality label.
func outcome(err error) string {
	var (
		parseErr      *domain.ParseError
		validationErr *domain.ValidationError
	)
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &parseErr):
		return "parse_error"
	case errors.As(err, &validationErr):
		return "validation_error"
	default:
		return "error"
	}
}
