package agents

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sotruth/dualtrack/internal/domain"
	"github.com/sotruth/dualtrack/internal/ports"
	"github.com/sotruth/dualtrack/internal/stats"
)

// analysisResponse is the JSON document the classifier model must return.
// Both keys must be present; empty arrays are allowed.
type analysisResponse struct {
	BiasIndicators  []domain.BiasIndicator `json:"biasIndicators" validate:"required,dive"`
	Recommendations []string               `json:"recommendations" validate:"required,dive,required"`
}

// Classifier interprets the statistics of two evaluation tracks as bias
// indicators and recommendations.
type Classifier struct {
	client ports.LLMClient
	config AgentConfig
	logger *zap.Logger
	now    func() time.Time
}

// ClassifierOption customizes a Classifier.
type ClassifierOption func(*Classifier)

// WithClassifierLogger sets the classifier's logger.
func WithClassifierLogger(l *zap.Logger) ClassifierOption {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClassifierClock sets the clock used for AnalyzedAt.
func WithClassifierClock(now func() time.Time) ClassifierOption {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClassifier creates a Classifier that calls client with config.
func NewClassifier(client ports.LLMClient, config AgentConfig, opts ...ClassifierOption) (*Classifier, error) {
	if client == nil {
		return nil, fmt.Errorf("classifier: LLM client cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	c := &Classifier{
		client: client,
		config: config,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the classifier's agent configuration.
func (c *Classifier) Config() AgentConfig { return c.config }

// AnalyzeBias compares the human and AI tracks for rubric. The correlation,
// average difference and significant discrepancies are computed
// deterministically and are identical for identical inputs whatever the
// model answers; only BiasIndicators and Recommendations come from the
// model.
func (c *Classifier) AnalyzeBias(ctx context.Context, humanEvals, aiEvals []domain.Evaluation, rubric domain.Rubric) (domain.BiasAnalysis, error) {
	summary := stats.Summarize(humanEvals, aiEvals)

	c.logger.Debug("computed track statistics",
		zap.Int64("rubric_id", rubric.ID),
		zap.Int("human_evaluations", len(humanEvals)),
		zap.Int("ai_evaluations", len(aiEvals)),
		zap.Int("discrepancies", len(summary.Discrepancies)),
		zap.Int("significant", len(summary.Significant)),
		zap.Float64("correlation", summary.Correlation))

	prompt, err := buildAnalysisPrompt(rubric.Name, summary)
	if err != nil {
		return domain.BiasAnalysis{}, err
	}

	response, err := query(ctx, c.client, prompt, c.config.ToOptions())
	if err != nil {
		return domain.BiasAnalysis{}, fmt.Errorf("bias analysis LLM call failed (prompt length: %d chars): %w", len(prompt), err)
	}

	var parsed analysisResponse
	if err := parseDocument("bias analysis", response, &parsed); err != nil {
		return domain.BiasAnalysis{}, err
	}
	if err := domain.ValidateStruct("bias analysis response", parsed); err != nil {
		return domain.BiasAnalysis{}, err
	}

	analysis := domain.BiasAnalysis{
		RubricID:                 rubric.ID,
		OverallCorrelation:       summary.RoundedCorrelation(),
		AverageScoreDifference:   summary.AverageDifference,
		SignificantDiscrepancies: summary.Top,
		BiasIndicators:           parsed.BiasIndicators,
		Recommendations:          parsed.Recommendations,
		AnalyzedAt:               c.now(),
	}
	if err := analysis.Validate(); err != nil {
		return domain.BiasAnalysis{}, err
	}
	return analysis, nil
}

// Analyze validates in, applies its application filter and runs
// AnalyzeBias.
func (c *Classifier) Analyze(ctx context.Context, in domain.BiasAnalysisInput) (domain.BiasAnalysis, error) {
	if err := in.Validate(); err != nil {
		return domain.BiasAnalysis{}, err
	}
	humanEvals, aiEvals := in.Filtered()
	return c.AnalyzeBias(ctx, humanEvals, aiEvals, in.Rubric)
}
