package domain

import "time"

// Limits on the discrepancy lists produced by an analysis.
const (
	// SignificanceThreshold is the absolute difference a discrepancy must
	// strictly exceed to be significant.
	SignificanceThreshold = 1.0

	// MaxSignificantDiscrepancies bounds BiasAnalysis.SignificantDiscrepancies.
	MaxSignificantDiscrepancies = 50
)

// Severity ranks a bias indicator.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ScoreDiscrepancy is the gap between a human and an AI score on one
// criterion of one application. It is derived on every analysis run and
// never stored as primary data.
type ScoreDiscrepancy struct {
	ApplicationID int64   `json:"applicationId" yaml:"applicationId"`
	CriterionID   string  `json:"criterionId" yaml:"criterionId"`
	HumanScore    float64 `json:"humanScore" yaml:"humanScore"`
	AIScore       float64 `json:"aiScore" yaml:"aiScore"`

	// Difference is HumanScore - AIScore; positive means the human scored higher.
	Difference float64 `json:"difference" yaml:"difference"`

	// PercentDifference is Difference relative to AIScore, in percent,
	// rounded to one decimal.
	PercentDifference float64 `json:"percentDifference" yaml:"percentDifference"`
}

// BiasIndicator is a pattern of disagreement proposed by the classifier.
type BiasIndicator struct {
	// Type is free-form, e.g. "halo_effect" or "leniency_bias".
	Type                 string   `json:"type" yaml:"type" validate:"required"`
	Description          string   `json:"description" yaml:"description" validate:"required"`
	AffectedApplications []int64  `json:"affectedApplications" yaml:"affectedApplications" validate:"required"`
	Severity             Severity `json:"severity" yaml:"severity" validate:"required,oneof=low medium high"`
}

// BiasAnalysis is the outcome of comparing the human and AI tracks.
// OverallCorrelation, AverageScoreDifference and SignificantDiscrepancies
// are computed deterministically; BiasIndicators and Recommendations are
// the model's interpretation of them.
type BiasAnalysis struct {
	// ID identifies the analysis run. Empty when the caller did not assign one.
	ID                       string             `json:"id,omitempty" yaml:"id,omitempty"`
	RubricID                 int64              `json:"rubricId,omitempty" yaml:"rubricId,omitempty"`
	OverallCorrelation       float64            `json:"overallCorrelation" yaml:"overallCorrelation" validate:"gte=-1,lte=1"`
	AverageScoreDifference   float64            `json:"averageScoreDifference" yaml:"averageScoreDifference" validate:"gte=0"`
	SignificantDiscrepancies []ScoreDiscrepancy `json:"significantDiscrepancies" yaml:"significantDiscrepancies" validate:"max=50"`
	BiasIndicators           []BiasIndicator    `json:"biasIndicators" yaml:"biasIndicators" validate:"dive"`
	Recommendations          []string           `json:"recommendations" yaml:"recommendations" validate:"dive,required"`
	AnalyzedAt               time.Time          `json:"analyzedAt" yaml:"analyzedAt" validate:"required"`
}

// Validate checks the analysis against its schema.
func (a *BiasAnalysis) Validate() error {
	return validationErrorFrom("BiasAnalysis", validate.Struct(a))
}

// BiasAnalysisInput is the request to compare both tracks for a rubric.
// When ApplicationIDs is non-empty only evaluations of those applications
// are considered.
type BiasAnalysisInput struct {
	ApplicationIDs   []int64      `json:"applicationIds" yaml:"applicationIds"`
	HumanEvaluations []Evaluation `json:"humanEvaluations" yaml:"humanEvaluations" validate:"dive"`
	AIEvaluations    []Evaluation `json:"aiEvaluations" yaml:"aiEvaluations" validate:"dive"`
	Rubric           Rubric       `json:"rubric" yaml:"rubric"`
}

// Validate checks the input against its schema, including the rubric.
func (in *BiasAnalysisInput) Validate() error {
	if err := in.Rubric.Validate(); err != nil {
		return err
	}
	return validationErrorFrom("BiasAnalysisInput", validate.Struct(in))
}

// Filtered returns the human and AI evaluations restricted to
// ApplicationIDs. With no ids set, both slices are returned unchanged.
func (in *BiasAnalysisInput) Filtered() (human, ai []Evaluation) {
	if len(in.ApplicationIDs) == 0 {
		return in.HumanEvaluations, in.AIEvaluations
	}

	keep := make(map[int64]struct{}, len(in.ApplicationIDs))
	for _, id := range in.ApplicationIDs {
		keep[id] = struct{}{}
	}
	filter := func(evals []Evaluation) []Evaluation {
		out := make([]Evaluation, 0, len(evals))
		for _, e := range evals {
			if _, ok := keep[e.ApplicationID]; ok {
				out = append(out, e)
			}
		}
		return out
	}
	return filter(in.HumanEvaluations), filter(in.AIEvaluations)
}
