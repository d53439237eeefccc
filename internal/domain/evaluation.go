package domain

import (
	"fmt"
	"time"
)

// EvaluatorType distinguishes the two scoring tracks.
type EvaluatorType string

const (
	EvaluatorHuman EvaluatorType = "human"
	EvaluatorAI    EvaluatorType = "ai"
)

// Score bounds for a single criterion.
const (
	MinCriterionScore = 1.0
	MaxCriterionScore = 5.0
)

// DefaultConfidence is assigned to AI criterion scores that omit one.
const DefaultConfidence = 0.8

// CriterionScore is one evaluator's score on one criterion.
type CriterionScore struct {
	CriterionID string  `json:"criterionId" yaml:"criterionId" validate:"required"`
	Score       float64 `json:"score" yaml:"score" validate:"gte=1,lte=5"`
	Evidence    string  `json:"evidence" yaml:"evidence"`
	Reasoning   string  `json:"reasoning" yaml:"reasoning"`

	// Confidence is in [0,1] when present.
	Confidence *float64 `json:"confidence,omitempty" yaml:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// Evaluation is one evaluator's complete set of criterion scores for one
// application. Evaluations are immutable once created; corrections are
// new evaluations.
type Evaluation struct {
	ApplicationID   int64            `json:"applicationId" yaml:"applicationId"`
	RubricID        int64            `json:"rubricId" yaml:"rubricId"`
	EvaluatorType   EvaluatorType    `json:"evaluatorType" yaml:"evaluatorType" validate:"required,oneof=human ai"`
	EvaluatorName   string           `json:"evaluatorName" yaml:"evaluatorName" validate:"required"`
	CriterionScores []CriterionScore `json:"criterionScores" yaml:"criterionScores" validate:"unique=CriterionID,dive"`
	TotalScore      float64          `json:"totalScore" yaml:"totalScore"`
	OverallComments string           `json:"overallComments,omitempty" yaml:"overallComments,omitempty"`
	FlaggedConcerns []string         `json:"flaggedConcerns,omitempty" yaml:"flaggedConcerns,omitempty"`
	EvaluatedAt     time.Time        `json:"evaluatedAt" yaml:"evaluatedAt" validate:"required"`
}

// Validate checks the evaluation against its schema.
func (e *Evaluation) Validate() error {
	return validationErrorFrom("Evaluation", validate.Struct(e))
}

// ScoreFor returns the score recorded for the given criterion.
func (e *Evaluation) ScoreFor(criterionID string) (CriterionScore, bool) {
	for _, cs := range e.CriterionScores {
		if cs.CriterionID == criterionID {
			return cs, true
		}
	}
	return CriterionScore{}, false
}

// CheckAgainst reports criterion scores that reference criteria missing
// from the rubric. Rubric criteria without a score are allowed.
func (e *Evaluation) CheckAgainst(r *Rubric) error {
	verr := NewValidationError("Evaluation")
	for _, cs := range e.CriterionScores {
		if _, ok := r.Criterion(cs.CriterionID); !ok {
			verr.AddError(fmt.Sprintf("criterionId %q is not defined by rubric %d", cs.CriterionID, r.ID))
		}
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// WeightedTotal computes the total score for a set of criterion scores:
// each score is multiplied by weight*5 and the products are summed over
// the rubric's criteria. Criteria without a score contribute 0. The result
// is rounded to two decimals.
//
// Weights are not normalized, so the attainable maximum depends on the
// rubric's total weight.
func WeightedTotal(r *Rubric, scores []CriterionScore) float64 {
	var total float64
	for _, c := range r.Criteria {
		for _, cs := range scores {
			if cs.CriterionID == c.ID {
				total += cs.Score * c.Weight * 5
				break
			}
		}
	}
	return Round(total, 2)
}
