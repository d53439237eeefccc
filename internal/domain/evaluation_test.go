package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fourCriteriaRubric() Rubric {
	ids := []string{"story", "vision", "titan", "accomplishments"}
	r := Rubric{ID: 1, Name: "Titan 100", MaxScore: 25}
	for _, id := range ids {
		r.Criteria = append(r.Criteria, Criterion{
			ID:     id,
			Name:   id,
			Weight: 0.25,
			RatingDescriptions: map[RatingScale]string{
				Rating1: "poor", Rating3: "satisfactory", Rating5: "exceptional",
			},
		})
	}
	return r
}

func ptr[T any](v T) *T { return &v }

func TestWeightedTotal(t *testing.T) {
	rubric := fourCriteriaRubric()

	tests := []struct {
		name   string
		scores []CriterionScore
		want   float64
	}{
		{
			name: "all fours with quarter weights",
			scores: []CriterionScore{
				{CriterionID: "story", Score: 4},
				{CriterionID: "vision", Score: 4},
				{CriterionID: "titan", Score: 4},
				{CriterionID: "accomplishments", Score: 4},
			},
			want: 20.0,
		},
		{
			name: "missing criterion contributes zero",
			scores: []CriterionScore{
				{CriterionID: "story", Score: 5},
				{CriterionID: "vision", Score: 3},
			},
			want: 10.0,
		},
		{
			name: "unknown criterion ignored",
			scores: []CriterionScore{
				{CriterionID: "story", Score: 2},
				{CriterionID: "bogus", Score: 5},
			},
			want: 2.5,
		},
		{
			name:   "no scores",
			scores: nil,
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WeightedTotal(&rubric, tt.scores))
		})
	}
}

func TestWeightedTotalRoundsToTwoDecimals(t *testing.T) {
	rubric := Rubric{Criteria: []Criterion{{ID: "a", Name: "a", Weight: 0.1234}}}
	got := WeightedTotal(&rubric, []CriterionScore{{CriterionID: "a", Score: 1}})
	assert.Equal(t, 0.62, got)
}

func TestEvaluationValidate(t *testing.T) {
	valid := func() Evaluation {
		return Evaluation{
			ApplicationID: 5,
			RubricID:      1,
			EvaluatorType: EvaluatorAI,
			EvaluatorName: "scorer",
			CriterionScores: []CriterionScore{
				{CriterionID: "vision", Score: 4, Confidence: ptr(0.9)},
				{CriterionID: "story", Score: 1},
			},
			EvaluatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Evaluation)
		wantErr string
	}{
		{name: "valid", mutate: func(*Evaluation) {}},
		{
			name:    "score above range",
			mutate:  func(e *Evaluation) { e.CriterionScores[0].Score = 6 },
			wantErr: "criterionScores[0].score must be <= 5",
		},
		{
			name:    "score below range",
			mutate:  func(e *Evaluation) { e.CriterionScores[1].Score = 0 },
			wantErr: "criterionScores[1].score must be >= 1",
		},
		{
			name:    "confidence out of range",
			mutate:  func(e *Evaluation) { e.CriterionScores[0].Confidence = ptr(1.5) },
			wantErr: "criterionScores[0].confidence must be <= 1",
		},
		{
			name:    "duplicate criterion id",
			mutate:  func(e *Evaluation) { e.CriterionScores[1].CriterionID = "vision" },
			wantErr: "criterionScores must not contain duplicate CriterionID values",
		},
		{
			name:    "unknown evaluator type",
			mutate:  func(e *Evaluation) { e.EvaluatorType = "robot" },
			wantErr: "evaluatorType must be one of [human ai]",
		},
		{
			name:    "missing timestamp",
			mutate:  func(e *Evaluation) { e.EvaluatedAt = time.Time{} },
			wantErr: "evaluatedAt is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := valid()
			tt.mutate(&eval)

			err := eval.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Contains(t, verr.Error(), tt.wantErr)
		})
	}
}

func TestEvaluationCheckAgainst(t *testing.T) {
	rubric := fourCriteriaRubric()
	eval := Evaluation{CriterionScores: []CriterionScore{
		{CriterionID: "vision", Score: 3},
		{CriterionID: "visoin", Score: 3},
	}}

	err := eval.CheckAgainst(&rubric)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `criterionId "visoin" is not defined by rubric 1`)

	eval.CriterionScores = eval.CriterionScores[:1]
	assert.NoError(t, eval.CheckAgainst(&rubric), "partial coverage is allowed")
}

func TestRound(t *testing.T) {
	assert.Equal(t, -20.0, Round(-20.0, 1))
	assert.Equal(t, 33.3, Round(100.0/3.0, 1))
	assert.Equal(t, 1.67, Round(5.0/3.0, 2))
	assert.Equal(t, 0.577, Round(0.57735, 3))
}
