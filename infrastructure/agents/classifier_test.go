package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sotruth/dualtrack/internal/domain"
	"github.com/sotruth/dualtrack/internal/testutils"
)

func newTestClassifier(t *testing.T, client *testutils.MockLLMClient) *Classifier {
	t.Helper()
	c, err := NewClassifier(client, ClassifierConfig(), WithClassifierClock(testutils.FixedClock))
	require.NoError(t, err)
	return c
}

// trackFixture builds three applications where the human judge is
// consistently more lenient on vision.
func trackFixture() (human, ai []domain.Evaluation) {
	for id := int64(1); id <= 3; id++ {
		aiScores := testutils.UniformScores(float64(id + 1))
		humanScores := testutils.UniformScores(float64(id + 1))
		humanScores["vision"] = 5
		if id == 3 {
			humanScores["vision"] = 4
		}
		human = append(human, testutils.HumanEvaluation(id, humanScores))
		ai = append(ai, testutils.AIEvaluation(id, aiScores))
	}
	return human, ai
}

func TestClassifier_AnalyzeBias(t *testing.T) {
	client := testutils.NewMockLLMClient("test-model")
	indicators := []domain.BiasIndicator{{
		Type:                 "leniency_bias",
		Description:          "Judges score vision higher than the rubric supports.",
		AffectedApplications: []int64{1, 2},
		Severity:             domain.SeverityMedium,
	}}
	client.QueueResponses(testutils.AnalysisResponse(indicators, []string{"Recalibrate vision scoring."}))

	human, ai := trackFixture()
	rubric := testutils.TitanRubric()

	analysis, err := newTestClassifier(t, client).AnalyzeBias(context.Background(), human, ai, rubric)
	require.NoError(t, err)

	assert.Equal(t, rubric.ID, analysis.RubricID)
	assert.Equal(t, testutils.FixedTime, analysis.AnalyzedAt)
	assert.Equal(t, indicators, analysis.BiasIndicators)
	assert.Equal(t, []string{"Recalibrate vision scoring."}, analysis.Recommendations)

	// App 1: vision 5 vs 2 (+3). App 2: vision 5 vs 3 (+2). App 3 differs by 0.
	require.Len(t, analysis.SignificantDiscrepancies, 2)
	assert.Equal(t, int64(1), analysis.SignificantDiscrepancies[0].ApplicationID)
	assert.Equal(t, 3.0, analysis.SignificantDiscrepancies[0].Difference)
	assert.Equal(t, 150.0, analysis.SignificantDiscrepancies[0].PercentDifference)
	assert.Equal(t, int64(2), analysis.SignificantDiscrepancies[1].ApplicationID)
	assert.Equal(t, 2.0, analysis.SignificantDiscrepancies[1].Difference)

	// 15 criterion pairs with a total absolute difference of 5.
	assert.Equal(t, 0.33, analysis.AverageScoreDifference)
	assert.GreaterOrEqual(t, analysis.OverallCorrelation, -1.0)
	assert.LessOrEqual(t, analysis.OverallCorrelation, 1.0)

	call, ok := client.LastCall()
	require.True(t, ok)
	assert.Contains(t, call.Prompt, testutils.AnalysisPromptMarker)
	assert.Contains(t, call.Prompt, "- App 1, Criterion vision: Human=5, AI=2, Diff=+3")
	assert.Equal(t, 0.4, call.Options["temperature"])
	assert.Equal(t, 8192, call.Options["max_tokens"])
}

func TestClassifier_AnalyzeBias_NumericFieldsIgnoreNarrative(t *testing.T) {
	human, ai := trackFixture()
	rubric := testutils.TitanRubric()

	narratives := []string{
		testutils.AnalysisResponse(nil, nil),
		testutils.AnalysisResponse([]domain.BiasIndicator{{
			Type:                 "halo_effect",
			Description:          "Everything is biased.",
			AffectedApplications: []int64{1, 2, 3},
			Severity:             domain.SeverityHigh,
		}}, []string{"Start over.", "Hire new judges."}),
	}

	var results []domain.BiasAnalysis
	for _, n := range narratives {
		client := testutils.NewMockLLMClient("test-model")
		client.QueueResponses(n)
		a, err := newTestClassifier(t, client).AnalyzeBias(context.Background(), human, ai, rubric)
		require.NoError(t, err)
		results = append(results, a)
	}

	assert.Equal(t, results[0].OverallCorrelation, results[1].OverallCorrelation)
	assert.Equal(t, results[0].AverageScoreDifference, results[1].AverageScoreDifference)
	assert.Equal(t, results[0].SignificantDiscrepancies, results[1].SignificantDiscrepancies)
	assert.Empty(t, results[0].BiasIndicators)
	assert.Len(t, results[1].BiasIndicators, 1)
}

func TestClassifier_AnalyzeBias_EmptyTracks(t *testing.T) {
	client := testutils.NewMockLLMClient("test-model")

	analysis, err := newTestClassifier(t, client).AnalyzeBias(context.Background(), nil, nil, testutils.TitanRubric())
	require.NoError(t, err)
	assert.Equal(t, 0.0, analysis.OverallCorrelation)
	assert.Equal(t, 0.0, analysis.AverageScoreDifference)
	assert.Empty(t, analysis.SignificantDiscrepancies)
	assert.NotNil(t, analysis.SignificantDiscrepancies)
}

func TestClassifier_AnalyzeBias_Failures(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		wantErrIs error
		wantValid bool
	}{
		{
			name:      "no json block",
			response:  "The judges look fine to me.",
			wantErrIs: domain.ErrNoJSONBlock,
		},
		{
			name:      "missing recommendations key",
			response:  "```json\n{\"biasIndicators\": []}\n```",
			wantValid: true,
		},
		{
			name:      "invalid severity",
			response:  "```json\n{\"biasIndicators\": [{\"type\": \"t\", \"description\": \"d\", \"affectedApplications\": [1], \"severity\": \"critical\"}], \"recommendations\": []}\n```",
			wantValid: true,
		},
		{
			name:      "blank recommendation",
			response:  "```json\n{\"biasIndicators\": [], \"recommendations\": [\"\"]}\n```",
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testutils.NewMockLLMClient("test-model")
			client.QueueResponses(tt.response)
			human, ai := trackFixture()

			_, err := newTestClassifier(t, client).AnalyzeBias(context.Background(), human, ai, testutils.TitanRubric())
			require.Error(t, err)
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				var perr *domain.ParseError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, "bias analysis", perr.Document)
			}
			if tt.wantValid {
				var verr *domain.ValidationError
				assert.ErrorAs(t, err, &verr)
			}
		})
	}
}

func TestClassifier_Analyze_FiltersApplications(t *testing.T) {
	client := testutils.NewMockLLMClient("test-model")
	human, ai := trackFixture()

	analysis, err := newTestClassifier(t, client).Analyze(context.Background(), domain.BiasAnalysisInput{
		ApplicationIDs:   []int64{2, 3},
		HumanEvaluations: human,
		AIEvaluations:    ai,
		Rubric:           testutils.TitanRubric(),
	})
	require.NoError(t, err)
	require.Len(t, analysis.SignificantDiscrepancies, 1)
	assert.Equal(t, int64(2), analysis.SignificantDiscrepancies[0].ApplicationID)

	call, _ := client.LastCall()
	assert.Contains(t, call.Prompt, "**Total Applications Analyzed:** 2")
}

func TestClassifier_Analyze_RejectsEmptyRubric(t *testing.T) {
	client := testutils.NewMockLLMClient("test-model")
	rubric := testutils.TitanRubric()
	rubric.Criteria = nil

	_, err := newTestClassifier(t, client).Analyze(context.Background(), domain.BiasAnalysisInput{Rubric: rubric})
	assert.ErrorIs(t, err, domain.ErrEmptyRubric)
	assert.Empty(t, client.Calls())
}
