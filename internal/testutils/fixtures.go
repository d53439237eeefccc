package testutils

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sotruth/dualtrack/internal/domain"
)

// FixedTime is the clock value used by fixtures and injected clocks.
var FixedTime = time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

// FixedClock returns FixedTime.
func FixedClock() time.Time { return FixedTime }

// TitanRubric returns a five-criterion rubric with equal weights of 0.2,
// so the weighted total of a set of scores equals their sum.
func TitanRubric() domain.Rubric {
	passing := 15.0
	criterion := func(id, name, desc string) domain.Criterion {
		return domain.Criterion{
			ID:          id,
			Name:        name,
			Description: desc,
			Weight:      0.2,
			RatingDescriptions: map[domain.RatingScale]string{
				domain.Rating1: "Poor: little or no evidence",
				domain.Rating2: "Fair: limited evidence",
				domain.Rating3: "Good: adequate evidence",
				domain.Rating4: "Very good: strong evidence",
				domain.Rating5: "Excellent: exceptional evidence",
			},
		}
	}
	return domain.Rubric{
		ID:           1,
		Name:         "Titan 100",
		Description:  "Recognizes the top 100 CEOs and C-level executives in each region",
		MaxScore:     25,
		PassingScore: &passing,
		Criteria: []domain.Criterion{
			criterion("vision", "Company Vision", "Clarity and ambition of the company's vision"),
			criterion("leadership", "Leadership", "Evidence of executive leadership and team building"),
			criterion("innovation", "Innovation", "Novel products, processes or business models"),
			criterion("growth", "Growth", "Revenue and market growth over recent years"),
			criterion("community", "Community Impact", "Contribution to employees and community"),
		},
	}
}

// TitanCriterionIDs lists the Titan rubric's criterion ids in order.
var TitanCriterionIDs = []string{"vision", "leadership", "innovation", "growth", "community"}

// SampleApplication returns an eligible application with id 101.
func SampleApplication() domain.ApplicationSubmission {
	revenue := 12_500_000.0
	return domain.ApplicationSubmission{
		ID:             101,
		ApplicantID:    7,
		OrganizationID: 3,
		Responses: map[string]string{
			"q1_vision":     "We are building the default logistics layer for regional grocers.",
			"q2_leadership": "I grew the executive team from two to eleven people in three years.",
			"q3_innovation": "Our routing engine cut spoilage by 18 percent.",
		},
		CompanyInfo: domain.CompanyInfo{
			Name:        "Fresh Route Inc.",
			Website:     "https://freshroute.example.com",
			YearFounded: 2016,
			Revenue:     &revenue,
			Industry:    "Logistics",
		},
		ApplicantInfo: domain.ApplicantInfo{
			FirstName: "Dana",
			LastName:  "Okafor",
			Title:     "CEO & Founder",
			Email:     "dana@freshroute.example.com",
		},
	}
}

// ScoringInput pairs SampleApplication with TitanRubric under the given
// application id.
func ScoringInput(applicationID int64) domain.ScoringInput {
	app := SampleApplication()
	app.ID = applicationID
	rubric := TitanRubric()
	return domain.ScoringInput{
		ApplicationID: applicationID,
		RubricID:      rubric.ID,
		Application:   app,
		Rubric:        rubric,
	}
}

// DefaultTitanScores scores every Titan criterion 4.
func DefaultTitanScores() map[string]float64 {
	out := make(map[string]float64, len(TitanCriterionIDs))
	for _, id := range TitanCriterionIDs {
		out[id] = 4
	}
	return out
}

// NewEvaluation builds a valid evaluation. Criterion scores follow the
// order of TitanCriterionIDs, then any other ids in scores sorted by name;
// the total is the weighted total under TitanRubric.
func NewEvaluation(appID int64, evaluatorType domain.EvaluatorType, scores map[string]float64) domain.Evaluation {
	rubric := TitanRubric()
	var cs []domain.CriterionScore
	for _, id := range orderedIDs(scores) {
		cs = append(cs, domain.CriterionScore{
			CriterionID: id,
			Score:       scores[id],
			Evidence:    "evidence for " + id,
			Reasoning:   "reasoning for " + id,
		})
	}
	name := "Judge A"
	if evaluatorType == domain.EvaluatorAI {
		name = "SoTruth AI Scoring Agent"
	}
	return domain.Evaluation{
		ApplicationID:   appID,
		RubricID:        rubric.ID,
		EvaluatorType:   evaluatorType,
		EvaluatorName:   name,
		CriterionScores: cs,
		TotalScore:      domain.WeightedTotal(&rubric, cs),
		FlaggedConcerns: []string{},
		EvaluatedAt:     FixedTime,
	}
}

// HumanEvaluation builds a human evaluation.
func HumanEvaluation(appID int64, scores map[string]float64) domain.Evaluation {
	return NewEvaluation(appID, domain.EvaluatorHuman, scores)
}

// AIEvaluation builds an AI evaluation.
func AIEvaluation(appID int64, scores map[string]float64) domain.Evaluation {
	return NewEvaluation(appID, domain.EvaluatorAI, scores)
}

// UniformScores scores every Titan criterion v.
func UniformScores(v float64) map[string]float64 {
	out := make(map[string]float64, len(TitanCriterionIDs))
	for _, id := range TitanCriterionIDs {
		out[id] = v
	}
	return out
}

func orderedIDs(scores map[string]float64) []string {
	var ids []string
	seen := make(map[string]bool, len(scores))
	for _, id := range TitanCriterionIDs {
		if _, ok := scores[id]; ok {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	var extra []string
	for id := range scores {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	slices.Sort(extra)
	return append(ids, extra...)
}

// ScoringResponse renders a model response carrying a fenced scoring
// document with the given per-criterion scores.
func ScoringResponse(scores map[string]float64) string {
	type item struct {
		CriterionID string  `json:"criterionId"`
		Score       float64 `json:"score"`
		Evidence    string  `json:"evidence"`
		Reasoning   string  `json:"reasoning"`
		Confidence  float64 `json:"confidence"`
	}
	doc := struct {
		CriterionScores []item   `json:"criterionScores"`
		TotalScore      float64  `json:"totalScore"`
		OverallComments string   `json:"overallComments"`
		FlaggedConcerns []string `json:"flaggedConcerns"`
	}{
		OverallComments: "Strong application overall.",
		FlaggedConcerns: []string{},
	}
	for _, id := range orderedIDs(scores) {
		doc.CriterionScores = append(doc.CriterionScores, item{
			CriterionID: id,
			Score:       scores[id],
			Evidence:    "The applicant states relevant facts.",
			Reasoning:   "Matches the rubric description for this rating.",
			Confidence:  0.9,
		})
		doc.TotalScore += scores[id]
	}
	return FencedJSON("Here is my evaluation.", doc)
}

// AnalysisResponse renders a model response carrying a fenced analysis
// document. Nil slices are rendered as empty arrays.
func AnalysisResponse(indicators []domain.BiasIndicator, recommendations []string) string {
	if indicators == nil {
		indicators = []domain.BiasIndicator{}
	}
	if recommendations == nil {
		recommendations = []string{}
	}
	doc := map[string]any{
		"biasIndicators":  indicators,
		"recommendations": recommendations,
	}
	return FencedJSON("Analysis complete.", doc)
}

// FencedJSON wraps v, marshaled as indented JSON, in a ```json block after
// a line of prose.
func FencedJSON(preamble string, v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("testutils: marshal fixture: %v", err))
	}
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\n```json\n")
	b.Write(raw)
	b.WriteString("\n```\n")
	return b.String()
}
