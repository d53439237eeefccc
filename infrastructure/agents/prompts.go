package agents

import (
	"bytes"
	"embed"
	"fmt"
	"math"
	"strconv"
	"text/template"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sotruth/dualtrack/internal/domain"
	"github.com/sotruth/dualtrack/internal/stats"
)

// MaxPromptDiscrepancies bounds the discrepancy lines listed in the
// analysis prompt.
const MaxPromptDiscrepancies = 20

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.New("prompts").Funcs(template.FuncMap{
	"num":    formatNumber,
	"signed": formatSigned,
}).ParseFS(promptFS, "prompts/*.tmpl"))

// formatNumber renders a score without trailing zeros: 4, 4.5, 0.25.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatSigned renders a difference with an explicit plus sign when positive.
func formatSigned(v float64) string {
	if v > 0 {
		return "+" + formatNumber(v)
	}
	return formatNumber(v)
}

// revenuePrinter formats revenue with thousands separators.
var revenuePrinter = message.NewPrinter(language.English)

func formatRevenue(v float64) string {
	if v == math.Trunc(v) {
		return revenuePrinter.Sprintf("%d", int64(v))
	}
	return revenuePrinter.Sprintf("%.2f", v)
}

type promptResponse struct {
	QuestionID string
	Text       string
}

type promptCriterion struct {
	ID          string
	Name        string
	Description string
	Weight      string
	Ratings     []domain.RatingEntry
}

type scoringPromptData struct {
	RubricName        string
	RubricDescription string
	MaxScore          string
	PassingScore      string
	Criteria          []promptCriterion

	ApplicantName  string
	ApplicantTitle string
	CompanyName    string
	Industry       string
	YearFounded    int
	Revenue        string
	Responses      []promptResponse
}

// buildScoringPrompt renders the scoring prompt: application facts, every
// response in question-id order, and the full rubric with all rating
// descriptions.
func buildScoringPrompt(app *domain.ApplicationSubmission, rubric *domain.Rubric) (string, error) {
	data := scoringPromptData{
		RubricName:        rubric.Name,
		RubricDescription: rubric.Description,
		MaxScore:          formatNumber(rubric.MaxScore),
		ApplicantName:     app.ApplicantInfo.FullName(),
		ApplicantTitle:    app.ApplicantInfo.Title,
		CompanyName:       app.CompanyInfo.Name,
		Industry:          app.CompanyInfo.Industry,
		YearFounded:       app.CompanyInfo.YearFounded,
	}
	if data.Industry == "" {
		data.Industry = "Not specified"
	}
	if rubric.PassingScore != nil {
		data.PassingScore = formatNumber(*rubric.PassingScore)
	}
	if app.CompanyInfo.Revenue != nil && *app.CompanyInfo.Revenue > 0 {
		data.Revenue = formatRevenue(*app.CompanyInfo.Revenue)
	}
	for _, id := range app.QuestionIDs() {
		data.Responses = append(data.Responses, promptResponse{QuestionID: id, Text: app.Responses[id]})
	}
	for _, c := range rubric.Criteria {
		data.Criteria = append(data.Criteria, promptCriterion{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Weight:      formatNumber(c.Weight),
			Ratings:     c.SortedRatings(),
		})
	}

	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, "scoring.tmpl", data); err != nil {
		return "", fmt.Errorf("failed to execute scoring prompt template: %w", err)
	}
	return buf.String(), nil
}

type analysisPromptData struct {
	RubricName        string
	TotalApplications int
	Correlation       string
	AverageDifference string
	SignificantCount  int
	DiscrepancyCount  int
	Discrepancies     []domain.ScoreDiscrepancy
	Remaining         int
}

// buildAnalysisPrompt renders the bias analysis prompt from the
// deterministic statistics. At most MaxPromptDiscrepancies significant
// discrepancies are listed; the rest are summarized as a count.
func buildAnalysisPrompt(rubricName string, s stats.Summary) (string, error) {
	listed := s.Significant
	remaining := 0
	if len(listed) > MaxPromptDiscrepancies {
		remaining = len(listed) - MaxPromptDiscrepancies
		listed = listed[:MaxPromptDiscrepancies]
	}

	data := analysisPromptData{
		RubricName:        rubricName,
		TotalApplications: s.HumanEvaluations,
		Correlation:       strconv.FormatFloat(s.Correlation, 'f', 3, 64),
		AverageDifference: strconv.FormatFloat(s.AverageDifference, 'f', 2, 64),
		SignificantCount:  len(s.Significant),
		DiscrepancyCount:  len(s.Discrepancies),
		Discrepancies:     listed,
		Remaining:         remaining,
	}

	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, "analysis.tmpl", data); err != nil {
		return "", fmt.Errorf("failed to execute analysis prompt template: %w", err)
	}
	return buf.String(), nil
}
