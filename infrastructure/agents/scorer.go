package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"github.com/sotruth/dualtrack/internal/domain"
	"github.com/sotruth/dualtrack/internal/ports"
)

// maxSuggestionDistance bounds the edit distance of a "did you mean"
// suggestion for an unknown criterion id.
const maxSuggestionDistance = 3

// ScoringError reports that one application could not be scored.
type ScoringError struct {
	ApplicationID int64
	Err           error
}

// Error names the application and the underlying cause.
func (e *ScoringError) Error() string {
	return fmt.Sprintf("could not score application #%d: %v", e.ApplicationID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ScoringError) Unwrap() error { return e.Err }

// scoringResponse is the JSON document the scoring model must return.
type scoringResponse struct {
	CriterionScores []domain.CriterionScore `json:"criterionScores" validate:"required,min=1,unique=CriterionID,dive"`

	// TotalScore is accepted but ignored; the total is always recomputed
	// from the rubric weights.
	TotalScore      *float64 `json:"totalScore"`
	OverallComments string   `json:"overallComments"`
	FlaggedConcerns []string `json:"flaggedConcerns"`
}

// Scorer turns one application and rubric into one AI evaluation.
type Scorer struct {
	client      ports.LLMClient
	config      AgentConfig
	logger      *zap.Logger
	now         func() time.Time
	concurrency int
}

// ScorerOption customizes a Scorer.
type ScorerOption func(*Scorer)

// WithScorerLogger sets the logger used for batch failures and warnings.
func WithScorerLogger(l *zap.Logger) ScorerOption {
	return func(s *Scorer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock used for EvaluatedAt.
func WithClock(now func() time.Time) ScorerOption {
	return func(s *Scorer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBatchConcurrency scores up to n applications of a batch at once.
// Values below 2 keep batches sequential.
func WithBatchConcurrency(n int) ScorerOption {
	return func(s *Scorer) { s.concurrency = n }
}

// NewScorer creates a Scorer that calls client with config.
func NewScorer(client ports.LLMClient, config AgentConfig, opts ...ScorerOption) (*Scorer, error) {
	if client == nil {
		return nil, fmt.Errorf("scorer: LLM client cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("scorer: %w", err)
	}

	s := &Scorer{
		client:      client,
		config:      config,
		logger:      zap.NewNop(),
		now:         time.Now,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the scorer's agent configuration.
func (s *Scorer) Config() AgentConfig { return s.config }

// Score evaluates one application against its rubric. A response without a
// fenced JSON block, or whose JSON does not match the expected document,
// fails with a ParseError; a document that violates the schema fails with
// a ValidationError. Both are wrapped in a ScoringError and never retried
// here.
func (s *Scorer) Score(ctx context.Context, in domain.ScoringInput) (domain.Evaluation, error) {
	eval, err := s.score(ctx, in)
	if err != nil {
		return domain.Evaluation{}, &ScoringError{ApplicationID: in.ApplicationID, Err: err}
	}
	return eval, nil
}

func (s *Scorer) score(ctx context.Context, in domain.ScoringInput) (domain.Evaluation, error) {
	rubric := &in.Rubric
	if err := rubric.Validate(); err != nil {
		return domain.Evaluation{}, err
	}

	prompt, err := buildScoringPrompt(&in.Application, rubric)
	if err != nil {
		return domain.Evaluation{}, err
	}

	response, err := query(ctx, s.client, prompt, s.config.ToOptions())
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("LLM call failed (prompt length: %d chars): %w", len(prompt), err)
	}

	var parsed scoringResponse
	if err := parseDocument("evaluation", response, &parsed); err != nil {
		return domain.Evaluation{}, err
	}
	if err := domain.ValidateStruct("evaluation response", parsed); err != nil {
		return domain.Evaluation{}, err
	}
	if err := checkCriterionIDs(rubric, parsed.CriterionScores); err != nil {
		return domain.Evaluation{}, err
	}

	scores := make([]domain.CriterionScore, len(parsed.CriterionScores))
	for i, cs := range parsed.CriterionScores {
		if cs.Confidence == nil {
			c := domain.DefaultConfidence
			cs.Confidence = &c
		}
		scores[i] = cs
	}
	if missing := missingCriteria(rubric, scores); len(missing) > 0 {
		s.logger.Warn("model did not score every criterion",
			zap.Int64("application_id", in.ApplicationID),
			zap.Strings("missing", missing))
	}

	concerns := parsed.FlaggedConcerns
	if concerns == nil {
		concerns = []string{}
	}

	eval := domain.Evaluation{
		ApplicationID:   in.ApplicationID,
		RubricID:        in.RubricID,
		EvaluatorType:   domain.EvaluatorAI,
		EvaluatorName:   s.config.evaluatorName(),
		CriterionScores: scores,
		TotalScore:      domain.WeightedTotal(rubric, scores),
		OverallComments: parsed.OverallComments,
		FlaggedConcerns: concerns,
		EvaluatedAt:     s.now(),
	}
	if err := eval.Validate(); err != nil {
		return domain.Evaluation{}, err
	}
	return eval, nil
}

// BatchResult holds the outcome of a batch. Evaluations follow input order
// but skip failed items, so callers must match results by ApplicationID
// rather than by position.
type BatchResult struct {
	Evaluations []domain.Evaluation
	Failures    []*ScoringError
}

// ScoreBatch scores every input, isolating failures: a failed application
// is logged and skipped and the batch continues. Cancellation of ctx stops
// scheduling further items; items not attempted are reported as failures.
func (s *Scorer) ScoreBatch(ctx context.Context, inputs []domain.ScoringInput) BatchResult {
	results := make([]domain.Evaluation, len(inputs))
	errs := make([]error, len(inputs))

	scoreOne := func(i int) {
		if err := ctx.Err(); err != nil {
			errs[i] = &ScoringError{ApplicationID: inputs[i].ApplicationID, Err: err}
			return
		}
		results[i], errs[i] = s.Score(ctx, inputs[i])
	}

	if s.concurrency < 2 {
		for i := range inputs {
			scoreOne(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.concurrency)
		for i := range inputs {
			g.Go(func() error {
				scoreOne(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	out := BatchResult{Evaluations: make([]domain.Evaluation, 0, len(inputs))}
	for i, err := range errs {
		if err == nil {
			out.Evaluations = append(out.Evaluations, results[i])
			continue
		}
		var serr *ScoringError
		if !errors.As(err, &serr) {
			serr = &ScoringError{ApplicationID: inputs[i].ApplicationID, Err: err}
		}
		s.logger.Error("skipping application in batch",
			zap.Int64("application_id", inputs[i].ApplicationID),
			zap.Int64("rubric_id", inputs[i].RubricID),
			zap.Error(serr.Err))
		out.Failures = append(out.Failures, serr)
	}
	return out
}

var foldCaser = cases.Fold()

// checkCriterionIDs rejects scores for criteria the rubric does not define,
// suggesting the closest rubric id when one is near.
func checkCriterionIDs(rubric *domain.Rubric, scores []domain.CriterionScore) error {
	verr := domain.NewValidationError("evaluation response")
	for i, cs := range scores {
		if _, ok := rubric.Criterion(cs.CriterionID); ok {
			continue
		}
		msg := fmt.Sprintf("criterionScores[%d].criterionId %q is not defined by rubric %d", i, cs.CriterionID, rubric.ID)
		if suggestion, ok := closestCriterion(rubric, cs.CriterionID); ok {
			msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
		}
		verr.AddError(msg)
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

func closestCriterion(rubric *domain.Rubric, id string) (string, bool) {
	target := foldCaser.String(id)
	best, bestDist := "", maxSuggestionDistance+1
	for _, c := range rubric.Criteria {
		d := levenshtein.ComputeDistance(target, foldCaser.String(c.ID))
		if d < bestDist {
			best, bestDist = c.ID, d
		}
	}
	return best, best != ""
}

func missingCriteria(rubric *domain.Rubric, scores []domain.CriterionScore) []string {
	var missing []string
	for _, c := range rubric.Criteria {
		found := false
		for _, cs := range scores {
			if cs.CriterionID == c.ID {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, c.ID)
		}
	}
	return missing
}
