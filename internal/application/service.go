package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sotruth/dualtrack/infrastructure/agents"
	"github.com/sotruth/dualtrack/infrastructure/middleware"
	"github.com/sotruth/dualtrack/internal/domain"
	"github.com/sotruth/dualtrack/internal/ports"
	"github.com/sotruth/dualtrack/internal/report"
)

// Service is the entry point for scoring, bias analysis and reporting.
type Service struct {
	scorer     *agents.Scorer
	classifier *agents.Classifier
	store      ports.EvaluationStore
	cache      ports.CacheStore
	cacheTTL   time.Duration
	observer   *middleware.AnalysisObserver
	logger     *zap.Logger
	newID      func() string
	now        func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache caches AI evaluations for ttl. A nil cache disables caching.
func WithCache(c ports.CacheStore, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithObserver traces and meters scoring and analysis runs.
func WithObserver(o *middleware.AnalysisObserver) ServiceOption {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger sets the logger. A nil logger keeps the no-op default.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator replaces the uuid generator used for analysis ids.
func WithIDGenerator(f func() string) ServiceOption {
	return func(s *Service) { s.newID = f }
}

// WithServiceClock replaces time.Now for eligibility checks.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService requires a scorer, a classifier and a store.
func NewService(
	scorer *agents.Scorer,
	classifier *agents.Classifier,
	st ports.EvaluationStore,
	opts ...ServiceOption,
) (*Service, error) {
	if scorer == nil || classifier == nil {
		return nil, fmt.Errorf("scorer and classifier are required: %w", domain.ErrInvalidConfiguration)
	}
	if st == nil {
		return nil, fmt.Errorf("evaluation store is required: %w", domain.ErrInvalidConfiguration)
	}

	s := &Service{
		scorer:     scorer,
		classifier: classifier,
		store:      st,
		observer:   middleware.NewAnalysisObserver(nil),
		logger:     zap.NewNop(),
		newID:      uuid.NewString,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CacheKey identifies a cached AI evaluation.
func CacheKey(rubricID, applicationID int64, model string) string {
	return fmt.Sprintf("eval:%d:%d:%s", rubricID, applicationID, model)
}

// ScoreApplication scores a stored application against a stored rubric,
// serving from the cache when an evaluation by the same model exists.
// Failures are reported as *agents.ScoringError.
func (s *Service) ScoreApplication(ctx context.Context, applicationID, rubricID int64) (domain.Evaluation, error) {
	rubric, err := s.store.GetRubric(ctx, rubricID)
	if err != nil {
		return domain.Evaluation{}, &agents.ScoringError{ApplicationID: applicationID, Err: err}
	}
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return domain.Evaluation{}, &agents.ScoringError{ApplicationID: applicationID, Err: err}
	}

	key := CacheKey(rubricID, applicationID, s.scorer.Config().Model)
	if eval, ok := s.cached(ctx, key); ok {
		return eval, nil
	}

	in := domain.ScoringInput{
		ApplicationID: applicationID,
		RubricID:      rubricID,
		Application:   app,
		Rubric:        rubric,
	}
	eval, err := s.observer.ObserveScoring(ctx, applicationID, rubricID, func(ctx context.Context) (domain.Evaluation, error) {
		return s.scorer.Score(ctx, in)
	})
	if err != nil {
		s.logger.Error("scoring failed",
			zap.Int64("application_id", applicationID),
			zap.Int64("rubric_id", rubricID),
			zap.Error(err))
		return domain.Evaluation{}, err
	}

	s.remember(ctx, key, eval)
	s.logger.Info("application scored",
		zap.Int64("application_id", applicationID),
		zap.Int64("rubric_id", rubricID),
		zap.Float64("total_score", eval.TotalScore))
	return eval, nil
}

func (s *Service) cached(ctx context.Context, key string) (domain.Evaluation, bool) {
	if s.cache == nil {
		return domain.Evaluation{}, false
	}
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return domain.Evaluation{}, false
	}
	if !ok {
		return domain.Evaluation{}, false
	}
	eval, err := decodeCached(key, data)
	if err != nil {
		s.logger.Warn("discarding cache entry", zap.String("key", key), zap.Error(err))
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
		}
		return domain.Evaluation{}, false
	}
	s.logger.Debug("cache hit", zap.String("key", key))
	return eval, true
}

// decodeCached decodes a cached evaluation. Entries that do not decode or
// validate fail with ports.ErrCacheCorrupted.
func decodeCached(key string, data []byte) (domain.Evaluation, error) {
	var eval domain.Evaluation
	err := json.Unmarshal(data, &eval)
	if err == nil {
		err = eval.Validate()
	}
	if err != nil {
		return domain.Evaluation{}, ports.NewCacheError(key, "decode", fmt.Errorf("%w: %v", ports.ErrCacheCorrupted, err))
	}
	return eval, nil
}

func (s *Service) remember(ctx context.Context, key string, eval domain.Evaluation) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(eval)
	if err != nil {
		s.logger.Warn("cannot encode evaluation for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// ScoreBatch scores inputs, skipping failures. Evaluations follow input
// order.
func (s *Service) ScoreBatch(ctx context.Context, inputs []domain.ScoringInput) agents.BatchResult {
	res := s.scorer.ScoreBatch(ctx, inputs)
	s.logger.Info("batch scored",
		zap.Int("requested", len(inputs)),
		zap.Int("scored", len(res.Evaluations)),
		zap.Int("failed", len(res.Failures)))
	return res
}

// AnalyzeBias validates in, filters it by ApplicationIDs and runs the
// classifier. The returned analysis carries a fresh run id.
func (s *Service) AnalyzeBias(ctx context.Context, in domain.BiasAnalysisInput) (domain.BiasAnalysis, error) {
	analysis, err := s.observer.ObserveAnalysis(ctx, in.Rubric.ID, func(ctx context.Context) (domain.BiasAnalysis, error) {
		a, err := s.classifier.Analyze(ctx, in)
		if err != nil {
			return domain.BiasAnalysis{}, err
		}
		a.ID = s.newID()
		return a, nil
	})
	if err != nil {
		s.logger.Error("bias analysis failed", zap.Int64("rubric_id", in.Rubric.ID), zap.Error(err))
		return domain.BiasAnalysis{}, err
	}

	s.logger.Info("bias analysis complete",
		zap.String("analysis_id", analysis.ID),
		zap.Int64("rubric_id", in.Rubric.ID),
		zap.Float64("correlation", analysis.OverallCorrelation),
		zap.Int("significant_discrepancies", len(analysis.SignificantDiscrepancies)),
		zap.Int("bias_indicators", len(analysis.BiasIndicators)))
	return analysis, nil
}

// AnalyzeRubric loads the rubric and both evaluation tracks from the store
// and analyzes them. applicationIDs restricts the analysis when non-empty.
func (s *Service) AnalyzeRubric(ctx context.Context, rubricID int64, applicationIDs []int64) (domain.BiasAnalysis, error) {
	rubric, err := s.store.GetRubric(ctx, rubricID)
	if err != nil {
		return domain.BiasAnalysis{}, err
	}
	human, err := s.store.ListEvaluations(ctx, rubricID, domain.EvaluatorHuman)
	if err != nil {
		return domain.BiasAnalysis{}, err
	}
	ai, err := s.store.ListEvaluations(ctx, rubricID, domain.EvaluatorAI)
	if err != nil {
		return domain.BiasAnalysis{}, err
	}

	return s.AnalyzeBias(ctx, domain.BiasAnalysisInput{
		ApplicationIDs:   applicationIDs,
		HumanEvaluations: human,
		AIEvaluations:    ai,
		Rubric:           rubric,
	})
}

// Report renders analysis as markdown.
func (s *Service) Report(analysis domain.BiasAnalysis) string {
	return report.Generate(analysis)
}

// CheckEligibility runs the deterministic eligibility checks on a stored
// application.
func (s *Service) CheckEligibility(ctx context.Context, applicationID int64) (domain.Eligibility, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return domain.Eligibility{}, err
	}
	return domain.CheckEligibility(app, s.now()), nil
}
