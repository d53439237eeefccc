package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/sotruth/dualtrack/internal/domain"
	"github.com/sotruth/dualtrack/internal/ports"
)

// FileStore serves a Dataset held in memory.
type FileStore struct {
	rubrics      map[int64]domain.Rubric
	applications map[int64]domain.ApplicationSubmission
	evaluations  []domain.Evaluation
}

// LoadFile reads the dataset at path into a FileStore.
func LoadFile(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("dataset path is required: %w", domain.ErrInvalidConfiguration)
	}
	ds, err := ReadDataset(path)
	if err != nil {
		return nil, err
	}
	return NewFileStore(ds), nil
}

// NewFileStore indexes ds. Later records win on duplicate ids. Missing
// flaggedConcerns load as an empty list, matching the SQLite store.
func NewFileStore(ds Dataset) *FileStore {
	s := &FileStore{
		rubrics:      make(map[int64]domain.Rubric, len(ds.Rubrics)),
		applications: make(map[int64]domain.ApplicationSubmission, len(ds.Applications)),
		evaluations:  slices.Clone(ds.Evaluations),
	}
	for _, r := range ds.Rubrics {
		s.rubrics[r.ID] = r
	}
	for _, a := range ds.Applications {
		s.applications[a.ID] = a
	}
	for i := range s.evaluations {
		if s.evaluations[i].FlaggedConcerns == nil {
			s.evaluations[i].FlaggedConcerns = []string{}
		}
	}
	sortEvaluations(s.evaluations)
	return s
}

// GetRubric returns the rubric with the given id.
func (s *FileStore) GetRubric(_ context.Context, id int64) (domain.Rubric, error) {
	r, ok := s.rubrics[id]
	if !ok {
		return domain.Rubric{}, ports.NewStoreError("rubric", strconv.FormatInt(id, 10), "get", domain.ErrNotFound)
	}
	return r, nil
}

// GetApplication returns the application with the given id.
func (s *FileStore) GetApplication(_ context.Context, id int64) (domain.ApplicationSubmission, error) {
	a, ok := s.applications[id]
	if !ok {
		return domain.ApplicationSubmission{}, ports.NewStoreError("application", strconv.FormatInt(id, 10), "get", domain.ErrNotFound)
	}
	return a, nil
}

// ListEvaluations returns the evaluations of one track for a rubric,
// ordered by application and evaluation time.
func (s *FileStore) ListEvaluations(
	ctx context.Context,
	rubricID int64,
	evaluatorType domain.EvaluatorType,
) ([]domain.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, ports.NewStoreError("evaluation", "", "list", err)
	}
	out := make([]domain.Evaluation, 0)
	for _, e := range s.evaluations {
		if e.RubricID == rubricID && e.EvaluatorType == evaluatorType {
			out = append(out, e)
		}
	}
	return out, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func sortEvaluations(evals []domain.Evaluation) {
	slices.SortStableFunc(evals, func(a, b domain.Evaluation) int {
		return cmp.Or(
			cmp.Compare(a.ApplicationID, b.ApplicationID),
			a.EvaluatedAt.Compare(b.EvaluatedAt),
		)
	})
}

var _ ports.EvaluationStore = (*FileStore)(nil)
