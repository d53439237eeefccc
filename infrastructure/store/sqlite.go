package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	// Registers the sqlite3 database/sql driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/sotruth/dualtrack/internal/domain"
	"github.com/sotruth/dualtrack/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS rubrics (
	id            INTEGER PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	max_score     REAL NOT NULL DEFAULT 0,
	passing_score REAL,
	criteria      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS applications (
	id              INTEGER PRIMARY KEY,
	applicant_id    INTEGER NOT NULL DEFAULT 0,
	organization_id INTEGER NOT NULL DEFAULT 0,
	responses       TEXT NOT NULL,
	company_info    TEXT NOT NULL,
	applicant_info  TEXT NOT NULL,
	submitted_at    TIMESTAMP
);
CREATE TABLE IF NOT EXISTS evaluations (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	application_id   INTEGER NOT NULL,
	rubric_id        INTEGER NOT NULL,
	evaluator_type   TEXT NOT NULL CHECK (evaluator_type IN ('human', 'ai')),
	evaluator_name   TEXT NOT NULL,
	criterion_scores TEXT NOT NULL,
	total_score      REAL NOT NULL,
	overall_comments TEXT NOT NULL DEFAULT '',
	flagged_concerns TEXT NOT NULL DEFAULT '[]',
	evaluated_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_evaluations_rubric_type
	ON evaluations (rubric_id, evaluator_type, application_id, evaluated_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_evaluations_identity
	ON evaluations (application_id, rubric_id, evaluator_type, evaluator_name, evaluated_at);
`

// Options configures the SQLite connection pool.
type Options struct {
	DataSource      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration
}

// Option overrides one of the Options defaults.
type Option func(*Options)

// WithDataSource sets the go-sqlite3 DSN.
func WithDataSource(dsn string) Option {
	return func(o *Options) { o.DataSource = dsn }
}

// WithMaxOpenConns bounds the connection pool.
func WithMaxOpenConns(n int) Option {
	return func(o *Options) { o.MaxOpenConns = n }
}

// WithRetry sets how often and how patiently the initial connection is
// retried.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(o *Options) {
		o.RetryAttempts = attempts
		o.RetryDelay = delay
	}
}

// SQLiteStore reads rubrics, applications and evaluations from SQLite.
// Nested structures are stored as JSON text columns.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite connects to the database and ensures the schema exists.
func OpenSQLite(ctx context.Context, opts ...Option) (*SQLiteStore, error) {
	options := &Options{
		DataSource:      "file::memory:?cache=shared",
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		RetryAttempts:   3,
		RetryDelay:      200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.DataSource == "" {
		return nil, fmt.Errorf("sqlite data source cannot be empty: %w", domain.ErrInvalidConfiguration)
	}

	db, err := connect(ctx, options)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func connect(ctx context.Context, o *Options) (*sql.DB, error) {
	var err error
	for i := range max(1, o.RetryAttempts) {
		var db *sql.DB
		db, err = sql.Open("sqlite3", o.DataSource)
		if err == nil {
			db.SetMaxOpenConns(o.MaxOpenConns)
			db.SetMaxIdleConns(o.MaxIdleConns)
			db.SetConnMaxLifetime(o.ConnMaxLifetime)
			if err = db.PingContext(ctx); err == nil {
				return db, nil
			}
			db.Close()
		}

		if i < o.RetryAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i+1) * o.RetryDelay):
			}
		}
	}
	return nil, fmt.Errorf("failed to open sqlite after %d attempts: %w", o.RetryAttempts, err)
}

// GetRubric returns the rubric with the given id.
func (s *SQLiteStore) GetRubric(ctx context.Context, id int64) (domain.Rubric, error) {
	const query = `
		SELECT id, name, description, max_score, passing_score, criteria
		FROM rubrics WHERE id = ?`

	var (
		r        domain.Rubric
		passing  sql.NullFloat64
		criteria string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&r.ID, &r.Name, &r.Description, &r.MaxScore, &passing, &criteria)
	if err != nil {
		return domain.Rubric{}, storeError("rubric", id, "get", err)
	}
	if passing.Valid {
		r.PassingScore = &passing.Float64
	}
	if err := json.Unmarshal([]byte(criteria), &r.Criteria); err != nil {
		return domain.Rubric{}, storeError("rubric", id, "decode criteria", err)
	}
	return r, nil
}

// GetApplication returns the application with the given id.
func (s *SQLiteStore) GetApplication(ctx context.Context, id int64) (domain.ApplicationSubmission, error) {
	const query = `
		SELECT id, applicant_id, organization_id, responses, company_info, applicant_info, submitted_at
		FROM applications WHERE id = ?`

	var (
		a                           domain.ApplicationSubmission
		responses, company, person string
		submitted                   sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.ApplicantID, &a.OrganizationID, &responses, &company, &person, &submitted,
	)
	if err != nil {
		return domain.ApplicationSubmission{}, storeError("application", id, "get", err)
	}
	if submitted.Valid {
		a.SubmittedAt = &submitted.Time
	}
	columns := []struct {
		raw string
		dst any
	}{
		{responses, &a.Responses},
		{company, &a.CompanyInfo},
		{person, &a.ApplicantInfo},
	}
	for _, c := range columns {
		if err := json.Unmarshal([]byte(c.raw), c.dst); err != nil {
			return domain.ApplicationSubmission{}, storeError("application", id, "decode", err)
		}
	}
	return a, nil
}

// ListEvaluations returns the evaluations of one track for a rubric,
// ordered by application and evaluation time.
func (s *SQLiteStore) ListEvaluations(
	ctx context.Context,
	rubricID int64,
	evaluatorType domain.EvaluatorType,
) ([]domain.Evaluation, error) {
	const query = `
		SELECT application_id, rubric_id, evaluator_type, evaluator_name, criterion_scores,
		       total_score, overall_comments, flagged_concerns, evaluated_at
		FROM evaluations
		WHERE rubric_id = ? AND evaluator_type = ?
		ORDER BY application_id, evaluated_at, id`

	rows, err := s.db.QueryContext(ctx, query, rubricID, string(evaluatorType))
	if err != nil {
		return nil, ports.NewStoreError("evaluation", "", "list", err)
	}
	defer rows.Close()

	out := make([]domain.Evaluation, 0)
	for rows.Next() {
		var (
			e                domain.Evaluation
			scores, concerns string
		)
		if err := rows.Scan(
			&e.ApplicationID, &e.RubricID, &e.EvaluatorType, &e.EvaluatorName, &scores,
			&e.TotalScore, &e.OverallComments, &concerns, &e.EvaluatedAt,
		); err != nil {
			return nil, ports.NewStoreError("evaluation", "", "scan", err)
		}
		if err := json.Unmarshal([]byte(scores), &e.CriterionScores); err != nil {
			return nil, ports.NewStoreError("evaluation", "", "decode scores", err)
		}
		if err := json.Unmarshal([]byte(concerns), &e.FlaggedConcerns); err != nil {
			return nil, ports.NewStoreError("evaluation", "", "decode concerns", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ports.NewStoreError("evaluation", "", "list", err)
	}
	return out, nil
}

// Import writes ds in a single transaction, replacing rubrics and
// applications with matching ids. An evaluation already stored for the
// same application, rubric, evaluator and time is skipped, so importing a
// dataset twice leaves the tracks unchanged.
func (s *SQLiteStore) Import(ctx context.Context, ds Dataset) (err error) {
	if err := ds.Check(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, r := range ds.Rubrics {
		criteria, err := json.Marshal(r.Criteria)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO rubrics (id, name, description, max_score, passing_score, criteria)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, r.Name, r.Description, r.MaxScore, r.PassingScore, string(criteria),
		); err != nil {
			return storeError("rubric", r.ID, "import", err)
		}
	}

	for _, a := range ds.Applications {
		cols, err := marshalAll(a.Responses, a.CompanyInfo, a.ApplicantInfo)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO applications
			 (id, applicant_id, organization_id, responses, company_info, applicant_info, submitted_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.ApplicantID, a.OrganizationID, cols[0], cols[1], cols[2], a.SubmittedAt,
		); err != nil {
			return storeError("application", a.ID, "import", err)
		}
	}

	for _, e := range ds.Evaluations {
		concerns := e.FlaggedConcerns
		if concerns == nil {
			concerns = []string{}
		}
		cols, err := marshalAll(e.CriterionScores, concerns)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO evaluations
			 (application_id, rubric_id, evaluator_type, evaluator_name, criterion_scores,
			  total_score, overall_comments, flagged_concerns, evaluated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ApplicationID, e.RubricID, string(e.EvaluatorType), e.EvaluatorName, cols[0],
			e.TotalScore, e.OverallComments, cols[1], e.EvaluatedAt,
		); err != nil {
			return ports.NewStoreError("evaluation", "", "import", err)
		}
	}

	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func marshalAll(values ...any) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode column: %w", err)
		}
		out[i] = string(b)
	}
	return out, nil
}

func storeError(entity string, id int64, op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		err = domain.ErrNotFound
	}
	return ports.NewStoreError(entity, strconv.FormatInt(id, 10), op, err)
}

var _ ports.EvaluationStore = (*SQLiteStore)(nil)
