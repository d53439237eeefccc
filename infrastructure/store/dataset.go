// Package store provides read-only EvaluationStore adapters backed by a
// SQLite database or a YAML/JSON dataset file.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sotruth/dualtrack/internal/domain"
	"github.com/sotruth/dualtrack/internal/ports"
)

// Dataset is the on-disk layout shared by the file store and SQLite
// imports.
type Dataset struct {
	Rubrics      []domain.Rubric                `json:"rubrics" yaml:"rubrics"`
	Applications []domain.ApplicationSubmission `json:"applications" yaml:"applications"`
	Evaluations  []domain.Evaluation            `json:"evaluations" yaml:"evaluations"`
}

// Config selects and configures a store driver.
type Config struct {
	Driver string `koanf:"driver" yaml:"driver" validate:"omitempty,oneof=sqlite file"`
	DSN    string `koanf:"dsn" yaml:"dsn"`
	Path   string `koanf:"path" yaml:"path"`
}

// Open returns the EvaluationStore selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (ports.EvaluationStore, error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := OpenSQLite(ctx, WithDataSource(cfg.DSN))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "file", "":
		s, err := LoadFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q: %w", cfg.Driver, domain.ErrInvalidConfiguration)
	}
}

// ReadDataset decodes a dataset file. The format follows the extension:
// .json is JSON, anything else is YAML.
func ReadDataset(path string) (Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("read dataset: %w", err)
	}

	var ds Dataset
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = decodeJSON(data, &ds)
	} else {
		err = decodeYAML(data, &ds)
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("decode dataset %s: %w", filepath.Base(path), err)
	}
	if err := ds.Check(); err != nil {
		return Dataset{}, fmt.Errorf("dataset %s: %w", filepath.Base(path), err)
	}
	return ds, nil
}

// Check rejects evaluations that score criteria their rubric does not
// define. Evaluations of rubrics outside the dataset are not checked.
func (ds Dataset) Check() error {
	rubrics := make(map[int64]*domain.Rubric, len(ds.Rubrics))
	for i := range ds.Rubrics {
		rubrics[ds.Rubrics[i].ID] = &ds.Rubrics[i]
	}
	for i := range ds.Evaluations {
		e := &ds.Evaluations[i]
		r, ok := rubrics[e.RubricID]
		if !ok {
			continue
		}
		if err := e.CheckAgainst(r); err != nil {
			return fmt.Errorf("evaluation %d of application %d: %w", i, e.ApplicationID, err)
		}
	}
	return nil
}
