package main

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sotruth/dualtrack/infrastructure/store"
	"github.com/sotruth/dualtrack/internal/domain"
)

func TestParseIDs(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []int64
		wantErr bool
	}{
		{name: "empty", in: "", want: nil},
		{name: "blank", in: "  ", want: nil},
		{name: "single", in: "7", want: []int64{7}},
		{name: "spaced", in: "1, 2 ,3", want: []int64{1, 2, 3}},
		{name: "not a number", in: "1,x", wantErr: true},
		{name: "zero", in: "0", wantErr: true},
		{name: "trailing comma", in: "1,", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIDs(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func noEnv(string) string { return "" }

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), nil, &out, noEnv)
	assert.ErrorIs(t, err, errUsage)

	err = run(context.Background(), []string{"-h"}, &out, noEnv)
	assert.ErrorIs(t, err, flag.ErrHelp)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRun_Import(t *testing.T) {
	dir := t.TempDir()
	dsn := "file:" + filepath.Join(dir, "dualtrack.db")
	cfg := writeConfig(t, "log_level: error\nstore:\n  driver: sqlite\n  dsn: "+dsn+"\n")

	var out bytes.Buffer
	err := run(context.Background(),
		[]string{"-config", cfg, "import", "-dataset", filepath.Join("..", "..", "data", "dataset.yaml")},
		&out, noEnv)
	require.NoError(t, err)
	assert.Equal(t, "imported 1 rubrics, 2 applications, 4 evaluations\n", out.String())

	ctx := context.Background()
	db, err := store.OpenSQLite(ctx, store.WithDataSource(dsn))
	require.NoError(t, err)
	defer db.Close()

	rubric, err := db.GetRubric(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rubric.Criteria, 3)

	for _, typ := range []domain.EvaluatorType{domain.EvaluatorHuman, domain.EvaluatorAI} {
		evals, err := db.ListEvaluations(ctx, 1, typ)
		require.NoError(t, err)
		assert.Len(t, evals, 2, typ)
	}
}

func TestRun_ImportRequiresSQLite(t *testing.T) {
	cfg := writeConfig(t, "log_level: error\n")

	err := run(context.Background(), []string{"-config", cfg, "import"}, &bytes.Buffer{}, noEnv)
	assert.ErrorContains(t, err, "store.driver must be sqlite")
}

func TestSampleDatasetLoads(t *testing.T) {
	s, err := store.LoadFile(filepath.Join("..", "..", "data", "dataset.yaml"))
	require.NoError(t, err)

	app, err := s.GetApplication(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, "Frostline Logistics", app.CompanyInfo.Name)
}
