// Command dualtrack scores applications with the AI track and compares the
// result against human reviewers.
//
// Usage:
//
//	dualtrack [-config path] score -rubric 1 -app 42
//	dualtrack [-config path] analyze -rubric 1 [-apps 1,2,3] [-format markdown|json|table]
//	dualtrack [-config path] eligibility -app 42
//	dualtrack [-config path] import -dataset data/dataset.yaml
//	dualtrack [-config path] serve
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/sotruth/dualtrack/infrastructure/store"
	"github.com/sotruth/dualtrack/internal/application"
	"github.com/sotruth/dualtrack/internal/httpapi"
	"github.com/sotruth/dualtrack/internal/report"
)

const shutdownTimeout = 15 * time.Second

var errUsage = errors.New("usage: dualtrack [-config path] <score|analyze|eligibility|import|serve> [flags]")

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer, getenv func(string) string) error {
	global := flag.NewFlagSet("dualtrack", flag.ContinueOnError)
	configPath := global.String("config", "", "path to a YAML config file (overrides "+application.ConfigPathEnv+")")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		return errUsage
	}

	path := *configPath
	if path == "" {
		path = getenv(application.ConfigPathEnv)
	}
	cfg, err := application.LoadConfig(path)
	if err != nil {
		return err
	}
	logger, err := application.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cmd, rest := global.Arg(0), global.Args()[1:]
	if cmd == "import" {
		return runImport(ctx, cfg, rest, stdout)
	}

	rt, err := application.Build(ctx, cfg, logger, getenv)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("close runtime", zap.Error(err))
		}
	}()

	switch cmd {
	case "score":
		return runScore(ctx, rt.Service, rest, stdout)
	case "analyze":
		return runAnalyze(ctx, rt.Service, rest, stdout)
	case "eligibility":
		return runEligibility(ctx, rt.Service, rest, stdout)
	case "serve":
		return serve(ctx, cfg, rt, logger)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func runScore(ctx context.Context, svc *application.Service, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	rubricID := fs.Int64("rubric", 0, "rubric id")
	appID := fs.Int64("app", 0, "application id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rubricID <= 0 || *appID <= 0 {
		return fmt.Errorf("score: -rubric and -app are required: %w", errUsage)
	}

	eval, err := svc.ScoreApplication(ctx, *appID, *rubricID)
	if err != nil {
		return err
	}
	return writeJSON(stdout, eval)
}

func runAnalyze(ctx context.Context, svc *application.Service, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	rubricID := fs.Int64("rubric", 0, "rubric id")
	apps := fs.String("apps", "", "comma-separated application ids to restrict the analysis to")
	format := fs.String("format", "markdown", "output format: markdown, json or table")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rubricID <= 0 {
		return fmt.Errorf("analyze: -rubric is required: %w", errUsage)
	}
	ids, err := parseIDs(*apps)
	if err != nil {
		return err
	}

	analysis, err := svc.AnalyzeRubric(ctx, *rubricID, ids)
	if err != nil {
		return err
	}

	switch *format {
	case "markdown":
		_, err = io.WriteString(stdout, svc.Report(analysis))
		return err
	case "json":
		return writeJSON(stdout, analysis)
	case "table":
		if err := report.WriteSummaryTable(stdout, analysis); err != nil {
			return err
		}
		return report.WriteDiscrepancyTable(stdout, analysis.SignificantDiscrepancies)
	default:
		return fmt.Errorf("analyze: unknown format %q: %w", *format, errUsage)
	}
}

func runEligibility(ctx context.Context, svc *application.Service, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("eligibility", flag.ContinueOnError)
	appID := fs.Int64("app", 0, "application id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *appID <= 0 {
		return fmt.Errorf("eligibility: -app is required: %w", errUsage)
	}

	e, err := svc.CheckEligibility(ctx, *appID)
	if err != nil {
		return err
	}
	return writeJSON(stdout, e)
}

// runImport loads a dataset file into the configured SQLite database.
func runImport(ctx context.Context, cfg *application.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	dataset := fs.String("dataset", cfg.Store.Path, "YAML or JSON dataset to import")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cfg.Store.Driver != "sqlite" {
		return fmt.Errorf("import: store.driver must be sqlite, got %q", cfg.Store.Driver)
	}
	if *dataset == "" {
		return fmt.Errorf("import: -dataset is required: %w", errUsage)
	}

	ds, err := store.ReadDataset(*dataset)
	if err != nil {
		return err
	}
	db, err := store.OpenSQLite(ctx, store.WithDataSource(cfg.Store.DSN))
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Import(ctx, ds); err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "imported %d rubrics, %d applications, %d evaluations\n",
		len(ds.Rubrics), len(ds.Applications), len(ds.Evaluations))
	return err
}

func serve(ctx context.Context, cfg *application.Config, rt *application.Runtime, logger *zap.Logger) error {
	handler := httpapi.NewRouter(rt.Service, rt.Registry, logger.Named("http"))
	srv := httpapi.NewServer(cfg.HTTP.Addr, handler, cfg.HTTP.ReadHeaderTimeout)

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func parseIDs(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid application id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
