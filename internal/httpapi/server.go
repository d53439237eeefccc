// Package httpapi exposes the dual-track service over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	m "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sotruth/dualtrack/internal/domain"
)

// Service is the subset of application.Service the API needs.
type Service interface {
	ScoreApplication(ctx context.Context, applicationID, rubricID int64) (domain.Evaluation, error)
	AnalyzeBias(ctx context.Context, in domain.BiasAnalysisInput) (domain.BiasAnalysis, error)
	AnalyzeRubric(ctx context.Context, rubricID int64, applicationIDs []int64) (domain.BiasAnalysis, error)
	Report(analysis domain.BiasAnalysis) string
	CheckEligibility(ctx context.Context, applicationID int64) (domain.Eligibility, error)
}

// Server holds the handlers for the /v1 routes.
type Server struct {
	svc    Service
	logger *zap.Logger
}

// maxBodyBytes caps request bodies; analysis inputs carry every evaluation
// of a rubric.
const maxBodyBytes = 16 << 20

// NewRouter builds the API routes. gatherer backs /metrics; nil uses the
// default registry.
func NewRouter(svc Service, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(m.RequestID, m.RealIP, requestLogger(logger), m.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Use(m.AllowContentType("application/json"))
		r.Post("/rubrics/{rubricID}/applications/{applicationID}/score", s.scoreApplication)
		r.Post("/rubrics/{rubricID}/analysis", s.analyzeRubric)
		r.Get("/applications/{applicationID}/eligibility", s.eligibility)
		r.Post("/analyses", s.analyzeBias)
		r.Post("/reports", s.report)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

// NewServer wraps handler in an http.Server listening on addr.
func NewServer(addr string, handler http.Handler, readHeaderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := m.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", m.GetReqID(r.Context())))
		})
	}
}
