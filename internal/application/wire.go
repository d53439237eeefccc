package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sotruth/dualtrack/infrastructure/agents"
	"github.com/sotruth/dualtrack/infrastructure/cache"
	"github.com/sotruth/dualtrack/infrastructure/llm"
	"github.com/sotruth/dualtrack/infrastructure/middleware"
	"github.com/sotruth/dualtrack/infrastructure/store"
)

// Runtime owns everything built from a Config.
type Runtime struct {
	Service  *Service
	Metrics  *middleware.PrometheusMetrics
	Registry *prometheus.Registry

	closers []io.Closer
}

// Close releases the store and cache.
func (r *Runtime) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// abort closes whatever Build opened before cause and returns cause.
func (r *Runtime) abort(logger *zap.Logger, cause error) error {
	if err := r.Close(); err != nil {
		logger.Warn("close runtime after failed build", zap.Error(err), zap.NamedError("cause", cause))
	}
	return cause
}

// Build constructs the Service described by cfg. getenv supplies provider
// API keys; nil means os.Getenv.
func Build(ctx context.Context, cfg *Config, logger *zap.Logger, getenv func(string) string) (*Runtime, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := middleware.NewPrometheusMetrics(reg)
	rt := &Runtime{Metrics: metrics, Registry: reg}

	registry, err := newLLMRegistry(cfg.LLM, metrics, getenv)
	if err != nil {
		return nil, err
	}

	scorerCfg := withModel(cfg.Scorer, cfg.LLM)
	scorerClient, err := registry.GetClient(cfg.LLM.Provider + "/" + scorerCfg.Model)
	if err != nil {
		return nil, fmt.Errorf("scorer client: %w", err)
	}
	scorer, err := agents.NewScorer(scorerClient, scorerCfg,
		agents.WithScorerLogger(logger.Named("scorer")),
		agents.WithBatchConcurrency(cfg.BatchConcurrency))
	if err != nil {
		return nil, err
	}

	classifierCfg := withModel(cfg.Classifier, cfg.LLM)
	classifierClient, err := registry.GetClient(cfg.LLM.Provider + "/" + classifierCfg.Model)
	if err != nil {
		return nil, fmt.Errorf("classifier client: %w", err)
	}
	classifier, err := agents.NewClassifier(classifierClient, classifierCfg,
		agents.WithClassifierLogger(logger.Named("classifier")))
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	rt.closers = append(rt.closers, st)

	cs, err := cache.Open(ctx, cfg.Cache)
	if err != nil {
		return nil, rt.abort(logger, fmt.Errorf("open cache: %w", err))
	}
	if c, ok := cs.(io.Closer); ok {
		rt.closers = append(rt.closers, c)
	}

	svc, err := NewService(scorer, classifier, st,
		WithCache(cs, cfg.Cache.TTL),
		WithObserver(middleware.NewAnalysisObserver(metrics)),
		WithLogger(logger.Named("service")))
	if err != nil {
		return nil, rt.abort(logger, err)
	}
	rt.Service = svc

	logger.Info("runtime ready",
		zap.String("provider", cfg.LLM.Provider),
		zap.String("scorer_model", scorerCfg.Model),
		zap.String("classifier_model", classifierCfg.Model),
		zap.String("store", cfg.Store.Driver),
		zap.String("cache", cfg.Cache.Driver))
	return rt, nil
}

// newLLMRegistry builds a registry whose clients run, outermost first:
// tracing, metrics, circuit breaker, retry, rate limit, then the per-attempt
// timeout.
func newLLMRegistry(cfg LLMConfig, metrics *middleware.PrometheusMetrics, getenv func(string) string) (*llm.Registry, error) {
	chain := []llm.Middleware{
		llm.TracingMiddleware("dualtrack"),
		llm.MetricsMiddleware(metrics),
	}
	if cfg.CircuitBreaker.MaxFailures > 0 {
		chain = append(chain, llm.CircuitBreakerMiddlewareWithMetrics(
			cfg.CircuitBreaker.MaxFailures, cfg.CircuitBreaker.Cooldown, metrics))
	}
	if cfg.Retry.MaxAttempts > 0 {
		chain = append(chain, llm.RetryMiddleware(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay))
	}
	if cfg.RateLimit.RPS > 0 {
		chain = append(chain, llm.RateLimitMiddleware(rate.Limit(cfg.RateLimit.RPS), max(1, cfg.RateLimit.Burst)))
	}

	providers := maps.Clone(llm.DefaultProviders)
	if cfg.BaseURL != "" {
		pc := providers[cfg.Provider]
		pc.BaseURL = cfg.BaseURL
		providers[cfg.Provider] = pc
	}

	return llm.NewRegistry(llm.RegistryConfig{
		Providers:         providers,
		DefaultProvider:   cfg.Provider,
		DefaultTimeout:    cfg.Timeout,
		DefaultMiddleware: chain,
		Getenv:            getenv,
	})
}

// withModel applies the global model override. An agent still pointing at
// the Anthropic default is moved to the provider's default when another
// provider is selected.
func withModel(agent agents.AgentConfig, cfg LLMConfig) agents.AgentConfig {
	switch {
	case cfg.Model != "":
		agent.Model = cfg.Model
	case cfg.Provider != "anthropic" && agent.Model == agents.DefaultModel:
		agent.Model = llm.DefaultProviders[cfg.Provider].DefaultModel
	}
	return agent
}
