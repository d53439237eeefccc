package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sotruth/dualtrack/internal/ports"
)

// Metric names recorded by MetricsMiddleware.
const (
	MetricLLMLatency  = "llm_latency_seconds"
	MetricLLMRequests = "llm_requests_total"
	MetricLLMTokens   = "llm_tokens_total"
)

type metricsLLM struct {
	next      CoreLLM
	collector ports.MetricsCollector
}

// MetricsMiddleware records latency, request counts by status and token
// usage for every request.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &metricsLLM{next: next, collector: collector}
	}
}

func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts RequestOptions) (Completion, error) {
	start := time.Now()
	completion, err := m.next.DoRequest(ctx, prompt, opts)
	if m.collector == nil {
		return completion, err
	}

	labels := map[string]string{
		"provider": providerForModel(opts.Model),
		"model":    opts.Model,
		"status":   requestStatus(ctx, err),
	}
	m.collector.RecordHistogram(MetricLLMLatency, time.Since(start).Seconds(), labels)
	m.collector.RecordCounter(MetricLLMRequests, 1, labels)

	if err == nil {
		for tokenType, n := range map[string]int{"input": completion.TokensIn, "output": completion.TokensOut} {
			tokenLabels := map[string]string{
				"provider":   labels["provider"],
				"model":      labels["model"],
				"token_type": tokenType,
			}
			m.collector.RecordCounter(MetricLLMTokens, float64(n), tokenLabels)
		}
	}

	return completion, err
}

func requestStatus(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ports.ErrStreamAborted):
		return "aborted"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.Is(err, ports.ErrTimeout):
		return "timeout"
	case errors.Is(err, ports.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ports.ErrTokenLimitExceeded):
		return "token_limit"
	default:
		return "error"
	}
}

// providerForModel guesses the provider from a model name.
func providerForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt"), strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return "openai"
	case strings.HasPrefix(model, "claude"):
		return "anthropic"
	case strings.HasPrefix(model, "gemini"):
		return "google"
	default:
		return "unknown"
	}
}

func (m *metricsLLM) GetModel() string { return m.next.GetModel() }
