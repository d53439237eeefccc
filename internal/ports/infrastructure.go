package ports

import (
	"context"
	"time"

	"github.com/sotruth/dualtrack/internal/domain"
)

// LLMClient defines the interface for interacting with Large Language
// Model providers.
// Implementations should handle provider-specific details like authentication,
// request formatting, and response parsing.
type LLMClient interface {
	// Complete sends a completion request to the LLM provider.
	// It returns the generated text and any error encountered.
	// The implementation should handle rate limiting, retries, and timeouts.
	//
	// The options map allows flexibility for different providers without
	// changing the interface. Common options include:
	//   - "temperature": float64 (0.0-1.0)
	//   - "max_tokens": int
	//   - "model": string (specific model version)
	//   - "system": string (system prompt)
	//   - OptionFragmentHandler: FragmentHandler receiving the response as
	//     a sequence of fragments while it is produced
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens calculates the approximate token count for a given text.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier being used by this client.
	GetModel() string
}

// OptionFragmentHandler is the options key under which callers pass a
// FragmentHandler to LLMClient.Complete.
const OptionFragmentHandler = "fragment_handler"

// FragmentKind classifies a response fragment.
type FragmentKind string

const (
	// FragmentMessageStart marks the beginning of a response attempt.
	// Anything accumulated before it belongs to an abandoned attempt.
	FragmentMessageStart FragmentKind = "message_start"

	// FragmentText carries a piece of assistant text.
	FragmentText FragmentKind = "text"

	// FragmentToolUse carries tool-call input, which is never part of the
	// parsed answer.
	FragmentToolUse FragmentKind = "tool_use"

	// FragmentMessageStop marks the end of a response attempt.
	FragmentMessageStop FragmentKind = "message_stop"
)

// Fragment is one piece of a streamed model response.
type Fragment struct {
	Kind FragmentKind
	Text string
}

// FragmentHandler receives fragments in order. Returning false stops the
// stream; the provider then fails the request with ErrStreamAborted.
type FragmentHandler func(Fragment) bool

// FragmentHandlerFrom extracts the handler from a Complete options map.
func FragmentHandlerFrom(options map[string]any) (FragmentHandler, bool) {
	if options == nil {
		return nil, false
	}
	switch h := options[OptionFragmentHandler].(type) {
	case FragmentHandler:
		return h, h != nil
	case func(Fragment) bool:
		return h, h != nil
	default:
		return nil, false
	}
}

// CacheStore defines the interface for caching scored evaluations.
// Values are opaque bytes; callers own serialization.
type CacheStore interface {
	// Get retrieves a cached value by key.
	// Returns the value and true if found, or nil and false if not found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value in the cache with an expiration time.
	// A zero duration means the item doesn't expire.
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache.
	// Returns nil if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// EvaluationStore provides read-only access to rubrics, applications and
// evaluations. Missing records are reported as a StoreError wrapping
// domain.ErrNotFound.
type EvaluationStore interface {
	GetRubric(ctx context.Context, id int64) (domain.Rubric, error)
	GetApplication(ctx context.Context, id int64) (domain.ApplicationSubmission, error)

	// ListEvaluations returns every evaluation of the given track recorded
	// against the rubric, ordered by application id then evaluation time.
	ListEvaluations(ctx context.Context, rubricID int64, evaluatorType domain.EvaluatorType) ([]domain.Evaluation, error)

	// Close releases any resources held by the store.
	Close() error
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus,
// OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
