// Package llm implements the scoring capability behind ports.LLMClient for
// Anthropic, OpenAI and Google models.
//
// Providers implement the small CoreLLM interface. Cross-cutting concerns
// such as rate limiting, circuit breaking, retries, timeouts, metrics and
// tracing are layered on top as Middleware, so a provider only has to turn a
// prompt into a Completion.
//
// Responses can be observed as they are produced: a ports.FragmentHandler
// passed under ports.OptionFragmentHandler receives message_start, text,
// tool_use and message_stop fragments. Every attempt, including retries,
// begins with a message_start fragment.
//
// Basic usage:
//
//	client, err := llm.NewClient("anthropic", llm.ClientConfig{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:  "claude-sonnet-4-5-20250929",
//	    Middleware: []llm.Middleware{
//	        llm.RateLimitMiddleware(5, 10),
//	        llm.CircuitBreakerMiddleware(5, 30*time.Second),
//	        llm.RetryMiddleware(2, time.Second, 10*time.Second),
//	    },
//	})
//	text, err := client.Complete(ctx, prompt, map[string]any{"temperature": 0.3})
package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sotruth/dualtrack/internal/ports"
)

// Completion is the result of a single model request.
type Completion struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// CoreLLM is the minimal interface a provider implements. Middleware wraps
// a CoreLLM to add behavior without touching provider code.
type CoreLLM interface {
	// DoRequest sends prompt to the model. When opts.OnFragment is set the
	// provider streams the response through it and fails with
	// ports.ErrStreamAborted if the handler returns false.
	DoRequest(ctx context.Context, prompt string, opts RequestOptions) (Completion, error)

	// GetModel returns the model requests default to.
	GetModel() string
}

// TokenEstimator approximates token counts before a request is made.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// ClientConfig holds the settings used to build a Client.
type ClientConfig struct {
	// APIKey authenticates requests to the provider.
	APIKey string

	// Model is the default model for requests that do not name one.
	Model string

	// BaseURL overrides the provider endpoint. Tests point it at an
	// httptest server.
	BaseURL string

	// Timeout bounds each request. Zero means no client-side timeout.
	Timeout time.Duration

	// TokenEstimator defaults to SimpleTokenEstimator.
	TokenEstimator TokenEstimator

	// Middleware is applied in order; the first entry is outermost.
	Middleware []Middleware
}

// Middleware wraps a CoreLLM.
type Middleware func(CoreLLM) CoreLLM

var _ ports.LLMClient = (*Client)(nil)

// Client adapts a middleware-wrapped CoreLLM to ports.LLMClient.
type Client struct {
	core      CoreLLM
	estimator TokenEstimator
}

// NewClient builds a client for the named provider ("anthropic", "openai"
// or "google").
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	factory, ok := lookupProviderFactory(providerType)
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	return NewClientFromCore(core, config), nil
}

// NewClientFromCore wraps an existing CoreLLM with the configured timeout and
// middleware.
func NewClientFromCore(core CoreLLM, config ClientConfig) *Client {
	if config.Timeout > 0 {
		core = TimeoutMiddleware(config.Timeout)(core)
	}
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	estimator := config.TokenEstimator
	if estimator == nil {
		estimator = SimpleTokenEstimator{}
	}

	return &Client{core: core, estimator: estimator}
}

// Complete sends prompt to the model and returns the response text.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	completion, err := c.CompleteWithUsage(ctx, prompt, options)
	return completion.Text, err
}

// CompleteWithUsage is Complete with token usage.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (Completion, error) {
	return c.core.DoRequest(ctx, prompt, ParseRequestOptions(options, c.core.GetModel()))
}

// EstimateTokens returns an approximate token count for text.
func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

// GetModel returns the default model of the underlying provider.
func (c *Client) GetModel() string { return c.core.GetModel() }

// SimpleTokenEstimator assumes roughly four characters per token.
type SimpleTokenEstimator struct{}

// EstimateTokens implements TokenEstimator.
func (SimpleTokenEstimator) EstimateTokens(text string) int {
	return EstimateTokens(text)
}

// EstimateTokens approximates the token count of text at four characters
// per token, rounding up.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// ProviderFactory creates a CoreLLM from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var (
	factoriesMu       sync.RWMutex
	providerFactories = map[string]ProviderFactory{}
)

// RegisterProviderFactory makes a provider available to NewClient.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	providerFactories[providerType] = factory
}

func lookupProviderFactory(providerType string) (ProviderFactory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := providerFactories[providerType]
	return f, ok
}
