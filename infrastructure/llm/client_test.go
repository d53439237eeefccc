package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sotruth/dualtrack/internal/ports"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		config   ClientConfig
		wantErr  string
	}{
		{
			name:     "missing api key",
			provider: "anthropic",
			config:   ClientConfig{Model: "m"},
			wantErr:  "API key cannot be empty",
		},
		{
			name:     "missing model",
			provider: "anthropic",
			config:   ClientConfig{APIKey: "k"},
			wantErr:  "model is required",
		},
		{
			name:     "unknown provider",
			provider: "acme",
			config:   ClientConfig{APIKey: "k", Model: "m"},
			wantErr:  "unknown provider: acme",
		},
		{
			name:     "anthropic",
			provider: "anthropic",
			config:   ClientConfig{APIKey: "k", Model: AnthropicDefaultModel},
		},
		{
			name:     "openai",
			provider: "openai",
			config:   ClientConfig{APIKey: "k", Model: OpenAIDefaultModel},
		},
		{
			name:     "invalid base url",
			provider: "openai",
			config:   ClientConfig{APIKey: "k", Model: "m", BaseURL: "ftp://example.com"},
			wantErr:  "URL scheme must be http or https",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.provider, tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.config.Model, client.GetModel())
		})
	}
}

func TestClient_Complete(t *testing.T) {
	core := newMockCoreLLM()
	core.Response = "scored"
	client := NewClientFromCore(core, ClientConfig{})

	out, err := client.Complete(context.Background(), "prompt", map[string]any{
		"temperature": 0.3,
		"max_tokens":  8192,
		"system":      "be fair",
	})
	require.NoError(t, err)
	assert.Equal(t, "scored", out)

	require.NotNil(t, core.LastOpts.Temperature)
	assert.Equal(t, 0.3, *core.LastOpts.Temperature)
	assert.Equal(t, 8192, core.LastOpts.MaxTokens)
	assert.Equal(t, "be fair", core.LastOpts.System)
	assert.Equal(t, "test-model", core.LastOpts.Model)
}

func TestClient_CompleteWithUsage(t *testing.T) {
	client := NewClientFromCore(newMockCoreLLM(), ClientConfig{})

	c, err := client.CompleteWithUsage(context.Background(), "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, Completion{Text: "test response", TokensIn: 10, TokensOut: 20}, c)
}

func TestClient_CompleteStreamsFragments(t *testing.T) {
	client := NewClientFromCore(newMockCoreLLM(), ClientConfig{})
	handler, got := collectFragments()

	_, err := client.Complete(context.Background(), "prompt", map[string]any{
		ports.OptionFragmentHandler: handler,
	})
	require.NoError(t, err)
	assert.Equal(t, []ports.Fragment{
		{Kind: ports.FragmentMessageStart},
		{Kind: ports.FragmentText, Text: "test response"},
		{Kind: ports.FragmentMessageStop},
	}, *got)
}

func TestClient_MiddlewareOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next CoreLLM) CoreLLM {
			return coreFunc{next: next, fn: func(ctx context.Context, p string, o RequestOptions) (Completion, error) {
				order = append(order, name)
				return next.DoRequest(ctx, p, o)
			}}
		}
	}

	client := NewClientFromCore(newMockCoreLLM(), ClientConfig{Middleware: []Middleware{tag("outer"), tag("inner")}})
	_, err := client.Complete(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestClient_Timeout(t *testing.T) {
	core := newMockCoreLLM()
	core.ResponseDelay = time.Second
	client := NewClientFromCore(core, ClientConfig{Timeout: 20 * time.Millisecond})

	_, err := client.Complete(context.Background(), "p", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEstimateTokens(t *testing.T) {
	client := NewClientFromCore(newMockCoreLLM(), ClientConfig{})
	n, err := client.EstimateTokens("12345678")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("a"))
}

// coreFunc adapts a function to CoreLLM.
type coreFunc struct {
	next CoreLLM
	fn   func(context.Context, string, RequestOptions) (Completion, error)
}

func (c coreFunc) DoRequest(ctx context.Context, p string, o RequestOptions) (Completion, error) {
	return c.fn(ctx, p, o)
}

func (c coreFunc) GetModel() string { return c.next.GetModel() }
