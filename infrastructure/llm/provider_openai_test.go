package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sotruth/dualtrack/internal/ports"
)

func newTestOpenAIProvider(t *testing.T, handler http.HandlerFunc) CoreLLM {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := newOpenAIProvider(ClientConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)
	return p
}

func TestOpenAIProvider_DoRequest(t *testing.T) {
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4.1", body["model"])
		assert.Equal(t, 1000.0, body["max_tokens"])
		assert.Equal(t, 0.5, body["frequency_penalty"])

		messages := body["messages"].([]any)
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]any)["role"])
		assert.Equal(t, "user", messages[1].(map[string]any)["role"])
		assert.Equal(t, "Score this.", messages[1].(map[string]any)["content"])

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "model": "gpt-4.1",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Done."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 30, "completion_tokens": 2, "total_tokens": 32}
		}`)
	})

	c, err := p.DoRequest(context.Background(), "Score this.", RequestOptions{
		Model:     "gpt-4.1",
		MaxTokens: 1000,
		System:    "You are a judge.",
		Extra:     map[string]any{"frequency_penalty": 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, Completion{Text: "Done.", TokensIn: 30, TokensOut: 2}, c)
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c","object":"chat.completion","model":"gpt-4.1","choices":[]}`)
	})

	_, err := p.DoRequest(context.Background(), "p", RequestOptions{Model: "gpt-4.1"})
	assert.ErrorIs(t, err, ErrNoResponseChoice)
}

func TestOpenAIProvider_Streaming(t *testing.T) {
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{
			`{"id":"c","object":"chat.completion.chunk","model":"gpt-4.1","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"id":"c","object":"chat.completion.chunk","model":"gpt-4.1","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
			`{"id":"c","object":"chat.completion.chunk","model":"gpt-4.1","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
		} {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	handler, got := collectFragments()

	c, err := p.DoRequest(context.Background(), "p", RequestOptions{Model: "gpt-4.1", OnFragment: handler})
	require.NoError(t, err)
	assert.Equal(t, Completion{Text: "Hello", TokensIn: 5, TokensOut: 2}, c)
	assert.Equal(t, []ports.Fragment{
		{Kind: ports.FragmentMessageStart},
		{Kind: ports.FragmentText, Text: "Hel"},
		{Kind: ports.FragmentText, Text: "lo"},
		{Kind: ports.FragmentMessageStop},
	}, *got)
}

func TestOpenAIProvider_Errors(t *testing.T) {
	tests := []struct {
		status   int
		wantType ErrorType
	}{
		{http.StatusUnauthorized, ErrorTypeAuthentication},
		{http.StatusTooManyRequests, ErrorTypeRateLimit},
		{http.StatusNotFound, ErrorTypeNotFound},
		{http.StatusBadGateway, ErrorTypeServerError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"message":"nope","type":"invalid_request_error"}}`)
			})

			_, err := p.DoRequest(context.Background(), "p", RequestOptions{Model: "gpt-4.1"})
			var perr *ProviderError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.wantType, perr.Type)
			assert.Equal(t, "openai", perr.Provider)
		})
	}
}

func TestOpenAIProvider_ContextCanceled(t *testing.T) {
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.DoRequest(ctx, "p", RequestOptions{Model: "gpt-4.1"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsRetryable(err))
}

func TestOpenAIProvider_FinishReasonLength(t *testing.T) {
	tests := []struct {
		name      string
		streaming bool
		handler   http.HandlerFunc
	}{
		{
			name: "completion",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, `{"id":"c","object":"chat.completion","model":"gpt-4.1",`+
					`"choices":[{"index":0,"message":{"role":"assistant","content":"partial"},"finish_reason":"length"}]}`)
			},
		},
		{
			name:      "stream",
			streaming: true,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				for _, chunk := range []string{
					`{"id":"c","object":"chat.completion.chunk","model":"gpt-4.1","choices":[{"index":0,"delta":{"content":"partial"}}]}`,
					`{"id":"c","object":"chat.completion.chunk","model":"gpt-4.1","choices":[{"index":0,"delta":{},"finish_reason":"length"}]}`,
				} {
					fmt.Fprintf(w, "data: %s\n\n", chunk)
				}
				fmt.Fprint(w, "data: [DONE]\n\n")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestOpenAIProvider(t, tt.handler)
			opts := RequestOptions{Model: "gpt-4.1", MaxTokens: 5}
			if tt.streaming {
				opts.OnFragment, _ = collectFragments()
			}

			_, err := p.DoRequest(context.Background(), "p", opts)
			assert.ErrorIs(t, err, ports.ErrTokenLimitExceeded)
			assert.False(t, IsRetryable(err))
		})
	}
}
