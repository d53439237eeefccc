package testutils

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/sotruth/dualtrack/internal/ports"
)

// Prompt markers the mock uses to tell the scoring and analysis prompts apart.
const (
	ScoringPromptMarker  = "# Scoring Task"
	AnalysisPromptMarker = "# Bias Analysis Task"
)

// MockLLMClient implements the LLMClient interface with deterministic responses
// for consistent testing. Responses are selected by prompt pattern or taken
// from a queue, and when the caller installs a fragment handler the response
// is streamed to it as message-start, text and message-stop fragments.
type MockLLMClient struct {
	mu sync.Mutex

	// model is the mock model identifier.
	model string
	// responses maps prompt patterns to pre-defined responses, checked in
	// insertion order.
	responses []MockResponse
	// queue holds responses returned in order before pattern matching.
	queue []string
	// err, when set, is returned by every call.
	err error
	// chunkSize splits streamed text into fragments of at most this many
	// bytes. Zero streams the whole response as one fragment.
	chunkSize int

	// Calls records every Complete invocation.
	calls []MockCall
}

// MockResponse defines a pre-configured response pattern for the mock client.
type MockResponse struct {
	// Pattern is used to match against prompts (substring matching).
	Pattern string
	// Response is the text returned for matching prompts.
	Response string
	// Err, when set, is returned instead of Response.
	Err error
}

// MockCall is one recorded Complete invocation.
type MockCall struct {
	Prompt  string
	Options map[string]any
}

// NewMockLLMClient creates a new MockLLMClient with default scoring and
// analysis responses.
func NewMockLLMClient(model string) *MockLLMClient {
	client := &MockLLMClient{model: model}
	client.setupDefaultResponses()
	return client
}

// setupDefaultResponses configures a valid scoring document for the Titan
// rubric and an empty-but-valid analysis document.
func (m *MockLLMClient) setupDefaultResponses() {
	m.responses = []MockResponse{
		{Pattern: ScoringPromptMarker, Response: ScoringResponse(DefaultTitanScores())},
		{Pattern: AnalysisPromptMarker, Response: AnalysisResponse(nil, []string{"Calibrate judges on the rubric's rating descriptions."})},
	}
}

// AddResponse adds a response pattern checked before the existing ones.
func (m *MockLLMClient) AddResponse(response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append([]MockResponse{response}, m.responses...)
}

// QueueResponses makes the next calls return responses in order, ahead of
// pattern matching.
func (m *MockLLMClient) QueueResponses(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, responses...)
}

// SetError makes every call fail with err. A nil err clears it.
func (m *MockLLMClient) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetChunkSize controls how streamed text is split into fragments.
func (m *MockLLMClient) SetChunkSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunkSize = n
}

// Calls returns a copy of the recorded invocations.
func (m *MockLLMClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// LastCall returns the most recent invocation.
func (m *MockLLMClient) LastCall() (MockCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return MockCall{}, false
	}
	return m.calls[len(m.calls)-1], true
}

// Complete implements the LLMClient.Complete method with deterministic responses.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	response, chunkSize, err := m.next(prompt, options)
	if err != nil {
		return "", err
	}

	if handler, ok := ports.FragmentHandlerFrom(options); ok {
		if !stream(handler, response, chunkSize) {
			return "", ports.ErrStreamAborted
		}
	}
	return response, nil
}

func (m *MockLLMClient) next(prompt string, options map[string]any) (string, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{Prompt: prompt, Options: maps.Clone(options)})

	if m.err != nil {
		return "", 0, m.err
	}
	if len(m.queue) > 0 {
		r := m.queue[0]
		m.queue = m.queue[1:]
		return r, m.chunkSize, nil
	}
	for _, r := range m.responses {
		if r.Pattern == "" || strings.Contains(prompt, r.Pattern) {
			if r.Err != nil {
				return "", 0, r.Err
			}
			return r.Response, m.chunkSize, nil
		}
	}
	return "Mock response for testing purposes.", m.chunkSize, nil
}

func stream(handler ports.FragmentHandler, text string, chunkSize int) bool {
	if !handler(ports.Fragment{Kind: ports.FragmentMessageStart}) {
		return false
	}
	for _, chunk := range chunks(text, chunkSize) {
		if !handler(ports.Fragment{Kind: ports.FragmentText, Text: chunk}) {
			return false
		}
	}
	return handler(ports.Fragment{Kind: ports.FragmentMessageStop})
}

func chunks(text string, size int) []string {
	if size <= 0 || len(text) <= size {
		return []string{text}
	}
	var out []string
	for len(text) > size {
		out = append(out, text[:size])
		text = text[size:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// EstimateTokens implements the LLMClient.EstimateTokens method using
// roughly four characters per token.
func (m *MockLLMClient) EstimateTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	tokens := len(text) / 4
	if tokens == 0 {
		tokens = 1
	}
	return tokens, nil
}

// GetModel implements the LLMClient.GetModel method returning the mock model identifier.
func (m *MockLLMClient) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// SetModel updates the mock model identifier.
func (m *MockLLMClient) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}

// Reset clears recorded calls, queued responses, injected errors and custom
// patterns.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.queue = nil
	m.err = nil
	m.chunkSize = 0
	m.setupDefaultResponses()
}

// Verify interface compliance at compile time.
var _ ports.LLMClient = (*MockLLMClient)(nil)
