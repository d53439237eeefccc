package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sotruth/dualtrack/internal/ports"
)

var errSimulated = errors.New("simulated failure")

// mockCoreLLM is a configurable CoreLLM for middleware tests.
type mockCoreLLM struct {
	mu sync.Mutex

	Response      string
	TokensIn      int
	TokensOut     int
	Err           error
	Model         string
	ResponseDelay time.Duration

	// FailUntilAttempt fails the first N calls with Err (or errSimulated).
	FailUntilAttempt int

	CallCount int
	LastOpts  RequestOptions
	Contexts  []context.Context
}

func newMockCoreLLM() *mockCoreLLM {
	return &mockCoreLLM{
		Response:  "test response",
		TokensIn:  10,
		TokensOut: 20,
		Model:     "test-model",
	}
}

func (m *mockCoreLLM) DoRequest(ctx context.Context, _ string, opts RequestOptions) (Completion, error) {
	m.mu.Lock()
	m.CallCount++
	call := m.CallCount
	m.LastOpts = opts
	m.Contexts = append(m.Contexts, ctx)
	delay, failUntil, err := m.ResponseDelay, m.FailUntilAttempt, m.Err
	resp := Completion{Text: m.Response, TokensIn: m.TokensIn, TokensOut: m.TokensOut}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Completion{}, ctx.Err()
		}
	}

	if call <= failUntil {
		if err == nil {
			err = errSimulated
		}
		// A failed attempt still starts a message, as a real stream would.
		opts.emit(ports.Fragment{Kind: ports.FragmentMessageStart})
		opts.emit(ports.Fragment{Kind: ports.FragmentText, Text: fmt.Sprintf("partial %d", call)})
		return Completion{}, err
	}
	if failUntil == 0 && err != nil {
		return Completion{}, err
	}

	if err := opts.replay(resp.Text); err != nil {
		return Completion{}, err
	}
	return resp, nil
}

func (m *mockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Model
}

func (m *mockCoreLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// recordingCollector is a ports.MetricsCollector that keeps every sample.
type recordingCollector struct {
	mu         sync.Mutex
	counters   map[string]float64
	histograms map[string][]float64
	labels     map[string][]map[string]string
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{
		counters:   make(map[string]float64),
		histograms: make(map[string][]float64),
		labels:     make(map[string][]map[string]string),
	}
}

func (c *recordingCollector) RecordLatency(operation string, d time.Duration, labels map[string]string) {
	c.RecordHistogram(operation, d.Seconds(), labels)
}

func (c *recordingCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[metric+"|"+labels["status"]+labels["token_type"]] += value
	c.labels[metric] = append(c.labels[metric], labels)
}

func (c *recordingCollector) RecordGauge(metric string, value float64, labels map[string]string) {
	c.RecordCounter(metric, value, labels)
}

func (c *recordingCollector) RecordHistogram(metric string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.histograms[metric] = append(c.histograms[metric], value)
	c.labels[metric] = append(c.labels[metric], labels)
}

type recordingBreakerMetrics struct {
	states    []CircuitBreakerState
	trips     int
	successes int
	failures  int
}

func (m *recordingBreakerMetrics) RecordState(s CircuitBreakerState) { m.states = append(m.states, s) }
func (m *recordingBreakerMetrics) RecordTrip()                       { m.trips++ }
func (m *recordingBreakerMetrics) RecordSuccess()                    { m.successes++ }
func (m *recordingBreakerMetrics) RecordFailure()                    { m.failures++ }

// collectFragments returns a handler that appends to the returned slice.
func collectFragments() (ports.FragmentHandler, *[]ports.Fragment) {
	var mu sync.Mutex
	var got []ports.Fragment
	return func(f ports.Fragment) bool {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, f)
		return true
	}, &got
}
