package llm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sotruth/dualtrack/internal/ports"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	core := newMockCoreLLM()
	core.Err = ports.ErrServiceUnavailable
	metrics := &recordingBreakerMetrics{}
	wrapped := CircuitBreakerMiddlewareWithMetrics(3, time.Hour, metrics)(core)

	for range 3 {
		_, err := wrapped.DoRequest(context.Background(), "p", RequestOptions{})
		assert.ErrorIs(t, err, ports.ErrServiceUnavailable)
	}

	_, err := wrapped.DoRequest(context.Background(), "p", RequestOptions{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, core.calls())
	assert.Equal(t, 3, metrics.failures)
	assert.Equal(t, 1, metrics.trips)
	assert.Equal(t, StateOpen, metrics.states[len(metrics.states)-1])
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, time.Minute)
	cb.now = func() time.Time { return now }

	require.ErrorIs(t, cb.Call(func() error { return errSimulated }), errSimulated)
	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)

	now = now.Add(2 * time.Minute)

	// A failed trial call reopens the breaker.
	require.ErrorIs(t, cb.Call(func() error { return errSimulated }), errSimulated)
	assert.Equal(t, StateOpen, cb.GetState())

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_SingleTrialWhileHalfOpen(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, time.Minute)
	cb.now = func() time.Time { return now }
	require.Error(t, cb.Call(func() error { return errSimulated }))
	now = now.Add(2 * time.Minute)

	probing := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = cb.Call(func() error {
			close(probing)
			<-release
			return nil
		})
	}()

	<-probing
	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)
	close(release)
	wg.Wait()
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_IgnoresAbortedStreams(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Hour)
	for range 3 {
		assert.ErrorIs(t, cb.Call(func() error { return ports.ErrStreamAborted }), ports.ErrStreamAborted)
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_DoesNotSerializeCalls(t *testing.T) {
	core := newMockCoreLLM()
	core.ResponseDelay = 50 * time.Millisecond
	wrapped := CircuitBreakerMiddleware(5, time.Minute)(core)

	start := time.Now()
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := wrapped.DoRequest(context.Background(), "p", RequestOptions{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestCircuitBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
}
