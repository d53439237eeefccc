package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestRateLimitMiddleware_Burst(t *testing.T) {
	core := newMockCoreLLM()
	wrapped := RateLimitMiddleware(rate.Limit(1), 3)(core)

	start := time.Now()
	for range 3 {
		_, err := wrapped.DoRequest(context.Background(), "p", RequestOptions{})
		require.NoError(t, err)
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 3, core.calls())
}

func TestRateLimitMiddleware_WaitsForToken(t *testing.T) {
	core := newMockCoreLLM()
	wrapped := RateLimitMiddleware(rate.Limit(20), 1)(core)

	start := time.Now()
	for range 3 {
		_, err := wrapped.DoRequest(context.Background(), "p", RequestOptions{})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestRateLimitMiddleware_RespectsContext(t *testing.T) {
	core := newMockCoreLLM()
	wrapped := RateLimitMiddleware(rate.Limit(0.1), 1)(core)

	_, err := wrapped.DoRequest(context.Background(), "p", RequestOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = wrapped.DoRequest(ctx, "p", RequestOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, 1, core.calls())
}

func TestRateLimitMiddleware_SharedLimiter(t *testing.T) {
	mw := RateLimitMiddleware(rate.Limit(0.1), 1)
	a := mw(newMockCoreLLM())
	b := mw(newMockCoreLLM())

	_, err := a.DoRequest(context.Background(), "p", RequestOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = b.DoRequest(ctx, "p", RequestOptions{})
	assert.Error(t, err)
}
