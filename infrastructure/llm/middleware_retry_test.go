package llm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sotruth/dualtrack/internal/ports"
)

func TestRetryMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		failUntil int
		retries   int
		wantCalls int
		wantErr   error
	}{
		{name: "succeeds first time", retries: 2, wantCalls: 1},
		{name: "recovers from rate limit", err: ports.ErrRateLimited, failUntil: 2, retries: 2, wantCalls: 3},
		{name: "gives up", err: ports.ErrServiceUnavailable, failUntil: 5, retries: 2, wantCalls: 3, wantErr: ports.ErrServiceUnavailable},
		{name: "does not retry permanent errors", err: ports.ErrAuthenticationFailed, failUntil: 5, retries: 2, wantCalls: 1, wantErr: ports.ErrAuthenticationFailed},
		{name: "does not retry open circuit", err: ErrCircuitOpen, failUntil: 5, retries: 2, wantCalls: 1, wantErr: ErrCircuitOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core := newMockCoreLLM()
			core.Err = tt.err
			core.FailUntilAttempt = tt.failUntil
			wrapped := RetryMiddleware(tt.retries, time.Millisecond, 5*time.Millisecond)(core)

			c, err := wrapped.DoRequest(context.Background(), "p", RequestOptions{})
			assert.Equal(t, tt.wantCalls, core.calls())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "test response", c.Text)
		})
	}
}

func TestRetryMiddleware_EachAttemptStartsAMessage(t *testing.T) {
	core := newMockCoreLLM()
	core.Err = ports.ErrRateLimited
	core.FailUntilAttempt = 1
	handler, got := collectFragments()

	_, err := RetryMiddleware(1, time.Millisecond, time.Millisecond)(core).
		DoRequest(context.Background(), "p", RequestOptions{OnFragment: handler})
	require.NoError(t, err)

	// Accumulate the way a collector does: reset on message_start.
	var text strings.Builder
	starts := 0
	for _, f := range *got {
		switch f.Kind {
		case ports.FragmentMessageStart:
			starts++
			text.Reset()
		case ports.FragmentText:
			text.WriteString(f.Text)
		}
	}
	assert.Equal(t, 2, starts)
	assert.Equal(t, "test response", text.String())
}

func TestRetryMiddleware_ContextCancelledDuringBackoff(t *testing.T) {
	core := newMockCoreLLM()
	core.Err = ports.ErrRateLimited
	core.FailUntilAttempt = 10
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := RetryMiddleware(5, time.Second, time.Second)(core).DoRequest(ctx, "p", RequestOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, core.calls())
}

func TestRetryMiddleware_DelayBounds(t *testing.T) {
	r := &retryLLM{baseDelay: 100 * time.Millisecond, maxDelay: time.Second}
	for attempt := range 8 {
		d := r.delay(attempt)
		assert.Positive(t, d)
		assert.LessOrEqual(t, d, time.Second)
	}
}
