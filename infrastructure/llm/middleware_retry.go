package llm

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

type retryLLM struct {
	next       CoreLLM
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware retries transient failures (see IsRetryable) up to
// maxRetries times with jittered exponential backoff. Streaming callers see
// every attempt begin with a fresh message_start fragment.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &retryLLM{
			next:       next,
			maxRetries: max(0, maxRetries),
			baseDelay:  baseDelay,
			maxDelay:   maxDelay,
		}
	}
}

func (r *retryLLM) DoRequest(ctx context.Context, prompt string, opts RequestOptions) (Completion, error) {
	var (
		lastErr  error
		attempts int
	)
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		attempts++
		completion, err := r.next.DoRequest(ctx, prompt, opts)
		if err == nil {
			return completion, nil
		}
		lastErr = err

		if !IsRetryable(err) || ctx.Err() != nil || attempt == r.maxRetries {
			break
		}

		timer := time.NewTimer(r.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Completion{}, fmt.Errorf("retry interrupted: %w", ctx.Err())
		case <-timer.C:
		}
	}

	if attempts == 1 {
		return Completion{}, lastErr
	}
	return Completion{}, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

// delay is baseDelay*2^attempt with +/-25% jitter, capped at maxDelay.
func (r *retryLLM) delay(attempt int) time.Duration {
	d := r.baseDelay << min(attempt, 30)
	if d <= 0 || (r.maxDelay > 0 && d > r.maxDelay) {
		d = r.maxDelay
	}
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Int64N(int64(d)/2+1)) - d/4
	d += jitter
	if r.maxDelay > 0 && d > r.maxDelay {
		d = r.maxDelay
	}
	return d
}

func (r *retryLLM) GetModel() string { return r.next.GetModel() }
