package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
)

// RetryConfig configures exponential backoff with jitter: base*2^k +
// jitter, up to MaxAttempts total attempts.
type RetryConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	JitterEnabled bool
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		JitterEnabled: true,
	}
}

// Retry runs fn up to config.MaxAttempts times, sleeping
// base·2^k + jitter between attempts, stopping early on ctx cancellation
// or when shouldRetry(err) returns false. shouldRetry may be nil, in which
// case every error is treated as retryable.
func Retry(ctx context.Context, config *RetryConfig, shouldRetry func(error) bool, fn func() error) (attempts int, err error) {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return attempt - 1, ctx.Err()
		default:
		}

		lastErr = fn()
		attempts = attempt
		if lastErr == nil {
			return attempts, nil
		}
		if shouldRetry != nil && !shouldRetry(lastErr) {
			return attempts, lastErr
		}
		if attempt == config.MaxAttempts {
			break
		}

		delay := backoffDelay(config, attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, ctx.Err()
		case <-timer.C:
		}
	}

	return attempts, fmt.Errorf("%w after %d attempts: %w", core.ErrMaxRetriesExceeded, attempts, lastErr)
}

func backoffDelay(config *RetryConfig, attempt int) time.Duration {
	delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	if config.JitterEnabled {
		jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
		delay += jitter
	}
	return delay
}

// BackoffDelay computes base*2^(attempt-1), clamped to max, plus jitter up
// to half the clamped delay. Exposed for callers outside Retry's own loop
// that need the same curve for a single wait, such as a queue requeuing a
// job after a transient, attempt-exempt failure.
func BackoffDelay(base, max time.Duration, attempt int, jitter bool) time.Duration {
	return backoffDelay(&RetryConfig{BaseDelay: base, MaxDelay: max, JitterEnabled: jitter}, attempt)
}

// RetryWithCircuitBreaker composes Retry with a CircuitBreaker. While the
// circuit is open fn is not called: each attempt fails with
// ErrCircuitBreakerOpen and still counts toward MaxAttempts, unless
// shouldRetry rejects that error.
func RetryWithCircuitBreaker(ctx context.Context, config *RetryConfig, cb *CircuitBreaker, shouldRetry func(error) bool, fn func() error) (int, error) {
	return Retry(ctx, config, shouldRetry, func() error {
		if !cb.CanExecute() {
			return core.ErrCircuitBreakerOpen
		}
		err := fn()
		if err != nil {
			cb.RecordFailure()
			return err
		}
		cb.RecordSuccess()
		return nil
	})
}
