package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
)

func fastRetryConfig() *RetryConfig {
	return &RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, JitterEnabled: false}
}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	attempts, err := Retry(context.Background(), fastRetryConfig(), nil, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	attempts, err := Retry(context.Background(), fastRetryConfig(), nil, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsMaxAttemptsAndWrapsSentinel(t *testing.T) {
	persistent := errors.New("persistent error")
	calls := 0
	attempts, err := Retry(context.Background(), fastRetryConfig(), nil, func() error {
		calls++
		return persistent
	})
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, core.ErrMaxRetriesExceeded)
	assert.ErrorIs(t, err, persistent)
}

func TestRetry_StopsEarlyWhenShouldRetryReturnsFalse(t *testing.T) {
	permanent := errors.New("permanent error")
	calls := 0
	attempts, err := Retry(context.Background(), fastRetryConfig(), func(error) bool { return false }, func() error {
		calls++
		return permanent
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, permanent)
	assert.NotErrorIs(t, err, core.ErrMaxRetriesExceeded)
}

func TestRetry_StopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Retry(ctx, fastRetryConfig(), nil, func() error {
		calls++
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestRetry_NilConfigFallsBackToDefault(t *testing.T) {
	calls := 0
	attempts, err := Retry(context.Background(), nil, nil, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestBackoffDelay_CapsAtMaxDelay(t *testing.T) {
	config := &RetryConfig{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 2 * time.Second, JitterEnabled: false}
	delay := backoffDelay(config, 10)
	assert.Equal(t, 2*time.Second, delay)
}

func TestRetryWithCircuitBreaker_ShortCircuitsWhenOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "t", FailureThreshold: 1, SleepWindow: time.Hour})
	cb.RecordFailure() // opens the breaker

	calls := 0
	_, err := RetryWithCircuitBreaker(context.Background(), fastRetryConfig(), cb, nil, func() error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, core.ErrMaxRetriesExceeded)
	assert.ErrorIs(t, err, core.ErrCircuitBreakerOpen)
	assert.Equal(t, 0, calls, "fn must never run while the breaker is open")
}
