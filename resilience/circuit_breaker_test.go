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

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("t"))
	assert.Equal(t, "closed", cb.GetState())
	assert.True(t, cb.CanExecute())
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "t", FailureThreshold: 2, SleepWindow: time.Hour, HalfOpenRequests: 1})

	cb.RecordFailure()
	assert.Equal(t, "closed", cb.GetState())
	cb.RecordFailure()
	assert.Equal(t, "open", cb.GetState())
	assert.False(t, cb.CanExecute())
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "t", FailureThreshold: 2, SleepWindow: time.Hour})

	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, "closed", cb.GetState(), "the success between failures should have reset the consecutive count")
}

func TestCircuitBreaker_TransitionsToHalfOpenAfterSleepWindow(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "t", FailureThreshold: 1, SleepWindow: 10 * time.Millisecond, HalfOpenRequests: 1})
	cb.RecordFailure()
	require.Equal(t, "open", cb.GetState())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, cb.CanExecute())
	assert.Equal(t, "half-open", cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "t", FailureThreshold: 1, SleepWindow: 10 * time.Millisecond, HalfOpenRequests: 1})
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	require.True(t, cb.CanExecute())

	cb.RecordFailure()
	assert.Equal(t, "open", cb.GetState())
}

func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "t", FailureThreshold: 1, SleepWindow: 10 * time.Millisecond, HalfOpenRequests: 1})
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	require.True(t, cb.CanExecute())

	cb.RecordSuccess()
	assert.Equal(t, "closed", cb.GetState())
}

func TestCircuitBreaker_Execute_RejectsWhenOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "t", FailureThreshold: 1, SleepWindow: time.Hour})
	cb.RecordFailure()

	calls := 0
	err := cb.Execute(context.Background(), func() error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, core.ErrCircuitBreakerOpen)
	assert.Equal(t, 0, calls)
}

func TestCircuitBreaker_Execute_RecordsOutcome(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("t"))

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	boom := errors.New("boom")
	err := cb.Execute(context.Background(), func() error { return boom })
	assert.ErrorIs(t, err, boom)

	metrics := cb.GetMetrics()
	assert.EqualValues(t, 1, metrics["successes"])
	assert.EqualValues(t, 1, metrics["failures"])
}

func TestCircuitBreaker_ExecuteWithTimeout_ReturnsDeadlineExceeded(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("t"))
	err := cb.ExecuteWithTimeout(context.Background(), 5*time.Millisecond, func() error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCircuitBreaker_Reset_ReturnsToClosed(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "t", FailureThreshold: 1, SleepWindow: time.Hour})
	cb.RecordFailure()
	require.Equal(t, "open", cb.GetState())

	cb.Reset()
	assert.Equal(t, "closed", cb.GetState())
	assert.True(t, cb.CanExecute())
}

var _ core.CircuitBreaker = (*CircuitBreaker)(nil)
