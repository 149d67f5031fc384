package toolregistry

import (
	"context"
	"testing"
	"time"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"required":             []interface{}{"query"},
		"additionalProperties": true,
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string"},
		},
	}
}

func TestInvoke_ValidatesParams(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("search", func(ctx context.Context, params map[string]interface{}) (*Result, error) {
		return &Result{Success: true}, nil
	}, searchSchema(), DefaultRetryPolicy()))

	_, err := r.Invoke(context.Background(), "a1", "g1", "search", map[string]interface{}{})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestInvoke_SuccessProducesObservation(t *testing.T) {
	r := New(nil)
	score := 0.8
	require.NoError(t, r.Register("search", func(ctx context.Context, params map[string]interface{}) (*Result, error) {
		return &Result{Success: true, Score: &score, Signals: map[string]float64{"hits": 3}}, nil
	}, searchSchema(), DefaultRetryPolicy()))

	obs, err := r.Invoke(context.Background(), "a1", "g1", "search", map[string]interface{}{"query": "X"})
	require.NoError(t, err)
	assert.True(t, obs.Success)
	assert.Equal(t, 0.8, obs.Score)
	assert.Equal(t, float64(3), obs.Signals["hits"])
}

func TestInvoke_UnknownToolFails(t *testing.T) {
	r := New(nil)
	_, err := r.Invoke(context.Background(), "a1", "g1", "missing", nil)
	assert.ErrorIs(t, err, core.ErrToolNotFound)
}

func TestInvoke_RetriesTransientThenSucceeds(t *testing.T) {
	r := New(nil)
	attempts := 0
	require.NoError(t, r.Register("flaky", func(ctx context.Context, params map[string]interface{}) (*Result, error) {
		attempts++
		if attempts < 3 {
			return nil, &core.ToolError{Code: "TIMEOUT", Category: core.CategoryServiceError, Retryable: true}
		}
		return &Result{Success: true}, nil
	}, nil, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Timeout: time.Second}))

	obs, err := r.Invoke(context.Background(), "a1", "g1", "flaky", nil)
	require.NoError(t, err)
	assert.True(t, obs.Success)
	assert.Equal(t, 3, attempts)
}

func TestInvoke_PermanentErrorFailsImmediately(t *testing.T) {
	r := New(nil)
	attempts := 0
	require.NoError(t, r.Register("bad-auth", func(ctx context.Context, params map[string]interface{}) (*Result, error) {
		attempts++
		return nil, &core.ToolError{Code: "AUTH", Category: core.CategoryAuthError, Retryable: false}
	}, nil, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Timeout: time.Second}))

	obs, err := r.Invoke(context.Background(), "a1", "g1", "bad-auth", nil)
	require.Error(t, err)
	assert.False(t, obs.Success)
	assert.Equal(t, -1.0, obs.Score)
	assert.Equal(t, 1, attempts, "permanent errors must not be retried")
}

func TestRegister_RejectsDuplicateName(t *testing.T) {
	r := New(nil)
	handler := func(ctx context.Context, params map[string]interface{}) (*Result, error) { return &Result{Success: true}, nil }
	require.NoError(t, r.Register("dup", handler, nil, DefaultRetryPolicy()))
	err := r.Register("dup", handler, nil, DefaultRetryPolicy())
	assert.ErrorIs(t, err, core.ErrAlreadyRegistered)
}
