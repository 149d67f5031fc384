package observation

import (
	"testing"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
	"github.com/stretchr/testify/assert"
)

func TestAnalyze_HandlerFailureMarksFailureAndAnomaly(t *testing.T) {
	a := New(nil)
	obs := &core.Observation{GoalID: "g1", Success: false}
	out, hints := a.Analyze(obs, nil)

	assert.False(t, out.Success)
	assert.Equal(t, -0.5, out.Score)
	assert.True(t, out.Anomaly)
	assert.False(t, hints.RetryWithSmallerScope)
}

func TestAnalyze_UserInputErrorIsNotAnomaly(t *testing.T) {
	a := New(nil)
	obs := &core.Observation{GoalID: "g1", Success: false}
	handlerErr := &core.ToolError{Code: "BAD_PARAM", Category: core.CategoryInputError, Retryable: false}
	out, _ := a.Analyze(obs, handlerErr)

	assert.False(t, out.Success)
	assert.False(t, out.Anomaly, "a user/input error should not be flagged as an anomaly")
}

func TestAnalyze_LatencyOutlierFlagsAnomalyWithHint(t *testing.T) {
	a := New(nil)
	for i := 0; i < 20; i++ {
		obs := &core.Observation{GoalID: "g1", Success: true, LatencyMS: 100}
		a.Analyze(obs, nil)
	}

	spike := &core.Observation{GoalID: "g1", Success: true, LatencyMS: 10_000}
	out, hints := a.Analyze(spike, nil)

	assert.True(t, out.Anomaly)
	assert.True(t, hints.RetryWithSmallerScope)
	assert.NotEmpty(t, hints.Notes)
}

func TestAnalyze_StableLatencyIsNotAnomalous(t *testing.T) {
	a := New(nil)
	var out *core.Observation
	for i := 0; i < 20; i++ {
		obs := &core.Observation{GoalID: "g1", Success: true, LatencyMS: 100, PayloadBytes: 50}
		out, _ = a.Analyze(obs, nil)
	}

	assert.False(t, out.Anomaly)
	assert.True(t, out.Success)
}

func TestAnalyze_PayloadSizeDeviationFlagsAnomaly(t *testing.T) {
	a := New(nil)
	for i := 0; i < 20; i++ {
		obs := &core.Observation{GoalID: "g1", Success: true, LatencyMS: 100, PayloadBytes: 100}
		a.Analyze(obs, nil)
	}

	outlier := &core.Observation{GoalID: "g1", Success: true, LatencyMS: 100, PayloadBytes: 1_000_000}
	out, hints := a.Analyze(outlier, nil)

	assert.True(t, out.Anomaly)
	assert.True(t, hints.RetryWithSmallerScope)
}
