package agent

import (
	"context"
	"testing"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
	"github.com/GeneticxCln/Autonomous-AI--sub000/goalmgr"
	"github.com/GeneticxCln/Autonomous-AI--sub000/learning"
	"github.com/GeneticxCln/Autonomous-AI--sub000/memory"
	"github.com/GeneticxCln/Autonomous-AI--sub000/observation"
	"github.com/GeneticxCln/Autonomous-AI--sub000/planner"
	"github.com/GeneticxCln/Autonomous-AI--sub000/selector"
	"github.com/GeneticxCln/Autonomous-AI--sub000/toolregistry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildLoop(t *testing.T) (*Loop, *goalmgr.Manager, *toolregistry.Registry) {
	t.Helper()
	goals := goalmgr.New(nil, nil)
	tools := toolregistry.New(nil)
	l := New(Deps{
		Goals:    goals,
		Learning: learning.New(learning.DefaultConfig(), nil, nil),
		Memory:   memory.New(memory.DefaultConfig(), nil, nil),
		Planner:  planner.New(0, nil),
		Selector: selector.New(selector.DefaultWeights(), 0.2, nil),
		Tools:    tools,
		Analyzer: observation.New(nil),
	})
	return l, goals, tools
}

func TestRunCycle_NoGoalsReturnsIdle(t *testing.T) {
	l, _, _ := buildLoop(t)
	result, err := l.RunCycle(context.Background(), "t1", map[string]bool{})
	require.NoError(t, err)
	assert.Equal(t, CycleIdle, result.Status)
}

func TestRunCycle_UnplannableGoalIsBlocked(t *testing.T) {
	l, goals, _ := buildLoop(t)
	ctx := context.Background()
	_, err := goals.Add(ctx, "t1", "do something obscure with no matching tools", 0.5, nil, nil)
	require.NoError(t, err)

	result, err := l.RunCycle(ctx, "t1", map[string]bool{})
	require.NoError(t, err)
	assert.Equal(t, CycleBlocked, result.Status)

	g := goals.Get(result.GoalID)
	require.NotNil(t, g)
	assert.Equal(t, core.GoalBlocked, g.Status)
}

func TestRunCycle_SingleStepPlanCompletesOnSuccess(t *testing.T) {
	l, goals, tools := buildLoop(t)
	ctx := context.Background()

	require.NoError(t, tools.Register("search", func(ctx context.Context, params map[string]interface{}) (*toolregistry.Result, error) {
		return &toolregistry.Result{Success: true}, nil
	}, nil, toolregistry.DefaultRetryPolicy()))

	goalID, err := goals.Add(ctx, "t1", "find information about gophers", 0.5, nil, map[string]interface{}{"query": "gophers"})
	require.NoError(t, err)

	var result Result
	for i := 0; i < 5; i++ {
		result, err = l.RunCycle(ctx, "t1", map[string]bool{"search": true, "summarize": true})
		require.NoError(t, err)
		if result.Status == CycleCompleted || result.Status == CycleFailed || result.Status == CycleBlocked {
			break
		}
	}

	assert.Equal(t, goalID, result.GoalID)
	assert.Equal(t, CycleCompleted, result.Status)

	g := goals.Get(goalID)
	require.NotNil(t, g)
	assert.Equal(t, core.GoalCompleted, g.Status)
	assert.Equal(t, 1.0, g.Progress)
}

func TestRunCycle_RepeatedFailuresMarkGoalFailed(t *testing.T) {
	l, goals, tools := buildLoop(t)
	l.maxFailures = 2
	ctx := context.Background()

	require.NoError(t, tools.Register("search", func(ctx context.Context, params map[string]interface{}) (*toolregistry.Result, error) {
		return nil, &core.ToolError{Code: "DOWN", Category: core.CategoryServiceError, Retryable: false}
	}, nil, toolregistry.RetryPolicy{MaxAttempts: 1, Timeout: 1000000000}))

	goalID, err := goals.Add(ctx, "t1", "find information about gophers", 0.5, nil, map[string]interface{}{"query": "gophers"})
	require.NoError(t, err)

	var result Result
	for i := 0; i < 6; i++ {
		result, err = l.RunCycle(ctx, "t1", map[string]bool{"search": true, "summarize": true})
		require.NoError(t, err)
		if result.Status == CycleFailed {
			break
		}
	}

	assert.Equal(t, goalID, result.GoalID)
	assert.Equal(t, CycleFailed, result.Status)

	g := goals.Get(goalID)
	require.NotNil(t, g)
	assert.Equal(t, core.GoalFailed, g.Status)
}
