package goalmgr

import (
	"context"
	"testing"
	"time"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_ValidatesInput(t *testing.T) {
	m := New(nil, nil)
	ctx := context.Background()

	_, err := m.Add(ctx, "t1", "", 0.5, nil, nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = m.Add(ctx, "t1", "do thing", 1.5, nil, nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestAdd_DeduplicatesWithinWindow(t *testing.T) {
	m := New(nil, nil)
	ctx := context.Background()

	id1, err := m.Add(ctx, "t1", "summarize topic X", 0.5, nil, nil)
	require.NoError(t, err)

	id2, err := m.Add(ctx, "t1", "summarize topic X", 0.5, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	assert.Len(t, m.List(Filter{TenantID: "t1"}), 1)
}

func TestAdd_AllowsDuplicateAfterWindow(t *testing.T) {
	m := New(nil, nil)
	fakeNow := time.Now()
	m.now = func() time.Time { return fakeNow }
	ctx := context.Background()

	id1, err := m.Add(ctx, "t1", "summarize topic X", 0.5, nil, nil)
	require.NoError(t, err)

	fakeNow = fakeNow.Add(11 * time.Second)
	id2, err := m.Add(ctx, "t1", "summarize topic X", 0.5, nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestNext_DependencyGating(t *testing.T) {
	m := New(nil, nil)
	ctx := context.Background()

	bID, err := m.Add(ctx, "t1", "goal B", 0.1, nil, nil)
	require.NoError(t, err)
	_, err = m.Add(ctx, "t1", "goal A", 0.9, []string{bID}, nil)
	require.NoError(t, err)

	next, err := m.Next(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, bID, next.ID, "A depends on B, which is still pending")

	require.NoError(t, m.Mark(ctx, bID, core.GoalActive, nil))
	require.NoError(t, m.Mark(ctx, bID, core.GoalCompleted, nil))

	next, err = m.Next(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "goal A", next.Description)
}

func TestNext_TieBreakByCreatedAtThenID(t *testing.T) {
	m := New(nil, nil)
	ctx := context.Background()

	id1, _ := m.Add(ctx, "t1", "first", 0.5, nil, nil)
	id2, _ := m.Add(ctx, "t1", "second", 0.5, nil, nil)

	next, err := m.Next(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, id1, next.ID)
	_ = id2
}

func TestMark_StateMachine(t *testing.T) {
	m := New(nil, nil)
	ctx := context.Background()
	id, _ := m.Add(ctx, "t1", "goal", 0.5, nil, nil)

	require.NoError(t, m.Mark(ctx, id, core.GoalActive, nil))

	err := m.Mark(ctx, id, core.GoalPending, nil)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	require.NoError(t, m.Mark(ctx, id, core.GoalPaused, nil))
	require.NoError(t, m.Mark(ctx, id, core.GoalActive, nil))

	p := 0.5
	require.NoError(t, m.Mark(ctx, id, core.GoalActive, &p))
	lower := 0.1
	err = m.Mark(ctx, id, core.GoalActive, &lower)
	assert.ErrorIs(t, err, core.ErrInvalidTransition, "progress must be monotonic")

	require.NoError(t, m.Mark(ctx, id, core.GoalCompleted, nil))

	err = m.Mark(ctx, id, core.GoalActive, nil)
	assert.ErrorIs(t, err, core.ErrInvalidTransition, "terminal states are final")
}

func TestMark_ActiveRequiresDependenciesCompleted(t *testing.T) {
	m := New(nil, nil)
	ctx := context.Background()

	bID, _ := m.Add(ctx, "t1", "goal B", 0.1, nil, nil)
	aID, _ := m.Add(ctx, "t1", "goal A", 0.9, []string{bID}, nil)

	err := m.Mark(ctx, aID, core.GoalActive, nil)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}
