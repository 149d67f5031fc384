package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
)

// openTestStore connects to a real Postgres instance named by
// POSTGRES_TEST_DSN, applying migrations to that database as given (no
// separate schema is created). Skipped
// when the variable is unset, following this repo's convention of only
// exercising infrastructure-backed stores against a real dependency (unlike
// the Redis-backed distributed package, Postgres has no miniredis-grade
// in-memory stand-in among this codebase's dependencies).
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping Postgres-backed test")
	}
	ctx := context.Background()
	store, err := Open(ctx, Config{DSN: dsn, MigrationsPath: "migrations", Logger: core.NoOpLogger{}})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestStore_SaveGoal_RoundTripsThroughGetGoal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	goal := &core.Goal{
		ID: uuid.NewString(), TenantID: "t1", Description: "find gophers",
		Priority: 0.5, Status: core.GoalPending, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.SaveGoal(ctx, goal))

	got, err := s.GetGoal(ctx, "t1", goal.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, goal.Description, got.Description)
	assert.Equal(t, goal.Status, got.Status)
}

func TestStore_GetGoal_ReturnsNilWhenMissing(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetGoal(context.Background(), "t1", "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_SaveGoal_UpsertUpdatesStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	goal := &core.Goal{ID: uuid.NewString(), TenantID: "t1", Description: "d", Status: core.GoalPending, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.SaveGoal(ctx, goal))

	goal.Status = core.GoalCompleted
	goal.UpdatedAt = now.Add(time.Second)
	require.NoError(t, s.SaveGoal(ctx, goal))

	got, err := s.GetGoal(ctx, "t1", goal.ID)
	require.NoError(t, err)
	assert.Equal(t, core.GoalCompleted, got.Status)
}

func TestStore_ListGoals_FiltersByStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	tenant := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, s.SaveGoal(ctx, &core.Goal{ID: uuid.NewString(), TenantID: tenant, Status: core.GoalPending, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.SaveGoal(ctx, &core.Goal{ID: uuid.NewString(), TenantID: tenant, Status: core.GoalCompleted, CreatedAt: now, UpdatedAt: now}))

	pending, err := s.ListGoals(ctx, tenant, core.GoalPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	all, err := s.ListGoals(ctx, tenant, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_SaveJob_RoundTripsThroughGetJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := &core.Job{ID: uuid.NewString(), TenantID: "t1", GoalRef: "g1", Priority: core.PriorityNormal, Status: core.JobQueued, EnqueuedAt: time.Now().UTC().Truncate(time.Microsecond)}
	require.NoError(t, s.SaveJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.GoalRef, got.GoalRef)
}

func TestStore_SavePattern_RoundTripsAndLists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	tenant := uuid.NewString()

	pattern := &core.Pattern{
		PatternID: uuid.NewString(), Signature: tenant + "/research_summarize::gophers",
		ActionSequence: []string{"search", "summarize"}, SuccessRate: 0.8,
		LastUsedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, s.SavePattern(ctx, pattern))

	got, err := s.GetPattern(ctx, tenant, pattern.Signature)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pattern.ActionSequence, got.ActionSequence)

	list, err := s.ListPatterns(ctx, tenant)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeletePattern(ctx, tenant, pattern.PatternID))
	got, err = s.GetPattern(ctx, tenant, pattern.Signature)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_AppendEpisodic_ListsInSequenceOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	tenant, goalID := uuid.NewString(), uuid.NewString()

	for i := int64(1); i <= 3; i++ {
		entry := core.EpisodicEntry{Seq: i, Kind: core.MemoryKindNote, Payload: map[string]interface{}{"n": i}, Ts: time.Now().UTC()}
		require.NoError(t, s.AppendEpisodic(ctx, tenant, goalID, entry))
	}

	entries, err := s.ListEpisodic(ctx, tenant, goalID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(1), entries[0].Seq)
	assert.Equal(t, int64(3), entries[2].Seq)
}

func TestStore_AppendEpisodic_RejectsDuplicateSeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	tenant, goalID := uuid.NewString(), uuid.NewString()

	entry := core.EpisodicEntry{Seq: 1, Kind: core.MemoryKindNote, Payload: "x", Ts: time.Now().UTC()}
	require.NoError(t, s.AppendEpisodic(ctx, tenant, goalID, entry))
	err := s.AppendEpisodic(ctx, tenant, goalID, entry)
	assert.Error(t, err)
}
