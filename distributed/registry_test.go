package distributed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	_, client := setupTestRedis(t)
	return NewRegistry(client, "test", time.Minute, nil)
}

func TestRegistry_Register_IsFindableByKindAndCapability(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	entry := &core.ServiceEntry{
		ServiceID:    "w1",
		Kind:         "worker",
		Capabilities: []string{"search", "summarize"},
		Addr:         "10.0.0.1:9000",
	}
	require.NoError(t, r.Register(ctx, entry))

	byKind, err := r.FindByKind(ctx, "worker")
	require.NoError(t, err)
	require.Len(t, byKind, 1)
	assert.Equal(t, "w1", byKind[0].ServiceID)

	byCap, err := r.FindByCapability(ctx, "search")
	require.NoError(t, err)
	require.Len(t, byCap, 1)
	assert.Equal(t, "w1", byCap[0].ServiceID)
}

func TestRegistry_Register_RejectsEmptyServiceID(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Register(context.Background(), &core.ServiceEntry{Kind: "worker"})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestRegistry_Heartbeat_RefreshesLastHeartbeat(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	entry := &core.ServiceEntry{ServiceID: "w1", Kind: "worker"}
	require.NoError(t, r.Register(ctx, entry))

	time.Sleep(time.Millisecond)
	require.NoError(t, r.Heartbeat(ctx, "w1"))

	found, err := r.FindByKind(ctx, "worker")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[0].LastHeartbeat.After(entry.LastHeartbeat))
}

func TestRegistry_Heartbeat_FailsForUnknownService(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Heartbeat(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestRegistry_Unregister_RemovesFromIndexes(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, &core.ServiceEntry{ServiceID: "w1", Kind: "worker", Capabilities: []string{"search"}}))

	require.NoError(t, r.Unregister(ctx, "w1"))

	byKind, err := r.FindByKind(ctx, "worker")
	require.NoError(t, err)
	assert.Empty(t, byKind)

	byCap, err := r.FindByCapability(ctx, "search")
	require.NoError(t, err)
	assert.Empty(t, byCap)
}

func TestRegistry_FindByKind_ExcludesExpiredEntries(t *testing.T) {
	mr, client := setupTestRedis(t)
	r := NewRegistry(client, "test", 10*time.Millisecond, nil)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, &core.ServiceEntry{ServiceID: "w1", Kind: "worker"}))

	mr.FastForward(time.Minute)

	found, err := r.FindByKind(ctx, "worker")
	require.NoError(t, err)
	assert.Empty(t, found, "the main service key (ttl) and its kind index (2x ttl) should both have expired out of Redis")
}
