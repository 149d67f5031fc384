// Package distributed implements the Distributed Layer: a Redis-backed
// priority job queue, a per-(tenant,goal) distributed lock, and a TTL'd
// service registry, all following the SetNX/SAdd/Expire idioms used
// elsewhere in this codebase's Redis-backed stores.
package distributed

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
)

// Lock is a Redis SetNX-based mutual-exclusion primitive keyed on
// (tenant, goal_id), acquired before step 2 of the Agent Loop and
// released on terminal cycle outcome.
type Lock struct {
	client    *redis.Client
	namespace string
	token     string // per-process identity, so Release never drops a lock it doesn't hold
	logger    core.Logger
}

func NewLock(client *redis.Client, namespace string, logger core.Logger) *Lock {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("distributed/lock")
	}
	return &Lock{client: client, namespace: namespace, token: uuid.NewString(), logger: logger}
}

func (l *Lock) redisKey(key string) string { return fmt.Sprintf("%s:locks:%s", l.namespace, key) }

// TryAcquire implements core.DistributedLock: returns (false, nil) when
// another holder already owns the key, never an error for that case.
func (l *Lock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.redisKey(key), l.token, ttl).Result()
	if err != nil {
		return false, core.NewFrameworkErrorWithID("distributed.Lock.TryAcquire", "lock", key, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	return ok, nil
}

// Release deletes the lock only if this Lock instance's token still holds
// it, so a stale caller (e.g. after a missed heartbeat reassigned the job)
// can never release someone else's lock.
func (l *Lock) Release(ctx context.Context, key string) error {
	redisKey := l.redisKey(key)
	held, err := l.client.Get(ctx, redisKey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return core.NewFrameworkErrorWithID("distributed.Lock.Release", "lock", key, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	if held != l.token {
		return nil
	}
	if err := l.client.Del(ctx, redisKey).Err(); err != nil {
		return core.NewFrameworkErrorWithID("distributed.Lock.Release", "lock", key, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	return nil
}

// Renew extends the lock's TTL, failing silently into ErrLockUnavailable
// if this instance no longer holds it (e.g. it already expired).
func (l *Lock) Renew(ctx context.Context, key string, ttl time.Duration) error {
	redisKey := l.redisKey(key)
	held, err := l.client.Get(ctx, redisKey).Result()
	if err == redis.Nil || held != l.token {
		return core.NewFrameworkErrorWithID("distributed.Lock.Renew", "lock", key, core.ErrLockUnavailable)
	}
	if err != nil {
		return core.NewFrameworkErrorWithID("distributed.Lock.Renew", "lock", key, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	if err := l.client.Expire(ctx, redisKey, ttl).Err(); err != nil {
		return core.NewFrameworkErrorWithID("distributed.Lock.Renew", "lock", key, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	return nil
}

// GoalLockKey builds the canonical (tenant, goal) lock key. Lock
// acquisition order across the engine is (tenant, goal) -> learning
// signature -> memory shard, to avoid cross-component deadlock.
func GoalLockKey(tenantID, goalID string) string {
	return tenantID + "/" + goalID
}
