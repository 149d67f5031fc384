package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
)

// Registry is a Redis-backed service registry implementing
// core.Registry/core.Discovery: workers register themselves with a TTL and
// heartbeat to stay live, indexed by kind and capability through
// namespaced sets so Discovery can answer either query without a full
// scan.
type Registry struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	logger    core.Logger
}

func NewRegistry(client *redis.Client, namespace string, ttl time.Duration, logger core.Logger) *Registry {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("distributed/registry")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Registry{client: client, namespace: namespace, ttl: ttl, logger: logger}
}

func (r *Registry) serviceKey(id string) string { return fmt.Sprintf("%s:services:%s", r.namespace, id) }
func (r *Registry) kindKey(kind string) string  { return fmt.Sprintf("%s:kinds:%s", r.namespace, kind) }
func (r *Registry) capKey(capability string) string {
	return fmt.Sprintf("%s:capabilities:%s", r.namespace, capability)
}

// Register implements core.Registry: writes the entry and indexes it by
// kind and every declared capability, all under the same TTL, in one
// atomic pipeline so a reader never observes a partially-indexed entry.
func (r *Registry) Register(ctx context.Context, entry *core.ServiceEntry) error {
	if entry.ServiceID == "" {
		return core.NewFrameworkError("distributed.Registry.Register", "service", core.ErrInvalidInput)
	}
	entry.LastHeartbeat = time.Now()
	if entry.TTLMillis <= 0 {
		entry.TTLMillis = r.ttl.Milliseconds()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return core.NewFrameworkErrorWithID("distributed.Registry.Register", "service", entry.ServiceID, fmt.Errorf("%w: %v", core.ErrInvalidInput, err))
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.serviceKey(entry.ServiceID), data, r.ttl)
	if entry.Kind != "" {
		pipe.SAdd(ctx, r.kindKey(entry.Kind), entry.ServiceID)
		pipe.Expire(ctx, r.kindKey(entry.Kind), r.ttl*2)
	}
	for _, capability := range entry.Capabilities {
		pipe.SAdd(ctx, r.capKey(capability), entry.ServiceID)
		pipe.Expire(ctx, r.capKey(capability), r.ttl*2)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return core.NewFrameworkErrorWithID("distributed.Registry.Register", "service", entry.ServiceID, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}

	r.logger.InfoWithContext(ctx, "service registered", map[string]interface{}{
		"service_id": entry.ServiceID, "kind": entry.Kind, "capabilities": len(entry.Capabilities),
	})
	return nil
}

// Heartbeat refreshes an entry's TTL and LastHeartbeat without touching
// its indexes (those carry their own longer-lived TTL, refreshed only on
// Register, matching the teacher's index-expiry-outlives-entry pattern).
func (r *Registry) Heartbeat(ctx context.Context, serviceID string) error {
	key := r.serviceKey(serviceID)
	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return core.NewFrameworkErrorWithID("distributed.Registry.Heartbeat", "service", serviceID, core.ErrInvalidInput)
	}
	if err != nil {
		return core.NewFrameworkErrorWithID("distributed.Registry.Heartbeat", "service", serviceID, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}

	var entry core.ServiceEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return core.NewFrameworkErrorWithID("distributed.Registry.Heartbeat", "service", serviceID, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	entry.LastHeartbeat = time.Now()
	updated, err := json.Marshal(entry)
	if err != nil {
		return core.NewFrameworkErrorWithID("distributed.Registry.Heartbeat", "service", serviceID, fmt.Errorf("%w: %v", core.ErrInvalidInput, err))
	}
	if err := r.client.Set(ctx, key, updated, r.ttl).Err(); err != nil {
		return core.NewFrameworkErrorWithID("distributed.Registry.Heartbeat", "service", serviceID, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	return nil
}

// Unregister removes the entry and prunes it from every index it joined.
func (r *Registry) Unregister(ctx context.Context, serviceID string) error {
	key := r.serviceKey(serviceID)
	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return core.NewFrameworkErrorWithID("distributed.Registry.Unregister", "service", serviceID, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}

	var entry core.ServiceEntry
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	if json.Unmarshal([]byte(data), &entry) == nil {
		if entry.Kind != "" {
			pipe.SRem(ctx, r.kindKey(entry.Kind), serviceID)
		}
		for _, capability := range entry.Capabilities {
			pipe.SRem(ctx, r.capKey(capability), serviceID)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return core.NewFrameworkErrorWithID("distributed.Registry.Unregister", "service", serviceID, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	return nil
}

// FindByKind implements core.Discovery, filtering out entries whose
// index membership outlived their (shorter-TTL'd) main key.
func (r *Registry) FindByKind(ctx context.Context, kind string) ([]*core.ServiceEntry, error) {
	ids, err := r.client.SMembers(ctx, r.kindKey(kind)).Result()
	if err != nil {
		return nil, core.NewFrameworkError("distributed.Registry.FindByKind", "service", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	return r.loadLive(ctx, ids)
}

// FindByCapability implements core.Discovery.
func (r *Registry) FindByCapability(ctx context.Context, capability string) ([]*core.ServiceEntry, error) {
	ids, err := r.client.SMembers(ctx, r.capKey(capability)).Result()
	if err != nil {
		return nil, core.NewFrameworkError("distributed.Registry.FindByCapability", "service", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	return r.loadLive(ctx, ids)
}

func (r *Registry) loadLive(ctx context.Context, ids []string) ([]*core.ServiceEntry, error) {
	now := time.Now()
	out := make([]*core.ServiceEntry, 0, len(ids))
	for _, id := range ids {
		data, err := r.client.Get(ctx, r.serviceKey(id)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, core.NewFrameworkErrorWithID("distributed.Registry.loadLive", "service", id, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
		}
		var entry core.ServiceEntry
		if json.Unmarshal([]byte(data), &entry) != nil {
			continue
		}
		if entry.Expired(now) {
			continue
		}
		out = append(out, &entry)
	}
	return out, nil
}
