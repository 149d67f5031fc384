// Package goalmgr implements the Goal Manager: a priority queue over
// Goals with dependency gating and a strict status state machine.
package goalmgr

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
	"github.com/google/uuid"
)

// dedupWindow is how long (tenant, normalized_description) pairs are
// remembered to reject accidental duplicate Add calls.
const dedupWindow = 10 * time.Second

// Filter narrows List to goals matching every non-zero field.
type Filter struct {
	TenantID string
	Status   core.GoalStatus
}

// Manager is a Goal Manager backed by an in-memory index for the hot
// path, with every mutation written through to an optional core.GoalStore
// so goals survive a worker restart. It is safe for concurrent use; the
// distributed layer is expected to wrap it so only one worker drives a
// given goal at a time (the (tenant, goal) lock), but Manager
// itself does not assume that: its own mutex keeps bookkeeping consistent
// regardless of caller concurrency.
type Manager struct {
	mu     sync.Mutex
	goals  map[string]*core.Goal
	dedup  map[string]time.Time // "tenant\x00description" -> added_at
	now    func() time.Time
	logger core.Logger
	store  core.GoalStore
}

// New creates an empty Goal Manager. store may be nil, in which case goals
// live only in process memory; a non-nil store makes goal state durable
// across restarts.
func New(logger core.Logger, store core.GoalStore) *Manager {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("goalmgr")
	}
	return &Manager{
		goals:  make(map[string]*core.Goal),
		dedup:  make(map[string]time.Time),
		now:    time.Now,
		logger: logger,
		store:  store,
	}
}

// LoadFromStore populates the in-memory index from every non-terminal
// persisted goal for tenantID, for warm restart after a worker crash. A
// nil store makes this a no-op.
func (m *Manager) LoadFromStore(ctx context.Context, tenantID string) error {
	if m.store == nil {
		return nil
	}
	statuses := []core.GoalStatus{core.GoalPending, core.GoalActive, core.GoalPaused, core.GoalBlocked}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, status := range statuses {
		goals, err := m.store.ListGoals(ctx, tenantID, status)
		if err != nil {
			return core.NewFrameworkError("goalmgr.LoadFromStore", "goal", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
		}
		for _, g := range goals {
			cp := *g
			m.goals[cp.ID] = &cp
			m.dedup[dedupKey(cp.TenantID, cp.Description)] = cp.CreatedAt
		}
	}
	return nil
}

// Add validates and inserts a new pending Goal, returning its id.
// Duplicate (tenant, normalized_description) adds within dedupWindow
// return the id of the original goal instead of creating a new one.
func (m *Manager) Add(ctx context.Context, tenantID, description string, priority float64, deps []string, constraints map[string]interface{}) (string, error) {
	if description == "" {
		return "", core.NewFrameworkError("goalmgr.Add", "goal", core.ErrInvalidInput)
	}
	if priority < 0 || priority > 1 {
		return "", core.NewFrameworkError("goalmgr.Add", "goal", core.ErrInvalidInput)
	}

	m.mu.Lock()
	key := dedupKey(tenantID, description)
	now := m.now()
	if addedAt, ok := m.dedup[key]; ok && now.Sub(addedAt) < dedupWindow {
		if id := m.findByDedupKeyLocked(key); id != "" {
			m.mu.Unlock()
			return id, nil
		}
	}

	id := uuid.NewString()
	g := &core.Goal{
		ID:           id,
		TenantID:     tenantID,
		Description:  description,
		Priority:     priority,
		Status:       core.GoalPending,
		Dependencies: append([]string(nil), deps...),
		Constraints:  constraints,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.goals[id] = g
	m.dedup[key] = now
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveGoal(ctx, g); err != nil {
			m.mu.Lock()
			delete(m.goals, id)
			delete(m.dedup, key)
			m.mu.Unlock()
			return "", core.NewFrameworkErrorWithID("goalmgr.Add", "goal", id, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
		}
	}

	m.logger.InfoWithContext(ctx, "goal added", map[string]interface{}{"goal_id": id, "tenant_id": tenantID})
	return id, nil
}

func (m *Manager) findByDedupKeyLocked(key string) string {
	for id, g := range m.goals {
		if dedupKey(g.TenantID, g.Description) == key {
			return id
		}
	}
	return ""
}

// dedupKey normalizes description by lowercasing it and collapsing runs of
// whitespace, so trivially different spellings of one goal share a key.
func dedupKey(tenantID, description string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(description)), " ")
	return tenantID + "\x00" + normalized
}

// Next returns the highest-priority eligible goal whose dependencies are
// all completed, tie-broken by earliest CreatedAt then lowest id. A goal
// is eligible if it is Pending (not yet started) or already Active
// (continuing a multi-cycle plan); the Distributed Layer re-enqueues a
// job referencing the same goal after every non-terminal cycle, and that
// continuation is discovered here rather than through a separate queue.
// Returns nil if no goal is eligible.
func (m *Manager) Next(ctx context.Context, tenantID string) (*core.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []*core.Goal
	for _, g := range m.goals {
		if tenantID != "" && g.TenantID != tenantID {
			continue
		}
		if g.Status != core.GoalPending && g.Status != core.GoalActive {
			continue
		}
		if m.dependenciesCompleteLocked(g) {
			candidates = append(candidates, g)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	chosen := *candidates[0]
	return &chosen, nil
}

func (m *Manager) dependenciesCompleteLocked(g *core.Goal) bool {
	for _, depID := range g.Dependencies {
		dep, ok := m.goals[depID]
		if !ok || dep.Status != core.GoalCompleted {
			return false
		}
	}
	return true
}

// validTransitions encodes the Goal Manager's status state machine.
var validTransitions = map[core.GoalStatus]map[core.GoalStatus]bool{
	core.GoalPending: {core.GoalActive: true, core.GoalBlocked: true},
	core.GoalActive:  {core.GoalPaused: true, core.GoalCompleted: true, core.GoalFailed: true, core.GoalBlocked: true},
	core.GoalPaused:  {core.GoalActive: true},
	core.GoalBlocked: {core.GoalPending: true},
}

// Mark transitions a goal's status, enforcing the state machine and the
// monotonic-progress invariant, then writes the updated goal through to
// the backing store. A non-nil progress is rejected with
// ErrInvalidTransition unless the goal is (or is becoming) Active.
func (m *Manager) Mark(ctx context.Context, id string, status core.GoalStatus, progress *float64) error {
	m.mu.Lock()

	g, ok := m.goals[id]
	if !ok {
		m.mu.Unlock()
		return core.NewFrameworkErrorWithID("goalmgr.Mark", "goal", id, core.ErrInvalidInput)
	}

	if g.Status.Terminal() {
		m.mu.Unlock()
		return core.NewFrameworkErrorWithID("goalmgr.Mark", "goal", id, core.ErrInvalidTransition)
	}

	if status != g.Status {
		allowed := validTransitions[g.Status]
		if !allowed[status] {
			m.mu.Unlock()
			return core.NewFrameworkErrorWithID("goalmgr.Mark", "goal", id,
				fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, g.Status, status))
		}
		if status == core.GoalActive && !m.dependenciesCompleteLocked(g) {
			m.mu.Unlock()
			return core.NewFrameworkErrorWithID("goalmgr.Mark", "goal", id,
				fmt.Errorf("%w: dependencies not completed", core.ErrInvalidTransition))
		}
	}

	if progress != nil {
		if g.Status != core.GoalActive && status != core.GoalActive {
			m.mu.Unlock()
			return core.NewFrameworkErrorWithID("goalmgr.Mark", "goal", id,
				fmt.Errorf("%w: progress only advances while active", core.ErrInvalidTransition))
		}
		if *progress < g.Progress {
			m.mu.Unlock()
			return core.NewFrameworkErrorWithID("goalmgr.Mark", "goal", id,
				fmt.Errorf("%w: progress must be monotonic non-decreasing", core.ErrInvalidTransition))
		}
		g.Progress = *progress
	}

	g.Status = status
	g.UpdatedAt = m.now()
	snapshot := *g
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveGoal(ctx, &snapshot); err != nil {
			return core.NewFrameworkErrorWithID("goalmgr.Mark", "goal", id, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
		}
	}

	// A completed dependency may unblock a waiting goal on its next Next()
	// call automatically since Next() re-evaluates dependencies each time;
	// blocked goals return to pending explicitly via Mark(id, Pending).
	m.logger.InfoWithContext(ctx, "goal status changed", map[string]interface{}{
		"goal_id": id, "status": string(status),
	})
	return nil
}

// Get returns a copy of the goal, or nil if not found.
func (m *Manager) Get(id string) *core.Goal {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[id]
	if !ok {
		return nil
	}
	cp := *g
	return &cp
}

// List returns a read-only view of goals matching filter.
func (m *Manager) List(filter Filter) []*core.Goal {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*core.Goal
	for _, g := range m.goals {
		if filter.TenantID != "" && g.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != "" && g.Status != filter.Status {
			continue
		}
		cp := *g
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
