// Package memory implements the Memory Store: a bounded, TTL'd
// working-memory cache plus an append-only episodic log, and a
// deterministic context summary serialization used to seed planning.
package memory

import (
	"container/list"
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
)

// Config holds the Memory Store's tunables, normally sourced from
// core.Config's Memory section so operators can adjust them without a
// rebuild.
type Config struct {
	// WorkingCapacity is the maximum number of live working-memory
	// entries per goal before LRU eviction kicks in.
	WorkingCapacity int
	// EpisodicMaxAgeDays bounds the episodic log kept resident per goal
	// by age; older entries are trimmed first.
	EpisodicMaxAgeDays int
	// EpisodicMaxEntries bounds the episodic log kept resident per goal
	// by count, applied after the age trim.
	EpisodicMaxEntries int
	// ContextSummaryBytes bounds the serialized context summary handed
	// to the planner.
	ContextSummaryBytes int
}

// DefaultConfig returns the Memory Store's defaults.
func DefaultConfig() Config {
	return Config{WorkingCapacity: 256, EpisodicMaxAgeDays: 7, EpisodicMaxEntries: 2000, ContextSummaryBytes: 8 * 1024}
}

func (c Config) withDefaults() Config {
	if c.WorkingCapacity <= 0 {
		c.WorkingCapacity = 256
	}
	if c.EpisodicMaxAgeDays <= 0 {
		c.EpisodicMaxAgeDays = 7
	}
	if c.EpisodicMaxEntries <= 0 {
		c.EpisodicMaxEntries = 2000
	}
	if c.ContextSummaryBytes <= 0 {
		c.ContextSummaryBytes = 8 * 1024
	}
	return c
}

// EpisodicRetention bounds the episodic log kept resident per goal; older
// entries are trimmed by age first, then by count.
type EpisodicRetention struct {
	MaxAge     time.Duration
	MaxEntries int
}

type workingItem struct {
	key   string
	value string
	ttl   time.Time // zero means no expiry
}

// goalMemory is the per-goal working+episodic state.
type goalMemory struct {
	mu sync.Mutex

	order *list.List               // MRU at front, LRU at back, of *workingItem
	index map[string]*list.Element // key -> element

	episodic  []core.EpisodicEntry
	nextSeq   int64
	retention EpisodicRetention
}

func newGoalMemory(retention EpisodicRetention) *goalMemory {
	return &goalMemory{order: list.New(), index: make(map[string]*list.Element), retention: retention}
}

// Store is the Memory Store, holding bounded per-(tenant,goal) working
// memory and an append-only episodic log. When backed by a
// core.EpisodicStore, every Append call also writes through to it so the
// episodic log survives a worker restart.
type Store struct {
	mu              sync.RWMutex
	goals           map[string]*goalMemory // key: tenant+"/"+goalID
	retention       EpisodicRetention
	workingCapacity int
	summaryBudget   int
	now             func() time.Time
	logger          core.Logger
	backing         core.EpisodicStore
}

// New constructs a Memory Store. backing may be nil, in which case the
// episodic log lives only in process memory.
func New(cfg Config, logger core.Logger, backing core.EpisodicStore) *Store {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("memory")
	}
	retention := EpisodicRetention{
		MaxAge:     time.Duration(cfg.EpisodicMaxAgeDays) * 24 * time.Hour,
		MaxEntries: cfg.EpisodicMaxEntries,
	}
	return &Store{
		goals: make(map[string]*goalMemory), retention: retention,
		workingCapacity: cfg.WorkingCapacity, summaryBudget: cfg.ContextSummaryBytes,
		now: time.Now, logger: logger, backing: backing,
	}
}

func goalKey(tenantID, goalID string) string { return tenantID + "/" + goalID }

func (s *Store) goalMemoryFor(tenantID, goalID string) *goalMemory {
	key := goalKey(tenantID, goalID)
	s.mu.RLock()
	gm, ok := s.goals[key]
	s.mu.RUnlock()
	if ok {
		return gm
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gm, ok = s.goals[key]; ok {
		return gm
	}
	gm = newGoalMemory(s.retention)
	s.goals[key] = gm
	return gm
}

// Remember upserts a working-memory key, evicting the least-recently-used
// entry when the goal's working set exceeds WorkingCapacity.
func (s *Store) Remember(ctx context.Context, tenantID, goalID, key, value string, ttl time.Duration) {
	gm := s.goalMemoryFor(tenantID, goalID)
	gm.mu.Lock()
	defer gm.mu.Unlock()

	var expiry time.Time
	if ttl > 0 {
		expiry = s.now().Add(ttl)
	}

	if el, ok := gm.index[key]; ok {
		gm.order.MoveToFront(el)
		el.Value.(*workingItem).value = value
		el.Value.(*workingItem).ttl = expiry
		return
	}

	el := gm.order.PushFront(&workingItem{key: key, value: value, ttl: expiry})
	gm.index[key] = el

	for gm.order.Len() > s.workingCapacity {
		back := gm.order.Back()
		if back == nil {
			break
		}
		gm.order.Remove(back)
		delete(gm.index, back.Value.(*workingItem).key)
	}
}

// Recall returns a working-memory value, promoting it to MRU. Expired
// entries are treated as absent and lazily evicted.
func (s *Store) Recall(ctx context.Context, tenantID, goalID, key string) (string, bool) {
	gm := s.goalMemoryFor(tenantID, goalID)
	gm.mu.Lock()
	defer gm.mu.Unlock()

	el, ok := gm.index[key]
	if !ok {
		return "", false
	}
	item := el.Value.(*workingItem)
	if !item.ttl.IsZero() && s.now().After(item.ttl) {
		gm.order.Remove(el)
		delete(gm.index, key)
		return "", false
	}
	gm.order.MoveToFront(el)
	return item.value, true
}

// Forget removes a working-memory key if present.
func (s *Store) Forget(ctx context.Context, tenantID, goalID, key string) {
	gm := s.goalMemoryFor(tenantID, goalID)
	gm.mu.Lock()
	defer gm.mu.Unlock()
	if el, ok := gm.index[key]; ok {
		gm.order.Remove(el)
		delete(gm.index, key)
	}
}

// Append adds an episodic entry with a monotonic per-goal sequence number,
// then trims by age and then by count per the goal's retention policy, and
// writes the entry through to the backing EpisodicStore, when one is wired.
func (s *Store) Append(ctx context.Context, tenantID, goalID string, kind core.MemoryEntryKind, payload interface{}) core.EpisodicEntry {
	gm := s.goalMemoryFor(tenantID, goalID)
	gm.mu.Lock()
	gm.nextSeq++
	entry := core.EpisodicEntry{Seq: gm.nextSeq, Kind: kind, Payload: payload, Ts: s.now()}
	gm.episodic = append(gm.episodic, entry)
	gm.trimLocked(s.now())
	gm.mu.Unlock()

	if s.backing != nil {
		if err := s.backing.AppendEpisodic(ctx, tenantID, goalID, entry); err != nil {
			s.logger.Error("memory: failed to persist episodic entry", map[string]interface{}{"tenant_id": tenantID, "goal_id": goalID, "seq": entry.Seq, "error": err.Error()})
		}
	}
	return entry
}

func (gm *goalMemory) trimLocked(now time.Time) {
	if gm.retention.MaxAge > 0 {
		cutoff := now.Add(-gm.retention.MaxAge)
		i := 0
		for i < len(gm.episodic) && gm.episodic[i].Ts.Before(cutoff) {
			i++
		}
		if i > 0 {
			gm.episodic = gm.episodic[i:]
		}
	}
	if gm.retention.MaxEntries > 0 && len(gm.episodic) > gm.retention.MaxEntries {
		overflow := len(gm.episodic) - gm.retention.MaxEntries
		gm.episodic = gm.episodic[overflow:]
	}
}

// Episodic returns a copy of the goal's episodic log in sequence order.
func (s *Store) Episodic(ctx context.Context, tenantID, goalID string) []core.EpisodicEntry {
	gm := s.goalMemoryFor(tenantID, goalID)
	gm.mu.Lock()
	defer gm.mu.Unlock()
	out := make([]core.EpisodicEntry, len(gm.episodic))
	copy(out, gm.episodic)
	return out
}

// ContextSummary serializes the most relevant working-memory entries plus
// the tail of episodic history into a deterministic, size-bounded string
// suitable for seeding the next Plan. Deterministic means: same memory
// state -> byte-identical output, so the same state always gives the
// planner the same input.
func (s *Store) ContextSummary(ctx context.Context, tenantID, goalID string) string {
	gm := s.goalMemoryFor(tenantID, goalID)
	gm.mu.Lock()

	items := make([]*workingItem, 0, gm.order.Len())
	for e := gm.order.Front(); e != nil; e = e.Next() {
		item := e.Value.(*workingItem)
		if !item.ttl.IsZero() && s.now().After(item.ttl) {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].key < items[j].key })

	recentEpisodic := gm.episodic
	if len(recentEpisodic) > 20 {
		recentEpisodic = recentEpisodic[len(recentEpisodic)-20:]
	}
	episodicCopy := make([]core.EpisodicEntry, len(recentEpisodic))
	copy(episodicCopy, recentEpisodic)
	gm.mu.Unlock()

	summary := struct {
		Working  map[string]string    `json:"working"`
		Episodic []core.EpisodicEntry `json:"episodic_tail"`
	}{Working: make(map[string]string, len(items)), Episodic: episodicCopy}
	for _, it := range items {
		summary.Working[it.key] = it.value
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return "{}"
	}
	return boundedTruncate(data, s.summaryBudget)
}

// boundedTruncate drops the oldest episodic entries, then working keys,
// until the serialized summary fits within budget. It never produces
// invalid JSON: on unrecoverable overflow it falls back to an empty
// object.
func boundedTruncate(data []byte, budget int) string {
	if len(data) <= budget {
		return string(data)
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "{}"
	}

	for {
		out, err := json.Marshal(parsed)
		if err == nil && len(out) <= budget {
			return string(out)
		}
		if len(parsed) == 0 {
			return "{}"
		}
		if raw, ok := parsed["episodic_tail"]; ok && trimArray(&raw) {
			parsed["episodic_tail"] = raw
			continue
		}
		if raw, ok := parsed["working"]; ok && trimMap(&raw) {
			parsed["working"] = raw
			continue
		}
		return "{}"
	}
}

func trimArray(raw *json.RawMessage) bool {
	var arr []json.RawMessage
	if err := json.Unmarshal(*raw, &arr); err != nil || len(arr) == 0 {
		return false
	}
	arr = arr[1:]
	out, err := json.Marshal(arr)
	if err != nil {
		return false
	}
	*raw = out
	return true
}

func trimMap(raw *json.RawMessage) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(*raw, &m); err != nil || len(m) == 0 {
		return false
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	delete(m, keys[0])
	out, err := json.Marshal(m)
	if err != nil {
		return false
	}
	*raw = out
	return true
}
