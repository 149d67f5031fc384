// Package learning implements the Learning Store: a cross-session
// knowledge base mapping goal signatures to proven action sequences, with
// confidence-weighted recall and age/usage-based eviction (compact)
// bounding the store to a configured pattern cap.
package learning

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
)

// Config holds the Learning Store's tunables, normally sourced from
// core.Config's Learning section so operators can adjust them without a
// rebuild.
type Config struct {
	// MaxPatterns is the pattern cap enforced by compact().
	MaxPatterns int
	// SimilarityThreshold is the minimum token-set Jaccard similarity
	// between a query and a stored signature's exemplar for Recall to
	// consider it a match.
	SimilarityThreshold float64
	// AgeDecayDays sets the time constant tau_age, in days, of the
	// exponential age decay exp(-age/tau_age) in the compact() eviction value.
	AgeDecayDays float64
}

// DefaultConfig returns the Learning Store's defaults.
func DefaultConfig() Config {
	return Config{MaxPatterns: 1000, SimilarityThreshold: 0.75, AgeDecayDays: 90}
}

func (c Config) withDefaults() Config {
	if c.MaxPatterns <= 0 {
		c.MaxPatterns = 1000
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = 0.75
	}
	if c.AgeDecayDays <= 0 {
		c.AgeDecayDays = 90
	}
	return c
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "to": true, "for": true,
	"on": true, "in": true, "and": true, "or": true, "is": true, "it": true,
	"this": true, "that": true, "about": true, "with": true,
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]+`)

// Normalize lowercases, strips punctuation, and removes stopwords, giving
// the stable text form signatures and token-set comparisons are built on.
func Normalize(text string) string {
	lower := strings.ToLower(text)
	cleaned := nonAlnum.ReplaceAllString(lower, " ")
	fields := strings.Fields(cleaned)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !stopwords[f] {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return strings.Join(out, " ")
}

// TokenSet returns the deduplicated, sorted normalized tokens of text.
func TokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(Normalize(text)) {
		set[tok] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter, union := 0, 0
	seen := make(map[string]bool, len(a)+len(b))
	for t := range a {
		seen[t] = true
	}
	for t := range b {
		seen[t] = true
	}
	for t := range seen {
		union++
		if a[t] && b[t] {
			inter++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Signature builds the stable LearningRecord key from a goal class and
// description, stable under minor text variation.
func Signature(goalClass, description string) string {
	return goalClass + "::" + Normalize(description)
}

type record struct {
	core.LearningRecord
	tenantID    string
	description string
	tokens      map[string]bool
}

// Store is the Learning Store: signature-keyed records, recalled by
// similarity and updated under a per-signature lock to avoid torn reads.
// When backed by a core.PatternStore, every Record call writes through to
// it and every Recall call refreshes the local cache from it first, so
// patterns recorded by one worker become visible to every other worker
// sharing the same store.
type Store struct {
	mu       sync.RWMutex
	bySig    map[string]*record // key: tenantID + "/" + signature
	sigLocks map[string]*sync.Mutex

	maxPatterns int
	threshold   float64
	ageHalfLife time.Duration
	now         func() time.Time
	logger      core.Logger
	backing     core.PatternStore
}

// New constructs a Learning Store. backing may be nil, in which case the
// store is purely in-process (suitable for tests or a single-worker
// deployment); a non-nil backing makes patterns durable and shared across
// worker processes.
func New(cfg Config, logger core.Logger, backing core.PatternStore) *Store {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("learning")
	}
	return &Store{
		bySig:       make(map[string]*record),
		sigLocks:    make(map[string]*sync.Mutex),
		maxPatterns: cfg.MaxPatterns,
		threshold:   cfg.SimilarityThreshold,
		ageHalfLife: time.Duration(cfg.AgeDecayDays * float64(24*time.Hour)),
		now:         time.Now,
		logger:      logger,
		backing:     backing,
	}
}

func (s *Store) key(tenantID, signature string) string { return tenantID + "/" + signature }

func (s *Store) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.sigLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.sigLocks[key] = l
	}
	return l
}

// Recall returns the highest-similarity record for (tenantID, goalClass,
// description) whose similarity meets the threshold, with stale tools
// (not present in availableTools) filtered from its action sequence. It
// returns nil if no record qualifies.
func (s *Store) Recall(ctx context.Context, tenantID, goalClass, description string, availableTools map[string]bool) *core.LearningRecord {
	s.syncFromBacking(ctx, tenantID)

	queryTokens := TokenSet(description)

	s.mu.RLock()
	candidates := make([]*record, 0, len(s.bySig))
	for _, r := range s.bySig {
		if r.tenantID == tenantID {
			candidates = append(candidates, r)
		}
	}
	s.mu.RUnlock()

	var best *record
	var bestSim float64
	for _, r := range candidates {
		sim := jaccard(queryTokens, r.tokens)
		if sim < s.threshold {
			continue
		}
		if best == nil || sim > bestSim || (sim == bestSim && r.Confidence > best.Confidence) {
			best, bestSim = r, sim
		}
	}
	if best == nil {
		return nil
	}

	filtered := make([]string, 0, len(best.ActionSequence))
	for _, tool := range best.ActionSequence {
		if availableTools == nil || availableTools[tool] {
			filtered = append(filtered, tool)
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	out := best.LearningRecord
	out.ActionSequence = filtered
	return &out
}

// syncFromBacking refreshes the local cache for tenantID from backing, so
// a Recall on this worker sees patterns another worker just recorded.
// Entries are merged by last-used time so a concurrent local write never
// loses to a stale read from the store.
func (s *Store) syncFromBacking(ctx context.Context, tenantID string) {
	if s.backing == nil {
		return
	}
	patterns, err := s.backing.ListPatterns(ctx, tenantID)
	if err != nil {
		s.logger.Warn("learning: pattern store unavailable, serving from local cache", map[string]interface{}{"tenant_id": tenantID, "error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range patterns {
		existing, ok := s.bySig[p.Signature]
		if ok && !p.LastUsedAt.After(existing.LastUsedAt) {
			continue
		}
		s.bySig[p.Signature] = fromPattern(p, tenantID)
	}
}

// Record upserts a LearningRecord for (tenantID, goalClass, description),
// applying the confidence update rule
// confidence <- clamp(0.7*confidence + 0.3*outcomeScore, 0, 1), then writes
// the result through to the backing PatternStore, when one is wired.
func (s *Store) Record(ctx context.Context, tenantID, goalClass, description string, actionSequence []string, outcomeScore float64) core.LearningRecord {
	signature := Signature(goalClass, description)
	key := s.key(tenantID, signature)
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	r, exists := s.bySig[key]
	if !exists {
		r = &record{
			LearningRecord: core.LearningRecord{Signature: signature, DecayRate: 1},
			tenantID:       tenantID,
			description:    description,
			tokens:         TokenSet(description),
		}
		s.bySig[key] = r
	}
	s.mu.Unlock()

	r.ActionSequence = actionSequence
	r.Confidence = clamp(0.7*r.Confidence+0.3*outcomeScore, 0, 1)
	r.UsageCount++
	r.LastUsedAt = s.now()

	s.mu.Lock()
	s.compactLocked()
	s.mu.Unlock()

	if s.backing != nil {
		if err := s.backing.SavePattern(ctx, toPattern(key, r)); err != nil {
			s.logger.Error("learning: failed to persist pattern", map[string]interface{}{"tenant_id": tenantID, "signature": signature, "error": err.Error()})
		}
	}

	s.logger.Info("learning record updated", map[string]interface{}{
		"tenant_id": tenantID, "signature": signature, "confidence": r.Confidence, "usage_count": r.UsageCount,
	})
	return r.LearningRecord
}

// toPattern converts a local record into the durable Pattern shape, using
// the tenant-scoped cache key as both PatternID and Signature so a single
// signature maps onto exactly one durable row.
func toPattern(key string, r *record) *core.Pattern {
	return &core.Pattern{
		PatternID:      key,
		Signature:      key,
		ExemplarGoal:   r.description,
		ActionSequence: r.ActionSequence,
		SuccessRate:    r.Confidence,
		UsageCount:     r.UsageCount,
		LastUsedAt:     r.LastUsedAt,
	}
}

// fromPattern reconstructs a cache record from a durable Pattern, rebuilding
// its token set from the persisted exemplar description.
func fromPattern(p *core.Pattern, tenantID string) *record {
	signature := strings.TrimPrefix(p.Signature, tenantID+"/")
	return &record{
		LearningRecord: core.LearningRecord{
			Signature:      signature,
			ActionSequence: p.ActionSequence,
			Confidence:     p.SuccessRate,
			UsageCount:     p.UsageCount,
			LastUsedAt:     p.LastUsedAt,
			DecayRate:      1,
		},
		tenantID:    tenantID,
		description: p.ExemplarGoal,
		tokens:      TokenSet(p.ExemplarGoal),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (s *Store) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bySig)
}

// Compact removes the lowest eviction-value records until the store's
// size is at most maxPatterns.
func (s *Store) Compact(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compactLocked()
}

func (s *Store) compactLocked() int {
	if len(s.bySig) <= s.maxPatterns {
		return 0
	}

	type scored struct {
		key   string
		value float64
	}
	now := s.now()
	all := make([]scored, 0, len(s.bySig))
	for key, r := range s.bySig {
		all = append(all, scored{key: key, value: evictionValue(r.LearningRecord, now, s.ageHalfLife)})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].value < all[j].value })

	removed := 0
	overflow := len(s.bySig) - s.maxPatterns
	for i := 0; i < overflow && i < len(all); i++ {
		delete(s.bySig, all[i].key)
		delete(s.sigLocks, all[i].key)
		removed++
	}
	return removed
}

// evictionValue computes v = confidence * log(1+usage_count) *
// exp(-(now-last_used_at)/tau_age).
func evictionValue(r core.LearningRecord, now time.Time, ageHalfLife time.Duration) float64 {
	age := now.Sub(r.LastUsedAt)
	if age < 0 {
		age = 0
	}
	decay := math.Exp(-age.Seconds() / ageHalfLife.Seconds())
	return r.Confidence * math.Log(1+float64(r.UsageCount)) * decay
}

// Len reports the current pattern count, for tests and metrics.
func (s *Store) Len() int { return s.size() }
