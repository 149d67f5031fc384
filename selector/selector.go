// Package selector implements the Action Selector: it scores candidate
// actions against goal alignment, context fit, historical success, and
// recency, and learns from each Observation via an exponential moving
// average.
package selector

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
)

// Weights is the scoring function's 5-tuple. Defaults sum to 1.0: {0.35,
// 0.30, 0.20, 0.05, 0.10}.
type Weights struct {
	Align   float64
	Hist    float64
	Ctx     float64
	Recency float64
	Cost    float64
}

func DefaultWeights() Weights {
	return Weights{Align: 0.35, Hist: 0.30, Ctx: 0.20, Recency: 0.05, Cost: 0.10}
}

// statKey identifies a (tool_name, goal_class) pair for history tracking.
type statKey struct{ tool, class string }

type toolStat struct {
	successEMA float64 // smoothed success rate in [0,1]
	seen       bool
	lastUsedAt time.Time
	cost       float64
}

// Selector scores and selects the next action to execute, and updates its
// historical-success model from observed outcomes.
type Selector struct {
	weights Weights
	alpha   float64 // EMA smoothing factor, default 0.2

	mu        sync.Mutex
	stats     map[statKey]*toolStat
	observed  map[string]bool // action.id -> already observed (idempotence)

	now    func() time.Time
	logger core.Logger
}

// New constructs a Selector with the given weights and EMA alpha (default
// 0.2).
func New(weights Weights, alpha float64, logger core.Logger) *Selector {
	if alpha <= 0 {
		alpha = 0.2
	}
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("selector")
	}
	return &Selector{
		weights:  weights,
		alpha:    alpha,
		stats:    make(map[statKey]*toolStat),
		observed: make(map[string]bool),
		now:      time.Now,
		logger:   logger,
	}
}

// scored pairs a candidate with its computed score, for sorting.
type scored struct {
	action core.PlannedAction
	score  float64
	cost   float64
}

// Select scores every candidate and returns the highest, tie-broken by
// lower expected cost then lexicographic tool name. candidates must be
// non-empty.
func (s *Selector) Select(ctx context.Context, goal *core.Goal, goalClass string, candidates []core.PlannedAction, contextSummary map[string]interface{}) (core.PlannedAction, error) {
	if len(candidates) == 0 {
		return core.PlannedAction{}, core.NewFrameworkError("selector.Select", "action", core.ErrInvalidInput)
	}

	results := make([]scored, 0, len(candidates))
	for _, cand := range candidates {
		align := s.alignment(goal, cand)
		hist := s.historicalSuccess(cand.ToolName, goalClass)
		ctxFit := s.contextFit(cand.Parameters, contextSummary)
		recency := s.recencyBonus(cand.ToolName)
		cost := s.expectedCost(cand.ToolName)

		score := s.weights.Align*align + s.weights.Hist*hist + s.weights.Ctx*ctxFit +
			s.weights.Recency*recency - s.weights.Cost*cost

		results = append(results, scored{action: cand, score: score, cost: cost})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.cost != b.cost {
			return a.cost < b.cost
		}
		return a.action.ToolName < b.action.ToolName
	})

	chosen := results[0].action
	s.logger.DebugWithContext(ctx, "action selected", map[string]interface{}{
		"goal_id": goal.ID, "tool_name": chosen.ToolName, "score": results[0].score,
	})
	return chosen, nil
}

// Observe updates per-(tool_name, goal_class) counters from a completed
// Observation. Idempotent per action.ID.
func (s *Selector) Observe(action *core.Action, observation *core.Observation, goalClass string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.observed[action.ID] {
		return
	}
	s.observed[action.ID] = true

	key := statKey{tool: action.ToolName, class: goalClass}
	stat, ok := s.stats[key]
	if !ok {
		stat = &toolStat{successEMA: 0.5} // (0+α)/(0+α+β) with α=β=1
		s.stats[key] = stat
	}

	normalized := (observation.Score + 1) / 2 // map [-1,1] -> [0,1]
	if stat.seen {
		stat.successEMA = (1-s.alpha)*stat.successEMA + s.alpha*normalized
	} else {
		stat.successEMA = normalized
		stat.seen = true
	}
	stat.lastUsedAt = s.nowOrDefault()
}

func (s *Selector) nowOrDefault() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// alignment measures token overlap between the goal description and the
// candidate's tool name / rationale, a cheap, deterministic proxy for
// semantic alignment when no embedding model is wired in.
func (s *Selector) alignment(goal *core.Goal, cand core.PlannedAction) float64 {
	goalTokens := tokenSet(goal.Description)
	candTokens := tokenSet(cand.ToolName + " " + cand.Rationale)
	if len(goalTokens) == 0 || len(candTokens) == 0 {
		return 0.5
	}
	overlap := 0
	for t := range candTokens {
		if goalTokens[t] {
			overlap++
		}
	}
	return float64(overlap) / float64(len(candTokens))
}

// historicalSuccess returns the smoothed success EMA for (tool, class), or
// the (s+α)/(n+α+β) prior of 0.5 if never observed.
func (s *Selector) historicalSuccess(toolName, goalClass string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := statKey{tool: toolName, class: goalClass}
	if stat, ok := s.stats[key]; ok {
		return stat.successEMA
	}
	return 0.5
}

// contextFit scores how many of the candidate's parameter values are
// already present (same value) in the context summary, a proxy for "this
// action doesn't need data we don't have."
func (s *Selector) contextFit(params map[string]interface{}, contextSummary map[string]interface{}) float64 {
	if len(params) == 0 {
		return 1.0
	}
	hits := 0
	for k, v := range params {
		if cv, ok := contextSummary[k]; ok && cv == v {
			hits++
		}
	}
	return float64(hits) / float64(len(params))
}

// recencyBonus rewards tools used recently, decaying over an hour window.
func (s *Selector) recencyBonus(toolName string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest time.Time
	for key, stat := range s.stats {
		if key.tool == toolName && stat.lastUsedAt.After(latest) {
			latest = stat.lastUsedAt
		}
	}
	if latest.IsZero() {
		return 0
	}
	age := s.nowOrDefault().Sub(latest)
	if age > time.Hour {
		return 0
	}
	return 1 - float64(age)/float64(time.Hour)
}

// expectedCost is a static per-tool heuristic; callers may override by
// wiring SetCost for tools with known latency/price profiles.
func (s *Selector) expectedCost(toolName string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, stat := range s.stats {
		if key.tool == toolName && stat.cost != 0 {
			return stat.cost
		}
	}
	return 0.1
}

// SetCost records a known expected cost for a tool, consulted by Select.
func (s *Selector) SetCost(toolName string, cost float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, stat := range s.stats {
		if key.tool == toolName {
			stat.cost = cost
			return
		}
	}
	s.stats[statKey{tool: toolName, class: ""}] = &toolStat{successEMA: 0.5, cost: cost}
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.Trim(f, ".,!?;:\"'()")
		if f != "" {
			out[f] = true
		}
	}
	return out
}
