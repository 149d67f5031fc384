// Package agent implements the Agent Loop: the control plane that drives
// one goal through a single cycle of plan -> select -> invoke -> observe
// -> learn -> update, wiring together every other component.
package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
	"github.com/GeneticxCln/Autonomous-AI--sub000/learning"
	"github.com/GeneticxCln/Autonomous-AI--sub000/memory"
	"github.com/GeneticxCln/Autonomous-AI--sub000/observation"
	"github.com/GeneticxCln/Autonomous-AI--sub000/planner"
	"github.com/GeneticxCln/Autonomous-AI--sub000/selector"
	"github.com/GeneticxCln/Autonomous-AI--sub000/toolregistry"
	"github.com/google/uuid"
)

// SuccessThreshold is the minimum observation score, alongside progress
// >= 1.0, that counts as goal satisfaction even when the plan has steps
// remaining.
const SuccessThreshold = 0.8

// CancellationGrace is the grace period a cancelled tool invocation gets
// before being abandoned with a cancelled Observation.
const CancellationGrace = 2 * time.Second

// GoalManager is the subset of goalmgr.Manager the loop depends on.
type GoalManager interface {
	Next(ctx context.Context, tenantID string) (*core.Goal, error)
	Mark(ctx context.Context, id string, status core.GoalStatus, progress *float64) error
	Get(id string) *core.Goal
}

// CycleStatus summarizes the outcome of one run_cycle call.
type CycleStatus string

const (
	CycleIdle      CycleStatus = "idle"
	CycleBlocked   CycleStatus = "blocked"
	CycleCompleted CycleStatus = "completed"
	CycleFailed    CycleStatus = "failed"
	CycleActive    CycleStatus = "active"
)

// Result is the Agent Loop's run_cycle contract.
type Result struct {
	GoalID        string
	ProgressDelta float64
	Status        CycleStatus
}

// Loop wires every component into one orchestrated cycle.
type Loop struct {
	Goals      GoalManager
	Learning   *learning.Store
	Memory     *memory.Store
	Planner    *planner.Planner
	Selector   *selector.Selector
	Tools      *toolregistry.Registry
	Analyzer   *observation.Analyzer

	maxFailures     int
	successThresh   float64
	logger          core.Logger
	now             func() time.Time

	failures       map[string]int              // goal_id -> consecutive failure count
	completedSteps map[string]int              // goal_id -> steps of the current plan completed so far
	lastHints      map[string]observation.Hints // goal_id -> hints from the prior cycle's Analyze, for this cycle's Plan
}

// Deps bundles the constructed components a Loop orchestrates.
type Deps struct {
	Goals    GoalManager
	Learning *learning.Store
	Memory   *memory.Store
	Planner  *planner.Planner
	Selector *selector.Selector
	Tools    *toolregistry.Registry
	Analyzer *observation.Analyzer
	Logger   core.Logger

	MaxFailures       int
	SuccessThreshold  float64
}

func New(d Deps) *Loop {
	logger := d.Logger
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("agent")
	}
	maxFailures := d.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	successThresh := d.SuccessThreshold
	if successThresh <= 0 {
		successThresh = SuccessThreshold
	}
	return &Loop{
		Goals: d.Goals, Learning: d.Learning, Memory: d.Memory,
		Planner: d.Planner, Selector: d.Selector, Tools: d.Tools, Analyzer: d.Analyzer,
		maxFailures: maxFailures, successThresh: successThresh,
		logger: logger, now: time.Now,
		failures:       make(map[string]int),
		completedSteps: make(map[string]int),
		lastHints:      make(map[string]observation.Hints),
	}
}

// RunCycle executes one plan -> select -> invoke -> observe -> learn ->
// update step for the next eligible goal of tenantID. tenantID may be
// empty to consider all goals. availableTools is the current Tool
// Registry surface.
func (l *Loop) RunCycle(ctx context.Context, tenantID string, availableTools map[string]bool) (Result, error) {
	// Step 1.
	goal, err := l.Goals.Next(ctx, tenantID)
	if err != nil {
		return Result{}, err
	}
	if goal == nil {
		return Result{Status: CycleIdle}, nil
	}

	// Step 2.
	if goal.Status == core.GoalPending {
		if err := l.Goals.Mark(ctx, goal.ID, core.GoalActive, nil); err != nil {
			return Result{}, err
		}
	}

	// Step 3.
	hint := l.Learning.Recall(ctx, goal.TenantID, l.Planner.GoalClass(goal), goal.Description, availableTools)

	// Step 4.
	contextJSON := l.Memory.ContextSummary(ctx, goal.TenantID, goal.ID)
	contextMap := unmarshalContext(contextJSON)
	if hints, ok := l.lastHints[goal.ID]; ok {
		contextMap["hint_retry_with_smaller_scope"] = hints.RetryWithSmallerScope
		contextMap["hint_notes"] = hints.Notes
	}
	plan, goalClass := l.Planner.Plan(ctx, goal, availableTools, contextMap, hint)
	if plan.Empty() || plan.BlockReason != "" {
		if err := l.Goals.Mark(ctx, goal.ID, core.GoalBlocked, nil); err != nil {
			return Result{}, err
		}
		l.logger.InfoWithContext(ctx, "goal blocked", map[string]interface{}{"goal_id": goal.ID, "reason": plan.BlockReason})
		return Result{GoalID: goal.ID, Status: CycleBlocked}, nil
	}

	// completedSoFar is how many of this plan's steps have already
	// succeeded in a prior cycle; only the remainder are offered to
	// Select so a finished step is never re-picked or run out of order.
	// A replanned goal class can yield a shorter plan than the progress
	// already recorded, in which case the tracker resets.
	completedSoFar := l.completedSteps[goal.ID]
	if completedSoFar >= len(plan.Steps) {
		completedSoFar = 0
	}

	// Step 5.
	plannedAction, err := l.Selector.Select(ctx, goal, goalClass, plan.Steps[completedSoFar:], contextMap)
	if err != nil {
		return Result{}, err
	}

	action := &core.Action{
		ID: uuid.NewString(), GoalID: goal.ID, ToolName: plannedAction.ToolName,
		Parameters: plannedAction.Parameters, StartedAt: l.now(), Status: core.ActionRunning,
	}

	// Step 6.
	invokeCtx := ctx
	var cancel context.CancelFunc
	if deadline, ok := ctx.Deadline(); ok {
		invokeCtx, cancel = context.WithDeadline(ctx, deadline.Add(CancellationGrace))
	} else {
		invokeCtx, cancel = context.WithCancel(ctx)
	}
	obs, invokeErr := l.Tools.Invoke(invokeCtx, action.ID, goal.ID, action.ToolName, action.Parameters)
	cancel()

	finished := l.now()
	action.FinishedAt = &finished
	if invokeErr != nil {
		action.Status = core.ActionFailed
		action.LastError = invokeErr.Error()
	} else {
		action.Status = core.ActionSucceeded
	}
	if obs == nil {
		obs = &core.Observation{ActionID: action.ID, GoalID: goal.ID, Success: false, Score: -1, ProducedAt: finished}
	}
	if ctx.Err() != nil {
		action.Status = core.ActionCancelled
	}
	action.Attempts++

	analyzed, hints := l.Analyzer.Analyze(obs, invokeErr)
	if hints.RetryWithSmallerScope || len(hints.Notes) > 0 {
		l.lastHints[goal.ID] = hints
	} else {
		delete(l.lastHints, goal.ID)
	}

	// Step 7.
	l.Memory.Append(ctx, goal.TenantID, goal.ID, core.MemoryKindAction, action)
	l.Memory.Append(ctx, goal.TenantID, goal.ID, core.MemoryKindObservation, analyzed)

	// Step 8.
	l.Selector.Observe(action, analyzed, goalClass)

	if analyzed.Success {
		completedSoFar++
	}
	l.completedSteps[goal.ID] = completedSoFar

	stepsCompleted := countCompleted(analyzed)
	progress := boundedProgress(goal.Progress, stepsCompleted, len(plan.Steps))

	// Step 9.
	if planCompletedBy(completedSoFar, len(plan.Steps)) || (analyzed.Score >= l.successThresh && progress >= 1.0) {
		l.Learning.Record(ctx, goal.TenantID, goalClass, goal.Description, plan.ToolNames(), analyzed.Score)
		if err := l.Goals.Mark(ctx, goal.ID, core.GoalCompleted, floatPtr(1.0)); err != nil {
			return Result{}, err
		}
		delete(l.failures, goal.ID)
		delete(l.completedSteps, goal.ID)
		delete(l.lastHints, goal.ID)
		return Result{GoalID: goal.ID, ProgressDelta: 1.0 - goal.Progress, Status: CycleCompleted}, nil
	}

	// Step 10.
	if !analyzed.Success {
		l.failures[goal.ID]++
	} else {
		l.failures[goal.ID] = 0
	}
	if l.failures[goal.ID] > l.maxFailures {
		l.Learning.Record(ctx, goal.TenantID, goalClass, goal.Description, plan.ToolNames(), analyzed.Score)
		if err := l.Goals.Mark(ctx, goal.ID, core.GoalFailed, nil); err != nil {
			return Result{}, err
		}
		delete(l.failures, goal.ID)
		delete(l.completedSteps, goal.ID)
		delete(l.lastHints, goal.ID)
		return Result{GoalID: goal.ID, ProgressDelta: progress - goal.Progress, Status: CycleFailed}, nil
	}

	// Step 11.
	if err := l.Goals.Mark(ctx, goal.ID, core.GoalActive, floatPtr(progress)); err != nil {
		return Result{}, err
	}
	return Result{GoalID: goal.ID, ProgressDelta: progress - goal.Progress, Status: CycleActive}, nil
}

func floatPtr(f float64) *float64 { return &f }

func unmarshalContext(summaryJSON string) map[string]interface{} {
	var parsed struct {
		Working map[string]string `json:"working"`
	}
	if err := json.Unmarshal([]byte(summaryJSON), &parsed); err != nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(parsed.Working))
	for k, v := range parsed.Working {
		out[k] = v
	}
	return out
}

// countCompleted reports whether the most recent step's observation was a
// success, the unit the bounded-progress heuristic accumulates over.
func countCompleted(obs *core.Observation) int {
	if obs != nil && obs.Success {
		return 1
	}
	return 0
}

// boundedProgress advances goal progress by successful steps over plan
// length, monotonically from the goal's prior progress and never
// exceeding 1.0.
func boundedProgress(prior float64, stepsCompletedThisCycle, planLength int) float64 {
	if planLength == 0 {
		return prior
	}
	delta := float64(stepsCompletedThisCycle) / float64(planLength)
	next := prior + delta
	if next > 1.0 {
		next = 1.0
	}
	if next < prior {
		next = prior
	}
	return next
}

// planCompletedBy reports whether every step of the plan has now
// succeeded. The loop executes at most one action per cycle, so
// completedSteps accumulates across RunCycle calls rather than being
// derived from a single cycle's Observation.
func planCompletedBy(completedSteps, planLength int) bool {
	return planLength > 0 && completedSteps >= planLength
}
