// Package planner implements the Planner: it decomposes a Goal into an
// ordered Plan of abstract Actions using HTN-style templates keyed by goal
// class, optionally overridden by a Learning Store hint.
package planner

import (
	"context"
	"fmt"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
)

// defaultHintConfidenceMin is the minimum LearningRecord.Confidence a
// learning hint needs to override the template when New is given a
// non-positive value; the worker passes core.LearningConfig.HintConfidenceMin.
const defaultHintConfidenceMin = 0.7

// Planner classifies goals into classes and binds parameters from goal
// constraints, working memory, and class defaults.
type Planner struct {
	templates         []ClassTemplate
	hintConfidenceMin float64
	logger            core.Logger
}

// New constructs a Planner with the built-in HTN templates.
func New(hintConfidenceMin float64, logger core.Logger) *Planner {
	if hintConfidenceMin <= 0 {
		hintConfidenceMin = defaultHintConfidenceMin
	}
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("planner")
	}
	return &Planner{templates: builtinTemplates(), hintConfidenceMin: hintConfidenceMin, logger: logger}
}

// SetTemplates replaces the planner's goal-class templates, e.g. with ones
// loaded via LoadTemplatesFromYAML. A nil or empty slice is a no-op.
func (p *Planner) SetTemplates(templates []ClassTemplate) {
	if len(templates) == 0 {
		return
	}
	p.templates = templates
}

// Plan decomposes goal into an ordered Plan. availableTools is
// the set of tool names the registry currently has handlers for;
// contextSummary is the Memory Store's bounded context map for this cycle;
// hint is the LearningStore.Recall result for this goal, if any.
func (p *Planner) Plan(ctx context.Context, goal *core.Goal, availableTools map[string]bool, contextSummary map[string]interface{}, hint *core.LearningRecord) (*core.Plan, string) {
	if hint != nil && hint.Confidence >= p.hintConfidenceMin && allToolsAvailable(hint.ActionSequence, availableTools) {
		plan := p.planFromSequence(goal, hint.ActionSequence, contextSummary)
		p.logger.InfoWithContext(ctx, "using learning hint", map[string]interface{}{
			"goal_id": goal.ID, "confidence": hint.Confidence,
		})
		return plan, goalClass(goal, p.templates)
	}

	class := classifyByKeywords(goal.Description, p.templates)
	plan := &core.Plan{GoalID: goal.ID}

	for _, step := range class.Steps {
		params, ok := p.bindParams(step, goal, contextSummary)
		if !ok {
			plan.BlockReason = fmt.Sprintf("needs_clarification: cannot bind required parameters for step %q", step.ToolName)
			return plan, class.Class
		}
		if !availableTools[step.ToolName] {
			plan.BlockReason = fmt.Sprintf("tool %q is not available", step.ToolName)
			return plan, class.Class
		}
		plan.Steps = append(plan.Steps, core.PlannedAction{
			ToolName: step.ToolName, Parameters: params,
			Rationale: step.Rationale, ExpectedOutcomeTag: step.OutcomeTag,
		})
	}

	return plan, class.Class
}

// goalClass exposes the same classification Plan used, for callers (the
// Agent Loop) that need the class label to key learning-store writes.
func goalClass(goal *core.Goal, templates []ClassTemplate) string {
	return classifyByKeywords(goal.Description, templates).Class
}

// GoalClass is the exported form of goalClass for use by the Agent Loop.
func (p *Planner) GoalClass(goal *core.Goal) string {
	return goalClass(goal, p.templates)
}

func allToolsAvailable(sequence []string, available map[string]bool) bool {
	if len(sequence) == 0 {
		return false
	}
	for _, name := range sequence {
		if !available[name] {
			return false
		}
	}
	return true
}

// planFromSequence builds a Plan directly from a learning-hint action
// sequence, preserving whatever parameters can be derived the same way
// the template binder would.
func (p *Planner) planFromSequence(goal *core.Goal, sequence []string, contextSummary map[string]interface{}) *core.Plan {
	plan := &core.Plan{GoalID: goal.ID}
	var prevTool string
	for _, toolName := range sequence {
		params := map[string]interface{}{}
		if prevTool != "" {
			params["input"] = fmt.Sprintf("@%s", prevTool)
		}
		for k, v := range goal.Constraints {
			params[k] = v
		}
		plan.Steps = append(plan.Steps, core.PlannedAction{
			ToolName: toolName, Parameters: params,
			Rationale: "replaying learned action sequence",
		})
		prevTool = toolName
	}
	return plan
}

// bindParams resolves a step's required parameters from goal.constraints
// first, then working memory (contextSummary), then class defaults
// (DerivableParams). Returns ok=false if any required parameter is
// unresolvable, triggering the needs_clarification block reason.
func (p *Planner) bindParams(step StepTemplate, goal *core.Goal, contextSummary map[string]interface{}) (map[string]interface{}, bool) {
	params := make(map[string]interface{})
	for _, name := range step.RequiredParams {
		if v, ok := goal.Constraints[name]; ok {
			params[name] = v
			continue
		}
		if v, ok := contextSummary[name]; ok {
			params[name] = v
			continue
		}
		if ref, ok := step.DerivableParams[name]; ok {
			params[name] = ref
			continue
		}
		return nil, false
	}
	return params, true
}
