package selector

import (
	"context"
	"testing"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect_PrefersHigherScoringCandidate(t *testing.T) {
	s := New(DefaultWeights(), 0.2, nil)
	goal := &core.Goal{ID: "g1", Description: "summarize topic X"}

	candidates := []core.PlannedAction{
		{ToolName: "search", Rationale: "gather source material on the topic"},
		{ToolName: "noop", Rationale: "do nothing useful"},
	}

	chosen, err := s.Select(context.Background(), goal, "research_summarize", candidates, nil)
	require.NoError(t, err)
	assert.Equal(t, "search", chosen.ToolName)
}

func TestSelect_TieBreaksByCostThenName(t *testing.T) {
	s := New(Weights{}, 0.2, nil) // all weights zero -> every candidate scores 0
	s.SetCost("alpha", 0.5)
	s.SetCost("beta", 0.1)
	goal := &core.Goal{ID: "g1", Description: "x"}

	candidates := []core.PlannedAction{{ToolName: "alpha"}, {ToolName: "beta"}}
	chosen, err := s.Select(context.Background(), goal, "c", candidates, nil)
	require.NoError(t, err)
	assert.Equal(t, "beta", chosen.ToolName, "lower cost should win when scores tie")
}

func TestSelect_EmptyCandidatesIsInvalid(t *testing.T) {
	s := New(DefaultWeights(), 0.2, nil)
	_, err := s.Select(context.Background(), &core.Goal{}, "c", nil, nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestObserve_IsIdempotentPerActionID(t *testing.T) {
	s := New(DefaultWeights(), 0.2, nil)
	action := &core.Action{ID: "a1", ToolName: "search"}

	s.Observe(action, &core.Observation{Score: 1.0}, "class")
	first := s.historicalSuccess("search", "class")

	s.Observe(action, &core.Observation{Score: -1.0}, "class")
	second := s.historicalSuccess("search", "class")

	assert.Equal(t, first, second, "second observe with same action id must be a no-op")
}

func TestObserve_EMASmoothsTowardRecentScore(t *testing.T) {
	s := New(DefaultWeights(), 0.2, nil)
	s.Observe(&core.Action{ID: "a1", ToolName: "search"}, &core.Observation{Score: 1.0}, "class")
	before := s.historicalSuccess("search", "class")

	s.Observe(&core.Action{ID: "a2", ToolName: "search"}, &core.Observation{Score: -1.0}, "class")
	after := s.historicalSuccess("search", "class")

	assert.Less(t, after, before, "a failing observation should pull the EMA down")
	assert.Greater(t, after, 0.0, "EMA should not overshoot to the minimum in one step")
}
