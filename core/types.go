package core

import "time"

// GoalStatus is the lifecycle state of a Goal.
type GoalStatus string

const (
	GoalPending   GoalStatus = "pending"
	GoalActive    GoalStatus = "active"
	GoalPaused    GoalStatus = "paused"
	GoalCompleted GoalStatus = "completed"
	GoalFailed    GoalStatus = "failed"
	GoalBlocked   GoalStatus = "blocked"
)

// Terminal reports whether the status can never transition again.
func (s GoalStatus) Terminal() bool {
	return s == GoalCompleted || s == GoalFailed
}

// Goal is a unit of intent tracked by the Goal Manager.
type Goal struct {
	ID           string                 `json:"id"`
	TenantID     string                 `json:"tenant_id"`
	Description  string                 `json:"description"`
	Priority     float64                `json:"priority"` // [0,1]
	Status       GoalStatus             `json:"status"`
	ParentID     string                 `json:"parent_id,omitempty"`
	Dependencies []string               `json:"dependencies,omitempty"`
	Constraints  map[string]interface{} `json:"constraints,omitempty"`
	Progress     float64                `json:"progress"` // [0,1]
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// PlannedAction is an abstract step emitted by the Planner, not yet
// materialized into an Action.
type PlannedAction struct {
	ToolName           string                 `json:"tool_name"`
	Parameters         map[string]interface{} `json:"parameters"`
	Rationale          string                 `json:"rationale,omitempty"`
	ExpectedOutcomeTag string                 `json:"expected_outcome_tag,omitempty"`
}

// Plan is an ordered sequence of PlannedActions belonging to exactly one
// Goal and one cycle. Plans are not persisted beyond a cycle; only their
// tool-name sequence is kept, in learning updates.
type Plan struct {
	GoalID      string          `json:"goal_id"`
	Steps       []PlannedAction `json:"steps"`
	BlockReason string          `json:"block_reason,omitempty"`
}

// Empty reports whether the plan has no steps, signaling the Agent Loop
// to mark the goal blocked.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Steps) == 0
}

// ToolNames returns the ordered tool names of the plan's steps, used as the
// action sequence recorded in the Learning Store.
func (p *Plan) ToolNames() []string {
	if p == nil {
		return nil
	}
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.ToolName
	}
	return names
}

// ActionStatus is the lifecycle state of a materialized Action.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionRunning   ActionStatus = "running"
	ActionSucceeded ActionStatus = "succeeded"
	ActionFailed    ActionStatus = "failed"
	ActionRetried   ActionStatus = "retried"
	ActionCancelled ActionStatus = "cancelled"
)

// Action is a materialized PlannedAction, owned by the cycle that produced
// it and appended to episodic memory on completion.
type Action struct {
	ID         string                 `json:"id"`
	GoalID     string                 `json:"goal_id"`
	ToolName   string                 `json:"tool_name"`
	Parameters map[string]interface{} `json:"parameters"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
	Status     ActionStatus           `json:"status"`
	Attempts   int                    `json:"attempts"`
	LastError  string                 `json:"last_error,omitempty"`
}

// Observation is the immutable record of one completed Action.
type Observation struct {
	ActionID     string             `json:"action_id"`
	GoalID       string             `json:"goal_id"`
	Success      bool               `json:"success"`
	Score        float64            `json:"score"` // [-1,1]
	Anomaly      bool               `json:"anomaly"`
	Signals      map[string]float64 `json:"signals,omitempty"`
	Summary      string             `json:"summary,omitempty"`
	LatencyMS    int64              `json:"latency_ms"`
	PayloadBytes int                `json:"payload_bytes"`
	ProducedAt   time.Time          `json:"produced_at"`
}

// MemoryEntryKind distinguishes episodic memory payload kinds.
type MemoryEntryKind string

const (
	MemoryKindAction      MemoryEntryKind = "action"
	MemoryKindObservation MemoryEntryKind = "observation"
	MemoryKindNote        MemoryEntryKind = "note"
)

// WorkingEntry is one bounded, TTL'd working-memory slot.
type WorkingEntry struct {
	Key   string    `json:"key"`
	Value string    `json:"value"`
	TTL   time.Time `json:"ttl,omitempty"`
}

// EpisodicEntry is one append-only episodic-memory record.
type EpisodicEntry struct {
	Seq     int64           `json:"seq"`
	Kind    MemoryEntryKind `json:"kind"`
	Payload interface{}     `json:"payload"`
	Ts      time.Time       `json:"ts"`
}

// LearningRecord maps a goal signature to the best known action sequence.
type LearningRecord struct {
	Signature      string    `json:"signature"`
	ActionSequence []string  `json:"action_sequence"`
	Confidence     float64   `json:"confidence"` // [0,1]
	UsageCount     int       `json:"usage_count"`
	LastUsedAt     time.Time `json:"last_used_at"`
	DecayRate      float64   `json:"decay_rate"`
}

// Pattern is the cross-session, bounded form of a LearningRecord.
type Pattern struct {
	PatternID      string    `json:"pattern_id"`
	Signature      string    `json:"signature"`
	ExemplarGoal   string    `json:"exemplar_goal_text"`
	Embedding      []float64 `json:"embedding,omitempty"`
	ActionSequence []string  `json:"action_sequence"`
	SuccessRate    float64   `json:"success_rate"`
	UsageCount     int       `json:"usage_count"`
	CreatedAt      time.Time `json:"created_at"`
	LastUsedAt     time.Time `json:"last_used_at"`
}

// JobPriority is the lane a Job is partitioned into.
type JobPriority string

const (
	PriorityCritical JobPriority = "critical"
	PriorityHigh     JobPriority = "high"
	PriorityNormal   JobPriority = "normal"
	PriorityLow      JobPriority = "low"
)

// Lanes lists every priority lane in strict dispatch order.
func Lanes() []JobPriority {
	return []JobPriority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}
}

// JobStatus is the lifecycle state of a queued Job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobClaimed   JobStatus = "claimed"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job is a queued unit of work representing one or more Agent Loop cycles
// on a goal.
type Job struct {
	ID                 string      `json:"id"`
	TenantID           string      `json:"tenant_id"`
	GoalRef            string      `json:"goal_ref"`
	Priority           JobPriority `json:"priority"`
	Payload            []byte      `json:"payload"`
	Attempts           int         `json:"attempts"`
	MaxAttempts        int         `json:"max_attempts"`
	VisibilityDeadline *time.Time  `json:"visibility_deadline,omitempty"`
	Status             JobStatus   `json:"status"`
	Result             []byte      `json:"result,omitempty"`
	Error              string      `json:"error,omitempty"`
	IdempotencyKey     string      `json:"idempotency_key,omitempty"`
	EnqueuedAt         time.Time   `json:"enqueued_at"`
	ClaimedAt          *time.Time  `json:"claimed_at,omitempty"`
	FinishedAt         *time.Time  `json:"finished_at,omitempty"`
}

// ServiceEntry is a worker registered in the service registry, expiring
// when now - LastHeartbeat > TTL.
type ServiceEntry struct {
	ServiceID     string    `json:"service_id"`
	Kind          string    `json:"kind"`
	Capabilities  []string  `json:"capabilities"`
	Addr          string    `json:"addr"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	TTLMillis     int64     `json:"ttl_ms"`
}

// Expired reports whether the entry's heartbeat has aged out as of now.
func (e *ServiceEntry) Expired(now time.Time) bool {
	return now.Sub(e.LastHeartbeat) > time.Duration(e.TTLMillis)*time.Millisecond
}
