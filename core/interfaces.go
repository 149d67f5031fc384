package core

import (
	"context"
	"time"
)

// Logger is the minimal structured-logging interface used across the
// engine. Implementations should be safe for concurrent use.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger lets a package tag its own logs with a component
// name (e.g. "goalmgr", "distributed/queue") while sharing one
// underlying sink and level configuration.
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// NoOpLogger discards everything; used as a safe zero value.
type NoOpLogger struct{}

func (NoOpLogger) Info(string, map[string]interface{})                              {}
func (NoOpLogger) Error(string, map[string]interface{})                             {}
func (NoOpLogger) Warn(string, map[string]interface{})                              {}
func (NoOpLogger) Debug(string, map[string]interface{})                             {}
func (NoOpLogger) InfoWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) ErrorWithContext(context.Context, string, map[string]interface{}) {}
func (NoOpLogger) WarnWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) DebugWithContext(context.Context, string, map[string]interface{}) {}

// Telemetry is an optional hook for spans/metrics; components must work
// with NoOpTelemetry when none is wired.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

type NoOpTelemetry struct{}

func (NoOpTelemetry) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, NoOpSpan{}
}
func (NoOpTelemetry) RecordMetric(string, float64, map[string]string) {}

type NoOpSpan struct{}

func (NoOpSpan) End()                               {}
func (NoOpSpan) SetAttribute(string, interface{})   {}
func (NoOpSpan) RecordError(error)                  {}

// Registry is the write side of service discovery: workers register
// themselves and heartbeat their health.
type Registry interface {
	Register(ctx context.Context, entry *ServiceEntry) error
	Heartbeat(ctx context.Context, serviceID string) error
	Unregister(ctx context.Context, serviceID string) error
}

// Discovery is the read side: find live services by kind or capability.
type Discovery interface {
	Registry
	FindByKind(ctx context.Context, kind string) ([]*ServiceEntry, error)
	FindByCapability(ctx context.Context, capability string) ([]*ServiceEntry, error)
}

// CircuitBreaker protects a downstream call from cascading failure. The
// Tool Registry can wrap tool invocations in one; the Distributed Layer's
// queue and registry calls do not use it.
type CircuitBreaker interface {
	Execute(ctx context.Context, fn func() error) error
	ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error
	GetState() string
	GetMetrics() map[string]interface{}
	Reset()
	CanExecute() bool
}

// DistributedLock is the per-(tenant,goal) mutual-exclusion primitive the
// Agent Loop acquires before mutating a Goal.
type DistributedLock interface {
	// TryAcquire attempts to take the lock for ttl. Returns false, nil if
	// already held by someone else (ErrLockUnavailable semantics live in
	// the caller); returns an error only on infrastructure failure.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
	Renew(ctx context.Context, key string, ttl time.Duration) error
}

// Storage is the persistence contract: durable CRUD on Goal/Job/Pattern
// plus append-only episodic-memory writes, implemented by storage/postgres.
type Storage interface {
	GoalStore
	JobStore
	PatternStore
	EpisodicStore
}

// GoalStore persists Goals across worker restarts.
type GoalStore interface {
	SaveGoal(ctx context.Context, goal *Goal) error
	GetGoal(ctx context.Context, tenantID, id string) (*Goal, error)
	ListGoals(ctx context.Context, tenantID string, status GoalStatus) ([]*Goal, error)
}

// JobStore persists Jobs as a durable backstop to the Redis-backed queue.
type JobStore interface {
	SaveJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
}

// PatternStore persists the Learning Store's compacted Patterns.
type PatternStore interface {
	SavePattern(ctx context.Context, pattern *Pattern) error
	GetPattern(ctx context.Context, tenantID, signature string) (*Pattern, error)
	ListPatterns(ctx context.Context, tenantID string) ([]*Pattern, error)
	DeletePattern(ctx context.Context, tenantID, patternID string) error
}

// EpisodicStore durably persists episodic-memory entries, each tagged with
// a per-(tenant,goal) monotonically increasing seq.
type EpisodicStore interface {
	AppendEpisodic(ctx context.Context, tenantID, goalID string, entry EpisodicEntry) error
	ListEpisodic(ctx context.Context, tenantID, goalID string, sinceSeq int64) ([]EpisodicEntry, error)
}

// JobQueue is the priority-partitioned distributed queue contract.
type JobQueue interface {
	Enqueue(ctx context.Context, job *Job) error
	Claim(ctx context.Context, visibility time.Duration) (*Job, error)
	Heartbeat(ctx context.Context, jobID string, visibility time.Duration) error
	Complete(ctx context.Context, jobID string, result []byte) error
	Fail(ctx context.Context, jobID string, errMsg string, requeue bool) error
	Cancel(ctx context.Context, jobID string) error
	Status(ctx context.Context, jobID string) (*Job, error)
}
