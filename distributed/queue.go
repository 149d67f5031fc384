package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
)

// Queue is the priority-partitioned distributed job queue: four Redis
// sorted sets (one per lane), scored by enqueue time for FIFO ordering
// within a lane, with job bodies stored as JSON under namespaced keys and claims
// enforced by an optimistic WATCH/MULTI transaction so two workers never
// win the same pop. When backed by a core.JobStore, every job write is
// mirrored there too, so job history and status outlive Redis's own TTLs.
type Queue struct {
	client      *redis.Client
	namespace   string
	laneSoftCap int64
	maxAttempts int
	now         func() time.Time
	logger      core.Logger
	jobStore    core.JobStore
}

type QueueConfig struct {
	Namespace   string
	LaneSoftCap int64
	MaxAttempts int
	Logger      core.Logger
	// JobStore, when set, receives a durable copy of every job write.
	JobStore core.JobStore
}

func NewQueue(client *redis.Client, cfg QueueConfig) *Queue {
	logger := cfg.Logger
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("distributed/queue")
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "autonomy"
	}
	laneSoftCap := cfg.LaneSoftCap
	if laneSoftCap <= 0 {
		laneSoftCap = 10000
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Queue{
		client: client, namespace: namespace, laneSoftCap: laneSoftCap, maxAttempts: maxAttempts,
		now: time.Now, logger: logger, jobStore: cfg.JobStore,
	}
}

func (q *Queue) laneKey(priority core.JobPriority) string {
	return fmt.Sprintf("%s:queue:%s", q.namespace, priority)
}

func (q *Queue) deadLetterKey() string { return q.namespace + ":queue:dead_letter" }

func (q *Queue) jobKey(jobID string) string { return fmt.Sprintf("%s:jobs:%s", q.namespace, jobID) }

// Enqueue implements core.JobQueue: adds the job to its priority lane,
// failing Busy if the lane is at its soft cap.
func (q *Queue) Enqueue(ctx context.Context, job *core.Job) error {
	lane := q.laneKey(job.Priority)

	count, err := q.client.ZCard(ctx, lane).Result()
	if err != nil {
		return core.NewFrameworkErrorWithID("distributed.Queue.Enqueue", "job", job.ID, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	if count >= q.laneSoftCap {
		return core.NewFrameworkErrorWithID("distributed.Queue.Enqueue", "job", job.ID, core.ErrBusy)
	}

	if job.IdempotencyKey != "" {
		existing, err := q.findByIdempotencyKey(ctx, job.TenantID, job.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != "" {
			job.ID = existing
			return nil
		}
	}

	job.Status = core.JobQueued
	job.EnqueuedAt = q.now()
	data, err := json.Marshal(job)
	if err != nil {
		return core.NewFrameworkErrorWithID("distributed.Queue.Enqueue", "job", job.ID, fmt.Errorf("%w: %v", core.ErrInvalidInput, err))
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.jobKey(job.ID), data, 0)
	pipe.ZAdd(ctx, lane, &redis.Z{Score: float64(job.EnqueuedAt.UnixNano()), Member: job.ID})
	if job.IdempotencyKey != "" {
		pipe.Set(ctx, q.idempotencyKey(job.TenantID, job.IdempotencyKey), job.ID, 24*time.Hour)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return core.NewFrameworkErrorWithID("distributed.Queue.Enqueue", "job", job.ID, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	q.persist(ctx, job)

	q.logger.InfoWithContext(ctx, "job enqueued", map[string]interface{}{"job_id": job.ID, "priority": string(job.Priority)})
	return nil
}

// persist mirrors job to the backing JobStore, when one is wired. Failures
// are logged, not returned: Redis remains the source of truth for queue
// state, and a durability hiccup should not block the queue operation.
func (q *Queue) persist(ctx context.Context, job *core.Job) {
	if q.jobStore == nil {
		return
	}
	if err := q.jobStore.SaveJob(ctx, job); err != nil {
		q.logger.Error("distributed/queue: failed to persist job", map[string]interface{}{"job_id": job.ID, "error": err.Error()})
	}
}

func (q *Queue) idempotencyKey(tenantID, key string) string {
	return fmt.Sprintf("%s:idempotency:%s:%s", q.namespace, tenantID, key)
}

func (q *Queue) findByIdempotencyKey(ctx context.Context, tenantID, key string) (string, error) {
	id, err := q.client.Get(ctx, q.idempotencyKey(tenantID, key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", core.NewFrameworkError("distributed.Queue.findByIdempotencyKey", "job", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	return id, nil
}

// Claim polls lanes in strict priority order (critical > high > normal >
// low) and atomically claims the oldest job in the first non-empty lane,
// setting status=claimed and visibility_deadline=now+visibility. Returns
// (nil, nil) when every lane is empty.
func (q *Queue) Claim(ctx context.Context, visibility time.Duration) (*core.Job, error) {
	for _, lane := range core.Lanes() {
		job, err := q.claimFromLane(ctx, q.laneKey(lane), visibility)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
	}
	return nil, nil
}

func (q *Queue) claimFromLane(ctx context.Context, laneKey string, visibility time.Duration) (*core.Job, error) {
	ids, err := q.client.ZRangeByScore(ctx, laneKey, &redis.ZRangeBy{Min: "-inf", Max: "+inf", Offset: 0, Count: 1}).Result()
	if err != nil {
		return nil, core.NewFrameworkError("distributed.Queue.Claim", "job", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	if len(ids) == 0 {
		return nil, nil
	}
	jobID := ids[0]

	var claimed *core.Job
	txErr := q.client.Watch(ctx, func(tx *redis.Tx) error {
		rank, err := tx.ZRank(ctx, laneKey, jobID).Result()
		if err == redis.Nil || rank != 0 {
			return nil // lost the race; another worker already popped it
		}
		if err != nil {
			return err
		}

		data, err := tx.Get(ctx, q.jobKey(jobID)).Result()
		if err == redis.Nil {
			tx.ZRem(ctx, laneKey, jobID)
			return nil
		}
		if err != nil {
			return err
		}

		var job core.Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			return err
		}

		now := q.now()
		deadline := now.Add(visibility)
		job.Status = core.JobClaimed
		job.Attempts++
		job.ClaimedAt = &now
		job.VisibilityDeadline = &deadline
		updated, err := json.Marshal(job)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, laneKey, jobID)
			pipe.Set(ctx, q.jobKey(jobID), updated, 0)
			return nil
		})
		if err != nil {
			return err
		}
		claimed = &job
		return nil
	}, laneKey, q.jobKey(jobID))

	if txErr != nil {
		return nil, core.NewFrameworkErrorWithID("distributed.Queue.Claim", "job", jobID, fmt.Errorf("%w: %v", core.ErrInfrastructure, txErr))
	}
	if claimed != nil {
		q.persist(ctx, claimed)
	}
	return claimed, nil
}

// Heartbeat extends a claimed job's visibility deadline.
func (q *Queue) Heartbeat(ctx context.Context, jobID string, visibility time.Duration) error {
	job, err := q.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil || job.Status != core.JobClaimed {
		return core.NewFrameworkErrorWithID("distributed.Queue.Heartbeat", "job", jobID, core.ErrInvalidInput)
	}
	deadline := q.now().Add(visibility)
	job.VisibilityDeadline = &deadline
	return q.putJob(ctx, job)
}

// Complete marks a job succeeded and records its result.
func (q *Queue) Complete(ctx context.Context, jobID string, result []byte) error {
	job, err := q.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return core.NewFrameworkErrorWithID("distributed.Queue.Complete", "job", jobID, core.ErrInvalidInput)
	}
	now := q.now()
	job.Status = core.JobSucceeded
	job.Result = result
	job.FinishedAt = &now
	return q.putJob(ctx, job)
}

// Fail records a failure. If requeue is true and attempts remain under
// max_attempts, the job is returned to its lane; otherwise it is moved to
// the dead-letter lane.
func (q *Queue) Fail(ctx context.Context, jobID string, errMsg string, requeue bool) error {
	job, err := q.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return core.NewFrameworkErrorWithID("distributed.Queue.Fail", "job", jobID, core.ErrInvalidInput)
	}
	job.Error = errMsg

	if requeue && job.Attempts < q.maxAttempts {
		job.Status = core.JobQueued
		job.VisibilityDeadline = nil
		if err := q.putJob(ctx, job); err != nil {
			return err
		}
		return q.client.ZAdd(ctx, q.laneKey(job.Priority), &redis.Z{Score: float64(q.now().UnixNano()), Member: job.ID}).Err()
	}

	now := q.now()
	job.Status = core.JobFailed
	job.FinishedAt = &now
	if err := q.putJob(ctx, job); err != nil {
		return err
	}
	return q.client.ZAdd(ctx, q.deadLetterKey(), &redis.Z{Score: float64(now.UnixNano()), Member: job.ID}).Err()
}

// Cancel marks a non-terminal job cancelled; returns ErrTooLate otherwise.
func (q *Queue) Cancel(ctx context.Context, jobID string) error {
	job, err := q.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return core.NewFrameworkErrorWithID("distributed.Queue.Cancel", "job", jobID, core.ErrInvalidInput)
	}
	if job.Status == core.JobSucceeded || job.Status == core.JobFailed || job.Status == core.JobCancelled {
		return core.NewFrameworkErrorWithID("distributed.Queue.Cancel", "job", jobID, core.ErrTooLate)
	}
	now := q.now()
	job.Status = core.JobCancelled
	job.FinishedAt = &now
	q.client.ZRem(ctx, q.laneKey(job.Priority), jobID)
	return q.putJob(ctx, job)
}

// Status returns the current job view.
func (q *Queue) Status(ctx context.Context, jobID string) (*core.Job, error) {
	return q.getJob(ctx, jobID)
}

func (q *Queue) getJob(ctx context.Context, jobID string) (*core.Job, error) {
	data, err := q.client.Get(ctx, q.jobKey(jobID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, core.NewFrameworkErrorWithID("distributed.Queue.getJob", "job", jobID, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	var job core.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, core.NewFrameworkErrorWithID("distributed.Queue.getJob", "job", jobID, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	return &job, nil
}

func (q *Queue) putJob(ctx context.Context, job *core.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return core.NewFrameworkErrorWithID("distributed.Queue.putJob", "job", job.ID, fmt.Errorf("%w: %v", core.ErrInvalidInput, err))
	}
	if err := q.client.Set(ctx, q.jobKey(job.ID), data, 0).Err(); err != nil {
		return core.NewFrameworkErrorWithID("distributed.Queue.putJob", "job", job.ID, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	q.persist(ctx, job)
	return nil
}

// RequeueWithoutAttempt returns a claimed job to its lane without counting
// the attempt against max_attempts, for transient causes unrelated to the
// job's own content (most notably the (tenant, goal) lock being held by
// another worker). The caller is expected to have already slept a backoff
// interval before calling this.
func (q *Queue) RequeueWithoutAttempt(ctx context.Context, jobID string) error {
	job, err := q.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return core.NewFrameworkErrorWithID("distributed.Queue.RequeueWithoutAttempt", "job", jobID, core.ErrInvalidInput)
	}
	if job.Attempts > 0 {
		job.Attempts--
	}
	job.Status = core.JobQueued
	job.VisibilityDeadline = nil
	if err := q.putJob(ctx, job); err != nil {
		return err
	}
	return q.client.ZAdd(ctx, q.laneKey(job.Priority), &redis.Z{Score: float64(q.now().UnixNano()), Member: job.ID}).Err()
}

// ReclaimExpired scans all lanes' in-flight jobs whose visibility deadline
// has passed (after a worker crash or missed heartbeat) and hands each to
// Fail with requeue set: the job returns to its lane while its attempts,
// already counted by Claim, are under max_attempts, and is dead-lettered
// once they reach it. Only the number of jobs handled is returned; the goal
// of a dead-lettered job is not marked failed, and nothing in this module
// calls ReclaimExpired on a schedule.
func (q *Queue) ReclaimExpired(ctx context.Context) (int, error) {
	reclaimed := 0
	now := q.now()
	for _, lane := range core.Lanes() {
		// Claimed jobs are not in the lane ZSET (removed at claim time);
		// they are discovered via the job record's visibility_deadline
		// instead, scanned through the jobs namespace.
		keys, err := q.client.Keys(ctx, q.namespace+":jobs:*").Result()
		if err != nil {
			return reclaimed, core.NewFrameworkError("distributed.Queue.ReclaimExpired", "job", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
		}
		for _, key := range keys {
			data, err := q.client.Get(ctx, key).Result()
			if err != nil {
				continue
			}
			var job core.Job
			if json.Unmarshal([]byte(data), &job) != nil {
				continue
			}
			if job.Status != core.JobClaimed || job.VisibilityDeadline == nil || job.Priority != lane {
				continue
			}
			if now.Before(*job.VisibilityDeadline) {
				continue
			}
			if err := q.Fail(ctx, job.ID, "visibility deadline expired", true); err != nil {
				return reclaimed, err
			}
			reclaimed++
		}
	}
	return reclaimed, nil
}
