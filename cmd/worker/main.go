// Command worker boots one Distributed Layer worker process: it wires the
// Goal Manager, Planner, Selector, Tool Registry, Observation Analyzer,
// Memory Store, and Learning Store into a single Agent Loop, then polls
// the Redis-backed job queue and drives one run_cycle per claimed job,
// following the signal.Notify graceful-shutdown pattern used throughout
// gomind's examples (e.g. examples/agent-with-resilience/main.go).
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/GeneticxCln/Autonomous-AI--sub000/agent"
	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
	"github.com/GeneticxCln/Autonomous-AI--sub000/distributed"
	"github.com/GeneticxCln/Autonomous-AI--sub000/goalmgr"
	"github.com/GeneticxCln/Autonomous-AI--sub000/learning"
	"github.com/GeneticxCln/Autonomous-AI--sub000/memory"
	"github.com/GeneticxCln/Autonomous-AI--sub000/observation"
	"github.com/GeneticxCln/Autonomous-AI--sub000/planner"
	"github.com/GeneticxCln/Autonomous-AI--sub000/resilience"
	"github.com/GeneticxCln/Autonomous-AI--sub000/selector"
	postgresstore "github.com/GeneticxCln/Autonomous-AI--sub000/storage/postgres"
	"github.com/GeneticxCln/Autonomous-AI--sub000/toolregistry"
)

func main() {
	envPath := flag.String("env-file", os.Getenv("AUTONOMY_ENV_FILE"), "path to a .env file to load before reading configuration")
	templatesPath := flag.String("templates", os.Getenv("PLANNER_TEMPLATES_PATH"), "path to a YAML file of planner goal-class templates, overriding the built-ins")
	flag.Parse()

	if *envPath != "" {
		if err := godotenv.Load(*envPath); err != nil {
			log.Printf("warning: could not load env file %s: %v", *envPath, err)
		}
	}

	cfg, err := core.NewConfig()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger := core.NewProductionLogger(cfg.Logging, "autonomy-worker")
	workerID := uuid.NewString()

	redisOpt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}
	redisClient := redis.NewClient(redisOpt)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis unreachable: %v", err)
	}

	var store core.Storage
	if cfg.Postgres.DSN != "" {
		pgStore, err := postgresstore.Open(ctx, postgresstore.Config{
			DSN: cfg.Postgres.DSN, MigrationsPath: cfg.Postgres.MigrationsPath, Logger: logger,
		})
		if err != nil {
			log.Fatalf("postgres unavailable: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
	}

	goals := goalmgr.New(logger, store)
	if store != nil {
		if err := goals.LoadFromStore(ctx, cfg.TenantID); err != nil {
			logger.Error("goal warm-start failed", map[string]interface{}{"error": err.Error()})
		}
	}

	learningStore := learning.New(learning.Config{
		MaxPatterns: cfg.Learning.MaxPatterns, SimilarityThreshold: cfg.Learning.SimilarityThreshold,
		AgeDecayDays: cfg.Learning.AgeDecayDays,
	}, logger, store)
	memoryStore := memory.New(memory.Config{
		WorkingCapacity: cfg.MemoryCfg.WorkingCapacity, EpisodicMaxAgeDays: cfg.MemoryCfg.EpisodicMaxAgeDays,
		EpisodicMaxEntries: memory.DefaultConfig().EpisodicMaxEntries, ContextSummaryBytes: cfg.MemoryCfg.ContextSummaryBytes,
	}, logger, store)
	plan := planner.New(cfg.Learning.HintConfidenceMin, logger)
	if *templatesPath != "" {
		tmpls, err := planner.LoadTemplatesFromYAML(*templatesPath)
		if err != nil {
			log.Fatalf("loading planner templates: %v", err)
		}
		plan.SetTemplates(tmpls)
	}
	sel := selector.New(selector.Weights{
		Align: cfg.Selector.WeightAlign, Hist: cfg.Selector.WeightHist, Ctx: cfg.Selector.WeightCtx,
		Recency: cfg.Selector.WeightRecency, Cost: cfg.Selector.WeightCost,
	}, cfg.Selector.EMAAlpha, logger)
	tools := toolregistry.New(logger)
	analyzer := observation.New(logger)

	loop := agent.New(agent.Deps{
		Goals: goals, Learning: learningStore, Memory: memoryStore, Planner: plan,
		Selector: sel, Tools: tools, Analyzer: analyzer, Logger: logger,
		MaxFailures: cfg.Cycle.MaxFailures,
	})

	queue := distributed.NewQueue(redisClient, distributed.QueueConfig{
		Namespace: cfg.Redis.Namespace, LaneSoftCap: int64(cfg.Queue.LaneSoftCap),
		MaxAttempts: cfg.Queue.MaxAttempts, Logger: logger, JobStore: store,
	})
	lock := distributed.NewLock(redisClient, cfg.Redis.Namespace, logger)
	registry := distributed.NewRegistry(redisClient, cfg.Redis.Namespace, cfg.Worker.HeartbeatTTL, logger)

	if err := registry.Register(ctx, &core.ServiceEntry{
		ServiceID: workerID, Kind: "autonomy-worker", Capabilities: toolNames(tools),
	}); err != nil {
		logger.Error("failed to register worker", map[string]interface{}{"error": err.Error()})
	}
	defer func() {
		_ = registry.Unregister(context.Background(), workerID)
	}()

	go heartbeatLoop(ctx, registry, workerID, time.Duration(cfg.Worker.HeartbeatMS)*time.Millisecond, logger)

	logger.Info("worker started", map[string]interface{}{"worker_id": workerID, "concurrency": cfg.Worker.Concurrency})
	runPollLoop(ctx, queue, lock, loop, time.Duration(cfg.Queue.VisibilityTimeoutMS)*time.Millisecond, logger)
	logger.Info("worker stopped", map[string]interface{}{"worker_id": workerID})
}

func heartbeatLoop(ctx context.Context, registry *distributed.Registry, workerID string, interval time.Duration, logger core.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := registry.Heartbeat(ctx, workerID); err != nil {
				logger.Warn("heartbeat failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

// runPollLoop claims at most one job per iteration and runs one Agent Loop
// cycle for it, re-enqueuing a continuation job when the cycle leaves the
// goal Active.
func runPollLoop(ctx context.Context, queue *distributed.Queue, lock *distributed.Lock, loop *agent.Loop, visibility time.Duration, logger core.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := queue.Claim(ctx, visibility)
		if err != nil {
			logger.Error("claim failed", map[string]interface{}{"error": err.Error()})
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(250 * time.Millisecond):
			}
			continue
		}

		processJob(ctx, queue, lock, loop, job, logger)
	}
}

func processJob(ctx context.Context, queue *distributed.Queue, lock *distributed.Lock, loop *agent.Loop, job *core.Job, logger core.Logger) {
	lockKey := distributed.GoalLockKey(job.TenantID, job.GoalRef)
	held, err := lock.TryAcquire(ctx, lockKey, 2*time.Minute)
	if err != nil || !held {
		// Another worker holds this goal's lock. This is not a failure of
		// the job itself, so it backs off and goes back on its lane
		// without counting against max_attempts (Claim already bumped
		// Attempts once; RequeueWithoutAttempt undoes that).
		delay := resilience.BackoffDelay(100*time.Millisecond, 5*time.Second, job.Attempts, true)
		logger.Warn("goal lock unavailable, backing off", map[string]interface{}{
			"job_id": job.ID, "goal_ref": job.GoalRef, "delay_ms": delay.Milliseconds(),
		})
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if rerr := queue.RequeueWithoutAttempt(ctx, job.ID); rerr != nil {
			logger.Error("requeue after lock contention failed", map[string]interface{}{"job_id": job.ID, "error": rerr.Error()})
		}
		return
	}
	defer func() { _ = lock.Release(ctx, lockKey) }()

	cycleCtx := ctx
	if job.VisibilityDeadline != nil {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithDeadline(ctx, *job.VisibilityDeadline)
		defer cancel()
	}
	result, err := loop.RunCycle(cycleCtx, job.TenantID, availableToolNames(loop))
	if err != nil {
		logger.Error("cycle error", map[string]interface{}{"job_id": job.ID, "error": err.Error()})
		_ = queue.Fail(ctx, job.ID, err.Error(), true)
		return
	}

	switch result.Status {
	case agent.CycleCompleted, agent.CycleFailed, agent.CycleBlocked, agent.CycleIdle:
		_ = queue.Complete(ctx, job.ID, nil)
	case agent.CycleActive:
		_ = queue.Complete(ctx, job.ID, nil)
		if err := queue.Enqueue(ctx, &core.Job{
			ID: uuid.NewString(), TenantID: job.TenantID, GoalRef: job.GoalRef, Priority: job.Priority,
		}); err != nil {
			logger.Error("continuation enqueue failed", map[string]interface{}{"goal_ref": job.GoalRef, "error": err.Error()})
		}
	}
}

func availableToolNames(loop *agent.Loop) map[string]bool {
	return loop.Tools.Names()
}

func toolNames(reg *toolregistry.Registry) []string {
	names := reg.Names()
	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	return out
}
