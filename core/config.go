package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every option recognized by the engine, loaded in layers of
// increasing priority: defaults, an optional YAML file, environment
// variables, then functional options passed to NewConfig. The env tags name
// a variable per field, but applyEnv reads only the variables it lists: the
// lane soft cap, hint and recall thresholds, episodic byte cap, context
// window and summary sizes, per-weight selector variables, EMA alpha and log
// output are not read from the environment. SELECTOR_WEIGHTS sets all five
// selector weights as comma-separated values.
type Config struct {
	TenantID string `json:"tenant_id" yaml:"tenant_id"`

	Worker   WorkerConfig   `json:"worker" yaml:"worker"`
	Queue    QueueConfig    `json:"queue" yaml:"queue"`
	Learning LearningConfig `json:"learning" yaml:"learning"`
	MemoryCfg MemoryConfig  `json:"memory" yaml:"memory"`
	Selector SelectorConfig `json:"selector" yaml:"selector"`
	Cycle    CycleConfig    `json:"cycle" yaml:"cycle"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`

	logger Logger `json:"-" yaml:"-"`
}

type WorkerConfig struct {
	Concurrency  int           `json:"concurrency" yaml:"concurrency" env:"WORKER_CONCURRENCY" default:"1"`
	HeartbeatMS  int           `json:"heartbeat_ms" yaml:"heartbeat_ms" env:"WORKER_HEARTBEAT_MS" default:"15000"`
	HeartbeatTTL time.Duration `json:"-" yaml:"-"`
}

type QueueConfig struct {
	VisibilityTimeoutMS int `json:"visibility_timeout_ms" yaml:"visibility_timeout_ms" env:"QUEUE_VISIBILITY_TIMEOUT_MS" default:"30000"`
	MaxAttempts         int `json:"max_attempts" yaml:"max_attempts" env:"QUEUE_MAX_ATTEMPTS" default:"3"`
	LaneSoftCap         int `json:"lane_soft_cap" yaml:"lane_soft_cap" env:"QUEUE_LANE_SOFT_CAP" default:"10000"`
}

type LearningConfig struct {
	MaxPatterns         int     `json:"max_patterns" yaml:"max_patterns" env:"LEARNING_MAX_PATTERNS" default:"1000"`
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold" env:"LEARNING_SIMILARITY_THRESHOLD" default:"0.75"`
	AgeDecayDays        float64 `json:"age_decay_days" yaml:"age_decay_days" env:"LEARNING_AGE_DECAY_DAYS" default:"90"`
	HintConfidenceMin   float64 `json:"hint_confidence_min" yaml:"hint_confidence_min" env:"LEARNING_HINT_CONFIDENCE_MIN" default:"0.7"`
	RecallSimilarityMin float64 `json:"recall_similarity_min" yaml:"recall_similarity_min" env:"LEARNING_RECALL_SIMILARITY_MIN" default:"0.6"`
}

type MemoryConfig struct {
	WorkingCapacity     int `json:"working_capacity" yaml:"working_capacity" env:"MEMORY_WORKING_CAPACITY" default:"256"`
	EpisodicMaxAgeDays  int `json:"episodic_max_age_days" yaml:"episodic_max_age_days" env:"MEMORY_EPISODIC_MAX_AGE_DAYS" default:"30"`
	EpisodicMaxBytes    int `json:"episodic_max_bytes" yaml:"episodic_max_bytes" env:"MEMORY_EPISODIC_MAX_BYTES" default:"52428800"`
	ContextWindowSize   int `json:"context_window_size" yaml:"context_window_size" env:"MEMORY_CONTEXT_WINDOW_SIZE" default:"8"`
	ContextSummaryBytes int `json:"context_summary_bytes" yaml:"context_summary_bytes" env:"MEMORY_CONTEXT_SUMMARY_BYTES" default:"8192"`
}

// SelectorConfig holds the Action Selector's scoring weights, the
// 5-tuple {align, hist, ctx, recency, cost}.
type SelectorConfig struct {
	WeightAlign   float64 `json:"weight_align" yaml:"weight_align" env:"SELECTOR_WEIGHT_ALIGN" default:"0.35"`
	WeightHist    float64 `json:"weight_hist" yaml:"weight_hist" env:"SELECTOR_WEIGHT_HIST" default:"0.30"`
	WeightCtx     float64 `json:"weight_ctx" yaml:"weight_ctx" env:"SELECTOR_WEIGHT_CTX" default:"0.20"`
	WeightRecency float64 `json:"weight_recency" yaml:"weight_recency" env:"SELECTOR_WEIGHT_RECENCY" default:"0.05"`
	WeightCost    float64 `json:"weight_cost" yaml:"weight_cost" env:"SELECTOR_WEIGHT_COST" default:"0.10"`
	EMAAlpha      float64 `json:"ema_alpha" yaml:"ema_alpha" env:"SELECTOR_EMA_ALPHA" default:"0.2"`
}

type CycleConfig struct {
	MaxFailures int `json:"max_failures" yaml:"max_failures" env:"CYCLE_MAX_FAILURES" default:"5"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL" default:"info"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT" default:"json"`
	Output string `json:"output" yaml:"output" env:"LOG_OUTPUT" default:"stdout"`
}

type RedisConfig struct {
	URL       string `json:"url" yaml:"url" env:"REDIS_URL" default:"redis://localhost:6379/0"`
	Namespace string `json:"namespace" yaml:"namespace" env:"REDIS_NAMESPACE" default:"autonomy"`
}

type PostgresConfig struct {
	DSN            string `json:"dsn" yaml:"dsn" env:"POSTGRES_DSN"`
	MigrationsPath string `json:"migrations_path" yaml:"migrations_path" env:"POSTGRES_MIGRATIONS_PATH" default:"storage/postgres/migrations"`
}

// Option mutates a Config during construction; applied after defaults and
// environment variables so callers always have the final say.
type Option func(*Config)

func WithTenantID(id string) Option        { return func(c *Config) { c.TenantID = id } }
func WithLogger(l Logger) Option           { return func(c *Config) { c.logger = l } }
func WithWorkerConcurrency(n int) Option   { return func(c *Config) { c.Worker.Concurrency = n } }
func WithSelectorWeights(align, hist, ctx, recency, cost float64) Option {
	return func(c *Config) {
		c.Selector.WeightAlign, c.Selector.WeightHist = align, hist
		c.Selector.WeightCtx, c.Selector.WeightRecency, c.Selector.WeightCost = ctx, recency, cost
	}
}

// NewConfig builds a Config from defaults, then an optional YAML file named
// by AUTONOMY_CONFIG_FILE, then environment variables, then the supplied
// options, in that priority order, so an operator's env vars always win
// over a checked-in YAML file, and explicit options win over everything.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("AUTONOMY_CONFIG_FILE"); path != "" {
		if err := cfg.applyYAMLFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	for _, opt := range opts {
		opt(cfg)
	}

	cfg.Worker.HeartbeatTTL = 3 * time.Duration(cfg.Worker.HeartbeatMS) * time.Millisecond

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Worker:   WorkerConfig{Concurrency: 1, HeartbeatMS: 15000},
		Queue:    QueueConfig{VisibilityTimeoutMS: 30000, MaxAttempts: 3, LaneSoftCap: 10000},
		Learning: LearningConfig{MaxPatterns: 1000, SimilarityThreshold: 0.75, AgeDecayDays: 90, HintConfidenceMin: 0.7, RecallSimilarityMin: 0.6},
		MemoryCfg: MemoryConfig{WorkingCapacity: 256, EpisodicMaxAgeDays: 30, EpisodicMaxBytes: 50 * 1024 * 1024,
			ContextWindowSize: 8, ContextSummaryBytes: 8 * 1024},
		Selector: SelectorConfig{WeightAlign: 0.35, WeightHist: 0.30, WeightCtx: 0.20, WeightRecency: 0.05, WeightCost: 0.10, EMAAlpha: 0.2},
		Cycle:    CycleConfig{MaxFailures: 5},
		Logging:  LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Redis:    RedisConfig{URL: "redis://localhost:6379/0", Namespace: "autonomy"},
		Postgres: PostgresConfig{MigrationsPath: "storage/postgres/migrations"},
	}
}

// applyYAMLFile merges a YAML config document onto c. Fields absent from
// the YAML document leave c's defaults untouched, since yaml.Unmarshal only
// overwrites fields present in the document; a field written with a zero
// value does overwrite its default.
func (c *Config) applyYAMLFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return &FrameworkError{Op: "Config.applyYAMLFile", Kind: "config", Err: fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)}
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return &FrameworkError{Op: "Config.applyYAMLFile", Kind: "config", Err: fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)}
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AUTONOMY_TENANT_ID"); v != "" {
		c.TenantID = v
	}
	if v := envInt("WORKER_CONCURRENCY"); v != nil {
		c.Worker.Concurrency = *v
	}
	if v := envInt("WORKER_HEARTBEAT_MS"); v != nil {
		c.Worker.HeartbeatMS = *v
	}
	if v := envInt("QUEUE_VISIBILITY_TIMEOUT_MS"); v != nil {
		c.Queue.VisibilityTimeoutMS = *v
	}
	if v := envInt("QUEUE_MAX_ATTEMPTS"); v != nil {
		c.Queue.MaxAttempts = *v
	}
	if v := envInt("LEARNING_MAX_PATTERNS"); v != nil {
		c.Learning.MaxPatterns = *v
	}
	if v := envFloat("LEARNING_SIMILARITY_THRESHOLD"); v != nil {
		c.Learning.SimilarityThreshold = *v
	}
	if v := envFloat("LEARNING_AGE_DECAY_DAYS"); v != nil {
		c.Learning.AgeDecayDays = *v
	}
	if v := envInt("MEMORY_WORKING_CAPACITY"); v != nil {
		c.MemoryCfg.WorkingCapacity = *v
	}
	if v := envInt("MEMORY_EPISODIC_MAX_AGE_DAYS"); v != nil {
		c.MemoryCfg.EpisodicMaxAgeDays = *v
	}
	if v := os.Getenv("SELECTOR_WEIGHTS"); v != "" {
		if w, err := parseWeights(v); err == nil {
			c.Selector.WeightAlign, c.Selector.WeightHist = w[0], w[1]
			c.Selector.WeightCtx, c.Selector.WeightRecency, c.Selector.WeightCost = w[2], w[3], w[4]
		}
	}
	if v := envInt("CYCLE_MAX_FAILURES"); v != nil {
		c.Cycle.MaxFailures = *v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("REDIS_NAMESPACE"); v != "" {
		c.Redis.Namespace = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("POSTGRES_MIGRATIONS_PATH"); v != "" {
		c.Postgres.MigrationsPath = v
	}
}

func (c *Config) validate() error {
	if c.Worker.Concurrency < 1 {
		return &FrameworkError{Op: "Config.validate", Kind: "config", Err: ErrInvalidConfiguration}
	}
	if c.Queue.MaxAttempts < 1 {
		return &FrameworkError{Op: "Config.validate", Kind: "config", Err: ErrInvalidConfiguration}
	}
	sum := c.Selector.WeightAlign + c.Selector.WeightHist + c.Selector.WeightCtx + c.Selector.WeightRecency + c.Selector.WeightCost
	if sum <= 0 {
		return &FrameworkError{Op: "Config.validate", Kind: "config", Err: ErrInvalidConfiguration}
	}
	return nil
}

func parseWeights(v string) ([5]float64, error) {
	var out [5]float64
	parts := strings.Split(v, ",")
	if len(parts) != 5 {
		return out, fmt.Errorf("selector weights must have 5 comma-separated values, got %d", len(parts))
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, fmt.Errorf("invalid weight %q: %w", p, err)
		}
		out[i] = f
	}
	return out, nil
}

func envInt(key string) *int {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func envFloat(key string) *float64 {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}
