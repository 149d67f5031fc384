package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_DefaultsAreValid(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Worker.Concurrency)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 1000, cfg.Learning.MaxPatterns)
	assert.Equal(t, 256, cfg.MemoryCfg.WorkingCapacity)
	assert.Equal(t, "autonomy", cfg.Redis.Namespace)
}

func TestNewConfig_EnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "4")
	t.Setenv("QUEUE_MAX_ATTEMPTS", "7")
	t.Setenv("REDIS_NAMESPACE", "custom-ns")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 7, cfg.Queue.MaxAttempts)
	assert.Equal(t, "custom-ns", cfg.Redis.Namespace)
}

func TestNewConfig_OptionsOverrideEnvironment(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "4")

	cfg, err := NewConfig(WithWorkerConcurrency(9))
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Worker.Concurrency)
}

func TestNewConfig_WithSelectorWeightsAppliesAllFive(t *testing.T) {
	cfg, err := NewConfig(WithSelectorWeights(0.1, 0.2, 0.3, 0.2, 0.2))
	require.NoError(t, err)
	assert.Equal(t, 0.1, cfg.Selector.WeightAlign)
	assert.Equal(t, 0.2, cfg.Selector.WeightHist)
	assert.Equal(t, 0.3, cfg.Selector.WeightCtx)
	assert.Equal(t, 0.2, cfg.Selector.WeightRecency)
	assert.Equal(t, 0.2, cfg.Selector.WeightCost)
}

func TestNewConfig_InvalidConcurrencyFails(t *testing.T) {
	cfg, err := NewConfig(WithWorkerConcurrency(0))
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestNewConfig_HeartbeatTTLDerivesFromHeartbeatMS(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg.Worker.HeartbeatTTL.Milliseconds(), int64(3*cfg.Worker.HeartbeatMS))
}

func TestNewConfig_SelectorWeightsEnvParsesCSV(t *testing.T) {
	t.Setenv("SELECTOR_WEIGHTS", "0.1,0.2,0.3,0.2,0.2")
	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, 0.3, cfg.Selector.WeightCtx)
}

func TestNewConfig_TenantIDFromEnv(t *testing.T) {
	t.Setenv("AUTONOMY_TENANT_ID", "tenant-x")
	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "tenant-x", cfg.TenantID)
}

func TestNewConfig_YAMLFileAppliesBeneathEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker:\n  concurrency: 6\nredis:\n  namespace: from-yaml\n"), 0o600))
	t.Setenv("AUTONOMY_CONFIG_FILE", path)
	t.Setenv("REDIS_NAMESPACE", "from-env")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Worker.Concurrency)
	assert.Equal(t, "from-env", cfg.Redis.Namespace, "env vars must win over the YAML file")
}

func TestNewConfig_MissingYAMLFileFails(t *testing.T) {
	t.Setenv("AUTONOMY_CONFIG_FILE", filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	cfg, err := NewConfig()
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

