package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgate/flowgate/pkg/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Pipeline.Watch)
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, "flowgate.yaml", `
telemetry:
  otlp_endpoint: collector:4317
  insecure: true
  environment: staging
pipeline:
  file: plans.yaml
  watch: true
logging:
  level: debug
  pretty: true
overrides:
  enable_shadow_mode: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.True(t, cfg.Telemetry.Insecure)
	assert.Equal(t, "staging", cfg.Telemetry.Environment)
	assert.Equal(t, "plans.yaml", cfg.Pipeline.File)
	assert.True(t, cfg.Pipeline.Watch)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Pretty)

	ov, err := cfg.RuntimeOverrides()
	require.NoError(t, err)
	assert.True(t, ov.EnableShadowMode)
	assert.False(t, ov.ForceVersion)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "flowgate.yaml", `
logging:
  level: info
pipeline:
  file: plans.yaml
`)
	t.Setenv("FLOWGATE_LOG_LEVEL", "error")
	t.Setenv("FLOWGATE_PIPELINE_FILE", "other.yaml")
	t.Setenv("FLOWGATE_PIPELINE_WATCH", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, "other.yaml", cfg.Pipeline.File)
	assert.True(t, cfg.Pipeline.Watch)
}

func TestLoadRejectsInvalidLevel(t *testing.T) {
	path := writeFile(t, "flowgate.yaml", "logging:\n  level: loud\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownOverrideKey(t *testing.T) {
	path := writeFile(t, "flowgate.yaml", "overrides:\n  force_versoin: true\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestPipelineConfigSpecToDomain(t *testing.T) {
	breaker := false
	spec := PipelineConfigSpec{
		MaxStages:              10,
		ExternalSlots:          []string{"in.request"},
		AllowParallelExecution: true,
		MaxParallelStages:      4,
		MaxExecutionTimeMs:     500,
		StageTimeoutMs:         100,
		StageRetries:           RetrySpec{MaxAttempts: 3, Backoff: "exponential", BaseMS: 10, MaxMS: 200},
		CircuitBreakerEnabled:  &breaker,
	}

	cfg := spec.ToDomain()
	assert.Equal(t, 10, cfg.MaxStages)
	assert.Equal(t, []domain.SlotKey{"in.request"}, cfg.ExternalSlots)
	assert.True(t, cfg.AllowParallelExecution)
	assert.Equal(t, 4, cfg.MaxParallelStages)
	assert.Equal(t, 500, cfg.MaxExecutionTimeMs)
	assert.Equal(t, 100, cfg.StageTimeoutMs)
	assert.Equal(t, 3, cfg.StageRetries.MaxAttempts)
	assert.False(t, cfg.CircuitBreakerEnabled)

	defaulted := PipelineConfigSpec{}.ToDomain()
	assert.True(t, defaulted.CircuitBreakerEnabled, "breaker defaults on when the file omits it")
}

func TestStageSetSpecValidate(t *testing.T) {
	valid := StageSetSpec{Plans: []PlanSpec{
		{Name: "main", Stages: []StageSpec{{ID: "a", Type: "passthrough"}}},
	}}
	assert.NoError(t, valid.Validate())

	dup := StageSetSpec{Plans: []PlanSpec{{Name: "main"}, {Name: "main"}}}
	assert.Error(t, dup.Validate())

	unnamed := StageSetSpec{Plans: []PlanSpec{{}}}
	assert.Error(t, unnamed.Validate())

	missingType := StageSetSpec{Plans: []PlanSpec{
		{Name: "main", Stages: []StageSpec{{ID: "a"}}},
	}}
	assert.Error(t, missingType.Validate())
}
