package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, WorkerModeSimulated, cfg.Worker.Mode)
	assert.Len(t, cfg.Worker.Simulated.Steps, 5)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9999
worker:
  mode: simulated
  simulated:
    processingTimeMin: 1s
    processingTimeMax: 2s
    failureRate: 0.5
    steps:
      - name: only_step
        duration: 1s
        percentage: 50
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 0.5, cfg.Worker.Simulated.FailureRate)
	require.Len(t, cfg.Worker.Simulated.Steps, 1)
	assert.Equal(t, "only_step", cfg.Worker.Simulated.Steps[0].Name)
	assert.Equal(t, time.Second, cfg.Worker.Simulated.Steps[0].Duration)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DF_SERVER_PORT", "7777")
	t.Setenv("DF_POSTGRES_HOST", "db.internal")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
}

func TestValidateReportsAllViolations(t *testing.T) {
	cfg := defaultConfig()
	cfg.Worker.Simulated.FailureRate = 1.5
	cfg.Worker.Simulated.ProcessingTimeMax = -time.Second
	cfg.Worker.Simulated.Steps = []StepConfig{
		{Name: "a", Duration: time.Second, Percentage: 50},
		{Name: "b", Duration: time.Second, Percentage: 30},
	}

	violations := cfg.Validate()
	require.NotEmpty(t, violations)
	assert.Contains(t, violations, "worker.simulated.failureRate must be between 0 and 1")
	assert.Contains(t, violations, "worker.simulated.processingTimeMax must be >= processingTimeMin")
	assert.Contains(t, violations, "worker.simulated.steps[1].percentage must be strictly greater than the previous step")
}

func TestValidateRemoteMode(t *testing.T) {
	cfg := defaultConfig()
	cfg.Worker.Mode = WorkerModeRemote
	cfg.Worker.Remote.Endpoint = ""
	cfg.Webhook.Secret = ""

	violations := cfg.Validate()
	assert.Contains(t, violations, "worker.remote.endpoint is required in remote mode")
	assert.Contains(t, violations, "webhook.secret is required in remote mode")

	cfg.Worker.Remote.Endpoint = "http://worker:9090/process"
	cfg.Webhook.Secret = "s3cret"
	assert.Empty(t, cfg.Validate())
}

func TestValidateUnknownWorkerMode(t *testing.T) {
	cfg := defaultConfig()
	cfg.Worker.Mode = "carrier-pigeon"

	violations := cfg.Validate()
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "worker.mode must be")
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := writeConfig(t, `
worker:
  mode: simulated
  simulated:
    steps: []
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}
