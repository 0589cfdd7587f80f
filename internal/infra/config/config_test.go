package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 100, cfg.Manager.MaxConcurrentTasks)
	assert.Equal(t, 30*time.Second, cfg.Manager.HealthCheckInterval)
	assert.Equal(t, 60*time.Second, cfg.Manager.MetricsInterval)
	assert.Equal(t, 10*time.Second, cfg.Manager.AgentCallTimeout)
	assert.True(t, cfg.Manager.AutoRestart)
	assert.Equal(t, []string{"xiaoai", "xiaoke", "laoke", "soer"}, cfg.Manager.PreloadAgents)
	assert.Equal(t, 100, cfg.Coordinator.HistorySize)
	assert.Equal(t, uint32(5), cfg.Breaker.MaxFailures)
	assert.Zero(t, cfg.RateLimit.RequestsPerMin, "rate limiting is off by default")
	assert.False(t, cfg.MetricsStore.Enabled)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.NoError(t, Validate(cfg))
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Manager.MaxConcurrentTasks)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "config.yaml", `
manager:
  max_concurrent_tasks: 8
  health_check_interval: 5s
  auto_restart: false
  preload_agents: [xiaoai, soer]
coordinator:
  history_size: 20
  routes:
    - channel: suoke
      agent_id: laoke
rate_limit:
  requests_per_min: 60
  burst: 10
logger:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Manager.MaxConcurrentTasks)
	assert.Equal(t, 5*time.Second, cfg.Manager.HealthCheckInterval)
	assert.False(t, cfg.Manager.AutoRestart)
	assert.Equal(t, []string{"xiaoai", "soer"}, cfg.Manager.PreloadAgents)
	assert.Equal(t, 20, cfg.Coordinator.HistorySize)
	assert.Equal(t, []RouteConfig{{Channel: "suoke", AgentID: "laoke"}}, cfg.Coordinator.Routes)
	assert.Equal(t, RateLimitConfig{RequestsPerMin: 60, Burst: 10}, cfg.RateLimit)
	assert.Equal(t, "json", cfg.Logger.Format)
	// untouched sections keep defaults
	assert.Equal(t, 10*time.Second, cfg.Manager.AgentCallTimeout)
}

func TestLoadTOML(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "config.toml", `
[manager]
max_concurrent_tasks = 3
agent_call_timeout = "2s"

[coordinator]
history_size = 7

[[catalog.strategies]]
category = "sleep_care"
primary = "soer"
supporting = ["xiaoai"]
mode = "hierarchical"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Manager.MaxConcurrentTasks)
	assert.Equal(t, 2*time.Second, cfg.Manager.AgentCallTimeout)
	assert.Equal(t, 7, cfg.Coordinator.HistorySize)
	require.Len(t, cfg.Catalog.Strategies, 1)
	assert.Equal(t, "sleep_care", cfg.Catalog.Strategies[0].Category)
	assert.Equal(t, []string{"xiaoai"}, cfg.Catalog.Strategies[0].Supporting)
}

func TestLoadCatalogFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "catalog.yaml", `
strategies:
  - category: sleep_care
    primary: soer
    supporting: [xiaoai, laoke]
    mode: hierarchical
    priorities:
      laoke: 2
      xiaoai: 1
  - category: emergency
    primary: xiaoai
    mode: sequential
`)
	path := writeConfigFile(t, dir, "config.yaml", `
catalog:
  file: catalog.yaml
  strategies:
    - category: emergency
      primary: xiaoai
      supporting: [xiaoke]
      mode: parallel
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Catalog.Strategies, 3)
	assert.Equal(t, "sleep_care", cfg.Catalog.Strategies[0].Category)
	assert.Equal(t, map[string]int{"laoke": 2, "xiaoai": 1}, cfg.Catalog.Strategies[0].Priorities)
	// inline entries come after file entries so a later layer wins
	assert.Equal(t, "parallel", cfg.Catalog.Strategies[2].Mode)
}

func TestLoadCatalogFileMissing(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "config.yaml", `
catalog:
  file: nope.yaml
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read catalog")
}

func TestLoadInvalidConfigReturnsValidationError(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "config.yaml", `
manager:
  max_concurrent_tasks: 0
catalog:
  strategies:
    - category: x
      primary: nobody
`)
	_, err := Load(path)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
}

func TestLoadInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logger:\n  level: info\n"), 0666))
	require.NoError(t, os.Chmod(path, 0666))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure permissions")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SUOKE_MANAGER_MAX_CONCURRENT_TASKS", "12")
	t.Setenv("SUOKE_MANAGER_AGENT_CALL_TIMEOUT", "750ms")
	t.Setenv("SUOKE_MANAGER_AUTO_RESTART", "false")
	t.Setenv("SUOKE_MANAGER_PRELOAD_AGENTS", " xiaoke, laoke ,")
	t.Setenv("SUOKE_RATE_LIMIT_REQUESTS_PER_MIN", "90")
	t.Setenv("SUOKE_METRICS_STORE_ENABLED", "true")
	t.Setenv("SUOKE_LOGGER_LEVEL", "debug")
	t.Setenv("SUOKE_TRACER_ENABLED", "true")
	t.Setenv("SUOKE_TRACER_EXPORTER", "stdout")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, 12, cfg.Manager.MaxConcurrentTasks)
	assert.Equal(t, 750*time.Millisecond, cfg.Manager.AgentCallTimeout)
	assert.False(t, cfg.Manager.AutoRestart)
	assert.Equal(t, []string{"xiaoke", "laoke"}, cfg.Manager.PreloadAgents)
	assert.Equal(t, 90, cfg.RateLimit.RequestsPerMin)
	assert.True(t, cfg.MetricsStore.Enabled)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.True(t, cfg.Tracer.Enabled)
	assert.Equal(t, "stdout", cfg.Tracer.Exporter)
}

func TestEnvOverridesIgnoreGarbage(t *testing.T) {
	t.Setenv("SUOKE_MANAGER_MAX_CONCURRENT_TASKS", "lots")
	t.Setenv("SUOKE_MANAGER_HEALTH_CHECK_INTERVAL", "soon")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, 100, cfg.Manager.MaxConcurrentTasks)
	assert.Equal(t, 30*time.Second, cfg.Manager.HealthCheckInterval)
}
