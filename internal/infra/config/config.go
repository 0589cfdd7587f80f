package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Manager      ManagerConfig      `yaml:"manager" toml:"manager"`
	Coordinator  CoordinatorConfig  `yaml:"coordinator" toml:"coordinator"`
	Breaker      BreakerConfig      `yaml:"breaker" toml:"breaker"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit" toml:"rate_limit"`
	Catalog      CatalogConfig      `yaml:"catalog" toml:"catalog"`
	MetricsStore MetricsStoreConfig `yaml:"metrics_store" toml:"metrics_store"`
	Scheduler    SchedulerConfig    `yaml:"scheduler" toml:"scheduler"`
	Logger       LoggerConfig       `yaml:"logger" toml:"logger"`
	Tracer       TracerConfig       `yaml:"tracer" toml:"tracer"`
	Includes     []string           `yaml:"includes,omitempty" toml:"includes,omitempty"`
}

// ManagerConfig holds admission, monitoring and recovery settings.
type ManagerConfig struct {
	MaxConcurrentTasks  int           `yaml:"max_concurrent_tasks" toml:"max_concurrent_tasks"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" toml:"health_check_interval"`
	MetricsInterval     time.Duration `yaml:"metrics_interval" toml:"metrics_interval"`
	AutoRestart         bool          `yaml:"auto_restart" toml:"auto_restart"`
	AgentCallTimeout    time.Duration `yaml:"agent_call_timeout" toml:"agent_call_timeout"`
	PreloadAgents       []string      `yaml:"preload_agents" toml:"preload_agents"`
	RestartQueueSize    int           `yaml:"restart_queue_size" toml:"restart_queue_size"`
}

// CoordinatorConfig holds routing and history settings.
type CoordinatorConfig struct {
	HistorySize   int           `yaml:"history_size" toml:"history_size"`
	RetryNotReady bool          `yaml:"retry_not_ready" toml:"retry_not_ready"`
	Routes        []RouteConfig `yaml:"routes,omitempty" toml:"routes,omitempty"`
}

// RouteConfig overrides the default primary agent for a channel.
// Channel "*" matches every channel.
type RouteConfig struct {
	Channel string `yaml:"channel" toml:"channel"`
	AgentID string `yaml:"agent_id" toml:"agent_id"`
}

// BreakerConfig holds per-agent circuit breaker settings.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures" toml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout" toml:"timeout"`   // open → half-open
	Interval    time.Duration `yaml:"interval" toml:"interval"` // closed-state count reset
}

// RateLimitConfig holds per-user submission limits. Zero RequestsPerMin
// disables limiting.
type RateLimitConfig struct {
	RequestsPerMin int `yaml:"requests_per_min" toml:"requests_per_min"`
	Burst          int `yaml:"burst" toml:"burst"`
}

// CatalogConfig declares collaboration strategies layered over the
// built-in catalog. Inline strategies win over those read from File.
type CatalogConfig struct {
	File       string           `yaml:"file,omitempty" toml:"file,omitempty"`
	Strategies []StrategyConfig `yaml:"strategies,omitempty" toml:"strategies,omitempty"`
}

// StrategyConfig is the file form of a collaboration strategy.
type StrategyConfig struct {
	Category   string         `yaml:"category" toml:"category"`
	Primary    string         `yaml:"primary" toml:"primary"`
	Supporting []string       `yaml:"supporting,omitempty" toml:"supporting,omitempty"`
	Mode       string         `yaml:"mode,omitempty" toml:"mode,omitempty"`
	Priorities map[string]int `yaml:"priorities,omitempty" toml:"priorities,omitempty"`
}

// MetricsStoreConfig holds metrics snapshot persistence settings.
type MetricsStoreConfig struct {
	Enabled   bool          `yaml:"enabled" toml:"enabled"`
	Path      string        `yaml:"path" toml:"path"`
	Retention time.Duration `yaml:"retention" toml:"retention"` // 0 keeps everything
}

// SchedulerConfig overrides the schedules of the background loops. Empty
// schedules fall back to the manager intervals.
type SchedulerConfig struct {
	HealthCheck string `yaml:"health_check,omitempty" toml:"health_check,omitempty"` // cron expression or duration
	Metrics     string `yaml:"metrics,omitempty" toml:"metrics,omitempty"`
	Retention   string `yaml:"retention,omitempty" toml:"retention,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Output string `yaml:"output" toml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled" toml:"enabled"`
	Exporter    string  `yaml:"exporter" toml:"exporter"` // "stdout" or "noop"
	Output      string  `yaml:"output,omitempty" toml:"output,omitempty"`
	SampleRatio float64 `yaml:"sample_ratio" toml:"sample_ratio"`
}

// defaultDataDir returns the persistent data directory under $HOME/.suoke/data.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".suoke", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Manager: ManagerConfig{
			MaxConcurrentTasks:  100,
			HealthCheckInterval: 30 * time.Second,
			MetricsInterval:     60 * time.Second,
			AutoRestart:         true,
			AgentCallTimeout:    10 * time.Second,
			PreloadAgents:       []string{"xiaoai", "xiaoke", "laoke", "soer"},
			RestartQueueSize:    16,
		},
		Coordinator: CoordinatorConfig{
			HistorySize:   100,
			RetryNotReady: true,
		},
		Breaker: BreakerConfig{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			Interval:    60 * time.Second,
		},
		MetricsStore: MetricsStoreConfig{
			Enabled:   false,
			Path:      filepath.Join(defaultDataDir(), "metrics.db"),
			Retention: 7 * 24 * time.Hour,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:     false,
			Exporter:    "noop",
			SampleRatio: 1,
		},
	}
}

// Load reads a YAML or TOML config file, applies env var overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	// First pass: unmarshal to get the includes list.
	if err := decode(absPath, data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		w := newIncludeWalker(absPath)
		patterns := cfg.Includes
		cfg.Includes = nil
		if err := w.walk(cfg, filepath.Dir(absPath), patterns, 0); err != nil {
			return nil, err
		}

		// Second pass: re-decode the main config so it takes precedence over includes.
		if err := decode(absPath, data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
		cfg.Catalog.Strategies = append(w.strategies, cfg.Catalog.Strategies...)
	}

	if cfg.Catalog.File != "" {
		file := cfg.Catalog.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(filepath.Dir(absPath), file)
		}
		fromFile, err := LoadStrategies(file)
		if err != nil {
			return nil, err
		}
		cfg.Catalog.Strategies = append(fromFile, cfg.Catalog.Strategies...)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode picks the decoder by file extension. Everything that is not
// .toml is read as YAML.
func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

type strategyFile struct {
	Strategies []StrategyConfig `yaml:"strategies" toml:"strategies"`
}

// LoadStrategies reads a catalog file holding a top-level "strategies" list.
func LoadStrategies(path string) ([]StrategyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f strategyFile
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err = toml.Decode(string(data), &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse catalog %q: %w", path, err)
	}
	return f.Strategies, nil
}

// ApplyEnvOverrides maps SUOKE_* env vars to config fields. Unparseable
// values are ignored.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SUOKE_MANAGER_MAX_CONCURRENT_TASKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Manager.MaxConcurrentTasks = n
		}
	}
	if v := os.Getenv("SUOKE_MANAGER_HEALTH_CHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Manager.HealthCheckInterval = d
		}
	}
	if v := os.Getenv("SUOKE_MANAGER_METRICS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Manager.MetricsInterval = d
		}
	}
	if v := os.Getenv("SUOKE_MANAGER_AUTO_RESTART"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Manager.AutoRestart = b
		}
	}
	if v := os.Getenv("SUOKE_MANAGER_AGENT_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Manager.AgentCallTimeout = d
		}
	}
	if v := os.Getenv("SUOKE_MANAGER_PRELOAD_AGENTS"); v != "" {
		cfg.Manager.PreloadAgents = splitAndTrim(v, ",")
	}
	if v := os.Getenv("SUOKE_COORDINATOR_HISTORY_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Coordinator.HistorySize = n
		}
	}
	if v := os.Getenv("SUOKE_RATE_LIMIT_REQUESTS_PER_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.RequestsPerMin = n
		}
	}
	if v := os.Getenv("SUOKE_CATALOG_FILE"); v != "" {
		cfg.Catalog.File = v
	}
	if v := os.Getenv("SUOKE_METRICS_STORE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MetricsStore.Enabled = b
		}
	}
	if v := os.Getenv("SUOKE_METRICS_STORE_PATH"); v != "" {
		cfg.MetricsStore.Path = v
	}
	if v := os.Getenv("SUOKE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("SUOKE_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("SUOKE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("SUOKE_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// splitAndTrim splits s by sep, trims whitespace and drops empty elements.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
