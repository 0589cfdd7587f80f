package config

import (
	"errors"
	"strings"
	"testing"
)

func requireValidationError(t *testing.T, cfg *Config, substr string) {
	t.Helper()
	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected validation error containing %q", substr)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Errorf("error = %v, want substring %q", err, substr)
	}
}

func TestValidateDefaultsPass(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateManager(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero concurrency", func(c *Config) { c.Manager.MaxConcurrentTasks = 0 }, "max_concurrent_tasks"},
		{"zero health interval", func(c *Config) { c.Manager.HealthCheckInterval = 0 }, "health_check_interval"},
		{"zero metrics interval", func(c *Config) { c.Manager.MetricsInterval = 0 }, "metrics_interval"},
		{"zero call timeout", func(c *Config) { c.Manager.AgentCallTimeout = 0 }, "agent_call_timeout"},
		{"negative restart queue", func(c *Config) { c.Manager.RestartQueueSize = -1 }, "restart_queue_size"},
		{"unknown preload", func(c *Config) { c.Manager.PreloadAgents = []string{"xiaoai", "robot"} }, `unknown agent "robot"`},
		{"duplicate preload", func(c *Config) { c.Manager.PreloadAgents = []string{"soer", "soer"} }, `duplicate agent "soer"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			requireValidationError(t, cfg, tt.want)
		})
	}
}

func TestValidateCoordinator(t *testing.T) {
	cfg := Defaults()
	cfg.Coordinator.HistorySize = 0
	requireValidationError(t, cfg, "history_size")

	cfg = Defaults()
	cfg.Coordinator.Routes = []RouteConfig{{Channel: "", AgentID: "xiaoai"}}
	requireValidationError(t, cfg, "routes[0].channel")

	cfg = Defaults()
	cfg.Coordinator.Routes = []RouteConfig{{Channel: "*", AgentID: "nobody"}}
	requireValidationError(t, cfg, `"nobody" is not a known agent`)
}

func TestValidateBreakerAndRateLimit(t *testing.T) {
	cfg := Defaults()
	cfg.Breaker.MaxFailures = 0
	requireValidationError(t, cfg, "breaker.max_failures")

	cfg = Defaults()
	cfg.RateLimit.RequestsPerMin = -5
	requireValidationError(t, cfg, "rate_limit.requests_per_min")
}

func TestValidateCatalog(t *testing.T) {
	tests := []struct {
		name     string
		strategy StrategyConfig
		want     string
	}{
		{"empty category", StrategyConfig{Primary: "xiaoai"}, "category must not be empty"},
		{"bad primary", StrategyConfig{Category: "x", Primary: "nobody"}, "primary"},
		{"bad supporting", StrategyConfig{Category: "x", Primary: "xiaoai", Supporting: []string{"ghost"}}, "supporting"},
		{"bad mode", StrategyConfig{Category: "x", Primary: "xiaoai", Mode: "vote"}, `mode "vote" is invalid`},
		{"bad priority key", StrategyConfig{Category: "x", Primary: "xiaoai", Priorities: map[string]int{"ghost": 1}}, "priorities"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Catalog.Strategies = []StrategyConfig{tt.strategy}
			requireValidationError(t, cfg, tt.want)
		})
	}
}

func TestValidateCatalogModeCaseInsensitive(t *testing.T) {
	cfg := Defaults()
	cfg.Catalog.Strategies = []StrategyConfig{{Category: "x", Primary: "soer", Mode: "Consensus"}}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateMetricsStore(t *testing.T) {
	cfg := Defaults()
	cfg.MetricsStore.Path = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled store must not be checked: %v", err)
	}
	cfg.MetricsStore.Enabled = true
	requireValidationError(t, cfg, "metrics_store.path")
}

func TestValidateScheduler(t *testing.T) {
	for _, ok := range []string{"*/5 * * * *", "@every 1m", "15s"} {
		cfg := Defaults()
		cfg.Scheduler.HealthCheck = ok
		if err := Validate(cfg); err != nil {
			t.Errorf("schedule %q: unexpected error %v", ok, err)
		}
	}
	cfg := Defaults()
	cfg.Scheduler.Metrics = "whenever"
	requireValidationError(t, cfg, "scheduler.metrics")

	cfg = Defaults()
	cfg.Scheduler.Retention = "-1h"
	requireValidationError(t, cfg, "scheduler.retention")
}

func TestValidateLoggerAndTracer(t *testing.T) {
	cfg := Defaults()
	cfg.Logger.Level = "loud"
	requireValidationError(t, cfg, "logger.level")

	cfg = Defaults()
	cfg.Logger.Format = "xml"
	requireValidationError(t, cfg, "logger.format")

	cfg = Defaults()
	cfg.Tracer.Enabled = true
	cfg.Tracer.Exporter = "jaeger"
	requireValidationError(t, cfg, "tracer.exporter")

	cfg = Defaults()
	cfg.Tracer.Enabled = true
	cfg.Tracer.SampleRatio = 2
	requireValidationError(t, cfg, "sample_ratio")
}

func TestValidationErrorAccumulates(t *testing.T) {
	cfg := Defaults()
	cfg.Manager.MaxConcurrentTasks = 0
	cfg.Coordinator.HistorySize = 0
	cfg.Breaker.MaxFailures = 0

	var ve *ValidationError
	if err := Validate(cfg); !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(ve.Errors) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(ve.Errors), ve.Errors)
	}
}
