package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateManager(cfg, ve)
	validateCoordinator(cfg, ve)
	validateBreaker(cfg, ve)
	validateRateLimit(cfg, ve)
	validateCatalog(cfg, ve)
	validateMetricsStore(cfg, ve)
	validateScheduler(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validAgentIDs = map[string]bool{
	"xiaoai": true,
	"xiaoke": true,
	"laoke":  true,
	"soer":   true,
}

var validModes = map[string]bool{
	"":             true,
	"sequential":   true,
	"parallel":     true,
	"hierarchical": true,
	"consensus":    true,
}

func validateManager(cfg *Config, ve *ValidationError) {
	m := cfg.Manager
	if m.MaxConcurrentTasks <= 0 {
		ve.Add("manager.max_concurrent_tasks must be > 0")
	}
	if m.HealthCheckInterval <= 0 {
		ve.Add("manager.health_check_interval must be > 0")
	}
	if m.MetricsInterval <= 0 {
		ve.Add("manager.metrics_interval must be > 0")
	}
	if m.AgentCallTimeout <= 0 {
		ve.Add("manager.agent_call_timeout must be > 0")
	}
	if m.RestartQueueSize < 0 {
		ve.Add("manager.restart_queue_size must be >= 0")
	}
	seen := make(map[string]bool, len(m.PreloadAgents))
	for _, id := range m.PreloadAgents {
		if !validAgentIDs[id] {
			ve.Add("manager.preload_agents: unknown agent %q", id)
		}
		if seen[id] {
			ve.Add("manager.preload_agents: duplicate agent %q", id)
		}
		seen[id] = true
	}
}

func validateCoordinator(cfg *Config, ve *ValidationError) {
	if cfg.Coordinator.HistorySize <= 0 {
		ve.Add("coordinator.history_size must be > 0")
	}
	for i, r := range cfg.Coordinator.Routes {
		if r.Channel == "" {
			ve.Add("coordinator.routes[%d].channel must not be empty", i)
		}
		if !validAgentIDs[r.AgentID] {
			ve.Add("coordinator.routes[%d].agent_id %q is not a known agent", i, r.AgentID)
		}
	}
}

func validateBreaker(cfg *Config, ve *ValidationError) {
	if cfg.Breaker.MaxFailures == 0 {
		ve.Add("breaker.max_failures must be > 0")
	}
	if cfg.Breaker.Timeout < 0 {
		ve.Add("breaker.timeout must be >= 0")
	}
	if cfg.Breaker.Interval < 0 {
		ve.Add("breaker.interval must be >= 0")
	}
}

func validateRateLimit(cfg *Config, ve *ValidationError) {
	if cfg.RateLimit.RequestsPerMin < 0 {
		ve.Add("rate_limit.requests_per_min must be >= 0")
	}
	if cfg.RateLimit.Burst < 0 {
		ve.Add("rate_limit.burst must be >= 0")
	}
}

func validateCatalog(cfg *Config, ve *ValidationError) {
	for i, s := range cfg.Catalog.Strategies {
		if strings.TrimSpace(s.Category) == "" {
			ve.Add("catalog.strategies[%d].category must not be empty", i)
		}
		if !validAgentIDs[s.Primary] {
			ve.Add("catalog.strategies[%d].primary %q is not a known agent", i, s.Primary)
		}
		for _, id := range s.Supporting {
			if !validAgentIDs[id] {
				ve.Add("catalog.strategies[%d].supporting %q is not a known agent", i, id)
			}
		}
		if !validModes[strings.ToLower(s.Mode)] {
			ve.Add("catalog.strategies[%d].mode %q is invalid (want sequential, parallel, hierarchical or consensus)", i, s.Mode)
		}
		for id := range s.Priorities {
			if !validAgentIDs[id] {
				ve.Add("catalog.strategies[%d].priorities: unknown agent %q", i, id)
			}
		}
	}
}

func validateMetricsStore(cfg *Config, ve *ValidationError) {
	if !cfg.MetricsStore.Enabled {
		return
	}
	if cfg.MetricsStore.Path == "" {
		ve.Add("metrics_store.path is required when metrics_store is enabled")
	}
	if cfg.MetricsStore.Retention < 0 {
		ve.Add("metrics_store.retention must be >= 0")
	}
}

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func validateScheduler(cfg *Config, ve *ValidationError) {
	for name, spec := range map[string]string{
		"health_check": cfg.Scheduler.HealthCheck,
		"metrics":      cfg.Scheduler.Metrics,
		"retention":    cfg.Scheduler.Retention,
	} {
		if spec == "" {
			continue
		}
		if _, err := scheduleParser.Parse(spec); err != nil && !isDuration(spec) {
			ve.Add("scheduler.%s: invalid schedule %q", name, spec)
		}
	}
}

func isDuration(s string) bool {
	d, err := time.ParseDuration(s)
	return err == nil && d > 0
}

var validLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want text or json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is invalid (want stdout or noop)", cfg.Tracer.Exporter)
	}
	if cfg.Tracer.SampleRatio < 0 || cfg.Tracer.SampleRatio > 1 {
		ve.Add("tracer.sample_ratio must be within [0, 1]")
	}
}
