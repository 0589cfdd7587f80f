package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/SUOKE2024/suoke-life-sub002/internal/adapter/metricstore"
	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
	"github.com/SUOKE2024/suoke-life-sub002/internal/infra/config"
	"github.com/SUOKE2024/suoke-life-sub002/internal/usecase/eventbus"
	"github.com/SUOKE2024/suoke-life-sub002/internal/usecase/manager"
	"github.com/SUOKE2024/suoke-life-sub002/internal/usecase/multiagent"
)

// environment is a running manager plus the resources it was built from.
type environment struct {
	Manager *manager.Manager
	Bus     *eventbus.Bus
	store   *metricstore.SQLiteStore
	log     *slog.Logger
}

func newEnvironment(ctx context.Context, cfg *config.Config, log *slog.Logger) (*environment, error) {
	mcfg, err := managerConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	store, err := openStore(cfg.MetricsStore)
	if err != nil {
		return nil, fmt.Errorf("metrics store: %w", err)
	}

	bus := eventbus.New(log)
	deps := manager.Deps{Bus: bus, Logger: log}
	if store != nil {
		deps.Store = store
	}

	m, err := manager.New(mcfg, deps)
	if err == nil {
		err = m.Initialize(ctx)
	}
	if err != nil {
		bus.Close()
		if store != nil {
			store.Close()
		}
		return nil, fmt.Errorf("manager: %w", err)
	}

	log.Info("orchestration runtime ready",
		"agents", len(mcfg.PreloadAgents),
		"categories", len(m.Catalog().Categories()),
		"metrics_store", store != nil,
	)
	return &environment{Manager: m, Bus: bus, store: store, log: log}, nil
}

// Close shuts the manager down, then releases the bus and store.
func (e *environment) Close(ctx context.Context) error {
	err := e.Manager.Shutdown(ctx)
	e.Bus.Close()
	if e.store != nil {
		err = errors.Join(err, e.store.Close())
	}
	return err
}

func openStore(cfg config.MetricsStoreConfig) (*metricstore.SQLiteStore, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return metricstore.NewSQLiteStore(cfg.Path)
}

// managerConfig translates the file configuration into manager settings.
func managerConfig(cfg *config.Config) (manager.Config, error) {
	mc := manager.Config{
		MaxConcurrentTasks:  cfg.Manager.MaxConcurrentTasks,
		HealthCheckInterval: cfg.Manager.HealthCheckInterval,
		MetricsInterval:     cfg.Manager.MetricsInterval,
		AutoRestart:         cfg.Manager.AutoRestart,
		AgentCallTimeout:    cfg.Manager.AgentCallTimeout,
		RetryNotReady:       cfg.Coordinator.RetryNotReady,
		HistorySize:         cfg.Coordinator.HistorySize,
		RestartQueueSize:    cfg.Manager.RestartQueueSize,
		Breaker: multiagent.BreakerConfig{
			MaxFailures: cfg.Breaker.MaxFailures,
			Timeout:     cfg.Breaker.Timeout,
			Interval:    cfg.Breaker.Interval,
		},
		RateLimit: manager.RateLimit{
			RequestsPerMin: cfg.RateLimit.RequestsPerMin,
			Burst:          cfg.RateLimit.Burst,
		},
		Schedules: manager.Schedules{
			HealthCheck: cfg.Scheduler.HealthCheck,
			Metrics:     cfg.Scheduler.Metrics,
			Retention:   cfg.Scheduler.Retention,
		},
	}
	if cfg.MetricsStore.Enabled {
		mc.SnapshotRetention = cfg.MetricsStore.Retention
	}

	for _, raw := range cfg.Manager.PreloadAgents {
		id, err := parseAgentID(raw)
		if err != nil {
			return manager.Config{}, fmt.Errorf("preload_agents: %w", err)
		}
		mc.PreloadAgents = append(mc.PreloadAgents, id)
	}

	for _, r := range cfg.Coordinator.Routes {
		id, err := parseAgentID(r.AgentID)
		if err != nil {
			return manager.Config{}, fmt.Errorf("route %q: %w", r.Channel, err)
		}
		mc.Routes = append(mc.Routes, multiagent.RoutingRule{Channel: r.Channel, AgentID: id})
	}

	for _, sc := range cfg.Catalog.Strategies {
		s, err := strategyOf(sc)
		if err != nil {
			return manager.Config{}, err
		}
		mc.Strategies = append(mc.Strategies, s)
	}
	return mc, nil
}

func strategyOf(sc config.StrategyConfig) (domain.CollaborationStrategy, error) {
	mode, err := domain.ParseCollaborationMode(sc.Mode)
	if err != nil {
		return domain.CollaborationStrategy{}, fmt.Errorf("strategy %q: %w", sc.Category, err)
	}
	primary, err := parseAgentID(sc.Primary)
	if err != nil {
		return domain.CollaborationStrategy{}, fmt.Errorf("strategy %q: %w", sc.Category, err)
	}
	s := domain.CollaborationStrategy{Category: sc.Category, Primary: primary, Mode: mode}
	for _, raw := range sc.Supporting {
		id, err := parseAgentID(raw)
		if err != nil {
			return domain.CollaborationStrategy{}, fmt.Errorf("strategy %q: %w", sc.Category, err)
		}
		s.Supporting = append(s.Supporting, id)
	}
	if len(sc.Priorities) > 0 {
		s.Priorities = make(map[domain.AgentID]int, len(sc.Priorities))
		for raw, p := range sc.Priorities {
			id, err := parseAgentID(raw)
			if err != nil {
				return domain.CollaborationStrategy{}, fmt.Errorf("strategy %q priorities: %w", sc.Category, err)
			}
			s.Priorities[id] = p
		}
	}
	return s, nil
}

func parseAgentID(raw string) (domain.AgentID, error) {
	id := domain.AgentID(strings.ToLower(strings.TrimSpace(raw)))
	if !id.Valid() {
		return "", fmt.Errorf("unknown agent %q: %w", raw, domain.ErrUnknownAgent)
	}
	return id, nil
}
