// Package manager owns the orchestration runtime: it builds the registry,
// coordinator and background loops, admits tasks, tracks per-agent metrics
// and restarts agents that fail their health checks.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
	"github.com/SUOKE2024/suoke-life-sub002/internal/usecase/agents"
	"github.com/SUOKE2024/suoke-life-sub002/internal/usecase/eventbus"
	"github.com/SUOKE2024/suoke-life-sub002/internal/usecase/multiagent"
	"github.com/SUOKE2024/suoke-life-sub002/internal/usecase/scheduling"
)

// Config holds configuration for the Manager.
type Config struct {
	MaxConcurrentTasks  int           // admission ceiling (default: 100)
	HealthCheckInterval time.Duration // health loop period (default: 30s)
	MetricsInterval     time.Duration // metrics loop period (default: 60s)
	AutoRestart         bool          // queue unhealthy agents for restart
	AgentCallTimeout    time.Duration // per agent invocation (default: 10s)
	RetryNotReady       bool          // one restart-and-retry on ErrAgentNotReady
	PreloadAgents       []domain.AgentID
	HistorySize         int // collaboration history bound (default: 100)
	RestartQueueSize    int // pending restarts buffer (default: 16)

	Breaker    multiagent.BreakerConfig
	RateLimit  RateLimit
	Routes     []multiagent.RoutingRule
	Strategies []domain.CollaborationStrategy // layered over the built-in catalog

	// Schedules override the loop intervals with cron expressions or
	// durations. Empty fields use the intervals above.
	Schedules Schedules

	// SnapshotRetention prunes persisted metrics older than this. Zero
	// keeps everything.
	SnapshotRetention time.Duration
}

// RateLimit bounds submissions per user. Zero RequestsPerMin disables it.
type RateLimit struct {
	RequestsPerMin int
	Burst          int
}

// Schedules holds optional schedule overrides for the background loops.
type Schedules struct {
	HealthCheck string
	Metrics     string
	Retention   string
}

// Deps are the collaborators a Manager is built from. Only Logger is
// required.
type Deps struct {
	// Constructors defaults to the built-in agents.
	Constructors map[domain.AgentID]domain.AgentConstructor
	// Bus defaults to a manager-owned in-process bus, rebuilt on every
	// Initialize and closed on Shutdown. A supplied bus is never closed.
	Bus domain.EventBus
	// Store persists metrics snapshots when set. The Manager never closes it.
	Store  domain.MetricsStore
	Logger *slog.Logger
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentTasks:  100,
		HealthCheckInterval: 30 * time.Second,
		MetricsInterval:     60 * time.Second,
		AutoRestart:         true,
		AgentCallTimeout:    multiagent.DefaultCallTimeout,
		RetryNotReady:       true,
		PreloadAgents:       slices.Clone(domain.AllAgents),
		HistorySize:         multiagent.DefaultHistorySize,
		RestartQueueSize:    16,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxConcurrentTasks <= 0 {
		c.MaxConcurrentTasks = d.MaxConcurrentTasks
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = d.HealthCheckInterval
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = d.MetricsInterval
	}
	if c.AgentCallTimeout <= 0 {
		c.AgentCallTimeout = d.AgentCallTimeout
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.RestartQueueSize <= 0 {
		c.RestartQueueSize = d.RestartQueueSize
	}
}

// Manager is the process-wide entry point for task submission and status
// queries. Construct one with New and pass it to callers explicitly.
type Manager struct {
	cfg     Config
	deps    Deps
	catalog *multiagent.Catalog
	logger  *slog.Logger

	mu sync.RWMutex
	rt *runtime // nil while not running
}

// runtime is everything Initialize builds and Shutdown tears down. A second
// Initialize gets a fresh one.
type runtime struct {
	bus         domain.EventBus
	ownsBus     bool
	registry    *multiagent.Registry
	invoker     *multiagent.Invoker
	coordinator *multiagent.Coordinator
	scheduler   *scheduling.Scheduler
	sem         *semaphore.Weighted
	limiter     *userLimiter
	restarts    *restartQueue
	metrics     *metricsBook

	startedAt time.Time
	inFlight  atomic.Int64
	tasks     sync.WaitGroup
	workers   sync.WaitGroup
	cancel    context.CancelFunc
	unsub     func()
}

// New validates cfg and builds the read-only strategy catalog. The runtime
// is not started until Initialize.
func New(cfg Config, deps Deps) (*Manager, error) {
	cfg.applyDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Constructors == nil {
		deps.Constructors = agents.Constructors()
	}
	for _, id := range cfg.PreloadAgents {
		if _, ok := deps.Constructors[id]; !ok {
			return nil, domain.NewSubSystemError("manager", "Manager.New", domain.ErrUnknownAgent, string(id))
		}
	}

	catalog, err := multiagent.NewCatalog(multiagent.DefaultStrategies(), cfg.Strategies)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	return &Manager{
		cfg:     cfg,
		deps:    deps,
		catalog: catalog,
		logger:  deps.Logger,
	}, nil
}

// Catalog returns the effective collaboration catalog.
func (m *Manager) Catalog() *multiagent.Catalog { return m.catalog }

// Running reports whether Initialize has completed and Shutdown has not.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rt != nil
}

func (m *Manager) current() *runtime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rt
}

// ScheduledTasks lists the background loops and their next run.
func (m *Manager) ScheduledTasks() []scheduling.TaskInfo {
	rt := m.current()
	if rt == nil {
		return nil
	}
	return rt.scheduler.Tasks()
}

// Initialize builds the registry and coordinator, preloads agents and starts
// the health, metrics and restart loops. Calling it while running is a no-op.
// Preload failures are logged; the health loop retries them.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rt != nil {
		return nil
	}

	rt := &runtime{
		bus:       m.deps.Bus,
		sem:       semaphore.NewWeighted(int64(m.cfg.MaxConcurrentTasks)),
		limiter:   newUserLimiter(m.cfg.RateLimit),
		restarts:  newRestartQueue(m.cfg.RestartQueueSize),
		startedAt: time.Now(),
	}
	if rt.bus == nil {
		rt.bus = eventbus.New(m.logger)
		rt.ownsBus = true
	}
	rt.registry = multiagent.NewRegistry(m.deps.Constructors, rt.bus, m.logger)
	rt.metrics = newMetricsBook(rt.registry.Known())
	rt.invoker = multiagent.NewInvoker(rt.registry, multiagent.InvokerConfig{
		CallTimeout:   m.cfg.AgentCallTimeout,
		RetryNotReady: m.cfg.RetryNotReady,
		Breaker:       m.cfg.Breaker,
	}, m.logger)
	rt.coordinator = multiagent.NewCoordinator(
		rt.registry,
		m.catalog,
		multiagent.NewChannelRouter(m.cfg.Routes, m.logger),
		rt.invoker,
		multiagent.NewHistory(m.cfg.HistorySize),
		m.logger,
	)
	sched, err := m.newScheduler(rt)
	if err != nil {
		if rt.ownsBus {
			rt.bus.Close()
		}
		return err
	}
	rt.scheduler = sched
	rt.unsub = rt.bus.Subscribe(domain.EventAgentRestarted, func(_ context.Context, e domain.Event) {
		rt.metrics.restarted(e.AgentID)
	})

	for _, id := range m.cfg.PreloadAgents {
		if _, err := rt.registry.Create(ctx, id, domain.AgentOptions{}); err != nil {
			m.logger.Warn("preload failed", "agent_id", id, "error", err)
		}
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rt.cancel = cancel
	rt.workers.Go(func() { m.restartWorker(loopCtx, rt) })
	if err := sched.Start(loopCtx); err != nil {
		cancel()
		rt.workers.Wait()
		rt.unsub()
		rt.registry.DestroyAll(context.WithoutCancel(ctx))
		if rt.ownsBus {
			rt.bus.Close()
		}
		return fmt.Errorf("start scheduler: %w", err)
	}

	m.rt = rt
	m.logger.Info("manager initialized",
		"agents", len(rt.registry.IDs()),
		"max_concurrent_tasks", m.cfg.MaxConcurrentTasks,
		"auto_restart", m.cfg.AutoRestart,
	)
	return nil
}

func (m *Manager) newScheduler(rt *runtime) (*scheduling.Scheduler, error) {
	s := scheduling.NewScheduler(m.logger)
	s.RegisterAction(scheduling.ActionHealthCheck, func(ctx context.Context) error {
		m.checkHealth(ctx, rt)
		return nil
	})
	s.RegisterAction(scheduling.ActionMetricsCollect, func(ctx context.Context) error {
		return m.collectMetrics(ctx, rt)
	})

	tasks := []scheduling.ScheduledTask{
		{
			Name:     "health-check",
			Schedule: orInterval(m.cfg.Schedules.HealthCheck, m.cfg.HealthCheckInterval),
			Action:   scheduling.ActionHealthCheck,
			Timeout:  m.cfg.HealthCheckInterval,
		},
		{
			Name:     "metrics",
			Schedule: orInterval(m.cfg.Schedules.Metrics, m.cfg.MetricsInterval),
			Action:   scheduling.ActionMetricsCollect,
			Timeout:  m.cfg.MetricsInterval,
		},
	}
	if m.deps.Store != nil && m.cfg.SnapshotRetention > 0 {
		s.RegisterAction(scheduling.ActionSnapshotRetention, func(ctx context.Context) error {
			_, err := m.PruneSnapshots(ctx)
			return err
		})
		tasks = append(tasks, scheduling.ScheduledTask{
			Name:     "snapshot-retention",
			Schedule: orInterval(m.cfg.Schedules.Retention, time.Hour),
			Action:   scheduling.ActionSnapshotRetention,
		})
	}
	for _, t := range tasks {
		if err := s.AddTask(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func orInterval(schedule string, interval time.Duration) string {
	if schedule != "" {
		return schedule
	}
	return interval.String()
}

// Shutdown stops the loops, waits for in-flight tasks (bounded by ctx) and
// destroys every agent. Calling it when not running is a no-op.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	rt := m.rt
	m.rt = nil
	m.mu.Unlock()
	if rt == nil {
		return nil
	}

	var errs []error
	if err := rt.scheduler.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	rt.cancel()
	rt.workers.Wait()

	drained := make(chan struct{})
	go func() {
		rt.tasks.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		m.logger.Warn("shutdown before in-flight tasks finished", "in_flight", rt.inFlight.Load())
		errs = append(errs, domain.WrapOp("Manager.Shutdown", ctx.Err()))
	}

	n := rt.registry.DestroyAll(context.WithoutCancel(ctx))
	rt.unsub()
	if rt.ownsBus {
		rt.bus.Close()
	}
	m.logger.Info("manager shut down", "agents_destroyed", n)
	return errors.Join(errs...)
}
