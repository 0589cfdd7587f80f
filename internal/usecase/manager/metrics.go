package manager

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
)

// metricsBook holds the per-agent counters. Only the Manager writes them;
// readers get copies.
type metricsBook struct {
	mu sync.Mutex
	m  map[domain.AgentID]*domain.AgentMetrics
}

func newMetricsBook(ids []domain.AgentID) *metricsBook {
	b := &metricsBook{m: make(map[domain.AgentID]*domain.AgentMetrics, len(ids))}
	for _, id := range ids {
		b.m[id] = &domain.AgentMetrics{AgentID: id}
	}
	return b
}

func (b *metricsBook) entry(id domain.AgentID) *domain.AgentMetrics {
	e, ok := b.m[id]
	if !ok {
		e = &domain.AgentMetrics{AgentID: id}
		b.m[id] = e
	}
	return e
}

// record counts one invocation. Successes feed the cumulative mean
// response time; failures only move the error count.
func (b *metricsBook) record(id domain.AgentID, success bool, elapsedMs int64, at time.Time) {
	if id == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(id)
	e.TasksProcessed++
	if success {
		e.SuccessCount++
		e.AverageResponseTimeMs += (float64(elapsedMs) - e.AverageResponseTimeMs) / float64(e.SuccessCount)
	} else {
		e.ErrorCount++
	}
	e.SuccessRate = domain.ComputeSuccessRate(e.TasksProcessed, e.ErrorCount)
	e.LastActiveAt = at
}

func (b *metricsBook) restarted(id domain.AgentID) {
	if id == "" {
		return
	}
	b.mu.Lock()
	b.entry(id).Restarts++
	b.mu.Unlock()
}

// setUptime stamps every entry with the same uptime.
func (b *metricsBook) setUptime(uptimeMs int64) {
	b.mu.Lock()
	for _, e := range b.m {
		e.UptimeMs = uptimeMs
	}
	b.mu.Unlock()
}

func (b *metricsBook) get(id domain.AgentID) (domain.AgentMetrics, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.m[id]
	if !ok {
		return domain.AgentMetrics{}, false
	}
	return *e, true
}

func (b *metricsBook) all() map[domain.AgentID]domain.AgentMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[domain.AgentID]domain.AgentMetrics, len(b.m))
	for id, e := range b.m {
		out[id] = *e
	}
	return out
}

// CollectMetrics runs one metrics pass: it refreshes uptime, publishes
// metrics.collected and persists a snapshot when a store is configured.
func (m *Manager) CollectMetrics(ctx context.Context) error {
	rt := m.current()
	if rt == nil {
		return domain.NewSubSystemError("manager", "Manager.CollectMetrics", domain.ErrManagerNotRunning, "")
	}
	return m.collectMetrics(ctx, rt)
}

func (m *Manager) collectMetrics(ctx context.Context, rt *runtime) error {
	now := time.Now()
	rt.metrics.setUptime(domain.ElapsedMs(time.Since(rt.startedAt)))
	all := rt.metrics.all()

	var processed int64
	for _, am := range all {
		processed += am.TasksProcessed
	}
	rt.bus.Publish(ctx, domain.NewEvent(domain.EventMetricsCollected, "", map[string]any{
		"agents":          len(all),
		"tasks_processed": processed,
	}))

	if m.deps.Store == nil {
		return nil
	}
	ids := slices.Sorted(maps.Keys(all))
	batch := make([]domain.AgentMetrics, 0, len(ids))
	for _, id := range ids {
		batch = append(batch, all[id])
	}
	if err := m.deps.Store.SaveSnapshot(ctx, now, batch); err != nil {
		return domain.WrapOp("Manager.CollectMetrics", err)
	}
	return nil
}

// PruneSnapshots deletes persisted snapshots older than the configured
// retention. It is a no-op without a store or retention.
func (m *Manager) PruneSnapshots(ctx context.Context) (int64, error) {
	if m.deps.Store == nil || m.cfg.SnapshotRetention <= 0 {
		return 0, nil
	}
	n, err := m.deps.Store.Prune(ctx, time.Now().Add(-m.cfg.SnapshotRetention))
	if err != nil {
		return 0, domain.WrapOp("Manager.PruneSnapshots", err)
	}
	if n > 0 {
		m.logger.Info("pruned metrics snapshots", "deleted", n, "retention", m.cfg.SnapshotRetention)
	}
	return n, nil
}

// MetricsHistory returns up to limit persisted snapshots for id, newest
// first. Without a store it returns nil.
func (m *Manager) MetricsHistory(ctx context.Context, id domain.AgentID, limit int) ([]domain.MetricsSnapshot, error) {
	if m.deps.Store == nil {
		return nil, nil
	}
	return m.deps.Store.ListSnapshots(ctx, id, limit)
}
