package manager

import (
	"context"
	"time"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
)

// AgentStatus returns a snapshot of id. Healthy also requires a closed
// circuit breaker.
func (m *Manager) AgentStatus(ctx context.Context, id domain.AgentID) (domain.StatusSnapshot, bool) {
	rt := m.current()
	if rt == nil {
		return domain.StatusSnapshot{AgentID: id, Status: domain.StatusOffline}, false
	}
	return m.statusOf(ctx, rt, id)
}

func (m *Manager) statusOf(ctx context.Context, rt *runtime, id domain.AgentID) (domain.StatusSnapshot, bool) {
	snap, ok := rt.registry.Snapshot(ctx, id)
	snap.Healthy = snap.Healthy && !rt.invoker.CircuitOpen(id)
	snap.RestartPending = rt.restarts.pending(id)
	return snap, ok
}

// AgentStatuses returns a snapshot for every known identity. Identities
// without a live instance are reported Offline.
func (m *Manager) AgentStatuses(ctx context.Context) map[domain.AgentID]domain.StatusSnapshot {
	rt := m.current()
	if rt == nil {
		return map[domain.AgentID]domain.StatusSnapshot{}
	}
	return m.statuses(ctx, rt)
}

func (m *Manager) statuses(ctx context.Context, rt *runtime) map[domain.AgentID]domain.StatusSnapshot {
	known := rt.registry.Known()
	out := make(map[domain.AgentID]domain.StatusSnapshot, len(known))
	for _, id := range known {
		out[id], _ = m.statusOf(ctx, rt, id)
	}
	return out
}

// Metrics returns a copy of the counters for id.
func (m *Manager) Metrics(id domain.AgentID) (domain.AgentMetrics, bool) {
	rt := m.current()
	if rt == nil {
		return domain.AgentMetrics{}, false
	}
	return rt.metrics.get(id)
}

// AllMetrics returns a copy of every agent's counters.
func (m *Manager) AllMetrics() map[domain.AgentID]domain.AgentMetrics {
	rt := m.current()
	if rt == nil {
		return map[domain.AgentID]domain.AgentMetrics{}
	}
	return rt.metrics.all()
}

// InFlight returns the number of admitted tasks that have not finished.
func (m *Manager) InFlight() int64 {
	rt := m.current()
	if rt == nil {
		return 0
	}
	return rt.inFlight.Load()
}

// History returns up to n of the most recent collaboration entries, oldest
// first.
func (m *Manager) History(n int) []domain.CollaborationEntry {
	rt := m.current()
	if rt == nil {
		return nil
	}
	return rt.coordinator.History().Recent(n)
}

// FindByCapability returns the live agents advertising capability.
func (m *Manager) FindByCapability(capability string) []domain.AgentID {
	rt := m.current()
	if rt == nil {
		return nil
	}
	return rt.registry.FindByCapability(capability)
}

// SystemOverview aggregates every agent's metrics and status. Agents that
// have processed nothing carry no evidence and do not affect IsHealthy or
// the average success rate.
func (m *Manager) SystemOverview(ctx context.Context) domain.OverviewSnapshot {
	rt := m.current()
	if rt == nil {
		return domain.OverviewSnapshot{
			Agents:      map[domain.AgentID]domain.AgentMetrics{},
			Statuses:    map[domain.AgentID]domain.StatusSnapshot{},
			GeneratedAt: time.Now(),
		}
	}

	metrics := rt.metrics.all()
	statuses := m.statuses(ctx, rt)
	ov := domain.OverviewSnapshot{
		TotalAgents:   len(statuses),
		InFlightTasks: rt.inFlight.Load(),
		UptimeMs:      domain.ElapsedMs(time.Since(rt.startedAt)),
		IsHealthy:     true,
		Agents:        metrics,
		Statuses:      statuses,
		GeneratedAt:   time.Now(),
	}
	for _, s := range statuses {
		if s.Status.Ready() {
			ov.ActiveAgents++
		}
	}

	var rateSum float64
	var withEvidence int
	for _, am := range metrics {
		ov.TotalTasks += am.TasksProcessed
		ov.TotalSuccess += am.SuccessCount
		ov.TotalErrors += am.ErrorCount
		if am.TasksProcessed == 0 {
			continue
		}
		withEvidence++
		rateSum += am.SuccessRate
		if am.SuccessRate <= domain.HealthySuccessRate {
			ov.IsHealthy = false
		}
	}
	if withEvidence > 0 {
		ov.AverageSuccessRate = rateSum / float64(withEvidence)
	}
	return ov
}
