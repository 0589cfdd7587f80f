package manager

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
)

// CheckHealth runs one health-check pass and returns the agents found
// unhealthy, sorted. With auto-restart on, each of them is queued for a
// restart unless one is already pending.
func (m *Manager) CheckHealth(ctx context.Context) []domain.AgentID {
	rt := m.current()
	if rt == nil {
		return nil
	}
	return m.checkHealth(ctx, rt)
}

// watched lists the identities the health loop expects to be live: the
// preload set plus anything created on demand since.
func (m *Manager) watched(rt *runtime) []domain.AgentID {
	ids := rt.registry.IDs()
	for _, id := range m.cfg.PreloadAgents {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (m *Manager) healthy(ctx context.Context, rt *runtime, id domain.AgentID) bool {
	return rt.registry.HealthOf(ctx, id) && !rt.invoker.CircuitOpen(id)
}

func (m *Manager) checkHealth(ctx context.Context, rt *runtime) []domain.AgentID {
	var unhealthy []domain.AgentID
	for _, id := range m.watched(rt) {
		if ctx.Err() != nil {
			break
		}
		if m.healthy(ctx, rt, id) {
			continue
		}
		unhealthy = append(unhealthy, id)

		queued := m.cfg.AutoRestart && rt.restarts.enqueue(id)
		m.logger.Warn("agent unhealthy", "agent_id", id, "restart_queued", queued,
			"restart_pending", rt.restarts.pending(id))
		rt.bus.Publish(ctx, domain.NewEvent(domain.EventAgentUnhealthy, id, map[string]bool{
			"restart_queued": queued,
		}))
	}
	return unhealthy
}

// restartWorker drains the restart queue one identity at a time until ctx
// is canceled.
func (m *Manager) restartWorker(ctx context.Context, rt *runtime) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-rt.restarts.ch:
			if a, err := rt.registry.Restart(ctx, id); err != nil {
				m.logger.Error("agent restart failed", "agent_id", id, "error", err)
			} else {
				m.logger.Info("agent restarted", "agent_id", id, "instance_id", a.InstanceID())
			}
			rt.restarts.done(id)
		}
	}
}

// restartQueue holds at most one pending restart per identity. An identity
// stays pending until its restart has finished, so health ticks observed
// during a slow restart do not queue another one.
type restartQueue struct {
	ch       chan domain.AgentID
	enqueued atomic.Int64

	mu      sync.Mutex
	waiting map[domain.AgentID]bool
}

func newRestartQueue(size int) *restartQueue {
	return &restartQueue{
		ch:      make(chan domain.AgentID, size),
		waiting: make(map[domain.AgentID]bool),
	}
}

// enqueue reports whether id was newly queued. It returns false when id is
// already pending or the queue is full.
func (q *restartQueue) enqueue(id domain.AgentID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.waiting[id] {
		return false
	}
	select {
	case q.ch <- id:
		q.waiting[id] = true
		q.enqueued.Add(1)
		return true
	default:
		return false
	}
}

func (q *restartQueue) done(id domain.AgentID) {
	q.mu.Lock()
	delete(q.waiting, id)
	q.mu.Unlock()
}

func (q *restartQueue) pending(id domain.AgentID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting[id]
}

// RestartsQueued returns how many restarts have been queued since Initialize.
func (m *Manager) RestartsQueued() int64 {
	rt := m.current()
	if rt == nil {
		return 0
	}
	return rt.restarts.enqueued.Load()
}
