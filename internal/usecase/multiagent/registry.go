package multiagent

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
)

// Registry is the single authority for agent existence. It holds at most
// one live instance per AgentID and serialises create, destroy and restart
// per identity.
type Registry struct {
	ctors  map[domain.AgentID]domain.AgentConstructor
	bus    domain.EventBus
	logger *slog.Logger

	mu     sync.RWMutex
	agents map[domain.AgentID]domain.Agent
	opts   map[domain.AgentID]domain.AgentOptions

	locksMu sync.Mutex
	locks   map[domain.AgentID]*sync.Mutex
}

// NewRegistry creates a Registry that builds agents from ctors. bus may be nil.
func NewRegistry(ctors map[domain.AgentID]domain.AgentConstructor, bus domain.EventBus, logger *slog.Logger) *Registry {
	return &Registry{
		ctors:  maps.Clone(ctors),
		bus:    bus,
		logger: logger,
		agents: make(map[domain.AgentID]domain.Agent),
		opts:   make(map[domain.AgentID]domain.AgentOptions),
		locks:  make(map[domain.AgentID]*sync.Mutex),
	}
}

func (r *Registry) lockFor(id domain.AgentID) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

// Create returns the live instance for id, building and initializing one if
// none exists. A failed initialize leaves nothing registered.
func (r *Registry) Create(ctx context.Context, id domain.AgentID, opts domain.AgentOptions) (domain.Agent, error) {
	l := r.lockFor(id)
	l.Lock()
	defer l.Unlock()
	return r.createLocked(ctx, id, opts)
}

func (r *Registry) createLocked(ctx context.Context, id domain.AgentID, opts domain.AgentOptions) (domain.Agent, error) {
	if a, ok := r.Get(id); ok {
		return a, nil
	}

	ctor, ok := r.ctors[id]
	if !ok {
		return nil, domain.NewSubSystemError("registry", "Registry.Create", domain.ErrUnknownAgent, string(id))
	}
	a, err := ctor(opts)
	if err != nil {
		return nil, domain.NewSubSystemError("registry", "Registry.Create", domain.ErrAgentInit,
			fmt.Sprintf("construct %s: %v", id, err))
	}
	if err := a.Initialize(ctx); err != nil {
		if serr := a.Shutdown(context.WithoutCancel(ctx)); serr != nil {
			r.logger.Warn("shutdown of failed agent", "agent_id", id, "error", serr)
		}
		return nil, domain.NewSubSystemError("registry", "Registry.Create", domain.ErrAgentInit,
			fmt.Sprintf("initialize %s: %v", id, err))
	}

	r.mu.Lock()
	r.agents[id] = a
	r.opts[id] = opts
	r.mu.Unlock()

	r.logger.Info("agent created", "agent_id", id, "instance_id", a.InstanceID(), "version", a.Version())
	r.publish(ctx, domain.EventAgentCreated, id, map[string]string{"instance_id": a.InstanceID()})
	return a, nil
}

// Destroy shuts the instance down and removes it. Shutdown errors are logged
// only. Returns false when no instance exists.
func (r *Registry) Destroy(ctx context.Context, id domain.AgentID) bool {
	l := r.lockFor(id)
	l.Lock()
	defer l.Unlock()
	return r.destroyLocked(ctx, id)
}

func (r *Registry) destroyLocked(ctx context.Context, id domain.AgentID) bool {
	r.mu.Lock()
	a, ok := r.agents[id]
	delete(r.agents, id)
	r.mu.Unlock()
	if !ok {
		return false
	}

	if err := a.Shutdown(ctx); err != nil {
		r.logger.Warn("agent shutdown failed", "agent_id", id, "instance_id", a.InstanceID(), "error", err)
	}
	r.logger.Info("agent destroyed", "agent_id", id, "instance_id", a.InstanceID())
	r.publish(ctx, domain.EventAgentDestroyed, id, map[string]string{"instance_id": a.InstanceID()})
	return true
}

// Restart destroys and recreates id with the options it was last created
// with. Readers may observe id as absent between the two steps.
func (r *Registry) Restart(ctx context.Context, id domain.AgentID) (domain.Agent, error) {
	l := r.lockFor(id)
	l.Lock()
	defer l.Unlock()

	r.mu.RLock()
	opts := r.opts[id]
	r.mu.RUnlock()

	r.destroyLocked(ctx, id)
	a, err := r.createLocked(ctx, id, opts)
	if err != nil {
		return nil, domain.WrapOp("Registry.Restart", err)
	}
	r.publish(ctx, domain.EventAgentRestarted, id, map[string]string{"instance_id": a.InstanceID()})
	return a, nil
}

// Get returns the live instance for id.
func (r *Registry) Get(id domain.AgentID) (domain.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// List returns a copy of the identity → instance map.
func (r *Registry) List() map[domain.AgentID]domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.agents)
}

// IDs returns the identities with a live instance, sorted.
func (r *Registry) IDs() []domain.AgentID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.agents))
}

// Known returns every identity the registry can build, sorted.
func (r *Registry) Known() []domain.AgentID {
	return slices.Sorted(maps.Keys(r.ctors))
}

// HealthOf delegates to the agent's own readiness check. An absent agent is
// unhealthy.
func (r *Registry) HealthOf(ctx context.Context, id domain.AgentID) bool {
	a, ok := r.Get(id)
	if !ok {
		return false
	}
	return a.HealthCheck(ctx)
}

// Snapshot describes id for status queries. ok is false when id has no
// live instance.
func (r *Registry) Snapshot(ctx context.Context, id domain.AgentID) (domain.StatusSnapshot, bool) {
	a, ok := r.Get(id)
	if !ok {
		return domain.StatusSnapshot{AgentID: id, Status: domain.StatusOffline}, false
	}
	return domain.StatusSnapshot{
		AgentID:      id,
		InstanceID:   a.InstanceID(),
		Status:       a.Status(),
		Version:      a.Version(),
		Capabilities: a.Capabilities(),
		CreatedAt:    a.CreatedAt(),
		Healthy:      a.HealthCheck(ctx),
	}, true
}

// FindByCapability returns the live agents advertising capability, sorted.
func (r *Registry) FindByCapability(capability string) []domain.AgentID {
	var out []domain.AgentID
	for id, a := range r.List() {
		if slices.Contains(a.Capabilities(), capability) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// DestroyAll tears down every live agent.
func (r *Registry) DestroyAll(ctx context.Context) int {
	n := 0
	for _, id := range r.IDs() {
		if r.Destroy(ctx, id) {
			n++
		}
	}
	return n
}

func (r *Registry) publish(ctx context.Context, t domain.EventType, id domain.AgentID, payload any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(ctx, domain.NewEvent(t, id, payload))
}
