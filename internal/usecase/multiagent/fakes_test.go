package multiagent

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
)

func testLogger() *slog.Logger { return discardLogger() }

// behavior scripts a fake agent kind.
type behavior struct {
	initErr     error
	handleErr   error
	confidence  float64
	fields      map[string]string
	delay       time.Duration
	ignoreCtx   bool // keep sleeping past cancellation
	shutdownErr error
}

type fakeAgent struct {
	id         domain.AgentID
	instanceID string
	created    time.Time
	b          behavior

	mu     sync.Mutex
	status domain.AgentStatus

	calls     atomic.Int32
	shutdowns atomic.Int32
	lastRC    atomic.Pointer[domain.RequestContext]
}

func (a *fakeAgent) ID() domain.AgentID     { return a.id }
func (a *fakeAgent) InstanceID() string     { return a.instanceID }
func (a *fakeAgent) Capabilities() []string { return []string{string(a.id) + ".fake"} }
func (a *fakeAgent) Version() string        { return "test" }
func (a *fakeAgent) CreatedAt() time.Time   { return a.created }

func (a *fakeAgent) Status() domain.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *fakeAgent) setStatus(s domain.AgentStatus) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

func (a *fakeAgent) Initialize(_ context.Context) error {
	if a.b.initErr != nil {
		a.setStatus(domain.StatusError)
		return a.b.initErr
	}
	a.setStatus(domain.StatusActive)
	return nil
}

func (a *fakeAgent) Handle(ctx context.Context, message string, rc domain.RequestContext) (*domain.TaskResult, error) {
	a.calls.Add(1)
	a.lastRC.Store(&rc)
	if !a.Status().Ready() {
		return nil, fmt.Errorf("fake %s: %w", a.id, domain.ErrAgentNotReady)
	}
	if a.b.delay > 0 {
		if a.b.ignoreCtx {
			time.Sleep(a.b.delay)
		} else {
			select {
			case <-time.After(a.b.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if a.b.handleErr != nil {
		return nil, a.b.handleErr
	}
	fields := map[string]string{"summary": string(a.id) + " says " + message}
	maps.Copy(fields, a.b.fields)
	return &domain.TaskResult{
		Success: true,
		Payload: domain.Payload{Intent: "fake", Reply: string(a.id), Fields: fields},
		Context: rc,
		Metadata: domain.ResultMetadata{
			AgentID:         a.id,
			InstanceID:      a.instanceID,
			Confidence:      a.b.confidence,
			ExecutionTimeMs: 1,
		},
	}, nil
}

func (a *fakeAgent) HealthCheck(_ context.Context) bool { return a.Status().Ready() }

func (a *fakeAgent) Shutdown(_ context.Context) error {
	a.shutdowns.Add(1)
	a.setStatus(domain.StatusOffline)
	return a.b.shutdownErr
}

// fakeFactory builds fake agents and remembers every instance.
type fakeFactory struct {
	mu        sync.Mutex
	behaviors map[domain.AgentID]behavior
	built     map[domain.AgentID][]*fakeAgent
	seq       int
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		behaviors: make(map[domain.AgentID]behavior),
		built:     make(map[domain.AgentID][]*fakeAgent),
	}
}

func (f *fakeFactory) set(id domain.AgentID, b behavior) {
	f.mu.Lock()
	f.behaviors[id] = b
	f.mu.Unlock()
}

func (f *fakeFactory) instances(id domain.AgentID) []*fakeAgent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeAgent(nil), f.built[id]...)
}

func (f *fakeFactory) last(id domain.AgentID) *fakeAgent {
	all := f.instances(id)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

func (f *fakeFactory) ctors() map[domain.AgentID]domain.AgentConstructor {
	out := make(map[domain.AgentID]domain.AgentConstructor)
	for _, id := range domain.AllAgents {
		out[id] = func(domain.AgentOptions) (domain.Agent, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.seq++
			a := &fakeAgent{
				id:         id,
				instanceID: fmt.Sprintf("%s-%d", id, f.seq),
				created:    time.Now(),
				b:          f.behaviors[id],
				status:     domain.StatusUninitialized,
			}
			f.built[id] = append(f.built[id], a)
			return a, nil
		}
	}
	return out
}

// recordingBus captures published events synchronously.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}
func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *recordingBus) Close()                                                 {}

func (b *recordingBus) count(t domain.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
