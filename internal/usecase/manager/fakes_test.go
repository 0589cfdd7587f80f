package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var errBoom = errors.New("boom")

type stubAgent struct {
	id         domain.AgentID
	instanceID string
	created    time.Time
	spec       stubSpec

	mu     sync.Mutex
	status domain.AgentStatus

	unhealthy atomic.Bool
	calls     atomic.Int32
}

// stubSpec scripts the instances a stubFactory builds for one identity.
type stubSpec struct {
	handleErr error
	release   chan struct{} // Handle waits for it when set
	initGate  chan struct{} // Initialize waits for it when set
	unhealthy bool
	elapsedMs int64
	delay     time.Duration
}

func (a *stubAgent) ID() domain.AgentID     { return a.id }
func (a *stubAgent) InstanceID() string     { return a.instanceID }
func (a *stubAgent) Capabilities() []string { return []string{string(a.id) + ".stub"} }
func (a *stubAgent) Version() string        { return "stub" }
func (a *stubAgent) CreatedAt() time.Time   { return a.created }

func (a *stubAgent) Status() domain.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *stubAgent) setStatus(s domain.AgentStatus) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

func (a *stubAgent) Initialize(ctx context.Context) error {
	if a.spec.initGate != nil {
		select {
		case <-a.spec.initGate:
		case <-ctx.Done():
			a.setStatus(domain.StatusError)
			return ctx.Err()
		}
	}
	a.setStatus(domain.StatusActive)
	a.unhealthy.Store(a.spec.unhealthy)
	return nil
}

func (a *stubAgent) Handle(ctx context.Context, message string, rc domain.RequestContext) (*domain.TaskResult, error) {
	a.calls.Add(1)
	if a.spec.release != nil {
		select {
		case <-a.spec.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.spec.delay > 0 {
		select {
		case <-time.After(a.spec.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.spec.handleErr != nil {
		return nil, a.spec.handleErr
	}
	elapsed := a.spec.elapsedMs
	if elapsed == 0 {
		elapsed = 1
	}
	return &domain.TaskResult{
		Success: true,
		Payload: domain.Payload{Intent: "stub", Reply: string(a.id) + ": " + message},
		Context: rc,
		Metadata: domain.ResultMetadata{
			AgentID:         a.id,
			InstanceID:      a.instanceID,
			Confidence:      0.9,
			ExecutionTimeMs: elapsed,
		},
	}, nil
}

func (a *stubAgent) HealthCheck(_ context.Context) bool {
	return a.Status().Ready() && !a.unhealthy.Load()
}

func (a *stubAgent) Shutdown(_ context.Context) error {
	a.setStatus(domain.StatusOffline)
	return nil
}

type stubFactory struct {
	mu    sync.Mutex
	specs map[domain.AgentID]stubSpec
	built map[domain.AgentID][]*stubAgent
	seq   int
}

func newStubFactory() *stubFactory {
	return &stubFactory{
		specs: make(map[domain.AgentID]stubSpec),
		built: make(map[domain.AgentID][]*stubAgent),
	}
}

func (f *stubFactory) set(id domain.AgentID, s stubSpec) {
	f.mu.Lock()
	f.specs[id] = s
	f.mu.Unlock()
}

func (f *stubFactory) count(id domain.AgentID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built[id])
}

func (f *stubFactory) last(id domain.AgentID) *stubAgent {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.built[id]
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

// all returns every instance built so far.
func (f *stubFactory) all() []*stubAgent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*stubAgent
	for _, list := range f.built {
		out = append(out, list...)
	}
	return out
}

func (f *stubFactory) totalCalls() int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int32
	for _, list := range f.built {
		for _, a := range list {
			n += a.calls.Load()
		}
	}
	return n
}

func (f *stubFactory) ctors() map[domain.AgentID]domain.AgentConstructor {
	out := make(map[domain.AgentID]domain.AgentConstructor, len(domain.AllAgents))
	for _, id := range domain.AllAgents {
		out[id] = func(domain.AgentOptions) (domain.Agent, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.seq++
			a := &stubAgent{
				id:         id,
				instanceID: fmt.Sprintf("%s-%d", id, f.seq),
				created:    time.Now(),
				spec:       f.specs[id],
				status:     domain.StatusUninitialized,
			}
			f.built[id] = append(f.built[id], a)
			return a, nil
		}
	}
	return out
}

// memStore is an in-memory domain.MetricsStore.
type memStore struct {
	mu     sync.Mutex
	saves  int
	snaps  []domain.MetricsSnapshot
	pruned []time.Time
}

func (s *memStore) SaveSnapshot(_ context.Context, at time.Time, ms []domain.AgentMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	for _, m := range ms {
		s.snaps = append(s.snaps, domain.MetricsSnapshot{ID: int64(len(s.snaps) + 1), TakenAt: at, Metrics: m})
	}
	return nil
}

func (s *memStore) ListSnapshots(_ context.Context, id domain.AgentID, limit int) ([]domain.MetricsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.MetricsSnapshot
	for i := len(s.snaps) - 1; i >= 0; i-- {
		if s.snaps[i].Metrics.AgentID == id {
			out = append(out, s.snaps[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) Latest(ctx context.Context, id domain.AgentID) (domain.MetricsSnapshot, error) {
	list, _ := s.ListSnapshots(ctx, id, 1)
	if len(list) == 0 {
		return domain.MetricsSnapshot{}, domain.ErrNotFound
	}
	return list[0], nil
}

func (s *memStore) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruned = append(s.pruned, cutoff)
	return 0, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
