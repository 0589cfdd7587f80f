package multiagent

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
	"github.com/SUOKE2024/suoke-life-sub002/internal/usecase/agents"
)

func TestRegistryCreateIsIdempotent(t *testing.T) {
	f := newFakeFactory()
	r := NewRegistry(f.ctors(), nil, testLogger())

	a1, err := r.Create(context.Background(), domain.AgentCommerce, domain.AgentOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	a2, err := r.Create(context.Background(), domain.AgentCommerce, domain.AgentOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a1 != a2 || a1.InstanceID() != a2.InstanceID() {
		t.Errorf("second Create returned a different instance: %s vs %s", a1.InstanceID(), a2.InstanceID())
	}
	if n := len(f.instances(domain.AgentCommerce)); n != 1 {
		t.Errorf("constructor called %d times, want 1", n)
	}
	if a1.Status() != domain.StatusActive {
		t.Errorf("status = %s, want active", a1.Status())
	}
}

func TestRegistryConcurrentCreateBuildsOnce(t *testing.T) {
	f := newFakeFactory()
	r := NewRegistry(f.ctors(), nil, testLogger())

	var wg sync.WaitGroup
	ids := make([]string, 50)
	for i := range ids {
		wg.Go(func() {
			a, err := r.Create(context.Background(), domain.AgentKnowledge, domain.AgentOptions{})
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			ids[i] = a.InstanceID()
		})
	}
	wg.Wait()

	if n := len(f.instances(domain.AgentKnowledge)); n != 1 {
		t.Fatalf("constructor called %d times, want 1", n)
	}
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("callers saw different instances: %s vs %s", id, ids[0])
		}
	}
}

func TestRegistryCreateInitFailureKeepsNothing(t *testing.T) {
	f := newFakeFactory()
	f.set(domain.AgentLifestyle, behavior{initErr: errors.New("vocabulary missing")})
	bus := &recordingBus{}
	r := NewRegistry(f.ctors(), bus, testLogger())

	_, err := r.Create(context.Background(), domain.AgentLifestyle, domain.AgentOptions{})
	if !errors.Is(err, domain.ErrAgentInit) {
		t.Fatalf("err = %v, want ErrAgentInit", err)
	}
	if domain.ErrorCodeOf(err) != domain.CodeAgentInit {
		t.Errorf("code = %s", domain.ErrorCodeOf(err))
	}
	if _, ok := r.Get(domain.AgentLifestyle); ok {
		t.Error("half-constructed agent was registered")
	}
	if got := f.last(domain.AgentLifestyle).shutdowns.Load(); got != 1 {
		t.Errorf("failed agent shutdown calls = %d, want 1", got)
	}
	if bus.count(domain.EventAgentCreated) != 0 {
		t.Error("created event published for a failed agent")
	}
}

func TestRegistryUnknownAgent(t *testing.T) {
	r := NewRegistry(nil, nil, testLogger())
	_, err := r.Create(context.Background(), "xiaoming", domain.AgentOptions{})
	if !errors.Is(err, domain.ErrUnknownAgent) {
		t.Errorf("err = %v, want ErrUnknownAgent", err)
	}
}

func TestRegistryDestroy(t *testing.T) {
	f := newFakeFactory()
	f.set(domain.AgentDiagnostic, behavior{shutdownErr: errors.New("flush failed")})
	bus := &recordingBus{}
	r := NewRegistry(f.ctors(), bus, testLogger())

	if r.Destroy(context.Background(), domain.AgentDiagnostic) {
		t.Error("Destroy of absent agent should return false")
	}
	if _, err := r.Create(context.Background(), domain.AgentDiagnostic, domain.AgentOptions{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !r.Destroy(context.Background(), domain.AgentDiagnostic) {
		t.Fatal("Destroy should return true")
	}
	if _, ok := r.Get(domain.AgentDiagnostic); ok {
		t.Error("agent still registered after Destroy")
	}
	if got := f.last(domain.AgentDiagnostic).Status(); got != domain.StatusOffline {
		t.Errorf("destroyed agent status = %s", got)
	}
	if bus.count(domain.EventAgentDestroyed) != 1 {
		t.Errorf("destroyed events = %d", bus.count(domain.EventAgentDestroyed))
	}
}

func TestRegistryRestartYieldsNewInstance(t *testing.T) {
	f := newFakeFactory()
	bus := &recordingBus{}
	r := NewRegistry(f.ctors(), bus, testLogger())

	old, _ := r.Create(context.Background(), domain.AgentCommerce, domain.AgentOptions{Version: "2.0"})
	fresh, err := r.Restart(context.Background(), domain.AgentCommerce)
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if fresh.InstanceID() == old.InstanceID() {
		t.Error("Restart returned the old instance")
	}
	if old.Status() != domain.StatusOffline {
		t.Errorf("old instance status = %s", old.Status())
	}
	got, _ := r.Get(domain.AgentCommerce)
	if got != fresh {
		t.Error("registry does not hold the restarted instance")
	}
	if bus.count(domain.EventAgentRestarted) != 1 {
		t.Errorf("restarted events = %d", bus.count(domain.EventAgentRestarted))
	}
}

func TestRegistryListIsSnapshot(t *testing.T) {
	f := newFakeFactory()
	r := NewRegistry(f.ctors(), nil, testLogger())
	for _, id := range domain.AllAgents {
		r.Create(context.Background(), id, domain.AgentOptions{})
	}

	list := r.List()
	if len(list) != 4 {
		t.Fatalf("List len = %d, want 4", len(list))
	}
	delete(list, domain.AgentCommerce)
	if _, ok := r.Get(domain.AgentCommerce); !ok {
		t.Error("mutating the List result affected the registry")
	}
	want := []domain.AgentID{domain.AgentKnowledge, domain.AgentLifestyle, domain.AgentDiagnostic, domain.AgentCommerce}
	slices.Sort(want)
	if got := r.IDs(); !slices.Equal(got, want) {
		t.Errorf("IDs = %v, want %v", got, want)
	}
}

func TestRegistryHealthOfAndSnapshot(t *testing.T) {
	f := newFakeFactory()
	r := NewRegistry(f.ctors(), nil, testLogger())
	ctx := context.Background()

	if r.HealthOf(ctx, domain.AgentLifestyle) {
		t.Error("absent agent reported healthy")
	}
	if snap, ok := r.Snapshot(ctx, domain.AgentLifestyle); ok || snap.Status != domain.StatusOffline {
		t.Errorf("absent snapshot = %+v, ok=%v", snap, ok)
	}

	r.Create(ctx, domain.AgentLifestyle, domain.AgentOptions{})
	if !r.HealthOf(ctx, domain.AgentLifestyle) {
		t.Error("active agent reported unhealthy")
	}
	f.last(domain.AgentLifestyle).setStatus(domain.StatusError)
	if r.HealthOf(ctx, domain.AgentLifestyle) {
		t.Error("errored agent reported healthy")
	}
	snap, ok := r.Snapshot(ctx, domain.AgentLifestyle)
	if !ok || snap.Status != domain.StatusError || snap.Healthy {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRegistryFindByCapability(t *testing.T) {
	r := NewRegistry(agents.Constructors(), nil, testLogger())
	ctx := context.Background()
	for _, id := range domain.AllAgents {
		if _, err := r.Create(ctx, id, domain.AgentOptions{}); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	got := r.FindByCapability("xiaoke.medical_resource.allocate")
	if !slices.Equal(got, []domain.AgentID{domain.AgentCommerce}) {
		t.Errorf("FindByCapability = %v", got)
	}
	if got := r.FindByCapability("nobody.does.this"); len(got) != 0 {
		t.Errorf("FindByCapability = %v, want none", got)
	}
}

func TestRegistryDestroyAll(t *testing.T) {
	f := newFakeFactory()
	r := NewRegistry(f.ctors(), nil, testLogger())
	for _, id := range domain.AllAgents {
		r.Create(context.Background(), id, domain.AgentOptions{})
	}
	if n := r.DestroyAll(context.Background()); n != 4 {
		t.Errorf("DestroyAll = %d, want 4", n)
	}
	if len(r.List()) != 0 {
		t.Error("agents remain after DestroyAll")
	}
}
