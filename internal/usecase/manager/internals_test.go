package manager

import (
	"fmt"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
)

func TestRestartQueueDedup(t *testing.T) {
	q := newRestartQueue(2)
	if !q.enqueue(domain.AgentCommerce) {
		t.Fatal("first enqueue should succeed")
	}
	if q.enqueue(domain.AgentCommerce) {
		t.Error("second enqueue for a pending identity must be a no-op")
	}
	if !q.enqueue(domain.AgentKnowledge) {
		t.Error("other identities queue independently")
	}
	if q.enqueue(domain.AgentLifestyle) {
		t.Error("full queue should refuse")
	}
	if got := q.enqueued.Load(); got != 2 {
		t.Errorf("enqueued = %d, want 2", got)
	}

	<-q.ch
	q.done(domain.AgentCommerce)
	if q.pending(domain.AgentCommerce) {
		t.Error("done should clear pending")
	}
	if !q.enqueue(domain.AgentCommerce) {
		t.Error("enqueue after done should succeed")
	}
}

func TestMetricsBookRunningAverage(t *testing.T) {
	b := newMetricsBook([]domain.AgentID{domain.AgentDiagnostic})
	now := time.Now()
	b.record(domain.AgentDiagnostic, true, 10, now)
	b.record(domain.AgentDiagnostic, true, 30, now)
	b.record(domain.AgentDiagnostic, false, 1000, now)
	b.record("", true, 5, now)

	m, ok := b.get(domain.AgentDiagnostic)
	if !ok {
		t.Fatal("missing entry")
	}
	if m.AverageResponseTimeMs != 20 {
		t.Errorf("avg = %v, want 20", m.AverageResponseTimeMs)
	}
	if m.TasksProcessed != 3 || m.ErrorCount != 1 || m.SuccessCount != 2 {
		t.Errorf("counters = %+v", m)
	}
	if want := 2.0 / 3.0; m.SuccessRate != want {
		t.Errorf("rate = %v, want %v", m.SuccessRate, want)
	}
	if len(b.all()) != 1 {
		t.Error("empty agent id must not create an entry")
	}
}

func TestUserLimiterDisabled(t *testing.T) {
	l := newUserLimiter(RateLimit{})
	if l != nil {
		t.Fatal("zero rate should disable limiting")
	}
	for range 100 {
		if !l.allow("u1") {
			t.Fatal("nil limiter must allow")
		}
	}
}

func TestUserLimiterPrunesIdleUsers(t *testing.T) {
	l := newUserLimiter(RateLimit{RequestsPerMin: 600, Burst: 2})
	for i := range maxTrackedUsers {
		l.users[fmt.Sprintf("u%d", i)] = rate.NewLimiter(l.limit, l.burst)
	}
	if !l.allow("fresh") {
		t.Fatal("new user should be allowed")
	}
	if len(l.users) != 1 {
		t.Errorf("users = %d, want only the fresh one after pruning", len(l.users))
	}
}

func TestUserLimiterBurst(t *testing.T) {
	l := newUserLimiter(RateLimit{RequestsPerMin: 1})
	if !l.allow("u1") {
		t.Fatal("first request allowed")
	}
	if l.allow("u1") {
		t.Error("burst defaults to the per-minute rate")
	}
}
