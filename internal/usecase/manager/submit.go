package manager

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
	"github.com/SUOKE2024/suoke-life-sub002/internal/infra/tracer"
)

// Submit is ProcessTask for callers that hold the request parts separately.
func (m *Manager) Submit(ctx context.Context, message string, rc domain.RequestContext, category string) (domain.TaskResult, error) {
	return m.ProcessTask(ctx, domain.TaskRequest{Message: message, Context: rc, Category: category})
}

// ProcessTask admits req and routes it through the coordinator. The error
// is non-nil only when the task was rejected before any agent ran
// (validation, rate limit, capacity or a stopped manager); agent failures
// are reported on the returned result.
func (m *Manager) ProcessTask(ctx context.Context, req domain.TaskRequest) (domain.TaskResult, error) {
	taskID := domain.TaskIDFromContext(ctx)
	if taskID == "" {
		taskID = newID()
		ctx = domain.ContextWithTaskID(ctx, taskID)
	}

	ctx, span := tracer.StartSpan(ctx, "manager.submit",
		tracer.StringAttr("task_id", taskID),
		tracer.StringAttr("category", req.Category),
		tracer.StringAttr("channel", string(req.Context.Channel)),
	)
	defer span.End()

	rt, err := m.admit(req)
	if err != nil {
		return m.reject(ctx, rt, taskID, req, span, err)
	}
	rt.inFlight.Add(1)
	defer func() {
		rt.inFlight.Add(-1)
		rt.sem.Release(1)
		rt.tasks.Done()
	}()

	res := rt.coordinator.Route(ctx, req)
	m.record(rt, res)

	if res.Success {
		tracer.SetOK(span)
	} else if res.Err != nil {
		tracer.RecordError(span, res.Err)
	}
	span.SetAttributes(
		tracer.StringAttr("mode", string(res.Mode)),
		tracer.BoolAttr("success", res.Success),
	)

	ev := domain.NewEvent(domain.EventTaskCompleted, res.Metadata.AgentID, map[string]any{
		"success":      res.Success,
		"mode":         res.Mode,
		"category":     res.Category,
		"participants": res.Participants,
		"error_code":   res.Code,
		"duration_ms":  res.Metadata.ExecutionTimeMs,
	})
	ev.TaskID = taskID
	rt.bus.Publish(ctx, ev)
	return res, nil
}

// admit takes a capacity slot and registers the task under the read lock,
// so a task is either in rt.tasks before Shutdown swaps the runtime out or
// sees a stopped manager. The returned runtime is nil when not running.
func (m *Manager) admit(req domain.TaskRequest) (*runtime, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rt := m.rt
	if rt == nil {
		return nil, domain.NewSubSystemError("manager", "Manager.ProcessTask", domain.ErrManagerNotRunning, "")
	}
	if err := req.Validate(); err != nil {
		return rt, err
	}
	if !rt.sem.TryAcquire(1) {
		return rt, domain.NewSubSystemError("manager", "Manager.ProcessTask", domain.ErrCapacityExceeded,
			fmt.Sprintf("%d tasks in flight", m.cfg.MaxConcurrentTasks))
	}
	// Capacity first: a task turned away for capacity costs no rate token.
	if !rt.limiter.allow(req.Context.UserID) {
		rt.sem.Release(1)
		return rt, domain.NewSubSystemError("manager", "Manager.ProcessTask", domain.ErrRateLimit,
			fmt.Sprintf("user %q", req.Context.UserID))
	}
	rt.tasks.Add(1)
	return rt, nil
}

// reject builds the failed result for a task that never reached an agent.
func (m *Manager) reject(ctx context.Context, rt *runtime, taskID string, req domain.TaskRequest, span trace.Span, err error) (domain.TaskResult, error) {
	res := domain.TaskResult{TaskID: taskID, Context: req.Context}
	res.SetError(err)
	tracer.RecordError(span, err)

	m.logger.Debug("task rejected", "task_id", taskID, "user_id", req.Context.UserID, "error_code", res.Code, "error", err)
	if rt != nil {
		ev := domain.NewEvent(domain.EventTaskRejected, "", map[string]any{"error_code": res.Code, "error": res.Error})
		ev.TaskID = taskID
		rt.bus.Publish(ctx, ev)
	}
	return res, err
}

// record updates metrics for every participant of res. A result without
// per-participant detail counts against its primary.
func (m *Manager) record(rt *runtime, res domain.TaskResult) {
	now := time.Now()
	if len(res.Results) == 0 {
		rt.metrics.record(res.Metadata.AgentID, res.Success, res.Metadata.ExecutionTimeMs, now)
		return
	}
	for _, r := range res.Results {
		rt.metrics.record(r.Metadata.AgentID, r.Success, r.Metadata.ExecutionTimeMs, now)
	}
}

// maxTrackedUsers bounds the limiter map. Beyond it, limiters that are back
// at full burst carry no state and are dropped.
const maxTrackedUsers = 10_000

// userLimiter applies one token bucket per user ID.
type userLimiter struct {
	limit rate.Limit
	burst int

	mu    sync.Mutex
	users map[string]*rate.Limiter
}

// newUserLimiter returns nil when limiting is disabled.
func newUserLimiter(cfg RateLimit) *userLimiter {
	if cfg.RequestsPerMin <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RequestsPerMin
	}
	return &userLimiter{
		limit: rate.Every(time.Minute / time.Duration(cfg.RequestsPerMin)),
		burst: burst,
		users: make(map[string]*rate.Limiter),
	}
}

func (l *userLimiter) allow(userID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.users[userID]
	if !ok {
		if len(l.users) >= maxTrackedUsers {
			l.prune()
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.users[userID] = lim
	}
	return lim.Allow()
}

func (l *userLimiter) prune() {
	for id, lim := range l.users {
		if lim.Tokens() >= float64(l.burst) {
			delete(l.users, id)
		}
	}
}

func newID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
