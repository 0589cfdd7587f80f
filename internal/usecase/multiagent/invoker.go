package multiagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
	"github.com/SUOKE2024/suoke-life-sub002/internal/infra/tracer"
)

// DefaultCallTimeout bounds a single agent call when none is configured.
const DefaultCallTimeout = 10 * time.Second

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the per-agent circuit breakers.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before going half-open.
	Timeout time.Duration
	// Interval clears failure counts while closed. Zero keeps them until the
	// circuit opens.
	Interval time.Duration
}

// InvokerConfig tunes agent calls.
type InvokerConfig struct {
	CallTimeout   time.Duration
	RetryNotReady bool
	Breaker       BreakerConfig
}

// Invoker calls one agent on behalf of the coordinator. Every call gets a
// deadline and passes through that agent's circuit breaker; a not-ready
// agent is restarted and retried once.
type Invoker struct {
	registry *Registry
	cfg      InvokerConfig
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[domain.AgentID]*gobreaker.CircuitBreaker[*domain.TaskResult]
}

// NewInvoker creates an Invoker. Zero config values fall back to defaults.
func NewInvoker(registry *Registry, cfg InvokerConfig, logger *slog.Logger) *Invoker {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Breaker.MaxFailures == 0 {
		cfg.Breaker.MaxFailures = defaultCBMaxFailures
	}
	if cfg.Breaker.Timeout == 0 {
		cfg.Breaker.Timeout = defaultCBTimeout
	}
	if cfg.Breaker.Interval == 0 {
		cfg.Breaker.Interval = defaultCBInterval
	}
	return &Invoker{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[domain.AgentID]*gobreaker.CircuitBreaker[*domain.TaskResult]),
	}
}

func (iv *Invoker) breaker(id domain.AgentID) *gobreaker.CircuitBreaker[*domain.TaskResult] {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	if cb, ok := iv.breakers[id]; ok {
		return cb
	}
	maxFailures := iv.cfg.Breaker.MaxFailures
	cb := gobreaker.NewCircuitBreaker[*domain.TaskResult](gobreaker.Settings{
		Name:        "agent:" + string(id),
		MaxRequests: 1,
		Interval:    iv.cfg.Breaker.Interval,
		Timeout:     iv.cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			iv.logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// A caller that gave up is not the agent's fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	iv.breakers[id] = cb
	return cb
}

// BreakerState reports the breaker state for id. Agents never called are Closed.
func (iv *Invoker) BreakerState(id domain.AgentID) gobreaker.State {
	iv.mu.Lock()
	cb, ok := iv.breakers[id]
	iv.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

// CircuitOpen reports whether calls to id are currently short-circuited.
func (iv *Invoker) CircuitOpen(id domain.AgentID) bool {
	return iv.BreakerState(id) == gobreaker.StateOpen
}

// Invoke runs message on agent id and always returns a result; failures are
// recorded on it rather than returned.
func (iv *Invoker) Invoke(ctx context.Context, id domain.AgentID, message string, rc domain.RequestContext) domain.TaskResult {
	ctx, span := tracer.StartSpan(ctx, "coordinator.invoke", tracer.StringAttr("agent_id", string(id)))
	defer span.End()

	start := time.Now()
	res, err := iv.attempt(ctx, id, message, rc)
	if err != nil && iv.cfg.RetryNotReady && domain.IsRetryableError(err) {
		iv.logger.Info("agent not ready, restarting before retry", "agent_id", id, "error", err)
		if _, rerr := iv.registry.Restart(ctx, id); rerr != nil {
			err = errors.Join(err, rerr)
		} else {
			res, err = iv.attempt(ctx, id, message, rc)
		}
	}

	if err != nil {
		tracer.RecordError(span, err)
		out := domain.TaskResult{
			Context: rc,
			Metadata: domain.ResultMetadata{
				AgentID:         id,
				ExecutionTimeMs: domain.ElapsedMs(time.Since(start)),
			},
		}
		out.SetError(err)
		return out
	}
	tracer.SetOK(span)

	out := *res
	out.Metadata.AgentID = id
	if out.Metadata.ExecutionTimeMs == 0 {
		out.Metadata.ExecutionTimeMs = domain.ElapsedMs(time.Since(start))
	}
	return out
}

func (iv *Invoker) attempt(ctx context.Context, id domain.AgentID, message string, rc domain.RequestContext) (*domain.TaskResult, error) {
	agent, err := iv.registry.Create(ctx, id, domain.AgentOptions{})
	if err != nil {
		return nil, err
	}

	res, err := iv.breaker(id).Execute(func() (*domain.TaskResult, error) {
		return iv.call(ctx, agent, message, rc)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domain.NewSubSystemError("coordinator", "Invoker.Invoke", domain.ErrCircuitOpen,
			fmt.Sprintf("%s: %v", id, err))
	}
	return res, err
}

// call runs Handle under the per-call deadline. The agent runs in its own
// goroutine so a call that ignores its context still releases the caller.
func (iv *Invoker) call(ctx context.Context, agent domain.Agent, message string, rc domain.RequestContext) (*domain.TaskResult, error) {
	cctx, cancel := context.WithTimeout(ctx, iv.cfg.CallTimeout)
	defer cancel()

	type outcome struct {
		res *domain.TaskResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := agent.Handle(cctx, message, rc)
		done <- outcome{res, err}
	}()

	var res *domain.TaskResult
	var err error
	select {
	case o := <-done:
		res, err = o.res, o.err
	case <-cctx.Done():
		err = cctx.Err()
	}

	switch {
	case err != nil && ctx.Err() != nil:
		return nil, domain.WrapOp("Invoker.call", ctx.Err())
	case err != nil && cctx.Err() != nil:
		return nil, domain.NewSubSystemError("coordinator", "Invoker.call", domain.ErrTimeout,
			fmt.Sprintf("%s exceeded %s", agent.ID(), iv.cfg.CallTimeout))
	case err == nil && res == nil:
		return nil, domain.NewSubSystemError("coordinator", "Invoker.call", domain.ErrInvalidInput,
			fmt.Sprintf("%s returned no result", agent.ID()))
	}
	return res, err
}
