// Package eventbus is the in-process publish/subscribe hub for agent
// lifecycle, task and metrics events.
package eventbus

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
)

type subscription struct {
	id      uint64
	handler domain.EventHandler
}

// Bus is an in-process, goroutine-safe event bus. Handlers run
// asynchronously and never block the publisher.
type Bus struct {
	mu      sync.RWMutex
	typed   map[domain.EventType][]subscription
	allSubs []subscription
	counts  map[domain.EventType]int64
	nextID  atomic.Uint64
	logger  *slog.Logger
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		typed:  make(map[domain.EventType][]subscription),
		counts: make(map[domain.EventType]int64),
		logger: logger,
	}
}

// Publish fans out an event to matching typed subscribers and all-event
// subscribers. Handlers get a context detached from the publisher's
// cancellation since they outlive the call.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.Lock()
	b.counts[event.Type]++
	subs := slices.Concat(b.typed[event.Type], b.allSubs)
	b.mu.Unlock()

	hctx := context.WithoutCancel(ctx)
	for _, sub := range subs {
		b.dispatch(hctx, event, sub)
	}
}

func (b *Bus) dispatch(ctx context.Context, event domain.Event, sub subscription) {
	b.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("event handler panicked",
					"event", string(event.Type),
					"agent_id", event.AgentID,
					"panic", r,
				)
			}
		}()
		sub.handler(ctx, event)
	})
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.typed[eventType] = append(b.typed[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.typed[eventType] = slices.DeleteFunc(b.typed[eventType], func(s subscription) bool { return s.id == id })
	}
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.allSubs = append(b.allSubs, subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.allSubs = slices.DeleteFunc(b.allSubs, func(s subscription) bool { return s.id == id })
	}
}

// Counts returns how many events of each type were published so far.
func (b *Bus) Counts() map[domain.EventType]int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.counts)
}

// Close prevents new publishes and waits for all in-flight handlers to finish.
// Close is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.wg.Wait()
}
