package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	// Agent lifecycle events.
	EventAgentCreated   EventType = "agent.created"
	EventAgentDestroyed EventType = "agent.destroyed"
	EventAgentRestarted EventType = "agent.restarted"
	EventAgentUnhealthy EventType = "agent.unhealthy"
	EventAgentError     EventType = "agent.error"

	// Task events.
	EventTaskCompleted EventType = "task.completed"
	EventTaskRejected  EventType = "task.rejected"

	// Manager events.
	EventMetricsCollected EventType = "metrics.collected"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	AgentID   AgentID         `json:"agent_id,omitempty"`
	TaskID    string          `json:"task_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event with payload marshalled to JSON. A payload that
// cannot be marshalled is dropped rather than failing the publisher.
func NewEvent(t EventType, agentID AgentID, payload any) Event {
	e := Event{Type: t, Timestamp: time.Now(), AgentID: agentID}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			e.Payload = raw
		}
	}
	return e
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
