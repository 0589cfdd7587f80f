package domain

import (
	"context"
	"time"
)

// AgentID identifies one of the fixed agent kinds. It is used as a map key
// everywhere and never changes for the lifetime of the process.
type AgentID string

const (
	AgentDiagnostic AgentID = "xiaoai" // health inquiry and TCM-style diagnosis
	AgentCommerce   AgentID = "xiaoke" // services, products, appointments
	AgentKnowledge  AgentID = "laoke"  // TCM knowledge and education
	AgentLifestyle  AgentID = "soer"   // daily-life, diet and exercise planning
)

// AllAgents lists every known agent kind in a stable order.
var AllAgents = []AgentID{AgentDiagnostic, AgentCommerce, AgentKnowledge, AgentLifestyle}

// Valid reports whether id is one of the known agent kinds.
func (id AgentID) Valid() bool {
	switch id {
	case AgentDiagnostic, AgentCommerce, AgentKnowledge, AgentLifestyle:
		return true
	}
	return false
}

func (id AgentID) String() string { return string(id) }

// AgentStatus is the lifecycle state of a live agent instance.
type AgentStatus string

const (
	StatusUninitialized AgentStatus = "uninitialized"
	StatusInitializing  AgentStatus = "initializing"
	StatusActive        AgentStatus = "active"
	StatusBusy          AgentStatus = "busy"
	StatusMaintenance   AgentStatus = "maintenance"
	StatusError         AgentStatus = "error"
	StatusOffline       AgentStatus = "offline"
)

// Ready reports whether an agent in this state accepts work.
func (s AgentStatus) Ready() bool {
	return s == StatusActive || s == StatusBusy
}

// Agent is a specialised, stateful worker. Status transitions happen only
// inside the agent's own methods.
type Agent interface {
	ID() AgentID
	// InstanceID is unique per constructed instance; a restart yields a new one.
	InstanceID() string
	Capabilities() []string
	Status() AgentStatus
	Version() string
	CreatedAt() time.Time

	Initialize(ctx context.Context) error
	// Handle processes one message. It fails with ErrAgentNotReady when the
	// agent is not Active or Busy and leaves the state untouched in that case.
	Handle(ctx context.Context, message string, rc RequestContext) (*TaskResult, error)
	// HealthCheck reports readiness without touching the network.
	HealthCheck(ctx context.Context) bool
	Shutdown(ctx context.Context) error
}

// AgentOptions tunes a single createAgent call.
type AgentOptions struct {
	Version string
	// ExtraCapabilities are advertised in addition to the built-in set.
	ExtraCapabilities []string
}

// AgentConstructor builds an uninitialized agent of one kind. Constructors
// are registered once per AgentID at startup.
type AgentConstructor func(opts AgentOptions) (Agent, error)

// StatusSnapshot is a read-only view of one agent for status queries.
type StatusSnapshot struct {
	AgentID      AgentID     `json:"agent_id"`
	InstanceID   string      `json:"instance_id,omitempty"`
	Status       AgentStatus `json:"status"`
	Version      string      `json:"version,omitempty"`
	Capabilities []string    `json:"capabilities,omitempty"`
	CreatedAt    time.Time   `json:"created_at,omitzero"`
	Healthy      bool        `json:"healthy"`

	// RestartPending is true while a restart for this agent sits in the queue.
	RestartPending bool `json:"restart_pending"`
}
