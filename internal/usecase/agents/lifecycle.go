// Package agents holds the four concrete agents and the lifecycle state
// machine they share.
package agents

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
)

const defaultVersion = "1.0.0"

// responder turns a classification into the variant's payload.
type responder func(cls Classification, message string, rc domain.RequestContext) domain.Payload

// lifecycle implements domain.Agent on top of a classifier and a responder.
// Status changes only happen inside its own methods.
type lifecycle struct {
	id         domain.AgentID
	instanceID string
	version    string
	createdAt  time.Time
	caps       []string
	classifier *Classifier
	respond    responder

	mu       sync.Mutex
	status   domain.AgentStatus
	inFlight int
}

func newLifecycle(id domain.AgentID, opts domain.AgentOptions, c *Classifier, respond responder) *lifecycle {
	version := opts.Version
	if version == "" {
		version = defaultVersion
	}
	caps := c.Capabilities()
	for _, extra := range opts.ExtraCapabilities {
		if !slices.Contains(caps, extra) {
			caps = append(caps, extra)
		}
	}
	return &lifecycle{
		id:         id,
		instanceID: uuid.NewString(),
		version:    version,
		createdAt:  time.Now(),
		caps:       caps,
		classifier: c,
		respond:    respond,
		status:     domain.StatusUninitialized,
	}
}

func (a *lifecycle) ID() domain.AgentID     { return a.id }
func (a *lifecycle) InstanceID() string     { return a.instanceID }
func (a *lifecycle) Version() string        { return a.version }
func (a *lifecycle) CreatedAt() time.Time   { return a.createdAt }
func (a *lifecycle) Capabilities() []string { return slices.Clone(a.caps) }

func (a *lifecycle) Status() domain.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Initialize moves the agent to Active. Calling it on an Active or Busy
// agent is a no-op; an Offline agent cannot be revived.
func (a *lifecycle) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.status {
	case domain.StatusActive, domain.StatusBusy:
		return nil
	case domain.StatusOffline:
		return domain.NewSubSystemError("agent", "Agent.Initialize", domain.ErrAgentInit,
			fmt.Sprintf("%s is offline", a.id))
	}

	a.status = domain.StatusInitializing
	if err := ctx.Err(); err != nil {
		a.status = domain.StatusError
		return domain.NewSubSystemError("agent", "Agent.Initialize", domain.ErrAgentInit, err.Error())
	}
	if len(a.caps) == 0 {
		a.status = domain.StatusError
		return domain.NewSubSystemError("agent", "Agent.Initialize", domain.ErrAgentInit,
			fmt.Sprintf("%s advertises no capabilities", a.id))
	}
	a.status = domain.StatusActive
	return nil
}

// Handle classifies message and builds the variant's reply. A rejected call
// leaves the status untouched.
func (a *lifecycle) Handle(ctx context.Context, message string, rc domain.RequestContext) (*domain.TaskResult, error) {
	if err := a.enter(); err != nil {
		return nil, err
	}
	defer a.leave()

	if err := ctx.Err(); err != nil {
		return nil, domain.WrapOp("Agent.Handle", err)
	}

	start := time.Now()
	cls := a.classifier.Classify(message)
	payload := a.respond(cls, message, rc)
	if payload.Fields == nil {
		payload.Fields = make(map[string]string)
	}
	payload.Fields["capability"] = cls.Capability
	if len(cls.Matched) > 0 {
		payload.Fields["matched"] = strings.Join(cls.Matched, ",")
	}
	if len(rc.PriorResults) > 0 {
		prior := make([]string, 0, len(rc.PriorResults))
		for _, c := range rc.PriorResults {
			prior = append(prior, c.AgentID.String())
		}
		payload.Fields["prior_agents"] = strings.Join(prior, ",")
	}

	return &domain.TaskResult{
		Success: true,
		Payload: payload,
		Context: rc,
		Metadata: domain.ResultMetadata{
			ExecutionTimeMs: domain.ElapsedMs(time.Since(start)),
			Confidence:      cls.Confidence,
			AgentID:         a.id,
			InstanceID:      a.instanceID,
		},
	}, nil
}

func (a *lifecycle) enter() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.status.Ready() {
		return domain.NewSubSystemError("agent", "Agent.Handle", domain.ErrAgentNotReady,
			fmt.Sprintf("%s is %s", a.id, a.status))
	}
	a.inFlight++
	a.status = domain.StatusBusy
	return nil
}

func (a *lifecycle) leave() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inFlight--
	if a.inFlight == 0 && a.status == domain.StatusBusy {
		a.status = domain.StatusActive
	}
}

// HealthCheck reports whether the agent accepts work.
func (a *lifecycle) HealthCheck(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	return a.Status().Ready()
}

// Shutdown is terminal. Calls still in flight finish but their completion
// no longer changes the status.
func (a *lifecycle) Shutdown(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = domain.StatusOffline
	return nil
}

// fields builds a payload field map from key/value pairs, skipping empty values.
func fields(kv map[string]string) map[string]string {
	out := make(map[string]string, len(kv))
	maps.Copy(out, kv)
	maps.DeleteFunc(out, func(_, v string) bool { return v == "" })
	return out
}

// priorSummary joins the summaries of earlier successful contributions.
func priorSummary(rc domain.RequestContext) string {
	var parts []string
	for _, c := range rc.PriorResults {
		if c.Success && c.Summary != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", c.AgentID, c.Summary))
		}
	}
	return strings.Join(parts, "; ")
}
