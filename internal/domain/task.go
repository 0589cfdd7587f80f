package domain

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Channel is a coarse routing key that selects a default primary agent.
type Channel string

const (
	ChannelChat    Channel = "chat"
	ChannelSuoke   Channel = "suoke"
	ChannelExplore Channel = "explore"
	ChannelLife    Channel = "life"
)

// channelDefaults is the fixed channel → primary agent table.
var channelDefaults = map[Channel]AgentID{
	ChannelChat:    AgentDiagnostic,
	ChannelSuoke:   AgentCommerce,
	ChannelExplore: AgentKnowledge,
	ChannelLife:    AgentLifestyle,
}

// DefaultAgentFor returns the primary agent for a channel. Unknown and empty
// channels fall back to the diagnostic agent.
func DefaultAgentFor(ch Channel) AgentID {
	if id, ok := channelDefaults[Channel(strings.ToLower(string(ch)))]; ok {
		return id
	}
	return AgentDiagnostic
}

// RequestContext travels with a message through every agent that handles it.
// Treat it as a value: the With* helpers return modified copies.
type RequestContext struct {
	UserID    string  `json:"user_id"`
	SessionID string  `json:"session_id,omitempty"`
	Channel   Channel `json:"channel,omitempty"`

	// Extensions carries caller metadata that has no dedicated field.
	Extensions map[string]string `json:"extensions,omitempty"`

	// PriorResults holds the output of agents that ran earlier in a
	// sequential collaboration, in invocation order.
	PriorResults []Contribution `json:"prior_results,omitempty"`
}

// Extension returns the value stored under key, if any.
func (rc RequestContext) Extension(key string) (string, bool) {
	v, ok := rc.Extensions[key]
	return v, ok
}

// WithExtension returns a copy of rc with key set to value.
func (rc RequestContext) WithExtension(key, value string) RequestContext {
	out := rc.clone()
	if out.Extensions == nil {
		out.Extensions = make(map[string]string, 1)
	}
	out.Extensions[key] = value
	return out
}

// WithPriorResult returns a copy of rc with c appended to PriorResults.
func (rc RequestContext) WithPriorResult(c Contribution) RequestContext {
	out := rc.clone()
	out.PriorResults = append(out.PriorResults, c)
	return out
}

func (rc RequestContext) clone() RequestContext {
	out := rc
	out.Extensions = maps.Clone(rc.Extensions)
	out.PriorResults = slices.Clone(rc.PriorResults)
	return out
}

// TaskRequest is one inbound submission.
type TaskRequest struct {
	Message string         `json:"message"`
	Context RequestContext `json:"context"`

	// Category selects a collaboration strategy. Empty means channel default.
	Category string `json:"category,omitempty"`
}

// Validate checks the fields required before any agent is touched.
func (r TaskRequest) Validate() error {
	if strings.TrimSpace(r.Context.UserID) == "" {
		return NewSubSystemError("task", "TaskRequest.Validate", ErrValidation, "user_id is required")
	}
	if strings.TrimSpace(r.Message) == "" {
		return NewSubSystemError("task", "TaskRequest.Validate", ErrValidation, "message is empty")
	}
	return nil
}

// Payload is the structured output of an agent or of a collaboration.
type Payload struct {
	Intent string `json:"intent,omitempty"`
	Reply  string `json:"reply,omitempty"`

	// Fields holds mergeable named outputs. Hierarchical collaborations let
	// later agents overwrite individual keys.
	Fields map[string]string `json:"fields,omitempty"`

	// Contributions summarises the supporting agents folded into this payload.
	Contributions []Contribution `json:"contributions,omitempty"`
}

// Clone returns a deep copy of p.
func (p Payload) Clone() Payload {
	out := p
	out.Fields = maps.Clone(p.Fields)
	out.Contributions = slices.Clone(p.Contributions)
	return out
}

// Summary is a one-line digest used when folding a payload into another.
func (p Payload) Summary() string {
	if s, ok := p.Fields["summary"]; ok && s != "" {
		return s
	}
	return p.Reply
}

// Contribution is the digest of one agent's part in a collaboration.
type Contribution struct {
	AgentID AgentID `json:"agent_id"`
	Intent  string  `json:"intent,omitempty"`
	Summary string  `json:"summary,omitempty"`
	Success bool    `json:"success"`
	Error   string  `json:"error,omitempty"`
}

// ResultMetadata describes how a result was produced.
type ResultMetadata struct {
	ExecutionTimeMs int64   `json:"execution_time_ms"`
	Confidence      float64 `json:"confidence"`
	AgentID         AgentID `json:"agent_id"`
	InstanceID      string  `json:"instance_id,omitempty"`
}

// TaskResult is produced by every agent invocation and, in aggregate form,
// by the coordinator.
type TaskResult struct {
	TaskID  string         `json:"task_id,omitempty"`
	Success bool           `json:"success"`
	Payload Payload        `json:"payload"`
	Context RequestContext `json:"context"`

	// Err keeps the original error for errors.Is; Error and Code are its
	// serialisable forms.
	Err      error          `json:"-"`
	Error    string         `json:"error,omitempty"`
	Code     ErrorCode      `json:"error_code,omitempty"`
	Metadata ResultMetadata `json:"metadata"`

	// Aggregate-only fields.
	Category       string            `json:"category,omitempty"`
	Mode           CollaborationMode `json:"mode,omitempty"`
	Participants   []AgentID         `json:"participants,omitempty"`
	Results        []TaskResult      `json:"results,omitempty"`
	AgreementRatio float64           `json:"agreement_ratio,omitempty"`
}

// SetError marks r as failed with err.
func (r *TaskResult) SetError(err error) {
	r.Success = false
	r.Err = err
	if err != nil {
		r.Error = err.Error()
		r.Code = ErrorCodeOf(err)
	}
}

// Contribution digests r for folding into another payload.
func (r *TaskResult) Contribution() Contribution {
	return Contribution{
		AgentID: r.Metadata.AgentID,
		Intent:  r.Payload.Intent,
		Summary: r.Payload.Summary(),
		Success: r.Success,
		Error:   r.Error,
	}
}

// ResultOf returns the individual result of agent id within an aggregate.
func (r *TaskResult) ResultOf(id AgentID) (TaskResult, bool) {
	for _, sub := range r.Results {
		if sub.Metadata.AgentID == id {
			return sub, true
		}
	}
	return TaskResult{}, false
}

// ElapsedMs converts a duration to whole milliseconds, rounding sub-millisecond
// work up to 1 so a measured call never reports zero.
func ElapsedMs(d time.Duration) int64 {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		return 1
	}
	return ms
}
