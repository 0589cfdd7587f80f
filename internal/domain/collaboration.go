package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// CollaborationMode decides how several agents' outputs are combined.
type CollaborationMode string

const (
	ModeSequential   CollaborationMode = "sequential"
	ModeParallel     CollaborationMode = "parallel"
	ModeHierarchical CollaborationMode = "hierarchical"
	ModeConsensus    CollaborationMode = "consensus"
)

// ParseCollaborationMode accepts the mode name in any case.
func ParseCollaborationMode(s string) (CollaborationMode, error) {
	switch m := CollaborationMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeSequential, ModeParallel, ModeHierarchical, ModeConsensus:
		return m, nil
	case "":
		return ModeSequential, nil
	}
	return "", fmt.Errorf("unknown collaboration mode %q: %w", s, ErrInvalidInput)
}

// ConsensusThreshold is the agreement ratio a consensus must strictly exceed.
const ConsensusThreshold = 0.5

// CollaborationStrategy maps a task category to the agents that serve it.
type CollaborationStrategy struct {
	Category   string            `json:"category"`
	Primary    AgentID           `json:"primary"`
	Supporting []AgentID         `json:"supporting,omitempty"`
	Mode       CollaborationMode `json:"mode"`

	// Priorities orders supporting agents in hierarchical mode. Lower values
	// run first; missing entries count as zero.
	Priorities map[AgentID]int `json:"priorities,omitempty"`
}

// Participants returns the primary followed by the supporting agents,
// without duplicates.
func (s CollaborationStrategy) Participants() []AgentID {
	out := make([]AgentID, 0, 1+len(s.Supporting))
	out = append(out, s.Primary)
	for _, id := range s.Supporting {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// Validate checks that the strategy names known agents and a known mode.
func (s CollaborationStrategy) Validate() error {
	if !s.Primary.Valid() {
		return fmt.Errorf("strategy %q: unknown primary agent %q: %w", s.Category, s.Primary, ErrInvalidInput)
	}
	for _, id := range s.Supporting {
		if !id.Valid() {
			return fmt.Errorf("strategy %q: unknown supporting agent %q: %w", s.Category, id, ErrInvalidInput)
		}
	}
	if _, err := ParseCollaborationMode(string(s.Mode)); err != nil {
		return fmt.Errorf("strategy %q: %w", s.Category, err)
	}
	return nil
}

// CollaborationEntry is an audit record of one routed task.
type CollaborationEntry struct {
	ID           string     `json:"id"`
	Timestamp    time.Time  `json:"timestamp"`
	Category     string     `json:"category,omitempty"`
	Participants []AgentID  `json:"participants"`
	InputMessage string     `json:"input_message"`
	Result       TaskResult `json:"result"`
}
