package multiagent

import (
	"io"
	"log/slog"
	"strings"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
)

// discardLogger returns a no-op logger for components created without one.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// RoutingRule maps a channel to a primary agent.
type RoutingRule struct {
	Channel string // channel name or "*" for any
	AgentID domain.AgentID
}

// ChannelRouter picks the primary agent for a request that names no
// category. Configured rules are matched first, in order; otherwise the
// fixed channel table applies.
type ChannelRouter struct {
	rules  []RoutingRule
	logger *slog.Logger
}

// NewChannelRouter creates a router with optional override rules.
func NewChannelRouter(rules []RoutingRule, logger *slog.Logger) *ChannelRouter {
	if logger == nil {
		logger = discardLogger()
	}
	return &ChannelRouter{rules: rules, logger: logger}
}

// Route returns the primary agent for rc.
func (r *ChannelRouter) Route(rc domain.RequestContext) domain.AgentID {
	ch := strings.ToLower(string(rc.Channel))
	for _, rule := range r.rules {
		if rule.Channel == "*" || strings.EqualFold(rule.Channel, ch) {
			r.logger.Debug("routing rule matched", "channel", ch, "agent_id", rule.AgentID)
			return rule.AgentID
		}
	}
	id := domain.DefaultAgentFor(rc.Channel)
	r.logger.Debug("channel default", "channel", ch, "agent_id", id)
	return id
}

// DefaultStrategy is the single-agent strategy used when no category
// applies: the routed agent alone, in sequential mode.
func (r *ChannelRouter) DefaultStrategy(rc domain.RequestContext) domain.CollaborationStrategy {
	return domain.CollaborationStrategy{
		Primary: r.Route(rc),
		Mode:    domain.ModeSequential,
	}
}
