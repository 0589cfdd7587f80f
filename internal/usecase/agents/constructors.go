package agents

import (
	"maps"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
)

var builtin = map[domain.AgentID]domain.AgentConstructor{
	domain.AgentDiagnostic: NewDiagnostic,
	domain.AgentCommerce:   NewCommerce,
	domain.AgentKnowledge:  NewKnowledge,
	domain.AgentLifestyle:  NewLifestyle,
}

// Constructors returns a fresh copy of the built-in constructor table.
// Callers may add or replace entries without affecting other callers.
func Constructors() map[domain.AgentID]domain.AgentConstructor {
	return maps.Clone(builtin)
}
