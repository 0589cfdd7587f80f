package multiagent

import (
	"maps"
	"slices"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
)

// Built-in task categories.
const (
	CategoryHealthDiagnosis         = "health_diagnosis"
	CategoryProductRecommendation   = "product_recommendation"
	CategoryKnowledgeQuery          = "knowledge_query"
	CategoryLifestylePlan           = "lifestyle_plan"
	CategoryComprehensiveAssessment = "comprehensive_assessment"
	CategoryTreatmentDecision       = "treatment_decision"
	CategoryEmergency               = "emergency"
)

// DefaultStrategies returns the built-in collaboration catalog.
func DefaultStrategies() []domain.CollaborationStrategy {
	return []domain.CollaborationStrategy{
		{
			Category:   CategoryHealthDiagnosis,
			Primary:    domain.AgentDiagnostic,
			Supporting: []domain.AgentID{domain.AgentKnowledge, domain.AgentLifestyle},
			Mode:       domain.ModeSequential,
		},
		{
			Category:   CategoryProductRecommendation,
			Primary:    domain.AgentCommerce,
			Supporting: []domain.AgentID{domain.AgentDiagnostic},
			Mode:       domain.ModeSequential,
		},
		{
			Category: CategoryKnowledgeQuery,
			Primary:  domain.AgentKnowledge,
			Mode:     domain.ModeSequential,
		},
		{
			Category:   CategoryLifestylePlan,
			Primary:    domain.AgentLifestyle,
			Supporting: []domain.AgentID{domain.AgentDiagnostic, domain.AgentCommerce},
			Mode:       domain.ModeHierarchical,
			Priorities: map[domain.AgentID]int{domain.AgentDiagnostic: 2, domain.AgentCommerce: 1},
		},
		{
			Category:   CategoryComprehensiveAssessment,
			Primary:    domain.AgentDiagnostic,
			Supporting: []domain.AgentID{domain.AgentCommerce, domain.AgentKnowledge, domain.AgentLifestyle},
			Mode:       domain.ModeParallel,
		},
		{
			Category:   CategoryTreatmentDecision,
			Primary:    domain.AgentDiagnostic,
			Supporting: []domain.AgentID{domain.AgentCommerce, domain.AgentKnowledge, domain.AgentLifestyle},
			Mode:       domain.ModeConsensus,
		},
		{
			Category:   CategoryEmergency,
			Primary:    domain.AgentDiagnostic,
			Supporting: []domain.AgentID{domain.AgentCommerce},
			Mode:       domain.ModeParallel,
		},
	}
}

// Catalog maps task categories to collaboration strategies. It is built
// once and has no mutation methods.
type Catalog struct {
	strategies map[string]domain.CollaborationStrategy
}

// NewCatalog validates every strategy and indexes it by category. Later
// layers replace earlier entries with the same category, so callers pass
// DefaultStrategies() first and configured overrides after it.
func NewCatalog(layers ...[]domain.CollaborationStrategy) (*Catalog, error) {
	c := &Catalog{strategies: make(map[string]domain.CollaborationStrategy)}
	for _, layer := range layers {
		for _, s := range layer {
			if s.Category == "" {
				return nil, domain.NewSubSystemError("catalog", "NewCatalog", domain.ErrInvalidInput, "strategy without category")
			}
			if s.Mode == "" {
				s.Mode = domain.ModeSequential
			}
			if err := s.Validate(); err != nil {
				return nil, domain.NewSubSystemError("catalog", "NewCatalog", domain.ErrInvalidInput, err.Error())
			}
			s.Supporting = slices.Clone(s.Supporting)
			s.Priorities = maps.Clone(s.Priorities)
			c.strategies[s.Category] = s
		}
	}
	return c, nil
}

// Resolve returns the strategy for category.
func (c *Catalog) Resolve(category string) (domain.CollaborationStrategy, bool) {
	s, ok := c.strategies[category]
	if !ok {
		return domain.CollaborationStrategy{}, false
	}
	s.Supporting = slices.Clone(s.Supporting)
	s.Priorities = maps.Clone(s.Priorities)
	return s, true
}

// Categories lists every category, sorted.
func (c *Catalog) Categories() []string {
	return slices.Sorted(maps.Keys(c.strategies))
}

// Len is the number of strategies.
func (c *Catalog) Len() int { return len(c.strategies) }
