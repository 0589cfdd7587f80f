package domain

import (
	"context"
	"time"
)

// HealthySuccessRate is the success rate an agent must exceed for the
// system overview to count it as healthy.
const HealthySuccessRate = 0.8

// AgentMetrics are the per-agent counters owned by the manager.
type AgentMetrics struct {
	AgentID               AgentID   `json:"agent_id"`
	TasksProcessed        int64     `json:"tasks_processed"`
	SuccessCount          int64     `json:"success_count"`
	ErrorCount            int64     `json:"error_count"`
	SuccessRate           float64   `json:"success_rate"`
	AverageResponseTimeMs float64   `json:"average_response_time_ms"`
	LastActiveAt          time.Time `json:"last_active_at,omitzero"`
	UptimeMs              int64     `json:"uptime_ms"`
	Restarts              int64     `json:"restarts"`
}

// ComputeSuccessRate returns (processed-errors)/processed, or 0 when nothing
// has been processed yet.
func ComputeSuccessRate(processed, errors int64) float64 {
	if processed <= 0 {
		return 0
	}
	rate := float64(processed-errors) / float64(processed)
	if rate < 0 {
		return 0
	}
	return rate
}

// OverviewSnapshot aggregates metrics across all agents.
type OverviewSnapshot struct {
	TotalAgents        int                        `json:"total_agents"`
	ActiveAgents       int                        `json:"active_agents"`
	TotalTasks         int64                      `json:"total_tasks"`
	TotalSuccess       int64                      `json:"total_success"`
	TotalErrors        int64                      `json:"total_errors"`
	AverageSuccessRate float64                    `json:"average_success_rate"`
	InFlightTasks      int64                      `json:"in_flight_tasks"`
	UptimeMs           int64                      `json:"uptime_ms"`
	IsHealthy          bool                       `json:"is_healthy"`
	Agents             map[AgentID]AgentMetrics   `json:"agents"`
	Statuses           map[AgentID]StatusSnapshot `json:"statuses"`
	GeneratedAt        time.Time                  `json:"generated_at"`
}

// MetricsSnapshot is one persisted sample of an agent's counters.
type MetricsSnapshot struct {
	ID      int64        `json:"id"`
	TakenAt time.Time    `json:"taken_at"`
	Metrics AgentMetrics `json:"metrics"`
}

// MetricsStore persists the samples taken by the metrics loop.
type MetricsStore interface {
	SaveSnapshot(ctx context.Context, takenAt time.Time, metrics []AgentMetrics) error
	// ListSnapshots returns up to limit samples for id, newest first.
	ListSnapshots(ctx context.Context, id AgentID, limit int) ([]MetricsSnapshot, error)
	// Latest returns the newest sample for id, or ErrNotFound.
	Latest(ctx context.Context, id AgentID) (MetricsSnapshot, error)
	// Prune deletes samples taken before cutoff and reports how many.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}
