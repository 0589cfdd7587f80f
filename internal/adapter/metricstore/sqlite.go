// Package metricstore persists agent metrics samples in SQLite.
package metricstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
)

// SQLiteStore implements domain.MetricsStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ domain.MetricsStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open metrics db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate metrics db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS agent_metrics (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id        TEXT    NOT NULL,
			taken_at        INTEGER NOT NULL,
			tasks_processed INTEGER NOT NULL,
			success_count   INTEGER NOT NULL,
			error_count     INTEGER NOT NULL,
			success_rate    REAL    NOT NULL,
			avg_response_ms REAL    NOT NULL,
			last_active_at  INTEGER NOT NULL DEFAULT 0,
			uptime_ms       INTEGER NOT NULL,
			restarts        INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_agent_metrics_agent_taken
			ON agent_metrics (agent_id, taken_at DESC);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot writes one row per agent in a single transaction.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, takenAt time.Time, metrics []domain.AgentMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO agent_metrics (agent_id, taken_at, tasks_processed, success_count, error_count,
			success_rate, avg_response_ms, last_active_at, uptime_ms, restarts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	at := takenAt.UTC().UnixMilli()
	for _, m := range metrics {
		if _, err := stmt.ExecContext(ctx,
			string(m.AgentID), at, m.TasksProcessed, m.SuccessCount, m.ErrorCount,
			m.SuccessRate, m.AverageResponseTimeMs, unixMilli(m.LastActiveAt), m.UptimeMs, m.Restarts,
		); err != nil {
			return fmt.Errorf("insert snapshot for %s: %w", m.AgentID, err)
		}
	}
	return tx.Commit()
}

const selectColumns = `SELECT id, agent_id, taken_at, tasks_processed, success_count, error_count,
	success_rate, avg_response_ms, last_active_at, uptime_ms, restarts FROM agent_metrics`

// ListSnapshots returns up to limit samples for id, newest first. A
// non-positive limit returns every sample.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, id domain.AgentID, limit int) ([]domain.MetricsSnapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		selectColumns+" WHERE agent_id = ? ORDER BY taken_at DESC, id DESC LIMIT ?", string(id), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MetricsSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Latest returns the newest sample for id.
func (s *SQLiteStore) Latest(ctx context.Context, id domain.AgentID) (domain.MetricsSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		selectColumns+" WHERE agent_id = ? ORDER BY taken_at DESC, id DESC LIMIT 1", string(id))
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MetricsSnapshot{}, domain.NewSubSystemError("metricstore", "SQLiteStore.Latest", domain.ErrNotFound, string(id))
	}
	return snap, err
}

// Prune deletes samples taken before cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM agent_metrics WHERE taken_at < ?", cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(sc scanner) (domain.MetricsSnapshot, error) {
	var (
		snap       domain.MetricsSnapshot
		agentID    string
		takenAt    int64
		lastActive int64
	)
	m := &snap.Metrics
	if err := sc.Scan(&snap.ID, &agentID, &takenAt, &m.TasksProcessed, &m.SuccessCount, &m.ErrorCount,
		&m.SuccessRate, &m.AverageResponseTimeMs, &lastActive, &m.UptimeMs, &m.Restarts); err != nil {
		return domain.MetricsSnapshot{}, err
	}
	m.AgentID = domain.AgentID(agentID)
	snap.TakenAt = time.UnixMilli(takenAt).UTC()
	if lastActive > 0 {
		m.LastActiveAt = time.UnixMilli(lastActive).UTC()
	}
	return snap, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}
