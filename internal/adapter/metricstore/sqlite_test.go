package metricstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "metrics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sample(id domain.AgentID, processed, errs int64) domain.AgentMetrics {
	return domain.AgentMetrics{
		AgentID:               id,
		TasksProcessed:        processed,
		SuccessCount:          processed - errs,
		ErrorCount:            errs,
		SuccessRate:           domain.ComputeSuccessRate(processed, errs),
		AverageResponseTimeMs: 12.5,
		UptimeMs:              60_000,
	}
}

func TestSQLiteStore_SaveAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	for i := range 3 {
		err := store.SaveSnapshot(ctx, base.Add(time.Duration(i)*time.Minute), []domain.AgentMetrics{
			sample(domain.AgentCommerce, int64(10*(i+1)), int64(i)),
			sample(domain.AgentKnowledge, 1, 0),
		})
		require.NoError(t, err)
	}

	snaps, err := store.ListSnapshots(ctx, domain.AgentCommerce, 2)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, int64(30), snaps[0].Metrics.TasksProcessed, "newest first")
	assert.Equal(t, int64(20), snaps[1].Metrics.TasksProcessed)
	assert.Equal(t, base.Add(2*time.Minute), snaps[0].TakenAt)
	assert.Equal(t, domain.AgentCommerce, snaps[0].Metrics.AgentID)
	assert.InDelta(t, 28.0/30.0, snaps[0].Metrics.SuccessRate, 1e-9)

	all, err := store.ListSnapshots(ctx, domain.AgentCommerce, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLiteStore_Latest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Latest(ctx, domain.AgentLifestyle)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, domain.CodeSnapshotNotFound, domain.ErrorCodeOf(err))

	active := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	m := sample(domain.AgentLifestyle, 4, 1)
	m.LastActiveAt = active
	m.Restarts = 2
	require.NoError(t, store.SaveSnapshot(ctx, time.Now(), []domain.AgentMetrics{m}))

	got, err := store.Latest(ctx, domain.AgentLifestyle)
	require.NoError(t, err)
	assert.Equal(t, active, got.Metrics.LastActiveAt)
	assert.Equal(t, int64(2), got.Metrics.Restarts)
	assert.Equal(t, int64(1), got.Metrics.ErrorCount)
}

func TestSQLiteStore_ZeroLastActiveRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSnapshot(ctx, time.Now(), []domain.AgentMetrics{sample(domain.AgentDiagnostic, 0, 0)}))
	got, err := store.Latest(ctx, domain.AgentDiagnostic)
	require.NoError(t, err)
	assert.True(t, got.Metrics.LastActiveAt.IsZero())
	assert.Equal(t, 0.0, got.Metrics.SuccessRate)
}

func TestSQLiteStore_Prune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	require.NoError(t, store.SaveSnapshot(ctx, old, []domain.AgentMetrics{sample(domain.AgentCommerce, 1, 0)}))
	require.NoError(t, store.SaveSnapshot(ctx, time.Now(), []domain.AgentMetrics{sample(domain.AgentCommerce, 2, 0)}))

	n, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := store.ListSnapshots(ctx, domain.AgentCommerce, 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, int64(2), left[0].Metrics.TasksProcessed)
}

func TestSQLiteStore_EmptySaveIsNoop(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveSnapshot(context.Background(), time.Now(), nil))

	snaps, err := store.ListSnapshots(context.Background(), domain.AgentCommerce, 10)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveSnapshot(context.Background(), time.Now(), []domain.AgentMetrics{sample(domain.AgentKnowledge, 3, 0)}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Latest(context.Background(), domain.AgentKnowledge)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Metrics.TasksProcessed)
}
