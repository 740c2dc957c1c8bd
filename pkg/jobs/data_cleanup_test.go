package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uplook/uplook/pkg/config"
	"github.com/uplook/uplook/pkg/storage"
	"github.com/uplook/uplook/pkg/types"
)

func cleanupConfig(enabled bool) func() config.DataCleanupConfig {
	return func() config.DataCleanupConfig {
		return config.DataCleanupConfig{
			Enabled:                enabled,
			HealthyRetentionDays:   7,
			UnhealthyRetentionDays: 30,
			CleanupIntervalHours:   24,
			BatchSize:              100,
		}
	}
}

func seedResultAt(t *testing.T, store storage.Store, m *types.Monitor, status types.MonitorStatus, ts time.Time) {
	t.Helper()
	r := types.NewResult(m)
	r.Status = status
	r.Timestamp = ts
	require.NoError(t, store.SaveResult(r))
}

func newCleanupFixture(t *testing.T) (storage.Store, *types.Monitor) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	space := types.NewSpace("alpha", "", nil)
	require.NoError(t, store.SaveSpace(space))
	m := types.NewURLMonitor("web", space.ID, "https://example.com")
	require.NoError(t, store.SaveMonitor(m))
	return store, m
}

func TestDataCleanupDeletesExpiredResults(t *testing.T) {
	store, m := newCleanupFixture(t)
	now := time.Now()

	// Expired rows plus enough recent ones to stay under the safety cap.
	for i := 0; i < 10; i++ {
		seedResultAt(t, store, m, types.StatusHealthy, now.AddDate(0, 0, -10))
		seedResultAt(t, store, m, types.StatusUnhealthy, now.AddDate(0, 0, -40))
	}
	for i := 0; i < 30; i++ {
		seedResultAt(t, store, m, types.StatusHealthy, now.Add(-time.Hour))
	}

	job := NewDataCleanupJob(store, cleanupConfig(true))

	preview, err := job.Preview()
	require.NoError(t, err)
	assert.Equal(t, 20, preview.TotalToDelete)

	require.NoError(t, job.Run(context.Background()))

	remaining, err := store.ResultsForMonitor(m.ID, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 30)
}

func TestDataCleanupDisabled(t *testing.T) {
	store, m := newCleanupFixture(t)
	seedResultAt(t, store, m, types.StatusHealthy, time.Now().AddDate(0, 0, -10))

	job := NewDataCleanupJob(store, cleanupConfig(false))
	require.NoError(t, job.Run(context.Background()))

	remaining, err := store.ResultsForMonitor(m.ID, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestDataCleanupSafetyCap(t *testing.T) {
	store, m := newCleanupFixture(t)
	now := time.Now()

	// Everything is expired: the run must refuse to delete.
	for i := 0; i < 10; i++ {
		seedResultAt(t, store, m, types.StatusHealthy, now.AddDate(0, 0, -10))
	}

	job := NewDataCleanupJob(store, cleanupConfig(true))
	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cleanup aborted")

	remaining, err := store.ResultsForMonitor(m.ID, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 10)
}

func TestDataCleanupNothingToDo(t *testing.T) {
	store, m := newCleanupFixture(t)
	seedResultAt(t, store, m, types.StatusHealthy, time.Now())

	job := NewDataCleanupJob(store, cleanupConfig(true))
	require.NoError(t, job.Run(context.Background()))

	remaining, err := store.ResultsForMonitor(m.ID, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestDataCleanupClampsBadTTLs(t *testing.T) {
	store, m := newCleanupFixture(t)
	now := time.Now()

	// 3-day-old healthy rows: inside the default 7-day TTL, so a zero TTL
	// from the config must not delete them.
	for i := 0; i < 5; i++ {
		seedResultAt(t, store, m, types.StatusHealthy, now.AddDate(0, 0, -3))
	}
	for i := 0; i < 5; i++ {
		seedResultAt(t, store, m, types.StatusHealthy, now)
	}

	job := NewDataCleanupJob(store, func() config.DataCleanupConfig {
		return config.DataCleanupConfig{Enabled: true, HealthyRetentionDays: 0, UnhealthyRetentionDays: 0, BatchSize: 10}
	})
	require.NoError(t, job.Run(context.Background()))

	remaining, err := store.ResultsForMonitor(m.ID, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 10)
}
