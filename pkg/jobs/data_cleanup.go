package jobs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/uplook/uplook/pkg/config"
	"github.com/uplook/uplook/pkg/log"
	"github.com/uplook/uplook/pkg/metrics"
	"github.com/uplook/uplook/pkg/storage"
)

// TTLs below the minimum are snapped to the defaults before a cleanup runs,
// so a typo in the config cannot wipe the result history. Long retentions
// pass through unchanged.
const (
	minRetentionDays       = 1
	defaultHealthyDays     = 7
	defaultUnhealthyDays   = 30
	maxDeleteFractionOfAll = 0.9
)

// DataCleanupJob deletes results older than their status-specific TTLs.
type DataCleanupJob struct {
	store  storage.Store
	cfg    func() config.DataCleanupConfig
	logger zerolog.Logger
}

// NewDataCleanupJob wires the retention job. cfg is called on every run.
func NewDataCleanupJob(store storage.Store, cfg func() config.DataCleanupConfig) *DataCleanupJob {
	return &DataCleanupJob{
		store:  store,
		cfg:    cfg,
		logger: log.WithComponent("data-cleanup"),
	}
}

func (j *DataCleanupJob) Name() string { return JobDataCleanup }

// clampRetention snaps a TTL below one day back to its default.
func clampRetention(days, fallback int) int {
	if days < minRetentionDays {
		return fallback
	}
	return days
}

// Preview reports what the next cleanup run would delete.
func (j *DataCleanupJob) Preview() (*storage.CleanupPreview, error) {
	cfg := j.cfg()
	healthy := clampRetention(cfg.HealthyRetentionDays, defaultHealthyDays)
	unhealthy := clampRetention(cfg.UnhealthyRetentionDays, defaultUnhealthyDays)
	return j.store.CleanupPreview(healthy, unhealthy)
}

func (j *DataCleanupJob) Run(ctx context.Context) error {
	cfg := j.cfg()
	if !cfg.Enabled {
		j.logger.Debug().Msg("Data cleanup disabled, skipping")
		return nil
	}

	healthy := clampRetention(cfg.HealthyRetentionDays, defaultHealthyDays)
	unhealthy := clampRetention(cfg.UnhealthyRetentionDays, defaultUnhealthyDays)
	if healthy != cfg.HealthyRetentionDays || unhealthy != cfg.UnhealthyRetentionDays {
		j.logger.Warn().
			Int("healthy_days", healthy).
			Int("unhealthy_days", unhealthy).
			Msg("Retention TTLs out of range, using clamped values")
	}

	preview, err := j.store.CleanupPreview(healthy, unhealthy)
	if err != nil {
		return fmt.Errorf("failed to preview cleanup: %w", err)
	}
	if preview.TotalToDelete == 0 {
		j.logger.Debug().Msg("Nothing to clean up")
		return nil
	}

	// Refuse to delete almost everything in one run. A cutoff that matches
	// over 90% of stored results means the clock or config is wrong.
	if preview.TotalResults > 0 {
		fraction := float64(preview.TotalToDelete) / float64(preview.TotalResults)
		if fraction > maxDeleteFractionOfAll {
			return fmt.Errorf("cleanup aborted: would delete %d of %d results", preview.TotalToDelete, preview.TotalResults)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	stats, err := j.store.CleanupOldResults(healthy, unhealthy, cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	metrics.ResultsDeletedTotal.Add(float64(stats.TotalDeleted))

	j.logger.Info().
		Int("healthy_deleted", stats.HealthyDeleted).
		Int("unhealthy_deleted", stats.UnhealthyDeleted).
		Int("batches", stats.BatchesProcessed).
		Float64("duration_seconds", stats.DurationSeconds).
		Msg("Data cleanup completed")
	return nil
}
