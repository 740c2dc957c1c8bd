package jobs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/uplook/uplook/pkg/config"
	"github.com/uplook/uplook/pkg/log"
	"github.com/uplook/uplook/pkg/metrics"
	"github.com/uplook/uplook/pkg/notify"
	"github.com/uplook/uplook/pkg/storage"
	"github.com/uplook/uplook/pkg/types"
)

// HealthAlertJob emails one digest per space listing monitors that have
// been unhealthy past the configured threshold.
type HealthAlertJob struct {
	store  storage.Store
	mailer *notify.Mailer
	cfg    func() config.HealthAlertsConfig
	logger zerolog.Logger
}

// NewHealthAlertJob wires the digest job. cfg is called on every run so
// config reloads take effect without restarting the job.
func NewHealthAlertJob(store storage.Store, mailer *notify.Mailer, cfg func() config.HealthAlertsConfig) *HealthAlertJob {
	return &HealthAlertJob{
		store:  store,
		mailer: mailer,
		cfg:    cfg,
		logger: log.WithComponent("health-alert"),
	}
}

func (j *HealthAlertJob) Name() string { return JobHealthAlert }

func (j *HealthAlertJob) Run(ctx context.Context) error {
	cfg := j.cfg()
	if !cfg.Enabled {
		j.logger.Debug().Msg("Health alerts disabled, skipping")
		return nil
	}

	unhealthy, err := j.store.UnhealthyMonitors(cfg.ThresholdHours)
	if err != nil {
		return fmt.Errorf("failed to list unhealthy monitors: %w", err)
	}
	if len(unhealthy) == 0 {
		j.logger.Debug().Msg("No long-running unhealthy monitors")
		return nil
	}

	bySpace := make(map[string][]*types.Monitor)
	for _, m := range unhealthy {
		bySpace[m.SpaceID] = append(bySpace[m.SpaceID], m)
	}

	var sent, skipped int
	var firstErr error
	for spaceID, monitors := range bySpace {
		if err := ctx.Err(); err != nil {
			return err
		}

		space, err := j.store.GetSpace(spaceID)
		if err != nil {
			j.logger.Warn().Str("space_id", spaceID).Err(err).Msg("Skipping digest for missing space")
			continue
		}
		if len(space.NotificationEmails) == 0 {
			skipped++
			continue
		}

		entries := make([]notify.DigestEntry, 0, len(monitors))
		for _, m := range monitors {
			entries = append(entries, notify.NewDigestEntry(m))
		}

		subject, body := notify.BuildDigestEmail(space.Name, cfg.ThresholdHours, entries)
		if err := j.mailer.Send(space.NotificationEmails, subject, body); err != nil {
			j.logger.Warn().Str("space", space.Name).Err(err).Msg("Failed to send digest")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.NotificationsTotal.WithLabelValues("digest").Inc()
		sent++
	}

	j.logger.Info().
		Int("unhealthy_monitors", len(unhealthy)).
		Int("digests_sent", sent).
		Int("spaces_without_recipients", skipped).
		Msg("Health alert run completed")
	return firstErr
}
