package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/uplook/uplook/pkg/log"
	"github.com/uplook/uplook/pkg/metrics"
)

// Canonical job names. The control protocol also accepts hyphenated
// aliases for backwards compatibility.
const (
	JobHealthAlert = "health_alert"
	JobDataCleanup = "data_cleanup"
)

// CanonicalName maps accepted job name spellings onto the canonical form.
// The empty string means the name is unknown.
func CanonicalName(name string) string {
	switch name {
	case JobHealthAlert, "health-alerts", "health_alerts":
		return JobHealthAlert
	case JobDataCleanup, "data-cleanup":
		return JobDataCleanup
	default:
		return ""
	}
}

// Job is one periodic system task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Stats is the run history reported for a job over the control protocol.
type Stats struct {
	Name        string     `json:"name"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	RunCount    int        `json:"run_count"`
	ErrorCount  int        `json:"error_count"`
	SuccessRate float64    `json:"success_rate"`
}

// Tracked wraps a job with run accounting. Safe for concurrent use.
type Tracked struct {
	job    Job
	logger zerolog.Logger

	mu      sync.Mutex
	lastRun *time.Time
	runs    int
	errors  int
}

// Track wraps a job for execution with accounting.
func Track(job Job) *Tracked {
	return &Tracked{
		job:    job,
		logger: log.WithComponent("jobs").With().Str("job", job.Name()).Logger(),
	}
}

// Name returns the wrapped job's canonical name.
func (t *Tracked) Name() string { return t.job.Name() }

// Execute runs the job once, recording the outcome.
func (t *Tracked) Execute(ctx context.Context) error {
	start := time.Now()
	err := t.job.Run(ctx)

	t.mu.Lock()
	now := time.Now()
	t.lastRun = &now
	t.runs++
	if err != nil {
		t.errors++
	}
	t.mu.Unlock()

	outcome := "success"
	if err != nil {
		outcome = "error"
		t.logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("Job failed")
	} else {
		t.logger.Info().Dur("duration", time.Since(start)).Msg("Job completed")
	}
	metrics.JobRunsTotal.WithLabelValues(t.job.Name(), outcome).Inc()
	return err
}

// Stats returns the current run accounting.
func (t *Tracked) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	rate := 0.0
	if t.runs > 0 {
		rate = float64(t.runs-t.errors) / float64(t.runs) * 100
	}
	return Stats{
		Name:        t.job.Name(),
		LastRun:     t.lastRun,
		RunCount:    t.runs,
		ErrorCount:  t.errors,
		SuccessRate: rate,
	}
}
