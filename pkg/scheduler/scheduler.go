package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/uplook/uplook/pkg/config"
	"github.com/uplook/uplook/pkg/jobs"
	"github.com/uplook/uplook/pkg/log"
	"github.com/uplook/uplook/pkg/metrics"
	"github.com/uplook/uplook/pkg/notify"
	"github.com/uplook/uplook/pkg/probe"
	"github.com/uplook/uplook/pkg/storage"
	"github.com/uplook/uplook/pkg/types"
)

const (
	tickInterval = time.Second
	numWorkers   = 10
)

// ErrNotScheduled is returned when an operation targets a monitor that is
// not currently running.
var ErrNotScheduled = errors.New("monitor is not scheduled")

// entry is one scheduled monitor. The header fields are a snapshot of the
// monitor taken at (re)schedule time and only used for listing; the probe
// always reloads the monitor from the store.
type entry struct {
	name     string
	spaceID  string
	mType    types.MonitorType
	interval time.Duration
	nextRun  time.Time
	running  bool
}

// RunningInfo describes one scheduled monitor for the control protocol.
type RunningInfo struct {
	MonitorID       string    `json:"monitor_id"`
	Name            string    `json:"name"`
	SpaceID         string    `json:"space_id"`
	Type            string    `json:"monitor_type"`
	IntervalSeconds int       `json:"check_interval_seconds"`
	NextRunAt       time.Time `json:"next_run_at"`
}

// Scheduler drives periodic monitor checks and system jobs off a one-second
// tick. Monitors are dispatched to a fixed worker pool and are never probed
// reentrantly: a monitor still executing is skipped until it finishes.
type Scheduler struct {
	store  storage.Store
	prober *probe.Prober
	mailer *notify.Mailer
	cfg    *config.Manager
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry

	jobMu       sync.Mutex
	trackedJobs map[string]*jobs.Tracked
	jobNextRun  map[string]time.Time
	cleanupJob  *jobs.DataCleanupJob

	tasks  chan string
	stop   chan struct{}
	wg     sync.WaitGroup
	runCtx context.Context
	cancel context.CancelFunc
}

// New wires a scheduler. The health alert and data cleanup jobs are
// registered immediately but only fire once Start is called.
func New(store storage.Store, prober *probe.Prober, mailer *notify.Mailer, cfg *config.Manager) *Scheduler {
	s := &Scheduler{
		store:       store,
		prober:      prober,
		mailer:      mailer,
		cfg:         cfg,
		logger:      log.WithComponent("scheduler"),
		entries:     make(map[string]*entry),
		trackedJobs: make(map[string]*jobs.Tracked),
		jobNextRun:  make(map[string]time.Time),
		tasks:       make(chan string),
		stop:        make(chan struct{}),
	}

	s.cleanupJob = jobs.NewDataCleanupJob(store, func() config.DataCleanupConfig {
		return cfg.Snapshot().DataCleanup
	})
	s.trackedJobs[jobs.JobHealthAlert] = jobs.Track(jobs.NewHealthAlertJob(store, mailer, func() config.HealthAlertsConfig {
		return cfg.Snapshot().HealthAlerts
	}))
	s.trackedJobs[jobs.JobDataCleanup] = jobs.Track(s.cleanupJob)

	return s
}

// Start launches the worker pool and tick loop.
func (s *Scheduler) Start() {
	s.runCtx, s.cancel = context.WithCancel(context.Background())

	now := time.Now()
	s.jobMu.Lock()
	s.jobNextRun[jobs.JobHealthAlert] = now.Add(s.jobInterval(jobs.JobHealthAlert))
	s.jobNextRun[jobs.JobDataCleanup] = now.Add(s.jobInterval(jobs.JobDataCleanup))
	s.jobMu.Unlock()

	for i := 0; i < numWorkers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.wg.Add(1)
	go s.loop()

	s.logger.Info().Int("workers", numWorkers).Msg("Scheduler started")
}

// Stop halts the loop and waits for in-flight checks to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			close(s.tasks)
			return
		case <-ticker.C:
			s.dispatchDue(time.Now())
			s.runDueJobs(time.Now())
		}
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for id := range s.tasks {
		s.executeMonitor(id)
	}
}

// dispatchDue hands due monitors to the worker pool. A monitor whose
// previous check is still running, or that cannot be handed off without
// blocking, is retried on the next tick.
func (s *Scheduler) dispatchDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		if e.running || now.Before(e.nextRun) {
			continue
		}
		select {
		case s.tasks <- id:
			e.running = true
			e.nextRun = now.Add(e.interval)
		default:
		}
	}
}

func (s *Scheduler) runDueJobs(now time.Time) {
	s.jobMu.Lock()
	var due []*jobs.Tracked
	for name, tracked := range s.trackedJobs {
		next, ok := s.jobNextRun[name]
		if !ok || now.Before(next) {
			continue
		}
		s.jobNextRun[name] = now.Add(s.jobInterval(name))
		due = append(due, tracked)
	}
	s.jobMu.Unlock()

	for _, tracked := range due {
		tracked := tracked
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			// Errors are already logged and counted by the tracker.
			_ = tracked.Execute(s.runCtx)
		}()
	}
}

func (s *Scheduler) jobInterval(name string) time.Duration {
	cfg := s.cfg.Snapshot()
	switch name {
	case jobs.JobHealthAlert:
		return time.Duration(cfg.HealthAlerts.CheckIntervalMinutes) * time.Minute
	case jobs.JobDataCleanup:
		return time.Duration(cfg.DataCleanup.CleanupIntervalHours) * time.Hour
	default:
		return time.Hour
	}
}

// --- Monitor lifecycle ---

// Schedule starts periodic checks for a monitor. Its status is reset to
// unknown and the first check runs on the next tick.
func (s *Scheduler) Schedule(monitorID string) error {
	m, err := s.store.GetMonitor(monitorID)
	if err != nil {
		return err
	}

	m.Status = types.StatusUnknown
	m.Touch()
	if err := s.store.SaveMonitor(m); err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[m.ID] = &entry{
		name:     m.Name,
		spaceID:  m.SpaceID,
		mType:    m.Type,
		interval: time.Duration(m.CheckIntervalSeconds) * time.Second,
		nextRun:  time.Now(),
	}
	count := len(s.entries)
	s.mu.Unlock()

	metrics.MonitorsRunning.Set(float64(count))
	s.logger.Info().Str("monitor_id", m.ID).Str("name", m.Name).Msg("Monitor scheduled")
	return nil
}

// Unschedule stops periodic checks and marks the monitor offline.
func (s *Scheduler) Unschedule(monitorID string) error {
	s.mu.Lock()
	_, ok := s.entries[monitorID]
	delete(s.entries, monitorID)
	count := len(s.entries)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("monitor %s: %w", monitorID, ErrNotScheduled)
	}
	metrics.MonitorsRunning.Set(float64(count))

	m, err := s.store.GetMonitor(monitorID)
	if err != nil {
		// Already deleted; nothing left to mark offline.
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	m.Status = types.StatusOffline
	m.Touch()
	if err := s.store.SaveMonitor(m); err != nil {
		return err
	}

	s.logger.Info().Str("monitor_id", monitorID).Msg("Monitor unscheduled")
	return nil
}

// Reschedule refreshes a running monitor's snapshot after an update. It is
// a no-op for monitors that are not scheduled.
func (s *Scheduler) Reschedule(monitorID string) error {
	s.mu.Lock()
	e, ok := s.entries[monitorID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	m, err := s.store.GetMonitor(monitorID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	e.name = m.Name
	e.spaceID = m.SpaceID
	e.mType = m.Type
	e.interval = time.Duration(m.CheckIntervalSeconds) * time.Second
	s.mu.Unlock()
	return nil
}

// IsScheduled reports whether the monitor is currently running.
func (s *Scheduler) IsScheduled(monitorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[monitorID]
	return ok
}

// ListRunning returns the scheduled monitors, optionally filtered by space
// and monitor type, sorted by name.
func (s *Scheduler) ListRunning(spaceID string, mType types.MonitorType) []RunningInfo {
	s.mu.Lock()
	infos := make([]RunningInfo, 0, len(s.entries))
	for id, e := range s.entries {
		if spaceID != "" && e.spaceID != spaceID {
			continue
		}
		if mType != "" && e.mType != mType {
			continue
		}
		infos = append(infos, RunningInfo{
			MonitorID:       id,
			Name:            e.name,
			SpaceID:         e.spaceID,
			Type:            string(e.mType),
			IntervalSeconds: int(e.interval / time.Second),
			NextRunAt:       e.nextRun,
		})
	}
	s.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// StartAllInSpace schedules every monitor in a space, returning how many
// were newly started.
func (s *Scheduler) StartAllInSpace(spaceID string) (int, error) {
	monitors, err := s.store.GetMonitorsForSpace(spaceID)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, m := range monitors {
		if s.IsScheduled(m.ID) {
			continue
		}
		if err := s.Schedule(m.ID); err != nil {
			s.logger.Warn().Str("monitor_id", m.ID).Err(err).Msg("Failed to schedule monitor")
			continue
		}
		started++
	}
	return started, nil
}

// StopAllInSpace unschedules every running monitor in a space, returning
// how many were stopped.
func (s *Scheduler) StopAllInSpace(spaceID string) (int, error) {
	s.mu.Lock()
	var ids []string
	for id, e := range s.entries {
		if e.spaceID == spaceID {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	stopped := 0
	for _, id := range ids {
		if err := s.Unschedule(id); err != nil {
			s.logger.Warn().Str("monitor_id", id).Err(err).Msg("Failed to unschedule monitor")
			continue
		}
		stopped++
	}
	return stopped, nil
}

// StopAllMonitors unschedules everything, returning how many were stopped.
func (s *Scheduler) StopAllMonitors() int {
	s.mu.Lock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	stopped := 0
	for _, id := range ids {
		if err := s.Unschedule(id); err == nil {
			stopped++
		}
	}
	return stopped
}

// ResumeAll schedules every monitor that was not offline when the daemon
// last stopped. Called once at startup.
func (s *Scheduler) ResumeAll() (int, error) {
	monitors, err := s.store.ListMonitors()
	if err != nil {
		return 0, err
	}
	resumed := 0
	for _, m := range monitors {
		if m.Status == types.StatusOffline {
			continue
		}
		if err := s.Schedule(m.ID); err != nil {
			s.logger.Warn().Str("monitor_id", m.ID).Err(err).Msg("Failed to resume monitor")
			continue
		}
		resumed++
	}
	return resumed, nil
}

// RunningCount returns the number of scheduled monitors.
func (s *Scheduler) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// --- System jobs ---

// RunJob executes a system job synchronously, accepting name aliases.
func (s *Scheduler) RunJob(name string) error {
	canonical := jobs.CanonicalName(name)
	if canonical == "" {
		return fmt.Errorf("unknown job: %s", name)
	}
	s.jobMu.Lock()
	tracked := s.trackedJobs[canonical]
	s.jobMu.Unlock()

	ctx := s.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	return tracked.Execute(ctx)
}

// CleanupPreview reports what the next retention run would delete.
func (s *Scheduler) CleanupPreview() (*storage.CleanupPreview, error) {
	return s.cleanupJob.Preview()
}

// JobStats reports run accounting for every system job, sorted by name.
func (s *Scheduler) JobStats() []jobs.Stats {
	s.jobMu.Lock()
	stats := make([]jobs.Stats, 0, len(s.trackedJobs))
	for _, tracked := range s.trackedJobs {
		stats = append(stats, tracked.Stats())
	}
	s.jobMu.Unlock()

	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// --- Check execution ---

// CheckNow probes a monitor immediately, bypassing the schedule. The result
// is persisted and notifications fire exactly as for a scheduled check.
func (s *Scheduler) CheckNow(monitorID string) (*types.Result, error) {
	m, err := s.store.GetMonitor(monitorID)
	if err != nil {
		return nil, err
	}
	return s.runCheck(m)
}

// executeMonitor runs one scheduled check and clears the running flag.
func (s *Scheduler) executeMonitor(monitorID string) {
	defer func() {
		s.mu.Lock()
		if e, ok := s.entries[monitorID]; ok {
			e.running = false
		}
		s.mu.Unlock()
	}()

	m, err := s.store.GetMonitor(monitorID)
	if err != nil {
		// Deleted while queued; drop the entry.
		s.mu.Lock()
		delete(s.entries, monitorID)
		s.mu.Unlock()
		return
	}
	if _, err := s.runCheck(m); err != nil {
		s.logger.Error().Str("monitor_id", monitorID).Err(err).Msg("Check failed")
	}
}

// runCheck probes the monitor, persists the result and updated monitor,
// and sends a notification when the status transition calls for one.
func (s *Scheduler) runCheck(m *types.Monitor) (*types.Result, error) {
	ctx := s.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	result := s.prober.Probe(ctx, m)
	metrics.RecordProbe(string(m.Type), string(result.Status), result.ResponseTimeMs/1000)

	// The previous result must be read before the new one is saved, or the
	// transition comparison would see the new result.
	var previous *types.Result
	if history, err := s.store.ResultsForMonitor(m.ID, 1); err == nil && len(history) > 0 {
		previous = history[0]
	}

	m.Status = result.Status
	m.MarkChecked()
	if result.Status == types.StatusHealthy {
		m.MarkHealthy()
	}

	if err := s.store.SaveResult(result); err != nil {
		return nil, fmt.Errorf("failed to save result: %w", err)
	}
	if err := s.store.SaveMonitor(m); err != nil {
		return nil, fmt.Errorf("failed to save monitor: %w", err)
	}

	s.maybeNotify(m, result, previous)
	return result, nil
}

func (s *Scheduler) maybeNotify(m *types.Monitor, result, previous *types.Result) {
	if !notify.ShouldNotify(result, previous) {
		return
	}

	space, err := s.store.GetSpace(m.SpaceID)
	if err != nil {
		s.logger.Warn().Str("space_id", m.SpaceID).Err(err).Msg("Cannot notify, space lookup failed")
		return
	}
	if len(space.NotificationEmails) == 0 {
		s.logger.Debug().Str("space", space.Name).Msg("No notification recipients configured")
		return
	}

	subject, body := notify.BuildResultEmail(m, result, space.Name)
	if err := s.mailer.Send(space.NotificationEmails, subject, body); err != nil {
		if errors.Is(err, notify.ErrNotConfigured) {
			s.logger.Warn().Str("monitor", m.Name).Msg("Status changed but email is not configured")
		} else {
			s.logger.Error().Str("monitor", m.Name).Err(err).Msg("Failed to send notification")
		}
		return
	}

	kind := "alert"
	if result.Status == types.StatusHealthy {
		kind = "recovery"
	}
	metrics.NotificationsTotal.WithLabelValues(kind).Inc()
}
