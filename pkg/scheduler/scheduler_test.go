package scheduler

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uplook/uplook/pkg/config"
	"github.com/uplook/uplook/pkg/notify"
	"github.com/uplook/uplook/pkg/probe"
	"github.com/uplook/uplook/pkg/storage"
	"github.com/uplook/uplook/pkg/types"
)

type fixture struct {
	store     storage.Store
	scheduler *Scheduler
	mailer    *notify.Mailer

	mu   sync.Mutex
	sent []string // subjects of captured emails
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{}

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	f.store = store

	cfg, err := config.NewManager(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	f.mailer = notify.NewMailerWithTransport(func(settings notify.Settings, to []string, msg []byte) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.sent = append(f.sent, subjectOf(msg))
		return nil
	})
	require.NoError(t, f.mailer.Configure(notify.Settings{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "alerts@example.com",
	}))

	f.scheduler = New(store, probe.New(cfg.Box()), f.mailer, cfg)
	return f
}

func subjectOf(msg []byte) string {
	for _, line := range strings.Split(string(msg), "\r\n") {
		if strings.HasPrefix(line, "Subject: ") {
			return strings.TrimPrefix(line, "Subject: ")
		}
	}
	return ""
}

func (f *fixture) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fixture) seedSpace(t *testing.T, name string, emails []string) *types.Space {
	t.Helper()
	space := types.NewSpace(name, "", emails)
	require.NoError(t, f.store.SaveSpace(space))
	return space
}

func (f *fixture) seedMonitor(t *testing.T, space *types.Space, name, url string) *types.Monitor {
	t.Helper()
	m := types.NewURLMonitor(name, space.ID, url)
	m.CheckSSL = false
	require.NoError(t, f.store.SaveMonitor(m))
	return m
}

func TestScheduleMarksUnknown(t *testing.T) {
	f := newFixture(t)
	space := f.seedSpace(t, "prod", nil)
	m := f.seedMonitor(t, space, "web", "http://example.com")

	require.NoError(t, f.scheduler.Schedule(m.ID))

	assert.True(t, f.scheduler.IsScheduled(m.ID))
	got, err := f.store.GetMonitor(m.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusUnknown, got.Status)
}

func TestScheduleUnknownMonitor(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.scheduler.Schedule("missing"), storage.ErrNotFound)
}

func TestUnscheduleMarksOffline(t *testing.T) {
	f := newFixture(t)
	space := f.seedSpace(t, "prod", nil)
	m := f.seedMonitor(t, space, "web", "http://example.com")

	require.NoError(t, f.scheduler.Schedule(m.ID))
	require.NoError(t, f.scheduler.Unschedule(m.ID))

	assert.False(t, f.scheduler.IsScheduled(m.ID))
	got, err := f.store.GetMonitor(m.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOffline, got.Status)

	assert.ErrorIs(t, f.scheduler.Unschedule(m.ID), ErrNotScheduled)
}

func TestListRunningFilters(t *testing.T) {
	f := newFixture(t)
	prod := f.seedSpace(t, "prod", nil)
	staging := f.seedSpace(t, "staging", nil)

	web := f.seedMonitor(t, prod, "web", "http://example.com")
	api := f.seedMonitor(t, prod, "api", "http://api.example.com")
	stg := f.seedMonitor(t, staging, "stg", "http://staging.example.com")

	for _, m := range []*types.Monitor{web, api, stg} {
		require.NoError(t, f.scheduler.Schedule(m.ID))
	}

	all := f.scheduler.ListRunning("", "")
	require.Len(t, all, 3)
	// Sorted by name.
	assert.Equal(t, []string{"api", "stg", "web"}, []string{all[0].Name, all[1].Name, all[2].Name})

	prodOnly := f.scheduler.ListRunning(prod.ID, "")
	require.Len(t, prodOnly, 2)

	urls := f.scheduler.ListRunning("", types.MonitorTypeURL)
	assert.Len(t, urls, 3)
	dbs := f.scheduler.ListRunning("", types.MonitorTypeDatabase)
	assert.Empty(t, dbs)
}

func TestStartStopAllInSpace(t *testing.T) {
	f := newFixture(t)
	prod := f.seedSpace(t, "prod", nil)
	f.seedMonitor(t, prod, "web", "http://example.com")
	f.seedMonitor(t, prod, "api", "http://api.example.com")

	started, err := f.scheduler.StartAllInSpace(prod.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, started)
	assert.Equal(t, 2, f.scheduler.RunningCount())

	// Starting again is idempotent.
	started, err = f.scheduler.StartAllInSpace(prod.ID)
	require.NoError(t, err)
	assert.Zero(t, started)

	stopped, err := f.scheduler.StopAllInSpace(prod.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stopped)
	assert.Zero(t, f.scheduler.RunningCount())
}

func TestResumeAllSkipsOffline(t *testing.T) {
	f := newFixture(t)
	prod := f.seedSpace(t, "prod", nil)

	active := f.seedMonitor(t, prod, "active", "http://example.com")
	active.Status = types.StatusHealthy
	require.NoError(t, f.store.SaveMonitor(active))

	offline := f.seedMonitor(t, prod, "offline", "http://example.com")
	offline.Status = types.StatusOffline
	require.NoError(t, f.store.SaveMonitor(offline))

	resumed, err := f.scheduler.ResumeAll()
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)
	assert.True(t, f.scheduler.IsScheduled(active.ID))
	assert.False(t, f.scheduler.IsScheduled(offline.ID))
}

func TestCheckNowPersistsResultAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newFixture(t)
	space := f.seedSpace(t, "prod", nil)
	m := f.seedMonitor(t, space, "web", srv.URL)

	result, err := f.scheduler.CheckNow(m.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusHealthy, result.Status)

	got, err := f.store.GetMonitor(m.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusHealthy, got.Status)
	assert.NotNil(t, got.LastCheckedAt)
	assert.NotNil(t, got.LastHealthyAt)

	history, err := f.store.ResultsForMonitor(m.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestNotificationsAreEdgeTriggered(t *testing.T) {
	healthy := true
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ok := healthy
		mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	f := newFixture(t)
	space := f.seedSpace(t, "prod", []string{"ops@example.com"})
	m := f.seedMonitor(t, space, "web", srv.URL)

	setHealthy := func(v bool) {
		mu.Lock()
		healthy = v
		mu.Unlock()
	}

	// First check healthy: no email.
	_, err := f.scheduler.CheckNow(m.ID)
	require.NoError(t, err)
	assert.Empty(t, f.subjects())

	// Goes unhealthy: alert.
	setHealthy(false)
	_, err = f.scheduler.CheckNow(m.ID)
	require.NoError(t, err)
	require.Len(t, f.subjects(), 1)
	assert.Equal(t, "Monitor Alert: web is UNHEALTHY", f.subjects()[0])

	// Still unhealthy: no new email.
	_, err = f.scheduler.CheckNow(m.ID)
	require.NoError(t, err)
	assert.Len(t, f.subjects(), 1)

	// Recovers: recovery email.
	setHealthy(true)
	_, err = f.scheduler.CheckNow(m.ID)
	require.NoError(t, err)
	require.Len(t, f.subjects(), 2)
	assert.Equal(t, "Monitor Recovered: web is HEALTHY", f.subjects()[1])
}

func TestFirstCheckUnhealthyNotifies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newFixture(t)
	space := f.seedSpace(t, "prod", []string{"ops@example.com"})
	m := f.seedMonitor(t, space, "web", srv.URL)

	_, err := f.scheduler.CheckNow(m.ID)
	require.NoError(t, err)
	require.Len(t, f.subjects(), 1)
	assert.Equal(t, "Monitor Alert: web is UNHEALTHY", f.subjects()[0])
}

func TestRunJobAliases(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.scheduler.RunJob("health-alerts"))
	require.NoError(t, f.scheduler.RunJob("data_cleanup"))
	assert.Error(t, f.scheduler.RunJob("bogus"))

	stats := f.scheduler.JobStats()
	require.Len(t, stats, 2)
	assert.Equal(t, "data_cleanup", stats[0].Name)
	assert.Equal(t, "health_alert", stats[1].Name)
	assert.Equal(t, 1, stats[0].RunCount)
	assert.Equal(t, 1, stats[1].RunCount)
}

func TestDispatchSkipsRunningMonitors(t *testing.T) {
	f := newFixture(t)
	space := f.seedSpace(t, "prod", nil)
	m := f.seedMonitor(t, space, "web", "http://example.com")
	require.NoError(t, f.scheduler.Schedule(m.ID))

	f.scheduler.mu.Lock()
	e := f.scheduler.entries[m.ID]
	e.running = true
	e.nextRun = time.Now().Add(-time.Minute)
	f.scheduler.mu.Unlock()

	// No worker is draining tasks, so a dispatch attempt would block; a
	// running entry must be skipped before that.
	f.scheduler.dispatchDue(time.Now())

	f.scheduler.mu.Lock()
	defer f.scheduler.mu.Unlock()
	assert.True(t, f.scheduler.entries[m.ID].running)
}
