package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uplook/uplook/pkg/config"
	"github.com/uplook/uplook/pkg/notify"
	"github.com/uplook/uplook/pkg/storage"
	"github.com/uplook/uplook/pkg/types"
)

type sentMail struct {
	to      []string
	subject string
	body    string
}

func newCaptureMailer(t *testing.T, sent *[]sentMail) *notify.Mailer {
	t.Helper()
	m := notify.NewMailerWithTransport(func(settings notify.Settings, to []string, msg []byte) error {
		*sent = append(*sent, sentMail{to: to, subject: string(msg), body: string(msg)})
		return nil
	})
	require.NoError(t, m.Configure(notify.Settings{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "alerts@example.com",
	}))
	return m
}

func seedStaleMonitor(t *testing.T, store storage.Store, space *types.Space, name string) *types.Monitor {
	t.Helper()
	m := types.NewURLMonitor(name, space.ID, "https://example.com")
	m.Status = types.StatusUnhealthy
	now := time.Now()
	old := now.Add(-72 * time.Hour)
	m.LastCheckedAt = &now
	m.LastHealthyAt = &old
	require.NoError(t, store.SaveMonitor(m))
	return m
}

func alertConfig(enabled bool) func() config.HealthAlertsConfig {
	return func() config.HealthAlertsConfig {
		return config.HealthAlertsConfig{Enabled: enabled, ThresholdHours: 24, CheckIntervalMinutes: 360}
	}
}

func TestHealthAlertSendsOneDigestPerSpace(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	spaceA := types.NewSpace("alpha", "", []string{"a@example.com"})
	require.NoError(t, store.SaveSpace(spaceA))
	spaceB := types.NewSpace("beta", "", []string{"b1@example.com", "b2@example.com"})
	require.NoError(t, store.SaveSpace(spaceB))

	seedStaleMonitor(t, store, spaceA, "web")
	seedStaleMonitor(t, store, spaceA, "api")
	seedStaleMonitor(t, store, spaceB, "db")

	var sent []sentMail
	job := NewHealthAlertJob(store, newCaptureMailer(t, &sent), alertConfig(true))

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, sent, 2)

	var recipients [][]string
	for _, mail := range sent {
		recipients = append(recipients, mail.to)
	}
	assert.Contains(t, recipients, []string{"a@example.com"})
	assert.Contains(t, recipients, []string{"b1@example.com", "b2@example.com"})
}

func TestHealthAlertDisabled(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	space := types.NewSpace("alpha", "", []string{"a@example.com"})
	require.NoError(t, store.SaveSpace(space))
	seedStaleMonitor(t, store, space, "web")

	var sent []sentMail
	job := NewHealthAlertJob(store, newCaptureMailer(t, &sent), alertConfig(false))

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, sent)
}

func TestHealthAlertSkipsSpacesWithoutRecipients(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	space := types.NewSpace("alpha", "", nil)
	require.NoError(t, store.SaveSpace(space))
	seedStaleMonitor(t, store, space, "web")

	var sent []sentMail
	job := NewHealthAlertJob(store, newCaptureMailer(t, &sent), alertConfig(true))

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, sent)
}

func TestHealthAlertNoUnhealthyMonitors(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	var sent []sentMail
	job := NewHealthAlertJob(store, newCaptureMailer(t, &sent), alertConfig(true))

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, sent)
}

func TestHealthAlertUnconfiguredMailer(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	space := types.NewSpace("alpha", "", []string{"a@example.com"})
	require.NoError(t, store.SaveSpace(space))
	seedStaleMonitor(t, store, space, "web")

	job := NewHealthAlertJob(store, notify.NewMailer(), alertConfig(true))

	err = job.Run(context.Background())
	assert.ErrorIs(t, err, notify.ErrNotConfigured)
}
