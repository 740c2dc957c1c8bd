package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uplook/uplook/pkg/types"
)

func result(status types.MonitorStatus) *types.Result {
	return &types.Result{Status: status, Details: map[string]types.CheckDetail{}}
}

func TestShouldNotify(t *testing.T) {
	tests := []struct {
		name     string
		current  *types.Result
		previous *types.Result
		want     bool
	}{
		{"first unhealthy", result(types.StatusUnhealthy), nil, true},
		{"first healthy", result(types.StatusHealthy), nil, false},
		{"went unhealthy", result(types.StatusUnhealthy), result(types.StatusHealthy), true},
		{"recovered", result(types.StatusHealthy), result(types.StatusUnhealthy), true},
		{"still unhealthy", result(types.StatusUnhealthy), result(types.StatusUnhealthy), false},
		{"still healthy", result(types.StatusHealthy), result(types.StatusHealthy), false},
		{"nil current", nil, result(types.StatusHealthy), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldNotify(tt.current, tt.previous))
		})
	}
}

func TestMailerUnconfigured(t *testing.T) {
	m := NewMailer()
	assert.False(t, m.Configured())
	err := m.Send([]string{"ops@example.com"}, "subject", "<p>body</p>")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestMailerConfigureValidation(t *testing.T) {
	m := NewMailer()
	assert.Error(t, m.Configure(Settings{Host: "smtp.example.com"}))
	assert.NoError(t, m.Configure(Settings{Host: "smtp.example.com", Port: 587, Username: "alerts@example.com"}))
	assert.True(t, m.Configured())
}

func TestMailerSend(t *testing.T) {
	var gotTo []string
	var gotMsg []byte

	m := NewMailer()
	m.sendFunc = func(settings Settings, to []string, msg []byte) error {
		gotTo = to
		gotMsg = msg
		return nil
	}
	require.NoError(t, m.Configure(Settings{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "alerts@example.com",
		FromName: "Uplook Alerts",
	}))

	err := m.Send([]string{"a@example.com", "b@example.com"}, "Hello", "<p>hi</p>")
	require.NoError(t, err)

	assert.Equal(t, []string{"a@example.com", "b@example.com"}, gotTo)
	msg := string(gotMsg)
	assert.Contains(t, msg, "From: Uplook Alerts <alerts@example.com>\r\n")
	assert.Contains(t, msg, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, msg, "Subject: Hello\r\n")
	assert.Contains(t, msg, "Content-Type: text/html")
	assert.True(t, strings.HasSuffix(msg, "\r\n<p>hi</p>"))
}

func TestMailerSendNoRecipients(t *testing.T) {
	m := NewMailer()
	require.NoError(t, m.Configure(Settings{Host: "smtp.example.com", Port: 587, Username: "alerts@example.com"}))
	assert.Error(t, m.Send(nil, "s", "b"))
}

func TestLoginAuth(t *testing.T) {
	auth := &loginAuth{username: "user", password: "pass"}

	proto, _, err := auth.Start(nil)
	require.NoError(t, err)
	assert.Equal(t, "LOGIN", proto)

	resp, err := auth.Next([]byte("Username:"), true)
	require.NoError(t, err)
	assert.Equal(t, "user", string(resp))

	resp, err = auth.Next([]byte("Password:"), true)
	require.NoError(t, err)
	assert.Equal(t, "pass", string(resp))

	_, err = auth.Next([]byte("Something else"), true)
	assert.Error(t, err)
}

func TestBuildResultEmail(t *testing.T) {
	m := types.NewURLMonitor("web", "space-1", "https://example.com")
	r := types.NewResult(m)
	r.Status = types.StatusUnhealthy
	r.CheckList = []string{types.CheckConnection, types.CheckStatusCode}
	connected := true
	r.Details[types.CheckConnection] = types.CheckDetail{Connected: &connected}
	r.Details[types.CheckStatusCode] = types.CheckDetail{
		Expected: 200,
		Actual:   503,
		Message:  "Expected status code 200, got 503",
	}
	r.ResponseTimeMs = 123.4

	subject, body := BuildResultEmail(m, r, "production")
	assert.Equal(t, "Monitor Alert: web is UNHEALTHY", subject)
	assert.Contains(t, body, "production")
	assert.Contains(t, body, "https://example.com")
	assert.Contains(t, body, "Expected status code 200, got 503")
	assert.Contains(t, body, "123.4 ms")
	assert.NotContains(t, body, "connection</b>")
}

func TestBuildResultEmailRecovery(t *testing.T) {
	m := types.NewURLMonitor("web", "space-1", "https://example.com")
	r := types.NewResult(m)
	r.Status = types.StatusHealthy

	subject, body := BuildResultEmail(m, r, "production")
	assert.Equal(t, "Monitor Recovered: web is HEALTHY", subject)
	assert.Contains(t, body, "#27ae60")
}

func TestBuildDigestEmail(t *testing.T) {
	healthyAt := time.Now().UTC().Add(-30 * time.Hour)
	checkedAt := time.Now().UTC().Add(-1 * time.Hour)

	m1 := types.NewURLMonitor("web", "space-1", "https://example.com")
	m1.LastHealthyAt = &healthyAt
	m1.LastCheckedAt = &checkedAt
	m2 := types.NewDatabaseMonitor("db", "space-1", types.DBTypePostgres, "db.internal", 5432, "appdb", "monitor")

	entries := []DigestEntry{NewDigestEntry(m2), NewDigestEntry(m1)}
	subject, body := BuildDigestEmail("production", 24, entries)

	assert.Equal(t, "Health Alert: 2 unhealthy monitor(s) in production", subject)
	assert.Contains(t, body, "more than 24 hours")
	assert.Contains(t, body, "30 hours ago ("+healthyAt.Format("2006-01-02 15:04:05")+")")
	assert.Contains(t, body, checkedAt.Format("2006-01-02 15:04:05"))
	assert.Contains(t, body, "Never been healthy")
	assert.Contains(t, body, "Never checked")
	assert.Contains(t, body, "postgresql://db.internal:5432/appdb")
	// Entries are sorted by monitor name.
	assert.Less(t, strings.Index(body, ">db<"), strings.Index(body, ">web<"))
}
