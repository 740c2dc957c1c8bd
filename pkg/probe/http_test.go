package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uplook/uplook/pkg/security"
	"github.com/uplook/uplook/pkg/types"
)

func newTestProber(t *testing.T) *Prober {
	t.Helper()
	keyB64, err := security.GenerateKey()
	require.NoError(t, err)
	box, err := security.NewBoxFromBase64(keyB64)
	require.NoError(t, err)
	return New(box)
}

// plainURLMonitor is a URL monitor pointed at a plain-HTTP test server, so
// the certificate check is off.
func plainURLMonitor(name, url string) *types.Monitor {
	m := types.NewURLMonitor(name, "space-1", url)
	m.CheckSSL = false
	return m
}

func TestURLCheckListReflectsConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		content string
		ssl     bool
		want    []string
	}{
		{
			name: "defaults",
			url:  "https://example.com",
			ssl:  true,
			want: []string{types.CheckConnection, types.CheckStatusCode, types.CheckSSL},
		},
		{
			name: "ssl disabled",
			url:  "https://example.com",
			ssl:  false,
			want: []string{types.CheckConnection, types.CheckStatusCode},
		},
		{
			name: "ssl flag applies regardless of scheme",
			url:  "http://example.com",
			ssl:  true,
			want: []string{types.CheckConnection, types.CheckStatusCode, types.CheckSSL},
		},
		{
			name:    "content check",
			url:     "http://example.com",
			content: "ok",
			want:    []string{types.CheckConnection, types.CheckStatusCode, types.CheckContent},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := types.NewURLMonitor("m", "s", tt.url)
			m.CheckSSL = tt.ssl
			m.CheckContent = tt.content
			assert.Equal(t, tt.want, urlCheckList(m))
		})
	}
}

func TestCheckURLHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("service is up"))
	}))
	defer srv.Close()

	m := plainURLMonitor("web", srv.URL)
	result := newTestProber(t).Probe(context.Background(), m)

	assert.Equal(t, types.StatusHealthy, result.Status)
	assert.Zero(t, result.FailedChecks)
	assert.True(t, *result.Details[types.CheckConnection].Connected)
	assert.Equal(t, 200, result.Details[types.CheckStatusCode].Actual)
	assert.Greater(t, result.ResponseTimeMs, 0.0)
}

func TestCheckURLStatusMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := plainURLMonitor("web", srv.URL)
	result := newTestProber(t).Probe(context.Background(), m)

	assert.Equal(t, types.StatusUnhealthy, result.Status)
	assert.Equal(t, 1, result.FailedChecks)
	assert.True(t, *result.Details[types.CheckConnection].Connected)
	detail := result.Details[types.CheckStatusCode]
	assert.Equal(t, 503, detail.Actual)
	assert.Equal(t, "Expected status code 200, got 503", detail.Message)
}

func TestCheckURLContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("all systems operational"))
	}))
	defer srv.Close()

	t.Run("found", func(t *testing.T) {
		m := plainURLMonitor("web", srv.URL)
		m.CheckContent = "operational"
		result := newTestProber(t).Probe(context.Background(), m)

		assert.Equal(t, types.StatusHealthy, result.Status)
		assert.True(t, *result.Details[types.CheckContent].Found)
	})

	t.Run("missing", func(t *testing.T) {
		m := plainURLMonitor("web", srv.URL)
		m.CheckContent = "maintenance"
		result := newTestProber(t).Probe(context.Background(), m)

		assert.Equal(t, types.StatusUnhealthy, result.Status)
		detail := result.Details[types.CheckContent]
		assert.False(t, *detail.Found)
		assert.Equal(t, "Required content not found in response", detail.Message)
	})
}

func TestCheckURLRedirects(t *testing.T) {
	var target *httptest.Server
	target = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("landed"))
	}))
	defer target.Close()

	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusFound)
	}))
	defer redirector.Close()

	t.Run("followed", func(t *testing.T) {
		m := plainURLMonitor("web", redirector.URL)
		result := newTestProber(t).Probe(context.Background(), m)
		assert.Equal(t, types.StatusHealthy, result.Status)
		assert.Equal(t, 200, result.Details[types.CheckStatusCode].Actual)
	})

	t.Run("not followed", func(t *testing.T) {
		m := plainURLMonitor("web", redirector.URL)
		m.FollowRedirects = false
		result := newTestProber(t).Probe(context.Background(), m)
		assert.Equal(t, types.StatusUnhealthy, result.Status)
		assert.Equal(t, 302, result.Details[types.CheckStatusCode].Actual)
	})
}

func TestCheckURLConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	m := plainURLMonitor("web", url)
	m.CheckContent = "anything"
	result := newTestProber(t).Probe(context.Background(), m)

	assert.Equal(t, types.StatusUnhealthy, result.Status)

	// Only the connection failure counts; downstream checks are not
	// attempted and record no details.
	assert.Equal(t, 1, result.FailedChecks)
	assert.False(t, *result.Details[types.CheckConnection].Connected)
	assert.Equal(t, "Failed to establish connection", result.Details[types.CheckConnection].Error)
	assert.NotContains(t, result.Details, types.CheckStatusCode)
	assert.NotContains(t, result.Details, types.CheckContent)

	// The check list still names everything the monitor is configured for.
	assert.Equal(t, []string{types.CheckConnection, types.CheckStatusCode, types.CheckContent}, result.CheckList)
}

func TestCheckURLTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	m := plainURLMonitor("web", srv.URL)
	m.TimeoutSeconds = 1
	result := newTestProber(t).Probe(context.Background(), m)

	assert.Equal(t, types.StatusUnhealthy, result.Status)
	assert.Equal(t, 1, result.FailedChecks)
	assert.Equal(t, "Request timed out after 1 seconds", result.Details[types.CheckConnection].Error)
}

func TestCheckURLTLSVerificationFailure(t *testing.T) {
	// httptest's TLS server uses a self-signed certificate, so the request
	// fails verification. The certificate check is skipped along with the
	// other downstream checks.
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	m := types.NewURLMonitor("web", "space-1", srv.URL)
	result := newTestProber(t).Probe(context.Background(), m)

	assert.Equal(t, types.StatusUnhealthy, result.Status)
	assert.Equal(t, 1, result.FailedChecks)
	assert.False(t, *result.Details[types.CheckConnection].Connected)
	assert.NotContains(t, result.Details, types.CheckSSL)
	assert.Equal(t, []string{types.CheckConnection, types.CheckStatusCode, types.CheckSSL}, result.CheckList)
}

func TestCheckURLSkipsVerificationWhenDisabled(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	m := types.NewURLMonitor("web", "space-1", srv.URL)
	m.CheckSSL = false
	result := newTestProber(t).Probe(context.Background(), m)

	assert.Equal(t, types.StatusHealthy, result.Status)
	assert.Zero(t, result.FailedChecks)
	assert.True(t, *result.Details[types.CheckConnection].Connected)
	assert.Equal(t, []string{types.CheckConnection, types.CheckStatusCode}, result.CheckList)
}

func TestClassifyRequestError(t *testing.T) {
	assert.Equal(t, "Failed to establish connection", classifyRequestError(assert.AnError, 30))
	assert.Equal(t, "Request timed out after 30 seconds", classifyRequestError(context.DeadlineExceeded, 30))
}
