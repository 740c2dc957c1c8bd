package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509/pkix"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/uplook/uplook/pkg/types"
)

// maxBodyBytes bounds how much of a response body the content check reads.
const maxBodyBytes = 5 << 20

// urlCheckList reflects the monitor's configuration, not the probe outcome:
// the list is the same whether the checks pass or fail.
func urlCheckList(m *types.Monitor) []string {
	checks := []string{types.CheckConnection, types.CheckStatusCode}
	if m.CheckContent != "" {
		checks = append(checks, types.CheckContent)
	}
	if m.CheckSSL {
		checks = append(checks, types.CheckSSL)
	}
	return checks
}

func (p *Prober) checkURL(ctx context.Context, m *types.Monitor) *types.Result {
	result := types.NewResult(m)
	result.CheckList = urlCheckList(m)

	timeout := time.Duration(m.TimeoutSeconds) * time.Second
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !m.CheckSSL},
		},
	}
	if !m.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	start := time.Now()
	resp, err := p.fetch(ctx, client, m.URL)
	result.ResponseTimeMs = float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		// Downstream checks stay in the check list but are not attempted;
		// only the connection failure counts.
		msg := classifyRequestError(err, m.TimeoutSeconds)
		fail(result, types.CheckConnection, types.CheckDetail{Connected: boolPtr(false), Error: msg})
	} else {
		result.Details[types.CheckConnection] = types.CheckDetail{Connected: boolPtr(true)}

		if resp.StatusCode == m.ExpectedStatusCode {
			result.Details[types.CheckStatusCode] = types.CheckDetail{Expected: m.ExpectedStatusCode, Actual: resp.StatusCode}
		} else {
			fail(result, types.CheckStatusCode, types.CheckDetail{
				Expected: m.ExpectedStatusCode,
				Actual:   resp.StatusCode,
				Message:  msgStatusMismatch(m.ExpectedStatusCode, resp.StatusCode),
			})
		}

		if m.CheckContent != "" {
			body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			switch {
			case readErr != nil:
				fail(result, types.CheckContent, types.CheckDetail{Found: boolPtr(false), Error: msgUnexpected})
			case strings.Contains(string(body), m.CheckContent):
				result.Details[types.CheckContent] = types.CheckDetail{Found: boolPtr(true)}
			default:
				fail(result, types.CheckContent, types.CheckDetail{Found: boolPtr(false), Message: msgContentNotFound})
			}
		}
		resp.Body.Close()

		// The certificate inspection dials the host separately so expiry
		// and issuer details come from the leaf certificate itself.
		if containsCheck(result.CheckList, types.CheckSSL) {
			detail, ok := checkCertificate(m.URL, timeout)
			if ok {
				result.Details[types.CheckSSL] = detail
			} else {
				fail(result, types.CheckSSL, detail)
			}
		}
	}

	if result.FailedChecks > 0 {
		result.Status = types.StatusUnhealthy
	}

	p.logger.Debug().
		Str("monitor_id", m.ID).
		Str("url", m.URL).
		Str("status", string(result.Status)).
		Float64("response_time_ms", result.ResponseTimeMs).
		Int("failed_checks", result.FailedChecks).
		Msg("URL check completed")

	return result
}

func (p *Prober) fetch(ctx context.Context, client *http.Client, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "uplook-monitor/1.0")
	return client.Do(req)
}

// classifyRequestError maps transport failures onto the user-facing error
// messages, distinguishing timeouts from plain connection failures.
func classifyRequestError(err error, timeoutSeconds int) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return msgTimeout(timeoutSeconds)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return msgTimeout(timeoutSeconds)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return msgTimeout(timeoutSeconds)
	}
	return msgConnectionFailed
}

// checkCertificate connects to the monitor's host over TLS and inspects the
// leaf certificate. The second return value is false when the check failed.
func checkCertificate(target string, timeout time.Duration) (types.CheckDetail, bool) {
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return types.CheckDetail{Error: msgSSLFailed}, false
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "443"
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", net.JoinHostPort(host, port), &tls.Config{ServerName: host})
	if err != nil {
		return types.CheckDetail{Error: msgSSLFailed}, false
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return types.CheckDetail{Error: msgSSLFailed}, false
	}
	leaf := certs[0]

	days := int(time.Until(leaf.NotAfter).Hours() / 24)
	detail := types.CheckDetail{
		ExpiryDate:      leaf.NotAfter.UTC().Format("2006-01-02 15:04:05"),
		DaysUntilExpiry: &days,
		Issuer:          issuerFields(leaf.Issuer),
	}
	if time.Now().After(leaf.NotAfter) {
		detail.Error = msgSSLFailed
		return detail, false
	}
	return detail, true
}

func issuerFields(name pkix.Name) map[string]string {
	fields := make(map[string]string)
	if name.CommonName != "" {
		fields["common_name"] = name.CommonName
	}
	if len(name.Organization) > 0 {
		fields["organization"] = name.Organization[0]
	}
	if len(name.Country) > 0 {
		fields["country"] = name.Country[0]
	}
	return fields
}

func containsCheck(checks []string, name string) bool {
	for _, c := range checks {
		if c == name {
			return true
		}
	}
	return false
}
