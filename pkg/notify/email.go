package notify

import (
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/uplook/uplook/pkg/types"
)

var resultTemplate = template.Must(template.New("result").Parse(`<html>
<body style="font-family: sans-serif;">
<h2 style="color: {{.Color}};">{{.Headline}}</h2>
<table cellpadding="4">
<tr><td><b>Monitor</b></td><td>{{.MonitorName}}</td></tr>
<tr><td><b>Space</b></td><td>{{.SpaceName}}</td></tr>
<tr><td><b>Target</b></td><td>{{.Target}}</td></tr>
<tr><td><b>Status</b></td><td>{{.Status}}</td></tr>
<tr><td><b>Checked at</b></td><td>{{.CheckedAt}}</td></tr>
<tr><td><b>Response time</b></td><td>{{.ResponseTime}}</td></tr>
</table>
{{if .Failures}}
<h3>Failed checks</h3>
<ul>
{{range .Failures}}<li><b>{{.Check}}</b>: {{.Reason}}</li>
{{end}}</ul>
{{end}}
</body>
</html>`))

var digestTemplate = template.Must(template.New("digest").Parse(`<html>
<body style="font-family: sans-serif;">
<h2 style="color: #c0392b;">Health Alert: {{.Count}} unhealthy monitor{{if ne .Count 1}}s{{end}} in {{.SpaceName}}</h2>
<p>The following monitors have not been healthy for more than {{.ThresholdHours}} hours.</p>
<table cellpadding="4" border="1" style="border-collapse: collapse;">
<tr><th>Monitor</th><th>Type</th><th>Target</th><th>Last healthy</th><th>Last checked</th></tr>
{{range .Entries}}<tr><td>{{.Name}}</td><td>{{.Type}}</td><td>{{.Target}}</td><td>{{.LastHealthy}}</td><td>{{.LastChecked}}</td></tr>
{{end}}</table>
</body>
</html>`))

type resultFailure struct {
	Check  string
	Reason string
}

// BuildResultEmail renders the subject and body for a status-change
// notification.
func BuildResultEmail(m *types.Monitor, result *types.Result, spaceName string) (subject, body string) {
	status := strings.ToUpper(string(result.Status))
	if result.Status == types.StatusHealthy {
		subject = fmt.Sprintf("Monitor Recovered: %s is %s", m.Name, status)
	} else {
		subject = fmt.Sprintf("Monitor Alert: %s is %s", m.Name, status)
	}

	data := struct {
		Headline     string
		Color        string
		MonitorName  string
		SpaceName    string
		Target       string
		Status       string
		CheckedAt    string
		ResponseTime string
		Failures     []resultFailure
	}{
		Headline:     subject,
		Color:        "#c0392b",
		MonitorName:  m.Name,
		SpaceName:    spaceName,
		Target:       monitorTarget(m),
		Status:       status,
		CheckedAt:    result.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"),
		ResponseTime: fmt.Sprintf("%.1f ms", result.ResponseTimeMs),
		Failures:     collectFailures(result),
	}
	if result.Status == types.StatusHealthy {
		data.Color = "#27ae60"
	}

	var b strings.Builder
	if err := resultTemplate.Execute(&b, data); err != nil {
		return subject, fmt.Sprintf("<html><body><p>%s</p></body></html>", subject)
	}
	return subject, b.String()
}

// DigestEntry is one unhealthy monitor in a per-space digest.
type DigestEntry struct {
	Name        string
	Type        string
	Target      string
	LastHealthy string
	LastChecked string
}

// NewDigestEntry summarizes a monitor for the digest table. The last-healthy
// column carries how long the monitor has been unhealthy alongside the
// timestamp itself.
func NewDigestEntry(m *types.Monitor) DigestEntry {
	lastHealthy := "Never been healthy"
	if m.LastHealthyAt != nil {
		hours := int(time.Since(*m.LastHealthyAt).Hours())
		lastHealthy = fmt.Sprintf("%d hours ago (%s)", hours, m.LastHealthyAt.UTC().Format("2006-01-02 15:04:05"))
	}
	lastChecked := "Never checked"
	if m.LastCheckedAt != nil {
		lastChecked = m.LastCheckedAt.UTC().Format("2006-01-02 15:04:05")
	}
	return DigestEntry{
		Name:        m.Name,
		Type:        string(m.Type),
		Target:      monitorTarget(m),
		LastHealthy: lastHealthy,
		LastChecked: lastChecked,
	}
}

// BuildDigestEmail renders the per-space digest of long-running unhealthy
// monitors.
func BuildDigestEmail(spaceName string, thresholdHours int, entries []DigestEntry) (subject, body string) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	subject = fmt.Sprintf("Health Alert: %d unhealthy monitor(s) in %s", len(entries), spaceName)
	data := struct {
		Count          int
		SpaceName      string
		ThresholdHours int
		Entries        []DigestEntry
	}{
		Count:          len(entries),
		SpaceName:      spaceName,
		ThresholdHours: thresholdHours,
		Entries:        entries,
	}

	var b strings.Builder
	if err := digestTemplate.Execute(&b, data); err != nil {
		return subject, fmt.Sprintf("<html><body><p>%s</p></body></html>", subject)
	}
	return subject, b.String()
}

// BuildTestEmail renders the message sent by the email connectivity test.
func BuildTestEmail() (subject, body string) {
	subject = "Test Email from uplook"
	body = fmt.Sprintf(`<html><body style="font-family: sans-serif;">
<h2>Email configuration works</h2>
<p>This test message was sent at %s.</p>
</body></html>`, time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))
	return subject, body
}

func monitorTarget(m *types.Monitor) string {
	if m.Type == types.MonitorTypeDatabase {
		return fmt.Sprintf("%s://%s:%d/%s", m.DBType, m.Host, m.Port, m.Database)
	}
	return m.URL
}

// collectFailures extracts the failed checks in check-list order so the
// email mirrors the result's own ordering.
func collectFailures(result *types.Result) []resultFailure {
	var failures []resultFailure
	for _, check := range result.CheckList {
		detail, ok := result.Details[check]
		if !ok {
			continue
		}
		reason := detail.Error
		if reason == "" {
			reason = detail.Message
		}
		if reason == "" {
			continue
		}
		failures = append(failures, resultFailure{Check: check, Reason: reason})
	}
	return failures
}
