// Package yamlio imports and exports spaces and monitors as YAML documents.
package yamlio

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/uplook/uplook/pkg/security"
	"github.com/uplook/uplook/pkg/storage"
	"github.com/uplook/uplook/pkg/types"
)

// Document is the root of an import/export file.
type Document struct {
	Spaces []SpaceSpec `yaml:"spaces"`
}

// SpaceSpec is one space with its monitors.
type SpaceSpec struct {
	Name               string        `yaml:"name"`
	Description        string        `yaml:"description,omitempty"`
	NotificationEmails []string      `yaml:"notification_emails,omitempty"`
	Monitors           []MonitorSpec `yaml:"monitors,omitempty"`
}

// MonitorSpec is one monitor definition. Passwords are plaintext in the
// file and encrypted on import; exports never include credentials.
type MonitorSpec struct {
	Name                 string `yaml:"name"`
	Type                 string `yaml:"monitor_type"`
	CheckIntervalSeconds int    `yaml:"check_interval_seconds,omitempty"`

	URL                string `yaml:"url,omitempty"`
	ExpectedStatusCode int    `yaml:"expected_status_code,omitempty"`
	TimeoutSeconds     int    `yaml:"timeout_seconds,omitempty"`
	CheckSSL           *bool  `yaml:"check_ssl,omitempty"`
	FollowRedirects    *bool  `yaml:"follow_redirects,omitempty"`
	CheckContent       string `yaml:"check_content,omitempty"`

	DBType                   string `yaml:"db_type,omitempty"`
	Host                     string `yaml:"host,omitempty"`
	Port                     int    `yaml:"port,omitempty"`
	Database                 string `yaml:"database,omitempty"`
	Username                 string `yaml:"username,omitempty"`
	Password                 string `yaml:"password,omitempty"`
	ConnectionTimeoutSeconds int    `yaml:"connection_timeout_seconds,omitempty"`
	QueryTimeoutSeconds      int    `yaml:"query_timeout_seconds,omitempty"`
	TestQuery                string `yaml:"test_query,omitempty"`
}

// ImportStats summarizes one import run.
type ImportStats struct {
	SpacesCreated   int
	SpacesSkipped   int
	MonitorsCreated int
	MonitorsSkipped int
}

// Import creates the spaces and monitors described by data. Entities whose
// name already exists in their scope are skipped, never overwritten.
func Import(store storage.Store, box *security.Box, data []byte) (*ImportStats, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	stats := &ImportStats{}
	for _, spec := range doc.Spaces {
		if spec.Name == "" {
			return stats, fmt.Errorf("space without a name")
		}

		space, err := store.GetSpaceByName(spec.Name)
		switch {
		case err == nil:
			stats.SpacesSkipped++
		default:
			space = types.NewSpace(spec.Name, spec.Description, spec.NotificationEmails)
			if err := store.SaveSpace(space); err != nil {
				return stats, fmt.Errorf("space %q: %w", spec.Name, err)
			}
			stats.SpacesCreated++
		}

		for _, ms := range spec.Monitors {
			if _, err := store.GetMonitorByName(ms.Name, space.ID, ""); err == nil {
				stats.MonitorsSkipped++
				continue
			}
			m, err := buildMonitor(space.ID, ms, box)
			if err != nil {
				return stats, fmt.Errorf("monitor %q in space %q: %w", ms.Name, spec.Name, err)
			}
			if err := store.SaveMonitor(m); err != nil {
				return stats, fmt.Errorf("monitor %q in space %q: %w", ms.Name, spec.Name, err)
			}
			stats.MonitorsCreated++
		}
	}
	return stats, nil
}

func buildMonitor(spaceID string, spec MonitorSpec, box *security.Box) (*types.Monitor, error) {
	var m *types.Monitor
	switch types.MonitorType(spec.Type) {
	case types.MonitorTypeURL:
		m = types.NewURLMonitor(spec.Name, spaceID, spec.URL)
		if spec.ExpectedStatusCode > 0 {
			m.ExpectedStatusCode = spec.ExpectedStatusCode
		}
		if spec.TimeoutSeconds > 0 {
			m.TimeoutSeconds = spec.TimeoutSeconds
		}
		if spec.CheckSSL != nil {
			m.CheckSSL = *spec.CheckSSL
		}
		if spec.FollowRedirects != nil {
			m.FollowRedirects = *spec.FollowRedirects
		}
		m.CheckContent = spec.CheckContent
	case types.MonitorTypeDatabase:
		m = types.NewDatabaseMonitor(spec.Name, spaceID, spec.DBType, spec.Host, spec.Port, spec.Database, spec.Username)
		if spec.ConnectionTimeoutSeconds > 0 {
			m.ConnectionTimeoutSeconds = spec.ConnectionTimeoutSeconds
		}
		if spec.QueryTimeoutSeconds > 0 {
			m.QueryTimeoutSeconds = spec.QueryTimeoutSeconds
		}
		if spec.TestQuery != "" {
			m.TestQuery = spec.TestQuery
		}
		if spec.Password != "" {
			encrypted, err := box.Encrypt(spec.Password)
			if err != nil {
				return nil, err
			}
			m.EncryptedPassword = encrypted
		}
	default:
		return nil, fmt.Errorf("unknown monitor_type %q", spec.Type)
	}
	if spec.CheckIntervalSeconds > 0 {
		m.CheckIntervalSeconds = spec.CheckIntervalSeconds
	}
	return m, m.Validate()
}

// Export renders every space and monitor as a YAML document. Credentials
// are omitted.
func Export(store storage.Store) ([]byte, error) {
	spaces, err := store.ListSpaces()
	if err != nil {
		return nil, err
	}

	doc := Document{}
	for _, space := range spaces {
		spec := SpaceSpec{
			Name:               space.Name,
			Description:        space.Description,
			NotificationEmails: space.NotificationEmails,
		}
		monitors, err := store.GetMonitorsForSpace(space.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range monitors {
			ms := MonitorSpec{
				Name:                 m.Name,
				Type:                 string(m.Type),
				CheckIntervalSeconds: m.CheckIntervalSeconds,
			}
			switch m.Type {
			case types.MonitorTypeURL:
				ms.URL = m.URL
				ms.ExpectedStatusCode = m.ExpectedStatusCode
				ms.TimeoutSeconds = m.TimeoutSeconds
				checkSSL := m.CheckSSL
				followRedirects := m.FollowRedirects
				ms.CheckSSL = &checkSSL
				ms.FollowRedirects = &followRedirects
				ms.CheckContent = m.CheckContent
			case types.MonitorTypeDatabase:
				ms.DBType = m.DBType
				ms.Host = m.Host
				ms.Port = m.Port
				ms.Database = m.Database
				ms.Username = m.Username
				ms.ConnectionTimeoutSeconds = m.ConnectionTimeoutSeconds
				ms.QueryTimeoutSeconds = m.QueryTimeoutSeconds
				ms.TestQuery = m.TestQuery
			}
			spec.Monitors = append(spec.Monitors, ms)
		}
		doc.Spaces = append(doc.Spaces, spec)
	}
	return yaml.Marshal(&doc)
}

// Sample returns a commented starter document for `uplook yaml sample`.
func Sample() []byte {
	return []byte(`# uplook monitor definitions
#
# Import with: uplook yaml import <file>
# Existing spaces and monitors (matched by name) are left untouched.
spaces:
  - name: production
    description: Customer-facing services
    notification_emails:
      - ops@example.com
    monitors:
      - name: website
        monitor_type: url
        url: https://example.com
        expected_status_code: 200
        timeout_seconds: 30
        check_interval_seconds: 300
        check_ssl: true
        check_content: Welcome
      - name: primary-db
        monitor_type: database
        db_type: postgresql
        host: db.internal
        port: 5432
        database: appdb
        username: monitor
        password: change-me
        check_interval_seconds: 600
`)
}
