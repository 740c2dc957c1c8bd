package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MonitorType discriminates the two monitor variants.
type MonitorType string

const (
	MonitorTypeURL      MonitorType = "url"
	MonitorTypeDatabase MonitorType = "database"
)

// MonitorStatus represents the last observed state of a monitor.
type MonitorStatus string

const (
	StatusHealthy   MonitorStatus = "healthy"
	StatusUnhealthy MonitorStatus = "unhealthy"
	StatusUnknown   MonitorStatus = "unknown"
	// StatusOffline means the scheduler is not currently running this monitor.
	StatusOffline MonitorStatus = "offline"
)

// Check names that can appear in a result's check list.
const (
	CheckConnection = "connection"
	CheckStatusCode = "status_code"
	CheckContent    = "content"
	CheckSSL        = "ssl"
	CheckQuery      = "query"
)

// Supported database dialects for database monitors.
const (
	DBTypePostgres  = "postgresql"
	DBTypeMySQL     = "mysql"
	DBTypeSQLServer = "sqlserver"
)

// Space groups monitors that share a notification distribution list.
type Space struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Description        string     `json:"description,omitempty"`
	NotificationEmails []string   `json:"notification_emails"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

// NewSpace creates a space with a fresh ID.
func NewSpace(name, description string, emails []string) *Space {
	if emails == nil {
		emails = []string{}
	}
	return &Space{
		ID:                 uuid.NewString(),
		Name:               name,
		Description:        description,
		NotificationEmails: emails,
		CreatedAt:          time.Now(),
	}
}

// Touch updates the modification timestamp.
func (s *Space) Touch() {
	now := time.Now()
	s.UpdatedAt = &now
}

// Monitor is a tagged variant over URL and database monitors. The common
// header fields are always populated; the type-specific fields are only
// meaningful for the matching Type.
type Monitor struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	SpaceID              string        `json:"space_id"`
	Type                 MonitorType   `json:"monitor_type"`
	Status               MonitorStatus `json:"status"`
	CheckIntervalSeconds int           `json:"check_interval_seconds"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            *time.Time    `json:"updated_at,omitempty"`
	LastCheckedAt        *time.Time    `json:"last_checked_at,omitempty"`
	LastHealthyAt        *time.Time    `json:"last_healthy_at,omitempty"`

	// URL monitor fields
	URL                string `json:"url,omitempty"`
	ExpectedStatusCode int    `json:"expected_status_code,omitempty"`
	TimeoutSeconds     int    `json:"timeout_seconds,omitempty"`
	CheckSSL           bool   `json:"check_ssl,omitempty"`
	FollowRedirects    bool   `json:"follow_redirects,omitempty"`
	CheckContent       string `json:"check_content,omitempty"`

	// Database monitor fields
	DBType                   string `json:"db_type,omitempty"`
	Host                     string `json:"host,omitempty"`
	Port                     int    `json:"port,omitempty"`
	Database                 string `json:"database,omitempty"`
	Username                 string `json:"username,omitempty"`
	EncryptedPassword        string `json:"password,omitempty"`
	ConnectionTimeoutSeconds int    `json:"connection_timeout_seconds,omitempty"`
	QueryTimeoutSeconds      int    `json:"query_timeout_seconds,omitempty"`
	TestQuery                string `json:"test_query,omitempty"`
}

// NewURLMonitor creates a URL monitor with the documented defaults.
func NewURLMonitor(name, spaceID, url string) *Monitor {
	return &Monitor{
		ID:                   uuid.NewString(),
		Name:                 name,
		SpaceID:              spaceID,
		Type:                 MonitorTypeURL,
		Status:               StatusOffline,
		CheckIntervalSeconds: 300,
		CreatedAt:            time.Now(),
		URL:                  url,
		ExpectedStatusCode:   200,
		TimeoutSeconds:       30,
		CheckSSL:             true,
		FollowRedirects:      true,
	}
}

// NewDatabaseMonitor creates a database monitor with the documented defaults.
func NewDatabaseMonitor(name, spaceID, dbType, host string, port int, database, username string) *Monitor {
	return &Monitor{
		ID:                       uuid.NewString(),
		Name:                     name,
		SpaceID:                  spaceID,
		Type:                     MonitorTypeDatabase,
		Status:                   StatusOffline,
		CheckIntervalSeconds:     300,
		CreatedAt:                time.Now(),
		DBType:                   dbType,
		Host:                     host,
		Port:                     port,
		Database:                 database,
		Username:                 username,
		ConnectionTimeoutSeconds: 10,
		QueryTimeoutSeconds:      30,
		TestQuery:                "SELECT 1",
	}
}

// Touch updates the modification timestamp.
func (m *Monitor) Touch() {
	now := time.Now()
	m.UpdatedAt = &now
}

// MarkChecked records that a probe completed, regardless of outcome.
func (m *Monitor) MarkChecked() {
	now := time.Now()
	m.LastCheckedAt = &now
	m.UpdatedAt = &now
}

// MarkHealthy records a healthy probe outcome. LastHealthyAt never moves
// backwards because it is always set to the current time.
func (m *Monitor) MarkHealthy() {
	now := time.Now()
	m.LastHealthyAt = &now
	m.UpdatedAt = &now
}

// Validate checks the invariants that hold for every stored monitor.
func (m *Monitor) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("monitor name is required")
	}
	if m.SpaceID == "" {
		return fmt.Errorf("monitor space_id is required")
	}
	if m.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("check_interval_seconds must be positive")
	}
	switch m.Type {
	case MonitorTypeURL:
		if m.URL == "" {
			return fmt.Errorf("url is required for url monitors")
		}
	case MonitorTypeDatabase:
		if m.DBType == "" || m.Host == "" || m.Port == 0 || m.Database == "" || m.Username == "" {
			return fmt.Errorf("db_type, host, port, database and username are required for database monitors")
		}
	default:
		return fmt.Errorf("unknown monitor type: %q", m.Type)
	}
	return nil
}

// CheckDetail holds the per-check outcome recorded in a result. Only the
// fields relevant to the check kind are populated.
type CheckDetail struct {
	Connected       *bool             `json:"connected,omitempty"`
	Executed        *bool             `json:"executed,omitempty"`
	Expected        any               `json:"expected,omitempty"`
	Actual          any               `json:"actual,omitempty"`
	Found           *bool             `json:"found,omitempty"`
	ExpiryDate      string            `json:"expiry_date,omitempty"`
	DaysUntilExpiry *int              `json:"days_until_expiry,omitempty"`
	Issuer          map[string]string `json:"issuer,omitempty"`
	Message         string            `json:"message,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// Result is the append-only record of one probe execution.
type Result struct {
	ID             string                 `json:"id"`
	MonitorID      string                 `json:"monitor_id"`
	SpaceID        string                 `json:"space_id"`
	Type           MonitorType            `json:"monitor_type"`
	Timestamp      time.Time              `json:"timestamp"`
	Status         MonitorStatus          `json:"status"`
	ResponseTimeMs float64                `json:"response_time_ms"`
	FailedChecks   int                    `json:"failed_checks"`
	CheckList      []string               `json:"check_list"`
	Details        map[string]CheckDetail `json:"details"`
}

// NewResult creates an empty result for a monitor probe that is starting now.
func NewResult(m *Monitor) *Result {
	return &Result{
		ID:        uuid.NewString(),
		MonitorID: m.ID,
		SpaceID:   m.SpaceID,
		Type:      m.Type,
		Timestamp: time.Now(),
		Status:    StatusHealthy,
		Details:   make(map[string]CheckDetail),
	}
}
