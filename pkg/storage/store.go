package storage

import (
	"errors"
	"time"

	"github.com/uplook/uplook/pkg/types"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique-name constraint is violated.
	ErrConflict = errors.New("already exists")
)

// CleanupPreview reports what a retention run would delete, without deleting.
type CleanupPreview struct {
	HealthyToDelete       int       `json:"healthy_to_delete"`
	UnhealthyToDelete     int       `json:"unhealthy_to_delete"`
	TotalToDelete         int       `json:"total_to_delete"`
	TotalResults          int       `json:"total_results"`
	RetentionAfterCleanup int       `json:"retention_after_cleanup"`
	HealthyCutoff         time.Time `json:"healthy_cutoff"`
	UnhealthyCutoff       time.Time `json:"unhealthy_cutoff"`
}

// CleanupStats reports what a retention run actually deleted.
type CleanupStats struct {
	HealthyDeleted   int     `json:"healthy_deleted"`
	UnhealthyDeleted int     `json:"unhealthy_deleted"`
	TotalDeleted     int     `json:"total_deleted"`
	BatchesProcessed int     `json:"batches_processed"`
	DurationSeconds  float64 `json:"duration_seconds"`
}

// Store is the persistence contract for spaces, monitors, and results.
// Implementations must make each operation atomic and isolated.
type Store interface {
	// Spaces
	SaveSpace(space *types.Space) error
	GetSpace(id string) (*types.Space, error)
	GetSpaceByName(name string) (*types.Space, error)
	ListSpaces() ([]*types.Space, error)
	// DeleteSpace cascades to the space's monitors and their results.
	DeleteSpace(id string) error

	// Monitors
	SaveMonitor(monitor *types.Monitor) error
	GetMonitor(id string) (*types.Monitor, error)
	// GetMonitorByName resolves a monitor by name, optionally scoped to a
	// space by id or by name.
	GetMonitorByName(name, spaceID, spaceName string) (*types.Monitor, error)
	ListMonitors() ([]*types.Monitor, error)
	GetMonitorsForSpace(spaceID string) ([]*types.Monitor, error)
	// DeleteMonitor cascades to the monitor's results.
	DeleteMonitor(id string) error
	// UnhealthyMonitors returns monitors that have been checked, are not
	// offline, and have either never been healthy or were last healthy
	// more than thresholdHours ago.
	UnhealthyMonitors(thresholdHours int) ([]*types.Monitor, error)

	// Results
	SaveResult(result *types.Result) error
	ResultsForMonitor(monitorID string, limit int) ([]*types.Result, error)
	ResultsForSpace(spaceID string, limit int) ([]*types.Result, error)

	// Retention
	CleanupOldResults(keepHealthyDays, keepUnhealthyDays, batchSize int) (*CleanupStats, error)
	CleanupPreview(keepHealthyDays, keepUnhealthyDays int) (*CleanupPreview, error)

	Close() error
}
