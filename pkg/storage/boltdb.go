package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/uplook/uplook/pkg/types"
)

var (
	// Bucket names
	bucketSpaces   = []byte("spaces")
	bucketMonitors = []byte("monitors")
	bucketResults  = []byte("results")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "uplook.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSpaces, bucketMonitors, bucketResults} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// resultKey orders result rows chronologically within the bucket so range
// scans come back in timestamp order without sorting.
func resultKey(ts time.Time, id string) []byte {
	return []byte(ts.UTC().Format(time.RFC3339Nano) + "|" + id)
}

// resultRow is the stored form of a result. Per the store contract,
// details and check_list are serialized JSON strings and enums are stored
// as their string forms.
type resultRow struct {
	ID             string  `json:"id"`
	MonitorID      string  `json:"monitor_id"`
	SpaceID        string  `json:"space_id"`
	MonitorType    string  `json:"monitor_type"`
	Timestamp      string  `json:"timestamp"`
	Status         string  `json:"status"`
	ResponseTimeMs float64 `json:"response_time_ms"`
	FailedChecks   int     `json:"failed_checks"`
	CheckList      string  `json:"check_list,omitempty"`
	Details        string  `json:"details,omitempty"`
}

func toRow(result *types.Result) (*resultRow, error) {
	row := &resultRow{
		ID:             result.ID,
		MonitorID:      result.MonitorID,
		SpaceID:        result.SpaceID,
		MonitorType:    string(result.Type),
		Timestamp:      result.Timestamp.UTC().Format(time.RFC3339Nano),
		Status:         string(result.Status),
		ResponseTimeMs: result.ResponseTimeMs,
		FailedChecks:   result.FailedChecks,
	}
	if result.CheckList != nil {
		data, err := json.Marshal(result.CheckList)
		if err != nil {
			return nil, err
		}
		row.CheckList = string(data)
	}
	if result.Details != nil {
		data, err := json.Marshal(result.Details)
		if err != nil {
			return nil, err
		}
		row.Details = string(data)
	}
	return row, nil
}

func fromRow(row *resultRow) (*types.Result, error) {
	ts, err := time.Parse(time.RFC3339Nano, row.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("bad result timestamp %q: %w", row.Timestamp, err)
	}
	result := &types.Result{
		ID:             row.ID,
		MonitorID:      row.MonitorID,
		SpaceID:        row.SpaceID,
		Type:           types.MonitorType(row.MonitorType),
		Timestamp:      ts,
		Status:         types.MonitorStatus(row.Status),
		ResponseTimeMs: row.ResponseTimeMs,
		FailedChecks:   row.FailedChecks,
	}
	if row.CheckList != "" {
		if err := json.Unmarshal([]byte(row.CheckList), &result.CheckList); err != nil {
			return nil, err
		}
	}
	if row.Details != "" {
		if err := json.Unmarshal([]byte(row.Details), &result.Details); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// --- Space operations ---

// SaveSpace upserts a space by id. Space names are unique globally.
func (s *BoltStore) SaveSpace(space *types.Space) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSpaces)

		var conflict bool
		err := b.ForEach(func(k, v []byte) error {
			var existing types.Space
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if existing.Name == space.Name && existing.ID != space.ID {
				conflict = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if conflict {
			return fmt.Errorf("space %q: %w", space.Name, ErrConflict)
		}

		data, err := json.Marshal(space)
		if err != nil {
			return err
		}
		return b.Put([]byte(space.ID), data)
	})
}

func (s *BoltStore) GetSpace(id string) (*types.Space, error) {
	var space types.Space
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSpaces).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("space %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &space)
	})
	if err != nil {
		return nil, err
	}
	return &space, nil
}

func (s *BoltStore) GetSpaceByName(name string) (*types.Space, error) {
	var found *types.Space
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSpaces).ForEach(func(k, v []byte) error {
			var space types.Space
			if err := json.Unmarshal(v, &space); err != nil {
				return err
			}
			if space.Name == name {
				found = &space
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("space %q: %w", name, ErrNotFound)
	}
	return found, nil
}

func (s *BoltStore) ListSpaces() ([]*types.Space, error) {
	var spaces []*types.Space
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSpaces).ForEach(func(k, v []byte) error {
			var space types.Space
			if err := json.Unmarshal(v, &space); err != nil {
				return err
			}
			spaces = append(spaces, &space)
			return nil
		})
	})
	return spaces, err
}

// DeleteSpace removes a space, its monitors, and their results in one
// transaction.
func (s *BoltStore) DeleteSpace(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		spaces := tx.Bucket(bucketSpaces)
		if spaces.Get([]byte(id)) == nil {
			return fmt.Errorf("space %s: %w", id, ErrNotFound)
		}

		monitors := tx.Bucket(bucketMonitors)
		var monitorKeys [][]byte
		err := monitors.ForEach(func(k, v []byte) error {
			var m types.Monitor
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if m.SpaceID == id {
				monitorKeys = append(monitorKeys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range monitorKeys {
			if err := monitors.Delete(k); err != nil {
				return err
			}
		}

		if err := deleteResultsWhere(tx, func(row *resultRow) bool {
			return row.SpaceID == id
		}); err != nil {
			return err
		}

		return spaces.Delete([]byte(id))
	})
}

// --- Monitor operations ---

// SaveMonitor upserts a monitor by id. The monitor's space must exist and
// its name must be unique within the space. CreatedAt is preserved on
// update.
func (s *BoltStore) SaveMonitor(monitor *types.Monitor) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketSpaces).Get([]byte(monitor.SpaceID)) == nil {
			return fmt.Errorf("space %s: %w", monitor.SpaceID, ErrNotFound)
		}

		b := tx.Bucket(bucketMonitors)

		var conflict bool
		err := b.ForEach(func(k, v []byte) error {
			var existing types.Monitor
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if existing.Name == monitor.Name && existing.SpaceID == monitor.SpaceID && existing.ID != monitor.ID {
				conflict = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if conflict {
			return fmt.Errorf("monitor %q in space %s: %w", monitor.Name, monitor.SpaceID, ErrConflict)
		}

		if existing := b.Get([]byte(monitor.ID)); existing != nil {
			var prev types.Monitor
			if err := json.Unmarshal(existing, &prev); err != nil {
				return err
			}
			monitor.CreatedAt = prev.CreatedAt
		}

		data, err := json.Marshal(monitor)
		if err != nil {
			return err
		}
		return b.Put([]byte(monitor.ID), data)
	})
}

func (s *BoltStore) GetMonitor(id string) (*types.Monitor, error) {
	var monitor types.Monitor
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMonitors).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("monitor %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &monitor)
	})
	if err != nil {
		return nil, err
	}
	return &monitor, nil
}

func (s *BoltStore) GetMonitorByName(name, spaceID, spaceName string) (*types.Monitor, error) {
	if spaceName != "" && spaceID == "" {
		space, err := s.GetSpaceByName(spaceName)
		if err != nil {
			return nil, err
		}
		spaceID = space.ID
	}

	var found *types.Monitor
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMonitors).ForEach(func(k, v []byte) error {
			var m types.Monitor
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if m.Name != name {
				return nil
			}
			if spaceID != "" && m.SpaceID != spaceID {
				return nil
			}
			if found == nil {
				found = &m
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("monitor %q: %w", name, ErrNotFound)
	}
	return found, nil
}

func (s *BoltStore) ListMonitors() ([]*types.Monitor, error) {
	var monitors []*types.Monitor
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMonitors).ForEach(func(k, v []byte) error {
			var m types.Monitor
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			monitors = append(monitors, &m)
			return nil
		})
	})
	return monitors, err
}

func (s *BoltStore) GetMonitorsForSpace(spaceID string) ([]*types.Monitor, error) {
	monitors, err := s.ListMonitors()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Monitor
	for _, m := range monitors {
		if m.SpaceID == spaceID {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// DeleteMonitor removes a monitor and its results in one transaction.
func (s *BoltStore) DeleteMonitor(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMonitors)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("monitor %s: %w", id, ErrNotFound)
		}
		if err := deleteResultsWhere(tx, func(row *resultRow) bool {
			return row.MonitorID == id
		}); err != nil {
			return err
		}
		return b.Delete([]byte(id))
	})
}

func (s *BoltStore) UnhealthyMonitors(thresholdHours int) ([]*types.Monitor, error) {
	threshold := time.Now().Add(-time.Duration(thresholdHours) * time.Hour)

	monitors, err := s.ListMonitors()
	if err != nil {
		return nil, err
	}

	var unhealthy []*types.Monitor
	for _, m := range monitors {
		if m.LastCheckedAt == nil {
			continue
		}
		if m.Status == types.StatusOffline {
			continue
		}
		if m.LastHealthyAt == nil || m.LastHealthyAt.Before(threshold) {
			unhealthy = append(unhealthy, m)
		}
	}
	return unhealthy, nil
}

// --- Result operations ---

// SaveResult inserts a result. Results are never updated.
func (s *BoltStore) SaveResult(result *types.Result) error {
	row, err := toRow(result)
	if err != nil {
		return err
	}
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResults).Put(resultKey(result.Timestamp, result.ID), data)
	})
}

// ResultsForMonitor returns up to limit results, newest first.
func (s *BoltStore) ResultsForMonitor(monitorID string, limit int) ([]*types.Result, error) {
	return s.scanResults(limit, func(row *resultRow) bool {
		return row.MonitorID == monitorID
	})
}

// ResultsForSpace returns up to limit results, newest first.
func (s *BoltStore) ResultsForSpace(spaceID string, limit int) ([]*types.Result, error) {
	return s.scanResults(limit, func(row *resultRow) bool {
		return row.SpaceID == spaceID
	})
}

// scanResults walks the results bucket backwards (keys are time-ordered)
// collecting matches until limit is reached.
func (s *BoltStore) scanResults(limit int, match func(*resultRow) bool) ([]*types.Result, error) {
	var results []*types.Result
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketResults).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var row resultRow
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			if !match(&row) {
				continue
			}
			result, err := fromRow(&row)
			if err != nil {
				return err
			}
			results = append(results, result)
			if limit > 0 && len(results) >= limit {
				return nil
			}
		}
		return nil
	})
	return results, err
}

// deleteResultsWhere removes all result rows matching the predicate within
// the caller's transaction.
func deleteResultsWhere(tx *bolt.Tx, match func(*resultRow) bool) error {
	b := tx.Bucket(bucketResults)
	var keys [][]byte
	err := b.ForEach(func(k, v []byte) error {
		var row resultRow
		if err := json.Unmarshal(v, &row); err != nil {
			return err
		}
		if match(&row) {
			keys = append(keys, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// --- Retention ---

func healthyMatch(status string) bool {
	return status == string(types.StatusHealthy)
}

// CleanupPreview counts results older than the status-specific cutoffs.
func (s *BoltStore) CleanupPreview(keepHealthyDays, keepUnhealthyDays int) (*CleanupPreview, error) {
	now := time.Now()
	preview := &CleanupPreview{
		HealthyCutoff:   now.AddDate(0, 0, -keepHealthyDays),
		UnhealthyCutoff: now.AddDate(0, 0, -keepUnhealthyDays),
	}

	healthyCutoff := resultKey(preview.HealthyCutoff, "")
	unhealthyCutoff := resultKey(preview.UnhealthyCutoff, "")

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResults).ForEach(func(k, v []byte) error {
			var row resultRow
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			preview.TotalResults++
			if healthyMatch(row.Status) {
				if bytes.Compare(k, healthyCutoff) < 0 {
					preview.HealthyToDelete++
				}
			} else {
				if bytes.Compare(k, unhealthyCutoff) < 0 {
					preview.UnhealthyToDelete++
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	preview.TotalToDelete = preview.HealthyToDelete + preview.UnhealthyToDelete
	preview.RetentionAfterCleanup = preview.TotalResults - preview.TotalToDelete
	return preview, nil
}

// CleanupOldResults deletes results older than the status-specific cutoffs
// in batches, committing per batch so long retention runs do not hold the
// write lock.
func (s *BoltStore) CleanupOldResults(keepHealthyDays, keepUnhealthyDays, batchSize int) (*CleanupStats, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	start := time.Now()
	stats := &CleanupStats{}

	healthyCutoff := resultKey(start.AddDate(0, 0, -keepHealthyDays), "")
	unhealthyCutoff := resultKey(start.AddDate(0, 0, -keepUnhealthyDays), "")

	passes := []struct {
		cutoff  []byte
		healthy bool
		counter *int
	}{
		{healthyCutoff, true, &stats.HealthyDeleted},
		{unhealthyCutoff, false, &stats.UnhealthyDeleted},
	}

	for _, pass := range passes {
		for {
			deleted, err := s.deleteBatch(pass.cutoff, pass.healthy, batchSize)
			if err != nil {
				return stats, err
			}
			*pass.counter += deleted
			stats.BatchesProcessed++
			if deleted < batchSize {
				break
			}
		}
	}

	stats.TotalDeleted = stats.HealthyDeleted + stats.UnhealthyDeleted
	stats.DurationSeconds = time.Since(start).Seconds()
	return stats, nil
}

// deleteBatch removes up to batchSize rows older than cutoff whose healthy
// classification matches, in a single transaction.
func (s *BoltStore) deleteBatch(cutoff []byte, healthy bool, batchSize int) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResults)
		c := b.Cursor()
		var keys [][]byte
		for k, v := c.First(); k != nil && bytes.Compare(k, cutoff) < 0; k, v = c.Next() {
			var row resultRow
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			if healthyMatch(row.Status) != healthy {
				continue
			}
			keys = append(keys, append([]byte(nil), k...))
			if len(keys) >= batchSize {
				break
			}
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		deleted = len(keys)
		return nil
	})
	return deleted, err
}
