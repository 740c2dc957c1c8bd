package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/uplook/uplook/pkg/config"
	"github.com/uplook/uplook/pkg/jobs"
	"github.com/uplook/uplook/pkg/log"
	"github.com/uplook/uplook/pkg/metrics"
	"github.com/uplook/uplook/pkg/notify"
	"github.com/uplook/uplook/pkg/scheduler"
	"github.com/uplook/uplook/pkg/storage"
	"github.com/uplook/uplook/pkg/types"
)

// Handlers implements every control protocol action against the daemon's
// live components.
type Handlers struct {
	store     storage.Store
	scheduler *scheduler.Scheduler
	cfg       *config.Manager
	mailer    *notify.Mailer
	startedAt time.Time
	logger    zerolog.Logger
}

// NewHandlers wires the action handlers.
func NewHandlers(store storage.Store, sched *scheduler.Scheduler, cfg *config.Manager, mailer *notify.Mailer) *Handlers {
	return &Handlers{
		store:     store,
		scheduler: sched,
		cfg:       cfg,
		mailer:    mailer,
		startedAt: time.Now(),
		logger:    log.WithComponent("api"),
	}
}

// Register installs every action on the router.
func (h *Handlers) Register(r *Router) {
	// Monitors
	r.Handle("create_monitor", h.createMonitor)
	r.Handle("update_monitor", h.updateMonitor)
	r.Handle("delete_monitor", h.deleteMonitor)
	r.Handle("get_monitor", h.getMonitor)
	r.Handle("list_monitors", h.listMonitors)
	r.Handle("start_monitor", h.startMonitor)
	r.Handle("stop_monitor", h.stopMonitor)

	// Spaces
	r.Handle("create_space", h.createSpace)
	r.Handle("update_space", h.updateSpace)
	r.Handle("delete_space", h.deleteSpace)
	r.Handle("get_space", h.getSpace)
	r.Handle("list_spaces", h.listSpaces)
	r.Handle("start_space", h.startSpace)
	r.Handle("stop_space", h.stopSpace)

	// Results
	r.Handle("get_monitor_results", h.getMonitorResults)
	r.Handle("get_space_results", h.getSpaceResults)

	// System
	r.Handle("status", h.status)
	r.Handle("get_job_status", h.getJobStatus)
	r.Handle("run_job_manually", h.runJobManually)
	r.Handle("get_cleanup_preview", h.getCleanupPreview)
	r.Handle("reload_email_config", h.reloadEmailConfig)
	r.Handle("test_email", h.testEmail)
}

// storeError maps store sentinels onto protocol error envelopes.
func storeError(err error) Response {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return Error(err.Error())
	case errors.Is(err, storage.ErrConflict):
		return Error(err.Error())
	default:
		return Errorf("Internal error: %v", err)
	}
}

// --- Monitor selectors ---

// monitorSelector identifies a monitor by id, or by name optionally scoped
// to a space.
type monitorSelector struct {
	MonitorID   string `json:"monitor_id"`
	MonitorName string `json:"monitor_name"`
	SpaceID     string `json:"space_id"`
	SpaceName   string `json:"space_name"`
}

func (h *Handlers) resolveMonitor(sel monitorSelector) (*types.Monitor, error) {
	if sel.MonitorID != "" {
		return h.store.GetMonitor(sel.MonitorID)
	}
	if sel.MonitorName != "" {
		return h.store.GetMonitorByName(sel.MonitorName, sel.SpaceID, sel.SpaceName)
	}
	return nil, fmt.Errorf("monitor_id or monitor_name is required")
}

type spaceSelector struct {
	SpaceID   string `json:"space_id"`
	SpaceName string `json:"space_name"`
}

func (h *Handlers) resolveSpace(sel spaceSelector) (*types.Space, error) {
	if sel.SpaceID != "" {
		return h.store.GetSpace(sel.SpaceID)
	}
	if sel.SpaceName != "" {
		return h.store.GetSpaceByName(sel.SpaceName)
	}
	return nil, fmt.Errorf("space_id or space_name is required")
}

// --- Monitor actions ---

func (h *Handlers) createMonitor(raw json.RawMessage) Response {
	var req struct {
		Monitor json.RawMessage `json:"monitor"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || len(req.Monitor) == 0 {
		return Error("monitor object is required")
	}

	var header struct {
		Type types.MonitorType `json:"monitor_type"`
	}
	if err := json.Unmarshal(req.Monitor, &header); err != nil {
		return Error("Invalid monitor object")
	}

	var m *types.Monitor
	switch header.Type {
	case types.MonitorTypeURL:
		m = types.NewURLMonitor("", "", "")
	case types.MonitorTypeDatabase:
		m = types.NewDatabaseMonitor("", "", "", "", 0, "", "")
	default:
		return Errorf("Invalid monitor type: %q", header.Type)
	}

	// Overlay the request onto the defaults. The id the defaults generated
	// survives unless the request names one.
	id := m.ID
	created := m.CreatedAt
	if err := json.Unmarshal(req.Monitor, m); err != nil {
		return Error("Invalid monitor object")
	}
	if m.ID == "" {
		m.ID = id
	}
	m.CreatedAt = created
	m.Status = types.StatusOffline

	// A database password arrives in plaintext and is stored encrypted.
	if m.Type == types.MonitorTypeDatabase && m.EncryptedPassword != "" {
		encrypted, err := h.cfg.Box().Encrypt(m.EncryptedPassword)
		if err != nil {
			return Errorf("Failed to encrypt password: %v", err)
		}
		m.EncryptedPassword = encrypted
	}

	if err := m.Validate(); err != nil {
		return Error(err.Error())
	}
	if err := h.store.SaveMonitor(m); err != nil {
		return storeError(err)
	}

	h.logger.Info().Str("monitor_id", m.ID).Str("name", m.Name).Msg("Monitor created")
	return Success(fmt.Sprintf("Monitor %q created", m.Name), map[string]any{"monitor": m})
}

func (h *Handlers) updateMonitor(raw json.RawMessage) Response {
	var req struct {
		Monitor json.RawMessage `json:"monitor"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || len(req.Monitor) == 0 {
		return Error("monitor object is required")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(req.Monitor, &fields); err != nil {
		return Error("Invalid monitor object")
	}

	var id string
	if rawID, ok := fields["id"]; ok {
		_ = json.Unmarshal(rawID, &id)
	}
	if id == "" {
		return Error("monitor id is required")
	}

	m, err := h.store.GetMonitor(id)
	if err != nil {
		return storeError(err)
	}

	// A plaintext password in the update replaces the stored ciphertext.
	if rawPw, ok := fields["password"]; ok {
		var plaintext string
		if err := json.Unmarshal(rawPw, &plaintext); err != nil {
			return Error("Invalid password field")
		}
		delete(fields, "password")
		if plaintext != "" {
			encrypted, err := h.cfg.Box().Encrypt(plaintext)
			if err != nil {
				return Errorf("Failed to encrypt password: %v", err)
			}
			m.EncryptedPassword = encrypted
		}
	}

	// Immutable fields.
	delete(fields, "monitor_type")
	delete(fields, "created_at")
	delete(fields, "status")

	merged, err := json.Marshal(fields)
	if err != nil {
		return Errorf("Internal error: %v", err)
	}
	if err := json.Unmarshal(merged, m); err != nil {
		return Error("Invalid monitor object")
	}
	m.Touch()

	if err := m.Validate(); err != nil {
		return Error(err.Error())
	}
	if err := h.store.SaveMonitor(m); err != nil {
		return storeError(err)
	}
	if err := h.scheduler.Reschedule(m.ID); err != nil {
		h.logger.Warn().Str("monitor_id", m.ID).Err(err).Msg("Failed to reschedule after update")
	}

	return Success(fmt.Sprintf("Monitor %q updated", m.Name), map[string]any{"monitor": m})
}

func (h *Handlers) deleteMonitor(raw json.RawMessage) Response {
	var req struct {
		MonitorID string `json:"monitor_id"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.MonitorID == "" {
		return Error("monitor_id is required")
	}

	if err := h.scheduler.Unschedule(req.MonitorID); err != nil && !errors.Is(err, scheduler.ErrNotScheduled) {
		h.logger.Warn().Str("monitor_id", req.MonitorID).Err(err).Msg("Failed to stop monitor before delete")
	}
	if err := h.store.DeleteMonitor(req.MonitorID); err != nil {
		return storeError(err)
	}
	return Success("Monitor deleted", nil)
}

func (h *Handlers) getMonitor(raw json.RawMessage) Response {
	var sel monitorSelector
	if err := json.Unmarshal(raw, &sel); err != nil {
		return Error("Invalid request")
	}
	m, err := h.resolveMonitor(sel)
	if err != nil {
		return storeError(err)
	}
	return Success("", map[string]any{"monitor": m})
}

func (h *Handlers) listMonitors(raw json.RawMessage) Response {
	var req struct {
		SpaceID string `json:"space_id"`
	}
	_ = json.Unmarshal(raw, &req)

	var monitors []*types.Monitor
	var err error
	if req.SpaceID != "" {
		monitors, err = h.store.GetMonitorsForSpace(req.SpaceID)
	} else {
		monitors, err = h.store.ListMonitors()
	}
	if err != nil {
		return storeError(err)
	}
	if monitors == nil {
		monitors = []*types.Monitor{}
	}
	return Success("", map[string]any{"monitors": monitors, "count": len(monitors)})
}

func (h *Handlers) startMonitor(raw json.RawMessage) Response {
	var sel monitorSelector
	if err := json.Unmarshal(raw, &sel); err != nil {
		return Error("Invalid request")
	}
	m, err := h.resolveMonitor(sel)
	if err != nil {
		return storeError(err)
	}
	if h.scheduler.IsScheduled(m.ID) {
		return Errorf("Monitor %q is already running", m.Name)
	}
	if err := h.scheduler.Schedule(m.ID); err != nil {
		return storeError(err)
	}
	return Success(fmt.Sprintf("Monitoring started for %q", m.Name), map[string]any{"monitor_id": m.ID})
}

func (h *Handlers) stopMonitor(raw json.RawMessage) Response {
	var sel monitorSelector
	if err := json.Unmarshal(raw, &sel); err != nil {
		return Error("Invalid request")
	}
	m, err := h.resolveMonitor(sel)
	if err != nil {
		return storeError(err)
	}
	if err := h.scheduler.Unschedule(m.ID); err != nil {
		if errors.Is(err, scheduler.ErrNotScheduled) {
			return Errorf("Monitor %q is not running", m.Name)
		}
		return storeError(err)
	}
	return Success(fmt.Sprintf("Monitoring stopped for %q", m.Name), map[string]any{"monitor_id": m.ID})
}

// --- Space actions ---

func (h *Handlers) createSpace(raw json.RawMessage) Response {
	var req struct {
		Space struct {
			Name               string   `json:"name"`
			Description        string   `json:"description"`
			NotificationEmails []string `json:"notification_emails"`
		} `json:"space"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return Error("Invalid request")
	}
	if req.Space.Name == "" {
		return Error("space name is required")
	}

	space := types.NewSpace(req.Space.Name, req.Space.Description, req.Space.NotificationEmails)
	if err := h.store.SaveSpace(space); err != nil {
		return storeError(err)
	}

	h.logger.Info().Str("space_id", space.ID).Str("name", space.Name).Msg("Space created")
	return Success(fmt.Sprintf("Space %q created", space.Name), map[string]any{"space": space})
}

func (h *Handlers) updateSpace(raw json.RawMessage) Response {
	var req struct {
		Space json.RawMessage `json:"space"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || len(req.Space) == 0 {
		return Error("space object is required")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(req.Space, &fields); err != nil {
		return Error("Invalid space object")
	}
	var id string
	if rawID, ok := fields["id"]; ok {
		_ = json.Unmarshal(rawID, &id)
	}
	if id == "" {
		return Error("space id is required")
	}

	space, err := h.store.GetSpace(id)
	if err != nil {
		return storeError(err)
	}

	delete(fields, "created_at")
	merged, err := json.Marshal(fields)
	if err != nil {
		return Errorf("Internal error: %v", err)
	}
	if err := json.Unmarshal(merged, space); err != nil {
		return Error("Invalid space object")
	}
	space.Touch()

	if err := h.store.SaveSpace(space); err != nil {
		return storeError(err)
	}
	return Success(fmt.Sprintf("Space %q updated", space.Name), map[string]any{"space": space})
}

func (h *Handlers) deleteSpace(raw json.RawMessage) Response {
	var req struct {
		SpaceID string `json:"space_id"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.SpaceID == "" {
		return Error("space_id is required")
	}

	// Stop anything still running in the space before the cascade delete.
	if _, err := h.scheduler.StopAllInSpace(req.SpaceID); err != nil {
		h.logger.Warn().Str("space_id", req.SpaceID).Err(err).Msg("Failed to stop monitors before delete")
	}
	if err := h.store.DeleteSpace(req.SpaceID); err != nil {
		return storeError(err)
	}
	return Success("Space deleted", nil)
}

func (h *Handlers) getSpace(raw json.RawMessage) Response {
	var sel spaceSelector
	if err := json.Unmarshal(raw, &sel); err != nil {
		return Error("Invalid request")
	}
	space, err := h.resolveSpace(sel)
	if err != nil {
		return storeError(err)
	}
	monitors, err := h.store.GetMonitorsForSpace(space.ID)
	if err != nil {
		return storeError(err)
	}
	return Success("", map[string]any{"space": space, "monitor_count": len(monitors)})
}

func (h *Handlers) listSpaces(raw json.RawMessage) Response {
	spaces, err := h.store.ListSpaces()
	if err != nil {
		return storeError(err)
	}
	if spaces == nil {
		spaces = []*types.Space{}
	}
	return Success("", map[string]any{"spaces": spaces, "count": len(spaces)})
}

func (h *Handlers) startSpace(raw json.RawMessage) Response {
	var sel spaceSelector
	if err := json.Unmarshal(raw, &sel); err != nil {
		return Error("Invalid request")
	}
	space, err := h.resolveSpace(sel)
	if err != nil {
		return storeError(err)
	}
	started, err := h.scheduler.StartAllInSpace(space.ID)
	if err != nil {
		return storeError(err)
	}
	return Success(fmt.Sprintf("Started %d monitor(s) in %q", started, space.Name), map[string]any{"started": started})
}

func (h *Handlers) stopSpace(raw json.RawMessage) Response {
	var sel spaceSelector
	if err := json.Unmarshal(raw, &sel); err != nil {
		return Error("Invalid request")
	}
	space, err := h.resolveSpace(sel)
	if err != nil {
		return storeError(err)
	}
	stopped, err := h.scheduler.StopAllInSpace(space.ID)
	if err != nil {
		return storeError(err)
	}
	return Success(fmt.Sprintf("Stopped %d monitor(s) in %q", stopped, space.Name), map[string]any{"stopped": stopped})
}

// --- Result actions ---

const defaultResultLimit = 10

func (h *Handlers) getMonitorResults(raw json.RawMessage) Response {
	var req struct {
		monitorSelector
		Limit int `json:"limit"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return Error("Invalid request")
	}
	m, err := h.resolveMonitor(req.monitorSelector)
	if err != nil {
		return storeError(err)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultResultLimit
	}
	results, err := h.store.ResultsForMonitor(m.ID, limit)
	if err != nil {
		return storeError(err)
	}
	if results == nil {
		results = []*types.Result{}
	}
	return Success("", map[string]any{"results": results, "count": len(results)})
}

func (h *Handlers) getSpaceResults(raw json.RawMessage) Response {
	var req struct {
		spaceSelector
		Limit int `json:"limit"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return Error("Invalid request")
	}
	space, err := h.resolveSpace(req.spaceSelector)
	if err != nil {
		return storeError(err)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultResultLimit
	}
	results, err := h.store.ResultsForSpace(space.ID, limit)
	if err != nil {
		return storeError(err)
	}
	if results == nil {
		results = []*types.Result{}
	}
	return Success("", map[string]any{"results": results, "count": len(results)})
}

// --- System actions ---

func (h *Handlers) status(raw json.RawMessage) Response {
	running := h.scheduler.ListRunning("", "")
	return Success("", map[string]any{
		"running":        true,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"running_count":  len(running),
		"monitors":       running,
	})
}

func (h *Handlers) getJobStatus(raw json.RawMessage) Response {
	return Success("", map[string]any{"jobs": h.scheduler.JobStats()})
}

func (h *Handlers) runJobManually(raw json.RawMessage) Response {
	var req struct {
		JobName string `json:"job_name"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.JobName == "" {
		return Error("job_name is required")
	}
	if jobs.CanonicalName(req.JobName) == "" {
		return Errorf("Unknown job: %s", req.JobName)
	}
	if err := h.scheduler.RunJob(req.JobName); err != nil {
		return Errorf("Job failed: %v", err)
	}
	return Success(fmt.Sprintf("Job %q completed", jobs.CanonicalName(req.JobName)), nil)
}

func (h *Handlers) getCleanupPreview(raw json.RawMessage) Response {
	preview, err := h.scheduler.CleanupPreview()
	if err != nil {
		return Errorf("Failed to build preview: %v", err)
	}
	return Success("", map[string]any{"preview": preview})
}

func (h *Handlers) reloadEmailConfig(raw json.RawMessage) Response {
	if err := h.cfg.Reload(); err != nil {
		return Errorf("Failed to reload config: %v", err)
	}
	settings, ok := h.cfg.EmailSettings()
	if !ok {
		return Success("Config reloaded; email is not configured", nil)
	}
	if err := h.mailer.Configure(settings); err != nil {
		return Errorf("Failed to apply email settings: %v", err)
	}
	return Success("Email configuration reloaded", nil)
}

func (h *Handlers) testEmail(raw json.RawMessage) Response {
	var req struct {
		To string `json:"to"`
	}
	_ = json.Unmarshal(raw, &req)

	settings, ok := h.cfg.EmailSettings()
	if !ok {
		return Error("Email is not configured")
	}
	to := req.To
	if to == "" {
		to = settings.Username
	}

	subject, body := notify.BuildTestEmail()
	if err := h.mailer.Send([]string{to}, subject, body); err != nil {
		return Errorf("Failed to send test email: %v", err)
	}
	metrics.NotificationsTotal.WithLabelValues("test").Inc()
	return Success(fmt.Sprintf("Test email sent to %s", to), nil)
}
