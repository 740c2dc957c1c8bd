package probe

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/uplook/uplook/pkg/log"
	"github.com/uplook/uplook/pkg/security"
	"github.com/uplook/uplook/pkg/types"
)

// Prober executes a single check against a monitor's target and produces a
// result. It never returns an error: every failure mode is recorded in the
// result's details so callers can persist and notify uniformly.
type Prober struct {
	box    *security.Box
	logger zerolog.Logger
}

// New creates a Prober. The box decrypts stored database credentials.
func New(box *security.Box) *Prober {
	return &Prober{
		box:    box,
		logger: log.WithComponent("probe"),
	}
}

// Probe dispatches on the monitor type and runs the matching check.
func (p *Prober) Probe(ctx context.Context, m *types.Monitor) *types.Result {
	switch m.Type {
	case types.MonitorTypeURL:
		return p.checkURL(ctx, m)
	case types.MonitorTypeDatabase:
		return p.checkDatabase(ctx, m)
	default:
		p.logger.Error().Str("monitor_id", m.ID).Str("type", string(m.Type)).Msg("Unknown monitor type")
		result := types.NewResult(m)
		result.Status = types.StatusUnhealthy
		result.Details["error"] = types.CheckDetail{Error: msgUnexpected}
		result.FailedChecks = 1
		return result
	}
}

// fail records a failed check outcome and bumps the failure count.
func fail(result *types.Result, check string, detail types.CheckDetail) {
	result.Details[check] = detail
	result.FailedChecks++
}

func boolPtr(b bool) *bool { return &b }
