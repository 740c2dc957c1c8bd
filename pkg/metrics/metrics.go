// Package metrics exposes the daemon's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ProbesTotal counts completed probes by monitor type and outcome.
	ProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uplook_probes_total",
		Help: "Completed probe executions by monitor type and result status.",
	}, []string{"type", "status"})

	// ProbeDuration observes probe latency by monitor type.
	ProbeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "uplook_probe_duration_seconds",
		Help:    "Probe execution latency by monitor type.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// MonitorsRunning tracks how many monitors are currently scheduled.
	MonitorsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "uplook_monitors_running",
		Help: "Monitors currently scheduled for periodic checks.",
	})

	// NotificationsTotal counts emails by kind (alert, recovery, digest, test).
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uplook_notifications_total",
		Help: "Notification emails sent by kind.",
	}, []string{"kind"})

	// JobRunsTotal counts system job executions by job name and outcome.
	JobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uplook_job_runs_total",
		Help: "System job executions by job and outcome.",
	}, []string{"job", "outcome"})

	// ResultsDeletedTotal counts result rows removed by retention cleanup.
	ResultsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uplook_results_deleted_total",
		Help: "Result rows removed by retention cleanup.",
	})
)

// RecordProbe updates the probe counters for one completed check.
func RecordProbe(monitorType, status string, durationSeconds float64) {
	ProbesTotal.WithLabelValues(monitorType, status).Inc()
	ProbeDuration.WithLabelValues(monitorType).Observe(durationSeconds)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
