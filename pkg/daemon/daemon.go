package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/uplook/uplook/pkg/api"
	"github.com/uplook/uplook/pkg/config"
	"github.com/uplook/uplook/pkg/log"
	"github.com/uplook/uplook/pkg/metrics"
	"github.com/uplook/uplook/pkg/notify"
	"github.com/uplook/uplook/pkg/probe"
	"github.com/uplook/uplook/pkg/scheduler"
	"github.com/uplook/uplook/pkg/storage"
)

// Options configure a daemon instance. Zero-value paths are derived from
// DataDir.
type Options struct {
	DataDir     string
	ConfigPath  string
	SocketPath  string
	PIDPath     string
	MetricsAddr string
}

func (o *Options) fillDefaults() {
	if o.DataDir == "" {
		o.DataDir = "/var/lib/uplook"
	}
	if o.ConfigPath == "" {
		o.ConfigPath = filepath.Join(o.DataDir, "config.json")
	}
	if o.SocketPath == "" {
		o.SocketPath = filepath.Join(o.DataDir, "uplook.sock")
	}
	if o.PIDPath == "" {
		o.PIDPath = filepath.Join(o.DataDir, "uplook.pid")
	}
}

// Daemon owns the full runtime: store, scheduler, control server, and the
// optional metrics listener.
type Daemon struct {
	opts      Options
	store     *storage.BoltStore
	cfg       *config.Manager
	mailer    *notify.Mailer
	scheduler *scheduler.Scheduler
	server    *api.Server
	metricsLn *http.Server
	logger    zerolog.Logger
}

// New builds a daemon but does not start anything.
func New(opts Options) (*Daemon, error) {
	opts.fillDefaults()

	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(opts.DataDir)
	if err != nil {
		return nil, err
	}

	cfg, err := config.NewManager(opts.ConfigPath)
	if err != nil {
		store.Close()
		return nil, err
	}

	mailer := notify.NewMailer()
	if settings, ok := cfg.EmailSettings(); ok {
		if err := mailer.Configure(settings); err != nil {
			log.Logger.Warn().Err(err).Msg("Invalid email settings in config")
		}
	}

	sched := scheduler.New(store, probe.New(cfg.Box()), mailer, cfg)

	router := api.NewRouter()
	api.NewHandlers(store, sched, cfg, mailer).Register(router)
	server := api.NewServer(opts.SocketPath, router)

	return &Daemon{
		opts:      opts,
		store:     store,
		cfg:       cfg,
		mailer:    mailer,
		scheduler: sched,
		server:    server,
		logger:    log.WithComponent("daemon"),
	}, nil
}

// Run starts everything and blocks until a termination signal arrives.
func (d *Daemon) Run(signals <-chan os.Signal) error {
	if err := d.writePIDFile(); err != nil {
		return err
	}
	defer d.removePIDFile()

	d.scheduler.Start()
	defer d.scheduler.Stop()

	resumed, err := d.scheduler.ResumeAll()
	if err != nil {
		d.logger.Warn().Err(err).Msg("Failed to resume monitors")
	} else if resumed > 0 {
		d.logger.Info().Int("monitors", resumed).Msg("Resumed monitors from previous run")
	}

	if err := d.server.Start(); err != nil {
		return err
	}
	defer d.server.Stop()

	if d.opts.MetricsAddr != "" {
		d.startMetrics()
		defer d.stopMetrics()
	}

	defer d.store.Close()

	d.logger.Info().Int("pid", os.Getpid()).Msg("Daemon started")

	for sig := range signals {
		switch sig {
		case syscall.SIGHUP:
			d.reload()
		case syscall.SIGINT, syscall.SIGTERM:
			d.logger.Info().Str("signal", sig.String()).Msg("Shutting down")
			return nil
		}
	}
	return nil
}

// reload re-reads the config file and reapplies email settings.
func (d *Daemon) reload() {
	d.logger.Info().Msg("Reloading configuration")
	if err := d.cfg.Reload(); err != nil {
		d.logger.Error().Err(err).Msg("Config reload failed")
		return
	}
	if settings, ok := d.cfg.EmailSettings(); ok {
		if err := d.mailer.Configure(settings); err != nil {
			d.logger.Warn().Err(err).Msg("Invalid email settings after reload")
		}
	}
}

func (d *Daemon) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	d.metricsLn = &http.Server{Addr: d.opts.MetricsAddr, Handler: mux}

	go func() {
		d.logger.Info().Str("addr", d.opts.MetricsAddr).Msg("Metrics listener started")
		if err := d.metricsLn.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.logger.Error().Err(err).Msg("Metrics listener failed")
		}
	}()
}

func (d *Daemon) stopMetrics() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = d.metricsLn.Shutdown(ctx)
}

// writePIDFile refuses to start when another live daemon owns the file.
func (d *Daemon) writePIDFile() error {
	if data, err := os.ReadFile(d.opts.PIDPath); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid > 0 {
			if processAlive(pid) {
				return fmt.Errorf("daemon already running with pid %d", pid)
			}
			d.logger.Warn().Int("pid", pid).Msg("Removing stale PID file")
		}
	}
	return os.WriteFile(d.opts.PIDPath, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func (d *Daemon) removePIDFile() {
	if err := os.Remove(d.opts.PIDPath); err != nil && !os.IsNotExist(err) {
		d.logger.Warn().Err(err).Msg("Failed to remove PID file")
	}
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
