package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/uplook/uplook/pkg/client"
	"github.com/uplook/uplook/pkg/daemon"
	"github.com/uplook/uplook/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	dataDir    string
	socketPath string
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "uplook",
	Short: "Uplook - Self-hosted uptime and database monitoring",
	Long: `Uplook is a monitoring daemon that periodically probes HTTP endpoints
and relational databases, persists every result, and emails you when
something changes.

Monitors are grouped into spaces that share a notification list. The
daemon runs in the foreground or under a service manager; this same
binary doubles as the control client.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Uplook version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "Data directory")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "Control socket path (default <data-dir>/uplook.sock)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default <data-dir>/config.json)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(spaceCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(emailCmd)
	rootCmd.AddCommand(yamlCmd)
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".uplook")
	}
	return "./uplook-data"
}

func resolvedSocketPath() string {
	if socketPath != "" {
		return socketPath
	}
	return filepath.Join(dataDir, "uplook.sock")
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(dataDir, "config.json")
}

func newClient() *client.Client {
	return client.New(resolvedSocketPath())
}

// Daemon command

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the monitoring daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel, _ := cmd.Flags().GetString("log-level")
		logFile, _ := cmd.Flags().GetString("log-file")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		pidFile, _ := cmd.Flags().GetString("pid-file")

		log.Init(log.Config{
			Level:      log.Level(logLevel),
			JSONOutput: jsonLogs,
			FilePath:   logFile,
		})

		d, err := daemon.New(daemon.Options{
			DataDir:     dataDir,
			ConfigPath:  resolvedConfigPath(),
			SocketPath:  resolvedSocketPath(),
			PIDPath:     pidFile,
			MetricsAddr: metricsAddr,
		})
		if err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		return d.Run(sigCh)
	},
}

func init() {
	daemonCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	daemonCmd.Flags().String("log-file", "", "Also log to this rotating file")
	daemonCmd.Flags().Bool("json-logs", false, "Emit JSON logs instead of console output")
	daemonCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	daemonCmd.Flags().String("pid-file", "", "PID file path (default <data-dir>/uplook.pid)")
}
