package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/uplook/uplook/pkg/config"
)

// Results commands

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect check results",
}

func printResults(resp map[string]any) {
	results, _ := resp["results"].([]any)
	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}
	fmt.Printf("%-25s  %-10s  %10s  %s\n", "TIMESTAMP", "STATUS", "TIME(MS)", "FAILED CHECKS")
	for _, raw := range results {
		r := raw.(map[string]any)
		fmt.Printf("%-25s  %-10s  %10.1f  %.0f\n",
			r["timestamp"], r["status"], r["response_time_ms"], r["failed_checks"])
	}
}

var resultsMonitorCmd = &cobra.Command{
	Use:   "monitor NAME",
	Short: "Show recent results for a monitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		params := map[string]any{"monitor_name": args[0], "limit": limit}
		if space, _ := cmd.Flags().GetString("space"); space != "" {
			params["space_name"] = space
		}
		resp, err := newClient().Call("get_monitor_results", params)
		if err != nil {
			return err
		}
		printResults(resp)
		return nil
	},
}

var resultsSpaceCmd = &cobra.Command{
	Use:   "space NAME",
	Short: "Show recent results across a space",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		resp, err := newClient().Call("get_space_results", map[string]any{
			"space_name": args[0],
			"limit":      limit,
		})
		if err != nil {
			return err
		}
		printResults(resp)
		return nil
	},
}

func init() {
	resultsCmd.AddCommand(resultsMonitorCmd)
	resultsCmd.AddCommand(resultsSpaceCmd)

	resultsMonitorCmd.Flags().Int("limit", 10, "Number of results")
	resultsMonitorCmd.Flags().String("space", "", "Space name to disambiguate the monitor name")
	resultsSpaceCmd.Flags().Int("limit", 10, "Number of results")
}

// Status command

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status and running monitors",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().Call("status", nil)
		if err != nil {
			return err
		}

		fmt.Printf("Daemon:  running (uptime %.0fs)\n", resp["uptime_seconds"])
		fmt.Printf("Running: %.0f monitor(s)\n", resp["running_count"])

		monitors, _ := resp["monitors"].([]any)
		for _, raw := range monitors {
			m := raw.(map[string]any)
			fmt.Printf("  %-20s  every %.0fs  next %s\n",
				m["name"], m["check_interval_seconds"], m["next_run_at"])
		}
		return nil
	},
}

// Job commands

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage system jobs",
}

var jobStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system job run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().Call("get_job_status", nil)
		if err != nil {
			return err
		}

		jobs, _ := resp["jobs"].([]any)
		fmt.Printf("%-14s  %-25s  %6s  %6s  %s\n", "JOB", "LAST RUN", "RUNS", "ERRORS", "SUCCESS")
		for _, raw := range jobs {
			j := raw.(map[string]any)
			lastRun := "never"
			if lr, ok := j["last_run"].(string); ok {
				lastRun = lr
			}
			fmt.Printf("%-14s  %-25s  %6.0f  %6.0f  %.1f%%\n",
				j["name"], lastRun, j["run_count"], j["error_count"], j["success_rate"])
		}
		return nil
	},
}

var jobRunCmd = &cobra.Command{
	Use:   "run NAME",
	Short: "Run a system job now (health_alert or data_cleanup)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().Call("run_job_manually", map[string]any{"job_name": args[0]})
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s\n", resp["message"])
		return nil
	},
}

var jobCleanupPreviewCmd = &cobra.Command{
	Use:   "cleanup-preview",
	Short: "Show what the next retention run would delete",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().Call("get_cleanup_preview", nil)
		if err != nil {
			return err
		}

		p := resp["preview"].(map[string]any)
		fmt.Printf("Total results:     %.0f\n", p["total_results"])
		fmt.Printf("Healthy expired:   %.0f\n", p["healthy_to_delete"])
		fmt.Printf("Unhealthy expired: %.0f\n", p["unhealthy_to_delete"])
		fmt.Printf("Would delete:      %.0f\n", p["total_to_delete"])
		fmt.Printf("Would keep:        %.0f\n", p["retention_after_cleanup"])
		return nil
	},
}

func init() {
	jobCmd.AddCommand(jobStatusCmd)
	jobCmd.AddCommand(jobRunCmd)
	jobCmd.AddCommand(jobCleanupPreviewCmd)
}

// Config commands

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect daemon configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configuration with credentials redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := config.NewManager(resolvedConfigPath())
		if err != nil {
			return err
		}
		cfg := mgr.Redacted()

		fmt.Println("Email:")
		if cfg.Email.Configured() {
			fmt.Printf("  Server:     %s:%d (TLS: %t)\n", cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.UseTLS)
			fmt.Printf("  Username:   %s\n", cfg.Email.Username)
			if cfg.Email.FromName != "" {
				fmt.Printf("  From:       %s\n", cfg.Email.FromName)
			}
			if cfg.Email.ConfiguredAt != "" {
				fmt.Printf("  Configured: %s\n", cfg.Email.ConfiguredAt)
			}
		} else {
			fmt.Println("  not configured")
		}
		fmt.Println("Health alerts:")
		fmt.Printf("  Enabled:   %t\n", cfg.HealthAlerts.Enabled)
		fmt.Printf("  Threshold: %dh unhealthy before digest\n", cfg.HealthAlerts.ThresholdHours)
		fmt.Printf("  Interval:  every %dm\n", cfg.HealthAlerts.CheckIntervalMinutes)
		fmt.Println("Data cleanup:")
		fmt.Printf("  Enabled:   %t\n", cfg.DataCleanup.Enabled)
		fmt.Printf("  Keep:      healthy %dd, unhealthy %dd\n",
			cfg.DataCleanup.HealthyRetentionDays, cfg.DataCleanup.UnhealthyRetentionDays)
		fmt.Printf("  Interval:  every %dh (batch %d)\n",
			cfg.DataCleanup.CleanupIntervalHours, cfg.DataCleanup.BatchSize)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

// Email commands

var emailCmd = &cobra.Command{
	Use:   "email",
	Short: "Configure email notifications",
}

var emailSetCmd = &cobra.Command{
	Use:   "set HOST:PORT",
	Short: "Set SMTP settings and reload the running daemon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, portStr, ok := strings.Cut(args[0], ":")
		if !ok {
			return fmt.Errorf("expected HOST:PORT")
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid port %q", portStr)
		}

		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		fromName, _ := cmd.Flags().GetString("from-name")
		noTLS, _ := cmd.Flags().GetBool("no-tls")

		mgr, err := config.NewManager(resolvedConfigPath())
		if err != nil {
			return err
		}
		if err := mgr.SetEmail(config.EmailConfig{
			SMTPHost: host,
			SMTPPort: port,
			Username: username,
			Password: password,
			UseTLS:   !noTLS,
			FromName: fromName,
		}); err != nil {
			return err
		}
		fmt.Println("✓ Email configuration saved")

		// Tell a running daemon to pick it up; not fatal when it is down.
		if resp, err := newClient().Call("reload_email_config", nil); err == nil {
			fmt.Printf("✓ %s\n", resp["message"])
		} else {
			fmt.Println("  (daemon not reachable; settings apply on next start)")
		}
		return nil
	},
}

var emailTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test email through the running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		params := map[string]any{}
		if to != "" {
			params["to"] = to
		}
		resp, err := newClient().Call("test_email", params)
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s\n", resp["message"])
		return nil
	},
}

var emailResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the email configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := config.NewManager(resolvedConfigPath())
		if err != nil {
			return err
		}
		if err := mgr.ResetEmail(); err != nil {
			return err
		}
		fmt.Println("✓ Email configuration cleared")
		if _, err := newClient().Call("reload_email_config", nil); err != nil {
			fmt.Println("  (daemon not reachable; change applies on next start)")
		}
		return nil
	},
}

func init() {
	emailCmd.AddCommand(emailSetCmd)
	emailCmd.AddCommand(emailTestCmd)
	emailCmd.AddCommand(emailResetCmd)

	emailSetCmd.Flags().String("username", "", "SMTP username (also the From address)")
	emailSetCmd.Flags().String("password", "", "SMTP password (stored encrypted)")
	emailSetCmd.Flags().String("from-name", "", "Display name for the From header")
	emailSetCmd.Flags().Bool("no-tls", false, "Disable STARTTLS")
	emailSetCmd.MarkFlagRequired("username")

	emailTestCmd.Flags().String("to", "", "Recipient (defaults to the SMTP username)")
}
