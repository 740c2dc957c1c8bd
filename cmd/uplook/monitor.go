package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Manage monitors",
}

// monitorRef builds the selector params shared by get/start/stop.
func monitorRef(cmd *cobra.Command, nameOrID string) map[string]any {
	params := map[string]any{}
	if byID, _ := cmd.Flags().GetBool("id"); byID {
		params["monitor_id"] = nameOrID
		return params
	}
	params["monitor_name"] = nameOrID
	if space, _ := cmd.Flags().GetString("space"); space != "" {
		params["space_name"] = space
	}
	return params
}

var monitorCreateURLCmd = &cobra.Command{
	Use:   "create-url NAME",
	Short: "Create a URL monitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		space, _ := cmd.Flags().GetString("space")
		url, _ := cmd.Flags().GetString("url")
		interval, _ := cmd.Flags().GetInt("interval")
		expected, _ := cmd.Flags().GetInt("expected-status")
		timeout, _ := cmd.Flags().GetInt("timeout")
		content, _ := cmd.Flags().GetString("content")
		noSSL, _ := cmd.Flags().GetBool("no-ssl-check")
		noRedirects, _ := cmd.Flags().GetBool("no-redirects")

		c := newClient()
		spaceResp, err := c.Call("get_space", map[string]any{"space_name": space})
		if err != nil {
			return err
		}
		spaceID := spaceResp["space"].(map[string]any)["id"]

		resp, err := c.Call("create_monitor", map[string]any{
			"monitor": map[string]any{
				"monitor_type":           "url",
				"name":                   args[0],
				"space_id":               spaceID,
				"url":                    url,
				"check_interval_seconds": interval,
				"expected_status_code":   expected,
				"timeout_seconds":        timeout,
				"check_content":          content,
				"check_ssl":              !noSSL,
				"follow_redirects":       !noRedirects,
			},
		})
		if err != nil {
			return err
		}

		monitor := resp["monitor"].(map[string]any)
		fmt.Printf("✓ %s\n", resp["message"])
		fmt.Printf("  ID: %s\n", monitor["id"])
		return nil
	},
}

var monitorCreateDBCmd = &cobra.Command{
	Use:   "create-db NAME",
	Short: "Create a database monitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		space, _ := cmd.Flags().GetString("space")
		dbType, _ := cmd.Flags().GetString("type")
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		database, _ := cmd.Flags().GetString("database")
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		interval, _ := cmd.Flags().GetInt("interval")
		query, _ := cmd.Flags().GetString("query")

		c := newClient()
		spaceResp, err := c.Call("get_space", map[string]any{"space_name": space})
		if err != nil {
			return err
		}
		spaceID := spaceResp["space"].(map[string]any)["id"]

		monitor := map[string]any{
			"monitor_type":           "database",
			"name":                   args[0],
			"space_id":               spaceID,
			"db_type":                dbType,
			"host":                   host,
			"port":                   port,
			"database":               database,
			"username":               username,
			"check_interval_seconds": interval,
		}
		if password != "" {
			monitor["password"] = password
		}
		if query != "" {
			monitor["test_query"] = query
		}

		resp, err := c.Call("create_monitor", map[string]any{"monitor": monitor})
		if err != nil {
			return err
		}

		created := resp["monitor"].(map[string]any)
		fmt.Printf("✓ %s\n", resp["message"])
		fmt.Printf("  ID: %s\n", created["id"])
		return nil
	},
}

var monitorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitors",
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]any{}
		if space, _ := cmd.Flags().GetString("space"); space != "" {
			resp, err := newClient().Call("get_space", map[string]any{"space_name": space})
			if err != nil {
				return err
			}
			params["space_id"] = resp["space"].(map[string]any)["id"]
		}

		resp, err := newClient().Call("list_monitors", params)
		if err != nil {
			return err
		}

		monitors, _ := resp["monitors"].([]any)
		if len(monitors) == 0 {
			fmt.Println("No monitors.")
			return nil
		}
		fmt.Printf("%-36s  %-20s  %-9s  %s\n", "ID", "NAME", "TYPE", "STATUS")
		for _, raw := range monitors {
			m := raw.(map[string]any)
			fmt.Printf("%-36s  %-20s  %-9s  %s\n", m["id"], m["name"], m["monitor_type"], m["status"])
		}
		return nil
	},
}

var monitorGetCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Show one monitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().Call("get_monitor", monitorRef(cmd, args[0]))
		if err != nil {
			return err
		}

		m := resp["monitor"].(map[string]any)
		fmt.Printf("Name:     %s\n", m["name"])
		fmt.Printf("ID:       %s\n", m["id"])
		fmt.Printf("Type:     %s\n", m["monitor_type"])
		fmt.Printf("Status:   %s\n", m["status"])
		fmt.Printf("Interval: %.0fs\n", m["check_interval_seconds"])
		if url, ok := m["url"].(string); ok && url != "" {
			fmt.Printf("URL:      %s\n", url)
		}
		if host, ok := m["host"].(string); ok && host != "" {
			fmt.Printf("Target:   %s://%s:%.0f/%s\n", m["db_type"], host, m["port"], m["database"])
		}
		if last, ok := m["last_checked_at"].(string); ok {
			fmt.Printf("Checked:  %s\n", last)
		}
		if last, ok := m["last_healthy_at"].(string); ok {
			fmt.Printf("Healthy:  %s\n", last)
		}
		return nil
	},
}

var monitorDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a monitor and its results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().Call("delete_monitor", map[string]any{"monitor_id": args[0]})
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s\n", resp["message"])
		return nil
	},
}

var monitorStartCmd = &cobra.Command{
	Use:   "start NAME",
	Short: "Start periodic checks for a monitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().Call("start_monitor", monitorRef(cmd, args[0]))
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s\n", resp["message"])
		return nil
	},
}

var monitorStopCmd = &cobra.Command{
	Use:   "stop NAME",
	Short: "Stop periodic checks for a monitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().Call("stop_monitor", monitorRef(cmd, args[0]))
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s\n", resp["message"])
		return nil
	},
}

var monitorUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Update monitor settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		monitor := map[string]any{"id": args[0]}
		stringFlags := map[string]string{
			"name":     "name",
			"url":      "url",
			"content":  "check_content",
			"password": "password",
			"query":    "test_query",
		}
		for flag, field := range stringFlags {
			if cmd.Flags().Changed(flag) {
				v, _ := cmd.Flags().GetString(flag)
				monitor[field] = v
			}
		}
		intFlags := map[string]string{
			"interval":        "check_interval_seconds",
			"expected-status": "expected_status_code",
			"timeout":         "timeout_seconds",
		}
		for flag, field := range intFlags {
			if cmd.Flags().Changed(flag) {
				v, _ := cmd.Flags().GetInt(flag)
				monitor[field] = v
			}
		}
		if len(monitor) == 1 {
			return fmt.Errorf("nothing to update")
		}

		resp, err := newClient().Call("update_monitor", map[string]any{"monitor": monitor})
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s\n", resp["message"])
		return nil
	},
}

func init() {
	monitorCmd.AddCommand(monitorCreateURLCmd)
	monitorCmd.AddCommand(monitorCreateDBCmd)
	monitorCmd.AddCommand(monitorListCmd)
	monitorCmd.AddCommand(monitorGetCmd)
	monitorCmd.AddCommand(monitorUpdateCmd)
	monitorCmd.AddCommand(monitorDeleteCmd)
	monitorCmd.AddCommand(monitorStartCmd)
	monitorCmd.AddCommand(monitorStopCmd)

	monitorCreateURLCmd.Flags().String("space", "", "Space name")
	monitorCreateURLCmd.Flags().String("url", "", "URL to check")
	monitorCreateURLCmd.Flags().Int("interval", 300, "Check interval in seconds")
	monitorCreateURLCmd.Flags().Int("expected-status", 200, "Expected HTTP status code")
	monitorCreateURLCmd.Flags().Int("timeout", 30, "Request timeout in seconds")
	monitorCreateURLCmd.Flags().String("content", "", "Required substring in the response body")
	monitorCreateURLCmd.Flags().Bool("no-ssl-check", false, "Skip TLS certificate inspection")
	monitorCreateURLCmd.Flags().Bool("no-redirects", false, "Do not follow redirects")
	monitorCreateURLCmd.MarkFlagRequired("space")
	monitorCreateURLCmd.MarkFlagRequired("url")

	monitorCreateDBCmd.Flags().String("space", "", "Space name")
	monitorCreateDBCmd.Flags().String("type", "", "Database type (postgresql, mysql, sqlserver)")
	monitorCreateDBCmd.Flags().String("host", "", "Database host")
	monitorCreateDBCmd.Flags().Int("port", 0, "Database port")
	monitorCreateDBCmd.Flags().String("database", "", "Database name")
	monitorCreateDBCmd.Flags().String("username", "", "Database user")
	monitorCreateDBCmd.Flags().String("password", "", "Database password (stored encrypted)")
	monitorCreateDBCmd.Flags().String("query", "", "Test query (default SELECT 1)")
	monitorCreateDBCmd.Flags().Int("interval", 300, "Check interval in seconds")
	monitorCreateDBCmd.MarkFlagRequired("space")
	monitorCreateDBCmd.MarkFlagRequired("type")
	monitorCreateDBCmd.MarkFlagRequired("host")
	monitorCreateDBCmd.MarkFlagRequired("port")
	monitorCreateDBCmd.MarkFlagRequired("database")
	monitorCreateDBCmd.MarkFlagRequired("username")

	monitorListCmd.Flags().String("space", "", "Only monitors in this space")

	for _, c := range []*cobra.Command{monitorGetCmd, monitorStartCmd, monitorStopCmd} {
		c.Flags().Bool("id", false, "Treat the argument as a monitor id")
		c.Flags().String("space", "", "Space name to disambiguate the monitor name")
	}

	monitorUpdateCmd.Flags().String("name", "", "New name")
	monitorUpdateCmd.Flags().String("url", "", "New URL")
	monitorUpdateCmd.Flags().String("content", "", "New required substring")
	monitorUpdateCmd.Flags().String("password", "", "New database password")
	monitorUpdateCmd.Flags().String("query", "", "New test query")
	monitorUpdateCmd.Flags().Int("interval", 0, "New check interval in seconds")
	monitorUpdateCmd.Flags().Int("expected-status", 0, "New expected status code")
	monitorUpdateCmd.Flags().Int("timeout", 0, "New timeout in seconds")
}
