package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var spaceCmd = &cobra.Command{
	Use:   "space",
	Short: "Manage spaces",
}

var spaceCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a new space",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		emails, _ := cmd.Flags().GetStringSlice("emails")

		resp, err := newClient().Call("create_space", map[string]any{
			"space": map[string]any{
				"name":                args[0],
				"description":         description,
				"notification_emails": emails,
			},
		})
		if err != nil {
			return err
		}

		space := resp["space"].(map[string]any)
		fmt.Printf("✓ %s\n", resp["message"])
		fmt.Printf("  ID: %s\n", space["id"])
		return nil
	},
}

var spaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List spaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().Call("list_spaces", nil)
		if err != nil {
			return err
		}

		spaces, _ := resp["spaces"].([]any)
		if len(spaces) == 0 {
			fmt.Println("No spaces.")
			return nil
		}
		for _, raw := range spaces {
			space := raw.(map[string]any)
			fmt.Printf("%-36s  %s\n", space["id"], space["name"])
			if desc, ok := space["description"].(string); ok && desc != "" {
				fmt.Printf("%-36s    %s\n", "", desc)
			}
		}
		return nil
	},
}

var spaceGetCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Show one space",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().Call("get_space", map[string]any{"space_name": args[0]})
		if err != nil {
			return err
		}

		space := resp["space"].(map[string]any)
		fmt.Printf("Name:        %s\n", space["name"])
		fmt.Printf("ID:          %s\n", space["id"])
		if desc, ok := space["description"].(string); ok && desc != "" {
			fmt.Printf("Description: %s\n", desc)
		}
		if emails, ok := space["notification_emails"].([]any); ok && len(emails) > 0 {
			fmt.Printf("Notify:      ")
			for i, e := range emails {
				if i > 0 {
					fmt.Print(", ")
				}
				fmt.Print(e)
			}
			fmt.Println()
		}
		fmt.Printf("Monitors:    %.0f\n", resp["monitor_count"])
		return nil
	},
}

var spaceUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Update a space",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		space := map[string]any{"id": args[0]}
		if cmd.Flags().Changed("name") {
			name, _ := cmd.Flags().GetString("name")
			space["name"] = name
		}
		if cmd.Flags().Changed("description") {
			description, _ := cmd.Flags().GetString("description")
			space["description"] = description
		}
		if cmd.Flags().Changed("emails") {
			emails, _ := cmd.Flags().GetStringSlice("emails")
			space["notification_emails"] = emails
		}
		if len(space) == 1 {
			return fmt.Errorf("nothing to update")
		}

		resp, err := newClient().Call("update_space", map[string]any{"space": space})
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s\n", resp["message"])
		return nil
	},
}

var spaceDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a space, its monitors, and their results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().Call("delete_space", map[string]any{"space_id": args[0]})
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s\n", resp["message"])
		return nil
	},
}

var spaceStartCmd = &cobra.Command{
	Use:   "start NAME",
	Short: "Start all monitors in a space",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().Call("start_space", map[string]any{"space_name": args[0]})
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s\n", resp["message"])
		return nil
	},
}

var spaceStopCmd = &cobra.Command{
	Use:   "stop NAME",
	Short: "Stop all monitors in a space",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().Call("stop_space", map[string]any{"space_name": args[0]})
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s\n", resp["message"])
		return nil
	},
}

func init() {
	spaceCmd.AddCommand(spaceCreateCmd)
	spaceCmd.AddCommand(spaceListCmd)
	spaceCmd.AddCommand(spaceGetCmd)
	spaceCmd.AddCommand(spaceUpdateCmd)
	spaceCmd.AddCommand(spaceDeleteCmd)
	spaceCmd.AddCommand(spaceStartCmd)
	spaceCmd.AddCommand(spaceStopCmd)

	spaceCreateCmd.Flags().String("description", "", "Space description")
	spaceCreateCmd.Flags().StringSlice("emails", nil, "Notification email addresses")

	spaceUpdateCmd.Flags().String("name", "", "New name")
	spaceUpdateCmd.Flags().String("description", "", "New description")
	spaceUpdateCmd.Flags().StringSlice("emails", nil, "New notification email addresses")
}
