package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/uplook/uplook/pkg/config"
	"github.com/uplook/uplook/pkg/storage"
	"github.com/uplook/uplook/pkg/yamlio"
)

var yamlCmd = &cobra.Command{
	Use:   "yaml",
	Short: "Bulk import and export monitor definitions",
	Long: `Import and export spaces and monitors as YAML. These commands open
the data files directly, so stop the daemon before running them.`,
}

// openStore opens the bolt store directly. Fails while a daemon holds the
// database lock.
func openStore() (*storage.BoltStore, error) {
	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("cannot open data files (is the daemon running?): %w", err)
	}
	return store, nil
}

var yamlImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import spaces and monitors from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		mgr, err := config.NewManager(resolvedConfigPath())
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := yamlio.Import(store, mgr.Box(), data)
		if stats != nil {
			fmt.Printf("✓ Imported %d space(s), %d monitor(s)\n", stats.SpacesCreated, stats.MonitorsCreated)
			if stats.SpacesSkipped > 0 || stats.MonitorsSkipped > 0 {
				fmt.Printf("  Skipped %d existing space(s), %d existing monitor(s)\n",
					stats.SpacesSkipped, stats.MonitorsSkipped)
			}
		}
		return err
	},
}

var yamlExportCmd = &cobra.Command{
	Use:   "export [FILE]",
	Short: "Export all spaces and monitors as YAML (credentials omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		data, err := yamlio.Export(store)
		if err != nil {
			return err
		}

		if len(args) == 0 {
			fmt.Print(string(data))
			return nil
		}
		if err := os.WriteFile(args[0], data, 0o644); err != nil {
			return err
		}
		fmt.Printf("✓ Exported to %s\n", args[0])
		return nil
	},
}

var yamlSampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Print a starter YAML document",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print(string(yamlio.Sample()))
		return nil
	},
}

func init() {
	yamlCmd.AddCommand(yamlImportCmd)
	yamlCmd.AddCommand(yamlExportCmd)
	yamlCmd.AddCommand(yamlSampleCmd)
}
