package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/treeline-data/treeline/internal/export"
)

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export the project to CSV files",
		Long: `Write the project snapshot as CSV files in the output directory, one
file for hierarchy nodes and one for source mappings.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd)
		},
	}
}

func runExport(cmd *cobra.Command) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	snap, err := loadSnapshot(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	paths, err := export.WriteSnapshot(cfg.OutDir, snap)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, path := range paths {
		fmt.Fprintf(out, "  wrote %s\n", path)
	}
	fmt.Fprintf(out, "Exported %d nodes from %s\n", len(snap.Nodes), snap.Project)
	return nil
}
