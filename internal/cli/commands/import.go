package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/treeline-data/treeline/internal/export"
	"github.com/treeline-data/treeline/internal/model"
)

// NewImportCommand creates the import command.
func NewImportCommand() *cobra.Command {
	var (
		dir string
		to  string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a project from CSV files",
		Long: `Read hierarchy and mapping CSV files previously written by export,
validate the result, and write it as a snapshot JSON file.`,
		Example: `  # Import the SALES project from ./out into sales.json
  treeline import --project SALES --dir ./out --to sales.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImport(cmd, dir, to)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory holding the CSV files (default: out dir)")
	cmd.Flags().StringVar(&to, "to", "", "Snapshot JSON file to write (default: configured snapshot path)")
	return cmd
}

func runImport(cmd *cobra.Command, dir, to string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	if cfg.Project == "" {
		return fmt.Errorf("no project name configured (set project: in treeline.yaml or pass --project)")
	}
	if dir == "" {
		dir = cfg.OutDir
	}
	if to == "" {
		to = cfg.Snapshot
	}
	if to == "" {
		return fmt.Errorf("no destination (set snapshot: in treeline.yaml or pass --to)")
	}

	snap, err := export.ReadSnapshot(dir, cfg.Project)
	if err != nil {
		return err
	}

	if _, errs := model.Validate(snap); len(errs) > 0 {
		printModelErrors(errs)
		return fmt.Errorf("imported project is invalid: %d errors", len(errs))
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.WriteFile(to, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d nodes into %s\n", len(snap.Nodes), to)
	return nil
}
