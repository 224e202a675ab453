package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show deployment history for the project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of deployments to show")
	return cmd
}

func runHistory(cmd *cobra.Command, limit int) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	if cfg.Project == "" {
		return fmt.Errorf("no project name configured (set project: in treeline.yaml or pass --project)")
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	deployments, err := store.ListDeployments(cfg.Project, limit)
	if err != nil {
		return err
	}
	if len(deployments) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No deployments recorded for %s\n", cfg.Project)
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"When", "Status", "Dialect", "Target", "Artifacts", "Fingerprint", "Error"})
	for _, d := range deployments {
		t.AppendRow(table.Row{
			d.CreatedAt.Format(time.RFC3339),
			d.Status,
			d.Dialect,
			d.Target,
			d.Artifacts,
			shortFingerprint(d.Fingerprint),
			d.Error,
		})
	}
	t.Render()
	return nil
}
