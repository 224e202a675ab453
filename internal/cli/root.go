// Package cli provides the command-line interface for treeline.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/treeline-data/treeline/internal/cli/commands"
	"github.com/treeline-data/treeline/internal/config"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "treeline",
		Short: "Treeline - Hierarchy Compilation Engine",
		Long: `Treeline compiles financial hierarchy definitions into deployable,
dialect-specific SQL artifacts: hierarchy tables, per-group views, source
mappings, continuously-refreshed reporting tables, and fact tables.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelInfo
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			commands.SetCurrent(cfg, logger)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./treeline.yaml)")
	rootCmd.PersistentFlags().String("project", "", "Project name override")
	rootCmd.PersistentFlags().String("snapshot", "", "Path to project snapshot JSON")
	rootCmd.PersistentFlags().StringP("dialect", "d", "", "SQL dialect (snowflake|postgres|mysql)")
	rootCmd.PersistentFlags().StringSlice("artifacts", nil, "Artifact kinds to generate (default ALL)")
	rootCmd.PersistentFlags().String("refresh-lag", "", "Staleness bound for dynamic tables")
	rootCmd.PersistentFlags().String("state-path", "", "Path to deployment history database")
	rootCmd.PersistentFlags().String("out-dir", "", "Output directory for generated files")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	_ = rootCmd.RegisterFlagCompletionFunc("dialect", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"snowflake", "postgres", "mysql"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewCompileCommand())
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewDeployCommand())
	rootCmd.AddCommand(commands.NewExportCommand())
	rootCmd.AddCommand(commands.NewImportCommand())
	rootCmd.AddCommand(commands.NewHistoryCommand())
	rootCmd.AddCommand(commands.NewVersionCommand(Version, GitCommit))

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
