package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/treeline-data/treeline/internal/compile"
)

// NewCompileCommand creates the compile command.
func NewCompileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "Compile the project into SQL artifacts",
		Long: `Compile the project snapshot into dialect-specific SQL scripts and
write them to the output directory. Nothing is executed against a database.`,
		Example: `  # Compile all artifacts with the configured dialect
  treeline compile

  # Compile only the fact table for postgres
  treeline compile -d postgres --artifacts FACT_TABLE`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCompile(cmd)
		},
	}
}

func runCompile(cmd *cobra.Command) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	snap, err := loadSnapshot(cfg)
	if err != nil {
		return err
	}
	kinds, err := artifactKinds(cfg.Artifacts)
	if err != nil {
		return err
	}

	compiler := compile.New(getLogger())
	result, err := compiler.Compile(snap, compile.Options{
		Dialect:    cfg.Dialect,
		Artifacts:  kinds,
		RefreshLag: cfg.RefreshLag,
	})
	if err != nil {
		return err
	}
	if !result.Ok() {
		printModelErrors(result.Errors)
		return fmt.Errorf("compilation failed with %d errors", len(result.Errors))
	}
	printDiagnostics(result.Diagnostics)

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, artifact := range result.Artifacts {
		name := fmt.Sprintf("%s_%s.%s.sql", fileName(snap.Project), artifact.Kind, artifact.Dialect)
		path := filepath.Join(cfg.OutDir, name)
		if err := os.WriteFile(path, []byte(artifact.Text), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Fprintf(out, "  wrote %s\n", path)
	}

	fmt.Fprintf(out, "Compiled %d artifacts for %s (fingerprint %s)\n",
		len(result.Artifacts), snap.Project, shortFingerprint(result.Fingerprint))
	return nil
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
