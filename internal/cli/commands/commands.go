// Package commands implements the treeline subcommands.
package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/treeline-data/treeline/internal/config"
	"github.com/treeline-data/treeline/internal/model"
	"github.com/treeline-data/treeline/internal/state"
)

// Package-level config and logger, set by the root command before any
// subcommand runs.
var (
	currentConfig *config.Config
	currentLogger *slog.Logger
)

// SetCurrent stores the loaded configuration and logger for subcommands.
func SetCurrent(cfg *config.Config, logger *slog.Logger) {
	currentConfig = cfg
	currentLogger = logger
}

func getConfig() (*config.Config, error) {
	if currentConfig == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return currentConfig, nil
}

func getLogger() *slog.Logger {
	if currentLogger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return currentLogger
}

// loadSnapshot reads the project snapshot JSON named by the config. The
// --project flag overrides the project name embedded in the file.
func loadSnapshot(cfg *config.Config) (model.Snapshot, error) {
	var snap model.Snapshot
	if cfg.Snapshot == "" {
		return snap, fmt.Errorf("no snapshot file configured (set snapshot: in treeline.yaml or pass --snapshot)")
	}

	data, err := os.ReadFile(cfg.Snapshot)
	if err != nil {
		return snap, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("failed to parse snapshot %s: %w", cfg.Snapshot, err)
	}

	if cfg.Project != "" {
		snap.Project = cfg.Project
	}
	if snap.Project == "" {
		return snap, fmt.Errorf("snapshot has no project name")
	}
	return snap, nil
}

// artifactKinds parses artifact kind names from config.
func artifactKinds(names []string) ([]model.ArtifactKind, error) {
	known := map[model.ArtifactKind]bool{model.ArtifactAll: true}
	for _, k := range model.ArtifactKinds {
		known[k] = true
	}

	var kinds []model.ArtifactKind
	for _, name := range names {
		kind := model.ArtifactKind(strings.ToUpper(strings.TrimSpace(name)))
		if !known[kind] {
			return nil, fmt.Errorf("unknown artifact kind %q", name)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// openStore opens the deployment history store, creating its directory and
// running migrations as needed.
func openStore(cfg *config.Config) (*state.SQLiteStore, error) {
	if dir := filepath.Dir(cfg.StatePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore()
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// printModelErrors writes fatal model errors to stderr, one per line.
func printModelErrors(errs model.Errors) {
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "  error: %s\n", e.Error())
	}
}

// printDiagnostics writes non-fatal diagnostics to stderr, one per line.
func printDiagnostics(diags []model.Diagnostic) {
	for _, d := range diags {
		fmt.Fprintf(os.Stderr, "  warning: %s\n", d.String())
	}
}

// fileName sanitizes a name for use in generated file names.
func fileName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
