package deploy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/treeline-data/treeline/internal/compile"
	"github.com/treeline-data/treeline/internal/model"
	"github.com/treeline-data/treeline/internal/state"
)

// Options configures one deployment.
type Options struct {
	compile.Options

	// Force applies artifacts even when the model fingerprint matches the
	// last applied deployment.
	Force bool
}

// Outcome reports what a deployment did.
type Outcome struct {
	Status      state.DeploymentStatus
	Fingerprint string
	Applied     int
	Diagnostics []model.Diagnostic
}

// Runner compiles a snapshot and applies the result to a target, recording
// every attempt in deployment history.
type Runner struct {
	compiler *compile.Compiler
	store    state.Store
	target   Target
	logger   *slog.Logger
}

// NewRunner creates a deployment runner. A nil logger discards output.
func NewRunner(compiler *compile.Compiler, store state.Store, target Target, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{compiler: compiler, store: store, target: target, logger: logger}
}

// Deploy compiles the snapshot and applies its artifacts. An unchanged
// fingerprint skips execution unless opts.Force is set. Fatal model errors
// are returned as an error carrying the full list.
func (r *Runner) Deploy(ctx context.Context, snap model.Snapshot, opts Options) (*Outcome, error) {
	result, err := r.compiler.Compile(snap, opts.Options)
	if err != nil {
		return nil, err
	}
	if !result.Ok() {
		return nil, fmt.Errorf("model has %d fatal errors, first: %w", len(result.Errors), result.Errors[0])
	}

	outcome := &Outcome{Fingerprint: result.Fingerprint, Diagnostics: result.Diagnostics}

	if !opts.Force {
		last, err := r.store.LatestFingerprint(snap.Project, opts.Dialect, r.target.Name())
		if err != nil {
			return nil, err
		}
		if last == result.Fingerprint {
			r.logger.Info("model unchanged, skipping deployment",
				"project", snap.Project, "fingerprint", result.Fingerprint)
			outcome.Status = state.StatusSkipped
			return outcome, r.record(snap.Project, opts, outcome, "")
		}
	}

	for _, artifact := range result.Artifacts {
		r.logger.Debug("applying artifact", "project", snap.Project, "kind", artifact.Kind)
		if err := r.target.Exec(ctx, artifact.Text); err != nil {
			outcome.Status = state.StatusFailed
			applyErr := fmt.Errorf("failed to apply %s: %w", artifact.Kind, err)
			if recErr := r.record(snap.Project, opts, outcome, applyErr.Error()); recErr != nil {
				r.logger.Error("failed to record deployment", "error", recErr)
			}
			return outcome, applyErr
		}
		outcome.Applied++
	}

	outcome.Status = state.StatusApplied
	r.logger.Info("deployment applied",
		"project", snap.Project, "artifacts", outcome.Applied, "fingerprint", result.Fingerprint)
	return outcome, r.record(snap.Project, opts, outcome, "")
}

func (r *Runner) record(project string, opts Options, outcome *Outcome, errMsg string) error {
	return r.store.RecordDeployment(&state.Deployment{
		Project:     project,
		Dialect:     opts.Dialect,
		Target:      r.target.Name(),
		Fingerprint: outcome.Fingerprint,
		Artifacts:   outcome.Applied,
		Status:      outcome.Status,
		Error:       errMsg,
	})
}
