// Package compile is the public entry point of the hierarchy compilation
// engine. It drives validation, resolution, and dialect rendering, and
// returns generated scripts plus diagnostics as one structured result.
//
// Compilation is synchronous and stateless per request: a pure, CPU-bound
// pipeline over an immutable snapshot. Concurrent compilations of different
// projects need no coordination.
package compile

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/treeline-data/treeline/internal/dialect"
	"github.com/treeline-data/treeline/internal/model"
	"github.com/treeline-data/treeline/internal/resolve"
)

// Options configures one compilation request.
type Options struct {
	// Dialect names the registered backend to render with.
	Dialect string
	// Artifacts lists the requested artifact kinds. ALL expands to every
	// concrete kind.
	Artifacts []model.ArtifactKind
	// RefreshLag is the staleness bound for dynamic tables (default "1 hour").
	RefreshLag string
	// Now supplies the generation timestamp for dynamic-table headers.
	// Defaults to time.Now; tests inject a fixed clock. This is the only
	// ambient input in the whole pipeline and it surfaces in exactly one
	// comment line.
	Now func() time.Time
}

// GeneratedArtifact is one rendered SQL script.
type GeneratedArtifact struct {
	Kind        model.ArtifactKind
	Dialect     string
	Text        string
	Fingerprint string
}

// Result is the structured outcome of a compilation. Fatal model errors
// yield zero artifacts; diagnostics accompany otherwise-successful output.
type Result struct {
	Artifacts   []GeneratedArtifact
	Diagnostics []model.Diagnostic
	Errors      model.Errors
	Fingerprint string
}

// Ok reports whether compilation produced artifacts without fatal errors.
func (r *Result) Ok() bool { return len(r.Errors) == 0 }

// Compiler orchestrates validator, resolvers, and dialect backends.
type Compiler struct {
	logger *slog.Logger
}

// New creates a compiler. A nil logger discards output.
func New(logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compiler{logger: logger}
}

// Compile runs the full pipeline for one snapshot. Expected model problems
// come back inside Result.Errors; the returned error is reserved for caller
// mistakes (unknown dialect) and backend implementation bugs.
func (c *Compiler) Compile(snap model.Snapshot, opts Options) (*Result, error) {
	backend, ok := dialect.Get(opts.Dialect)
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q (available: %v)", opts.Dialect, dialect.List())
	}
	kinds := expandKinds(opts.Artifacts)
	if len(kinds) == 0 {
		return nil, fmt.Errorf("no artifact kinds requested")
	}

	c.logger.Debug("compiling project", "project", snap.Project, "dialect", opts.Dialect, "artifacts", len(kinds))

	vm, errs := model.Validate(snap)
	if len(errs) > 0 {
		c.logger.Debug("validation failed", "project", snap.Project, "errors", len(errs))
		return &Result{Errors: errs}, nil
	}

	filters, errs := resolve.ResolveFilters(vm)
	if len(errs) > 0 {
		return &Result{Errors: errs}, nil
	}

	order, errs := resolve.BuildEvaluationOrder(vm)
	if len(errs) > 0 {
		return &Result{Errors: errs}, nil
	}

	mappings := resolve.AggregateMappings(vm)

	result := &Result{}
	result.Diagnostics = append(result.Diagnostics, mappings.Diagnostics...)

	var fact *resolve.FactPlan
	if kindsContain(kinds, model.ArtifactFactTable) {
		fact = resolve.PlanFact(vm, mappings, vm.Variance)
		result.Diagnostics = append(result.Diagnostics, fact.Diagnostics...)
	}

	fingerprint, err := Fingerprint(vm)
	if err != nil {
		return nil, err
	}
	result.Fingerprint = fingerprint

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	for _, kind := range kinds {
		req := dialect.Request{
			Kind:       kind,
			Project:    snap.Project,
			Model:      vm,
			Filters:    filters,
			Order:      order,
			Mappings:   mappings,
			RefreshLag: opts.RefreshLag,
		}
		if kind == model.ArtifactFactTable {
			req.Fact = fact
		}
		if kind == model.ArtifactDynamicTable {
			req.Header = fmt.Sprintf("-- Project: %s | Generated: %s", snap.Project, now().UTC().Format(time.RFC3339))
		}

		text, err := backend.Render(req)
		if err != nil {
			if errors.Is(err, dialect.ErrUnsupportedArtifact) {
				result.Diagnostics = append(result.Diagnostics, model.Diagnostic{
					Kind:   model.DiagUnsupportedArtifact,
					Detail: fmt.Sprintf("dialect %s cannot produce %s", opts.Dialect, kind),
				})
				continue
			}
			return nil, fmt.Errorf("rendering %s for %s: %w", kind, opts.Dialect, err)
		}

		result.Artifacts = append(result.Artifacts, GeneratedArtifact{
			Kind:        kind,
			Dialect:     backend.Name(),
			Text:        text,
			Fingerprint: fingerprint,
		})
	}

	c.logger.Debug("compilation complete", "project", snap.Project, "artifacts", len(result.Artifacts), "diagnostics", len(result.Diagnostics))
	return result, nil
}

// expandKinds expands ALL and removes duplicates while preserving the
// generation order of model.ArtifactKinds.
func expandKinds(requested []model.ArtifactKind) []model.ArtifactKind {
	want := make(map[model.ArtifactKind]bool)
	for _, k := range requested {
		if k == model.ArtifactAll {
			for _, all := range model.ArtifactKinds {
				want[all] = true
			}
			continue
		}
		want[k] = true
	}
	var kinds []model.ArtifactKind
	for _, k := range model.ArtifactKinds {
		if want[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func kindsContain(kinds []model.ArtifactKind, k model.ArtifactKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}
