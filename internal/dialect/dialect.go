// Package dialect renders resolved hierarchy models into literal SQL text.
//
// Backends form a fixed, closed strategy set behind one interface, selected
// once per compilation request from the registry. Every backend is a pure
// function of its Request: no backend reads the clock, generates IDs, or
// touches any ambient state, so regenerating from an unchanged model yields
// byte-identical scripts. The one timestamped header line on dynamic-table
// scripts is built by the orchestrator and passed in via Request.Header.
package dialect

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/treeline-data/treeline/internal/model"
	"github.com/treeline-data/treeline/internal/resolve"
)

// ErrUnsupportedArtifact is returned when a backend cannot produce the
// requested artifact kind. The orchestrator converts it into a diagnostic
// rather than failing the whole request.
var ErrUnsupportedArtifact = errors.New("artifact kind not supported by dialect")

// Request carries the fully-resolved model for one artifact rendering.
type Request struct {
	Kind    model.ArtifactKind
	Project string

	Model    *model.ValidatedModel
	Filters  map[string]*resolve.ConditionTree
	Order    *resolve.EvaluationOrder
	Mappings *resolve.AggregatedMappings
	Fact     *resolve.FactPlan // set only for FACT_TABLE requests

	// RefreshLag is the staleness bound for continuously-refreshed tables,
	// e.g. "1 hour". Only dialects with a native primitive render it.
	RefreshLag string

	// Header is the pre-built generation comment for dynamic-table scripts.
	// It is the only non-reproducible line in any artifact.
	Header string
}

// Backend renders SQL artifacts for one target dialect.
type Backend interface {
	Name() string
	Render(req Request) (string, error)
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Backend)
)

// Register registers a backend in the global registry. Called by backend
// implementations in their init() functions.
func Register(b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[strings.ToLower(b.Name())] = b
}

// Get returns a backend by name.
func Get(name string) (Backend, bool) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	b, ok := backends[strings.ToLower(name)]
	return b, ok
}

// List returns all registered backend names (sorted).
func List() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
