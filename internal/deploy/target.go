// Package deploy executes compiled artifacts against live databases and
// records the outcome in deployment history.
package deploy

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config holds connection settings for a deployment target.
type Config struct {
	Host     string
	Port     int
	Database string
	Schema   string
	Username string
	Password string
	Options  map[string]string
}

// Target is a live database that compiled scripts can be applied to.
type Target interface {
	// Name returns the target's registered name.
	Name() string

	// Connect establishes the database connection.
	Connect(ctx context.Context, cfg Config) error

	// Exec applies one SQL script.
	Exec(ctx context.Context, script string) error

	// Close releases the connection.
	Close() error
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func() Target)
)

// RegisterTarget registers a target constructor by name. Called from init
// functions of target implementations.
func RegisterTarget(name string, fn func() Target) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = fn
}

// NewTarget constructs a registered target by name.
func NewTarget(name string) (Target, error) {
	registryMu.RLock()
	fn, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown target %q (available: %v)", name, TargetNames())
	}
	return fn(), nil
}

// TargetNames returns the sorted names of all registered targets.
func TargetNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
