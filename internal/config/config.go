// Package config provides project configuration loading for treeline.
//
// Configuration merges four layers, lowest priority first: built-in
// defaults, treeline.yaml, TREELINE_-prefixed environment variables, and
// explicitly-set command-line flags.
package config

import "fmt"

// Default configuration values.
const (
	DefaultDialect    = "snowflake"
	DefaultRefreshLag = "1 hour"
	DefaultStateFile  = ".treeline/state.db"
	DefaultOutDir     = "out"
)

// TargetConfig holds connection settings for a deployment target.
type TargetConfig struct {
	Type     string            `koanf:"type"`
	Host     string            `koanf:"host"`
	Port     int               `koanf:"port"`
	Database string            `koanf:"database"`
	Schema   string            `koanf:"schema"`
	User     string            `koanf:"user"`
	Password string            `koanf:"password"`
	Options  map[string]string `koanf:"options"`
}

// Config is the resolved project configuration.
type Config struct {
	// Project is the project name; it prefixes every generated object.
	Project string `koanf:"project"`

	// Snapshot is the path to the project snapshot JSON file.
	Snapshot string `koanf:"snapshot"`

	// Dialect selects the SQL dialect used for generation.
	Dialect string `koanf:"dialect"`

	// Artifacts lists the artifact kinds generated by default.
	Artifacts []string `koanf:"artifacts"`

	// RefreshLag is the staleness bound for dynamic tables.
	RefreshLag string `koanf:"refresh_lag"`

	// StatePath is the SQLite deployment-history database path.
	StatePath string `koanf:"state_path"`

	// OutDir receives generated SQL files and CSV exports.
	OutDir string `koanf:"out_dir"`

	Target *TargetConfig `koanf:"target"`

	Verbose bool `koanf:"verbose"`
}

// ApplyDefaults fills unset fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Dialect == "" {
		c.Dialect = DefaultDialect
	}
	if c.RefreshLag == "" {
		c.RefreshLag = DefaultRefreshLag
	}
	if c.StatePath == "" {
		c.StatePath = DefaultStateFile
	}
	if c.OutDir == "" {
		c.OutDir = DefaultOutDir
	}
	if len(c.Artifacts) == 0 {
		c.Artifacts = []string{"ALL"}
	}
}

// Validate checks structural constraints after defaults are applied.
// Dialect and artifact names are resolved against their registries later,
// at the point of use.
func (c *Config) Validate() error {
	if c.Dialect == "" {
		return fmt.Errorf("dialect must not be empty")
	}
	if c.OutDir == "" {
		return fmt.Errorf("out_dir must not be empty")
	}
	if c.Target != nil && (c.Target.Port < 0 || c.Target.Port > 65535) {
		return fmt.Errorf("target port %d out of range", c.Target.Port)
	}
	return nil
}
