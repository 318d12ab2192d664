package relex

import (
	"os"
	"path/filepath"
	"runtime"
)

// Config holds all configuration for the relex pipeline.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.relex/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "relex". The file will be <DBName>.db inside the
	// storage directory (~/.relex/ or working dir).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.relex/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// Parallelism is the worker count used by Apply operations when the
	// caller does not override it. Defaults to the number of CPUs.
	Parallelism int `json:"parallelism" yaml:"parallelism"`

	// Split is the default logical partition tag for candidates.
	Split int `json:"split" yaml:"split"`

	// Filter policy for binary relations.
	SelfRelations      bool `json:"self_relations" yaml:"self_relations"`
	NestedRelations    bool `json:"nested_relations" yaml:"nested_relations"`
	SymmetricRelations bool `json:"symmetric_relations" yaml:"symmetric_relations"`

	// SchemaPath points at the YAML schema-definition file describing
	// mention types and relations. Empty means schemas are supplied
	// programmatically.
	SchemaPath string `json:"schema_path" yaml:"schema_path"`
}

// DefaultConfig returns a Config with sensible defaults.
// Database is stored in ~/.relex/relex.db by default. The filter defaults
// match the extraction engine's: self and nested relations suppressed,
// symmetric relations kept.
func DefaultConfig() Config {
	return Config{
		DBName:             "relex",
		StorageDir:         "home",
		Parallelism:        runtime.NumCPU(),
		Split:              0,
		SelfRelations:      false,
		NestedRelations:    false,
		SymmetricRelations: true,
	}
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "relex"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".relex", name+".db")
	}
}
