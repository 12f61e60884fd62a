package migrate

import "fmt"

// Registry holds the version and migrations for a single schema target.
// Each target gets its own instance so that version numbers and migration
// lists are fully independent.
type Registry struct {
	// CurrentVersion is the latest schema version that this registry targets.
	CurrentVersion int
	// Migrations is the list of versioned upgrades. Exported so tests can
	// override the migration list for a given registry instance.
	Migrations []Migration
}

// Register appends a migration to the registry. It panics if a migration
// with the same version is already registered, or if the version is beyond
// CurrentVersion, preventing silent conflicts.
func (r *Registry) Register(m Migration) {
	if m.Version > r.CurrentVersion {
		panic(fmt.Sprintf("migrate: migration v%d exceeds current version %d", m.Version, r.CurrentVersion))
	}
	for _, existing := range r.Migrations {
		if existing.Version == m.Version {
			panic(fmt.Sprintf("migrate: duplicate migration version %d (description: %q)", m.Version, m.Description))
		}
	}
	r.Migrations = append(r.Migrations, m)
}

// NeedsMigration reports whether a document at fileVersion would have any
// migrations applied.
func (r *Registry) NeedsMigration(fileVersion int) bool {
	return NeedsMigration(fileVersion, r.CurrentVersion, r.Migrations)
}

// Run applies registered migrations sequentially where fromVersion < m.Version.
func (r *Registry) Run(doc Document, fromVersion int) (int, error) {
	return Run(doc, fromVersion, r.Migrations)
}

// Config is the migration registry for config.toml files. Version 2 turned
// the comma-separated watch lists of version 1 into TOML arrays.
var Config = &Registry{CurrentVersion: 2}
