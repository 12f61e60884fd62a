// Package migrate applies sequential schema migrations to decoded documents,
// upgrading from one version to the next.
package migrate

import (
	"fmt"
	"log/slog"
	"sort"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Document is a decoded configuration tree (TOML tables become nested maps).
type Document = map[string]any

// Migration represents a schema migration that upgrades a document from the
// prior version to Version.
type Migration struct {
	// Version is the schema version this migration produces.
	Version int
	// Description is a short human-readable label for log output.
	Description string
	// Upgrade rewrites doc in place.
	Upgrade func(doc Document) error
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Run applies migrations sequentially where fromVersion < m.Version, then
// stamps the reached version into doc["version"]. Returns the final version.
func Run(doc Document, fromVersion int, migrations []Migration) (int, error) {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})
	version := fromVersion
	for _, m := range sorted {
		if version >= m.Version {
			continue
		}
		slog.Info("applying migration", "version", m.Version, "description", m.Description)
		if err := m.Upgrade(doc); err != nil {
			return version, fmt.Errorf("migration to v%d failed: %w", m.Version, err)
		}
		version = m.Version
	}
	doc["version"] = int64(version)
	return version, nil
}

// NeedsMigration reports whether a document at fileVersion would have any
// migrations applied given the currentVersion and registered migrations.
func NeedsMigration(fileVersion, currentVersion int, migrations []Migration) bool {
	if fileVersion > currentVersion {
		return false
	}
	for _, m := range migrations {
		if fileVersion < m.Version {
			return true
		}
	}
	return false
}

// Table returns doc[key] as a nested table, creating it when absent.
// A non-table value under key is an error.
func Table(doc Document, key string) (Document, error) {
	v, ok := doc[key]
	if !ok {
		t := Document{}
		doc[key] = t
		return t, nil
	}
	t, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected table, got %T", key, v)
	}
	return t, nil
}
