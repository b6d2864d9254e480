// Package migrate applies sequential schema migrations to on-disk data,
// upgrading from one version to the next. Each persisted format (config TOML,
// usage history JSON) owns an independent [Registry].
package migrate

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Migration upgrades raw file contents from the previous version to Version.
type Migration struct {
	// Version is the schema version this migration produces.
	Version int
	// Description is a short human-readable label for log output.
	Description string
	// Upgrade transforms data from the prior version to [Migration.Version].
	Upgrade func(data []byte) ([]byte, error)
}

// Registry holds the current version and migrations for one schema target.
type Registry struct {
	// Name identifies the target in log output and errors.
	Name string
	// CurrentVersion is the latest schema version this binary writes.
	CurrentVersion int
	// Migrations is the list of versioned upgrades, in any order.
	Migrations []Migration
}

// ErrNewerVersion is wrapped by [Registry.Upgrade] when a file was written by
// a newer build than this one.
var ErrNewerVersion = fmt.Errorf("written by a newer version")

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Run applies migrations sequentially where fromVersion < m.Version.
// Returns the transformed data, final version reached, and any error.
func Run(data []byte, fromVersion int, migrations []Migration) ([]byte, int, error) {
	sorted := slices.Clone(migrations)
	slices.SortFunc(sorted, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })

	version := fromVersion
	for _, m := range sorted {
		if version >= m.Version {
			continue
		}
		slog.Info("applying migration", "version", m.Version, "description", m.Description)
		out, err := m.Upgrade(data)
		if err != nil {
			return nil, version, fmt.Errorf("migration to v%d failed: %w", m.Version, err)
		}
		data, version = out, m.Version
	}
	return data, version, nil
}

// Register appends a migration. It panics on a duplicate version so that
// conflicting registrations fail at init time.
func (r *Registry) Register(m Migration) {
	if slices.ContainsFunc(r.Migrations, func(e Migration) bool { return e.Version == m.Version }) {
		panic(fmt.Sprintf("migrate: %s: duplicate migration version %d (%q)", r.Name, m.Version, m.Description))
	}
	r.Migrations = append(r.Migrations, m)
}

// NeedsMigration reports whether a file at fileVersion differs from the
// registry's current version.
func (r *Registry) NeedsMigration(fileVersion int) bool {
	return fileVersion != r.CurrentVersion
}

// Upgrade brings data written at fileVersion up to CurrentVersion. A zero
// fileVersion is treated as 1 (files written before versioning). Data from a
// newer version is rejected with [ErrNewerVersion] rather than downgraded.
func (r *Registry) Upgrade(data []byte, fileVersion int) ([]byte, error) {
	if fileVersion == 0 {
		fileVersion = 1
	}
	if fileVersion > r.CurrentVersion {
		return nil, fmt.Errorf("%s v%d: %w (this build supports v%d)", r.Name, fileVersion, ErrNewerVersion, r.CurrentVersion)
	}
	out, reached, err := Run(data, fileVersion, r.Migrations)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Name, err)
	}
	if reached < r.CurrentVersion && len(r.Migrations) > 0 {
		slog.Warn("migrations stopped short of current version", "target", r.Name, "reached", reached, "current", r.CurrentVersion)
	}
	return out, nil
}

// Config is the migration registry for config.toml files.
var Config = &Registry{Name: "config", CurrentVersion: 1}

// History is the migration registry for usage-history.json files.
var History = &Registry{Name: "usage history", CurrentVersion: 1}
