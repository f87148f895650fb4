package migrator

import (
	"cmp"
	"fmt"
	"io/fs"
	"maps"
	"slices"
)

// MigrationProvider supplies migrations in ascending version order.
type MigrationProvider interface {
	Migrations() []*Migration
}

// RegisteredMigrationProvider holds migrations defined in code.
type RegisteredMigrationProvider struct {
	migrations []*Migration
}

// NewRegisteredMigrationProvider creates a provider holding migrations.
func NewRegisteredMigrationProvider(migrations ...*Migration) *RegisteredMigrationProvider {
	p := &RegisteredMigrationProvider{}
	for _, m := range migrations {
		p.Register(m)
	}
	return p
}

// Register inserts a migration, keeping version order.
func (p *RegisteredMigrationProvider) Register(migration *Migration) {
	i, _ := slices.BinarySearchFunc(p.migrations, migration.Version, func(m *Migration, v int) int {
		return cmp.Compare(m.Version, v)
	})
	p.migrations = slices.Insert(p.migrations, i, migration)
}

func (p *RegisteredMigrationProvider) Migrations() []*Migration {
	return p.migrations
}

// MergeMigrationProviders combines the migrations of several providers into one.
// Two migrations with the same version are an error.
func MergeMigrationProviders(providers ...MigrationProvider) (*RegisteredMigrationProvider, error) {
	seen := make(map[int]string)
	merged := NewRegisteredMigrationProvider()
	for _, p := range providers {
		for _, m := range p.Migrations() {
			if desc, ok := seen[m.Version]; ok {
				return nil, fmt.Errorf("duplicate migration version %d: %q and %q", m.Version, desc, m.Description)
			}
			seen[m.Version] = m.Description
			merged.Register(m)
		}
	}
	return merged, nil
}

// FSMigrationProvider reads NNNNNNNNNN_name.up.sql / .down.sql pairs from the
// top level of a filesystem. Subdirectories and other files are ignored.
type FSMigrationProvider struct {
	migrations []*Migration
}

// NewFSMigrationProvider loads the migrations of fsys. Every version needs
// both an up and a down file under the same name.
func NewFSMigrationProvider(fsys fs.FS) (*FSMigrationProvider, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		file, err := ParseMigrationFileName(e.Name())
		if err != nil {
			continue
		}

		m, ok := byVersion[file.Version]
		switch {
		case !ok:
			m = &Migration{Version: file.Version, Description: file.Name}
			byVersion[file.Version] = m
		case m.Description != file.Name:
			return nil, fmt.Errorf("migration %d has files named %q and %q", file.Version, m.Description, file.Name)
		}

		if file.Direction == "up" {
			m.Up = MigrationFuncFromSQLFilename(e.Name(), fsys)
		} else {
			m.Down = MigrationFuncFromSQLFilename(e.Name(), fsys)
		}
	}

	var incomplete []int
	for version, m := range byVersion {
		if m.Up == nil || m.Down == nil {
			incomplete = append(incomplete, version)
		}
	}
	if len(incomplete) > 0 {
		slices.Sort(incomplete)
		return nil, fmt.Errorf("incomplete migrations found (missing up or down files): %v", incomplete)
	}

	migrations := slices.SortedFunc(maps.Values(byVersion), func(a, b *Migration) int {
		return cmp.Compare(a.Version, b.Version)
	})
	return &FSMigrationProvider{migrations: migrations}, nil
}

func (p *FSMigrationProvider) Migrations() []*Migration {
	return p.migrations
}

// NewDialectProvider loads the SQL migrations kept in the dialect
// subdirectory of root and merges in the migrations defined in code.
func NewDialectProvider(root fs.FS, dialect string, registered ...*Migration) (*RegisteredMigrationProvider, error) {
	sub, err := fs.Sub(root, dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s migrations: %w", dialect, err)
	}
	sqlProvider, err := NewFSMigrationProvider(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s migrations: %w", dialect, err)
	}
	return MergeMigrationProviders(sqlProvider, NewRegisteredMigrationProvider(registered...))
}
