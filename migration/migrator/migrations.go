package migrator

import (
	"context"
	_ "embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/stokaro/trustboard/core/sqlutil"
	"github.com/stokaro/trustboard/dbschema"
)

//go:embed base/schema.sql
var migrationsSchemaSQL string

//go:embed base/get_version.sql
var getVersionSQL string

//go:embed base/record_migration.sql
var recordMigrationSQL string

//go:embed base/delete_migration.sql
var deleteMigrationSQL string

// MigrationFunc represents a migration function that operates on a database connection.
// Statements should go through conn.Writer() so they join the migration's transaction.
type MigrationFunc func(context.Context, *dbschema.DatabaseConnection) error

// SplitSQLStatements splits a SQL script into individual statements with comments removed.
// MySQL does not accept several statements in one Exec call.
func SplitSQLStatements(sql string) []string {
	statements := sqlutil.SplitSQLStatements(sqlutil.StripComments(sql))
	if statements == nil {
		return []string{}
	}
	return statements
}

// MigrationFuncFromSQLFilename returns a migration function that reads SQL from a file
// in the provided filesystem and executes it statement by statement
func MigrationFuncFromSQLFilename(filename string, fsys fs.FS) MigrationFunc {
	return func(ctx context.Context, conn *dbschema.DatabaseConnection) error {
		sql, err := fs.ReadFile(fsys, filename)
		if err != nil {
			return fmt.Errorf("failed to read migration file: %w", err)
		}
		return executeSQLStatements(ctx, conn, string(sql))
	}
}

// NoopMigrationFunc is a no-op migration function
func NoopMigrationFunc(_ context.Context, _ *dbschema.DatabaseConnection) error {
	return nil
}

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Up          MigrationFunc
	Down        MigrationFunc

	// NoTransaction runs the migration outside a transaction. Needed when a
	// statement is expected to fail and be ignored, which would otherwise
	// abort the surrounding transaction on Postgres.
	NoTransaction bool
}

// CreateMigrationFromSQL creates a migration from SQL strings
func CreateMigrationFromSQL(version int, description, upSQL, downSQL string) *Migration {
	return &Migration{
		Version:     version,
		Description: description,
		Up: func(ctx context.Context, conn *dbschema.DatabaseConnection) error {
			return executeSQLStatements(ctx, conn, upSQL)
		},
		Down: func(ctx context.Context, conn *dbschema.DatabaseConnection) error {
			return executeSQLStatements(ctx, conn, downSQL)
		},
	}
}

// AddColumnsMigration creates a migration that adds columns to existing tables,
// tolerating columns that are already present. Down drops them again.
func AddColumnsMigration(version int, description string, columns ...Column) *Migration {
	return &Migration{
		Version:       version,
		Description:   description,
		NoTransaction: true,
		Up: func(ctx context.Context, conn *dbschema.DatabaseConnection) error {
			for _, col := range columns {
				def := col.Definition(conn.Info().Dialect)
				if err := dbschema.AddColumnIfMissing(ctx, conn.Writer(), col.Table, def); err != nil {
					return err
				}
			}
			return nil
		},
		Down: func(ctx context.Context, conn *dbschema.DatabaseConnection) error {
			for i := len(columns) - 1; i >= 0; i-- {
				col := columns[i]
				stmt := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", col.Table, col.Name)
				if err := conn.Writer().ExecuteSQLContext(ctx, stmt); err != nil {
					return fmt.Errorf("failed to drop column %s.%s: %w", col.Table, col.Name, err)
				}
			}
			return nil
		},
	}
}

// Column describes a column added by AddColumnsMigration. Types holds the
// column type and constraints per dialect; Default is used for dialects
// without an entry.
type Column struct {
	Table   string
	Name    string
	Default string
	Types   map[string]string
}

// Definition returns the column definition for the dialect.
func (c Column) Definition(dialect string) string {
	if t, ok := c.Types[dialect]; ok {
		return c.Name + " " + t
	}
	return c.Name + " " + c.Default
}

// executeSQLStatements splits SQL into individual statements and executes them
func executeSQLStatements(ctx context.Context, conn *dbschema.DatabaseConnection, sql string) error {
	for _, stmt := range SplitSQLStatements(sql) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := conn.Writer().ExecuteSQLContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute SQL statement: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
