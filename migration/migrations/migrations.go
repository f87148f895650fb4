// Package migrations holds the trustboard schema for every supported dialect.
//
// Table creation lives in per-dialect SQL files. Columns that older
// deployments received through ad hoc ALTER statements are added by a Go
// migration that tolerates their prior existence, so databases created by
// either path converge on the same schema.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/stokaro/trustboard/core/platform"
	"github.com/stokaro/trustboard/migration/migrator"
)

//go:embed sqlite/*.sql postgres/*.sql mysql/*.sql
var files embed.FS

// AddModerationColumnsVersion is the version of the additive column migration.
const AddModerationColumnsVersion = 5

var moderationColumns = []migrator.Column{
	{
		Table:   "posts",
		Name:    "is_hidden",
		Default: "BOOLEAN NOT NULL DEFAULT FALSE",
	},
	{
		Table:   "posts",
		Name:    "attachments",
		Default: "TEXT NOT NULL DEFAULT '[]'",
		Types:   map[string]string{platform.MySQL: "VARCHAR(4000) NOT NULL DEFAULT '[]'"},
	},
	{
		Table:   "companies",
		Name:    "is_certified",
		Default: "BOOLEAN NOT NULL DEFAULT FALSE",
	},
	{
		Table:   "companies",
		Name:    "certified_by",
		Default: "TEXT",
		Types: map[string]string{
			platform.Postgres: "VARCHAR(20)",
			platform.MySQL:    "VARCHAR(20) NULL",
		},
	},
	{
		Table:   "companies",
		Name:    "certified_at",
		Default: "DATETIME",
		Types: map[string]string{
			platform.Postgres: "TIMESTAMPTZ",
			platform.MySQL:    "DATETIME(3) NULL",
		},
	},
}

// FS returns the SQL migration files for the dialect.
func FS(dialect string) (fs.FS, error) {
	if !supported(dialect) {
		return nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}
	return fs.Sub(files, dialect)
}

// Provider returns every migration for the dialect in version order.
func Provider(dialect string) (migrator.MigrationProvider, error) {
	if !supported(dialect) {
		return nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}
	return migrator.NewDialectProvider(files, dialect,
		migrator.AddColumnsMigration(AddModerationColumnsVersion, "Add Moderation Columns", moderationColumns...),
	)
}

func supported(dialect string) bool {
	switch dialect {
	case platform.SQLite, platform.Postgres, platform.MySQL:
		return true
	}
	return false
}
