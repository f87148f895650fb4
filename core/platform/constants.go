package platform

import (
	"strings"
)

const (
	Postgres = "postgres"
	MySQL    = "mysql"
	SQLite   = "sqlite"
)

// NormalizeDialect maps driver names and URL schemes onto one of the
// supported dialects. Unknown values yield an empty string.
func NormalizeDialect(dialect string) string {
	switch strings.ToLower(dialect) {
	case "pgx", "postgresql", "postgres":
		return Postgres
	case "mysql", "mariadb":
		return MySQL
	case "sqlite", "sqlite3", "file":
		return SQLite
	default:
		return ""
	}
}

// DialectFromURL infers the dialect of a connection string. Anything that
// does not carry a known scheme is treated as a SQLite file path.
func DialectFromURL(dbURL string) string {
	scheme, _, found := strings.Cut(dbURL, "://")
	if !found {
		return SQLite
	}
	return NormalizeDialect(scheme)
}

// UsesNumberedPlaceholders reports whether the dialect expects $1, $2, ...
// instead of ?.
func UsesNumberedPlaceholders(dialect string) bool {
	return dialect == Postgres
}
