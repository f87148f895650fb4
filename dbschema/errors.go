package dbschema

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	pgUniqueViolation = "23505"
	pgDuplicateColumn = "42701"

	mysqlDuplicateEntry  = 1062
	mysqlDuplicateColumn = 1060
)

// IsUniqueViolation reports whether err was caused by a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := postgresCode(err); ok {
		return code == pgUniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsDuplicateColumn reports whether err means an ADD COLUMN was already
// applied.
func IsDuplicateColumn(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := postgresCode(err); ok {
		return code == pgDuplicateColumn
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateColumn
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}

func postgresCode(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}
	return "", false
}

// AddColumnIfMissing runs ALTER TABLE ... ADD COLUMN and treats "column
// already exists" as success. Every other error is returned.
func AddColumnIfMissing(ctx context.Context, w *Writer, table, columnDef string) error {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, columnDef)
	if err := w.ExecuteSQLContext(ctx, stmt); err != nil {
		if IsDuplicateColumn(err) {
			return nil
		}
		return fmt.Errorf("failed to add column to %s: %w", table, err)
	}
	return nil
}
