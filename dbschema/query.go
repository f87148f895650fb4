package dbschema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stokaro/trustboard/core/platform"
	"github.com/stokaro/trustboard/core/sqlutil"
	"github.com/stokaro/trustboard/dbschema/types"
)

// SQLiteTimeLayout is the layout used to store timestamps in SQLite. It is
// fixed width so that string comparison matches chronological order.
const SQLiteTimeLayout = "2006-01-02 15:04:05.000"

// Executor is satisfied by *DatabaseConnection and *Tx. Statements passed to
// the helpers below are written with "?" placeholders regardless of dialect.
type Executor interface {
	Dialect() string
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Scanner is the common part of *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanFunc builds a value from the current row.
type ScanFunc[T any] func(Scanner) (T, error)

// Get returns the first row of the query. found is false when the query
// matched nothing.
func Get[T any](ctx context.Context, ex Executor, scan ScanFunc[T], query string, args ...any) (value T, found bool, err error) {
	row := ex.QueryRowContext(ctx, prepare(ex.Dialect(), query), convertArgs(ex.Dialect(), args)...)
	value, err = scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, fmt.Errorf("failed to query row: %w", err)
	}
	return value, true, nil
}

// All returns every row of the query in order. The result is never nil.
func All[T any](ctx context.Context, ex Executor, scan ScanFunc[T], query string, args ...any) ([]T, error) {
	rows, err := ex.QueryContext(ctx, prepare(ex.Dialect(), query), convertArgs(ex.Dialect(), args)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	result := make([]T, 0)
	for rows.Next() {
		value, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// Run executes a write statement. For INSERT statements the new row id is
// reported in LastInsertID; on Postgres a "RETURNING id" clause is appended
// when the statement has none.
func Run(ctx context.Context, ex Executor, query string, args ...any) (types.Result, error) {
	dialect := ex.Dialect()
	args = convertArgs(dialect, args)

	if dialect == platform.Postgres && sqlutil.IsInsert(query) {
		if !sqlutil.HasReturning(query) {
			query = sqlutil.AppendReturning(query, "id")
		}
		var id int64
		if err := ex.QueryRowContext(ctx, sqlutil.Rebind(query), args...).Scan(&id); err != nil {
			return types.Result{}, fmt.Errorf("failed to execute insert: %w", err)
		}
		return types.Result{LastInsertID: id, RowsAffected: 1}, nil
	}

	res, err := ex.ExecContext(ctx, prepare(dialect, query), args...)
	if err != nil {
		return types.Result{}, fmt.Errorf("failed to execute statement: %w", err)
	}

	var result types.Result
	if result.RowsAffected, err = res.RowsAffected(); err != nil {
		return types.Result{}, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if sqlutil.IsInsert(query) {
		if result.LastInsertID, err = res.LastInsertId(); err != nil {
			return types.Result{}, fmt.Errorf("failed to read inserted id: %w", err)
		}
	}
	return result, nil
}

// Exec executes a statement and reports only the affected row count. Use it
// for inserts into tables without an integer id column.
func Exec(ctx context.Context, ex Executor, query string, args ...any) (int64, error) {
	dialect := ex.Dialect()
	res, err := ex.ExecContext(ctx, prepare(dialect, query), convertArgs(dialect, args)...)
	if err != nil {
		return 0, fmt.Errorf("failed to execute statement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// Count runs a single-column integer query such as SELECT COUNT(*).
func Count(ctx context.Context, ex Executor, query string, args ...any) (int64, error) {
	n, _, err := Get(ctx, ex, func(s Scanner) (int64, error) {
		var n int64
		err := s.Scan(&n)
		return n, err
	}, query, args...)
	return n, err
}

func prepare(dialect, query string) string {
	if platform.UsesNumberedPlaceholders(dialect) {
		return sqlutil.Rebind(query)
	}
	return query
}

// convertArgs normalizes argument values so every backend stores the same
// representation. Times are stored in UTC; SQLite gets the fixed layout.
func convertArgs(dialect string, args []any) []any {
	if len(args) == 0 {
		return args
	}
	out := make([]any, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case time.Time:
			out[i] = convertTime(dialect, v)
		case *time.Time:
			if v == nil {
				out[i] = nil
			} else {
				out[i] = convertTime(dialect, *v)
			}
		default:
			out[i] = arg
		}
	}
	return out
}

func convertTime(dialect string, t time.Time) any {
	t = t.UTC()
	if dialect == platform.SQLite {
		return t.Format(SQLiteTimeLayout)
	}
	return t
}

// Time scans timestamp columns that drivers return as time.Time, string or
// []byte depending on the backend and column declaration.
type Time struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	SQLiteTimeLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Scan implements sql.Scanner.
func (t *Time) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (t *Time) parse(s string) error {
	if s == "" {
		t.Time, t.Valid = time.Time{}, false
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("cannot parse timestamp %q", s)
}
