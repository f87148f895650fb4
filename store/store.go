// Package store is the repository layer over the relational store. Every
// statement is written once with "?" placeholders and executed through the
// dbschema query adapter, so the same code serves SQLite, Postgres and MySQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stokaro/trustboard/core/clock"
	"github.com/stokaro/trustboard/dbschema"
)

// Listing caps.
const (
	MaxPublicPosts     = 200
	MaxAdminPosts      = 1000
	MaxPublicCompanies = 100
	MaxAdminCompanies  = 1000
	MaxAdminUsers      = 1000
	MaxSitemapEntries  = 5000
	MaxMyPageEntries   = 200
)

// Store provides access to users, posts, comments, companies, reviews and
// password reset tokens.
type Store struct {
	conn   *dbschema.DatabaseConnection
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a store on an open, migrated connection. Insert timestamps are
// taken from clk.
func New(conn *dbschema.DatabaseConnection, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{
		conn:   conn,
		clock:  clk,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the store
func (s *Store) WithLogger(l *slog.Logger) *Store {
	tmp := *s
	tmp.logger = l
	return &tmp
}

// Conn returns the underlying connection.
func (s *Store) Conn() *dbschema.DatabaseConnection {
	return s.conn
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}

// inPlaceholders returns "?, ?, ?" for n values.
func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func encodeAttachments(paths []string) (string, error) {
	if len(paths) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(paths)
	if err != nil {
		return "", fmt.Errorf("failed to encode attachments: %w", err)
	}
	return string(b), nil
}

// decodeAttachments tolerates malformed values written by older versions.
func decodeAttachments(raw sql.NullString) []string {
	paths := []string{}
	if !raw.Valid || raw.String == "" {
		return paths
	}
	if err := json.Unmarshal([]byte(raw.String), &paths); err != nil || paths == nil {
		return []string{}
	}
	return paths
}

func nullableTime(t dbschema.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
