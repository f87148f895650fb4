package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stokaro/trustboard/core/clock"
	"github.com/stokaro/trustboard/dbschema"
)

// SQLStore keeps sessions in the sessions table.
type SQLStore struct {
	conn  *dbschema.DatabaseConnection
	clock clock.Clock
}

// NewSQLStore creates a store on a migrated connection.
func NewSQLStore(conn *dbschema.DatabaseConnection, clk clock.Clock) *SQLStore {
	if clk == nil {
		clk = clock.Real()
	}
	return &SQLStore{conn: conn, clock: clk}
}

func (s *SQLStore) Get(ctx context.Context, id string) (User, bool, error) {
	data, found, err := dbschema.Get(ctx, s.conn, func(sc dbschema.Scanner) (string, error) {
		var data string
		err := sc.Scan(&data)
		return data, err
	}, "SELECT data FROM sessions WHERE id = ? AND expires > ?", id, s.clock.Now())
	if err != nil {
		return User{}, false, fmt.Errorf("failed to load session: %w", err)
	}
	if !found {
		return User{}, false, nil
	}

	var u User
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return User{}, false, fmt.Errorf("failed to decode session: %w", err)
	}
	return u, true, nil
}

func (s *SQLStore) Set(ctx context.Context, id string, user User, expires time.Time) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	err = s.conn.InTx(ctx, func(tx *dbschema.Tx) error {
		if _, err := dbschema.Exec(ctx, tx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
			return err
		}
		_, err := dbschema.Exec(ctx, tx, "INSERT INTO sessions (id, user_id, data, expires) VALUES (?, ?, ?, ?)",
			id, user.ID, string(data), expires)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SQLStore) Destroy(ctx context.Context, id string) error {
	if _, err := dbschema.Exec(ctx, s.conn, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

// PurgeExpired deletes sessions that expired before now.
func (s *SQLStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := dbschema.Exec(ctx, s.conn, "DELETE FROM sessions WHERE expires <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return n, nil
}
