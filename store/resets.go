package store

import (
	"context"
	"fmt"
	"time"

	"github.com/stokaro/trustboard/dbschema"
)

// ReplaceResetToken drops every outstanding reset token of the user and
// stores tokenHash in their place.
func (s *Store) ReplaceResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	created := s.now()
	err := s.conn.InTx(ctx, func(tx *dbschema.Tx) error {
		if _, err := dbschema.Run(ctx, tx, "DELETE FROM password_resets WHERE user_id = ?", userID); err != nil {
			return err
		}
		_, err := dbschema.Run(ctx, tx,
			"INSERT INTO password_resets (user_id, token_hash, expires_at, created) VALUES (?, ?, ?, ?)",
			userID, tokenHash, expiresAt, created)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to store reset token for user %d: %w", userID, err)
	}
	return nil
}

// ResetTokenUser returns the user owning an unexpired token with the hash.
func (s *Store) ResetTokenUser(ctx context.Context, tokenHash string, now time.Time) (int64, bool, error) {
	userID, found, err := dbschema.Get(ctx, s.conn, func(sc dbschema.Scanner) (int64, error) {
		var id int64
		err := sc.Scan(&id)
		return id, err
	}, `SELECT user_id FROM password_resets
		WHERE token_hash = ? AND expires_at > ?
		ORDER BY id DESC
		LIMIT 1`, tokenHash, now)
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up reset token: %w", err)
	}
	return userID, found, nil
}

// RedeemResetToken sets the new password hash and invalidates every reset
// token of the user.
func (s *Store) RedeemResetToken(ctx context.Context, userID int64, passwordHash string) error {
	err := s.conn.InTx(ctx, func(tx *dbschema.Tx) error {
		if _, err := dbschema.Run(ctx, tx, "UPDATE users SET password_hash = ? WHERE id = ?", passwordHash, userID); err != nil {
			return err
		}
		_, err := dbschema.Run(ctx, tx, "DELETE FROM password_resets WHERE user_id = ?", userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to redeem reset token for user %d: %w", userID, err)
	}
	return nil
}

// CountResetTokens returns the number of reset tokens stored for the user.
func (s *Store) CountResetTokens(ctx context.Context, userID int64) (int64, error) {
	return dbschema.Count(ctx, s.conn, "SELECT COUNT(*) FROM password_resets WHERE user_id = ?", userID)
}

// PurgeExpiredResetTokens deletes tokens that expired before now.
func (s *Store) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := dbschema.Run(ctx, s.conn, "DELETE FROM password_resets WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge reset tokens: %w", err)
	}
	return res.RowsAffected, nil
}
