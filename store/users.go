package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/stokaro/trustboard/dbschema"
)

// ErrDuplicate is returned when a unique column already holds the value.
var ErrDuplicate = errors.New("duplicate value")

const userColumns = "id, username, email, password_hash, is_admin, created"

func scanUser(s dbschema.Scanner) (User, error) {
	var (
		u       User
		created dbschema.Time
	)
	if err := s.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin, &created); err != nil {
		return User{}, err
	}
	u.Created = created.Time
	return u, nil
}

// CreateUser inserts a user. A taken username or email yields ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string, isAdmin bool) (User, error) {
	created := s.now()
	res, err := dbschema.Run(ctx, s.conn,
		"INSERT INTO users (email, username, password_hash, is_admin, created) VALUES (?, ?, ?, ?, ?)",
		email, username, passwordHash, isAdmin, created)
	if err != nil {
		if dbschema.IsUniqueViolation(err) {
			return User{}, fmt.Errorf("failed to create user %s: %w", username, ErrDuplicate)
		}
		return User{}, fmt.Errorf("failed to create user %s: %w", username, err)
	}
	return User{
		ID:           res.LastInsertID,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		IsAdmin:      isAdmin,
		Created:      created,
	}, nil
}

// UserByID looks a user up by id.
func (s *Store) UserByID(ctx context.Context, id int64) (User, bool, error) {
	return dbschema.Get(ctx, s.conn, scanUser, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

// UserByUsername looks a user up by username.
func (s *Store) UserByUsername(ctx context.Context, username string) (User, bool, error) {
	return dbschema.Get(ctx, s.conn, scanUser, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
}

// UserByEmail looks a user up by email.
func (s *Store) UserByEmail(ctx context.Context, email string) (User, bool, error) {
	return dbschema.Get(ctx, s.conn, scanUser, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
}

// ListUsers returns users newest first.
func (s *Store) ListUsers(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 || limit > MaxAdminUsers {
		limit = MaxAdminUsers
	}
	query := fmt.Sprintf("SELECT %s FROM users ORDER BY created DESC, id DESC LIMIT %d", userColumns, limit)
	users, err := dbschema.All(ctx, s.conn, scanUser, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// SetUserPassword replaces the password hash of a user.
func (s *Store) SetUserPassword(ctx context.Context, id int64, passwordHash string) (bool, error) {
	res, err := dbschema.Run(ctx, s.conn, "UPDATE users SET password_hash = ? WHERE id = ?", passwordHash, id)
	if err != nil {
		return false, fmt.Errorf("failed to update password of user %d: %w", id, err)
	}
	return res.RowsAffected > 0, nil
}

// SetUserAdmin sets the admin flag of a user.
func (s *Store) SetUserAdmin(ctx context.Context, id int64, isAdmin bool) (bool, error) {
	res, err := dbschema.Run(ctx, s.conn, "UPDATE users SET is_admin = ? WHERE id = ?", isAdmin, id)
	if err != nil {
		return false, fmt.Errorf("failed to update admin flag of user %d: %w", id, err)
	}
	return res.RowsAffected > 0, nil
}

// SetUserAdminByUsername sets the admin flag of the named user.
func (s *Store) SetUserAdminByUsername(ctx context.Context, username string, isAdmin bool) (bool, error) {
	user, found, err := s.UserByUsername(ctx, username)
	if err != nil || !found {
		return false, err
	}
	return s.SetUserAdmin(ctx, user.ID, isAdmin)
}

// DeleteUser removes a user with its reset tokens and sessions. Content the
// user wrote stays in place.
func (s *Store) DeleteUser(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := s.conn.InTx(ctx, func(tx *dbschema.Tx) error {
		if _, err := dbschema.Run(ctx, tx, "DELETE FROM password_resets WHERE user_id = ?", id); err != nil {
			return err
		}
		if _, err := dbschema.Run(ctx, tx, "DELETE FROM sessions WHERE user_id = ?", id); err != nil {
			return err
		}
		res, err := dbschema.Run(ctx, tx, "DELETE FROM users WHERE id = ?", id)
		if err != nil {
			return err
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete user %d: %w", id, err)
	}
	return deleted, nil
}

// EnsureAdmin creates an administrator account unless the username exists.
// It reports whether an account was created.
func (s *Store) EnsureAdmin(ctx context.Context, username, email, passwordHash string) (bool, error) {
	_, found, err := s.UserByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}
	if _, err := s.CreateUser(ctx, username, email, passwordHash, true); err != nil {
		// another process seeded it first
		if errors.Is(err, ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
