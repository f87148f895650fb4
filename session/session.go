// Package session keeps server-side login state keyed by an opaque id that
// travels in a signed cookie.
package session

import (
	"context"
	"time"
)

// User is the identity stored in an authenticated session.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
}

// Store persists session records. Get reports found=false for unknown or
// expired ids.
type Store interface {
	Get(ctx context.Context, id string) (User, bool, error)
	Set(ctx context.Context, id string, user User, expires time.Time) error
	Destroy(ctx context.Context, id string) error
}

// Purger is implemented by stores that can drop expired records in bulk.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type contextKey struct{}

// NewContext returns a context carrying the session user.
func NewContext(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// FromContext returns the session user of an authenticated request.
func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(contextKey{}).(User)
	return u, ok
}
