package auth

import (
	"github.com/stokaro/trustboard/core/apperr"
	"github.com/stokaro/trustboard/session"
)

// Role is the capability a route requires.
type Role int

const (
	RoleAnonymous Role = iota
	RoleAuthenticated
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleAuthenticated:
		return "authenticated"
	case RoleAdmin:
		return "admin"
	default:
		return "anonymous"
	}
}

// Authorize checks a session identity against a required role. A nil user
// is anonymous.
func Authorize(u *session.User, required Role) error {
	switch required {
	case RoleAuthenticated:
		if u == nil {
			return apperr.Unauthorized(MsgLoginRequired)
		}
	case RoleAdmin:
		if u == nil || !u.IsAdmin {
			return apperr.Forbidden(MsgAdminRequired)
		}
	}
	return nil
}
