// Package admin implements the account and bulk moderation operations of
// the admin console.
package admin

import (
	"context"
	"log/slog"

	"github.com/stokaro/trustboard/core/apperr"
	"github.com/stokaro/trustboard/session"
	"github.com/stokaro/trustboard/store"
)

const (
	MsgSelfToggle      = "자신의 권한은 변경할 수 없습니다."
	MsgSelfDelete      = "자신을 삭제할 수 없습니다."
	MsgUserNotFound    = "사용자를 찾을 수 없습니다."
	MsgBadUserID       = "잘못된 사용자 ID"
	MsgNoPostsSelected = "선택된 게시글이 없습니다."
	MsgBadAction       = "잘못된 작업입니다."
)

// Repository is the storage the service needs.
type Repository interface {
	ListUsers(ctx context.Context, limit int) ([]store.User, error)
	UserByID(ctx context.Context, id int64) (store.User, bool, error)
	SetUserAdmin(ctx context.Context, id int64, isAdmin bool) (bool, error)
	SetUserAdminByUsername(ctx context.Context, username string, isAdmin bool) (bool, error)
	DeleteUser(ctx context.Context, id int64) (bool, error)
	ModeratePosts(ctx context.Context, ids []int64, action string) (int64, []string, error)
}

// AttachmentRemover deletes attachment files, logging rather than failing.
type AttachmentRemover interface {
	Remove(ctx context.Context, paths []string)
}

// Service implements the admin operations.
type Service struct {
	repo   Repository
	files  AttachmentRemover
	logger *slog.Logger
}

// NewService creates the admin service. files may be nil.
func NewService(repo Repository, files AttachmentRemover) *Service {
	return &Service{repo: repo, files: files, logger: slog.Default()}
}

// WithLogger sets the logger for the service
func (s *Service) WithLogger(l *slog.Logger) *Service {
	tmp := *s
	tmp.logger = l
	return &tmp
}

// Users lists every account.
func (s *Service) Users(ctx context.Context) ([]store.User, error) {
	users, err := s.repo.ListUsers(ctx, store.MaxAdminUsers)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return users, nil
}

// ToggleAdmin flips the admin flag of a user and returns the new value.
// Admins cannot change their own flag. Existing sessions of the target keep
// the flag they were created with until the user logs in again.
func (s *Service) ToggleAdmin(ctx context.Context, actor session.User, id int64) (bool, error) {
	if actor.ID == id {
		return false, apperr.InvalidOperation(MsgSelfToggle)
	}
	u, found, err := s.repo.UserByID(ctx, id)
	if err != nil {
		return false, apperr.Internal(err)
	}
	if !found {
		return false, apperr.NotFound(MsgUserNotFound)
	}

	next := !u.IsAdmin
	if found, err = s.repo.SetUserAdmin(ctx, id, next); err != nil {
		return false, apperr.Internal(err)
	}
	if !found {
		return false, apperr.NotFound(MsgUserNotFound)
	}
	s.logger.Info("Admin flag changed", "username", u.Username, "isAdmin", next, "by", actor.Username)
	return next, nil
}

// DeleteUser removes an account. Content the user wrote stays in place.
func (s *Service) DeleteUser(ctx context.Context, actor session.User, id int64) error {
	if actor.ID == id {
		return apperr.InvalidOperation(MsgSelfDelete)
	}
	found, err := s.repo.DeleteUser(ctx, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if !found {
		return apperr.NotFound(MsgUserNotFound)
	}
	s.logger.Info("User deleted", "id", id, "by", actor.Username)
	return nil
}

// SetAdmin grants or revokes the admin flag by username. It backs the
// command line promotion tools and has no self check.
func (s *Service) SetAdmin(ctx context.Context, username string, isAdmin bool) error {
	found, err := s.repo.SetUserAdminByUsername(ctx, username, isAdmin)
	if err != nil {
		return apperr.Internal(err)
	}
	if !found {
		return apperr.NotFound(MsgUserNotFound)
	}
	s.logger.Info("Admin flag changed", "username", username, "isAdmin", isAdmin)
	return nil
}

// Moderate applies hide, unhide or delete to several posts at once and
// returns how many posts were affected.
func (s *Service) Moderate(ctx context.Context, ids []int64, action string) (int64, error) {
	switch action {
	case store.ModerationHide, store.ModerationUnhide, store.ModerationDelete:
	default:
		return 0, apperr.Validation(MsgBadAction)
	}
	ids = uniquePositive(ids)
	if len(ids) == 0 {
		return 0, apperr.Validation(MsgNoPostsSelected)
	}

	affected, attachments, err := s.repo.ModeratePosts(ctx, ids, action)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	if s.files != nil && len(attachments) > 0 {
		s.files.Remove(ctx, attachments)
	}
	s.logger.Info("Posts moderated", "action", action, "requested", len(ids), "affected", affected)
	return affected, nil
}

func uniquePositive(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
