// Package forum implements posts and comments.
package forum

import (
	"context"
	"log/slog"

	"github.com/stokaro/trustboard/core/apperr"
	"github.com/stokaro/trustboard/core/sanitize"
	"github.com/stokaro/trustboard/store"
)

const (
	MsgEmptyPost       = "내용이 비어 있습니다"
	MsgPostNotFound    = "게시글을 찾을 수 없습니다."
	MsgBadPostID       = "잘못된 게시글 ID"
	MsgEmptyComment    = "댓글 내용을 입력해주세요."
	MsgCommentNotFound = "댓글을 찾을 수 없습니다."
	MsgBadCategory     = "잘못된 카테고리입니다"
)

const (
	DefaultTitle  = "(제목 없음)"
	TitleMaxLen   = 120
	ContentMaxLen = 8000
	CommentMaxLen = 2000
	CategoryFree  = "free"
)

// Categories lists the post categories accepted on create.
var Categories = []string{CategoryFree}

// Repository is the storage the service needs.
type Repository interface {
	CreatePost(ctx context.Context, p store.NewPost) (int64, error)
	ListPosts(ctx context.Context, f store.PostFilter) ([]store.Post, error)
	PostByID(ctx context.Context, id int64, includeHidden bool) (store.Post, bool, error)
	UpdatePost(ctx context.Context, id int64, title, content string) (bool, error)
	SetPostHidden(ctx context.Context, id int64, hidden bool) (bool, error)
	DeletePost(ctx context.Context, id int64) ([]string, bool, error)
	CreateComment(ctx context.Context, postID int64, content, writer string) (store.Comment, error)
	CommentsByPost(ctx context.Context, postID int64) ([]store.Comment, error)
	DeleteComment(ctx context.Context, id int64) (bool, error)
	CommentsByWriter(ctx context.Context, writer string, limit int) ([]store.Comment, error)
}

// AttachmentRemover deletes attachment files, logging rather than failing.
type AttachmentRemover interface {
	Remove(ctx context.Context, paths []string)
}

// Service implements the forum operations.
type Service struct {
	repo   Repository
	files  AttachmentRemover
	logger *slog.Logger
}

// NewService creates the forum service. files may be nil when attachments
// are not stored.
func NewService(repo Repository, files AttachmentRemover) *Service {
	return &Service{repo: repo, files: files, logger: slog.Default()}
}

// WithLogger sets the logger for the service
func (s *Service) WithLogger(l *slog.Logger) *Service {
	tmp := *s
	tmp.logger = l
	return &tmp
}

// PostInput is a post as submitted by a client.
type PostInput struct {
	Title       string
	Content     string
	Category    string
	Attachments []string
}

// Create stores a new post written by writer. The attachments are removed
// again when the post is rejected.
func (s *Service) Create(ctx context.Context, writer string, in PostInput) (id int64, err error) {
	defer func() {
		if err != nil {
			s.removeFiles(ctx, in.Attachments)
		}
	}()

	title, content, err := normalizePost(in.Title, in.Content)
	if err != nil {
		return 0, err
	}
	category, ok := sanitize.OneOf(in.Category, CategoryFree, Categories...)
	if !ok {
		return 0, apperr.Validation(MsgBadCategory)
	}
	attachments := in.Attachments
	if attachments == nil {
		attachments = []string{}
	}

	id, err = s.repo.CreatePost(ctx, store.NewPost{
		Title:       title,
		Content:     content,
		Category:    category,
		Writer:      writer,
		Attachments: attachments,
	})
	if err != nil {
		return 0, apperr.Internal(err)
	}
	s.logger.Info("Post created", "id", id, "writer", writer, "attachments", len(attachments))
	return id, nil
}

// List returns visible posts newest first, optionally in one category.
func (s *Service) List(ctx context.Context, category string) ([]store.Post, error) {
	category, ok := sanitize.Filter(category, Categories...)
	if !ok {
		return nil, apperr.Validation(MsgBadCategory)
	}
	posts, err := s.repo.ListPosts(ctx, store.PostFilter{Category: category, Limit: store.MaxPublicPosts})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return posts, nil
}

// Get returns a visible post with its comments oldest first.
func (s *Service) Get(ctx context.Context, id int64) (store.Post, []store.Comment, error) {
	post, err := s.visiblePost(ctx, id)
	if err != nil {
		return store.Post{}, nil, err
	}
	comments, err := s.repo.CommentsByPost(ctx, id)
	if err != nil {
		return store.Post{}, nil, apperr.Internal(err)
	}
	post.CommentCount = int64(len(comments))
	return post, comments, nil
}

// AddComment stores a comment on a visible post and returns it with the
// refreshed comment list.
func (s *Service) AddComment(ctx context.Context, postID int64, writer, content string) (store.Comment, []store.Comment, error) {
	content = sanitize.Multiline(content, CommentMaxLen)
	if content == "" {
		return store.Comment{}, nil, apperr.Validation(MsgEmptyComment)
	}
	if _, err := s.visiblePost(ctx, postID); err != nil {
		return store.Comment{}, nil, err
	}

	comment, err := s.repo.CreateComment(ctx, postID, content, writer)
	if err != nil {
		return store.Comment{}, nil, apperr.Internal(err)
	}
	comments, err := s.repo.CommentsByPost(ctx, postID)
	if err != nil {
		return store.Comment{}, nil, apperr.Internal(err)
	}
	return comment, comments, nil
}

// ListAll returns every post including hidden ones.
func (s *Service) ListAll(ctx context.Context) ([]store.Post, error) {
	posts, err := s.repo.ListPosts(ctx, store.PostFilter{IncludeHidden: true, Limit: store.MaxAdminPosts})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return posts, nil
}

// Hide removes a post from public views without deleting it.
func (s *Service) Hide(ctx context.Context, id int64) error {
	return s.setHidden(ctx, id, true)
}

// Unhide makes a hidden post public again.
func (s *Service) Unhide(ctx context.Context, id int64) error {
	return s.setHidden(ctx, id, false)
}

func (s *Service) setHidden(ctx context.Context, id int64, hidden bool) error {
	found, err := s.repo.SetPostHidden(ctx, id, hidden)
	if err != nil {
		return apperr.Internal(err)
	}
	if !found {
		return apperr.NotFound(MsgPostNotFound)
	}
	s.logger.Info("Post visibility changed", "id", id, "hidden", hidden)
	return nil
}

// Edit replaces the title and content of a post.
func (s *Service) Edit(ctx context.Context, id int64, title, content string) error {
	title, content, err := normalizePost(title, content)
	if err != nil {
		return err
	}
	found, err := s.repo.UpdatePost(ctx, id, title, content)
	if err != nil {
		return apperr.Internal(err)
	}
	if !found {
		return apperr.NotFound(MsgPostNotFound)
	}
	return nil
}

// Delete removes a post with its comments, then its attachment files.
func (s *Service) Delete(ctx context.Context, id int64) error {
	attachments, found, err := s.repo.DeletePost(ctx, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if !found {
		return apperr.NotFound(MsgPostNotFound)
	}
	s.removeFiles(ctx, attachments)
	s.logger.Info("Post deleted", "id", id, "attachments", len(attachments))
	return nil
}

// DeleteComment removes a single comment.
func (s *Service) DeleteComment(ctx context.Context, id int64) error {
	found, err := s.repo.DeleteComment(ctx, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if !found {
		return apperr.NotFound(MsgCommentNotFound)
	}
	return nil
}

// PostsBy returns the posts writer wrote, hidden ones included.
func (s *Service) PostsBy(ctx context.Context, writer string) ([]store.Post, error) {
	posts, err := s.repo.ListPosts(ctx, store.PostFilter{Writer: writer, IncludeHidden: true, Limit: store.MaxMyPageEntries})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return posts, nil
}

// CommentsBy returns the comments writer wrote with their post titles.
func (s *Service) CommentsBy(ctx context.Context, writer string) ([]store.Comment, error) {
	comments, err := s.repo.CommentsByWriter(ctx, writer, store.MaxMyPageEntries)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return comments, nil
}

func (s *Service) visiblePost(ctx context.Context, id int64) (store.Post, error) {
	post, found, err := s.repo.PostByID(ctx, id, false)
	if err != nil {
		return store.Post{}, apperr.Internal(err)
	}
	if !found {
		return store.Post{}, apperr.NotFound(MsgPostNotFound)
	}
	return post, nil
}

func (s *Service) removeFiles(ctx context.Context, paths []string) {
	if s.files != nil && len(paths) > 0 {
		s.files.Remove(ctx, paths)
	}
}

func normalizePost(title, content string) (string, string, error) {
	title = sanitize.Text(title, TitleMaxLen)
	if title == "" {
		title = DefaultTitle
	}
	content = sanitize.Text(content, ContentMaxLen)
	if content == "" {
		return "", "", apperr.Validation(MsgEmptyPost)
	}
	return title, content, nil
}
