package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/stokaro/trustboard/dbschema"
)

const postSelect = `SELECT p.id, p.title, p.content, p.category, p.writer, p.created, p.is_hidden, p.attachments,
	(SELECT COUNT(*) FROM post_comments c WHERE c.post_id = p.id) AS comment_count
	FROM posts p`

// Moderation actions accepted by ModeratePosts.
const (
	ModerationHide   = "hide"
	ModerationUnhide = "unhide"
	ModerationDelete = "delete"
)

func scanPost(s dbschema.Scanner) (Post, error) {
	var (
		p           Post
		created     dbschema.Time
		attachments sql.NullString
	)
	if err := s.Scan(&p.ID, &p.Title, &p.Content, &p.Category, &p.Writer, &created, &p.IsHidden, &attachments, &p.CommentCount); err != nil {
		return Post{}, err
	}
	p.Created = created.Time
	p.Attachments = decodeAttachments(attachments)
	return p, nil
}

// CreatePost inserts a post and returns its id.
func (s *Store) CreatePost(ctx context.Context, p NewPost) (int64, error) {
	attachments, err := encodeAttachments(p.Attachments)
	if err != nil {
		return 0, err
	}
	res, err := dbschema.Run(ctx, s.conn,
		"INSERT INTO posts (title, content, category, writer, created, is_hidden, attachments) VALUES (?, ?, ?, ?, ?, ?, ?)",
		p.Title, p.Content, p.Category, p.Writer, s.now(), false, attachments)
	if err != nil {
		return 0, fmt.Errorf("failed to create post: %w", err)
	}
	return res.LastInsertID, nil
}

// ListPosts returns posts newest first, each with its comment count.
func (s *Store) ListPosts(ctx context.Context, f PostFilter) ([]Post, error) {
	var (
		conds []string
		args  []any
	)
	if !f.IncludeHidden {
		conds = append(conds, "p.is_hidden = ?")
		args = append(args, false)
	}
	if f.Category != "" {
		conds = append(conds, "p.category = ?")
		args = append(args, f.Category)
	}
	if f.Writer != "" {
		conds = append(conds, "p.writer = ?")
		args = append(args, f.Writer)
	}
	limit := f.Limit
	if limit <= 0 || limit > MaxAdminPosts {
		limit = MaxPublicPosts
	}

	query := postSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY p.id DESC LIMIT %d", limit)

	posts, err := dbschema.All(ctx, s.conn, scanPost, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return posts, nil
}

// PostByID returns a post. Hidden posts are reported as absent unless
// includeHidden is set.
func (s *Store) PostByID(ctx context.Context, id int64, includeHidden bool) (Post, bool, error) {
	post, found, err := dbschema.Get(ctx, s.conn, scanPost, postSelect+" WHERE p.id = ?", id)
	if err != nil {
		return Post{}, false, fmt.Errorf("failed to get post %d: %w", id, err)
	}
	if !found || (post.IsHidden && !includeHidden) {
		return Post{}, false, nil
	}
	return post, true, nil
}

// UpdatePost replaces the title and content of a post.
func (s *Store) UpdatePost(ctx context.Context, id int64, title, content string) (bool, error) {
	res, err := dbschema.Run(ctx, s.conn, "UPDATE posts SET title = ?, content = ? WHERE id = ?", title, content, id)
	if err != nil {
		return false, fmt.Errorf("failed to update post %d: %w", id, err)
	}
	return res.RowsAffected > 0, nil
}

// SetPostHidden hides or reveals a post.
func (s *Store) SetPostHidden(ctx context.Context, id int64, hidden bool) (bool, error) {
	res, err := dbschema.Run(ctx, s.conn, "UPDATE posts SET is_hidden = ? WHERE id = ?", hidden, id)
	if err != nil {
		return false, fmt.Errorf("failed to update post %d: %w", id, err)
	}
	return res.RowsAffected > 0, nil
}

// DeletePost removes a post and its comments in one transaction. It returns
// the attachment paths of the deleted post so the caller can unlink them.
func (s *Store) DeletePost(ctx context.Context, id int64) ([]string, bool, error) {
	var (
		attachments []string
		deleted     bool
	)
	err := s.conn.InTx(ctx, func(tx *dbschema.Tx) error {
		paths, err := postAttachments(ctx, tx, []int64{id})
		if err != nil {
			return err
		}
		if _, err := dbschema.Run(ctx, tx, "DELETE FROM post_comments WHERE post_id = ?", id); err != nil {
			return err
		}
		res, err := dbschema.Run(ctx, tx, "DELETE FROM posts WHERE id = ?", id)
		if err != nil {
			return err
		}
		attachments, deleted = paths, res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to delete post %d: %w", id, err)
	}
	return attachments, deleted, nil
}

// ModeratePosts applies a moderation action to several posts in one
// transaction. It returns the number of posts affected and, for deletions,
// the attachment paths of the removed posts.
func (s *Store) ModeratePosts(ctx context.Context, ids []int64, action string) (int64, []string, error) {
	if len(ids) == 0 {
		return 0, []string{}, nil
	}
	in := inPlaceholders(len(ids))
	idArgs := int64Args(ids)

	var (
		affected    int64
		attachments = []string{}
	)
	err := s.conn.InTx(ctx, func(tx *dbschema.Tx) error {
		switch action {
		case ModerationHide, ModerationUnhide:
			args := append([]any{action == ModerationHide}, idArgs...)
			res, err := dbschema.Run(ctx, tx, "UPDATE posts SET is_hidden = ? WHERE id IN ("+in+")", args...)
			if err != nil {
				return err
			}
			affected = res.RowsAffected
		case ModerationDelete:
			var err error
			if attachments, err = postAttachments(ctx, tx, ids); err != nil {
				return err
			}
			if _, err := dbschema.Run(ctx, tx, "DELETE FROM post_comments WHERE post_id IN ("+in+")", idArgs...); err != nil {
				return err
			}
			res, err := dbschema.Run(ctx, tx, "DELETE FROM posts WHERE id IN ("+in+")", idArgs...)
			if err != nil {
				return err
			}
			affected = res.RowsAffected
		default:
			return fmt.Errorf("unknown moderation action %q", action)
		}
		return nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to moderate posts: %w", err)
	}
	return affected, attachments, nil
}

// SitemapPosts returns visible posts newest first.
func (s *Store) SitemapPosts(ctx context.Context, limit int) ([]SitemapEntry, error) {
	if limit <= 0 || limit > MaxSitemapEntries {
		limit = MaxSitemapEntries
	}
	query := fmt.Sprintf("SELECT id, created FROM posts WHERE is_hidden = ? ORDER BY created DESC, id DESC LIMIT %d", limit)
	entries, err := dbschema.All(ctx, s.conn, scanSitemapEntry, query, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list sitemap posts: %w", err)
	}
	return entries, nil
}

func postAttachments(ctx context.Context, ex dbschema.Executor, ids []int64) ([]string, error) {
	lists, err := dbschema.All(ctx, ex, func(s dbschema.Scanner) ([]string, error) {
		var raw sql.NullString
		if err := s.Scan(&raw); err != nil {
			return nil, err
		}
		return decodeAttachments(raw), nil
	}, "SELECT attachments FROM posts WHERE id IN ("+inPlaceholders(len(ids))+") ORDER BY id", int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	paths := []string{}
	for _, list := range lists {
		paths = append(paths, list...)
	}
	return paths, nil
}

func scanSitemapEntry(s dbschema.Scanner) (SitemapEntry, error) {
	var (
		e       SitemapEntry
		created dbschema.Time
	)
	if err := s.Scan(&e.ID, &created); err != nil {
		return SitemapEntry{}, err
	}
	e.Created = created.Time
	return e, nil
}
