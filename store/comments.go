package store

import (
	"context"
	"fmt"

	"github.com/stokaro/trustboard/dbschema"
)

const commentColumns = "id, post_id, content, writer, created"

func scanComment(s dbschema.Scanner) (Comment, error) {
	var (
		c       Comment
		created dbschema.Time
	)
	if err := s.Scan(&c.ID, &c.PostID, &c.Content, &c.Writer, &created); err != nil {
		return Comment{}, err
	}
	c.Created = created.Time
	return c, nil
}

// CreateComment inserts a comment on a post and returns it.
func (s *Store) CreateComment(ctx context.Context, postID int64, content, writer string) (Comment, error) {
	created := s.now()
	res, err := dbschema.Run(ctx, s.conn,
		"INSERT INTO post_comments (post_id, content, writer, created) VALUES (?, ?, ?, ?)",
		postID, content, writer, created)
	if err != nil {
		return Comment{}, fmt.Errorf("failed to create comment on post %d: %w", postID, err)
	}
	return Comment{
		ID:      res.LastInsertID,
		PostID:  postID,
		Content: content,
		Writer:  writer,
		Created: created,
	}, nil
}

// CommentsByPost returns the comments of a post oldest first.
func (s *Store) CommentsByPost(ctx context.Context, postID int64) ([]Comment, error) {
	comments, err := dbschema.All(ctx, s.conn, scanComment,
		"SELECT "+commentColumns+" FROM post_comments WHERE post_id = ? ORDER BY id ASC", postID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments of post %d: %w", postID, err)
	}
	return comments, nil
}

// DeleteComment removes a single comment.
func (s *Store) DeleteComment(ctx context.Context, id int64) (bool, error) {
	res, err := dbschema.Run(ctx, s.conn, "DELETE FROM post_comments WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete comment %d: %w", id, err)
	}
	return res.RowsAffected > 0, nil
}

// CommentsByWriter returns the comments a user wrote newest first, each with
// the title of its post.
func (s *Store) CommentsByWriter(ctx context.Context, writer string, limit int) ([]Comment, error) {
	if limit <= 0 || limit > MaxMyPageEntries {
		limit = MaxMyPageEntries
	}
	query := fmt.Sprintf(`SELECT c.id, c.post_id, c.content, c.writer, c.created, COALESCE(p.title, '')
		FROM post_comments c
		LEFT JOIN posts p ON p.id = c.post_id
		WHERE c.writer = ?
		ORDER BY c.id DESC
		LIMIT %d`, limit)
	comments, err := dbschema.All(ctx, s.conn, func(sc dbschema.Scanner) (Comment, error) {
		var (
			c       Comment
			created dbschema.Time
		)
		if err := sc.Scan(&c.ID, &c.PostID, &c.Content, &c.Writer, &created, &c.PostTitle); err != nil {
			return Comment{}, err
		}
		c.Created = created.Time
		return c, nil
	}, query, writer)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments of %s: %w", writer, err)
	}
	return comments, nil
}
