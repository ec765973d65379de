package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/wire"
)

const commentColumns = `
	c.id, c.review_id, c.user_id, c.content, c.created_at,
	COALESCE(p.id, ''), COALESCE(p.name, ''), COALESCE(p.avatar_url, '')`

// ListComments returns a review's comments joined with author profiles,
// newest first, ties broken by id.
//
// Returns an empty slice (not nil) if the review has no comments.
func (s *Store) ListComments(ctx context.Context, reviewID string) ([]wire.CommentRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments c
		LEFT JOIN profiles p ON p.id = c.user_id
		WHERE c.review_id = ?
		ORDER BY c.created_at DESC, c.id COLLATE BINARY ASC
	`, reviewID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	comments := []wire.CommentRow{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// GetComment returns one comment joined with its author profile.
// Returns an error wrapping feed.ErrNotFound if it does not exist.
func (s *Store) GetComment(ctx context.Context, id string) (wire.CommentRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments c
		LEFT JOIN profiles p ON p.id = c.user_id
		WHERE c.id = ?
	`, id)
	c, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return wire.CommentRow{}, fmt.Errorf("comment %s: %w", id, feed.ErrNotFound)
	}
	if err != nil {
		return wire.CommentRow{}, err
	}
	return c, nil
}

// CreateComment inserts a comment by userID on reviewID. Content is
// trimmed and must not be empty. The review owner gets a notification
// unless they wrote the comment.
func (s *Store) CreateComment(ctx context.Context, reviewID, userID, content string) (wire.CommentRow, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return wire.CommentRow{}, fmt.Errorf("create comment: content is required: %w", ErrInvalidInput)
	}
	if userID == "" {
		return wire.CommentRow{}, fmt.Errorf("create comment: user is required: %w", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wire.CommentRow{}, fmt.Errorf("create comment: begin: %w", err)
	}
	defer tx.Rollback()

	review, err := reviewByID(ctx, tx, reviewID)
	if err != nil {
		return wire.CommentRow{}, fmt.Errorf("create comment: %w", err)
	}

	now := s.clock.Now().UTC()
	row := wire.CommentRow{
		ID:        s.ids.Generate(),
		ReviewID:  reviewID,
		UserID:    userID,
		Content:   content,
		CreatedAt: now,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO comments (id, review_id, user_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, row.ID, row.ReviewID, row.UserID, row.Content, now.UnixNano()); err != nil {
		return wire.CommentRow{}, fmt.Errorf("create comment: %w", err)
	}

	var notif *wire.NotificationRow
	if review.UserID != userID {
		actor, err := profileName(ctx, tx, userID)
		if err != nil {
			return wire.CommentRow{}, fmt.Errorf("create comment: %w", err)
		}
		n := wire.NotificationRow{
			ID:            s.ids.Generate(),
			UserID:        review.UserID,
			ActorID:       userID,
			Type:          "comment",
			Message:       fmt.Sprintf("%s commented on your review %q", actor, review.Title),
			ReferenceSlug: review.Slug,
			CreatedAt:     now,
		}
		if err := insertNotification(ctx, tx, n); err != nil {
			return wire.CommentRow{}, fmt.Errorf("create comment: %w", err)
		}
		notif = &n
	}

	if err := tx.Commit(); err != nil {
		return wire.CommentRow{}, fmt.Errorf("create comment: commit: %w", err)
	}

	changes := s.commentChange(ctx, feed.KindInserted, row)
	if notif != nil {
		changes = append(changes, s.notificationChange(ctx, feed.KindInserted, *notif)...)
	}
	s.publish(changes...)

	return s.GetComment(ctx, row.ID)
}

// UpdateComment replaces a comment's content.
func (s *Store) UpdateComment(ctx context.Context, id, content string) (wire.CommentRow, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return wire.CommentRow{}, fmt.Errorf("update comment: content is required: %w", ErrInvalidInput)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE comments SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return wire.CommentRow{}, fmt.Errorf("update comment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wire.CommentRow{}, fmt.Errorf("update comment %s: %w", id, feed.ErrNotFound)
	}

	row, err := s.GetComment(ctx, id)
	if err != nil {
		return wire.CommentRow{}, err
	}
	s.publish(s.commentChange(ctx, feed.KindUpdated, row)...)
	return row, nil
}

// DeleteComment removes a comment.
func (s *Store) DeleteComment(ctx context.Context, id string) error {
	row, err := s.GetComment(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	s.publish(s.commentChange(ctx, feed.KindDeleted, row)...)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanComment(sc scanner) (wire.CommentRow, error) {
	var (
		c       wire.CommentRow
		created int64
		p       wire.Profile
	)
	if err := sc.Scan(&c.ID, &c.ReviewID, &c.UserID, &c.Content, &created, &p.ID, &p.Name, &p.AvatarURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return wire.CommentRow{}, err
		}
		return wire.CommentRow{}, fmt.Errorf("scan comment: %w", err)
	}
	c.CreatedAt = time.Unix(0, created).UTC()
	if p.ID != "" {
		c.Profile = &p
	}
	return c, nil
}
