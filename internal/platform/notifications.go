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

const notificationColumns = `id, user_id, actor_id, type, message, reference_slug, is_read, created_at`

// ListNotifications returns the newest notifications of userID, at most
// limit (DefaultNotificationLimit if limit <= 0).
func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]wire.NotificationRow, error) {
	if limit <= 0 {
		limit = DefaultNotificationLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id COLLATE BINARY ASC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := []wire.NotificationRow{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

// GetNotification returns one notification.
// Returns an error wrapping feed.ErrNotFound if it does not exist.
func (s *Store) GetNotification(ctx context.Context, id string) (wire.NotificationRow, error) {
	n, err := scanNotification(s.db.QueryRowContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return wire.NotificationRow{}, fmt.Errorf("notification %s: %w", id, feed.ErrNotFound)
	}
	return n, err
}

// CreateNotification inserts a notification. ID and CreatedAt are
// assigned when empty.
func (s *Store) CreateNotification(ctx context.Context, n wire.NotificationRow) (wire.NotificationRow, error) {
	if n.UserID == "" || n.Type == "" {
		return wire.NotificationRow{}, fmt.Errorf("create notification: user and type are required: %w", ErrInvalidInput)
	}
	if n.ID == "" {
		n.ID = s.ids.Generate()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.clock.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wire.NotificationRow{}, fmt.Errorf("create notification: begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertNotification(ctx, tx, n); err != nil {
		return wire.NotificationRow{}, fmt.Errorf("create notification: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return wire.NotificationRow{}, fmt.Errorf("create notification: commit: %w", err)
	}

	s.publish(s.notificationChange(ctx, feed.KindInserted, n)...)
	return n, nil
}

// MarkNotificationsRead flips the given unread notifications of userID to
// read. An empty ids list marks every unread notification of the user.
// Returns the number of rows changed.
func (s *Store) MarkNotificationsRead(ctx context.Context, userID string, ids []string) (int, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ? AND is_read = 0`
	args := []any{userID}
	if len(ids) > 0 {
		query += ` AND id IN (?` + strings.Repeat(`, ?`, len(ids)-1) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mark read: begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	var flipped []wire.NotificationRow
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			rows.Close()
			return 0, err
		}
		flipped = append(flipped, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("mark read: iterate: %w", err)
	}

	for _, n := range flipped {
		if _, err := tx.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, n.ID); err != nil {
			return 0, fmt.Errorf("mark read %s: %w", n.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mark read: commit: %w", err)
	}

	for _, n := range flipped {
		n.IsRead = true
		s.publish(s.notificationChange(ctx, feed.KindUpdated, n)...)
	}
	return len(flipped), nil
}

func insertNotification(ctx context.Context, tx *sql.Tx, n wire.NotificationRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, n.ActorID, n.Type, n.Message, n.ReferenceSlug, n.IsRead, n.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func scanNotification(sc scanner) (wire.NotificationRow, error) {
	var (
		n       wire.NotificationRow
		created int64
	)
	if err := sc.Scan(&n.ID, &n.UserID, &n.ActorID, &n.Type, &n.Message, &n.ReferenceSlug, &n.IsRead, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return wire.NotificationRow{}, err
		}
		return wire.NotificationRow{}, fmt.Errorf("scan notification: %w", err)
	}
	n.CreatedAt = time.Unix(0, created).UTC()
	return n, nil
}
