package client

import (
	"context"
	"fmt"

	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/feedsync"
)

// CommentGateway is a feedsync.Gateway for comment threads on a remote
// server.
type CommentGateway struct {
	c *Client
}

// NewCommentGateway creates a gateway over c.
func NewCommentGateway(c *Client) *CommentGateway {
	return &CommentGateway{c: c}
}

func (g *CommentGateway) FetchSnapshot(ctx context.Context, reviewID string) ([]feed.Item[feed.Comment], error) {
	rows, err := g.c.ListComments(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	items := make([]feed.Item[feed.Comment], len(rows))
	for i, r := range rows {
		items[i] = r.Item()
	}
	return items, nil
}

func (g *CommentGateway) FetchDetail(ctx context.Context, id string) (feed.Item[feed.Comment], error) {
	row, err := g.c.GetComment(ctx, id)
	if err != nil {
		return feed.Item[feed.Comment]{}, err
	}
	return row.Item(), nil
}

// Write posts the comment as payload.UserID.
func (g *CommentGateway) Write(ctx context.Context, reviewID string, payload feed.Comment) (feedsync.WriteResult, error) {
	row, err := g.c.CreateComment(ctx, reviewID, payload.UserID, payload.Content)
	if err != nil {
		return feedsync.WriteResult{}, err
	}
	return feedsync.WriteResult{ID: row.ID, CreatedAt: row.CreatedAt}, nil
}

// MarkRead is a no-op: comments carry no read state.
func (g *CommentGateway) MarkRead(context.Context, string, []string) error {
	return nil
}

// NotificationGateway is a feedsync.Gateway for a remote inbox.
type NotificationGateway struct {
	c     *Client
	limit int
}

// NewNotificationGateway creates a gateway returning at most limit
// notifications per snapshot; limit <= 0 uses the server default.
func NewNotificationGateway(c *Client, limit int) *NotificationGateway {
	return &NotificationGateway{c: c, limit: limit}
}

func (g *NotificationGateway) FetchSnapshot(ctx context.Context, userID string) ([]feed.Item[feed.Notification], error) {
	rows, err := g.c.ListNotifications(ctx, userID, g.limit)
	if err != nil {
		return nil, err
	}
	items := make([]feed.Item[feed.Notification], len(rows))
	for i, r := range rows {
		items[i] = r.Item()
	}
	return items, nil
}

func (g *NotificationGateway) FetchDetail(ctx context.Context, id string) (feed.Item[feed.Notification], error) {
	row, err := g.c.GetNotification(ctx, id)
	if err != nil {
		return feed.Item[feed.Notification]{}, err
	}
	return row.Item(), nil
}

func (g *NotificationGateway) Write(context.Context, string, feed.Notification) (feedsync.WriteResult, error) {
	return feedsync.WriteResult{}, fmt.Errorf("write notification: %w", feed.ErrReadOnly)
}

func (g *NotificationGateway) MarkRead(ctx context.Context, userID string, ids []string) error {
	_, err := g.c.MarkNotificationsRead(ctx, userID, ids)
	return err
}

var (
	_ feedsync.Gateway[feed.Comment]      = (*CommentGateway)(nil)
	_ feedsync.Gateway[feed.Notification] = (*NotificationGateway)(nil)
)
