package platform

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/feedsync"
	"github.com/roach88/feedsync/internal/wire"
)

// Source is an in-process feedsync.EventSource backed by a Broker.
type Source[P feed.Payload] struct {
	broker *Broker
	decode wire.Decoder[P]
}

// NewCommentSource streams comment changes.
func NewCommentSource(b *Broker) *Source[feed.Comment] {
	return &Source[feed.Comment]{broker: b, decode: wire.DecodeComment}
}

// NewNotificationSource streams notification changes.
func NewNotificationSource(b *Broker) *Source[feed.Notification] {
	return &Source[feed.Notification]{broker: b, decode: wire.DecodeNotification}
}

// Subscribe starts delivering topic's changes to onEvent from a dedicated
// goroutine.
func (s *Source[P]) Subscribe(ctx context.Context, topic feed.Topic, onEvent func(feed.ChangeEvent[P])) (feedsync.Handle, error) {
	if err := topic.Validate(); err != nil {
		return nil, err
	}
	h := &sourceHandle[P]{
		sub:     s.broker.Subscribe(topic),
		decode:  s.decode,
		onEvent: onEvent,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go h.pump(ctx)
	return h, nil
}

type sourceHandle[P feed.Payload] struct {
	sub     *Subscription
	decode  wire.Decoder[P]
	onEvent func(feed.ChangeEvent[P])
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (h *sourceHandle[P]) pump(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-h.stop:
			return
		case <-ctx.Done():
			return
		case <-h.sub.Lost():
			return
		case c := <-h.sub.C():
			ev, err := h.decode(c)
			if err != nil {
				slog.Warn("undecodable change", "table", c.Table, "row_id", c.RowID, "error", err)
				continue
			}
			h.onEvent(ev)
		}
	}
}

// Unsubscribe stops delivery and waits for the delivery goroutine, so
// onEvent is never called after it returns.
func (h *sourceHandle[P]) Unsubscribe() error {
	h.once.Do(func() {
		close(h.stop)
		h.sub.Close()
	})
	<-h.done
	return nil
}

func (h *sourceHandle[P]) Lost() <-chan struct{} {
	return h.sub.Lost()
}

// CommentGateway is an in-process feedsync.Gateway for comment threads.
type CommentGateway struct {
	store *Store
}

// NewCommentGateway creates a gateway over store.
func NewCommentGateway(store *Store) *CommentGateway {
	return &CommentGateway{store: store}
}

func (g *CommentGateway) FetchSnapshot(ctx context.Context, reviewID string) ([]feed.Item[feed.Comment], error) {
	rows, err := g.store.ListComments(ctx, reviewID)
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
	row, err := g.store.GetComment(ctx, id)
	if err != nil {
		return feed.Item[feed.Comment]{}, err
	}
	return row.Item(), nil
}

// Write creates a comment authored by payload.UserID.
func (g *CommentGateway) Write(ctx context.Context, reviewID string, payload feed.Comment) (feedsync.WriteResult, error) {
	row, err := g.store.CreateComment(ctx, reviewID, payload.UserID, payload.Content)
	if err != nil {
		return feedsync.WriteResult{}, err
	}
	return feedsync.WriteResult{ID: row.ID, CreatedAt: row.CreatedAt}, nil
}

// MarkRead is a no-op: comments carry no read state.
func (g *CommentGateway) MarkRead(context.Context, string, []string) error {
	return nil
}

// ErrReadOnly is returned for writes to a feed only the platform writes.
var ErrReadOnly = feed.ErrReadOnly

// NotificationGateway is an in-process feedsync.Gateway for inboxes.
type NotificationGateway struct {
	store *Store
	limit int
}

// NewNotificationGateway creates a gateway returning at most limit
// notifications per snapshot (DefaultNotificationLimit if limit <= 0).
func NewNotificationGateway(store *Store, limit int) *NotificationGateway {
	return &NotificationGateway{store: store, limit: limit}
}

func (g *NotificationGateway) FetchSnapshot(ctx context.Context, userID string) ([]feed.Item[feed.Notification], error) {
	rows, err := g.store.ListNotifications(ctx, userID, g.limit)
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
	row, err := g.store.GetNotification(ctx, id)
	if err != nil {
		return feed.Item[feed.Notification]{}, err
	}
	return row.Item(), nil
}

// Write is rejected: notifications are produced by the platform.
func (g *NotificationGateway) Write(context.Context, string, feed.Notification) (feedsync.WriteResult, error) {
	return feedsync.WriteResult{}, fmt.Errorf("write notification: %w", ErrReadOnly)
}

func (g *NotificationGateway) MarkRead(ctx context.Context, userID string, ids []string) error {
	if _, err := g.store.MarkNotificationsRead(ctx, userID, ids); err != nil {
		return err
	}
	return nil
}

var (
	_ feedsync.EventSource[feed.Comment]      = (*Source[feed.Comment])(nil)
	_ feedsync.EventSource[feed.Notification] = (*Source[feed.Notification])(nil)
	_ feedsync.Gateway[feed.Comment]          = (*CommentGateway)(nil)
	_ feedsync.Gateway[feed.Notification]     = (*NotificationGateway)(nil)
)
