package feedsync

import (
	"context"
	"time"

	"github.com/roach88/feedsync/internal/feed"
)

// Handle is a live subscription returned by EventSource.Subscribe.
type Handle interface {
	// Unsubscribe stops delivery. Safe to call more than once.
	Unsubscribe() error

	// Lost is closed when the transport drops the subscription.
	Lost() <-chan struct{}
}

// EventSource delivers change events for one topic.
//
// Delivery is at-least-once with no ordering guarantee. onEvent may be
// called from any goroutine but must not be called after Unsubscribe
// returns.
type EventSource[P feed.Payload] interface {
	Subscribe(ctx context.Context, topic feed.Topic, onEvent func(feed.ChangeEvent[P])) (Handle, error)
}

// WriteResult is what the platform returns for an accepted write.
type WriteResult struct {
	ID        string
	CreatedAt time.Time
}

// Gateway fetches authoritative records and performs writes.
type Gateway[P feed.Payload] interface {
	// FetchSnapshot returns the current items of a feed.
	FetchSnapshot(ctx context.Context, parentKey string) ([]feed.Item[P], error)

	// FetchDetail returns one row, joined with everything the list shows.
	// Returns an error wrapping feed.ErrNotFound if the row does not exist.
	FetchDetail(ctx context.Context, rowID string) (feed.Item[P], error)

	// Write creates a new row under parentKey.
	Write(ctx context.Context, parentKey string, payload P) (WriteResult, error)

	// MarkRead flips the read flag of the given rows.
	MarkRead(ctx context.Context, parentKey string, ids []string) error
}

// Listener receives every observable change of a session. Calls are made
// from the session's loop goroutine, one at a time, and must not block.
type Listener[P feed.Payload] interface {
	ListChanged(items []feed.Item[P], unread int)
	StateChanged(state State)
	Failed(err *feed.Error)

	// Arrived is called after ListChanged for each inserted row that
	// reached the list through the change feed. Snapshot rows and the
	// confirmations of this session's own posts are not arrivals.
	Arrived(item feed.Item[P])
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs[P feed.Payload] struct {
	OnListChanged  func(items []feed.Item[P], unread int)
	OnStateChanged func(state State)
	OnFailed       func(err *feed.Error)
	OnArrived      func(item feed.Item[P])
}

func (f ListenerFuncs[P]) ListChanged(items []feed.Item[P], unread int) {
	if f.OnListChanged != nil {
		f.OnListChanged(items, unread)
	}
}

func (f ListenerFuncs[P]) StateChanged(state State) {
	if f.OnStateChanged != nil {
		f.OnStateChanged(state)
	}
}

func (f ListenerFuncs[P]) Failed(err *feed.Error) {
	if f.OnFailed != nil {
		f.OnFailed(err)
	}
}

func (f ListenerFuncs[P]) Arrived(item feed.Item[P]) {
	if f.OnArrived != nil {
		f.OnArrived(item)
	}
}
