package present

import (
	"time"

	"github.com/juju/clock"

	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/feedsync"
)

// Sink receives rendered views. Nil fields are skipped.
type Sink[V any] struct {
	OnView    func(V)
	OnArrival func(Arrival)
	OnState   func(feedsync.State)
	OnError   func(*feed.Error)
}

// Listener renders every list change of a session with render and hands
// the view to a Sink.
type Listener[P feed.Payload, V any] struct {
	clock   clock.Clock
	render  func(items []feed.Item[P], unread int, now time.Time) V
	arrival func(it feed.Item[P], now time.Time) Arrival
	sink    Sink[V]
}

// NewThreadListener renders comment threads.
func NewThreadListener(clk clock.Clock, sink Sink[Thread]) *Listener[feed.Comment, Thread] {
	return &Listener[feed.Comment, Thread]{
		clock: clk,
		render: func(items []feed.Item[feed.Comment], _ int, now time.Time) Thread {
			return Comments(items, now)
		},
		arrival: CommentArrival,
		sink:    sink,
	}
}

// NewInboxListener renders notification bells.
func NewInboxListener(clk clock.Clock, sink Sink[Inbox]) *Listener[feed.Notification, Inbox] {
	return &Listener[feed.Notification, Inbox]{
		clock:   clk,
		render:  Notifications,
		arrival: NotificationArrival,
		sink:    sink,
	}
}

func (l *Listener[P, V]) ListChanged(items []feed.Item[P], unread int) {
	if l.sink.OnView != nil {
		l.sink.OnView(l.render(items, unread, l.clock.Now()))
	}
}

func (l *Listener[P, V]) Arrived(item feed.Item[P]) {
	if l.sink.OnArrival != nil {
		l.sink.OnArrival(l.arrival(item, l.clock.Now()))
	}
}

func (l *Listener[P, V]) StateChanged(state feedsync.State) {
	if l.sink.OnState != nil {
		l.sink.OnState(state)
	}
}

func (l *Listener[P, V]) Failed(err *feed.Error) {
	if l.sink.OnError != nil {
		l.sink.OnError(err)
	}
}

var (
	_ feedsync.Listener[feed.Comment]      = (*Listener[feed.Comment, Thread])(nil)
	_ feedsync.Listener[feed.Notification] = (*Listener[feed.Notification, Inbox])(nil)
)
