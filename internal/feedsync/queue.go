package feedsync

import (
	"sync"
	"time"

	"github.com/roach88/feedsync/internal/feed"
)

// eventType distinguishes the inputs processed by the session loop.
type eventType int

const (
	// eventChange is a change event delivered by the subscription.
	eventChange eventType = iota + 1
	// eventSeed carries a fresh snapshot for the current connection.
	eventSeed
	// eventDetail carries the result of a detail fetch.
	eventDetail
	// eventLost reports that the subscription dropped.
	eventLost
	// eventFailed reports that reconnection attempts were exhausted.
	eventFailed
	// eventPost is a local write to apply optimistically.
	eventPost
	// eventWriteDone carries the result of a write.
	eventWriteDone
	// eventMarkRead flips items to read.
	eventMarkRead
	// eventMarkReadFailed reverts a mark-read whose write was rejected.
	eventMarkReadFailed
)

func (t eventType) String() string {
	switch t {
	case eventChange:
		return "change"
	case eventSeed:
		return "seed"
	case eventDetail:
		return "detail"
	case eventLost:
		return "lost"
	case eventFailed:
		return "failed"
	case eventPost:
		return "post"
	case eventWriteDone:
		return "write_done"
	case eventMarkRead:
		return "mark_read"
	case eventMarkReadFailed:
		return "mark_read_failed"
	default:
		return "unknown"
	}
}

// event is one unit of work for the session loop. Only the fields
// relevant to typ are set.
type event[P feed.Payload] struct {
	typ eventType

	// epoch is the connection the event belongs to. Zero for events that
	// outlive a connection (writes, mark-read).
	epoch uint64

	change   feed.ChangeEvent[P]
	snapshot []feed.Item[P]
	row      feed.Item[P]
	err      error

	localID   string
	payload   P
	serverID  string
	createdAt time.Time

	ids     []string
	allRead bool
}

// eventQueue is a thread-safe, unbounded FIFO of session events.
//
// Subscriptions, fetch goroutines and callers enqueue from any goroutine
// while the session loop dequeues. The buffered signal channel lets the
// loop wait with select alongside context cancellation.
type eventQueue[P feed.Payload] struct {
	mu     sync.Mutex
	events []event[P]
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue[P feed.Payload]() *eventQueue[P] {
	return &eventQueue[P]{
		events: make([]event[P], 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds e to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue[P]) Enqueue(e event[P]) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, e)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue[P]) TryDequeue() (event[P], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return event[P]{}, false
	}
	e := q.events[0]
	// Clear the slot so snapshots and payloads can be collected.
	q.events[0] = event[P]{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that fires when events may be available.
// It is closed once the queue is closed.
func (q *eventQueue[P]) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued events.
func (q *eventQueue[P]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close rejects further events and wakes the loop. Queued events are
// discarded.
func (q *eventQueue[P]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.events = nil
	select {
	case <-q.signal:
	default:
	}
	close(q.signal)
}

// Closed reports whether Close has been called.
func (q *eventQueue[P]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
