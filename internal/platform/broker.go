package platform

import (
	"log/slog"
	"sync"

	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/wire"
)

// DefaultSubscriberBuffer is the per-subscriber queue length.
const DefaultSubscriberBuffer = 256

// Observer is notified of broker activity. Implementations must be safe
// for concurrent use and must not block.
type Observer interface {
	ChangePublished(c wire.Change, delivered int)
	SubscriberDropped(topic feed.Topic)
}

// Broker fans committed changes out to topic subscribers.
//
// Delivery never blocks the writer: a subscriber whose buffer is full is
// dropped and its Lost channel closed, which its owner treats as a
// transport disconnect.
type Broker struct {
	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	closed   bool
	buffer   int
	observer Observer
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithSubscriberBuffer sets the per-subscriber queue length.
func WithSubscriberBuffer(n int) BrokerOption {
	return func(b *Broker) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithObserver registers an observer.
func WithObserver(o Observer) BrokerOption {
	return func(b *Broker) {
		b.observer = o
	}
}

// NewBroker creates an empty broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		subs:   make(map[*Subscription]struct{}),
		buffer: DefaultSubscriberBuffer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetObserver replaces the observer.
func (b *Broker) SetObserver(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observer = o
}

// Subscription receives the changes of one topic.
type Subscription struct {
	topic  feed.Topic
	ch     chan wire.Change
	lost   chan struct{}
	once   sync.Once
	broker *Broker
}

// C delivers matching changes in publish order.
func (s *Subscription) C() <-chan wire.Change {
	return s.ch
}

// Lost is closed when the broker drops the subscription or shuts down.
func (s *Subscription) Lost() <-chan struct{} {
	return s.lost
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() feed.Topic {
	return s.topic
}

// Close removes the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.broker.mu.Lock()
	delete(s.broker.subs, s)
	s.broker.mu.Unlock()
}

func (s *Subscription) markLost() {
	s.once.Do(func() { close(s.lost) })
}

// Subscribe registers interest in topic. On a closed broker the returned
// subscription is already lost.
func (b *Broker) Subscribe(topic feed.Topic) *Subscription {
	s := &Subscription{
		topic:  topic,
		ch:     make(chan wire.Change, b.buffer),
		lost:   make(chan struct{}),
		broker: b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.markLost()
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish delivers c to every matching subscriber.
func (b *Broker) Publish(c wire.Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	delivered := 0
	for s := range b.subs {
		if !c.Matches(s.topic) {
			continue
		}
		select {
		case s.ch <- c:
			delivered++
		default:
			slog.Warn("dropping slow subscriber",
				"topic", s.topic.String(),
				"buffer", cap(s.ch),
			)
			delete(b.subs, s)
			s.markLost()
			if b.observer != nil {
				b.observer.SubscriberDropped(s.topic)
			}
		}
	}

	slog.Debug("change published",
		"table", c.Table,
		"kind", string(c.Kind),
		"row_id", c.RowID,
		"delivered", delivered,
	)
	if b.observer != nil {
		b.observer.ChangePublished(c, delivered)
	}
}

// Len returns the number of live subscriptions.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Drop disconnects every subscriber of topic, as a network failure would.
// Returns the number dropped.
func (b *Broker) Drop(topic feed.Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for s := range b.subs {
		if s.topic == topic {
			delete(b.subs, s)
			s.markLost()
			n++
		}
	}
	return n
}

// Close drops every subscriber and rejects further publishes.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.markLost()
	}
	b.subs = make(map[*Subscription]struct{})
}
