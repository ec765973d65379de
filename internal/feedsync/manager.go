package feedsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/feedsync/internal/feed"
)

// Manager owns the sessions of every caller for one payload type.
//
// A caller is the identity of one view (a screen, a browser tab). Each
// caller has at most one non-closed session; opening a new one closes the
// previous one first.
type Manager[P feed.Payload] struct {
	src  EventSource[P]
	gw   Gateway[P]
	opts []Option

	mu       sync.Mutex
	sessions map[string]*Session[P]
}

// NewManager creates a Manager that subscribes through src and fetches
// and writes through gw.
func NewManager[P feed.Payload](src EventSource[P], gw Gateway[P], opts ...Option) *Manager[P] {
	return &Manager[P]{
		src:      src,
		gw:       gw,
		opts:     opts,
		sessions: make(map[string]*Session[P]),
	}
}

// Open starts following topic for caller. Any session the caller already
// has is closed first. Cancelling ctx stops the session and moves it to
// Failed with a DISCONNECTED error; Close must still be called to release
// it.
//
// lis may be nil. Listener callbacks must not call back into the Manager
// synchronously.
func (m *Manager[P]) Open(ctx context.Context, caller string, topic feed.Topic, lis Listener[P]) (*Session[P], error) {
	if caller == "" {
		return nil, errors.New("open session: caller is required")
	}
	if err := topic.Validate(); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	if lis == nil {
		lis = ListenerFuncs[P]{}
	}

	cfg := defaultSettings()
	for _, opt := range m.opts {
		opt(&cfg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.sessions[caller]; ok {
		delete(m.sessions, caller)
		prev.Close()
	}

	s := newSession(ctx, caller, topic, m.src, m.gw, lis, cfg)
	m.sessions[caller] = s
	slog.Info("session opened", "caller", caller, "topic", topic.String())
	s.start()
	return s, nil
}

// Session returns the caller's current session.
func (m *Manager[P]) Session(caller string) (*Session[P], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[caller]
	return s, ok
}

// Close closes the caller's session, if any.
func (m *Manager[P]) Close(caller string) {
	m.mu.Lock()
	s, ok := m.sessions[caller]
	delete(m.sessions, caller)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
}

// CloseAll closes every session.
func (m *Manager[P]) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session[P])
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Len returns the number of sessions that are not closed.
func (m *Manager[P]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.State() != StateClosed {
			n++
		}
	}
	return n
}
