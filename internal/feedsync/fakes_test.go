package feedsync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsync/internal/feed"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

// fastBackoff keeps reconnect tests quick.
var fastBackoff = Backoff{Base: time.Millisecond, Cap: 5 * time.Millisecond, Attempts: 3}

type fakeHandle[P feed.Payload] struct {
	topic   feed.Topic
	onEvent func(feed.ChangeEvent[P])

	mu       sync.Mutex
	closed   bool
	lost     chan struct{}
	lostOnce sync.Once
}

func (h *fakeHandle[P]) Unsubscribe() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeHandle[P]) Lost() <-chan struct{} {
	return h.lost
}

func (h *fakeHandle[P]) Unsubscribed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// emit delivers ev unless the handle was unsubscribed.
func (h *fakeHandle[P]) emit(ev feed.ChangeEvent[P]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.onEvent(ev)
}

func (h *fakeHandle[P]) drop() {
	h.lostOnce.Do(func() { close(h.lost) })
}

type fakeSource[P feed.Payload] struct {
	mu      sync.Mutex
	handles []*fakeHandle[P]
	err     error
}

func (s *fakeSource[P]) Subscribe(_ context.Context, topic feed.Topic, onEvent func(feed.ChangeEvent[P])) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	h := &fakeHandle[P]{topic: topic, onEvent: onEvent, lost: make(chan struct{})}
	s.handles = append(s.handles, h)
	return h, nil
}

func (s *fakeSource[P]) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// latest waits for the n-th subscription (1-based) on topic and returns it.
func (s *fakeSource[P]) latest(t *testing.T, topic feed.Topic, n int) *fakeHandle[P] {
	t.Helper()
	var found *fakeHandle[P]
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		seen := 0
		for _, h := range s.handles {
			if h.topic == topic {
				seen++
				if seen == n {
					found = h
					return true
				}
			}
		}
		return false
	}, waitFor, tick, "subscription %d to %s", n, topic)
	return found
}

type fakeGateway[P feed.Payload] struct {
	mu           sync.Mutex
	snapshots    map[string][]feed.Item[P]
	snapshotErr  error
	snapshotGate chan struct{}
	rows         map[string]feed.Item[P]
	detailHook   func(ctx context.Context) error
	writeGate    chan struct{}
	writeResult  WriteResult
	writeErr     error
	writes       []P
	markReadErr  error
	markReads    [][]string
}

func newFakeGateway[P feed.Payload]() *fakeGateway[P] {
	return &fakeGateway[P]{
		snapshots: make(map[string][]feed.Item[P]),
		rows:      make(map[string]feed.Item[P]),
	}
}

func (g *fakeGateway[P]) FetchSnapshot(ctx context.Context, parentKey string) ([]feed.Item[P], error) {
	g.mu.Lock()
	gate := g.snapshotGate
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.snapshotErr != nil {
		return nil, g.snapshotErr
	}
	return slices.Clone(g.snapshots[parentKey]), nil
}

func (g *fakeGateway[P]) FetchDetail(ctx context.Context, rowID string) (feed.Item[P], error) {
	g.mu.Lock()
	hook := g.detailHook
	g.mu.Unlock()
	if hook != nil {
		if err := hook(ctx); err != nil {
			return feed.Item[P]{}, err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	row, ok := g.rows[rowID]
	if !ok {
		return feed.Item[P]{}, fmt.Errorf("row %s: %w", rowID, feed.ErrNotFound)
	}
	return row, nil
}

func (g *fakeGateway[P]) Write(ctx context.Context, _ string, payload P) (WriteResult, error) {
	g.mu.Lock()
	gate := g.writeGate
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return WriteResult{}, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.writes = append(g.writes, payload)
	if g.writeErr != nil {
		return WriteResult{}, g.writeErr
	}
	return g.writeResult, nil
}

func (g *fakeGateway[P]) MarkRead(_ context.Context, _ string, ids []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.markReads = append(g.markReads, slices.Clone(ids))
	return g.markReadErr
}

func (g *fakeGateway[P]) set(fn func(g *fakeGateway[P])) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

func (g *fakeGateway[P]) markReadCalls() [][]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.markReads)
}

// recorder is a Listener that keeps everything it is told.
type recorder[P feed.Payload] struct {
	mu     sync.Mutex
	lists  [][]feed.Item[P]
	states   []State
	errs     []*feed.Error
	arrivals []string

	// errAtFailed is Err() as seen when StateFailed was reported.
	errAtFailed *feed.Error
	session     atomic.Pointer[Session[P]]
}

func (r *recorder[P]) ListChanged(items []feed.Item[P], _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists = append(r.lists, items)
}

func (r *recorder[P]) StateChanged(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	if s := r.session.Load(); s != nil && state == StateFailed {
		r.errAtFailed = s.Err()
	}
}

func (r *recorder[P]) Failed(err *feed.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder[P]) Arrived(item feed.Item[P]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.arrivals = append(r.arrivals, item.ID)
}

func (r *recorder[P]) arrived() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.arrivals)
}

func (r *recorder[P]) listCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lists)
}

func (r *recorder[P]) stateLog() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.states)
}

func (r *recorder[P]) errors() []*feed.Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.errs)
}

func (r *recorder[P]) sawItem(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, list := range r.lists {
		for _, it := range list {
			if it.ID == id {
				return true
			}
		}
	}
	return false
}

func ids[P feed.Payload](items []feed.Item[P]) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func waitState[P feed.Payload](t *testing.T, s *Session[P], want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, waitFor, tick,
		"state %s, got %s", want, s.State())
}

var errBoom = errors.New("boom")
