package feedsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/reconcile"
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("session closed")

// Session follows one topic for one caller.
//
// Thread-safety model:
//   - Post, MarkRead, MarkAllRead, Close and the accessors are safe from any goroutine
//   - the Reconciler is touched only by the loop goroutine (run)
//   - I/O runs on helper goroutines that post results back to the loop
//
// Results are tagged with the connection epoch they were started under.
// A result from an older connection, or one arriving after Close, never
// reaches the Reconciler.
type Session[P feed.Payload] struct {
	caller string
	topic  feed.Topic
	src    EventSource[P]
	gw     Gateway[P]
	lis    Listener[P]
	cfg    settings

	queue *eventQueue[P]
	rec   *reconcile.Reconciler[P] // loop-owned

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	epoch  atomic.Uint64

	mu      sync.Mutex
	state   State
	items   []feed.Item[P]
	unread  int
	lastErr *feed.Error

	closing   atomic.Bool
	closeOnce sync.Once
}

func newSession[P feed.Payload](ctx context.Context, caller string, topic feed.Topic, src EventSource[P], gw Gateway[P], lis Listener[P], cfg settings) *Session[P] {
	ctx, cancel := context.WithCancel(ctx)
	return &Session[P]{
		caller: caller,
		topic:  topic,
		src:    src,
		gw:     gw,
		lis:    lis,
		cfg:    cfg,
		queue:  newEventQueue[P](),
		rec: reconcile.New[P](topic.ParentKey(),
			reconcile.WithMatchWindow(cfg.matchWindow),
			reconcile.WithClock(cfg.clock),
		),
		ctx:    ctx,
		cancel: cancel,
		state:  StateIdle,
	}
}

// start moves to Connecting and launches the loop and the connection
// supervisor.
func (s *Session[P]) start() {
	s.transition(StateConnecting)
	s.wg.Add(2)
	go s.run()
	go s.supervise()
}

// Caller returns the owner of the session.
func (s *Session[P]) Caller() string {
	return s.caller
}

// Topic returns the followed topic.
func (s *Session[P]) Topic() feed.Topic {
	return s.topic
}

// State returns the current lifecycle state.
func (s *Session[P]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Items returns the list as last published to the listener.
func (s *Session[P]) Items() []feed.Item[P] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// UnreadCount returns the unread count as last published.
func (s *Session[P]) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Err returns the last error surfaced to the listener, or nil.
func (s *Session[P]) Err() *feed.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Post writes payload optimistically. The item appears in the list
// immediately under the returned local id and is replaced by the
// confirmed row when its change event arrives. If the write fails, the
// item is removed and the listener receives a WRITE_FAILED error.
func (s *Session[P]) Post(payload P) (string, error) {
	if err := s.checkLive(); err != nil {
		return "", err
	}
	localID := s.cfg.ids.Generate()
	if !s.queue.Enqueue(event[P]{typ: eventPost, localID: localID, payload: payload}) {
		return "", feed.NewDisconnectedError(s.topic.String(), ErrSessionClosed)
	}
	return localID, nil
}

// MarkRead flips the given unread items to read and writes the change.
// The flip is reverted if the write fails.
func (s *Session[P]) MarkRead(ids []string) error {
	if err := s.checkLive(); err != nil {
		return err
	}
	if !s.queue.Enqueue(event[P]{typ: eventMarkRead, ids: slices.Clone(ids)}) {
		return feed.NewDisconnectedError(s.topic.String(), ErrSessionClosed)
	}
	return nil
}

// MarkAllRead marks every item unread at processing time as read.
func (s *Session[P]) MarkAllRead() error {
	if err := s.checkLive(); err != nil {
		return err
	}
	if !s.queue.Enqueue(event[P]{typ: eventMarkRead, allRead: true}) {
		return feed.NewDisconnectedError(s.topic.String(), ErrSessionClosed)
	}
	return nil
}

func (s *Session[P]) checkLive() error {
	st := s.State()
	if st.Live() {
		return nil
	}
	if st == StateClosed {
		return feed.NewDisconnectedError(s.topic.String(), ErrSessionClosed)
	}
	return feed.NewDisconnectedError(s.topic.String(), fmt.Errorf("session %s", st))
}

// Close unsubscribes, cancels in-flight fetches and writes, and discards
// the list. It returns once every goroutine of the session has exited.
// Safe to call more than once.
func (s *Session[P]) Close() {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.cancel()
		s.queue.Close()
		s.wg.Wait()

		s.rec = nil
		s.mu.Lock()
		s.items = nil
		s.unread = 0
		s.mu.Unlock()

		s.transition(StateClosed)
		slog.Info("session closed", "caller", s.caller, "topic", s.topic.String())
	})
}

// run is the single-writer loop. Every Reconciler mutation happens here.
func (s *Session[P]) run() {
	defer s.wg.Done()

	for {
		ev, ok := s.queue.TryDequeue()
		if ok {
			s.process(ev)
			continue
		}

		select {
		case <-s.ctx.Done():
			s.queue.Close()
			if !s.closing.Load() {
				s.fail(feed.NewDisconnectedError(s.topic.String(), context.Cause(s.ctx)))
			}
			return
		case _, open := <-s.queue.Wait():
			if !open {
				return
			}
		}
	}
}

// supervise keeps the subscription alive until the session ends or
// reconnection gives up.
func (s *Session[P]) supervise() {
	defer s.wg.Done()

	for {
		h, err := s.connect()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.queue.Enqueue(event[P]{typ: eventFailed, err: err})
			return
		}

		select {
		case <-s.ctx.Done():
			s.unsubscribe(h)
			return
		case <-h.Lost():
			s.unsubscribe(h)
			slog.Info("subscription lost",
				"caller", s.caller,
				"topic", s.topic.String(),
				"epoch", s.epoch.Load(),
			)
			if !s.queue.Enqueue(event[P]{typ: eventLost}) {
				return
			}
		}
	}
}

// connect subscribes and fetches a snapshot, retrying with backoff.
// On success the snapshot is queued for seeding and the handle returned.
func (s *Session[P]) connect() (Handle, error) {
	var handle Handle
	err := retryCall(s.ctx, s.cfg.backoff, s.cfg.clock, s.topic.String(), func() error {
		epoch := s.epoch.Add(1)
		h, snapshot, err := s.subscribeAndFetch(epoch)
		if err != nil {
			return err
		}
		if !s.queue.Enqueue(event[P]{typ: eventSeed, epoch: epoch, snapshot: snapshot}) {
			s.unsubscribe(h)
			return context.Canceled
		}
		handle = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// subscribeAndFetch opens the subscription and fetches the snapshot
// concurrently. Events delivered before the snapshot is seeded are
// buffered by the Reconciler.
func (s *Session[P]) subscribeAndFetch(epoch uint64) (Handle, []feed.Item[P], error) {
	g, gctx := errgroup.WithContext(s.ctx)

	var h Handle
	var snapshot []feed.Item[P]

	g.Go(func() error {
		var err error
		// The subscription outlives this call, so it is bound to the
		// session context rather than the group's.
		h, err = s.src.Subscribe(s.ctx, s.topic, func(ev feed.ChangeEvent[P]) {
			s.queue.Enqueue(event[P]{typ: eventChange, epoch: epoch, change: ev})
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", s.topic, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		snapshot, err = s.gw.FetchSnapshot(gctx, s.topic.ParentKey())
		if err != nil {
			return fmt.Errorf("fetch snapshot %s: %w", s.topic.ParentKey(), err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		if h != nil {
			s.unsubscribe(h)
		}
		return nil, nil, err
	}
	return h, snapshot, nil
}

func (s *Session[P]) unsubscribe(h Handle) {
	if err := h.Unsubscribe(); err != nil {
		slog.Debug("unsubscribe failed", "topic", s.topic.String(), "error", err)
	}
}

// process routes an event to its handler. Called only from run.
func (s *Session[P]) process(ev event[P]) {
	switch ev.typ {
	case eventChange:
		s.applyChange(ev)
	case eventSeed:
		s.applySeed(ev)
	case eventDetail:
		s.applyDetail(ev)
	case eventLost:
		s.handleLost()
	case eventFailed:
		s.handleFailed(ev)
	case eventPost:
		s.applyPost(ev)
	case eventWriteDone:
		s.applyWriteDone(ev)
	case eventMarkRead:
		s.applyMarkRead(ev)
	case eventMarkReadFailed:
		s.applyMarkReadFailed(ev)
	default:
		slog.Error("unknown session event", "type", int(ev.typ))
	}
}

func (s *Session[P]) stale(ev event[P]) bool {
	if ev.epoch == s.epoch.Load() {
		return false
	}
	slog.Debug("dropping stale event",
		"topic", s.topic.String(),
		"type", ev.typ.String(),
		"epoch", ev.epoch,
	)
	return true
}

func (s *Session[P]) applyChange(ev event[P]) {
	if s.stale(ev) {
		return
	}
	switch s.rec.ApplyChangeEvent(ev.change) {
	case reconcile.OutcomeApplied:
		s.publish()
	case reconcile.OutcomeNeedsDetail:
		s.fetchDetail(ev.epoch, ev.change)
	}
}

func (s *Session[P]) applySeed(ev event[P]) {
	if s.stale(ev) {
		return
	}
	needDetail := s.rec.Seed(ev.snapshot)
	s.publish()
	s.transition(StateActive)
	for _, change := range needDetail {
		s.fetchDetail(ev.epoch, change)
	}
}

func (s *Session[P]) fetchDetail(epoch uint64, change feed.ChangeEvent[P]) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		row, err := s.gw.FetchDetail(s.ctx, change.RowID)
		s.queue.Enqueue(event[P]{typ: eventDetail, epoch: epoch, change: change, row: row, err: err})
	}()
}

func (s *Session[P]) applyDetail(ev event[P]) {
	if s.stale(ev) {
		return
	}
	if ev.err != nil {
		if s.ctx.Err() != nil {
			return
		}
		fe := feed.NewDetailError(s.topic.String(), ev.change.RowID, ev.err)
		slog.Debug("dropping change event",
			"code", string(fe.Code),
			"row_id", ev.change.RowID,
			"kind", string(ev.change.Kind),
			"error", ev.err,
		)
		return
	}
	if s.rec.ApplyDetail(ev.change, ev.row) == reconcile.OutcomeApplied {
		s.publish()
	}
	for _, it := range s.rec.TakeArrivals() {
		s.lis.Arrived(it)
	}
}

func (s *Session[P]) handleLost() {
	if s.State().Terminal() {
		return
	}
	s.rec.Resync()
	s.transition(StateReconnecting)
}

func (s *Session[P]) handleFailed(ev event[P]) {
	fe := feed.NewDisconnectedError(s.topic.String(), ev.err)
	slog.Error("reconnection attempts exhausted",
		"caller", s.caller,
		"topic", s.topic.String(),
		"error", ev.err,
	)
	s.fail(fe)
}

func (s *Session[P]) applyPost(ev event[P]) {
	s.rec.ApplyOptimistic(ev.localID, ev.payload)
	s.publish()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.gw.Write(s.ctx, s.topic.ParentKey(), ev.payload)
		s.queue.Enqueue(event[P]{
			typ:       eventWriteDone,
			localID:   ev.localID,
			serverID:  res.ID,
			createdAt: res.CreatedAt,
			err:       err,
		})
	}()
}

func (s *Session[P]) applyWriteDone(ev event[P]) {
	if ev.err != nil {
		if s.ctx.Err() != nil {
			return
		}
		if s.rec.SnapshotFailed(ev.localID) {
			s.publish()
		}
		slog.Warn("write rejected",
			"topic", s.topic.String(),
			"local_id", ev.localID,
			"error", ev.err,
		)
		s.surface(feed.NewWriteError(s.topic.String(), ev.localID, ev.err))
		return
	}
	if s.rec.Acknowledge(ev.localID, ev.serverID, ev.createdAt) {
		s.publish()
	}
}

func (s *Session[P]) applyMarkRead(ev event[P]) {
	ids := ev.ids
	if ev.allRead {
		ids = s.rec.UnreadIDs()
	}
	flipped := s.rec.MarkRead(ids)
	if len(flipped) == 0 {
		return
	}
	s.publish()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.gw.MarkRead(s.ctx, s.topic.ParentKey(), flipped); err != nil {
			s.queue.Enqueue(event[P]{typ: eventMarkReadFailed, ids: flipped, err: err})
		}
	}()
}

func (s *Session[P]) applyMarkReadFailed(ev event[P]) {
	if s.ctx.Err() != nil {
		return
	}
	if reverted := s.rec.RevertRead(ev.ids); len(reverted) > 0 {
		s.publish()
	}
	slog.Warn("mark read rejected",
		"topic", s.topic.String(),
		"ids", ev.ids,
		"error", ev.err,
	)
	s.surface(feed.NewMarkReadError(s.topic.String(), ev.ids, ev.err))
}

// publish copies the list for readers and notifies the listener.
func (s *Session[P]) publish() {
	items := s.rec.Items()
	unread := s.rec.UnreadCount()

	s.mu.Lock()
	s.items = items
	s.unread = unread
	s.mu.Unlock()

	s.lis.ListChanged(slices.Clone(items), unread)
}

func (s *Session[P]) surface(fe *feed.Error) {
	s.mu.Lock()
	s.lastErr = fe
	s.mu.Unlock()
	s.lis.Failed(fe)
}

// fail records fe and moves to Failed. The error is set before listeners
// hear of the state change so Err is never nil once Failed is observed.
func (s *Session[P]) fail(fe *feed.Error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.lastErr = fe
	s.mu.Unlock()

	if s.transition(StateFailed) {
		s.lis.Failed(fe)
	}
}

// transition moves to state to and notifies the listener. Closed is
// final; Failed only moves to Closed. Returns false if nothing changed.
func (s *Session[P]) transition(to State) bool {
	s.mu.Lock()
	from := s.state
	if from == to || from == StateClosed || (from == StateFailed && to != StateClosed) {
		s.mu.Unlock()
		return false
	}
	s.state = to
	s.mu.Unlock()

	slog.Info("session state changed",
		"caller", s.caller,
		"topic", s.topic.String(),
		"from", from.String(),
		"to", to.String(),
	)
	s.lis.StateChanged(to)
	return true
}
