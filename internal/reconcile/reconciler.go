package reconcile

import (
	"reflect"
	"slices"
	"time"

	"github.com/juju/clock"

	"github.com/roach88/feedsync/internal/feed"
)

// Option configures a Reconciler.
type Option func(*options)

type options struct {
	window time.Duration
	clock  clock.Clock
}

// WithMatchWindow sets the optimistic-promotion time window.
// Non-positive values keep DefaultMatchWindow.
func WithMatchWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.window = d
		}
	}
}

// WithClock sets the clock used to stamp optimistic items and events
// that arrive without a timestamp.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// Reconciler maintains the ordered, deduplicated list for one parent key.
//
// INVARIANTS:
//   - items is always sorted by feed.Compare
//   - no two items share an ID
//   - every item has ParentKey == parentKey
//   - an optimistic item leaves the list only by promotion or SnapshotFailed,
//     or once its confirmed row is already listed (Acknowledge, Seed)
type Reconciler[P feed.Payload] struct {
	parentKey string
	window    time.Duration
	clock     clock.Clock

	items      []feed.Item[P]
	seeded     bool
	pending    []feed.ChangeEvent[P]
	tombstones map[string]struct{}
	arrivals   []feed.Item[P]
}

// New creates an empty, unseeded Reconciler for parentKey.
func New[P feed.Payload](parentKey string, opts ...Option) *Reconciler[P] {
	o := options{window: DefaultMatchWindow, clock: clock.WallClock}
	for _, opt := range opts {
		opt(&o)
	}
	return &Reconciler[P]{
		parentKey:  parentKey,
		window:     o.window,
		clock:      o.clock,
		tombstones: make(map[string]struct{}),
	}
}

// ParentKey returns the feed key this Reconciler serves.
func (r *Reconciler[P]) ParentKey() string {
	return r.parentKey
}

// Seeded reports whether Seed has run since creation or the last Resync.
func (r *Reconciler[P]) Seeded() bool {
	return r.seeded
}

// Items returns a copy of the list in display order.
func (r *Reconciler[P]) Items() []feed.Item[P] {
	return slices.Clone(r.items)
}

// Len returns the number of items.
func (r *Reconciler[P]) Len() int {
	return len(r.items)
}

// UnreadCount returns the number of unread items.
func (r *Reconciler[P]) UnreadCount() int {
	n := 0
	for _, it := range r.items {
		if it.Unread() {
			n++
		}
	}
	return n
}

// UnreadIDs returns the ids of unread items in display order.
func (r *Reconciler[P]) UnreadIDs() []string {
	var ids []string
	for _, it := range r.items {
		if it.Unread() {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

// Pending returns the number of events buffered ahead of Seed.
func (r *Reconciler[P]) Pending() int {
	return len(r.pending)
}

// Seed replaces the list with snapshot, tagged OriginSnapshot, then
// replays every buffered event in arrival order.
//
// Optimistic items survive a re-seed unless the snapshot already holds
// their row (matched by ServerID, or by content within the window).
//
// Returns the replayed events that need a detail fetch.
func (r *Reconciler[P]) Seed(snapshot []feed.Item[P]) []feed.ChangeEvent[P] {
	next := make([]feed.Item[P], 0, len(snapshot)+len(r.items))
	seen := make(map[string]struct{}, len(snapshot))
	for _, it := range snapshot {
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		delete(r.tombstones, it.ID)
		it.ParentKey = r.parentKey
		it.Origin = feed.OriginSnapshot
		it.ServerID = ""
		next = append(next, it)
	}

	claimed := make(map[string]struct{})
	for _, it := range r.items {
		if it.Origin != feed.OriginOptimistic {
			continue
		}
		if r.snapshotHolds(it, next, claimed) {
			continue
		}
		next = append(next, it)
	}

	feed.Sort(next)
	r.items = next
	r.seeded = true

	buffered := r.pending
	r.pending = nil

	var needDetail []feed.ChangeEvent[P]
	for _, ev := range buffered {
		if r.ApplyChangeEvent(ev) == OutcomeNeedsDetail {
			needDetail = append(needDetail, ev)
		}
	}
	return needDetail
}

// snapshotHolds reports whether the snapshot already contains the row for
// an optimistic item. A matched snapshot row is claimed so two identical
// optimistic writes cannot both be absorbed by one row.
func (r *Reconciler[P]) snapshotHolds(opt feed.Item[P], snapshot []feed.Item[P], claimed map[string]struct{}) bool {
	for _, s := range snapshot {
		if opt.ServerID != "" && s.ID == opt.ServerID {
			claimed[s.ID] = struct{}{}
			return true
		}
	}
	if opt.ServerID != "" {
		return false
	}
	for _, s := range snapshot {
		if _, taken := claimed[s.ID]; taken {
			continue
		}
		if sameContent(opt.Payload, s.Payload) && withinWindow(opt.CreatedAt, s.CreatedAt, r.window) {
			claimed[s.ID] = struct{}{}
			return true
		}
	}
	return false
}

// Resync re-enters buffering mode. Events applied after Resync are held
// until the next Seed.
func (r *Reconciler[P]) Resync() {
	r.seeded = false
	r.pending = nil
	r.arrivals = nil
}

// TakeArrivals returns the rows inserted by ApplyDetail for insert events
// since the last call, in the order they arrived, and forgets them.
// Promotions of optimistic items are not arrivals.
func (r *Reconciler[P]) TakeArrivals() []feed.Item[P] {
	out := r.arrivals
	r.arrivals = nil
	return out
}

// ApplyOptimistic inserts a locally written item immediately and returns
// localID for later correlation.
func (r *Reconciler[P]) ApplyOptimistic(localID string, payload P) string {
	r.insert(feed.Item[P]{
		ID:        localID,
		ParentKey: r.parentKey,
		Payload:   payload,
		CreatedAt: r.clock.Now(),
		Origin:    feed.OriginOptimistic,
	})
	return localID
}

// Acknowledge records the row id and server timestamp returned by a
// successful write for localID. The item stays optimistic until its
// change event arrives. If the row is already in the list (its event got
// there first without matching), the optimistic item is a duplicate and
// is removed. Returns whether the list changed.
func (r *Reconciler[P]) Acknowledge(localID, serverID string, createdAt time.Time) bool {
	i := r.indexOf(localID)
	if i < 0 || r.items[i].Origin != feed.OriginOptimistic {
		return false
	}
	if r.indexOf(serverID) >= 0 {
		r.removeAt(i)
		return true
	}
	it := r.items[i]
	it.ServerID = serverID
	if !createdAt.IsZero() {
		it.CreatedAt = createdAt
	}
	r.removeAt(i)
	r.insert(it)
	return true
}

// SnapshotFailed drops the optimistic item whose write failed.
// Returns false if no such optimistic item exists.
func (r *Reconciler[P]) SnapshotFailed(localID string) bool {
	i := r.indexOf(localID)
	if i < 0 || r.items[i].Origin != feed.OriginOptimistic {
		return false
	}
	r.removeAt(i)
	return true
}

// MarkRead flips the given unread items to read and returns the ids that
// actually changed. The caller issues the write and calls RevertRead with
// the returned ids if it fails.
func (r *Reconciler[P]) MarkRead(ids []string) []string {
	var flipped []string
	for _, id := range ids {
		i := r.indexOf(id)
		if i < 0 || r.items[i].ReadState != feed.ReadStateUnread {
			continue
		}
		r.items[i].ReadState = feed.ReadStateRead
		flipped = append(flipped, id)
	}
	return flipped
}

// RevertRead flips the given items back to unread.
// Returns the ids that changed.
func (r *Reconciler[P]) RevertRead(ids []string) []string {
	var reverted []string
	for _, id := range ids {
		i := r.indexOf(id)
		if i < 0 || r.items[i].ReadState != feed.ReadStateRead {
			continue
		}
		r.items[i].ReadState = feed.ReadStateUnread
		reverted = append(reverted, id)
	}
	return reverted
}

// ApplyChangeEvent applies one change event. It is idempotent: applying
// the same event twice leaves the list as applying it once.
func (r *Reconciler[P]) ApplyChangeEvent(ev feed.ChangeEvent[P]) Outcome {
	if !r.seeded {
		r.pending = append(r.pending, ev)
		return OutcomeBuffered
	}
	if ev.ParentKey != "" && ev.ParentKey != r.parentKey {
		return OutcomeIgnored
	}

	switch ev.Kind {
	case feed.KindInserted:
		return r.applyInserted(ev)
	case feed.KindUpdated:
		return r.applyUpdated(ev)
	case feed.KindDeleted:
		return r.applyDeleted(ev)
	default:
		return OutcomeIgnored
	}
}

func (r *Reconciler[P]) applyInserted(ev feed.ChangeEvent[P]) Outcome {
	if r.tombstoned(ev.RowID) {
		return OutcomeIgnored
	}
	if r.indexOf(ev.RowID) >= 0 {
		return OutcomeIgnored
	}
	if i := r.findPromotable(ev.RowID, ev.Stub, r.eventTime(ev)); i >= 0 {
		r.promote(i, ev.RowID, ev.CreatedAt, ev.Stub, ev.ReadState)
		return OutcomeApplied
	}
	return OutcomeNeedsDetail
}

func (r *Reconciler[P]) applyUpdated(ev feed.ChangeEvent[P]) Outcome {
	if r.tombstoned(ev.RowID) {
		return OutcomeIgnored
	}
	i := r.indexOf(ev.RowID)
	if i < 0 {
		i = r.indexOfServerID(ev.RowID)
	}
	if i < 0 {
		return OutcomeNeedsDetail
	}
	if ev.Stub == nil && ev.ReadState == "" {
		return OutcomeNeedsDetail
	}

	it := r.items[i]
	before := it
	if ev.Stub != nil {
		it.Payload = feed.MergePayload(it.Payload, *ev.Stub)
	}
	if ev.ReadState != "" {
		it.ReadState = ev.ReadState
	}
	if equalItems(before, it) {
		return OutcomeIgnored
	}
	r.items[i] = it
	return OutcomeApplied
}

func (r *Reconciler[P]) applyDeleted(ev feed.ChangeEvent[P]) Outcome {
	r.tombstones[ev.RowID] = struct{}{}
	changed := false
	if i := r.indexOf(ev.RowID); i >= 0 {
		r.removeAt(i)
		changed = true
	}
	if i := r.indexOfServerID(ev.RowID); i >= 0 {
		r.removeAt(i)
		changed = true
	}
	if changed {
		return OutcomeApplied
	}
	return OutcomeIgnored
}

// ApplyDetail completes an event that returned OutcomeNeedsDetail with
// the fetched row. The list may have moved on since the event arrived
// (duplicates, deletions, promotions), so every rule is re-checked.
func (r *Reconciler[P]) ApplyDetail(ev feed.ChangeEvent[P], row feed.Item[P]) Outcome {
	if row.ID == "" {
		row.ID = ev.RowID
	}
	if r.tombstoned(row.ID) {
		return OutcomeIgnored
	}
	if row.ParentKey != "" && row.ParentKey != r.parentKey {
		return OutcomeIgnored
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = r.eventTime(ev)
	}

	if i := r.indexOf(row.ID); i >= 0 {
		if ev.Kind != feed.KindUpdated {
			return OutcomeIgnored
		}
		it := r.items[i]
		before := it
		it.Payload = row.Payload
		if row.ReadState != "" {
			it.ReadState = row.ReadState
		}
		if equalItems(before, it) {
			return OutcomeIgnored
		}
		r.items[i] = it
		return OutcomeApplied
	}

	payload := row.Payload
	if i := r.findPromotable(row.ID, &payload, row.CreatedAt); i >= 0 {
		it := r.items[i]
		it.Payload = row.Payload
		r.removeAt(i)
		it.ID = row.ID
		it.CreatedAt = row.CreatedAt
		it.Origin = feed.OriginConfirmed
		it.ServerID = ""
		if row.ReadState != "" {
			it.ReadState = row.ReadState
		}
		r.insert(it)
		return OutcomeApplied
	}

	row.ParentKey = r.parentKey
	row.Origin = feed.OriginConfirmed
	row.ServerID = ""
	r.insert(row)
	if ev.Kind == feed.KindInserted {
		r.arrivals = append(r.arrivals, row)
	}
	return OutcomeApplied
}

// promote turns the optimistic item at i into the confirmed row rowID.
func (r *Reconciler[P]) promote(i int, rowID string, createdAt time.Time, stub *P, rs feed.ReadState) {
	it := r.items[i]
	r.removeAt(i)
	it.ID = rowID
	if !createdAt.IsZero() {
		it.CreatedAt = createdAt
	}
	if stub != nil {
		it.Payload = feed.MergePayload(it.Payload, *stub)
	}
	if rs != "" {
		it.ReadState = rs
	}
	it.Origin = feed.OriginConfirmed
	it.ServerID = ""
	r.insert(it)
}

func (r *Reconciler[P]) eventTime(ev feed.ChangeEvent[P]) time.Time {
	if ev.CreatedAt.IsZero() {
		return r.clock.Now()
	}
	return ev.CreatedAt
}

func (r *Reconciler[P]) tombstoned(id string) bool {
	_, ok := r.tombstones[id]
	return ok
}

func (r *Reconciler[P]) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, it := range r.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (r *Reconciler[P]) indexOfServerID(id string) int {
	if id == "" {
		return -1
	}
	for i, it := range r.items {
		if it.Origin == feed.OriginOptimistic && it.ServerID == id {
			return i
		}
	}
	return -1
}

// insert places it at its sorted position.
func (r *Reconciler[P]) insert(it feed.Item[P]) {
	i, _ := slices.BinarySearchFunc(r.items, it, feed.Compare[P])
	r.items = slices.Insert(r.items, i, it)
}

func (r *Reconciler[P]) removeAt(i int) {
	r.items = slices.Delete(r.items, i, i+1)
}

func equalItems[P feed.Payload](a, b feed.Item[P]) bool {
	return a.ID == b.ID &&
		a.ReadState == b.ReadState &&
		a.Origin == b.Origin &&
		a.CreatedAt.Equal(b.CreatedAt) &&
		a.ServerID == b.ServerID &&
		reflect.DeepEqual(a.Payload, b.Payload)
}
