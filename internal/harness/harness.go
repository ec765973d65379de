package harness

import (
	"fmt"
	"strings"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/reconcile"
)

// Epoch is the scenario clock's starting instant. Row offsets are relative
// to it.
var Epoch = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

// Run executes a scenario on a fresh Reconciler with a fixed clock.
// Expectation and assertion failures are reported in the Result; an error
// means the script itself could not be executed.
func Run(s *Scenario) (*Result, error) {
	switch s.Feed {
	case FeedComments:
		return run(s, commentCodec)
	case FeedNotifications:
		return run(s, notificationCodec)
	default:
		return nil, fmt.Errorf("unknown feed %q", s.Feed)
	}
}

// codec converts scenario rows to payloads and back for assertions.
type codec[P feed.Payload] struct {
	payload    func(Row) P
	authorName func(P) string
}

var commentCodec = codec[feed.Comment]{
	payload: func(r Row) feed.Comment {
		return feed.Comment{UserID: r.Author, AuthorName: r.AuthorName, Content: r.Body}
	},
	authorName: func(c feed.Comment) string { return c.AuthorName },
}

var notificationCodec = codec[feed.Notification]{
	payload: func(r Row) feed.Notification {
		return feed.Notification{ActorID: r.Author, Type: r.Type, Message: r.Body, ReferenceSlug: r.Slug}
	},
	authorName: func(feed.Notification) string { return "" },
}

type runner[P feed.Payload] struct {
	s       *Scenario
	codec   codec[P]
	clock   *testclock.Clock
	rec     *reconcile.Reconciler[P]
	waiting map[string][]feed.ChangeEvent[P]
	result  *Result
}

func run[P feed.Payload](s *Scenario, c codec[P]) (*Result, error) {
	clk := testclock.NewClock(Epoch)
	opts := []reconcile.Option{reconcile.WithClock(clk)}
	if s.MatchWindow != "" {
		d, err := time.ParseDuration(s.MatchWindow)
		if err != nil {
			return nil, fmt.Errorf("match_window: %w", err)
		}
		opts = append(opts, reconcile.WithMatchWindow(d))
	}

	r := &runner[P]{
		s:       s,
		codec:   c,
		clock:   clk,
		rec:     reconcile.New[P](s.Parent, opts...),
		waiting: make(map[string][]feed.ChangeEvent[P]),
		result:  NewResult(),
	}

	for i, step := range s.Steps {
		target, outcome, err := r.exec(step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] %s: %w", i, step.Op, err)
		}
		if step.Expect != "" && step.Expect != outcome {
			r.result.AddError(fmt.Sprintf("steps[%d] %s %s: expected outcome %s, got %s",
				i, step.Op, target, step.Expect, outcome))
		}
		r.result.Trace = append(r.result.Trace, TraceEvent{
			Seq:     i + 1,
			Op:      step.Op,
			Target:  target,
			Outcome: outcome,
			Items:   render(r.rec.Items()),
		})
	}

	r.result.Final = render(r.rec.Items())
	for i, a := range s.Assertions {
		if err := checkAssertion(a, r.rec.Items(), r.rec.UnreadCount(), c.authorName); err != nil {
			r.result.AddError(fmt.Sprintf("assertions[%d] %s: %v", i, a.Type, err))
		}
	}
	return r.result, nil
}

// exec applies one step and returns its target and outcome for the trace.
func (r *runner[P]) exec(step Step) (string, string, error) {
	switch step.Op {
	case OpSeed:
		items := make([]feed.Item[P], len(step.Rows))
		ids := make([]string, len(step.Rows))
		for i, row := range step.Rows {
			items[i] = r.item(row)
			ids[i] = row.ID
		}
		for _, ev := range r.rec.Seed(items) {
			r.waiting[ev.RowID] = append(r.waiting[ev.RowID], ev)
		}
		return strings.Join(ids, ","), reconcile.OutcomeApplied.String(), nil

	case OpResync:
		r.rec.Resync()
		return "", "", nil

	case OpAdvance:
		d, err := time.ParseDuration(step.By)
		if err != nil {
			return "", "", err
		}
		r.clock.Advance(d)
		return step.By, "", nil

	case OpOptimistic:
		r.rec.ApplyOptimistic(step.LocalID, r.codec.payload(*step.Row))
		return step.LocalID, reconcile.OutcomeApplied.String(), nil

	case OpAck:
		changed := r.rec.Acknowledge(step.LocalID, step.Row.ID, r.at(step.Row.At))
		return step.LocalID + "->" + step.Row.ID, changedOutcome(changed), nil

	case OpWriteFailed:
		return step.LocalID, changedOutcome(r.rec.SnapshotFailed(step.LocalID)), nil

	case OpEvent:
		ev := r.event(step)
		out := r.rec.ApplyChangeEvent(ev)
		if out == reconcile.OutcomeNeedsDetail {
			r.waiting[ev.RowID] = append(r.waiting[ev.RowID], ev)
		}
		return step.Kind + ":" + ev.RowID, out.String(), nil

	case OpDetail:
		ev, ok := r.take(step.Row.ID)
		if !ok {
			return "", "", fmt.Errorf("no detail fetch pending for %s", step.Row.ID)
		}
		out := r.rec.ApplyDetail(ev, r.item(*step.Row))
		return step.Row.ID, out.String(), nil

	case OpDetailMissing:
		for _, id := range step.IDs {
			if _, ok := r.take(id); !ok {
				return "", "", fmt.Errorf("no detail fetch pending for %s", id)
			}
		}
		return strings.Join(step.IDs, ","), reconcile.OutcomeIgnored.String(), nil

	case OpMarkRead:
		flipped := r.rec.MarkRead(step.IDs)
		return strings.Join(flipped, ","), changedOutcome(len(flipped) > 0), nil

	case OpRevertRead:
		reverted := r.rec.RevertRead(step.IDs)
		return strings.Join(reverted, ","), changedOutcome(len(reverted) > 0), nil

	default:
		return "", "", fmt.Errorf("unknown op %q", step.Op)
	}
}

// take pops the oldest pending detail fetch for id.
func (r *runner[P]) take(id string) (feed.ChangeEvent[P], bool) {
	q := r.waiting[id]
	if len(q) == 0 {
		return feed.ChangeEvent[P]{}, false
	}
	ev := q[0]
	if len(q) == 1 {
		delete(r.waiting, id)
	} else {
		r.waiting[id] = q[1:]
	}
	return ev, true
}

func (r *runner[P]) event(step Step) feed.ChangeEvent[P] {
	row := *step.Row
	ev := feed.ChangeEvent[P]{
		Kind:      feed.Kind(step.Kind),
		RowID:     row.ID,
		ParentKey: r.s.Parent,
		CreatedAt: r.at(row.At),
	}
	if ev.Kind != feed.KindDeleted {
		stub := r.codec.payload(row)
		ev.Stub = &stub
		ev.ReadState = r.readState(row)
	}
	return ev
}

func (r *runner[P]) item(row Row) feed.Item[P] {
	return feed.Item[P]{
		ID:        row.ID,
		ParentKey: r.s.Parent,
		Payload:   r.codec.payload(row),
		CreatedAt: r.at(row.At),
		ReadState: r.readState(row),
	}
}

func (r *runner[P]) readState(row Row) feed.ReadState {
	if r.s.Feed != FeedNotifications {
		return feed.ReadStateNone
	}
	if row.Read != nil && *row.Read {
		return feed.ReadStateRead
	}
	return feed.ReadStateUnread
}

// at resolves a row offset. Rows without one are stamped with the
// current scenario time.
func (r *runner[P]) at(offset string) time.Time {
	if offset == "" {
		return r.clock.Now()
	}
	d, _ := time.ParseDuration(offset)
	return Epoch.Add(d)
}

func changedOutcome(changed bool) string {
	if changed {
		return reconcile.OutcomeApplied.String()
	}
	return reconcile.OutcomeIgnored.String()
}

func render[P feed.Payload](items []feed.Item[P]) []string {
	out := make([]string, len(items))
	for i, it := range items {
		s := it.ID + "@" + string(it.Origin)
		if it.ReadState != feed.ReadStateNone {
			s += "/" + string(it.ReadState)
		}
		out[i] = s
	}
	return out
}
