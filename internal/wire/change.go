package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/feedsync/internal/feed"
)

// Table names published on the realtime stream.
const (
	TableComments      = "comments"
	TableNotifications = "notifications"
)

// Change is one row-level change on the realtime stream.
type Change struct {
	Table  string    `json:"table"`
	Kind   feed.Kind `json:"type"`
	RowID  string    `json:"row_id"`
	Commit time.Time `json:"commit_timestamp"`

	// Columns holds the filterable column values of the row.
	Columns map[string]string `json:"columns"`

	// Record is the row's own columns: the new row for inserts and
	// updates, the old row for deletes.
	Record json.RawMessage `json:"record,omitempty"`
}

// Matches reports whether the change belongs to topic.
func (c Change) Matches(topic feed.Topic) bool {
	return c.Table == topic.Table && c.Columns[topic.Column] == topic.Value
}

// NewCommentChange builds the change record for a comment row. Joined
// profile fields are stripped.
func NewCommentChange(kind feed.Kind, row CommentRow, at time.Time) (Change, error) {
	row.Profile = nil
	rec, err := json.Marshal(row)
	if err != nil {
		return Change{}, fmt.Errorf("encode comment %s: %w", row.ID, err)
	}
	return Change{
		Table:   TableComments,
		Kind:    kind,
		RowID:   row.ID,
		Commit:  at,
		Columns: map[string]string{"id": row.ID, "review_id": row.ReviewID, "user_id": row.UserID},
		Record:  rec,
	}, nil
}

// NewNotificationChange builds the change record for a notification row.
func NewNotificationChange(kind feed.Kind, row NotificationRow, at time.Time) (Change, error) {
	rec, err := json.Marshal(row)
	if err != nil {
		return Change{}, fmt.Errorf("encode notification %s: %w", row.ID, err)
	}
	return Change{
		Table:   TableNotifications,
		Kind:    kind,
		RowID:   row.ID,
		Commit:  at,
		Columns: map[string]string{"id": row.ID, "user_id": row.UserID},
		Record:  rec,
	}, nil
}

// Decoder turns a change record into a typed change event.
type Decoder[P feed.Payload] func(Change) (feed.ChangeEvent[P], error)

// DecodeComment converts a comments change. Inserts and updates carry a
// stub without profile fields.
func DecodeComment(c Change) (feed.ChangeEvent[feed.Comment], error) {
	if c.Table != TableComments {
		return feed.ChangeEvent[feed.Comment]{}, fmt.Errorf("decode comment: unexpected table %q", c.Table)
	}
	ev := feed.ChangeEvent[feed.Comment]{Kind: c.Kind, RowID: c.RowID, ParentKey: c.Columns["review_id"]}
	if len(c.Record) == 0 {
		return ev, nil
	}

	var row CommentRow
	if err := json.Unmarshal(c.Record, &row); err != nil {
		return feed.ChangeEvent[feed.Comment]{}, fmt.Errorf("decode comment %s: %w", c.RowID, err)
	}
	ev.CreatedAt = row.CreatedAt
	if ev.ParentKey == "" {
		ev.ParentKey = row.ReviewID
	}
	if c.Kind != feed.KindDeleted {
		stub := row.Item().Payload
		ev.Stub = &stub
	}
	return ev, nil
}

// DecodeNotification converts a notifications change. The read flag is
// carried on every insert and update.
func DecodeNotification(c Change) (feed.ChangeEvent[feed.Notification], error) {
	if c.Table != TableNotifications {
		return feed.ChangeEvent[feed.Notification]{}, fmt.Errorf("decode notification: unexpected table %q", c.Table)
	}
	ev := feed.ChangeEvent[feed.Notification]{Kind: c.Kind, RowID: c.RowID, ParentKey: c.Columns["user_id"]}
	if len(c.Record) == 0 {
		return ev, nil
	}

	var row NotificationRow
	if err := json.Unmarshal(c.Record, &row); err != nil {
		return feed.ChangeEvent[feed.Notification]{}, fmt.Errorf("decode notification %s: %w", c.RowID, err)
	}
	ev.CreatedAt = row.CreatedAt
	if ev.ParentKey == "" {
		ev.ParentKey = row.UserID
	}
	if c.Kind != feed.KindDeleted {
		item := row.Item()
		ev.Stub = &item.Payload
		ev.ReadState = item.ReadState
	}
	return ev, nil
}
