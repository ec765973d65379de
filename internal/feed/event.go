package feed

import (
	"fmt"
	"time"
)

// Kind is the row-level change type delivered by the change feed.
type Kind string

const (
	KindInserted Kind = "inserted"
	KindUpdated  Kind = "updated"
	KindDeleted  Kind = "deleted"
)

// ParseKind converts a wire value into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindInserted, KindUpdated, KindDeleted:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown change kind %q", s)
	}
}

// ChangeEvent is one row-level change for a subscribed topic.
//
// Stub carries whatever part of the record the platform delivered. It may
// omit joined fields (an author's display name, for example), in which
// case the full record has to be fetched.
type ChangeEvent[P Payload] struct {
	Kind      Kind
	RowID     string
	ParentKey string
	CreatedAt time.Time
	Stub      *P

	// ReadState is set when the platform reports a notification's read
	// flag. Empty for feeds without read state.
	ReadState ReadState
}

// Topic is a table watched through one equality predicate (Column = Value).
type Topic struct {
	Table  string
	Column string
	Value  string
}

// ParentKey returns the predicate value, which doubles as the feed key.
func (t Topic) ParentKey() string {
	return t.Value
}

// String renders the topic the way the platform spells its filters.
func (t Topic) String() string {
	return fmt.Sprintf("%s:%s=eq.%s", t.Table, t.Column, t.Value)
}

// Validate checks that every part of the topic is set.
func (t Topic) Validate() error {
	if t.Table == "" || t.Column == "" || t.Value == "" {
		return fmt.Errorf("invalid topic %q: table, column and value are required", t.String())
	}
	return nil
}

// CommentsTopic watches comments of one review.
func CommentsTopic(reviewID string) Topic {
	return Topic{Table: "comments", Column: "review_id", Value: reviewID}
}

// NotificationsTopic watches the notification inbox of one user.
func NotificationsTopic(userID string) Topic {
	return Topic{Table: "notifications", Column: "user_id", Value: userID}
}
