package feed

import "time"

// Origin tags where an Item came from.
type Origin string

const (
	// OriginSnapshot marks items loaded by the initial (or re-) snapshot.
	OriginSnapshot Origin = "snapshot"
	// OriginOptimistic marks locally written items awaiting their change event.
	OriginOptimistic Origin = "optimistic"
	// OriginConfirmed marks items delivered or confirmed by the change feed.
	OriginConfirmed Origin = "confirmed"
)

// ReadState tracks whether a notification has been seen.
// The zero value means the feed does not track read state (comments).
type ReadState string

const (
	ReadStateNone   ReadState = ""
	ReadStateUnread ReadState = "unread"
	ReadStateRead   ReadState = "read"
)

// Payload is the domain record carried by an Item.
//
// The synchronizer treats payloads as opaque except for the two accessors
// used to match an optimistic write against its change-feed echo.
type Payload interface {
	// AuthorID identifies who produced the record.
	AuthorID() string
	// Body is the user-visible text compared for content equality.
	Body() string
}

// Item is one entry in a feed.
type Item[P Payload] struct {
	// ID is the authoritative row id, or a temporary local id while the
	// item is optimistic.
	ID string

	// ParentKey identifies the feed (thread id, recipient user id).
	ParentKey string

	Payload   P
	CreatedAt time.Time
	Origin    Origin
	ReadState ReadState

	// ServerID is the row id returned by a successful write while the item
	// is still optimistic. Empty otherwise.
	ServerID string
}

// Unread reports whether the item counts towards an unread badge.
func (it Item[P]) Unread() bool {
	return it.ReadState == ReadStateUnread
}

// WithOrigin returns a copy of the item tagged with origin.
func (it Item[P]) WithOrigin(origin Origin) Item[P] {
	it.Origin = origin
	return it
}
