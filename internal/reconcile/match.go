package reconcile

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/feedsync/internal/feed"
)

// DefaultMatchWindow bounds how far apart an optimistic item and its echo
// may be stamped and still be considered the same write.
const DefaultMatchWindow = 30 * time.Second

// normalizeBody canonicalizes text for content equality. Composed and
// decomposed forms of the same characters compare equal.
func normalizeBody(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// sameContent reports whether two payloads describe the same write.
func sameContent[P feed.Payload](a, b P) bool {
	return a.AuthorID() == b.AuthorID() && normalizeBody(a.Body()) == normalizeBody(b.Body())
}

// withinWindow reports whether a and b are at most window apart.
func withinWindow(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}

// findPromotable returns the index of the optimistic item a confirmed row
// should replace, or -1.
//
// Acknowledged ids win outright. Otherwise candidates are optimistic items
// not acknowledged to a different row, by the same author, with the same
// body, stamped within the window; the oldest candidate is chosen.
func (r *Reconciler[P]) findPromotable(rowID string, payload *P, at time.Time) int {
	for i, it := range r.items {
		if it.Origin == feed.OriginOptimistic && it.ServerID != "" && it.ServerID == rowID {
			return i
		}
	}
	if payload == nil {
		return -1
	}

	best := -1
	for i, it := range r.items {
		if it.Origin != feed.OriginOptimistic {
			continue
		}
		if it.ServerID != "" && it.ServerID != rowID {
			continue
		}
		if !sameContent(it.Payload, *payload) || !withinWindow(it.CreatedAt, at, r.window) {
			continue
		}
		if best < 0 || olderThan(it, r.items[best]) {
			best = i
		}
	}
	return best
}

func olderThan[P feed.Payload](a, b feed.Item[P]) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
