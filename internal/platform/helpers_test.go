package platform

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/wire"
)

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

// createTestStore opens a temp-dir store with a fixed clock and
// sequential ids.
func createTestStore(t *testing.T) (*Store, *testclock.Clock) {
	t.Helper()
	clk := testclock.NewClock(t0)
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(clk), WithIDGenerator(NewSequenceGenerator("id")))
	require.NoError(t, err, "Open() failed")
	t.Cleanup(func() { s.Close() })
	return s, clk
}

// seedReview creates owner and commenter profiles and one review.
func seedReview(t *testing.T, s *Store) wire.Review {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertProfile(ctx, wire.Profile{ID: "owner", Name: "Ayu"}))
	require.NoError(t, s.UpsertProfile(ctx, wire.Profile{ID: "reader", Name: "Budi", AvatarURL: "budi.png"}))
	r, err := s.CreateReview(ctx, wire.Review{ID: "r1", Slug: "dune", UserID: "owner", Title: "Dune"})
	require.NoError(t, err)
	return r
}

// recv waits for the next change on sub.
func recv(t *testing.T, sub *Subscription) wire.Change {
	t.Helper()
	select {
	case c := <-sub.C():
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no change delivered")
		return wire.Change{}
	}
}

func assertNoChange(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case c := <-sub.C():
		t.Fatalf("unexpected change %s %s", c.Kind, c.RowID)
	case <-time.After(20 * time.Millisecond):
	}
}

func feedRow(userID, message string) wire.NotificationRow {
	return wire.NotificationRow{UserID: userID, Type: "system", Message: message}
}

func ids(rows []wire.CommentRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func itemIDs[P feed.Payload](items []feed.Item[P]) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
