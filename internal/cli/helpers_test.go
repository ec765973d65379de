package cli

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsync/internal/platform"
	"github.com/roach88/feedsync/internal/server"
	"github.com/roach88/feedsync/internal/wire"
)

// newRemote serves a store holding the demo profiles and reviews.
func newRemote(t *testing.T) (*platform.Store, *httptest.Server) {
	t.Helper()
	store, err := platform.Open(filepath.Join(t.TempDir(), "remote.db"))
	require.NoError(t, err)

	ctx := context.Background()
	for _, p := range demoProfiles {
		require.NoError(t, store.UpsertProfile(ctx, p))
	}
	for _, r := range demoReviews {
		_, err := store.CreateReview(ctx, r)
		require.NoError(t, err)
	}

	srv := server.New(store)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ts.Close()
		store.Close()
	})
	return store, ts
}

func notification(userID, message string) wire.NotificationRow {
	return wire.NotificationRow{UserID: userID, ActorID: "budi", Type: "comment", Message: message, ReferenceSlug: "dune"}
}
