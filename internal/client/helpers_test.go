package client

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsync/internal/platform"
	"github.com/roach88/feedsync/internal/server"
	"github.com/roach88/feedsync/internal/wire"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

// newRemote starts a server over a seeded store and returns a client for
// it. The store holds profiles owner (Ayu) and reader (Budi) and review r1
// owned by owner.
func newRemote(t *testing.T) (*Client, *platform.Store) {
	t.Helper()
	store, err := platform.Open(
		filepath.Join(t.TempDir(), "test.db"),
		platform.WithClock(testclock.NewClock(t0)),
		platform.WithIDGenerator(platform.NewSequenceGenerator("id")),
	)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.UpsertProfile(ctx, wire.Profile{ID: "owner", Name: "Ayu"}))
	require.NoError(t, store.UpsertProfile(ctx, wire.Profile{ID: "reader", Name: "Budi"}))
	_, err = store.CreateReview(ctx, wire.Review{ID: "r1", Slug: "dune", UserID: "owner", Title: "Dune"})
	require.NoError(t, err)

	srv := server.New(store)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ts.Close()
		store.Close()
	})

	c, err := New(ts.URL, WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	return c, store
}
