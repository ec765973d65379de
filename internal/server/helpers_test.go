package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/platform"
	"github.com/roach88/feedsync/internal/wire"
)

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

// newTestServer serves a seeded store: profiles owner (Ayu) and reader
// (Budi), and review r1 owned by owner.
func newTestServer(t *testing.T, opts ...Option) (*Server, *platform.Store, *httptest.Server) {
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

	srv := New(store, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ts.Close()
		store.Close()
	})
	return srv, store, ts
}

// do sends a JSON request and decodes a JSON response into out, if set.
func do(t *testing.T, ts *httptest.Server, method, path, userID string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// dialRealtime opens a realtime stream. The broker holds its
// subscription by the time the dial returns.
func dialRealtime(t *testing.T, ts *httptest.Server, store *platform.Store, topic feed.Topic) *websocket.Conn {
	t.Helper()
	before := store.Broker().Len()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/realtime?table=" + topic.Table +
		"&column=" + topic.Column + "&value=" + topic.Value
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Greater(t, store.Broker().Len(), before, "stream not subscribed when the dial returned")
	return conn
}

// readChange reads the next change from conn.
func readChange(t *testing.T, conn *websocket.Conn) wire.Change {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var c wire.Change
	require.NoError(t, conn.ReadJSON(&c))
	return c
}
