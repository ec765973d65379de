package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsync/internal/config"
	"github.com/roach88/feedsync/internal/feedsync"
	"github.com/roach88/feedsync/internal/present"
)

func TestWatchCommand_PrintsSnapshotThread(t *testing.T) {
	store, ts := newRemote(t)
	_, err := store.CreateComment(context.Background(), "r-dune", "budi", "the worm scenes hold up")
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	cmd := NewWatchCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"comments", "r-dune", "--server", ts.URL, "--count", "1"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, cmd.ExecuteContext(ctx))
	require.NoError(t, ctx.Err(), "watch should stop after one view")

	var rec struct {
		Kind string         `json:"kind"`
		Data present.Thread `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "thread", rec.Kind)
	require.Equal(t, 1, rec.Data.Count)
	assert.Equal(t, "Budi", rec.Data.Comments[0].AuthorName)
	assert.Equal(t, "B", rec.Data.Comments[0].Initial)
	assert.Equal(t, "the worm scenes hold up", rec.Data.Comments[0].Content)
}

func TestWatchCommand_MarkRead(t *testing.T) {
	store, ts := newRemote(t)
	bg := context.Background()
	for _, msg := range []string{"Budi commented on Dune", "Citra commented on Dune"} {
		_, err := store.CreateNotification(bg, notification("ayu", msg))
		require.NoError(t, err)
	}

	buf := &bytes.Buffer{}
	cmd := NewWatchCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"notifications", "ayu", "--server", ts.URL, "--mark-read"})

	ctx, cancel := context.WithTimeout(bg, 10*time.Second)
	defer cancel()
	go func() {
		assert.Eventually(t, func() bool {
			rows, err := store.ListNotifications(bg, "ayu", 0)
			if err != nil {
				return false
			}
			for _, r := range rows {
				if !r.IsRead {
					return false
				}
			}
			return true
		}, 5*time.Second, 20*time.Millisecond)
		cancel()
	}()

	require.NoError(t, cmd.ExecuteContext(ctx))
	out := buf.String()
	assert.Contains(t, out, "Inbox: 2 unread [2]")
	assert.Contains(t, out, "Inbox: all read")
	assert.Contains(t, out, "Budi commented on Dune")
	assert.Contains(t, out, "/reviews/dune")
}

// syncBuffer lets the test read output while the session writes it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchCommand_PrintsArrivals(t *testing.T) {
	store, ts := newRemote(t)
	bg := context.Background()

	out := &syncBuffer{}
	cmd := NewWatchCommand(&RootOptions{Format: "json"})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"comments", "r-dune", "--server", ts.URL})

	ctx, cancel := context.WithTimeout(bg, 10*time.Second)
	defer cancel()
	go func() {
		defer cancel()
		if !assert.Eventually(t, func() bool { return strings.Contains(out.String(), `"kind":"thread"`) }, 5*time.Second, 10*time.Millisecond) {
			return
		}
		_, err := store.CreateComment(bg, "r-dune", "citra", "spice must flow")
		if !assert.NoError(t, err) {
			return
		}
		assert.Eventually(t, func() bool { return strings.Contains(out.String(), `"kind":"arrival"`) }, 5*time.Second, 10*time.Millisecond)
	}()

	require.NoError(t, cmd.ExecuteContext(ctx))

	var arrivals []present.Arrival
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var rec struct {
			Kind string          `json:"kind"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		if rec.Kind == "arrival" {
			var a present.Arrival
			require.NoError(t, json.Unmarshal(rec.Data, &a))
			arrivals = append(arrivals, a)
		}
	}
	require.Len(t, arrivals, 1, "the snapshot is not announced")
	assert.Equal(t, "Citra commented", arrivals[0].Title)
	assert.Equal(t, "spice must flow", arrivals[0].Text)
}

func TestWatchCommand_FailsWhenServerGone(t *testing.T) {
	_, ts := newRemote(t)
	url := ts.URL
	ts.Close()

	cfg := config.Default()
	cfg.Sync.Backoff = feedsync.Backoff{Base: time.Millisecond, Cap: 2 * time.Millisecond, Attempts: 2}

	errBuf := &bytes.Buffer{}
	cmd := NewWatchCommand(&RootOptions{Format: "text", Config: cfg})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{"comments", "r-dune", "--server", url})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "feed failed")
	assert.Contains(t, errBuf.String(), "feed error:")
}

func TestWatchCommand_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown feed", []string{"likes", "r-dune", "--server", "http://localhost:1"}, "unknown feed"},
		{"bad server", []string{"comments", "r-dune", "--server", "ftp://localhost"}, "invalid server URL"},
		{"empty key", []string{"comments", "", "--server", "http://localhost:1"}, "failed to open feed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewWatchCommand(&RootOptions{Format: "text"})
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPrintThread(t *testing.T) {
	buf := &bytes.Buffer{}
	printThread(buf, present.Thread{
		Count: 2,
		Comments: []present.CommentView{
			{Initial: "B", AuthorName: "Budi", When: "now", Content: "sending this", Pending: true},
			{Initial: "A", AuthorName: "Ayu", When: "2 minutes ago", Content: "first!"},
		},
	})
	assert.Equal(t, "2 comments\n"+
		"  [B] Budi, now (sending)\n"+
		"      sending this\n"+
		"  [A] Ayu, 2 minutes ago\n"+
		"      first!\n", buf.String())
}

func TestPrintInbox(t *testing.T) {
	buf := &bytes.Buffer{}
	printInbox(buf, present.Inbox{
		Unread: 1,
		Badge:  "1",
		Items: []present.NotificationView{
			{Message: "Budi commented", When: "now", Link: "/reviews/dune", Unread: true},
			{Message: "welcome", When: "1 day ago"},
		},
	})
	assert.Equal(t, "Inbox: 1 unread [1]\n"+
		"  * Budi commented (now) /reviews/dune\n"+
		"    welcome (1 day ago)\n", buf.String())

	buf.Reset()
	printInbox(buf, present.Inbox{})
	assert.Equal(t, "Inbox: all read\n", buf.String())
}

func TestPrintArrival(t *testing.T) {
	buf := &bytes.Buffer{}
	printArrival(buf, present.Arrival{Title: "New notification", Text: "Budi commented on Dune", When: "now", Link: "/reviews/dune"})
	assert.Equal(t, "New: New notification: Budi commented on Dune (now) /reviews/dune\n", buf.String())
}
