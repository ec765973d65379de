package feedsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsync/internal/feed"
)

func TestManager_OpenClosesPreviousSession(t *testing.T) {
	src := &fakeSource[feed.Comment]{}
	gw := newFakeGateway[feed.Comment]()
	m := NewManager[feed.Comment](src, gw, WithBackoff(fastBackoff))
	t.Cleanup(m.CloseAll)

	first, err := m.Open(context.Background(), "tab-1", feed.CommentsTopic("review-1"), nil)
	require.NoError(t, err)
	waitState(t, first, StateActive)
	firstHandle := src.latest(t, feed.CommentsTopic("review-1"), 1)

	second, err := m.Open(context.Background(), "tab-1", feed.CommentsTopic("review-2"), nil)
	require.NoError(t, err)

	assert.Equal(t, StateClosed, first.State())
	assert.True(t, firstHandle.Unsubscribed())

	got, ok := m.Session("tab-1")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, m.Len())
	waitState(t, second, StateActive)
}

func TestManager_NoCrossTopicLeakage(t *testing.T) {
	src := &fakeSource[feed.Comment]{}
	gw := newFakeGateway[feed.Comment]()
	gw.rows["c1"] = commentItem("c1", "u1", "for review 1", t0)
	other := commentItem("c2", "u1", "for review 2", t0)
	other.ParentKey = "review-2"
	gw.rows["c2"] = other

	m := NewManager[feed.Comment](src, gw, WithBackoff(fastBackoff))
	t.Cleanup(m.CloseAll)

	a, err := m.Open(context.Background(), "tab-a", feed.CommentsTopic("review-1"), nil)
	require.NoError(t, err)
	b, err := m.Open(context.Background(), "tab-b", feed.CommentsTopic("review-2"), nil)
	require.NoError(t, err)
	waitState(t, a, StateActive)
	waitState(t, b, StateActive)

	h := src.latest(t, feed.CommentsTopic("review-1"), 1)
	// Misrouted event first, then the real one.
	h.emit(feed.ChangeEvent[feed.Comment]{Kind: feed.KindInserted, RowID: "c2", ParentKey: "review-2"})
	h.emit(feed.ChangeEvent[feed.Comment]{Kind: feed.KindInserted, RowID: "c1", ParentKey: "review-1"})

	require.Eventually(t, func() bool { return len(a.Items()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"c1"}, ids(a.Items()))
	assert.Empty(t, b.Items())
}

func TestManager_OpenValidates(t *testing.T) {
	m := NewManager[feed.Comment](&fakeSource[feed.Comment]{}, newFakeGateway[feed.Comment]())

	_, err := m.Open(context.Background(), "", feed.CommentsTopic("review-1"), nil)
	assert.Error(t, err)

	_, err = m.Open(context.Background(), "tab-1", feed.Topic{Table: "comments"}, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestManager_CloseAndCloseAll(t *testing.T) {
	src := &fakeSource[feed.Comment]{}
	m := NewManager[feed.Comment](src, newFakeGateway[feed.Comment](), WithBackoff(fastBackoff))

	a, err := m.Open(context.Background(), "tab-a", feed.CommentsTopic("review-1"), nil)
	require.NoError(t, err)
	b, err := m.Open(context.Background(), "tab-b", feed.CommentsTopic("review-1"), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	m.Close("tab-a")
	assert.Equal(t, StateClosed, a.State())
	_, ok := m.Session("tab-a")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())

	m.Close("missing")

	m.CloseAll()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, m.Len())
}
