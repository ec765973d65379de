package platform

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/wire"
)

func TestCreateComment_TrimsAndJoinsProfile(t *testing.T) {
	s, _ := createTestStore(t)
	seedReview(t, s)

	c, err := s.CreateComment(context.Background(), "r1", "reader", "  great read  ")
	require.NoError(t, err)

	assert.Equal(t, "great read", c.Content)
	assert.Equal(t, "r1", c.ReviewID)
	assert.True(t, c.CreatedAt.Equal(t0))
	require.NotNil(t, c.Profile)
	assert.Equal(t, "Budi", c.Profile.Name)
	assert.Equal(t, "budi.png", c.Profile.AvatarURL)
}

func TestCreateComment_Rejects(t *testing.T) {
	s, _ := createTestStore(t)
	seedReview(t, s)
	ctx := context.Background()

	_, err := s.CreateComment(ctx, "r1", "reader", "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.CreateComment(ctx, "r1", "", "hi")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.CreateComment(ctx, "missing", "reader", "hi")
	assert.ErrorIs(t, err, feed.ErrNotFound)
}

func TestCreateComment_NotifiesOwner(t *testing.T) {
	s, _ := createTestStore(t)
	seedReview(t, s)
	comments := s.Broker().Subscribe(feed.CommentsTopic("r1"))
	inbox := s.Broker().Subscribe(feed.NotificationsTopic("owner"))
	ctx := context.Background()

	c, err := s.CreateComment(ctx, "r1", "reader", "nice")
	require.NoError(t, err)

	change := recv(t, comments)
	assert.Equal(t, feed.KindInserted, change.Kind)
	assert.Equal(t, c.ID, change.RowID)
	assert.NotContains(t, string(change.Record), "Budi", "change records carry no joined profile")

	n := recv(t, inbox)
	assert.Equal(t, wire.TableNotifications, n.Table)
	var row wire.NotificationRow
	require.NoError(t, json.Unmarshal(n.Record, &row))
	assert.Equal(t, "comment", row.Type)
	assert.Equal(t, "reader", row.ActorID)
	assert.Equal(t, "dune", row.ReferenceSlug)
	assert.Equal(t, `Budi commented on your review "Dune"`, row.Message)
	assert.False(t, row.IsRead)

	list, err := s.ListNotifications(ctx, "owner", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestCreateComment_OwnerCommentNotNotified(t *testing.T) {
	s, _ := createTestStore(t)
	seedReview(t, s)
	inbox := s.Broker().Subscribe(feed.NotificationsTopic("owner"))

	_, err := s.CreateComment(context.Background(), "r1", "owner", "thanks all")
	require.NoError(t, err)

	assertNoChange(t, inbox)
	list, err := s.ListNotifications(context.Background(), "owner", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListComments_Order(t *testing.T) {
	s, clk := createTestStore(t)
	seedReview(t, s)
	ctx := context.Background()

	first, err := s.CreateComment(ctx, "r1", "reader", "first")
	require.NoError(t, err)
	clk.Advance(time.Minute)
	second, err := s.CreateComment(ctx, "r1", "owner", "second")
	require.NoError(t, err)
	// Same timestamp as second: id breaks the tie.
	third, err := s.CreateComment(ctx, "r1", "owner", "third")
	require.NoError(t, err)

	list, err := s.ListComments(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, third.ID, list[1].ID)
	assert.Equal(t, first.ID, list[2].ID)

	empty, err := s.ListComments(ctx, "r-none")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestUpdateAndDeleteComment(t *testing.T) {
	s, _ := createTestStore(t)
	seedReview(t, s)
	ctx := context.Background()
	c, err := s.CreateComment(ctx, "r1", "owner", "draft")
	require.NoError(t, err)
	sub := s.Broker().Subscribe(feed.CommentsTopic("r1"))

	updated, err := s.UpdateComment(ctx, c.ID, " final ")
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Content)
	assert.Equal(t, feed.KindUpdated, recv(t, sub).Kind)

	require.NoError(t, s.DeleteComment(ctx, c.ID))
	del := recv(t, sub)
	assert.Equal(t, feed.KindDeleted, del.Kind)
	assert.Equal(t, "r1", del.Columns["review_id"])

	_, err = s.GetComment(ctx, c.ID)
	assert.ErrorIs(t, err, feed.ErrNotFound)
	assert.ErrorIs(t, s.DeleteComment(ctx, c.ID), feed.ErrNotFound)
	_, err = s.UpdateComment(ctx, c.ID, "x")
	assert.ErrorIs(t, err, feed.ErrNotFound)
}

func TestGetReview_ByIDOrSlug(t *testing.T) {
	s, _ := createTestStore(t)
	seedReview(t, s)
	ctx := context.Background()

	byID, err := s.GetReview(ctx, "r1")
	require.NoError(t, err)
	bySlug, err := s.GetReview(ctx, "dune")
	require.NoError(t, err)
	assert.Equal(t, byID, bySlug)

	_, err = s.GetReview(ctx, "nope")
	assert.ErrorIs(t, err, feed.ErrNotFound)
}
