package platform

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/wire"
)

func seedInbox(t *testing.T, s *Store, n int) []wire.NotificationRow {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertProfile(ctx, wire.Profile{ID: "u1", Name: "Citra"}))
	var rows []wire.NotificationRow
	for i := 0; i < n; i++ {
		row, err := s.CreateNotification(ctx, wire.NotificationRow{
			UserID:    "u1",
			Type:      "like",
			Message:   fmt.Sprintf("like %d", i),
			CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		rows = append(rows, row)
	}
	return rows
}

func TestListNotifications_NewestFirstWithLimit(t *testing.T) {
	s, _ := createTestStore(t)
	seedInbox(t, s, 12)

	list, err := s.ListNotifications(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, list, DefaultNotificationLimit)
	assert.Equal(t, "like 11", list[0].Message)
	assert.Equal(t, "like 2", list[9].Message)

	three, err := s.ListNotifications(context.Background(), "u1", 3)
	require.NoError(t, err)
	assert.Len(t, three, 3)
}

func TestCreateNotification_Validates(t *testing.T) {
	s, _ := createTestStore(t)
	_, err := s.CreateNotification(context.Background(), wire.NotificationRow{UserID: "u1"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMarkNotificationsRead_Subset(t *testing.T) {
	s, _ := createTestStore(t)
	rows := seedInbox(t, s, 3)
	sub := s.Broker().Subscribe(feed.NotificationsTopic("u1"))
	ctx := context.Background()

	n, err := s.MarkNotificationsRead(ctx, "u1", []string{rows[0].ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c := recv(t, sub)
	assert.Equal(t, feed.KindUpdated, c.Kind)
	assert.Equal(t, rows[0].ID, c.RowID)
	ev, err := wire.DecodeNotification(c)
	require.NoError(t, err)
	assert.Equal(t, feed.ReadStateRead, ev.ReadState)

	// Already read: nothing changes, nothing is published.
	n, err = s.MarkNotificationsRead(ctx, "u1", []string{rows[0].ID})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assertNoChange(t, sub)
}

func TestMarkNotificationsRead_AllUnread(t *testing.T) {
	s, _ := createTestStore(t)
	seedInbox(t, s, 3)
	ctx := context.Background()

	n, err := s.MarkNotificationsRead(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	list, err := s.ListNotifications(ctx, "u1", 0)
	require.NoError(t, err)
	for _, row := range list {
		assert.True(t, row.IsRead, row.ID)
	}
}

func TestMarkNotificationsRead_OtherUserUntouched(t *testing.T) {
	s, _ := createTestStore(t)
	rows := seedInbox(t, s, 1)

	n, err := s.MarkNotificationsRead(context.Background(), "someone-else", []string{rows[0].ID})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestGetNotification(t *testing.T) {
	s, _ := createTestStore(t)
	rows := seedInbox(t, s, 1)

	got, err := s.GetNotification(context.Background(), rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, rows[0].Message, got.Message)
	assert.True(t, got.CreatedAt.Equal(rows[0].CreatedAt))

	_, err = s.GetNotification(context.Background(), "nope")
	assert.ErrorIs(t, err, feed.ErrNotFound)
}
