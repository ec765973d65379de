package wire

import (
	"time"

	"github.com/roach88/feedsync/internal/feed"
)

// Profile is the public part of a user profile.
type Profile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Review is the parent record of a comment thread.
type Review struct {
	ID     string `json:"id"`
	Slug   string `json:"slug"`
	UserID string `json:"user_id"`
	Title  string `json:"title"`
}

// CommentRow is a comment as stored. Profile is set only on rows read
// through the REST API.
type CommentRow struct {
	ID        string    `json:"id"`
	ReviewID  string    `json:"review_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Profile   *Profile  `json:"profiles,omitempty"`
}

// Item converts the row to a feed item.
func (r CommentRow) Item() feed.Item[feed.Comment] {
	c := feed.Comment{UserID: r.UserID, Content: r.Content}
	if r.Profile != nil {
		c.AuthorName = r.Profile.Name
		c.AvatarURL = r.Profile.AvatarURL
	}
	return feed.Item[feed.Comment]{
		ID:        r.ID,
		ParentKey: r.ReviewID,
		Payload:   c,
		CreatedAt: r.CreatedAt,
	}
}

// NotificationRow is an inbox entry as stored.
type NotificationRow struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	ActorID       string    `json:"actor_id"`
	Type          string    `json:"type"`
	Message       string    `json:"message"`
	ReferenceSlug string    `json:"reference_slug"`
	IsRead        bool      `json:"is_read"`
	CreatedAt     time.Time `json:"created_at"`
}

// Item converts the row to a feed item.
func (r NotificationRow) Item() feed.Item[feed.Notification] {
	return feed.Item[feed.Notification]{
		ID:        r.ID,
		ParentKey: r.UserID,
		Payload: feed.Notification{
			ActorID:       r.ActorID,
			Type:          r.Type,
			Message:       r.Message,
			ReferenceSlug: r.ReferenceSlug,
		},
		CreatedAt: r.CreatedAt,
		ReadState: ReadState(r.IsRead),
	}
}

// ReadState maps the is_read column to a feed read state.
func ReadState(isRead bool) feed.ReadState {
	if isRead {
		return feed.ReadStateRead
	}
	return feed.ReadStateUnread
}

// CommentRequest is the body of a comment create or edit.
type CommentRequest struct {
	Content string `json:"content"`
}

// MarkReadRequest is the body of a mark-read call. An empty IDs list
// marks every unread notification of the user.
type MarkReadRequest struct {
	IDs []string `json:"ids"`
}

// MarkReadResponse reports how many rows changed.
type MarkReadResponse struct {
	Updated int `json:"updated"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
