package present

import (
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/roach88/feedsync/internal/feed"
)

// DateLayout is the absolute date shown under each comment.
const DateLayout = "2 January 2006"

// maxBadge is the largest unread count the badge spells out.
const maxBadge = 9

// CommentView is one rendered comment.
type CommentView struct {
	ID         string `json:"id"`
	AuthorName string `json:"author_name"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	Initial    string `json:"initial"`
	Content    string `json:"content"`
	Date       string `json:"date"`
	When       string `json:"when"`
	Pending    bool   `json:"pending,omitempty"`
}

// Thread is a rendered comment thread.
type Thread struct {
	Count    int           `json:"count"`
	Comments []CommentView `json:"comments"`
}

// NotificationView is one rendered inbox entry.
type NotificationView struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
	When    string `json:"when"`
	Unread  bool   `json:"unread,omitempty"`
}

// Inbox is a rendered notification bell.
type Inbox struct {
	Unread int                `json:"unread"`
	Badge  string             `json:"badge,omitempty"`
	Items  []NotificationView `json:"items"`
}

// Arrival is the toast shown when a new row reaches a live list.
type Arrival struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
	Link  string `json:"link,omitempty"`
	When  string `json:"when"`
}

// Badge renders an unread count for the bell: empty when nothing is
// unread, capped at "9+".
func Badge(unread int) string {
	switch {
	case unread <= 0:
		return ""
	case unread > maxBadge:
		return strconv.Itoa(maxBadge) + "+"
	default:
		return strconv.Itoa(unread)
	}
}

// RelTime renders t relative to now, e.g. "3 minutes ago".
func RelTime(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

// Comments renders a thread in list order.
func Comments(items []feed.Item[feed.Comment], now time.Time) Thread {
	views := make([]CommentView, len(items))
	for i, it := range items {
		views[i] = Comment(it, now)
	}
	return Thread{Count: len(views), Comments: views}
}

// Comment renders one comment. Authors without a profile are shown by id.
func Comment(it feed.Item[feed.Comment], now time.Time) CommentView {
	name := it.Payload.AuthorName
	if name == "" {
		name = it.Payload.UserID
	}
	return CommentView{
		ID:         it.ID,
		AuthorName: name,
		AvatarURL:  it.Payload.AvatarURL,
		Initial:    initial(name),
		Content:    it.Payload.Content,
		Date:       it.CreatedAt.Format(DateLayout),
		When:       RelTime(it.CreatedAt, now),
		Pending:    it.Origin == feed.OriginOptimistic,
	}
}

// Notifications renders the bell. unread is the reconciler's count, which
// may exceed the entries shown.
func Notifications(items []feed.Item[feed.Notification], unread int, now time.Time) Inbox {
	views := make([]NotificationView, len(items))
	for i, it := range items {
		views[i] = Notification(it, now)
	}
	return Inbox{Unread: unread, Badge: Badge(unread), Items: views}
}

// Notification renders one inbox entry.
func Notification(it feed.Item[feed.Notification], now time.Time) NotificationView {
	v := NotificationView{
		ID:      it.ID,
		Type:    it.Payload.Type,
		Message: it.Payload.Message,
		When:    RelTime(it.CreatedAt, now),
		Unread:  it.Unread(),
	}
	if it.Payload.ReferenceSlug != "" {
		v.Link = "/reviews/" + it.Payload.ReferenceSlug
	}
	return v
}

// CommentArrival renders the toast for a new comment.
func CommentArrival(it feed.Item[feed.Comment], now time.Time) Arrival {
	v := Comment(it, now)
	return Arrival{
		ID:    v.ID,
		Title: v.AuthorName + " commented",
		Text:  v.Content,
		When:  v.When,
	}
}

// NotificationArrival renders the toast for a new notification.
func NotificationArrival(it feed.Item[feed.Notification], now time.Time) Arrival {
	v := Notification(it, now)
	return Arrival{
		ID:    v.ID,
		Title: "New notification",
		Text:  v.Message,
		Link:  v.Link,
		When:  v.When,
	}
}

func initial(name string) string {
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(name))
	if r == utf8.RuneError {
		return "?"
	}
	return string(unicode.ToUpper(r))
}
