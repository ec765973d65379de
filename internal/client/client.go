package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/wire"
)

// UserHeader carries the acting user on write requests.
const UserHeader = "X-User-ID"

// StatusError is a non-2xx response.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Code, e.Message)
}

// Is makes 404 responses match feed.ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == feed.ErrNotFound && e.Code == http.StatusNotFound
}

// Client is a REST client for a feedsync server.
type Client struct {
	base *url.URL
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a client for the server at baseURL (http or https).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base: u,
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// ListComments returns the comments of a review, newest first.
func (c *Client) ListComments(ctx context.Context, reviewID string) ([]wire.CommentRow, error) {
	var rows []wire.CommentRow
	err := c.do(ctx, http.MethodGet, "/api/reviews/"+url.PathEscape(reviewID)+"/comments", "", nil, &rows)
	return rows, err
}

// GetComment returns one comment joined with its author profile.
func (c *Client) GetComment(ctx context.Context, id string) (wire.CommentRow, error) {
	var row wire.CommentRow
	err := c.do(ctx, http.MethodGet, "/api/comments/"+url.PathEscape(id), "", nil, &row)
	return row, err
}

// CreateComment posts a comment on a review as userID.
func (c *Client) CreateComment(ctx context.Context, reviewID, userID, content string) (wire.CommentRow, error) {
	var row wire.CommentRow
	err := c.do(ctx, http.MethodPost, "/api/reviews/"+url.PathEscape(reviewID)+"/comments", userID,
		wire.CommentRequest{Content: content}, &row)
	return row, err
}

// UpdateComment edits a comment written by userID.
func (c *Client) UpdateComment(ctx context.Context, id, userID, content string) (wire.CommentRow, error) {
	var row wire.CommentRow
	err := c.do(ctx, http.MethodPatch, "/api/comments/"+url.PathEscape(id), userID,
		wire.CommentRequest{Content: content}, &row)
	return row, err
}

// DeleteComment removes a comment written by userID.
func (c *Client) DeleteComment(ctx context.Context, id, userID string) error {
	return c.do(ctx, http.MethodDelete, "/api/comments/"+url.PathEscape(id), userID, nil, nil)
}

// ListNotifications returns a user's newest notifications. A limit <= 0
// uses the server default.
func (c *Client) ListNotifications(ctx context.Context, userID string, limit int) ([]wire.NotificationRow, error) {
	path := "/api/users/" + url.PathEscape(userID) + "/notifications"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var rows []wire.NotificationRow
	err := c.do(ctx, http.MethodGet, path, "", nil, &rows)
	return rows, err
}

// GetNotification returns one notification.
func (c *Client) GetNotification(ctx context.Context, id string) (wire.NotificationRow, error) {
	var row wire.NotificationRow
	err := c.do(ctx, http.MethodGet, "/api/notifications/"+url.PathEscape(id), "", nil, &row)
	return row, err
}

// MarkNotificationsRead marks ids read; an empty list marks every unread
// notification of the user. Returns the number of rows changed.
func (c *Client) MarkNotificationsRead(ctx context.Context, userID string, ids []string) (int, error) {
	var res wire.MarkReadResponse
	err := c.do(ctx, http.MethodPost, "/api/users/"+url.PathEscape(userID)+"/notifications/read", "",
		wire.MarkReadRequest{IDs: ids}, &res)
	return res.Updated, err
}

func (c *Client) do(ctx context.Context, method, path, userID string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e wire.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
