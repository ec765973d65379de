package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/feedsync"
	"github.com/roach88/feedsync/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 512 * 1024
)

// Source is a feedsync.EventSource over the server's realtime websocket.
type Source[P feed.Payload] struct {
	base     *url.URL
	dialer   *websocket.Dialer
	decode   wire.Decoder[P]
	idleWait time.Duration
}

// NewCommentSource streams comment changes from the server behind c.
func NewCommentSource(c *Client) *Source[feed.Comment] {
	return newSource(c, wire.DecodeComment)
}

// NewNotificationSource streams notification changes from the server
// behind c.
func NewNotificationSource(c *Client) *Source[feed.Notification] {
	return newSource(c, wire.DecodeNotification)
}

func newSource[P feed.Payload](c *Client, decode wire.Decoder[P]) *Source[P] {
	base := *c.base
	if base.Scheme == "https" {
		base.Scheme = "wss"
	} else {
		base.Scheme = "ws"
	}
	return &Source[P]{
		base:     &base,
		dialer:   websocket.DefaultDialer,
		decode:   decode,
		idleWait: pongWait,
	}
}

// WithIdleTimeout sets how long the stream may stay silent, pings
// included, before it is treated as lost.
func (s *Source[P]) WithIdleTimeout(d time.Duration) *Source[P] {
	if d > 0 {
		s.idleWait = d
	}
	return s
}

// URL returns the websocket address for topic.
func (s *Source[P]) URL(topic feed.Topic) string {
	u := *s.base
	u.Path += "/realtime"
	u.RawQuery = url.Values{
		"table":  {topic.Table},
		"column": {topic.Column},
		"value":  {topic.Value},
	}.Encode()
	return u.String()
}

// Subscribe dials the realtime stream for topic and delivers its changes
// from a reader goroutine.
func (s *Source[P]) Subscribe(ctx context.Context, topic feed.Topic, onEvent func(feed.ChangeEvent[P])) (feedsync.Handle, error) {
	if err := topic.Validate(); err != nil {
		return nil, err
	}
	conn, resp, err := s.dialer.DialContext(ctx, s.URL(topic), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("subscribe %s: HTTP %d: %w", topic, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	h := &socketHandle[P]{
		conn:     conn,
		topic:    topic,
		decode:   s.decode,
		onEvent:  onEvent,
		idleWait: s.idleWait,
		lost:     make(chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go h.readPump()
	return h, nil
}

type socketHandle[P feed.Payload] struct {
	conn     *websocket.Conn
	topic    feed.Topic
	decode   wire.Decoder[P]
	onEvent  func(feed.ChangeEvent[P])
	idleWait time.Duration

	lost chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// readPump reads change frames until the socket fails or is closed.
func (h *socketHandle[P]) readPump() {
	defer close(h.done)

	h.conn.SetReadLimit(maxMessageSize)
	h.conn.SetReadDeadline(time.Now().Add(h.idleWait))
	h.conn.SetPingHandler(func(data string) error {
		h.conn.SetReadDeadline(time.Now().Add(h.idleWait))
		err := h.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, msg, err := h.conn.ReadMessage()
		if err != nil {
			select {
			case <-h.stop:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseTryAgainLater) {
					slog.Warn("realtime stream failed", "topic", h.topic.String(), "error", err)
				} else {
					slog.Debug("realtime stream closed", "topic", h.topic.String(), "error", err)
				}
				close(h.lost)
			}
			return
		}
		h.conn.SetReadDeadline(time.Now().Add(h.idleWait))

		var c wire.Change
		if err := json.Unmarshal(msg, &c); err != nil {
			slog.Warn("malformed change frame", "topic", h.topic.String(), "error", err)
			continue
		}
		ev, err := h.decode(c)
		if err != nil {
			slog.Warn("undecodable change", "table", c.Table, "row_id", c.RowID, "error", err)
			continue
		}
		h.onEvent(ev)
	}
}

// Unsubscribe closes the socket and waits for the reader, so onEvent is
// never called after it returns.
func (h *socketHandle[P]) Unsubscribe() error {
	var err error
	h.once.Do(func() {
		close(h.stop)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		h.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = h.conn.Close()
	})
	<-h.done
	return err
}

func (h *socketHandle[P]) Lost() <-chan struct{} {
	return h.lost
}

var (
	_ feedsync.EventSource[feed.Comment]      = (*Source[feed.Comment])(nil)
	_ feedsync.EventSource[feed.Notification] = (*Source[feed.Notification])(nil)
)
