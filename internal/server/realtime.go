package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/wire"
)

var websocketUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// TopicFromQuery reads a topic from the table, column and value query
// parameters.
func TopicFromQuery(r *http.Request) feed.Topic {
	q := r.URL.Query()
	return feed.Topic{Table: q.Get("table"), Column: q.Get("column"), Value: q.Get("value")}
}

// handleRealtime streams the changes of one topic over a websocket. The
// stream ends when the client goes away, the broker drops the
// subscription, or the server shuts down; the latter two send a close
// frame first.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	topic := TopicFromQuery(r)
	if err := topic.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, wire.ErrorResponse{Error: err.Error()})
		return
	}

	// Subscribe before the upgrade completes. The client treats the 101 as
	// a live subscription and fetches its snapshot right after it.
	sub := s.store.Broker().Subscribe(topic)
	defer sub.Close()

	socket, err := websocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("problem initiating websocket", "error", err)
		return
	}
	defer socket.Close()

	s.metrics.realtimeStreams.Inc()
	defer s.metrics.realtimeStreams.Dec()

	slog.Debug("realtime stream opened", "topic", topic.String(), "remote", r.RemoteAddr)

	ka := s.keepalive
	socket.SetReadDeadline(time.Now().Add(ka.PongWait))
	socket.SetPongHandler(func(string) error {
		socket.SetReadDeadline(time.Now().Add(ka.PongWait))
		return nil
	})
	gone := receiveUntilClosed(socket)

	ticker := time.NewTicker(ka.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			closeStream(socket, ka, websocket.CloseGoingAway, "server shutting down")
			return
		case <-gone:
			slog.Debug("realtime client went away", "topic", topic.String())
			return
		case <-sub.Lost():
			closeStream(socket, ka, websocket.CloseTryAgainLater, "subscription lost")
			return
		case c := <-sub.C():
			socket.SetWriteDeadline(time.Now().Add(ka.WriteWait))
			if err := socket.WriteJSON(c); err != nil {
				slog.Debug("failed to write change", "topic", topic.String(), "error", err)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(ka.WriteWait)
			if err := socket.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
				// Expected when the other end goes away.
				slog.Debug("failed to write ping", "error", err)
				return
			}
		}
	}
}

// receiveUntilClosed drains client frames so control frames are processed.
// The returned channel closes when reading fails, including after the
// socket is closed by the handler.
func receiveUntilClosed(socket *websocket.Conn) <-chan struct{} {
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := socket.NextReader(); err != nil {
				return
			}
		}
	}()
	return gone
}

func closeStream(socket *websocket.Conn, ka Keepalive, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := socket.WriteControl(websocket.CloseMessage, msg, time.Now().Add(ka.WriteWait)); err != nil {
		slog.Debug("failed to write close", "error", err)
	}
}
