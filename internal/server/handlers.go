package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/platform"
	"github.com/roach88/feedsync/internal/wire"
)

const maxBodyBytes = 64 << 10

var (
	errNoUser    = errors.New("missing " + UserHeader + " header")
	errForbidden = errors.New("not the author")
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Comments ---

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListComments(r.Context(), chi.URLParam(r, "reviewID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []wire.CommentRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(UserHeader)
	if userID == "" {
		writeError(w, r, errNoUser)
		return
	}
	var req wire.CommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	row, err := s.store.CreateComment(r.Context(), chi.URLParam(r, "reviewID"), userID, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (s *Server) handleGetComment(w http.ResponseWriter, r *http.Request) {
	row, err := s.store.GetComment(r.Context(), chi.URLParam(r, "commentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "commentID")
	if err := s.authorize(r, id); err != nil {
		writeError(w, r, err)
		return
	}
	var req wire.CommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	row, err := s.store.UpdateComment(r.Context(), id, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "commentID")
	if err := s.authorize(r, id); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.DeleteComment(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorize checks that the acting user wrote the comment.
func (s *Server) authorize(r *http.Request, commentID string) error {
	userID := r.Header.Get(UserHeader)
	if userID == "" {
		return errNoUser
	}
	row, err := s.store.GetComment(r.Context(), commentID)
	if err != nil {
		return err
	}
	if row.UserID != userID {
		return errForbidden
	}
	return nil
}

// --- Notifications ---

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := s.limit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, fmt.Errorf("limit %q: %w", v, platform.ErrInvalidInput))
			return
		}
		limit = n
	}

	rows, err := s.store.ListNotifications(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []wire.NotificationRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req wire.MarkReadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.store.MarkNotificationsRead(r.Context(), chi.URLParam(r, "userID"), req.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.MarkReadResponse{Updated: n})
}

func (s *Server) handleGetNotification(w http.ResponseWriter, r *http.Request) {
	row, err := s.store.GetNotification(r.Context(), chi.URLParam(r, "notificationID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// --- Helpers ---

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode request: %v: %w", err, platform.ErrInvalidInput)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

// statusOf maps a store error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, feed.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, platform.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, errNoUser):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, wire.ErrorResponse{Error: msg})
}
