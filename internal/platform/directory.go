package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/wire"
)

// UpsertProfile creates or replaces a profile.
func (s *Store) UpsertProfile(ctx context.Context, p wire.Profile) error {
	if p.ID == "" || p.Name == "" {
		return fmt.Errorf("upsert profile: id and name are required: %w", ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, name, avatar_url) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, avatar_url = excluded.avatar_url
	`, p.ID, p.Name, p.AvatarURL)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// CreateReview inserts a review. The owner profile must exist.
func (s *Store) CreateReview(ctx context.Context, r wire.Review) (wire.Review, error) {
	if r.Slug == "" || r.UserID == "" {
		return wire.Review{}, fmt.Errorf("create review: slug and user are required: %w", ErrInvalidInput)
	}
	if r.ID == "" {
		r.ID = s.ids.Generate()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reviews (id, slug, user_id, title) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, r.ID, r.Slug, r.UserID, r.Title)
	if err != nil {
		return wire.Review{}, fmt.Errorf("create review: %w", err)
	}
	return r, nil
}

// GetReview returns a review by id or slug.
func (s *Store) GetReview(ctx context.Context, idOrSlug string) (wire.Review, error) {
	var r wire.Review
	err := s.db.QueryRowContext(ctx, `
		SELECT id, slug, user_id, title FROM reviews WHERE id = ? OR slug = ?
	`, idOrSlug, idOrSlug).Scan(&r.ID, &r.Slug, &r.UserID, &r.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return wire.Review{}, fmt.Errorf("review %s: %w", idOrSlug, feed.ErrNotFound)
	}
	if err != nil {
		return wire.Review{}, fmt.Errorf("get review: %w", err)
	}
	return r, nil
}

func reviewByID(ctx context.Context, tx *sql.Tx, id string) (wire.Review, error) {
	var r wire.Review
	err := tx.QueryRowContext(ctx, `
		SELECT id, slug, user_id, title FROM reviews WHERE id = ?
	`, id).Scan(&r.ID, &r.Slug, &r.UserID, &r.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return wire.Review{}, fmt.Errorf("review %s: %w", id, feed.ErrNotFound)
	}
	if err != nil {
		return wire.Review{}, fmt.Errorf("get review: %w", err)
	}
	return r, nil
}

// profileName returns a display name for userID, falling back to the id.
func profileName(ctx context.Context, tx *sql.Tx, userID string) (string, error) {
	var name string
	err := tx.QueryRowContext(ctx, `SELECT name FROM profiles WHERE id = ?`, userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return userID, nil
	}
	if err != nil {
		return "", fmt.Errorf("get profile: %w", err)
	}
	return name, nil
}
