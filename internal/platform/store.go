package platform

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/juju/clock"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/wire"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - initial schema
// 1 - partial index on unread notifications
const currentSchemaVersion = 1

// DefaultNotificationLimit is the inbox snapshot size.
const DefaultNotificationLimit = 10

// ErrInvalidInput is returned for writes the platform rejects.
var ErrInvalidInput = errors.New("invalid input")

// IDGenerator produces row ids.
type IDGenerator interface {
	Generate() string
}

// Store is the SQLite-backed reference platform: relational storage plus
// a change broker that publishes every committed write.
type Store struct {
	db     *sql.DB
	broker *Broker
	clock  clock.Clock
	ids    IDGenerator
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp rows.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithIDGenerator sets the row id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// WithBroker sets the broker changes are published to.
func WithBroker(b *Broker) Option {
	return func(s *Store) {
		s.broker = b
	}
}

// Open creates or opens a SQLite database at path and applies pragmas and
// migrations.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - foreign key enforcement
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:    db,
		clock: clock.WallClock,
		ids:   UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.broker == nil {
		s.broker = NewBroker()
	}
	return s, nil
}

// Close closes the broker and the database.
func (s *Store) Close() error {
	s.broker.Close()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Broker returns the broker changes are published to.
func (s *Store) Broker() *Broker {
	return s.broker
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 indexes unread notifications for mark-all-read.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_notifications_unread
		ON notifications(user_id) WHERE is_read = 0
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// publish sends committed changes to the broker. Encoding failures are
// logged; the write has already succeeded.
func (s *Store) publish(changes ...wire.Change) {
	for _, c := range changes {
		s.broker.Publish(c)
	}
}

func (s *Store) commentChange(ctx context.Context, kind feed.Kind, row wire.CommentRow) []wire.Change {
	c, err := wire.NewCommentChange(kind, row, s.clock.Now().UTC())
	if err != nil {
		slog.ErrorContext(ctx, "encode change", "table", wire.TableComments, "row_id", row.ID, "error", err)
		return nil
	}
	return []wire.Change{c}
}

func (s *Store) notificationChange(ctx context.Context, kind feed.Kind, row wire.NotificationRow) []wire.Change {
	c, err := wire.NewNotificationChange(kind, row, s.clock.Now().UTC())
	if err != nil {
		slog.ErrorContext(ctx, "encode change", "table", wire.TableNotifications, "row_id", row.ID, "error", err)
		return nil
	}
	return []wire.Change{c}
}
