package feedsync

import (
	"time"

	"github.com/juju/clock"
)

// Option configures sessions created by a Manager.
type Option func(*settings)

type settings struct {
	matchWindow time.Duration
	backoff     Backoff
	clock       clock.Clock
	ids         IDGenerator
}

func defaultSettings() settings {
	return settings{
		backoff: DefaultBackoff(),
		clock:   clock.WallClock,
		ids:     UUIDv7Generator{},
	}
}

// WithMatchWindow sets how far apart an optimistic item and its echo may
// be stamped and still be merged. Zero keeps the reconciler default.
func WithMatchWindow(d time.Duration) Option {
	return func(s *settings) {
		s.matchWindow = d
	}
}

// WithBackoff sets the reconnect policy.
func WithBackoff(b Backoff) Option {
	return func(s *settings) {
		s.backoff = b
	}
}

// WithClock sets the clock used for backoff delays and local timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *settings) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithIDGenerator sets the generator for optimistic item ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *settings) {
		if g != nil {
			s.ids = g
		}
	}
}
