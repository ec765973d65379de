package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/feedsync/internal/feedsync"
)

//go:embed schema.cue
var schemaCUE string

// Config is the complete feedsync configuration.
type Config struct {
	Server   Server
	Database Database
	Sync     Sync
	Remote   Remote
}

// Server configures the HTTP and realtime surface.
type Server struct {
	Addr              string
	NotificationLimit int
	PongWait          time.Duration
	PingPeriod        time.Duration
	WriteWait         time.Duration
}

// Database configures the platform store.
type Database struct {
	Path string
}

// Sync configures feed sessions.
type Sync struct {
	MatchWindow time.Duration
	Backoff     feedsync.Backoff
}

// Remote configures clients of a running server.
type Remote struct {
	URL string
}

// Error is a configuration error, positioned when CUE reports one.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// file mirrors the schema for decoding.
type file struct {
	Server struct {
		Addr              string `json:"addr"`
		NotificationLimit int    `json:"notification_limit"`
		Keepalive         struct {
			PongWait   string `json:"pong_wait"`
			PingPeriod string `json:"ping_period"`
			WriteWait  string `json:"write_wait"`
		} `json:"keepalive"`
	} `json:"server"`
	Database struct {
		Path string `json:"path"`
	} `json:"database"`
	Sync struct {
		MatchWindow string `json:"match_window"`
		Backoff     struct {
			Base     string  `json:"base"`
			Cap      string  `json:"cap"`
			Attempts int     `json:"attempts"`
			Jitter   float64 `json:"jitter"`
		} `json:"backoff"`
	} `json:"sync"`
	Remote struct {
		URL string `json:"url"`
	} `json:"remote"`
}

// Default returns the schema defaults.
func Default() *Config {
	cfg, err := Parse("", nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return cfg
}

// Load reads the CUE file at path. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, src)
}

// Parse unifies src with the schema and decodes the result. filename is
// used only in error positions.
func Parse(filename string, src []byte) (*Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config"))

	if len(src) > 0 {
		user := ctx.CompileBytes(src, cue.Filename(filename))
		if err := user.Err(); err != nil {
			return nil, formatCUEError(err)
		}
		v = v.Unify(user)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var f file
	if err := v.Decode(&f); err != nil {
		return nil, formatCUEError(err)
	}
	return f.config()
}

func (f *file) config() (*Config, error) {
	var (
		cfg = &Config{
			Server: Server{
				Addr:              f.Server.Addr,
				NotificationLimit: f.Server.NotificationLimit,
			},
			Database: Database{Path: f.Database.Path},
			Sync: Sync{
				Backoff: feedsync.Backoff{
					Attempts: f.Sync.Backoff.Attempts,
					Jitter:   f.Sync.Backoff.Jitter,
				},
			},
			Remote: Remote{URL: f.Remote.URL},
		}
		errs []error
	)
	parse := func(field, s string, dst *time.Duration) {
		d, err := time.ParseDuration(s)
		if err != nil {
			errs = append(errs, &Error{Message: fmt.Sprintf("%s: %v", field, err)})
			return
		}
		*dst = d
	}
	parse("server.keepalive.pong_wait", f.Server.Keepalive.PongWait, &cfg.Server.PongWait)
	parse("server.keepalive.ping_period", f.Server.Keepalive.PingPeriod, &cfg.Server.PingPeriod)
	parse("server.keepalive.write_wait", f.Server.Keepalive.WriteWait, &cfg.Server.WriteWait)
	parse("sync.match_window", f.Sync.MatchWindow, &cfg.Sync.MatchWindow)
	parse("sync.backoff.base", f.Sync.Backoff.Base, &cfg.Sync.Backoff.Base)
	parse("sync.backoff.cap", f.Sync.Backoff.Cap, &cfg.Sync.Backoff.Cap)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.Server.PingPeriod >= cfg.Server.PongWait {
		return nil, &Error{Message: "server.keepalive: ping_period must be shorter than pong_wait"}
	}
	if cfg.Sync.Backoff.Cap < cfg.Sync.Backoff.Base {
		return nil, &Error{Message: "sync.backoff: cap must not be below base"}
	}
	return cfg, nil
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}
	first := errs[0]
	ce := &Error{Message: first.Error()}
	if pos := cueerrors.Positions(first); len(pos) > 0 {
		ce.Pos = pos[0]
	}
	return ce
}
