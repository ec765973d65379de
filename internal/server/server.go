package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/feedsync/internal/platform"
)

// UserHeader carries the acting user on write requests. Authentication is
// out of scope; the header is trusted as given.
const UserHeader = "X-User-ID"

// Keepalive configures websocket ping/pong handling.
type Keepalive struct {
	// PongWait is how long the peer may stay silent before the
	// connection is considered dead.
	PongWait time.Duration

	// PingPeriod must be shorter than PongWait.
	PingPeriod time.Duration

	// WriteWait bounds every frame write.
	WriteWait time.Duration
}

// DefaultKeepalive returns the keepalive used when none is configured.
func DefaultKeepalive() Keepalive {
	return Keepalive{
		PongWait:   60 * time.Second,
		PingPeriod: 54 * time.Second,
		WriteWait:  10 * time.Second,
	}
}

// Server is the HTTP and realtime surface of a platform store.
type Server struct {
	store     *platform.Store
	router    chi.Router
	registry  *prometheus.Registry
	metrics   *Collector
	keepalive Keepalive
	limit     int

	mu       sync.Mutex
	http     *http.Server
	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithNotificationLimit sets the default inbox page size.
func WithNotificationLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithKeepalive overrides the websocket keepalive timings.
func WithKeepalive(k Keepalive) Option {
	return func(s *Server) {
		s.keepalive = k
	}
}

// New creates a server over store and registers its metrics as the
// store broker's observer.
func New(store *platform.Store, opts ...Option) *Server {
	s := &Server{
		store:     store,
		registry:  prometheus.NewRegistry(),
		metrics:   NewMetricsCollector(),
		keepalive: DefaultKeepalive(),
		limit:     platform.DefaultNotificationLimit,
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	broker := store.Broker()
	broker.SetObserver(s.metrics)
	s.registry.MustRegister(
		s.metrics,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "broker_subscriptions",
			Help:      "The number of live change broker subscriptions.",
		}, func() float64 { return float64(broker.Len()) }),
	)

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/realtime", s.handleRealtime)

	r.Route("/api", func(r chi.Router) {
		r.Route("/reviews/{reviewID}/comments", func(r chi.Router) {
			r.Get("/", s.handleListComments)
			r.Post("/", s.handleCreateComment)
		})
		r.Route("/comments/{commentID}", func(r chi.Router) {
			r.Get("/", s.handleGetComment)
			r.Patch("/", s.handleUpdateComment)
			r.Delete("/", s.handleDeleteComment)
		})
		r.Route("/users/{userID}/notifications", func(r chi.Router) {
			r.Get("/", s.handleListNotifications)
			r.Post("/read", s.handleMarkRead)
		})
		r.Get("/notifications/{notificationID}", s.handleGetNotification)
	})

	s.router = r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the registry /metrics serves.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Start listens on addr and serves until Shutdown. A clean shutdown
// returns nil.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. A clean shutdown
// returns nil.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	// Shutdown may have run before srv was visible to it.
	select {
	case <-s.stop:
		ln.Close()
		return nil
	default:
	}

	slog.Info("server starting", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends every realtime stream and gracefully stops the listener
// started by Start, if any.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
