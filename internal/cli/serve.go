package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/feedsync/internal/platform"
	"github.com/roach88/feedsync/internal/server"
)

// ServeOptions holds flags for the serve command. Flags override the
// config file when set.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Database string
	Limit    int

	// ShutdownTimeout bounds the graceful shutdown after a signal.
	ShutdownTimeout time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and realtime change feed",
		Long: `Serve comments and notifications over REST and publish every change on
the /realtime websocket feed. The SQLite database is created if it does
not exist.

Example:
  feedsync serve --db ./feedsync.db --addr :8080
  feedsync serve --config ./feedsync.cue --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "notification snapshot size (default from config)")
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 5*time.Second, "graceful shutdown timeout")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	cfg := opts.cfg()
	addr := cfg.Server.Addr
	if cmd.Flags().Changed("addr") {
		addr = opts.Addr
	}
	dbPath := cfg.Database.Path
	if cmd.Flags().Changed("db") {
		dbPath = opts.Database
	}
	limit := cfg.Server.NotificationLimit
	if cmd.Flags().Changed("limit") {
		limit = opts.Limit
	}

	slog.Info("opening database", "path", dbPath)
	store, err := platform.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	srv := server.New(store,
		server.WithNotificationLimit(limit),
		server.WithKeepalive(server.Keepalive{
			PongWait:   cfg.Server.PongWait,
			PingPeriod: cfg.Server.PingPeriod,
			WriteWait:  cfg.Server.WriteWait,
		}),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s. Press Ctrl-C to stop.\n", ln.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
