package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/juju/clock"
	"github.com/spf13/cobra"

	"github.com/roach88/feedsync/internal/client"
	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/feedsync"
	"github.com/roach88/feedsync/internal/present"
)

// Feed names accepted by watch.
const (
	feedComments      = "comments"
	feedNotifications = "notifications"
)

// watchCaller identifies the CLI's view to the session manager.
const watchCaller = "cli"

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Server   string
	MarkRead bool

	// Count stops the command after this many rendered views. Zero
	// follows the feed until interrupted.
	Count int
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <comments|notifications> <review-or-user>",
		Short: "Follow a comment thread or notification inbox live",
		Long: `Follow one feed of a running server and print the list every time it
changes. The feed reconnects with a fresh snapshot when the realtime
stream drops.

Exit codes:
  0 - Interrupted, or --count views printed
  1 - The feed failed after exhausting its reconnect attempts
  2 - Command error (bad server URL, unknown feed)

Examples:
  feedsync watch comments r-dune
  feedsync watch notifications ayu --mark-read
  feedsync watch comments r-dune --format json --count 1`,
		Args:          cobra.ExactArgs(2),
		ValidArgs:     []string{feedComments, feedNotifications},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Server, "server", "", "server base URL (default from config)")
	cmd.Flags().BoolVar(&opts.MarkRead, "mark-read", false, "mark the inbox read once it is live")
	cmd.Flags().IntVar(&opts.Count, "count", 0, "stop after this many views (0 follows until interrupted)")

	return cmd
}

func runWatch(ctx context.Context, opts *WatchOptions, feedName, key string, cmd *cobra.Command) error {
	cfg := opts.cfg()
	base := cfg.Remote.URL
	if cmd.Flags().Changed("server") {
		base = opts.Server
	}
	c, err := client.New(base)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid server URL", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	syncOpts := []feedsync.Option{
		feedsync.WithMatchWindow(cfg.Sync.MatchWindow),
		feedsync.WithBackoff(cfg.Sync.Backoff),
	}
	w := newWatcher(ctx, opts.formatter(cmd), opts.Count, cancel)

	switch feedName {
	case feedComments:
		m := feedsync.NewManager[feed.Comment](client.NewCommentSource(c), client.NewCommentGateway(c), syncOpts...)
		defer m.CloseAll()
		lis := present.NewThreadListener(clock.WallClock, present.Sink[present.Thread]{
			OnView: func(t present.Thread) {
				w.view("thread", t, func(out io.Writer) { printThread(out, t) })
			},
			OnArrival: w.arrived,
			OnState:   w.stateChanged,
			OnError:   w.failed,
		})
		s, err := m.Open(ctx, watchCaller, feed.CommentsTopic(key), lis)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open feed", err)
		}
		return w.follow(s.Err, nil)

	case feedNotifications:
		gw := client.NewNotificationGateway(c, cfg.Server.NotificationLimit)
		m := feedsync.NewManager[feed.Notification](client.NewNotificationSource(c), gw, syncOpts...)
		defer m.CloseAll()
		lis := present.NewInboxListener(clock.WallClock, present.Sink[present.Inbox]{
			OnView: func(in present.Inbox) {
				w.view("inbox", in, func(out io.Writer) { printInbox(out, in) })
			},
			OnArrival: w.arrived,
			OnState:   w.stateChanged,
			OnError:   w.failed,
		})
		s, err := m.Open(ctx, watchCaller, feed.NotificationsTopic(key), lis)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open feed", err)
		}
		var onActive func() error
		if opts.MarkRead {
			onActive = s.MarkAllRead
		}
		return w.follow(s.Err, onActive)

	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown feed %q: must be %s or %s", feedName, feedComments, feedNotifications))
	}
}

// watcher prints a session's views and tracks its state. Listener
// callbacks run on the session goroutines, and on the caller's during
// Open, so they never block on follow.
type watcher struct {
	ctx    context.Context
	out    *OutputFormatter
	cancel context.CancelFunc

	active     chan struct{}
	failedCh   chan struct{}
	failedOnce sync.Once

	mu    sync.Mutex
	limit int
	seen  int
}

func newWatcher(ctx context.Context, out *OutputFormatter, limit int, cancel context.CancelFunc) *watcher {
	return &watcher{
		ctx:      ctx,
		out:      out,
		cancel:   cancel,
		active:   make(chan struct{}, 1),
		failedCh: make(chan struct{}),
		limit:    limit,
	}
}

func (w *watcher) view(kind string, data any, text func(io.Writer)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.limit > 0 && w.seen >= w.limit {
		return
	}
	if err := w.out.Stream(kind, data, text); err != nil {
		slog.Warn("failed to write view", "error", err)
	}
	w.seen++
	if w.limit > 0 && w.seen >= w.limit {
		w.cancel()
	}
}

// arrived prints a toast for a row that reached the live list. Arrivals
// do not count towards the view limit.
func (w *watcher) arrived(a present.Arrival) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx.Err() != nil {
		return
	}
	if err := w.out.Stream("arrival", a, func(out io.Writer) { printArrival(out, a) }); err != nil {
		slog.Warn("failed to write arrival", "error", err)
	}
}

func (w *watcher) stateChanged(state feedsync.State) {
	w.mu.Lock()
	w.out.VerboseLog("feed %s", state)
	w.mu.Unlock()

	switch state {
	case feedsync.StateActive:
		select {
		case w.active <- struct{}{}:
		default:
		}
	case feedsync.StateFailed:
		w.failedOnce.Do(func() { close(w.failedCh) })
	}
}

func (w *watcher) failed(err *feed.Error) {
	if w.ctx.Err() != nil {
		// The session stops with the context; that is not a feed error.
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out.GetErrWriter(), "feed error: %v\n", err)
}

// follow blocks until the context ends or the feed fails. onActive, if
// set, runs the first time the feed goes live.
func (w *watcher) follow(lastErr func() *feed.Error, onActive func() error) error {
	for {
		select {
		case <-w.ctx.Done():
			return nil
		case <-w.failedCh:
			if w.ctx.Err() != nil {
				return nil
			}
			if fe := lastErr(); fe != nil {
				return WrapExitError(ExitFailure, "feed failed", fe)
			}
			return NewExitError(ExitFailure, "feed failed")
		case <-w.active:
			if onActive != nil {
				if err := onActive(); err != nil {
					slog.Warn("action on live feed failed", "error", err)
				}
				onActive = nil
			}
		}
	}
}

func printThread(w io.Writer, t present.Thread) {
	fmt.Fprintf(w, "%d comments\n", t.Count)
	for _, c := range t.Comments {
		status := ""
		if c.Pending {
			status = " (sending)"
		}
		fmt.Fprintf(w, "  [%s] %s, %s%s\n", c.Initial, c.AuthorName, c.When, status)
		fmt.Fprintf(w, "      %s\n", c.Content)
	}
}

func printArrival(w io.Writer, a present.Arrival) {
	fmt.Fprintf(w, "New: %s: %s (%s)", a.Title, a.Text, a.When)
	if a.Link != "" {
		fmt.Fprintf(w, " %s", a.Link)
	}
	fmt.Fprintln(w)
}

func printInbox(w io.Writer, in present.Inbox) {
	if in.Badge == "" {
		fmt.Fprintln(w, "Inbox: all read")
	} else {
		fmt.Fprintf(w, "Inbox: %d unread [%s]\n", in.Unread, in.Badge)
	}
	for _, n := range in.Items {
		mark := " "
		if n.Unread {
			mark = "*"
		}
		fmt.Fprintf(w, "  %s %s (%s)", mark, n.Message, n.When)
		if n.Link != "" {
			fmt.Fprintf(w, " %s", n.Link)
		}
		fmt.Fprintln(w)
	}
}
