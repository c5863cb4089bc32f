package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/duelsync/internal/mirror"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	MetricsAddr string
	Interval    time.Duration
	Duration    time.Duration // 0 watches until interrupted
}

// WatchResult is printed when watching ends.
type WatchResult struct {
	Stats  mirror.Stats `json:"stats"`
	Reason string       `json:"reason"`
}

func (r WatchResult) Text(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Stopped (%s): %d entities, %d challenges, %d duelists, %d players\n",
		r.Reason, r.Stats.Entities, r.Stats.Challenges, r.Stats.Duelists, r.Stats.Players)
	return err
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Hydrate, then follow live updates",
		Long: `Run the startup hydration, then subscribe to live updates for --table
and merge them until interrupted (Ctrl-C / SIGTERM).

With --metrics-addr (or DUELSYNC_METRICS_ADDR) the session's Prometheus
metrics are served at /metrics.

Exit codes:
  0 - Stopped by a signal or after --duration
  1 - The subscription failed
  2 - Command error (config, indexer unreachable)

Examples:
  duelsync watch --indexer-url http://localhost:8080 --table Season1
  duelsync watch --db ./duelsync.db --metrics-addr :9100 --interval 10s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve /metrics on this address")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 5*time.Second, "how often to log cache stats")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 = until interrupted)")
	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ctx, cancel := signalContext(commandContext(cmd))
	defer cancel()

	s, err := startHydrated(ctx, opts.RootOptions, cmd, out)
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.Duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, opts.Duration)
		defer stop()
	}

	addr := opts.MetricsAddr
	if addr == "" {
		addr = s.cfg.MetricsAddr
	}
	if addr != "" {
		stopMetrics, err := serveMetrics(addr, s.metrics.Handler())
		if err != nil {
			return out.Fail(ExitCommandError, CodeConfig, "failed to serve metrics", err)
		}
		defer stopMetrics()
	}

	if err := s.mirror.Follow(ctx, mirror.FollowQuery(s.cfg.TableID)); err != nil {
		return out.Fail(ExitFailure, CodeSync, "failed to subscribe", err)
	}
	fmt.Fprintln(out.GetErrWriter(), "Following live updates. Press Ctrl-C to stop.")

	reason, err := watchLoop(ctx, s.mirror, opts.Interval)
	if err != nil {
		return out.Fail(ExitFailure, CodeSync, "subscription failed", err)
	}
	if err := s.mirror.Sync(context.Background()); err != nil {
		slog.Warn("final sync failed", "error", err)
	}
	return out.Success(WatchResult{Stats: s.mirror.Stats(), Reason: reason})
}

// watchLoop logs stats every interval in which the cache changed, until
// ctx ends or the subscription dies.
func watchLoop(ctx context.Context, m *mirror.Mirror, interval time.Duration) (string, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := int64(-1)
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "duration elapsed", nil
			}
			return "interrupted", nil
		case <-ticker.C:
			if err := m.SubscriptionErr(); err != nil {
				return "", err
			}
			st := m.Stats()
			if st.Changes == last {
				continue
			}
			last = st.Changes
			slog.Info("cache",
				"changes", st.Changes,
				"entities", st.Entities,
				"challenges", st.Challenges,
				"duelists", st.Duelists,
				"players", st.Players,
				"generation", st.Generation,
			)
		}
	}
}

// signalContext is cancelled by SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// serveMetrics serves h at /metrics on addr until the returned func is
// called.
func serveMetrics(addr string, h http.Handler) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
