package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/duelsync/internal/indexer/sqlite"
	"github.com/roach88/duelsync/internal/indexer/torii"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local indexer over HTTP and WebSocket",
		Long: `Expose the local SQLite indexer with the remote indexer protocol, so
other sessions can use it through --indexer-url:

  POST /entities   one page of a query
  GET  /subscribe  live updates over WebSocket
  GET  /stats      ledger and table sizes

Examples:
  duelsync serve --db ./duelsync.db --addr :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8080", "listen address")
	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := resolveConfig(opts.RootOptions, cmd)
	if err != nil {
		return out.Fail(ExitCommandError, CodeConfig, "invalid configuration", err)
	}
	if cfg.Remote() {
		return out.Fail(ExitCommandError, CodeConfig, "serve exposes a local indexer; unset --indexer-url", nil)
	}

	ix, err := sqlite.Open(cfg.Database)
	if err != nil {
		return out.Fail(ExitCommandError, CodeIndexer, "failed to open database", err)
	}
	defer func() {
		if closeErr := ix.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return out.Fail(ExitCommandError, CodeConfig, "failed to listen", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		st, err := ix.Stats(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	})
	mux.Handle("/", torii.NewHandler(ix))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	ctx, cancel := signalContext(commandContext(cmd))
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	slog.Info("indexer serving", "addr", ln.Addr().String(), "db", cfg.Database)
	fmt.Fprintf(out.GetErrWriter(), "Serving %s on http://%s\n", cfg.Database, ln.Addr())

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return out.Fail(ExitFailure, CodeIndexer, "server failed", err)
		}
	case <-ctx.Done():
		// Open subscriptions end when the indexer closes; Shutdown does not
		// wait for hijacked WebSocket connections.
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown incomplete", "error", err)
		}
	}

	slog.Info("indexer stopped")
	return nil
}
