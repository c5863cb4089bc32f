package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/duelsync/internal/metrics"
	"github.com/roach88/duelsync/internal/mirror"
)

// HydrateOptions holds flags for the hydrate command.
type HydrateOptions struct {
	*RootOptions
	Snapshot string // write the canonical store snapshot here
	Metrics  bool
}

// HydrateResult reports the session after hydration.
type HydrateResult struct {
	Stats   mirror.Stats     `json:"stats"`
	Metrics []metrics.Sample `json:"metrics,omitempty"`
}

func (r HydrateResult) Text(w io.Writer) error {
	s := r.Stats
	fmt.Fprintf(w, "Session %s (generation %d)\n", s.SessionID, s.Generation)
	fmt.Fprintf(w, "  entities:   %d\n", s.Entities)
	fmt.Fprintf(w, "  changes:    %d\n", s.Changes)
	fmt.Fprintf(w, "  challenges: %d\n", s.Challenges)
	fmt.Fprintf(w, "  duelists:   %d\n", s.Duelists)
	fmt.Fprintf(w, "  players:    %d\n", s.Players)
	fmt.Fprintf(w, "  progress:   %.0f%%\n", s.Progress*100)
	for _, m := range r.Metrics {
		fmt.Fprintf(w, "  %s %g\n", m.Name, m.Value)
	}
	return nil
}

// NewHydrateCommand creates the hydrate command.
func NewHydrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HydrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "hydrate",
		Short: "Run the startup hydration and report the cache",
		Long: `Fetch the challenges of --table, every duelist and player, then the
duelists the challenges reference, and report what the cache holds.

Examples:
  duelsync hydrate --db ./duelsync.db --table Season1
  duelsync hydrate --indexer-url http://localhost:8080 --metrics
  duelsync hydrate --db ./duelsync.db --snapshot ./cache.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHydrate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "write the canonical cache snapshot to this file")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "include session metrics")
	return cmd
}

func runHydrate(opts *HydrateOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	s, err := startHydrated(commandContext(cmd), opts.RootOptions, cmd, out)
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.Snapshot != "" {
		data, err := s.mirror.Store().Snapshot()
		if err != nil {
			return out.Fail(ExitFailure, CodeSync, "failed to snapshot cache", err)
		}
		if err := os.WriteFile(opts.Snapshot, data, 0644); err != nil {
			return out.Fail(ExitCommandError, CodeInvalidInput, "failed to write snapshot", err)
		}
		out.VerboseLog("snapshot written to %s", opts.Snapshot)
	}

	result := HydrateResult{Stats: s.mirror.Stats()}
	if opts.Metrics {
		samples, err := s.metrics.Snapshot()
		if err != nil {
			return out.Fail(ExitFailure, CodeSync, "failed to gather metrics", err)
		}
		result.Metrics = samples
	}
	return out.Success(result)
}

// startHydrated resolves the config, opens a session and runs the
// startup hydration. Failures are written to out.
func startHydrated(ctx context.Context, opts *RootOptions, cmd *cobra.Command, out *OutputFormatter) (*session, error) {
	s, err := startSession(ctx, opts, cmd, out)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx); err != nil {
		s.Close()
		return nil, out.Fail(ExitFailure, CodeSync, "hydration failed", err)
	}
	return s, nil
}

// startSession opens a session without the startup fetches.
func startSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command, out *OutputFormatter) (*session, error) {
	cfg, err := resolveConfig(opts, cmd)
	if err != nil {
		return nil, out.Fail(ExitCommandError, CodeConfig, "invalid configuration", err)
	}

	s, err := openSession(ctx, cfg)
	if err != nil {
		return nil, out.Fail(GetExitCode(err), CodeIndexer, "failed to open session", err)
	}
	out.SessionID = s.mirror.ID()
	return s, nil
}
