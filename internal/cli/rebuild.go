package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/duelsync/internal/indexer/sqlite"
)

// RebuildOptions holds flags for the rebuild command.
type RebuildOptions struct {
	*RootOptions
	Verify bool
}

// RebuildResult reports a rebuild of the models table.
type RebuildResult struct {
	Models        int64        `json:"models"`
	Before        sqlite.Stats `json:"before"`
	After         sqlite.Stats `json:"after"`
	Deterministic *bool        `json:"deterministic,omitempty"`
}

func (r RebuildResult) Text(w io.Writer) error {
	fmt.Fprintf(w, "✓ Rebuilt %d models from %d ledger entries\n", r.Models, r.After.Ledger)
	if r.Deterministic != nil {
		if *r.Deterministic {
			fmt.Fprintln(w, "✓ Second rebuild produced the same models")
		} else {
			fmt.Fprintln(w, "✗ Second rebuild produced different models")
		}
	}
	return nil
}

// NewRebuildCommand creates the rebuild command.
func NewRebuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RebuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Re-materialize the local indexer from its ledger",
		Long: `Rebuild the latest-value models table of the local SQLite indexer from
the append-only ledger. With --verify, rebuild twice and check that both
runs agree.

Exit codes:
  0 - Rebuilt (and verified)
  1 - Verification found a difference
  2 - Command error (database not found, etc.)

Examples:
  duelsync rebuild --db ./duelsync.db
  duelsync rebuild --db ./duelsync.db --verify --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuild(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "rebuild twice and compare")
	return cmd
}

func runRebuild(opts *RebuildOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := resolveConfig(opts.RootOptions, cmd)
	if err != nil {
		return out.Fail(ExitCommandError, CodeConfig, "invalid configuration", err)
	}
	ix, err := sqlite.Open(cfg.Database)
	if err != nil {
		return out.Fail(ExitCommandError, CodeIndexer, "failed to open database", err)
	}
	defer ix.Close()

	ctx := commandContext(cmd)
	before, err := ix.Stats(ctx)
	if err != nil {
		return out.Fail(ExitFailure, CodeIndexer, "failed to read stats", err)
	}
	n, err := ix.Rebuild(ctx)
	if err != nil {
		return out.Fail(ExitFailure, CodeIndexer, "rebuild failed", err)
	}
	after, err := ix.Stats(ctx)
	if err != nil {
		return out.Fail(ExitFailure, CodeIndexer, "failed to read stats", err)
	}
	result := RebuildResult{Models: n, Before: before, After: after}

	if opts.Verify {
		again, err := ix.Rebuild(ctx)
		if err != nil {
			return out.Fail(ExitFailure, CodeIndexer, "verification rebuild failed", err)
		}
		final, err := ix.Stats(ctx)
		if err != nil {
			return out.Fail(ExitFailure, CodeIndexer, "failed to read stats", err)
		}
		same := again == n && final == after
		result.Deterministic = &same
		if !same {
			msg := "rebuild is not deterministic"
			if err := out.Report(result, &CLIError{Code: CodeIndexer, Message: msg}); err != nil {
				return err
			}
			return NewExitError(ExitFailure, msg)
		}
	}
	return out.Success(result)
}
