package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/duelsync/internal/indexer/sqlite"
)

// LedgerOptions holds flags for the ledger command.
type LedgerOptions struct {
	*RootOptions
	After  int64
	Count  int
	Model  string
	Entity string
}

// LedgerRow is one ledger write. Data is the stored model JSON.
type LedgerRow struct {
	Seq      int64           `json:"seq"`
	EntityID string          `json:"entity_id"`
	Model    string          `json:"model"`
	Data     json.RawMessage `json:"data"`
}

// LedgerResult is one page of the ledger.
type LedgerResult struct {
	Entries []LedgerRow  `json:"entries"`
	Next    int64        `json:"next"` // pass as --after for the next page
	Stats   sqlite.Stats `json:"stats"`
}

func (r LedgerResult) Text(w io.Writer) error {
	t := &table{header: []string{"SEQ", "ENTITY", "MODEL", "DATA"}}
	for _, e := range r.Entries {
		t.add(strconv.FormatInt(e.Seq, 10), e.EntityID, e.Model, string(e.Data))
	}
	if err := t.Text(w); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d of %d ledger entries (last seq %d)\n",
		len(r.Entries), r.Stats.Ledger, r.Stats.LastSeq)
	return err
}

// NewLedgerCommand creates the ledger command.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show the append-only write log of the local indexer",
		Long: `List ledger writes of the local SQLite indexer in seq order.

Examples:
  duelsync ledger --db ./duelsync.db
  duelsync ledger --db ./duelsync.db --after 120 --count 50
  duelsync ledger --db ./duelsync.db --model pistols-Scoreboard --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedger(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.After, "after", 0, "only entries with a greater seq")
	cmd.Flags().IntVar(&opts.Count, "count", 100, "entries to read")
	cmd.Flags().StringVar(&opts.Model, "model", "", "only writes of this model")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "only writes of this entity id")
	return cmd
}

func runLedger(opts *LedgerOptions, cmd *cobra.Command) error {
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
	entries, err := ix.Ledger(ctx, opts.After, opts.Count)
	if err != nil {
		return out.Fail(ExitFailure, CodeIndexer, "failed to read ledger", err)
	}
	st, err := ix.Stats(ctx)
	if err != nil {
		return out.Fail(ExitFailure, CodeIndexer, "failed to read stats", err)
	}

	result := LedgerResult{Entries: []LedgerRow{}, Next: opts.After, Stats: st}
	for _, e := range entries {
		result.Next = e.Seq
		if opts.Model != "" && e.Model != opts.Model {
			continue
		}
		if opts.Entity != "" && e.EntityID != opts.Entity {
			continue
		}
		result.Entries = append(result.Entries, LedgerRow{
			Seq:      e.Seq,
			EntityID: e.EntityID,
			Model:    e.Model,
			Data:     json.RawMessage(e.Data),
		})
	}
	return out.Success(result)
}
