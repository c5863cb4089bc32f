package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/duelsync/internal/ir"
	"github.com/roach88/duelsync/internal/mirror"
	"github.com/roach88/duelsync/internal/model"
	"github.com/roach88/duelsync/internal/views"
)

// =============================================================================
// seasons
// =============================================================================

// SeasonsOptions holds flags for the seasons command.
type SeasonsOptions struct {
	*RootOptions
	Dir   string
	Phase string
}

// SeasonsResult lists seasons and names the current one.
type SeasonsResult struct {
	Current int64             `json:"current,omitempty"`
	Seasons []views.SeasonRow `json:"seasons"`

	table *table
}

func (r SeasonsResult) Text(w io.Writer) error {
	return r.table.Text(w)
}

// NewSeasonsCommand creates the seasons command.
func NewSeasonsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeasonsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seasons",
		Short: "List seasons and their leaderboards",
		Long: `Fetch the world config and every season, then list seasons by id.
The current season is marked with *.

Examples:
  duelsync seasons --db ./duelsync.db
  duelsync seasons --phase Ended --dir asc`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeasons(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "desc", "season id order (asc|desc)")
	cmd.Flags().StringVar(&opts.Phase, "phase", "", "keep seasons in this phase (InProgress|Ended)")
	return cmd
}

func runSeasons(opts *SeasonsOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	dir, err := parseDir(opts.Dir)
	if err != nil {
		return out.Fail(ExitCommandError, CodeInvalidInput, "invalid --dir", err)
	}
	var phase model.SeasonPhase
	if opts.Phase != "" {
		phase = model.ParseSeasonPhase(ir.String(opts.Phase))
		if phase == model.SeasonPhaseUndefined {
			return out.Fail(ExitCommandError, CodeInvalidInput, fmt.Sprintf("unknown phase %q", opts.Phase), nil)
		}
	}

	ctx := commandContext(cmd)
	s, err := startSession(ctx, opts.RootOptions, cmd, out)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.mirror.Hydrate(ctx, mirror.Request{Purpose: mirror.PurposeSeasons, Query: mirror.SeasonsQuery()}); err != nil {
		return out.Fail(ExitFailure, CodeSync, "failed to fetch seasons", err)
	}
	if err := s.mirror.Sync(ctx); err != nil {
		return out.Fail(ExitFailure, CodeSync, "failed to fetch seasons", err)
	}

	result := SeasonsResult{
		Seasons: []views.SeasonRow{},
		table:   &table{header: []string{"", "SEASON", "PHASE", "START", "END", "LEADER", "POINTS"}},
	}
	if current, ok := s.mirror.CurrentSeason(); ok {
		result.Current = current.SeasonID
	}
	for _, e := range s.mirror.Seasons.Rows(phase, dir) {
		r := e.Row
		result.Seasons = append(result.Seasons, r)
		mark, leader, points := "", "", ""
		if r.SeasonID == result.Current {
			mark = "*"
		}
		if len(r.Leaderboard) > 0 {
			leader = r.Leaderboard[0].DuelistID
			points = strconv.FormatInt(r.Leaderboard[0].Points, 10)
		}
		result.table.add(mark, r.Name, string(r.Phase),
			strconv.FormatInt(r.Start, 10), strconv.FormatInt(r.End, 10), leader, points)
	}
	return out.Success(result)
}

// =============================================================================
// tokens
// =============================================================================

// TokensOptions holds flags for the tokens command.
type TokensOptions struct {
	*RootOptions
	Addresses []string
}

// TokensResult lists token contract configurations.
type TokensResult struct {
	Tokens []views.TokenRow `json:"tokens"`

	table *table
}

func (r TokensResult) Text(w io.Writer) error {
	return r.table.Text(w)
}

// NewTokensCommand creates the tokens command.
func NewTokensCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokensOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Show token contract configurations",
		Long: `Fetch the configuration of the given token contracts by address.

Examples:
  duelsync tokens --db ./duelsync.db --address 0x100 --address 0x200`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokens(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Addresses, "address", nil, "token contract address (repeatable)")
	return cmd
}

func runTokens(opts *TokensOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if len(opts.Addresses) == 0 {
		return out.Fail(ExitCommandError, CodeInvalidInput, "at least one --address is required", nil)
	}
	addresses := make([]string, len(opts.Addresses))
	for i, a := range opts.Addresses {
		h := ir.FeltHex(ir.String(a))
		if h == "" {
			return out.Fail(ExitCommandError, CodeInvalidInput, fmt.Sprintf("invalid address %q", a), nil)
		}
		addresses[i] = h
	}

	ctx := commandContext(cmd)
	s, err := startSession(ctx, opts.RootOptions, cmd, out)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.mirror.HydrateTokens(ctx, addresses); err != nil {
		return out.Fail(ExitFailure, CodeSync, "failed to fetch tokens", err)
	}
	if err := s.mirror.Sync(ctx); err != nil {
		return out.Fail(ExitFailure, CodeSync, "failed to fetch tokens", err)
	}

	result := TokensResult{
		Tokens: []views.TokenRow{},
		table:  &table{header: []string{"TOKEN", "MINTER", "MINTED"}},
	}
	for _, addr := range s.mirror.Tokens.Addresses() {
		tok, _ := s.mirror.Tokens.ByAddress(addr)
		result.Tokens = append(result.Tokens, tok)
		result.table.add(tok.TokenAddress, tok.MinterAddress, strconv.FormatInt(tok.MintedCount, 10))
	}
	return out.Success(result)
}
