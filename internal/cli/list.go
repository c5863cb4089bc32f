package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/duelsync/internal/ir"
	"github.com/roach88/duelsync/internal/mirror"
	"github.com/roach88/duelsync/internal/model"
	"github.com/roach88/duelsync/internal/views"
)

// ListOptions are the flags shared by the duels, duelists and players
// commands.
type ListOptions struct {
	*RootOptions
	Sort  string
	Dir   string
	Name  string
	Rows  int // rows per displayed page; 0 shows everything
	Index int // zero-based displayed page
}

func (o *ListOptions) bind(cmd *cobra.Command, defaultSort, defaultDir string) {
	cmd.Flags().StringVar(&o.Sort, "sort", defaultSort, "sort column")
	cmd.Flags().StringVar(&o.Dir, "dir", defaultDir, "sort direction (asc|desc)")
	cmd.Flags().StringVar(&o.Name, "name", "", "keep rows whose name contains this, ignoring case")
	cmd.Flags().IntVar(&o.Rows, "rows", 0, "rows per page (0 = all)")
	cmd.Flags().IntVar(&o.Index, "page", 0, "zero-based page to show")
}

// ListResult is one displayed page of a view.
type ListResult[R any] struct {
	View      string `json:"view"`
	Total     int    `json:"total"`
	Page      int    `json:"page"`
	PageCount int    `json:"page_count"`
	Rows      []R    `json:"rows"`

	table *table
}

func (r ListResult[R]) Text(w io.Writer) error {
	if err := r.table.Text(w); err != nil {
		return err
	}
	if r.PageCount > 1 {
		fmt.Fprintf(w, "page %d/%d, %d rows\n", r.Page+1, r.PageCount, r.Total)
	}
	return nil
}

// pageEntries cuts one displayed page out of sorted entries.
func pageEntries[R any](name string, entries []views.Entry[R], size, index int) ListResult[R] {
	ids := make([]string, len(entries))
	byID := make(map[string]R, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		byID[e.ID] = e.Row
	}
	page, count := views.Page(ids, size, index)
	rows := make([]R, len(page))
	for i, id := range page {
		rows[i] = byID[id]
	}
	return ListResult[R]{View: name, Total: len(entries), Page: index, PageCount: count, Rows: rows}
}

func parseDir(s string) (views.SortDirection, error) {
	return views.ParseSortDirection(s)
}

// =============================================================================
// duels
// =============================================================================

// DuelsOptions holds flags for the duels command.
type DuelsOptions struct {
	ListOptions
	States       []string
	Player       string
	BookmarkedBy string
	Contract     string
	Current      bool
}

// NewDuelsCommand creates the duels command.
func NewDuelsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DuelsOptions{ListOptions: ListOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "duels",
		Short: "List the challenges of a table",
		Long: `Hydrate the cache and list challenges, newest first by default.

Sort columns: time (end time, or start while unfinished), status.

Examples:
  duelsync duels --db ./duelsync.db --table Season1
  duelsync duels --state Awaiting --state InProgress --sort status
  duelsync duels --player 0xabc --rows 20 --page 1
  duelsync duels --bookmarked-by 0xabc --contract 0xd0e1
  duelsync duels --current --table Season1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDuels(opts, cmd)
		},
	}

	opts.bind(cmd, string(views.ChallengeColumnTime), "desc")
	cmd.Flags().StringSliceVar(&opts.States, "state", nil, "keep challenges in these states")
	cmd.Flags().StringVar(&opts.Player, "player", "", "keep challenges where this address is either side")
	cmd.Flags().StringVar(&opts.BookmarkedBy, "bookmarked-by", "", "keep duels this address bookmarked (needs --contract)")
	cmd.Flags().StringVar(&opts.Contract, "contract", "", "duel token contract of the bookmarks")
	cmd.Flags().BoolVar(&opts.Current, "current", false, "also fetch the duels cached duelists are in, from any table")
	return cmd
}

func runDuels(opts *DuelsOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	col, err := views.ParseChallengeColumn(opts.Sort)
	if err != nil {
		return out.Fail(ExitCommandError, CodeInvalidInput, "invalid --sort", err)
	}
	dir, err := parseDir(opts.Dir)
	if err != nil {
		return out.Fail(ExitCommandError, CodeInvalidInput, "invalid --dir", err)
	}
	filter := views.ChallengeFilter{Name: opts.Name, PlayerAddress: opts.Player}
	for _, s := range opts.States {
		state := model.ParseChallengeState(ir.String(s))
		if state == model.ChallengeStateUndefined {
			return out.Fail(ExitCommandError, CodeInvalidInput, fmt.Sprintf("unknown state %q", s), nil)
		}
		filter.States = append(filter.States, state)
	}
	if (opts.BookmarkedBy == "") != (opts.Contract == "") {
		return out.Fail(ExitCommandError, CodeInvalidInput, "--bookmarked-by and --contract go together", nil)
	}

	s, err := startHydrated(commandContext(cmd), opts.RootOptions, cmd, out)
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.BookmarkedBy != "" {
		if err := hydrateBookmarks(cmd, s, opts.BookmarkedBy); err != nil {
			return out.Fail(ExitFailure, CodeSync, "failed to fetch bookmarks", err)
		}
		filter.DuelIDs = s.mirror.Bookmarks.BookmarkedTokens(opts.BookmarkedBy, opts.Contract)
	}

	if opts.Current {
		if err := hydrateCurrentDuels(cmd, s); err != nil {
			return out.Fail(ExitFailure, CodeSync, "failed to fetch current duels", err)
		}
	}

	entries := s.mirror.Challenges.Rows(filter, col, dir)
	result := pageEntries("challenges", entries, opts.Rows, opts.Index)
	result.table = &table{header: []string{"DUEL", "STATE", "ROUND", "DUELIST A", "DUELIST B", "WINNER", "TIME"}}
	for _, r := range result.Rows {
		result.table.add(r.DuelID, string(r.State), string(r.RoundState), r.DuelistIDA, r.DuelistIDB,
			strconv.FormatInt(r.Winner, 10), strconv.FormatInt(r.Timestamp, 10))
	}
	return out.Success(result)
}

// =============================================================================
// duelists
// =============================================================================

// DuelistsOptions holds flags for the duelists command.
type DuelistsOptions struct {
	ListOptions
	ActiveOnly bool
	AliveOnly  bool
	Rewards    bool
}

// DuelistListRow adds reward points to a duelist row.
type DuelistListRow struct {
	views.DuelistRow
	Points int64 `json:"points,omitempty"`
}

// NewDuelistsCommand creates the duelists command.
func NewDuelistsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DuelistsOptions{ListOptions: ListOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "duelists",
		Short: "List duelists and their scores",
		Long: `Hydrate the cache and list duelists.

Sort columns: name, honour, wins, losses, draws, total, winratio. For every
column except name, duelists that never fought sort last.

Examples:
  duelsync duelists --db ./duelsync.db --sort honour --dir desc
  duelsync duelists --alive --name bob
  duelsync duelists --rewards --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDuelists(opts, cmd)
		},
	}

	opts.bind(cmd, string(views.DuelistColumnName), "asc")
	cmd.Flags().BoolVar(&opts.ActiveOnly, "active", false, "only duelists that fought or are in a duel")
	cmd.Flags().BoolVar(&opts.AliveOnly, "alive", false, "only duelists without a memorial")
	cmd.Flags().BoolVar(&opts.Rewards, "rewards", false, "fetch challenge rewards and show points")
	return cmd
}

func runDuelists(opts *DuelistsOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	col, err := views.ParseDuelistColumn(opts.Sort)
	if err != nil {
		return out.Fail(ExitCommandError, CodeInvalidInput, "invalid --sort", err)
	}
	dir, err := parseDir(opts.Dir)
	if err != nil {
		return out.Fail(ExitCommandError, CodeInvalidInput, "invalid --dir", err)
	}

	s, err := startHydrated(commandContext(cmd), opts.RootOptions, cmd, out)
	if err != nil {
		return err
	}
	defer s.Close()

	filter := views.DuelistFilter{Name: opts.Name, ActiveOnly: opts.ActiveOnly, AliveOnly: opts.AliveOnly}
	entries := s.mirror.Duelists.Rows(filter, col, dir)
	page := pageEntries("duelists", entries, opts.Rows, opts.Index)

	if opts.Rewards {
		ids := make([]string, len(page.Rows))
		for i, r := range page.Rows {
			ids[i] = r.DuelistID
		}
		if err := hydrateRewards(cmd, s, ids); err != nil {
			return out.Fail(ExitFailure, CodeSync, "failed to fetch rewards", err)
		}
	}

	result := ListResult[DuelistListRow]{
		View: page.View, Total: page.Total, Page: page.Page, PageCount: page.PageCount,
		Rows:  make([]DuelistListRow, len(page.Rows)),
		table: &table{header: []string{"DUELIST", "NAME", "HONOUR", "W", "L", "D", "RATIO", "ALIVE", "POINTS"}},
	}
	for i, r := range page.Rows {
		row := DuelistListRow{DuelistRow: r}
		if opts.Rewards {
			row.Points = s.mirror.Rewards.TotalPoints(r.DuelistID)
		}
		result.Rows[i] = row
		result.table.add(r.DuelistID, r.Name,
			strconv.FormatInt(r.Honour, 10),
			strconv.FormatInt(r.Wins, 10),
			strconv.FormatInt(r.Losses, 10),
			strconv.FormatInt(r.Draws, 10),
			strconv.FormatFloat(r.WinRatio, 'f', 2, 64),
			strconv.FormatBool(r.IsAlive),
			strconv.FormatInt(row.Points, 10))
	}
	return out.Success(result)
}

// =============================================================================
// players
// =============================================================================

// PlayersOptions holds flags for the players command.
type PlayersOptions struct {
	ListOptions
	AvailableOnly bool
	BookmarkedBy  string
}

// NewPlayersCommand creates the players command.
func NewPlayersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlayersOptions{ListOptions: ListOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "players",
		Short: "List registered players",
		Long: `Hydrate the cache and list players.

Sort columns: name, joined, duelists, online.

Examples:
  duelsync players --db ./duelsync.db
  duelsync players --available --sort online --dir desc
  duelsync players --bookmarked-by 0xabc`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlayers(opts, cmd)
		},
	}

	opts.bind(cmd, string(views.PlayerColumnName), "asc")
	cmd.Flags().BoolVar(&opts.AvailableOnly, "available", false, "only players available for a duel")
	cmd.Flags().StringVar(&opts.BookmarkedBy, "bookmarked-by", "", "only players this address bookmarked")
	return cmd
}

func runPlayers(opts *PlayersOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	col, err := views.ParsePlayerColumn(opts.Sort)
	if err != nil {
		return out.Fail(ExitCommandError, CodeInvalidInput, "invalid --sort", err)
	}
	dir, err := parseDir(opts.Dir)
	if err != nil {
		return out.Fail(ExitCommandError, CodeInvalidInput, "invalid --dir", err)
	}

	s, err := startHydrated(commandContext(cmd), opts.RootOptions, cmd, out)
	if err != nil {
		return err
	}
	defer s.Close()

	filter := views.PlayerFilter{Name: opts.Name, AvailableOnly: opts.AvailableOnly}
	if opts.BookmarkedBy != "" {
		if err := hydrateBookmarks(cmd, s, opts.BookmarkedBy); err != nil {
			return out.Fail(ExitFailure, CodeSync, "failed to fetch bookmarks", err)
		}
		filter.Addresses = s.mirror.Bookmarks.BookmarkedPlayers(opts.BookmarkedBy)
	}

	entries := s.mirror.Players.Rows(filter, col, dir)
	result := pageEntries("players", entries, opts.Rows, opts.Index)
	result.table = &table{header: []string{"ADDRESS", "NAME", "JOINED", "DUELISTS", "AVAILABLE"}}
	for _, r := range result.Rows {
		result.table.add(r.Address, r.Username,
			strconv.FormatInt(r.Registered, 10),
			strconv.FormatInt(r.AliveDuelistCount, 10),
			strconv.FormatBool(r.Available))
	}
	return out.Success(result)
}

// =============================================================================
// extra fetches
// =============================================================================

func hydrateBookmarks(cmd *cobra.Command, s *session, player string) error {
	ctx := commandContext(cmd)
	_, err := s.mirror.Hydrate(ctx, mirror.Request{
		Purpose: mirror.PurposeBookmarks,
		Query:   mirror.BookmarksQuery(player),
	})
	if err != nil {
		return err
	}
	return s.mirror.Sync(ctx)
}

// hydrateCurrentDuels fetches the duels cached duelists are in that the
// table hydration did not bring.
func hydrateCurrentDuels(cmd *cobra.Command, s *session) error {
	ctx := commandContext(cmd)
	if _, err := s.mirror.HydrateChallenges(ctx); err != nil {
		return err
	}
	return s.mirror.Sync(ctx)
}

// hydrateRewards fetches the rewards of the listed duelists only.
func hydrateRewards(cmd *cobra.Command, s *session, duelistIDs []string) error {
	ctx := commandContext(cmd)
	if _, err := s.mirror.HydrateRewards(ctx, duelistIDs); err != nil {
		return err
	}
	return s.mirror.Sync(ctx)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
