package views

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/duelsync/internal/model"
)

// DuelistRow is the sortable projection of a duelist. Scoreboard,
// DuelistChallenge and DuelistMemorial are optional; a missing or
// malformed one reads as zero.
type DuelistRow struct {
	DuelistID  string
	Name       string
	Timestamp  int64
	Honour     int64
	WinRatio   float64
	TotalDuels int64
	Wins       int64
	Losses     int64
	Draws      int64

	// IsActive is true once the duelist fought or is in a duel.
	IsActive bool
	// IsAlive is false once a memorial exists.
	IsAlive bool
	// CurrentDuel is the duel the duelist is in, or "0x0".
	CurrentDuel string
}

// DeriveDuelist requires a well-formed Duelist model.
func DeriveDuelist(e model.Entity) (DuelistRow, bool) {
	rec, err := model.DecodeDuelist(e)
	if err != nil {
		return DuelistRow{}, false
	}
	row := DuelistRow{
		DuelistID:   rec.DuelistID,
		Name:        rec.Name,
		Timestamp:   rec.Timestamp,
		IsAlive:     true,
		CurrentDuel: "0x0",
	}
	if score, err := model.DecodeScoreboard(e); err == nil {
		row.Honour = score.Honour
		row.WinRatio = score.WinRatio()
		row.TotalDuels = score.TotalDuels
		row.Wins = score.TotalWins
		row.Losses = score.TotalLosses
		row.Draws = score.TotalDraws
	}
	if dc, err := model.DecodeDuelistChallenge(e); err == nil {
		row.CurrentDuel = dc.DuelID
	}
	if _, err := model.DecodeMemorial(e); err == nil {
		row.IsAlive = false
	}
	row.IsActive = row.TotalDuels > 0 || row.CurrentDuel != "0x0"
	return row, true
}

// DuelistColumn selects the duelist sort key.
type DuelistColumn string

const (
	DuelistColumnName     DuelistColumn = "Name"
	DuelistColumnHonour   DuelistColumn = "Honour"
	DuelistColumnWins     DuelistColumn = "Wins"
	DuelistColumnLosses   DuelistColumn = "Losses"
	DuelistColumnDraws    DuelistColumn = "Draws"
	DuelistColumnTotal    DuelistColumn = "Total"
	DuelistColumnWinRatio DuelistColumn = "WinRatio"
)

var duelistColumns = []DuelistColumn{
	DuelistColumnName,
	DuelistColumnHonour,
	DuelistColumnWins,
	DuelistColumnLosses,
	DuelistColumnDraws,
	DuelistColumnTotal,
	DuelistColumnWinRatio,
}

// ParseDuelistColumn accepts a column name, case-insensitively.
func ParseDuelistColumn(s string) (DuelistColumn, error) {
	for _, c := range duelistColumns {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown duelist column %q", s)
}

// DuelistFilter narrows a duelist query. Zero fields don't filter.
type DuelistFilter struct {
	Name       string   // substring, ignoring case
	ActiveOnly bool     // drop duelists that never fought
	AliveOnly  bool     // drop dead duelists
	IDs        []string // when non-nil, keep only these duelists (bookmarks)
}

// Duelists is the duelist domain store.
type Duelists struct {
	*View[DuelistRow]
}

// NewDuelists creates the duelist view.
func NewDuelists() *Duelists {
	return &Duelists{
		View: NewView("duelists",
			[]string{model.Duelist, model.Scoreboard, model.DuelistChallenge, model.DuelistMemorial},
			DeriveDuelist),
	}
}

// Rows returns the filtered rows in sort order.
//
// Sorting by name uses collation order. For every numeric column,
// inactive duelists sort after active ones in both directions; two
// inactive duelists tie. Ties break on entity id.
func (d *Duelists) Rows(f DuelistFilter, col DuelistColumn, dir SortDirection) []Entry[DuelistRow] {
	name := newNameMatcher(f.Name)
	ids := newIDSet(f.IDs)

	var out []Entry[DuelistRow]
	for _, e := range d.Entries() {
		r := e.Row
		if !name.match(r.Name) {
			continue
		}
		if f.ActiveOnly && !r.IsActive {
			continue
		}
		if f.AliveOnly && !r.IsAlive {
			continue
		}
		if ids != nil && !ids.has(r.DuelistID) {
			continue
		}
		out = append(out, e)
	}

	coll := newCollator()
	slices.SortStableFunc(out, func(a, b Entry[DuelistRow]) int {
		if col == DuelistColumnName {
			if c := coll.CompareString(a.Row.Name, b.Row.Name); c != 0 {
				return dir.apply(c)
			}
			return compareStrings(a.ID, b.ID)
		}

		switch {
		case !a.Row.IsActive && !b.Row.IsActive:
			return compareStrings(a.ID, b.ID)
		case !a.Row.IsActive:
			return 1
		case !b.Row.IsActive:
			return -1
		}
		if c := compareDuelistColumn(col, a.Row, b.Row); c != 0 {
			return dir.apply(c)
		}
		return compareStrings(a.ID, b.ID)
	})
	return out
}

// Query returns the duelist ids of Rows.
func (d *Duelists) Query(f DuelistFilter, col DuelistColumn, dir SortDirection) []string {
	rows := d.Rows(f, col, dir)
	ids := make([]string, len(rows))
	for i, e := range rows {
		ids[i] = e.Row.DuelistID
	}
	return ids
}

// CurrentDuels returns the duels cached duelists are in, without
// duplicates and in sorted order.
func (d *Duelists) CurrentDuels() []string {
	seen := make(map[string]bool)
	for _, e := range d.Entries() {
		if id := e.Row.CurrentDuel; id != "" && id != "0x0" {
			seen[id] = true
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.SortFunc(out, compareFelts)
	return out
}

func compareDuelistColumn(col DuelistColumn, a, b DuelistRow) int {
	switch col {
	case DuelistColumnHonour:
		return cmp.Compare(a.Honour, b.Honour)
	case DuelistColumnWins:
		return cmp.Compare(a.Wins, b.Wins)
	case DuelistColumnLosses:
		return cmp.Compare(a.Losses, b.Losses)
	case DuelistColumnDraws:
		return cmp.Compare(a.Draws, b.Draws)
	case DuelistColumnTotal:
		return cmp.Compare(a.TotalDuels, b.TotalDuels)
	case DuelistColumnWinRatio:
		return cmp.Compare(a.WinRatio, b.WinRatio)
	}
	return 0
}
