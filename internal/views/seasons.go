package views

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/duelsync/internal/ir"
	"github.com/roach88/duelsync/internal/model"
)

// ConfigRow is the world configuration.
type ConfigRow = model.ConfigRecord

// Config holds the pistols-Config singleton.
type Config struct {
	*View[ConfigRow]
}

// NewConfig creates the config view.
func NewConfig() *Config {
	return &Config{
		View: NewView("config", []string{model.Config}, func(e model.Entity) (ConfigRow, bool) {
			rec, err := model.DecodeConfig(e)
			return rec, err == nil
		}),
	}
}

// Current returns the configuration, once it is cached.
func (c *Config) Current() (ConfigRow, bool) {
	return c.Get(ir.MustEntityID(ir.Int(model.ConfigKey)))
}

// SeasonRow is a season with its leaderboard.
type SeasonRow struct {
	SeasonID int64
	Name     string
	Rules    string
	Phase    model.SeasonPhase
	Start    int64
	End      int64

	IsActive   bool // phase InProgress
	IsFinished bool // phase Ended

	// Leaderboard is empty until the season's Leaderboard is cached.
	Leaderboard []model.DuelistScore
}

// DeriveSeason requires a well-formed SeasonConfig model. Leaderboard is
// optional.
func DeriveSeason(e model.Entity) (SeasonRow, bool) {
	rec, err := model.DecodeSeason(e)
	if err != nil {
		return SeasonRow{}, false
	}
	row := SeasonRow{
		SeasonID:   rec.SeasonID,
		Name:       fmt.Sprintf("Season %d", rec.SeasonID),
		Rules:      rec.Rules,
		Phase:      rec.Phase,
		Start:      rec.Start,
		End:        rec.End,
		IsActive:   rec.Phase == model.SeasonPhaseInProgress,
		IsFinished: rec.Phase == model.SeasonPhaseEnded,
	}
	if board, err := model.DecodeLeaderboard(e); err == nil {
		row.Leaderboard = board.Scores
	}
	return row, true
}

// Seasons is the season domain store.
type Seasons struct {
	*View[SeasonRow]
}

// NewSeasons creates the season view.
func NewSeasons() *Seasons {
	return &Seasons{
		View: NewView("seasons", []string{model.SeasonConfig, model.Leaderboard}, DeriveSeason),
	}
}

// Season returns the row of one season.
func (s *Seasons) Season(seasonID int64) (SeasonRow, bool) {
	return s.Get(ir.MustEntityID(ir.Int(seasonID)))
}

// IDs returns every cached season id in dir order.
func (s *Seasons) IDs(dir SortDirection) []int64 {
	entries := s.Entries()
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.Row.SeasonID
	}
	slices.SortFunc(ids, func(a, b int64) int { return dir.apply(cmp.Compare(a, b)) })
	return ids
}

// Rows returns every season, optionally only those in phase, in dir
// order of season id.
func (s *Seasons) Rows(phase model.SeasonPhase, dir SortDirection) []Entry[SeasonRow] {
	var out []Entry[SeasonRow]
	for _, e := range s.Entries() {
		if phase != "" && e.Row.Phase != phase {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry[SeasonRow]) int {
		return dir.apply(cmp.Compare(a.Row.SeasonID, b.Row.SeasonID))
	})
	return out
}

// TokenRow is one token contract's configuration.
type TokenRow = model.TokenRecord

// Tokens holds pistols-TokenConfig models, one per token contract.
type Tokens struct {
	*View[TokenRow]
}

// NewTokens creates the token view.
func NewTokens() *Tokens {
	return &Tokens{
		View: NewView("tokens", []string{model.TokenConfig}, func(e model.Entity) (TokenRow, bool) {
			rec, err := model.DecodeToken(e)
			return rec, err == nil
		}),
	}
}

// ByAddress returns the configuration of one token contract.
func (t *Tokens) ByAddress(address string) (TokenRow, bool) {
	id, err := ir.EntityID(ir.String(address))
	if err != nil {
		return TokenRow{}, false
	}
	return t.Get(id)
}

// Addresses returns every cached token address in numeric order.
func (t *Tokens) Addresses() []string {
	entries := t.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Row.TokenAddress
	}
	slices.SortFunc(out, compareFelts)
	return out
}
