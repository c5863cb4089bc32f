package views

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/duelsync/internal/model"
)

// ChallengeRow is the sortable projection of a pistols-Challenge.
type ChallengeRow struct {
	DuelID         string
	TableID        string
	State          model.ChallengeState
	StateValue     int
	AddressA       string
	AddressB       string
	DuelistIDA     string
	DuelistIDB     string
	Winner         int64
	TimestampStart int64
	TimestampEnd   int64

	// Timestamp is the displayed time: end, or start while the duel has
	// no end time.
	Timestamp int64

	// RoundState and FinalBlow come from the duel's Round; Undefined until
	// one is cached.
	RoundState model.RoundState
	FinalBlow  model.FinalBlow
}

// DeriveChallenge requires a well-formed Challenge model. Round is
// optional.
func DeriveChallenge(e model.Entity) (ChallengeRow, bool) {
	rec, err := model.DecodeChallenge(e)
	if err != nil {
		return ChallengeRow{}, false
	}
	ts := rec.TimestampEnd
	if ts == 0 {
		ts = rec.TimestampStart
	}
	row := ChallengeRow{
		DuelID:         rec.DuelID,
		TableID:        rec.TableID,
		State:          rec.State,
		StateValue:     rec.State.Ordinal(),
		AddressA:       rec.AddressA,
		AddressB:       rec.AddressB,
		DuelistIDA:     rec.DuelistIDA,
		DuelistIDB:     rec.DuelistIDB,
		Winner:         rec.Winner,
		TimestampStart: rec.TimestampStart,
		TimestampEnd:   rec.TimestampEnd,
		Timestamp:      ts,
		RoundState:     model.RoundStateUndefined,
		FinalBlow:      model.FinalBlowUndefined,
	}
	if round, err := model.DecodeRound(e); err == nil {
		row.RoundState = round.State
		row.FinalBlow = round.FinalBlow
	}
	return row, true
}

// ChallengeColumn selects the challenge sort key.
type ChallengeColumn string

const (
	ChallengeColumnTime   ChallengeColumn = "Time"
	ChallengeColumnStatus ChallengeColumn = "Status"
)

// ParseChallengeColumn accepts a column name, case-insensitively.
func ParseChallengeColumn(s string) (ChallengeColumn, error) {
	for _, c := range []ChallengeColumn{ChallengeColumnTime, ChallengeColumnStatus} {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown challenge column %q", s)
}

// ChallengeFilter narrows a challenge query. Zero fields don't filter.
type ChallengeFilter struct {
	// States keeps challenges in any of the states.
	States []model.ChallengeState

	// TableID keeps challenges of one table (season).
	TableID string

	// PlayerAddress keeps challenges where the player is either side.
	PlayerAddress string

	// DuelIDs, when non-nil, keeps only these duels (e.g. the duels a
	// player bookmarked).
	DuelIDs []string

	// Name keeps challenges where either player's name contains it,
	// ignoring case. Requires a name lookup on the view.
	Name string
}

// NameLookup resolves a player address to a display name.
type NameLookup interface {
	Username(address string) (string, bool)
}

// Challenges is the challenge domain store.
type Challenges struct {
	*View[ChallengeRow]
	names NameLookup
}

// NewChallenges creates the challenge view. names may be nil, in which
// case the Name filter matches nothing.
func NewChallenges(names NameLookup) *Challenges {
	return &Challenges{
		View:  NewView("challenges", []string{model.Challenge, model.Round}, DeriveChallenge),
		names: names,
	}
}

// Rows returns the filtered rows in sort order. Sorting is stable with
// the entity id as final tie-break.
func (c *Challenges) Rows(f ChallengeFilter, col ChallengeColumn, dir SortDirection) []Entry[ChallengeRow] {
	states := make(map[model.ChallengeState]bool, len(f.States))
	for _, s := range f.States {
		states[s] = true
	}
	player := normalizeID(f.PlayerAddress)
	duels := newIDSet(f.DuelIDs)
	name := newNameMatcher(f.Name)

	var out []Entry[ChallengeRow]
	for _, e := range c.Entries() {
		r := e.Row
		if len(states) > 0 && !states[r.State] {
			continue
		}
		if f.TableID != "" && r.TableID != f.TableID {
			continue
		}
		if f.PlayerAddress != "" && normalizeID(r.AddressA) != player && normalizeID(r.AddressB) != player {
			continue
		}
		if duels != nil && !duels.has(r.DuelID) {
			continue
		}
		if !name.empty() && !name.match(c.username(r.AddressA), c.username(r.AddressB)) {
			continue
		}
		out = append(out, e)
	}

	slices.SortStableFunc(out, func(a, b Entry[ChallengeRow]) int {
		var primary int
		switch col {
		case ChallengeColumnStatus:
			primary = cmp.Or(
				cmp.Compare(a.Row.StateValue, b.Row.StateValue),
				cmp.Compare(a.Row.Timestamp, b.Row.Timestamp),
			)
		default:
			primary = cmp.Compare(a.Row.Timestamp, b.Row.Timestamp)
		}
		if primary != 0 {
			return dir.apply(primary)
		}
		return compareStrings(a.ID, b.ID)
	})
	return out
}

// Query returns the duel ids of Rows.
func (c *Challenges) Query(f ChallengeFilter, col ChallengeColumn, dir SortDirection) []string {
	rows := c.Rows(f, col, dir)
	ids := make([]string, len(rows))
	for i, e := range rows {
		ids[i] = e.Row.DuelID
	}
	return ids
}

// DuelistIDs returns every duelist id seen on either side of a challenge,
// without duplicates and in sorted order.
func (c *Challenges) DuelistIDs() []string {
	seen := make(map[string]bool)
	for _, e := range c.Entries() {
		for _, id := range []string{e.Row.DuelistIDA, e.Row.DuelistIDB} {
			if id != "" && id != "0x0" {
				seen[id] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (c *Challenges) username(address string) string {
	if c.names == nil || address == "" || address == "0x0" {
		return ""
	}
	name, _ := c.names.Username(address)
	return name
}
