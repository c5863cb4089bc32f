package views

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/duelsync/internal/ir"
	"github.com/roach88/duelsync/internal/model"
)

// PlayerRow is the sortable projection of a player account.
type PlayerRow struct {
	Address           string
	Username          string
	Registered        int64
	AliveDuelistCount int64

	// LastSeen is zero until a PlayerOnline model arrives.
	LastSeen  int64
	Available bool
}

// DerivePlayer requires a well-formed Player model. PlayerOnline is
// optional.
func DerivePlayer(e model.Entity) (PlayerRow, bool) {
	rec, err := model.DecodePlayer(e)
	if err != nil {
		return PlayerRow{}, false
	}
	row := PlayerRow{
		Address:           rec.Address,
		Username:          rec.Username,
		Registered:        rec.TimestampRegistered,
		AliveDuelistCount: rec.AliveDuelistCount,
	}
	if online, err := model.DecodePlayerOnline(e); err == nil {
		row.LastSeen = online.Timestamp
		row.Available = online.Available
	}
	return row, true
}

// PlayerColumn selects the player sort key.
type PlayerColumn string

const (
	PlayerColumnName     PlayerColumn = "Name"
	PlayerColumnJoined   PlayerColumn = "Joined"
	PlayerColumnDuelists PlayerColumn = "Duelists"
	PlayerColumnOnline   PlayerColumn = "Online"
)

// ParsePlayerColumn accepts a column name, case-insensitively.
func ParsePlayerColumn(s string) (PlayerColumn, error) {
	for _, c := range []PlayerColumn{PlayerColumnName, PlayerColumnJoined, PlayerColumnDuelists, PlayerColumnOnline} {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown player column %q", s)
}

// PlayerFilter narrows a player query. Zero fields don't filter.
type PlayerFilter struct {
	Name          string
	AvailableOnly bool
	// Addresses, when non-nil, keeps only these players (bookmarks).
	Addresses []string
}

// Players is the player domain store. It also resolves usernames for
// the challenge view.
type Players struct {
	*View[PlayerRow]
}

// NewPlayers creates the player view.
func NewPlayers() *Players {
	return &Players{
		View: NewView("players", []string{model.Player, model.PlayerOnline}, DerivePlayer),
	}
}

// Username returns the registered name of the player at address.
func (p *Players) Username(address string) (string, bool) {
	id, err := ir.EntityID(ir.String(address))
	if err != nil {
		return "", false
	}
	row, ok := p.Get(id)
	if !ok || row.Username == "" {
		return "", false
	}
	return row.Username, true
}

// Rows returns the filtered rows in sort order, ties broken on entity id.
func (p *Players) Rows(f PlayerFilter, col PlayerColumn, dir SortDirection) []Entry[PlayerRow] {
	name := newNameMatcher(f.Name)
	addrs := newIDSet(f.Addresses)

	var out []Entry[PlayerRow]
	for _, e := range p.Entries() {
		r := e.Row
		if !name.match(r.Username) {
			continue
		}
		if f.AvailableOnly && !r.Available {
			continue
		}
		if addrs != nil && !addrs.has(r.Address) {
			continue
		}
		out = append(out, e)
	}

	coll := newCollator()
	slices.SortStableFunc(out, func(a, b Entry[PlayerRow]) int {
		var c int
		switch col {
		case PlayerColumnJoined:
			c = cmp.Compare(a.Row.Registered, b.Row.Registered)
		case PlayerColumnDuelists:
			c = cmp.Compare(a.Row.AliveDuelistCount, b.Row.AliveDuelistCount)
		case PlayerColumnOnline:
			c = cmp.Compare(a.Row.LastSeen, b.Row.LastSeen)
		default:
			c = coll.CompareString(a.Row.Username, b.Row.Username)
		}
		if c != 0 {
			return dir.apply(c)
		}
		return compareStrings(a.ID, b.ID)
	})
	return out
}

// Query returns the player addresses of Rows.
func (p *Players) Query(f PlayerFilter, col PlayerColumn, dir SortDirection) []string {
	rows := p.Rows(f, col, dir)
	out := make([]string, len(rows))
	for i, e := range rows {
		out[i] = e.Row.Address
	}
	return out
}
