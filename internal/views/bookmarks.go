package views

import (
	"slices"

	"github.com/roach88/duelsync/internal/model"
)

// BookmarkRow is the latest state of one (player, target, token) bookmark.
type BookmarkRow = model.BookmarkRecord

// Bookmarks tracks what each player follows. Bookmark events are keyed
// by (player, target, token), so each toggle overwrites the previous one.
type Bookmarks struct {
	*View[BookmarkRow]
}

// NewBookmarks creates the bookmark view.
func NewBookmarks() *Bookmarks {
	return &Bookmarks{
		View: NewView("bookmarks", []string{model.PlayerBookmarkEvent}, func(e model.Entity) (BookmarkRow, bool) {
			rec, err := model.DecodeBookmark(e)
			return rec, err == nil
		}),
	}
}

// BookmarkedPlayers returns the addresses player has bookmarked, sorted.
func (b *Bookmarks) BookmarkedPlayers(player string) []string {
	return b.collect(player, func(r BookmarkRow) (string, bool) {
		return r.TargetAddress, r.IsPlayerBookmark()
	})
}

// BookmarkedTokens returns the token ids of contract that player has
// bookmarked, sorted. Tokens are duelists or duels depending on contract.
func (b *Bookmarks) BookmarkedTokens(player, contract string) []string {
	want := normalizeID(contract)
	return b.collect(player, func(r BookmarkRow) (string, bool) {
		return r.TargetID, !r.IsPlayerBookmark() && normalizeID(r.TargetAddress) == want
	})
}

// IsBookmarked reports whether player currently follows target/tokenID.
// Use "0x0" as tokenID for a player bookmark.
func (b *Bookmarks) IsBookmarked(player, target, tokenID string) bool {
	for _, e := range b.Entries() {
		r := e.Row
		if normalizeID(r.PlayerAddress) == normalizeID(player) &&
			normalizeID(r.TargetAddress) == normalizeID(target) &&
			normalizeID(r.TargetID) == normalizeID(tokenID) {
			return r.Enabled
		}
	}
	return false
}

func (b *Bookmarks) collect(player string, pick func(BookmarkRow) (string, bool)) []string {
	who := normalizeID(player)
	out := []string{}
	for _, e := range b.Entries() {
		r := e.Row
		if !r.Enabled || normalizeID(r.PlayerAddress) != who {
			continue
		}
		if v, ok := pick(r); ok {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
