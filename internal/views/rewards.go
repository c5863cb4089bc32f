package views

import (
	"cmp"
	"slices"

	"github.com/roach88/duelsync/internal/model"
)

// RewardRow is what one duelist earned in one duel.
type RewardRow = model.RewardsRecord

// Rewards collects ChallengeRewardsEvent models.
type Rewards struct {
	*View[RewardRow]
}

// NewRewards creates the rewards view.
func NewRewards() *Rewards {
	return &Rewards{
		View: NewView("rewards", []string{model.ChallengeRewards}, func(e model.Entity) (RewardRow, bool) {
			rec, err := model.DecodeChallengeRewards(e)
			return rec, err == nil
		}),
	}
}

// ByDuelist returns the rewards of duelistID, ordered by duel id value.
func (r *Rewards) ByDuelist(duelistID string) []RewardRow {
	return r.filter(func(row RewardRow) bool {
		return normalizeID(row.DuelistID) == normalizeID(duelistID)
	})
}

// ByDuel returns the rewards of both sides of duelID.
func (r *Rewards) ByDuel(duelID string) []RewardRow {
	return r.filter(func(row RewardRow) bool {
		return normalizeID(row.DuelID) == normalizeID(duelID)
	})
}

// TotalPoints sums the points a duelist scored over every recorded duel.
func (r *Rewards) TotalPoints(duelistID string) int64 {
	var total int64
	for _, row := range r.ByDuelist(duelistID) {
		total += row.PointsScored
	}
	return total
}

func (r *Rewards) filter(keep func(RewardRow) bool) []RewardRow {
	var out []RewardRow
	for _, e := range r.Entries() {
		if keep(e.Row) {
			out = append(out, e.Row)
		}
	}
	slices.SortStableFunc(out, func(a, b RewardRow) int {
		return cmp.Or(
			compareFelts(a.DuelID, b.DuelID),
			compareFelts(a.DuelistID, b.DuelistID),
		)
	})
	return out
}
