package mirror

import (
	"github.com/roach88/duelsync/internal/ir"
	"github.com/roach88/duelsync/internal/model"
	"github.com/roach88/duelsync/internal/query"
)

// Fetch purposes used by the default hydration.
const (
	PurposeChallenges = "challenges"
	PurposeDuelists   = "duelists"
	PurposePlayers    = "players"
	PurposeBookmarks  = "bookmarks"
	PurposeRewards    = "rewards"
	PurposeSeasons    = "seasons"
)

// Purposes of FetchByIDs. Each keeps its own dedup ledger.
const (
	PurposeChallengesByID   = "challenges-by-id"
	PurposeRewardsByDuelist = "challenge-rewards-by-duelist"
	PurposeTokensByID       = "tokens-by-id"
)

// Request is one named fetch of a hydration.
type Request struct {
	Purpose string
	Query   query.Query

	// Stream merges pages as they arrive instead of one snapshot.
	Stream bool
}

// ChallengesQuery selects every challenge with its round, or the
// challenges of one table when tableID is set.
func ChallengesQuery(tableID string) query.Query {
	q := query.New().WithEntityModels(model.Challenge, model.Round)
	if tableID != "" {
		q = q.WithClause(query.Where(model.Challenge, "table_id", query.Eq, ir.EncodeShortString(tableID)))
	}
	return q
}

// DuelistsQuery selects every duelist with its score, current duel and
// memorial.
func DuelistsQuery() query.Query {
	return query.New().WithEntityModels(
		model.Duelist,
		model.Scoreboard,
		model.DuelistChallenge,
		model.DuelistMemorial,
	)
}

// DuelistsByID selects the duelists with the given duelist ids. Its
// signature fits FetchByIDs.
func DuelistsByID(ids []string) query.Query {
	return query.New().
		WithClause(query.Where(model.Duelist, "duelist_id", query.In, ir.Strings(ids...))).
		WithLimit(len(ids))
}

// ChallengesByID selects the duels with the given duel ids. Its signature
// fits FetchByIDs.
func ChallengesByID(ids []string) query.Query {
	return query.New().
		WithClause(query.Where(model.Challenge, "duel_id", query.In, ir.Strings(ids...))).
		WithLimit(len(ids))
}

// PlayersQuery selects every player with its presence.
func PlayersQuery() query.Query {
	return query.New().WithEntityModels(model.Player, model.PlayerOnline)
}

// BookmarksQuery selects the bookmarks of player, or every bookmark when
// player is empty.
func BookmarksQuery(player string) query.Query {
	q := query.New().WithEntityModels(model.PlayerBookmarkEvent)
	if player != "" {
		q = q.WithClause(query.Keys(query.VariableLen, []string{model.PlayerBookmarkEvent}, ir.String(player)))
	}
	return q
}

// RewardsQuery selects the reward events of the given duels, or every
// reward event when duelIDs is empty.
func RewardsQuery(duelIDs ...string) query.Query {
	q := query.New().WithEntityModels(model.ChallengeRewards)
	if len(duelIDs) > 0 {
		q = q.WithClause(query.Where(model.ChallengeRewards, "duel_id", query.In, ir.Strings(duelIDs...)))
	}
	return q
}

// RewardsByDuelist selects the reward events of the given duelists. Its
// signature fits FetchByIDs.
func RewardsByDuelist(ids []string) query.Query {
	return query.New().
		WithEntityModels(model.ChallengeRewards).
		WithClause(query.Where(model.ChallengeRewards, "duelist_id", query.In, ir.Strings(ids...)))
}

// SeasonsQuery selects the world config and every season with its
// leaderboard.
func SeasonsQuery() query.Query {
	return query.New().WithEntityModels(model.Config, model.SeasonConfig, model.Leaderboard)
}

// TokensByID selects the token contracts with the given addresses. Its
// signature fits FetchByIDs.
func TokensByID(addresses []string) query.Query {
	return query.New().
		WithClause(query.Where(model.TokenConfig, "token_address", query.In, ir.Strings(addresses...))).
		WithLimit(len(addresses))
}

// DefaultHydration is the startup set: challenges of tableID, every
// duelist and every player.
func DefaultHydration(tableID string) []Request {
	return []Request{
		{Purpose: PurposeChallenges, Query: ChallengesQuery(tableID)},
		{Purpose: PurposeDuelists, Query: DuelistsQuery()},
		{Purpose: PurposePlayers, Query: PlayersQuery()},
	}
}

// FollowQuery is the live feed matching DefaultHydration.
func FollowQuery(tableID string) query.Query {
	models := []string{
		model.Challenge,
		model.Round,
		model.Duelist,
		model.Scoreboard,
		model.DuelistChallenge,
		model.DuelistMemorial,
		model.Player,
		model.PlayerOnline,
		model.PlayerBookmarkEvent,
		model.ChallengeRewards,
		model.Config,
		model.SeasonConfig,
		model.Leaderboard,
		model.TokenConfig,
	}
	q := query.New().WithEntityModels(models...)
	if tableID == "" {
		return q
	}
	// Challenges of other tables are filtered out; every other model passes.
	// A Round shares its entity with its Challenge and passes through the
	// Challenge clause, so rounds of other tables stay out too.
	others := make([]query.Clause, 0, len(models))
	for _, m := range models[2:] {
		others = append(others, query.Keys(query.VariableLen, []string{m}))
	}
	return q.WithClause(query.Or(append(others,
		query.Where(model.Challenge, "table_id", query.Eq, ir.EncodeShortString(tableID)))...))
}
