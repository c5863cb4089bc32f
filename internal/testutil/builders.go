// Package testutil provides fixtures shared by package tests: entity
// builders for the pistols models and a scriptable in-memory indexer.
package testutil

import (
	"math/big"

	"github.com/roach88/duelsync/internal/ir"
	"github.com/roach88/duelsync/internal/model"
)

// Entity builds an entity holding one model, keyed by keys.
func Entity(name string, obj ir.Object, keys ...ir.Value) model.Entity {
	return model.Entity{
		ID:     ir.MustEntityID(keys...),
		Keys:   keys,
		Models: model.Bag{name: obj},
	}
}

// Merge combines entities sharing one id into a single entity.
// Later models win.
func Merge(entities ...model.Entity) model.Entity {
	if len(entities) == 0 {
		return model.Entity{}
	}
	out := entities[0].Clone()
	for _, e := range entities[1:] {
		for name, obj := range e.Models {
			out.Models[name] = obj.Clone()
		}
	}
	return out
}

// Felt renders n as a hex felt.
func Felt(n int64) ir.String {
	return ir.String(ir.FeltHex(ir.Int(n)))
}

// ChallengeOpts are the optional fields of a Challenge fixture.
type ChallengeOpts struct {
	TableID    string
	State      string
	AddressA   string
	AddressB   string
	DuelistA   int64
	DuelistB   int64
	Winner     int64
	Start      int64
	End        int64
	LivesStake int64
}

// Challenge builds a pistols-Challenge entity.
func Challenge(duelID int64, o ChallengeOpts) model.Entity {
	state := o.State
	if state == "" {
		state = "Awaiting"
	}
	addrA, addrB := o.AddressA, o.AddressB
	if addrA == "" {
		addrA = "0x0"
	}
	if addrB == "" {
		addrB = "0x0"
	}
	lives := o.LivesStake
	if lives == 0 {
		lives = 1
	}
	obj := ir.Object{
		"duel_id":      Felt(duelID),
		"table_id":     ir.EncodeShortString(o.TableID),
		"premise":      ir.String("Honour"),
		"quote":        ir.String("0x0"),
		"lives_staked": ir.Int(lives),
		"address_a":    ir.String(addrA),
		"address_b":    ir.String(addrB),
		"duelist_id_a": Felt(o.DuelistA),
		"duelist_id_b": Felt(o.DuelistB),
		"state":        ir.String(state),
		"winner":       ir.Int(o.Winner),
		"timestamps": ir.Object{
			"start": ir.Int(o.Start),
			"end":   ir.Int(o.End),
		},
	}
	return Entity(model.Challenge, obj, Felt(duelID))
}

// Duelist builds a pistols-Duelist entity.
func Duelist(duelistID int64, name string, timestamp int64) model.Entity {
	obj := ir.Object{
		"duelist_id": Felt(duelistID),
		"name":       ir.EncodeShortString(name),
		"timestamp":  ir.Int(timestamp),
	}
	return Entity(model.Duelist, obj, Felt(duelistID))
}

// Score is the score struct of a Scoreboard fixture.
type Score struct {
	Honour int64
	Wins   int64
	Losses int64
	Draws  int64
}

// Scoreboard builds a pistols-Scoreboard entity. total_duels is the sum of
// wins, losses and draws.
func Scoreboard(duelistID int64, s Score) model.Entity {
	obj := ir.Object{
		"duelist_id": Felt(duelistID),
		"score": ir.Object{
			"honour":       ir.Int(s.Honour),
			"total_duels":  ir.Int(s.Wins + s.Losses + s.Draws),
			"total_wins":   ir.Int(s.Wins),
			"total_losses": ir.Int(s.Losses),
			"total_draws":  ir.Int(s.Draws),
		},
	}
	return Entity(model.Scoreboard, obj, Felt(duelistID))
}

// DuelistChallenge builds a pistols-DuelistChallenge entity.
func DuelistChallenge(duelistID, duelID int64) model.Entity {
	obj := ir.Object{
		"duelist_id": Felt(duelistID),
		"duel_id":    Felt(duelID),
	}
	return Entity(model.DuelistChallenge, obj, Felt(duelistID))
}

// Round builds a pistols-Round entity. finalBlow may be "".
func Round(duelID int64, state, finalBlow string) model.Entity {
	obj := ir.Object{
		"duel_id": Felt(duelID),
		"state":   ir.String(state),
	}
	if finalBlow != "" {
		obj["final_blow"] = ir.String(finalBlow)
	}
	return Entity(model.Round, obj, Felt(duelID))
}

// Memorial builds a pistols-DuelistMemorial entity.
func Memorial(duelistID int64, cause string) model.Entity {
	obj := ir.Object{
		"duelist_id":        Felt(duelistID),
		"cause_of_death":    ir.String(cause),
		"killed_by":         ir.String("0x0"),
		"fame_before_death": ir.String("0x0"),
	}
	return Entity(model.DuelistMemorial, obj, Felt(duelistID))
}

// Player builds a pistols-Player entity.
func Player(address, username string, registered int64) model.Entity {
	obj := ir.Object{
		"player_address":      ir.String(address),
		"username":            ir.EncodeShortString(username),
		"alive_duelist_count": ir.Int(0),
		"timestamps": ir.Object{
			"registered": ir.Int(registered),
		},
	}
	return Entity(model.Player, obj, ir.String(address))
}

// PlayerOnline builds a pistols-PlayerOnline entity.
func PlayerOnline(address string, timestamp int64, available bool) model.Entity {
	obj := ir.Object{
		"identity":  ir.String(address),
		"timestamp": ir.Int(timestamp),
		"available": ir.Bool(available),
	}
	return Entity(model.PlayerOnline, obj, ir.String(address))
}

// Bookmark builds a pistols-PlayerBookmarkEvent entity. targetID 0
// bookmarks the player at target.
func Bookmark(player, target string, targetID int64, enabled bool) model.Entity {
	obj := ir.Object{
		"player_address": ir.String(player),
		"target_address": ir.String(target),
		"target_id":      Felt(targetID),
		"enabled":        ir.Bool(enabled),
	}
	return Entity(model.PlayerBookmarkEvent, obj, ir.String(player), ir.String(target), Felt(targetID))
}

// Rewards builds a pistols-ChallengeRewardsEvent entity.
func Rewards(duelID, duelistID, points int64, survived bool) model.Entity {
	obj := ir.Object{
		"duel_id":    Felt(duelID),
		"duelist_id": Felt(duelistID),
		"rewards": ir.Object{
			"fame_gained":   ir.String("0x0"),
			"fame_lost":     ir.String("0x0"),
			"fools_gained":  ir.String("0x0"),
			"points_scored": ir.Int(points),
			"position":      ir.Int(0),
			"survived":      ir.Bool(survived),
		},
	}
	return Entity(model.ChallengeRewards, obj, Felt(duelID), Felt(duelistID))
}

// Config builds the pistols-Config singleton.
func Config(currentSeason int64, paused bool) model.Entity {
	obj := ir.Object{
		"key":               ir.Int(model.ConfigKey),
		"treasury_address":  ir.String("0x7ea"),
		"lords_address":     ir.String("0x10d5"),
		"vrf_address":       ir.String("0x0"),
		"current_season_id": ir.Int(currentSeason),
		"is_paused":         ir.Bool(paused),
	}
	return Entity(model.Config, obj, ir.Int(model.ConfigKey))
}

// Season builds a pistols-SeasonConfig entity.
func Season(seasonID int64, phase string, start, end int64) model.Entity {
	obj := ir.Object{
		"season_id": ir.Int(seasonID),
		"rules":     ir.String("Season"),
		"phase":     ir.String(phase),
		"period":    ir.Object{"start": ir.Int(start), "end": ir.Int(end)},
	}
	return Entity(model.SeasonConfig, obj, ir.Int(seasonID))
}

// Leaderboard builds a pistols-Leaderboard entity, packing one
// position per score in order.
func Leaderboard(seasonID int64, positions int64, scores ...model.DuelistScore) model.Entity {
	ids, points := new(big.Int), new(big.Int)
	for i, s := range scores {
		id, _ := ir.Felt(ir.String(s.DuelistID))
		shift := uint(i * 24)
		ids.Or(ids, new(big.Int).Lsh(id, shift))
		points.Or(points, new(big.Int).Lsh(big.NewInt(s.Points), shift))
	}
	obj := ir.Object{
		"season_id":   ir.Int(seasonID),
		"positions":   ir.Int(positions),
		"duelist_ids": ir.String("0x" + ids.Text(16)),
		"scores":      ir.String("0x" + points.Text(16)),
	}
	return Entity(model.Leaderboard, obj, ir.Int(seasonID))
}

// Token builds a pistols-TokenConfig entity.
func Token(address string, minted int64) model.Entity {
	obj := ir.Object{
		"token_address":  ir.String(address),
		"minter_address": ir.String("0x3a1"),
		"minted_count":   ir.Int(minted),
	}
	return Entity(model.TokenConfig, obj, ir.String(address))
}
