package model

import (
	"math/big"

	"github.com/roach88/duelsync/internal/ir"
)

// ConfigKey is the key of the single pistols-Config entity.
const ConfigKey = 1

// ConfigRecord is the typed form of pistols-Config.
type ConfigRecord struct {
	Key             int64
	TreasuryAddress string
	LordsAddress    string
	VRFAddress      string
	CurrentSeasonID int64
	IsPaused        bool
}

// DecodeConfig decodes the Config model of e.
func DecodeConfig(e Entity) (ConfigRecord, error) {
	f, err := newFields(e, Config)
	if err != nil {
		return ConfigRecord{}, err
	}
	rec := ConfigRecord{
		Key:             f.keyInt("key"),
		TreasuryAddress: f.felt("treasury_address"),
		LordsAddress:    f.felt("lords_address"),
		VRFAddress:      f.felt("vrf_address"),
		CurrentSeasonID: f.int("current_season_id"),
		IsPaused:        f.bool("is_paused"),
	}
	return rec, f.err
}

// SeasonRecord is the typed form of pistols-SeasonConfig.
type SeasonRecord struct {
	SeasonID int64
	Rules    string
	Phase    SeasonPhase
	Start    int64
	End      int64
}

// DecodeSeason decodes the SeasonConfig model of e.
func DecodeSeason(e Entity) (SeasonRecord, error) {
	f, err := newFields(e, SeasonConfig)
	if err != nil {
		return SeasonRecord{}, err
	}
	rec := SeasonRecord{
		SeasonID: f.keyInt("season_id"),
		Rules:    DecodeVariant(f.raw("rules")).Name,
		Phase:    ParseSeasonPhase(f.raw("phase")),
		Start:    f.int("period.start"),
		End:      f.int("period.end"),
	}
	return rec, f.err
}

// A leaderboard packs 24 bits per position, so one felt holds at most 10.
const (
	leaderboardSlot         = 24
	maxLeaderboardPositions = 10
)

// DuelistScore is one leaderboard position.
type DuelistScore struct {
	DuelistID string `json:"duelist_id"`
	Points    int64  `json:"points"`
}

// LeaderboardRecord is the typed form of pistols-Leaderboard. Duelist ids
// and scores are packed 24 bits per position into two felts.
type LeaderboardRecord struct {
	SeasonID  int64
	Positions int64
	Scores    []DuelistScore
}

// DecodeLeaderboard decodes the Leaderboard model of e. Empty positions
// (duelist id 0) are skipped.
func DecodeLeaderboard(e Entity) (LeaderboardRecord, error) {
	f, err := newFields(e, Leaderboard)
	if err != nil {
		return LeaderboardRecord{}, err
	}
	rec := LeaderboardRecord{
		SeasonID:  f.keyInt("season_id"),
		Positions: f.int("positions"),
	}
	ids := f.packed("duelist_ids")
	scores := f.packed("scores")
	if f.err != nil {
		return rec, f.err
	}

	mask := big.NewInt(1<<leaderboardSlot - 1)
	for i := range min(rec.Positions, maxLeaderboardPositions) {
		shift := uint(i * leaderboardSlot)
		id := new(big.Int).And(new(big.Int).Rsh(ids, shift), mask)
		if id.Sign() == 0 {
			continue
		}
		points := new(big.Int).And(new(big.Int).Rsh(scores, shift), mask)
		rec.Scores = append(rec.Scores, DuelistScore{
			DuelistID: "0x" + id.Text(16),
			Points:    points.Int64(),
		})
	}
	return rec, nil
}

// TokenRecord is the typed form of pistols-TokenConfig.
type TokenRecord struct {
	TokenAddress  string
	MinterAddress string
	MintedCount   int64
}

// DecodeToken decodes the TokenConfig model of e.
func DecodeToken(e Entity) (TokenRecord, error) {
	f, err := newFields(e, TokenConfig)
	if err != nil {
		return TokenRecord{}, err
	}
	rec := TokenRecord{
		TokenAddress:  f.key("token_address"),
		MinterAddress: f.felt("minter_address"),
		MintedCount:   f.int("minted_count"),
	}
	return rec, f.err
}

// keyInt reads a required, positive integer key.
func (f *fields) keyInt(path string) int64 {
	h := f.key(path)
	if h == "" {
		return 0
	}
	n, ok := ir.AsInt64(ir.String(h))
	if !ok {
		f.fail(path, "key field does not fit int64")
	}
	return n
}

// packed reads an optional felt as an integer; absent reads as zero.
func (f *fields) packed(path string) *big.Int {
	v, ok := f.obj.Get(path)
	if !ok {
		return new(big.Int)
	}
	n, ok := ir.Felt(v)
	if !ok || n.Sign() < 0 {
		f.fail(path, "not an unsigned integer")
		return new(big.Int)
	}
	return n
}
