package model

import (
	"fmt"

	"github.com/roach88/duelsync/internal/ir"
)

// MalformedError reports a model that cannot produce a typed record.
type MalformedError struct {
	Model  string
	Field  string
	Reason string
}

func (e *MalformedError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed %s: %s", e.Model, e.Reason)
	}
	return fmt.Sprintf("malformed %s.%s: %s", e.Model, e.Field, e.Reason)
}

// fields wraps a model object with typed accessors. The first failure is
// kept in err so decoders can read every field and check once.
type fields struct {
	model string
	obj   ir.Object
	err   error
}

func newFields(e Entity, name string) (*fields, error) {
	obj, ok := GetModel(e, name)
	if !ok {
		return nil, &MalformedError{Model: name, Reason: "model not present"}
	}
	return &fields{model: name, obj: obj}, nil
}

func (f *fields) fail(field, reason string) {
	if f.err == nil {
		f.err = &MalformedError{Model: f.model, Field: field, Reason: reason}
	}
}

// key reads a required, positive felt and returns it as hex.
func (f *fields) key(path string) string {
	v, ok := f.obj.Get(path)
	if !ok {
		f.fail(path, "missing key field")
		return ""
	}
	if _, isNull := v.(ir.Null); isNull {
		f.fail(path, "null key field")
		return ""
	}
	if !ir.IsPositive(v) {
		f.fail(path, "key field is not a positive integer")
		return ""
	}
	return ir.FeltHex(v)
}

// felt reads an optional felt as hex; absent or zero gives "0x0".
func (f *fields) felt(path string) string {
	v, ok := f.obj.Get(path)
	if !ok {
		return "0x0"
	}
	if h := ir.FeltHex(v); h != "" {
		return h
	}
	if _, isNull := v.(ir.Null); !isNull {
		f.fail(path, "not an integer")
	}
	return "0x0"
}

func (f *fields) int(path string) int64 {
	v, ok := f.obj.Get(path)
	if !ok {
		return 0
	}
	n, ok := ir.AsInt64(v)
	if !ok {
		if _, isNull := v.(ir.Null); !isNull {
			f.fail(path, "not an int64")
		}
		return 0
	}
	return n
}

func (f *fields) bool(path string) bool {
	v, ok := f.obj.Get(path)
	if !ok {
		return false
	}
	b, ok := ir.AsBool(v)
	if !ok {
		f.fail(path, "not a bool")
	}
	return b
}

func (f *fields) shortString(path string) string {
	v, ok := f.obj.Get(path)
	if !ok {
		return ""
	}
	return ir.ShortString(v)
}

func (f *fields) raw(path string) ir.Value {
	v, ok := f.obj.Get(path)
	if !ok {
		return ir.Null{}
	}
	return v
}

// ChallengeRecord is the typed form of pistols-Challenge.
type ChallengeRecord struct {
	DuelID         string
	TableID        string
	Premise        Premise
	Quote          string
	LivesStaked    int64
	AddressA       string
	AddressB       string
	DuelistIDA     string
	DuelistIDB     string
	State          ChallengeState
	Winner         int64
	TimestampStart int64
	TimestampEnd   int64
}

// WinnerAddress returns the winning player's address, or "0x0".
func (c ChallengeRecord) WinnerAddress() string {
	switch c.Winner {
	case 1:
		return c.AddressA
	case 2:
		return c.AddressB
	}
	return "0x0"
}

// DecodeChallenge decodes the Challenge model of e.
func DecodeChallenge(e Entity) (ChallengeRecord, error) {
	f, err := newFields(e, Challenge)
	if err != nil {
		return ChallengeRecord{}, err
	}
	rec := ChallengeRecord{
		DuelID:         f.key("duel_id"),
		TableID:        f.shortString("table_id"),
		Premise:        ParsePremise(f.raw("premise")),
		Quote:          f.shortString("quote"),
		LivesStaked:    f.int("lives_staked"),
		AddressA:       f.felt("address_a"),
		AddressB:       f.felt("address_b"),
		DuelistIDA:     f.felt("duelist_id_a"),
		DuelistIDB:     f.felt("duelist_id_b"),
		State:          ParseChallengeState(f.raw("state")),
		Winner:         f.int("winner"),
		TimestampStart: f.int("timestamps.start"),
		TimestampEnd:   f.int("timestamps.end"),
	}
	return rec, f.err
}

// RoundRecord is the typed form of pistols-Round.
type RoundRecord struct {
	DuelID           string
	State            RoundState
	FinalBlow        FinalBlow
	FinalBlowPayload ir.Value
}

// DecodeRound decodes the Round model of e.
func DecodeRound(e Entity) (RoundRecord, error) {
	f, err := newFields(e, Round)
	if err != nil {
		return RoundRecord{}, err
	}
	blow, payload := ParseFinalBlow(f.raw("final_blow"))
	rec := RoundRecord{
		DuelID:           f.key("duel_id"),
		State:            ParseRoundState(f.raw("state")),
		FinalBlow:        blow,
		FinalBlowPayload: payload,
	}
	return rec, f.err
}

// DuelistRecord is the typed form of pistols-Duelist.
type DuelistRecord struct {
	DuelistID string
	Name      string
	Timestamp int64
}

// DecodeDuelist decodes the Duelist model of e.
func DecodeDuelist(e Entity) (DuelistRecord, error) {
	f, err := newFields(e, Duelist)
	if err != nil {
		return DuelistRecord{}, err
	}
	rec := DuelistRecord{
		DuelistID: f.key("duelist_id"),
		Name:      f.shortString("name"),
		Timestamp: f.int("timestamp"),
	}
	return rec, f.err
}

// ScoreRecord is the typed form of pistols-Scoreboard.
type ScoreRecord struct {
	DuelistID   string
	Honour      int64
	TotalDuels  int64
	TotalWins   int64
	TotalLosses int64
	TotalDraws  int64
}

// WinRatio returns wins/duels in [0,1]; zero when no duels were fought.
func (s ScoreRecord) WinRatio() float64 {
	if s.TotalDuels <= 0 {
		return 0
	}
	return float64(s.TotalWins) / float64(s.TotalDuels)
}

// DecodeScoreboard decodes the Scoreboard model of e.
func DecodeScoreboard(e Entity) (ScoreRecord, error) {
	f, err := newFields(e, Scoreboard)
	if err != nil {
		return ScoreRecord{}, err
	}
	rec := ScoreRecord{
		DuelistID:   f.key("duelist_id"),
		Honour:      f.int("score.honour"),
		TotalDuels:  f.int("score.total_duels"),
		TotalWins:   f.int("score.total_wins"),
		TotalLosses: f.int("score.total_losses"),
		TotalDraws:  f.int("score.total_draws"),
	}
	return rec, f.err
}

// DuelistChallengeRecord links a duelist to the duel it is currently in.
type DuelistChallengeRecord struct {
	DuelistID string
	DuelID    string
}

// DecodeDuelistChallenge decodes the DuelistChallenge model of e.
func DecodeDuelistChallenge(e Entity) (DuelistChallengeRecord, error) {
	f, err := newFields(e, DuelistChallenge)
	if err != nil {
		return DuelistChallengeRecord{}, err
	}
	rec := DuelistChallengeRecord{
		DuelistID: f.key("duelist_id"),
		DuelID:    f.felt("duel_id"),
	}
	return rec, f.err
}

// MemorialRecord is the typed form of pistols-DuelistMemorial. Its presence
// means the duelist is dead.
type MemorialRecord struct {
	DuelistID       string
	CauseOfDeath    CauseOfDeath
	KilledBy        string
	FameBeforeDeath string
}

// DecodeMemorial decodes the DuelistMemorial model of e.
func DecodeMemorial(e Entity) (MemorialRecord, error) {
	f, err := newFields(e, DuelistMemorial)
	if err != nil {
		return MemorialRecord{}, err
	}
	rec := MemorialRecord{
		DuelistID:       f.key("duelist_id"),
		CauseOfDeath:    ParseCauseOfDeath(f.raw("cause_of_death")),
		KilledBy:        f.felt("killed_by"),
		FameBeforeDeath: f.felt("fame_before_death"),
	}
	return rec, f.err
}

// PlayerRecord is the typed form of pistols-Player.
type PlayerRecord struct {
	Address             string
	Username            string
	TimestampRegistered int64
	AliveDuelistCount   int64
}

// DecodePlayer decodes the Player model of e.
func DecodePlayer(e Entity) (PlayerRecord, error) {
	f, err := newFields(e, Player)
	if err != nil {
		return PlayerRecord{}, err
	}
	rec := PlayerRecord{
		Address:             f.key("player_address"),
		Username:            f.shortString("username"),
		TimestampRegistered: f.int("timestamps.registered"),
		AliveDuelistCount:   f.int("alive_duelist_count"),
	}
	return rec, f.err
}

// OnlineRecord is the typed form of pistols-PlayerOnline.
type OnlineRecord struct {
	Identity  string
	Timestamp int64
	Available bool
}

// DecodePlayerOnline decodes the PlayerOnline model of e.
func DecodePlayerOnline(e Entity) (OnlineRecord, error) {
	f, err := newFields(e, PlayerOnline)
	if err != nil {
		return OnlineRecord{}, err
	}
	rec := OnlineRecord{
		Identity:  f.key("identity"),
		Timestamp: f.int("timestamp"),
		Available: f.bool("available"),
	}
	return rec, f.err
}

// BookmarkRecord is the typed form of pistols-PlayerBookmarkEvent.
// A zero TargetID bookmarks the player at TargetAddress; otherwise it
// bookmarks token TargetID of contract TargetAddress.
type BookmarkRecord struct {
	PlayerAddress string
	TargetAddress string
	TargetID      string
	Enabled       bool
}

// IsPlayerBookmark reports whether the bookmark targets a player.
func (b BookmarkRecord) IsPlayerBookmark() bool {
	return b.TargetID == "0x0"
}

// DecodeBookmark decodes the PlayerBookmarkEvent model of e.
func DecodeBookmark(e Entity) (BookmarkRecord, error) {
	f, err := newFields(e, PlayerBookmarkEvent)
	if err != nil {
		return BookmarkRecord{}, err
	}
	rec := BookmarkRecord{
		PlayerAddress: f.key("player_address"),
		TargetAddress: f.key("target_address"),
		TargetID:      f.felt("target_id"),
		Enabled:       f.bool("enabled"),
	}
	return rec, f.err
}

// RewardsRecord is the typed form of pistols-ChallengeRewardsEvent.
// Token amounts are wei and stay as hex felts.
type RewardsRecord struct {
	DuelID       string
	DuelistID    string
	FameGained   string
	FameLost     string
	FoolsGained  string
	PointsScored int64
	Position     int64
	Survived     bool
}

// DecodeChallengeRewards decodes the ChallengeRewardsEvent model of e.
func DecodeChallengeRewards(e Entity) (RewardsRecord, error) {
	f, err := newFields(e, ChallengeRewards)
	if err != nil {
		return RewardsRecord{}, err
	}
	rec := RewardsRecord{
		DuelID:       f.key("duel_id"),
		DuelistID:    f.key("duelist_id"),
		FameGained:   f.felt("rewards.fame_gained"),
		FameLost:     f.felt("rewards.fame_lost"),
		FoolsGained:  f.felt("rewards.fools_gained"),
		PointsScored: f.int("rewards.points_scored"),
		Position:     f.int("rewards.position"),
		Survived:     f.bool("rewards.survived"),
	}
	return rec, f.err
}
