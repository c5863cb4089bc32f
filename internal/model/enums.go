package model

import (
	"slices"

	"github.com/roach88/duelsync/internal/ir"
)

// closedEnum is a fixed, ordered set of variant tags. Position in the list
// is the ordinal used for sorting.
type closedEnum[T ~string] []T

func (e closedEnum[T]) parse(raw ir.Value) T {
	v := DecodeVariant(raw)
	tag := T(v.Name)
	if slices.Contains(e, tag) {
		return tag
	}
	return e[0]
}

func (e closedEnum[T]) ordinal(tag T) int {
	if i := slices.Index(e, tag); i >= 0 {
		return i
	}
	return 0
}

// ChallengeState is the lifecycle state of a duel.
type ChallengeState string

const (
	ChallengeStateUndefined  ChallengeState = UndefinedVariant
	ChallengeStateAwaiting   ChallengeState = "Awaiting"
	ChallengeStateWithdrawn  ChallengeState = "Withdrawn"
	ChallengeStateRefused    ChallengeState = "Refused"
	ChallengeStateExpired    ChallengeState = "Expired"
	ChallengeStateInProgress ChallengeState = "InProgress"
	ChallengeStateResolved   ChallengeState = "Resolved"
	ChallengeStateDraw       ChallengeState = "Draw"
)

var challengeStates = closedEnum[ChallengeState]{
	ChallengeStateUndefined,
	ChallengeStateAwaiting,
	ChallengeStateWithdrawn,
	ChallengeStateRefused,
	ChallengeStateExpired,
	ChallengeStateInProgress,
	ChallengeStateResolved,
	ChallengeStateDraw,
}

// ParseChallengeState decodes a state field; unknown tags are Undefined.
func ParseChallengeState(raw ir.Value) ChallengeState { return challengeStates.parse(raw) }

// Ordinal is the on-chain discriminant, used by status sorting.
func (s ChallengeState) Ordinal() int { return challengeStates.ordinal(s) }

// IsLive reports Awaiting or InProgress.
func (s ChallengeState) IsLive() bool {
	return s == ChallengeStateAwaiting || s == ChallengeStateInProgress
}

// IsFinished reports Resolved or Draw.
func (s ChallengeState) IsFinished() bool {
	return s == ChallengeStateResolved || s == ChallengeStateDraw
}

// IsCanceled reports Withdrawn or Refused.
func (s ChallengeState) IsCanceled() bool {
	return s == ChallengeStateWithdrawn || s == ChallengeStateRefused
}

// ChallengeStates returns every known state in ordinal order.
func ChallengeStates() []ChallengeState { return slices.Clone(challengeStates) }

// RoundState is the progress of a duel round.
type RoundState string

const (
	RoundStateUndefined RoundState = UndefinedVariant
	RoundStateCommit    RoundState = "Commit"
	RoundStateReveal    RoundState = "Reveal"
	RoundStateFinished  RoundState = "Finished"
)

var roundStates = closedEnum[RoundState]{RoundStateUndefined, RoundStateCommit, RoundStateReveal, RoundStateFinished}

func ParseRoundState(raw ir.Value) RoundState { return roundStates.parse(raw) }

// Premise is the stated reason for a challenge.
type Premise string

const (
	PremiseUndefined  Premise = UndefinedVariant
	PremiseMatter     Premise = "Matter"
	PremiseDebt       Premise = "Debt"
	PremiseDispute    Premise = "Dispute"
	PremiseHonour     Premise = "Honour"
	PremiseHatred     Premise = "Hatred"
	PremiseBlood      Premise = "Blood"
	PremiseNothing    Premise = "Nothing"
	PremiseTournament Premise = "Tournament"
	PremiseTreaty     Premise = "Treaty"
	PremiseLesson     Premise = "Lesson"
)

var premises = closedEnum[Premise]{
	PremiseUndefined, PremiseMatter, PremiseDebt, PremiseDispute, PremiseHonour,
	PremiseHatred, PremiseBlood, PremiseNothing, PremiseTournament, PremiseTreaty, PremiseLesson,
}

func ParsePremise(raw ir.Value) Premise { return premises.parse(raw) }

// SeasonPhase is the lifecycle of a season.
type SeasonPhase string

const (
	SeasonPhaseUndefined  SeasonPhase = UndefinedVariant
	SeasonPhaseInProgress SeasonPhase = "InProgress"
	SeasonPhaseEnded      SeasonPhase = "Ended"
)

var seasonPhases = closedEnum[SeasonPhase]{SeasonPhaseUndefined, SeasonPhaseInProgress, SeasonPhaseEnded}

func ParseSeasonPhase(raw ir.Value) SeasonPhase { return seasonPhases.parse(raw) }

// FinalBlow is how a duel ended. Paces and Blades carry the deciding card
// as payload.
type FinalBlow string

const (
	FinalBlowUndefined FinalBlow = UndefinedVariant
	FinalBlowPaces     FinalBlow = "Paces"
	FinalBlowBlades    FinalBlow = "Blades"
	FinalBlowForsaken  FinalBlow = "Forsaken"
)

var finalBlows = closedEnum[FinalBlow]{FinalBlowUndefined, FinalBlowPaces, FinalBlowBlades, FinalBlowForsaken}

// ParseFinalBlow returns the tag and its payload (Null when absent).
func ParseFinalBlow(raw ir.Value) (FinalBlow, ir.Value) {
	tag := finalBlows.parse(raw)
	if tag == FinalBlowUndefined {
		return tag, ir.Null{}
	}
	return tag, DecodeVariant(raw).Value
}

// CauseOfDeath is recorded on a duelist memorial.
type CauseOfDeath string

const (
	CauseOfDeathUndefined CauseOfDeath = UndefinedVariant
	CauseOfDeathDuelling  CauseOfDeath = "Duelling"
	CauseOfDeathMemorize  CauseOfDeath = "Memorize"
	CauseOfDeathSacrifice CauseOfDeath = "Sacrifice"
	CauseOfDeathForsaken  CauseOfDeath = "Forsaken"
)

var causesOfDeath = closedEnum[CauseOfDeath]{
	CauseOfDeathUndefined, CauseOfDeathDuelling, CauseOfDeathMemorize, CauseOfDeathSacrifice, CauseOfDeathForsaken,
}

func ParseCauseOfDeath(raw ir.Value) CauseOfDeath { return causesOfDeath.parse(raw) }
