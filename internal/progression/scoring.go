// Package progression holds the pure game arithmetic: per-question scoring,
// the streak multiplier, and the experience ladder that turns session points
// into levels.
package progression

import "song-quiz-service/internal/domain"

// Outcome is the credit a player earned on one question.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomePartial
	OutcomeFull
)

func (o Outcome) String() string {
	switch o {
	case OutcomePartial:
		return "partial"
	case OutcomeFull:
		return "full"
	default:
		return "none"
	}
}

const (
	PartialPoints = 10
	FullPoints    = 20
	// SpecialFactor scales both tiers on special questions.
	SpecialFactor = 2
)

// BasePoints converts an outcome into points before any streak policy.
func BasePoints(outcome Outcome, special bool) int {
	points := 0
	switch outcome {
	case OutcomePartial:
		points = PartialPoints
	case OutcomeFull:
		points = FullPoints
	}
	if special {
		points *= SpecialFactor
	}
	return points
}

// OutcomeFor grades split artist/title credit.
func OutcomeFor(artistCorrect, songCorrect bool) Outcome {
	switch {
	case artistCorrect && songCorrect:
		return OutcomeFull
	case artistCorrect || songCorrect:
		return OutcomePartial
	default:
		return OutcomeNone
	}
}

// BinaryOutcome grades trivia and lyric questions, which only score at the full tier.
func BinaryOutcome(correct bool) Outcome {
	if correct {
		return OutcomeFull
	}
	return OutcomeNone
}

// Round is the scored result of one question.
type Round struct {
	Outcome    Outcome            `json:"-"`
	Base       int                `json:"base"`
	Multiplier int                `json:"multiplier"`
	Bonus      int                `json:"bonus"`
	Points     int                `json:"points"`
	Streak     domain.StreakState `json:"streak"`
}

// Score advances the streak with the round's base points and applies the
// mode policy on top.
func Score(outcome Outcome, special bool, streak *Streak, policy Policy) Round {
	base := BasePoints(outcome, special)
	state := streak.Advance(base)

	round := Round{
		Outcome:    outcome,
		Base:       base,
		Multiplier: 1,
		Points:     base,
		Streak:     state,
	}
	if base == 0 {
		return round
	}
	if policy.Multiply {
		round.Multiplier = state.Multiplier
		round.Points = base * state.Multiplier
	}
	if policy.StreakBonus > 0 && state.Count >= streak.Thresholds().Double {
		round.Bonus = policy.StreakBonus
		round.Points += policy.StreakBonus
	}
	return round
}
