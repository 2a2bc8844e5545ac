package progression

import "song-quiz-service/internal/domain"

// Policy is the per-mode scoring rule layered over base points.
type Policy struct {
	// Multiply applies the streak multiplier to base points.
	Multiply bool
	// StreakBonus is a flat add-on once the streak reaches the doubling threshold.
	StreakBonus int
}

// PolicyFor picks the scoring rule for a mode. Rapid-fire multiplies; the
// other modes add the flat bonus.
func PolicyFor(mode domain.GameMode, streakBonus int) Policy {
	if mode == domain.ModeRapid {
		return Policy{Multiply: true}
	}
	return Policy{StreakBonus: streakBonus}
}
