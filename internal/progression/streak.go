package progression

import (
	"fmt"

	"song-quiz-service/internal/domain"
)

// StreakThresholds are the counts at which the multiplier steps up.
type StreakThresholds struct {
	Double int `yaml:"double"`
	Triple int `yaml:"triple"`
	Quad   int `yaml:"quad"`
}

// DefaultThresholds: 3 in a row doubles, 4 triples, 5 or more quadruples.
var DefaultThresholds = StreakThresholds{Double: 3, Triple: 4, Quad: 5}

// Validate checks the thresholds are positive and strictly increasing.
func (t StreakThresholds) Validate() error {
	if t.Double <= 0 || t.Triple <= t.Double || t.Quad <= t.Triple {
		return fmt.Errorf("streak thresholds must be positive and increasing, got %d/%d/%d", t.Double, t.Triple, t.Quad)
	}
	return nil
}

// Multiplier returns the tier for a streak count.
func (t StreakThresholds) Multiplier(count int) int {
	switch {
	case count >= t.Quad:
		return 4
	case count >= t.Triple:
		return 3
	case count >= t.Double:
		return 2
	default:
		return 1
	}
}

// Streak counts consecutive scoring rounds within a session.
//
// The multiplier is derived from the count after the current round has been
// added, and applies to that same round: the third straight success is the
// first doubled one.
type Streak struct {
	count      int
	thresholds StreakThresholds
}

// NewStreak returns a zeroed tracker; zero thresholds fall back to the defaults.
func NewStreak(t StreakThresholds) *Streak {
	if t == (StreakThresholds{}) {
		t = DefaultThresholds
	}
	return &Streak{thresholds: t}
}

// Advance records a round's points and returns the new state.
func (s *Streak) Advance(points int) domain.StreakState {
	if points > 0 {
		s.count++
	} else {
		s.count = 0
	}
	return s.State()
}

// State returns the current count and multiplier without changing them.
func (s *Streak) State() domain.StreakState {
	return domain.StreakState{Count: s.count, Multiplier: s.thresholds.Multiplier(s.count)}
}

// Thresholds exposes the configured tiers.
func (s *Streak) Thresholds() StreakThresholds {
	return s.thresholds
}

// Reset zeroes the counter.
func (s *Streak) Reset() {
	s.count = 0
}
