package progression

import (
	"fmt"

	"song-quiz-service/internal/domain"
)

// Ladder describes a level requirement curve.
type Ladder interface {
	// Requirement is the experience needed to leave level.
	Requirement(level int) int
	// Cap is the highest reachable level, 0 when uncapped.
	Cap() int
}

// Curve is a linear ladder: Base at level 1, plus Step per level after that.
type Curve struct {
	Base     int `yaml:"base"`
	Step     int `yaml:"step"`
	MaxLevel int `yaml:"max_level"`
}

var (
	// PlayerCurve is the global player ladder; requirement(1) = 100.
	PlayerCurve = Curve{Base: 100, Step: 50}
	// PlaylistCurve is the per-playlist ladder, mastered at level 10.
	PlaylistCurve = Curve{Base: 100, Step: 25, MaxLevel: 10}
)

func (c Curve) Requirement(level int) int {
	if level < 1 {
		level = 1
	}
	return c.Base + c.Step*(level-1)
}

func (c Curve) Cap() int { return c.MaxLevel }

// Validate rejects curves that are not strictly increasing.
func (c Curve) Validate() error {
	if c.Base <= 0 {
		return fmt.Errorf("curve base must be positive, got %d", c.Base)
	}
	if c.Step <= 0 {
		return fmt.Errorf("curve step must be positive, got %d", c.Step)
	}
	if c.MaxLevel < 0 || c.MaxLevel == 1 {
		return fmt.Errorf("curve max_level must be 0 (uncapped) or at least 2, got %d", c.MaxLevel)
	}
	return nil
}

// Award is the outcome of applying experience to a {level, experience} pair.
type Award struct {
	FinalLevel      int `json:"finalLevel"`
	FinalExperience int `json:"finalExperience"`
	// Required is the requirement of FinalLevel, 0 at the cap.
	Required int                   `json:"required"`
	Events   []domain.LevelUpEvent `json:"levelUps"`
}

// Capped reports whether the award ended on the ladder's top level.
func (a Award) Capped(l Ladder) bool {
	return l.Cap() > 0 && a.FinalLevel >= l.Cap()
}

// ApplyAward adds points to the current experience and resolves every level
// boundary crossed, in ascending order. Reaching the cap discards the rest of
// the award and pins experience at zero; awards at the cap change nothing.
// points must be non-negative.
func ApplyAward(level, experience, points int, l Ladder) Award {
	if level < 1 {
		level = 1
	}
	maxLevel := l.Cap()
	if maxLevel > 0 && level >= maxLevel {
		return Award{FinalLevel: maxLevel, FinalExperience: experience}
	}

	total := experience + points
	var events []domain.LevelUpEvent
	for {
		required := l.Requirement(level)
		if required <= 0 || total < required {
			break
		}
		total -= required
		event := domain.LevelUpEvent{
			FromLevel:          level,
			ToLevel:            level + 1,
			OverflowExperience: total,
			Required:           required,
		}
		level++
		if maxLevel > 0 && level >= maxLevel {
			event.OverflowExperience = 0
			events = append(events, event)
			return Award{FinalLevel: level, FinalExperience: 0, Events: events}
		}
		events = append(events, event)
	}

	return Award{
		FinalLevel:      level,
		FinalExperience: total,
		Required:        l.Requirement(level),
		Events:          events,
	}
}

// Fraction is how full the experience bar is at level, in [0,1].
func Fraction(level, experience int, l Ladder) float64 {
	if l.Cap() > 0 && level >= l.Cap() {
		return 1
	}
	required := l.Requirement(level)
	if required <= 0 {
		return 0
	}
	f := float64(experience) / float64(required)
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}
