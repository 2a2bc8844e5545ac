// Package sequencer is the presentation state machine for a game session:
// intro reveals, answering, the score breakdown, and the experience and
// level-up disclosure that follows a completed session.
//
// States are plain values and Reduce is a pure function; Driver adds the
// timing on top.
package sequencer

import (
	"errors"
	"fmt"

	"song-quiz-service/internal/domain"
	"song-quiz-service/internal/progression"
)

// ErrInvalidTransition is returned when an event does not apply to the current state.
var ErrInvalidTransition = errors.New("invalid sequencer transition")

// Phase names a state for clients and timing tables.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseLifelineReveal Phase = "lifeline_reveal"
	PhaseTimerReveal    Phase = "timer_reveal"
	PhasePlaybackReveal Phase = "playback_reveal"
	PhaseAwaitingAnswer Phase = "awaiting_answer"
	PhaseScoreBreakdown Phase = "score_breakdown"
	PhaseScoreCounter   Phase = "score_counter"
	PhaseSessionSummary Phase = "session_summary"
	PhaseXPBar          Phase = "xp_bar"
	PhaseLevelUpModal   Phase = "level_up_modal"
	PhaseXPDrain        Phase = "xp_drain"
	PhaseXPRefill       Phase = "xp_refill"
	PhaseResultsList    Phase = "results_list"
)

// IntroSteps is the full opening reveal, in order.
var IntroSteps = []Phase{PhaseLifelineReveal, PhaseTimerReveal, PhasePlaybackReveal}

// State is one of the concrete state types below.
type State interface {
	Phase() Phase
}

type Idle struct{}

// Intro is one of the opening reveals; Steps[0] is the current one.
type Intro struct {
	QuestionIndex int
	Steps         []Phase
}

type AwaitingAnswer struct {
	QuestionIndex int
}

type ScoreBreakdown struct {
	Attempt     domain.SessionAttempt
	TotalBefore int
	Last        bool
}

// ScoreCounter tweens the session score from From to To.
type ScoreCounter struct {
	QuestionIndex int
	From, To      int
	Last          bool
}

// SessionSummary waits for the session's award to be committed.
type SessionSummary struct {
	Total int
}

// levelQueue carries what is left to disclose after the bar fills.
type levelQueue struct {
	Pending         []domain.LevelUpEvent
	FinalExperience int
	FinalRequired   int
	Total           int
	Attempts        []domain.SessionAttempt
}

type XPBar struct {
	Level    int
	From, To int
	Required int
	levelQueue
}

type LevelUpModal struct {
	Event domain.LevelUpEvent
	levelQueue
}

// XPDrain resets the bar to zero for the new level while the modal is still up.
type XPDrain struct {
	Level    int
	Required int
	levelQueue
}

type XPRefill struct {
	Level    int
	To       int
	Required int
	levelQueue
}

type ResultsList struct {
	Total    int
	Attempts []domain.SessionAttempt
}

func (Idle) Phase() Phase           { return PhaseIdle }
func (s Intro) Phase() Phase        { return s.Steps[0] }
func (AwaitingAnswer) Phase() Phase { return PhaseAwaitingAnswer }
func (ScoreBreakdown) Phase() Phase { return PhaseScoreBreakdown }
func (ScoreCounter) Phase() Phase   { return PhaseScoreCounter }
func (SessionSummary) Phase() Phase { return PhaseSessionSummary }
func (XPBar) Phase() Phase          { return PhaseXPBar }
func (LevelUpModal) Phase() Phase   { return PhaseLevelUpModal }
func (XPDrain) Phase() Phase        { return PhaseXPDrain }
func (XPRefill) Phase() Phase       { return PhaseXPRefill }
func (ResultsList) Phase() Phase    { return PhaseResultsList }

// Event drives a transition.
type Event interface {
	event()
}

// BeginQuestion starts a question; an empty Intro skips the reveals.
type BeginQuestion struct {
	Index int
	Intro []Phase
}

// Advance ends a timed phase, or settles it early.
type Advance struct{}

// AnswerSubmitted carries the scored attempt. Countdown expiry submits a
// zero-point attempt with TimedOut set.
type AnswerSubmitted struct {
	Attempt     domain.SessionAttempt
	TotalBefore int
	Last        bool
}

// AwardApplied reports the committed award for the XP disclosure.
type AwardApplied struct {
	StartLevel      int
	StartExperience int
	Award           progression.Award
	Attempts        []domain.SessionAttempt
}

// Acknowledge closes a level-up modal.
type Acknowledge struct{}

// Dismiss closes the results list.
type Dismiss struct{}

// Abandon drops the session from any state.
type Abandon struct{}

func (BeginQuestion) event()   {}
func (Advance) event()         {}
func (AnswerSubmitted) event() {}
func (AwardApplied) event()    {}
func (Acknowledge) event()     {}
func (Dismiss) event()         {}
func (Abandon) event()         {}

// Reduce returns the state that follows s on e. It never mutates s.
func Reduce(s State, e Event) (State, error) {
	if _, ok := e.(Abandon); ok {
		return Idle{}, nil
	}

	switch cur := s.(type) {
	case Idle:
		if ev, ok := e.(BeginQuestion); ok {
			if len(ev.Intro) == 0 {
				return AwaitingAnswer{QuestionIndex: ev.Index}, nil
			}
			steps := append([]Phase(nil), ev.Intro...)
			return Intro{QuestionIndex: ev.Index, Steps: steps}, nil
		}
	case Intro:
		if _, ok := e.(Advance); ok {
			if len(cur.Steps) > 1 {
				return Intro{QuestionIndex: cur.QuestionIndex, Steps: cur.Steps[1:]}, nil
			}
			return AwaitingAnswer{QuestionIndex: cur.QuestionIndex}, nil
		}
	case AwaitingAnswer:
		if ev, ok := e.(AnswerSubmitted); ok {
			if ev.Attempt.QuestionIndex != cur.QuestionIndex {
				return s, fmt.Errorf("%w: answer for question %d while awaiting %d",
					ErrInvalidTransition, ev.Attempt.QuestionIndex, cur.QuestionIndex)
			}
			return ScoreBreakdown{Attempt: ev.Attempt, TotalBefore: ev.TotalBefore, Last: ev.Last}, nil
		}
	case ScoreBreakdown:
		if _, ok := e.(Advance); ok {
			return ScoreCounter{
				QuestionIndex: cur.Attempt.QuestionIndex,
				From:          cur.TotalBefore,
				To:            cur.TotalBefore + cur.Attempt.PointsEarned,
				Last:          cur.Last,
			}, nil
		}
	case ScoreCounter:
		if _, ok := e.(Advance); ok {
			if cur.Last {
				return SessionSummary{Total: cur.To}, nil
			}
			return Idle{}, nil
		}
	case SessionSummary:
		if ev, ok := e.(AwardApplied); ok {
			return xpBarFor(cur.Total, ev), nil
		}
	case XPBar:
		if _, ok := e.(Advance); ok {
			return nextLevelUp(cur.levelQueue), nil
		}
	case LevelUpModal:
		if _, ok := e.(Acknowledge); ok {
			required := cur.FinalRequired
			if len(cur.Pending) > 0 {
				required = cur.Pending[0].Required
			}
			return XPDrain{Level: cur.Event.ToLevel, Required: required, levelQueue: cur.levelQueue}, nil
		}
	case XPDrain:
		if _, ok := e.(Advance); ok {
			to := cur.FinalExperience
			if len(cur.Pending) > 0 {
				to = cur.Pending[0].Required
			}
			return XPRefill{Level: cur.Level, To: to, Required: cur.Required, levelQueue: cur.levelQueue}, nil
		}
	case XPRefill:
		if _, ok := e.(Advance); ok {
			return nextLevelUp(cur.levelQueue), nil
		}
	case ResultsList:
		if _, ok := e.(Dismiss); ok {
			return Idle{}, nil
		}
	}
	return s, fmt.Errorf("%w: %T in phase %s", ErrInvalidTransition, e, s.Phase())
}

func xpBarFor(total int, ev AwardApplied) State {
	q := levelQueue{
		Pending:         append([]domain.LevelUpEvent(nil), ev.Award.Events...),
		FinalExperience: ev.Award.FinalExperience,
		FinalRequired:   ev.Award.Required,
		Total:           total,
		Attempts:        ev.Attempts,
	}
	bar := XPBar{
		Level:      ev.StartLevel,
		From:       ev.StartExperience,
		To:         ev.Award.FinalExperience,
		Required:   ev.Award.Required,
		levelQueue: q,
	}
	if len(q.Pending) > 0 {
		bar.To = q.Pending[0].Required
		bar.Required = q.Pending[0].Required
	}
	return bar
}

// nextLevelUp pops the next queued event, or moves on to the results.
func nextLevelUp(q levelQueue) State {
	if len(q.Pending) == 0 {
		return ResultsList{Total: q.Total, Attempts: q.Attempts}
	}
	ev := q.Pending[0]
	q.Pending = q.Pending[1:]
	return LevelUpModal{Event: ev, levelQueue: q}
}
