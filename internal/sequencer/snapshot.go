package sequencer

import "song-quiz-service/internal/domain"

// Snapshot is the client view of a state.
type Snapshot struct {
	Phase           Phase                   `json:"phase"`
	QuestionIndex   int                     `json:"questionIndex"`
	Attempt         *domain.SessionAttempt  `json:"attempt,omitempty"`
	Counter         *Tween                  `json:"counter,omitempty"`
	XP              *XPView                 `json:"xp,omitempty"`
	LevelUp         *domain.LevelUpEvent    `json:"levelUp,omitempty"`
	PendingLevelUps int                     `json:"pendingLevelUps,omitempty"`
	Total           int                     `json:"total,omitempty"`
	Attempts        []domain.SessionAttempt `json:"attempts,omitempty"`
}

// Tween is an animated integer change.
type Tween struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// XPView is the experience bar at one level.
type XPView struct {
	Level    int `json:"level"`
	From     int `json:"from"`
	To       int `json:"to"`
	Required int `json:"required"`
}

// Describe renders s for clients.
func Describe(s State) Snapshot {
	snap := Snapshot{Phase: s.Phase()}
	switch cur := s.(type) {
	case Intro:
		snap.QuestionIndex = cur.QuestionIndex
	case AwaitingAnswer:
		snap.QuestionIndex = cur.QuestionIndex
	case ScoreBreakdown:
		attempt := cur.Attempt
		snap.QuestionIndex = attempt.QuestionIndex
		snap.Attempt = &attempt
		snap.Total = cur.TotalBefore
	case ScoreCounter:
		snap.QuestionIndex = cur.QuestionIndex
		snap.Counter = &Tween{From: cur.From, To: cur.To}
		snap.Total = cur.To
	case SessionSummary:
		snap.Total = cur.Total
	case XPBar:
		snap.XP = &XPView{Level: cur.Level, From: cur.From, To: cur.To, Required: cur.Required}
		snap.PendingLevelUps = len(cur.Pending)
		snap.Total = cur.Total
	case LevelUpModal:
		ev := cur.Event
		snap.LevelUp = &ev
		snap.PendingLevelUps = len(cur.Pending)
		snap.Total = cur.Total
	case XPDrain:
		snap.XP = &XPView{Level: cur.Level, From: 0, To: 0, Required: cur.Required}
		snap.PendingLevelUps = len(cur.Pending)
		snap.Total = cur.Total
	case XPRefill:
		snap.XP = &XPView{Level: cur.Level, From: 0, To: cur.To, Required: cur.Required}
		snap.PendingLevelUps = len(cur.Pending)
		snap.Total = cur.Total
	case ResultsList:
		snap.Total = cur.Total
		snap.Attempts = cur.Attempts
	}
	return snap
}
