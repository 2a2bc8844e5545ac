package app

import (
	"song-quiz-service/internal/commentary"
	"song-quiz-service/internal/domain"
	"song-quiz-service/internal/progression"
	"song-quiz-service/internal/sequencer"
	"song-quiz-service/internal/speech"
)

// Update types pushed to session subscribers.
const (
	UpdateState      = "state"
	UpdateRound      = "round"
	UpdateCommentary = "commentary"
	UpdateLifeline   = "lifeline"
	UpdateSummary    = "summary"
)

// Update is one message fanned out to a session's subscribers.
type Update struct {
	Type    string
	Payload any
}

// StateView is the client view of a session after a transition.
type StateView struct {
	SessionID    string             `json:"sessionId"`
	PlaylistID   string             `json:"playlistId"`
	PlaylistName string             `json:"playlistName"`
	Mode         domain.GameMode    `json:"mode"`
	Sequence     sequencer.Snapshot `json:"sequence"`
	Question     *QuestionView      `json:"question,omitempty"`
	CountdownMs  int64              `json:"countdownMs"`
	Total        int                `json:"total"`
	Streak       domain.StreakState `json:"streak"`
	Lifelines    []Lifeline         `json:"lifelines"`
}

// QuestionView is a question with everything that would give the answer away
// stripped out.
type QuestionView struct {
	Index      int                `json:"index"`
	Count      int                `json:"count"`
	ID         string             `json:"id"`
	Kind       domain.SpecialKind `json:"kind"`
	Special    bool               `json:"special"`
	Prompt     string             `json:"prompt,omitempty"`
	Choices    []domain.Choice    `json:"choices,omitempty"`
	PreviewURL string             `json:"previewUrl,omitempty"`
	Rate       float64            `json:"rate,omitempty"`
}

// RoundResult is the scored outcome of one question.
type RoundResult struct {
	Attempt domain.SessionAttempt `json:"attempt"`
	Round   progression.Round     `json:"round"`
	Outcome string                `json:"outcome"`
	Total   int                   `json:"total"`
}

// CommentaryLine is a host line with optional synthesized audio.
type CommentaryLine struct {
	Moment   commentary.Moment `json:"moment"`
	Text     string            `json:"text"`
	Fallback bool              `json:"fallback"`
	Audio    *speech.Audio     `json:"audio,omitempty"`
}

// LifelineResult is what spending a lifeline revealed.
type LifelineResult struct {
	Lifeline Lifeline      `json:"lifeline"`
	Letter   string        `json:"letter,omitempty"`
	Removed  []string      `json:"removed,omitempty"`
	Question *QuestionView `json:"question,omitempty"`
}

func viewQuestion(q domain.Question, index, count int, removed map[string]struct{}) *QuestionView {
	v := &QuestionView{
		Index:      index,
		Count:      count,
		ID:         q.ID,
		Kind:       q.SpecialKind(),
		Special:    q.IsSpecial(),
		PreviewURL: q.Song.PreviewURL,
	}
	choices := q.Choices
	switch special := q.Special.(type) {
	case domain.Trivia:
		v.Prompt = special.Prompt
		choices = special.Choices
	case domain.Lyric:
		v.Prompt = special.Line
		choices = nil
	case domain.Tempo:
		v.Rate = special.Rate
	}
	for _, c := range choices {
		if _, gone := removed[c.ID]; gone {
			continue
		}
		v.Choices = append(v.Choices, c)
	}
	return v
}
