// Package commentary produces the host's short spoken lines for each game
// moment. Generation is best effort: every caller gets a line, falling back
// to canned text when the provider is missing, slow, or failing.
package commentary

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Moment tags when a line is spoken.
type Moment string

const (
	MomentQuestionStart  Moment = "question_start"
	MomentAnswer         Moment = "answer"
	MomentSessionSummary Moment = "session_summary"
)

// Context is what the host knows when speaking.
type Context struct {
	Moment        Moment `json:"moment"`
	Persona       string `json:"persona,omitempty"`
	PlayerName    string `json:"playerName,omitempty"`
	PlaylistName  string `json:"playlistName,omitempty"`
	QuestionIndex int    `json:"questionIndex"`
	QuestionCount int    `json:"questionCount"`
	Artist        string `json:"artist,omitempty"`
	Title         string `json:"title,omitempty"`
	// Outcome is "full", "partial" or "none" for answers.
	Outcome  string `json:"outcome,omitempty"`
	TimedOut bool   `json:"timedOut,omitempty"`
	Points   int    `json:"points"`
	Total    int    `json:"total"`
	Streak   int    `json:"streak"`
	LevelUps int    `json:"levelUps,omitempty"`
}

// Generator produces one line for c.
type Generator interface {
	Generate(ctx context.Context, c Context) (string, error)
}

// Narrator wraps an optional Generator with a deadline and a fallback.
type Narrator struct {
	gen     Generator
	timeout time.Duration
}

// NewNarrator returns a narrator. A nil gen always uses the fallback lines.
func NewNarrator(gen Generator, timeout time.Duration) *Narrator {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &Narrator{gen: gen, timeout: timeout}
}

// Line returns a line for c and whether it came from the fallback.
func (n *Narrator) Line(ctx context.Context, c Context) (string, bool) {
	if n == nil || n.gen == nil {
		return Fallback(c), true
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	line, err := n.gen.Generate(ctx, c)
	if err != nil {
		slog.Warn("commentary provider failed, using fallback", "moment", c.Moment, "error", err)
		return Fallback(c), true
	}
	if line == "" {
		return Fallback(c), true
	}
	return line, false
}

// Fallback returns a deterministic line for c.
func Fallback(c Context) string {
	name := c.PlayerName
	if name == "" {
		name = "friend"
	}
	switch c.Moment {
	case MomentQuestionStart:
		if c.QuestionIndex == 0 {
			return fmt.Sprintf("Welcome, %s! Let's get this started.", name)
		}
		if c.QuestionCount > 0 && c.QuestionIndex == c.QuestionCount-1 {
			return "Last one. Make it count!"
		}
		return fmt.Sprintf("Question %d. Listen closely.", c.QuestionIndex+1)
	case MomentAnswer:
		if c.TimedOut {
			return "Time's up! That one got away."
		}
		switch c.Outcome {
		case "full":
			if c.Streak >= 3 {
				return fmt.Sprintf("That's %d in a row! You're on fire.", c.Streak)
			}
			return fmt.Sprintf("Spot on! %d points.", c.Points)
		case "partial":
			return fmt.Sprintf("Half right, still worth %d points.", c.Points)
		}
		if c.Artist != "" && c.Title != "" {
			return fmt.Sprintf("Not quite. That was %s by %s.", c.Title, c.Artist)
		}
		return "Not quite. On to the next one."
	case MomentSessionSummary:
		if c.LevelUps > 0 {
			return fmt.Sprintf("%d points and a level up. Nicely done, %s!", c.Total, name)
		}
		return fmt.Sprintf("That's a wrap: %d points. Thanks for playing, %s!", c.Total, name)
	}
	return "Let's keep the music going."
}
