package app

import (
	"fmt"
	"math/rand/v2"
	"unicode"

	"song-quiz-service/internal/domain"
)

// Lifeline is a one-per-session helper the player may spend while answering.
type Lifeline string

const (
	LifelineRevealLetter  Lifeline = "reveal_letter"
	LifelineNarrowChoices Lifeline = "narrow_choices"
	LifelineSwapSong      Lifeline = "swap_song"
)

var allLifelines = []Lifeline{LifelineRevealLetter, LifelineNarrowChoices, LifelineSwapSong}

func ParseLifeline(raw string) (Lifeline, error) {
	for _, l := range allLifelines {
		if string(l) == raw {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", domain.ErrLifelineUnavailable, raw)
}

// firstLetter returns the first letter or digit of the title.
func firstLetter(title string) (string, bool) {
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return string(unicode.ToUpper(r)), true
		}
	}
	return "", false
}

// wrongChoices returns the ids of the visible options that would earn nothing.
func wrongChoices(q domain.Question, removed map[string]struct{}) []string {
	var ids []string
	if trivia, ok := q.Special.(domain.Trivia); ok {
		for _, c := range trivia.Choices {
			if _, gone := removed[c.ID]; gone || c.ID == trivia.AnswerID {
				continue
			}
			ids = append(ids, c.ID)
		}
		return ids
	}
	if q.Binary() {
		return nil
	}
	for _, c := range q.Choices {
		if _, gone := removed[c.ID]; gone {
			continue
		}
		if sameText(c.Artist, q.Song.Artist) && sameText(c.Title, q.Song.Title) {
			continue
		}
		ids = append(ids, c.ID)
	}
	return ids
}

// narrow picks half of the wrong options, rounded down, to hide.
func narrow(wrong []string, rng *rand.Rand) []string {
	n := len(wrong) / 2
	if n == 0 {
		return nil
	}
	picked := make([]string, 0, n)
	for _, i := range rng.Perm(len(wrong))[:n] {
		picked = append(picked, wrong[i])
	}
	return picked
}
