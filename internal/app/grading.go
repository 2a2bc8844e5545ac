package app

import (
	"strings"

	"song-quiz-service/internal/domain"
	"song-quiz-service/internal/progression"
)

type grade struct {
	outcome       progression.Outcome
	artistCorrect bool
	songCorrect   bool
}

// gradeSubmission checks an answer against the question. Multiple-choice
// answers carry an option id, lyric answers carry text, and host-graded
// (manual) answers carry the correctness flags directly.
func gradeSubmission(mode domain.GameMode, q domain.Question, sub domain.AnswerSubmission) (grade, error) {
	switch special := q.Special.(type) {
	case domain.Trivia:
		return gradeTrivia(mode, special, sub)
	case domain.Lyric:
		if sub.Text != "" {
			return binary(sameText(sub.Text, special.Answer)), nil
		}
		if mode == domain.ModeManual {
			return binary(sub.Correct), nil
		}
		return binary(false), nil
	}

	switch {
	case sub.OptionID != "":
		choice, ok := findChoice(q.Choices, sub.OptionID)
		if !ok {
			return grade{}, domain.ErrOptionNotFound
		}
		return split(sameText(choice.Artist, q.Song.Artist), sameText(choice.Title, q.Song.Title)), nil
	case sub.Text != "":
		return gradeText(q.Song, sub.Text), nil
	case mode == domain.ModeManual:
		return split(sub.ArtistCorrect, sub.SongCorrect), nil
	}
	return grade{}, domain.ErrOptionNotFound
}

func gradeTrivia(mode domain.GameMode, t domain.Trivia, sub domain.AnswerSubmission) (grade, error) {
	if sub.OptionID != "" {
		if _, ok := findChoice(t.Choices, sub.OptionID); !ok {
			return grade{}, domain.ErrOptionNotFound
		}
		return binary(sub.OptionID == t.AnswerID), nil
	}
	if mode == domain.ModeManual {
		return binary(sub.Correct), nil
	}
	return grade{}, domain.ErrOptionNotFound
}

// gradeText accepts "Artist - Title", a bare title, or a bare artist.
func gradeText(song domain.Song, text string) grade {
	if artist, title, ok := strings.Cut(text, " - "); ok {
		return split(sameText(artist, song.Artist), sameText(title, song.Title))
	}
	return split(sameText(text, song.Artist), sameText(text, song.Title))
}

func binary(correct bool) grade {
	return grade{
		outcome:       progression.BinaryOutcome(correct),
		artistCorrect: correct,
		songCorrect:   correct,
	}
}

func split(artist, song bool) grade {
	return grade{
		outcome:       progression.OutcomeFor(artist, song),
		artistCorrect: artist,
		songCorrect:   song,
	}
}

func findChoice(choices []domain.Choice, id string) (domain.Choice, bool) {
	for _, c := range choices {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Choice{}, false
}

// sameText compares case-insensitively, ignoring surrounding and repeated whitespace.
func sameText(a, b string) bool {
	a = strings.Join(strings.Fields(a), " ")
	b = strings.Join(strings.Fields(b), " ")
	return a != "" && strings.EqualFold(a, b)
}
