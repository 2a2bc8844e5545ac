package app

import (
	"errors"
	"testing"

	"song-quiz-service/internal/domain"
	"song-quiz-service/internal/progression"
)

func TestGradeSubmission(t *testing.T) {
	song := domain.Song{ID: "s1", Artist: "Blur", Title: "Song 2"}
	regular := domain.Question{
		ID:   "q1",
		Song: song,
		Choices: []domain.Choice{
			{ID: "a", Artist: "blur", Title: "song  2"},
			{ID: "b", Artist: "Blur", Title: "Parklife"},
			{ID: "c", Artist: "Oasis", Title: "Wonderwall"},
		},
	}
	trivia := domain.Question{
		ID:   "q2",
		Song: song,
		Special: domain.Trivia{
			Prompt:   "Which album?",
			AnswerID: "x",
			Choices:  []domain.Choice{{ID: "x", Title: "Blur"}, {ID: "y", Title: "Leisure"}},
		},
	}
	lyric := domain.Question{ID: "q3", Song: song, Special: domain.Lyric{Line: "Woo-", Answer: "hoo"}}
	tempo := domain.Question{ID: "q4", Song: song, Choices: regular.Choices, Special: domain.Tempo{Rate: 0.5}}

	tests := []struct {
		name    string
		mode    domain.GameMode
		q       domain.Question
		sub     domain.AnswerSubmission
		want    progression.Outcome
		wantErr error
	}{
		{name: "option ignores case and spacing", mode: domain.ModeStandard, q: regular, sub: domain.AnswerSubmission{OptionID: "a"}, want: progression.OutcomeFull},
		{name: "right artist wrong title", mode: domain.ModeStandard, q: regular, sub: domain.AnswerSubmission{OptionID: "b"}, want: progression.OutcomePartial},
		{name: "wrong option", mode: domain.ModeRapid, q: regular, sub: domain.AnswerSubmission{OptionID: "c"}, want: progression.OutcomeNone},
		{name: "unknown option", mode: domain.ModeStandard, q: regular, sub: domain.AnswerSubmission{OptionID: "z"}, wantErr: domain.ErrOptionNotFound},
		{name: "typed artist and title", mode: domain.ModeStandard, q: regular, sub: domain.AnswerSubmission{Text: "BLUR - Song 2"}, want: progression.OutcomeFull},
		{name: "typed title only", mode: domain.ModeStandard, q: regular, sub: domain.AnswerSubmission{Text: "song 2"}, want: progression.OutcomePartial},
		{name: "flags honoured in manual mode", mode: domain.ModeManual, q: regular, sub: domain.AnswerSubmission{ArtistCorrect: true}, want: progression.OutcomePartial},
		{name: "flags rejected in standard mode", mode: domain.ModeStandard, q: regular, sub: domain.AnswerSubmission{ArtistCorrect: true, SongCorrect: true}, wantErr: domain.ErrOptionNotFound},
		{name: "trivia right", mode: domain.ModeStandard, q: trivia, sub: domain.AnswerSubmission{OptionID: "x"}, want: progression.OutcomeFull},
		{name: "trivia wrong", mode: domain.ModeStandard, q: trivia, sub: domain.AnswerSubmission{OptionID: "y"}, want: progression.OutcomeNone},
		{name: "trivia unknown option", mode: domain.ModeStandard, q: trivia, sub: domain.AnswerSubmission{OptionID: "a"}, wantErr: domain.ErrOptionNotFound},
		{name: "trivia host graded", mode: domain.ModeManual, q: trivia, sub: domain.AnswerSubmission{Correct: true}, want: progression.OutcomeFull},
		{name: "lyric typed", mode: domain.ModeStandard, q: lyric, sub: domain.AnswerSubmission{Text: " Hoo "}, want: progression.OutcomeFull},
		{name: "lyric wrong", mode: domain.ModeStandard, q: lyric, sub: domain.AnswerSubmission{Text: "haa"}, want: progression.OutcomeNone},
		{name: "lyric flag needs manual mode", mode: domain.ModeStandard, q: lyric, sub: domain.AnswerSubmission{Correct: true}, want: progression.OutcomeNone},
		{name: "tempo keeps split credit", mode: domain.ModeStandard, q: tempo, sub: domain.AnswerSubmission{OptionID: "b"}, want: progression.OutcomePartial},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := gradeSubmission(tc.mode, tc.q, tc.sub)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("grade: %v", err)
			}
			if got.outcome != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got.outcome)
			}
		})
	}
}

func TestWrongChoicesAndNarrow(t *testing.T) {
	q := domain.Question{
		Song: domain.Song{Artist: "Blur", Title: "Song 2"},
		Choices: []domain.Choice{
			{ID: "a", Artist: "Blur", Title: "Song 2"},
			{ID: "b", Artist: "Blur", Title: "Parklife"},
			{ID: "c", Artist: "Oasis", Title: "Wonderwall"},
		},
	}
	wrong := wrongChoices(q, map[string]struct{}{"c": {}})
	if len(wrong) != 1 || wrong[0] != "b" {
		t.Fatalf("expected only b left to remove, got %v", wrong)
	}
	if got := narrow(wrong, nil); got != nil {
		t.Fatalf("one wrong option is not enough to narrow, got %v", got)
	}
	if letter, ok := firstLetter("  '99 Problems"); !ok || letter != "9" {
		t.Fatalf("expected 9, got %q", letter)
	}
}

func TestBinaryMatchesGrading(t *testing.T) {
	song := domain.Song{ID: "s1", Artist: "Blur", Title: "Song 2"}
	choices := []domain.Choice{
		{ID: "a", Artist: "Blur", Title: "Song 2"},
		{ID: "b", Artist: "Blur", Title: "Parklife"},
		{ID: "c", Artist: "Oasis", Title: "Wonderwall"},
	}
	trivia := domain.Trivia{AnswerID: "x", Choices: []domain.Choice{{ID: "x", Title: "Blur"}, {ID: "y", Title: "Leisure"}}}

	// A pointer variant is outside the closed set; it must be neither
	// reported binary nor graded binary.
	ptr := domain.Question{ID: "q1", Song: song, Choices: choices, Special: &trivia}
	if ptr.Binary() {
		t.Fatalf("pointer trivia must not be reported binary")
	}
	got, err := gradeSubmission(domain.ModeStandard, ptr, domain.AnswerSubmission{OptionID: "b"})
	if err != nil || got.outcome != progression.OutcomePartial {
		t.Fatalf("expected split credit for pointer trivia, got %s (%v)", got.outcome, err)
	}
	if wrong := wrongChoices(ptr, nil); len(wrong) != 2 {
		t.Fatalf("expected regular wrong choices, got %v", wrong)
	}

	value := domain.Question{ID: "q2", Song: song, Special: trivia}
	if !value.Binary() {
		t.Fatalf("trivia must be binary")
	}
	got, err = gradeSubmission(domain.ModeStandard, value, domain.AnswerSubmission{OptionID: "y"})
	if err != nil || got.outcome != progression.OutcomeNone || got.artistCorrect != got.songCorrect {
		t.Fatalf("expected binary miss for trivia, got %+v (%v)", got, err)
	}
}
