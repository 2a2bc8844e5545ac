package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Song is a single track a question is built around.
type Song struct {
	ID         string `json:"id"`
	Artist     string `json:"artist"`
	Title      string `json:"title"`
	AlbumArt   string `json:"albumArt,omitempty"`
	PreviewURL string `json:"previewUrl,omitempty"`
}

// Choice is one multiple-choice option ("Artist - Title").
type Choice struct {
	ID     string `json:"id"`
	Artist string `json:"artist"`
	Title  string `json:"title"`
}

// SpecialKind tags the special question variants.
type SpecialKind string

const (
	SpecialNone   SpecialKind = "none"
	SpecialTrivia SpecialKind = "trivia"
	SpecialLyric  SpecialKind = "lyric"
	SpecialTempo  SpecialKind = "tempo"
)

// Special is the closed set of special question payloads. A nil Special is a
// regular artist/title question. Variants are held as values; grading and
// lifelines match on the value types only.
type Special interface {
	Kind() SpecialKind
	special()
}

// Trivia asks a question about the song with its own answer options.
type Trivia struct {
	Prompt   string   `json:"prompt"`
	Choices  []Choice `json:"choices"`
	AnswerID string   `json:"answerId"`
}

// Lyric asks the player to finish a line of the song.
type Lyric struct {
	Line   string `json:"line"`
	Answer string `json:"answer"`
}

// Tempo plays the clip at an altered rate; credit is still split by artist/title.
type Tempo struct {
	Rate float64 `json:"rate"`
}

func (Trivia) Kind() SpecialKind { return SpecialTrivia }
func (Lyric) Kind() SpecialKind  { return SpecialLyric }
func (Tempo) Kind() SpecialKind  { return SpecialTempo }

func (Trivia) special() {}
func (Lyric) special()  {}
func (Tempo) special()  {}

// Question models one round of a session.
type Question struct {
	ID      string
	Song    Song
	Choices []Choice
	Special Special
}

// SpecialKind returns the question's special kind, or SpecialNone.
func (q Question) SpecialKind() SpecialKind {
	if q.Special == nil {
		return SpecialNone
	}
	return q.Special.Kind()
}

// IsSpecial reports whether the question is worth special points.
func (q Question) IsSpecial() bool {
	return q.Special != nil
}

// Binary reports whether the question is scored correct/incorrect instead of
// split artist/title credit.
func (q Question) Binary() bool {
	switch q.Special.(type) {
	case Trivia, Lyric:
		return true
	}
	return false
}

type questionWire struct {
	ID      string          `json:"id"`
	Song    Song            `json:"song"`
	Choices []Choice        `json:"choices,omitempty"`
	Kind    SpecialKind     `json:"kind,omitempty"`
	Special json.RawMessage `json:"special,omitempty"`
}

// MarshalJSON flattens the special variant into a kind tag plus payload.
func (q Question) MarshalJSON() ([]byte, error) {
	w := questionWire{ID: q.ID, Song: q.Song, Choices: q.Choices, Kind: q.SpecialKind()}
	if q.Special != nil {
		raw, err := json.Marshal(q.Special)
		if err != nil {
			return nil, err
		}
		w.Special = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON restores the special variant from its kind tag.
func (q *Question) UnmarshalJSON(data []byte) error {
	var w questionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	q.ID, q.Song, q.Choices, q.Special = w.ID, w.Song, w.Choices, nil

	var target Special
	switch w.Kind {
	case "", SpecialNone:
		return nil
	case SpecialTrivia:
		var t Trivia
		if err := json.Unmarshal(w.Special, &t); err != nil {
			return fmt.Errorf("trivia payload: %w", err)
		}
		target = t
	case SpecialLyric:
		var l Lyric
		if err := json.Unmarshal(w.Special, &l); err != nil {
			return fmt.Errorf("lyric payload: %w", err)
		}
		target = l
	case SpecialTempo:
		var t Tempo
		if err := json.Unmarshal(w.Special, &t); err != nil {
			return fmt.Errorf("tempo payload: %w", err)
		}
		target = t
	default:
		return fmt.Errorf("unknown special kind %q", w.Kind)
	}
	q.Special = target
	return nil
}

// Playlist is a named song collection and its question pool.
type Playlist struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

// GameMode is the closed set of ways a session can be played.
type GameMode string

const (
	ModeStandard GameMode = "standard"
	ModeManual   GameMode = "manual"
	ModeRapid    GameMode = "rapid"
)

// ParseMode validates a mode string; empty means standard.
func ParseMode(raw string) (GameMode, error) {
	switch GameMode(raw) {
	case "":
		return ModeStandard, nil
	case ModeStandard, ModeManual, ModeRapid:
		return GameMode(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, raw)
}

// AnswerSubmission is the player's signal for the current question. Exactly
// one of OptionID, Text, or the explicit flags is expected to be meaningful.
type AnswerSubmission struct {
	QuestionID    string `json:"questionId"`
	OptionID      string `json:"optionId,omitempty"`
	Text          string `json:"text,omitempty"`
	ArtistCorrect bool   `json:"artistCorrect,omitempty"`
	SongCorrect   bool   `json:"songCorrect,omitempty"`
	Correct       bool   `json:"correct,omitempty"`
}

// Progress is the persisted {level, experience} record.
type Progress struct {
	Level      int `json:"level"`
	Experience int `json:"experience"`
}

// PlayerProgress is the global progress for one installation/profile.
type PlayerProgress = Progress

// PlaylistProgress is progress on a single playlist.
type PlaylistProgress struct {
	PlaylistID string `json:"playlistId"`
	Progress
}

// SessionAttempt records how one question went.
type SessionAttempt struct {
	QuestionIndex   int         `json:"questionIndex"`
	QuestionID      string      `json:"questionId"`
	SongID          string      `json:"songId"`
	PointsEarned    int         `json:"pointsEarned"`
	ArtistCorrect   bool        `json:"artistCorrect"`
	SongCorrect     bool        `json:"songCorrect"`
	IsSpecial       bool        `json:"isSpecialQuestion"`
	SpecialKind     SpecialKind `json:"specialKind"`
	TimedOut        bool        `json:"timedOut,omitempty"`
	FirstCompletion bool        `json:"firstCompletion,omitempty"`
}

// StreakState is the consecutive-scoring counter and its multiplier tier.
type StreakState struct {
	Count      int `json:"count"`
	Multiplier int `json:"multiplier"`
}

// LevelUpEvent is one level boundary crossed by a single award.
type LevelUpEvent struct {
	FromLevel          int `json:"fromLevel"`
	ToLevel            int `json:"toLevel"`
	OverflowExperience int `json:"overflowExperience"`
	// Required is the requirement of FromLevel, the "full bar" value.
	Required int `json:"required"`
}

// CompletedSong is a song listed in a playlist's stats.
type CompletedSong struct {
	ID       string `json:"id"`
	Artist   string `json:"artist"`
	Song     string `json:"song"`
	AlbumArt string `json:"albumArt"`
}

// PlaylistStats aggregates completed sessions of one playlist.
type PlaylistStats struct {
	TimesPlayed    int             `json:"timesPlayed"`
	TotalScoreSum  int             `json:"totalScoreSum"`
	HighestScore   int             `json:"highestScore"`
	CompletedSongs []CompletedSong `json:"completedSongs"`
}

// AverageScore is derived from the sum and count.
func (s PlaylistStats) AverageScore() int {
	if s.TimesPlayed == 0 {
		return 0
	}
	return s.TotalScoreSum / s.TimesPlayed
}

type playlistStatsWire struct {
	TimesPlayed    int             `json:"timesPlayed"`
	TotalScoreSum  int             `json:"totalScoreSum"`
	AverageScore   int             `json:"averageScore"`
	HighestScore   int             `json:"highestScore"`
	CompletedSongs []CompletedSong `json:"completedSongs"`
}

// MarshalJSON writes averageScore computed from the other fields.
func (s PlaylistStats) MarshalJSON() ([]byte, error) {
	songs := s.CompletedSongs
	if songs == nil {
		songs = []CompletedSong{}
	}
	return json.Marshal(playlistStatsWire{
		TimesPlayed:    s.TimesPlayed,
		TotalScoreSum:  s.TotalScoreSum,
		AverageScore:   s.AverageScore(),
		HighestScore:   s.HighestScore,
		CompletedSongs: songs,
	})
}

// UnmarshalJSON ignores the stored averageScore.
func (s *PlaylistStats) UnmarshalJSON(data []byte) error {
	var w playlistStatsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = PlaylistStats{
		TimesPlayed:    w.TimesPlayed,
		TotalScoreSum:  w.TotalScoreSum,
		HighestScore:   w.HighestScore,
		CompletedSongs: w.CompletedSongs,
	}
	return nil
}

// Profile holds the player's chosen display name and commentary persona.
type Profile struct {
	DisplayName string `json:"displayName"`
	Persona     string `json:"persona"`
}

// SessionSummary is what a completed session committed.
type SessionSummary struct {
	SessionID        string           `json:"sessionId"`
	PlaylistID       string           `json:"playlistId"`
	TotalPoints      int              `json:"totalPoints"`
	Player           Progress         `json:"player"`
	Playlist         Progress         `json:"playlist"`
	PlayerLevelUps   []LevelUpEvent   `json:"playerLevelUps"`
	PlaylistLevelUps []LevelUpEvent   `json:"playlistLevelUps"`
	Attempts         []SessionAttempt `json:"attempts"`
	CompletedAt      time.Time        `json:"completedAt"`
}
