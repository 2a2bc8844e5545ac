package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"song-quiz-service/internal/clock"
	"song-quiz-service/internal/commentary"
	"song-quiz-service/internal/domain"
	"song-quiz-service/internal/observe"
	"song-quiz-service/internal/progress"
	"song-quiz-service/internal/progression"
	"song-quiz-service/internal/sequencer"
	"song-quiz-service/internal/speech"
)

// SessionRepository abstracts where live game sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	Add(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
}

// PlaylistRepository loads playlist content (from cache/backing store).
type PlaylistRepository interface {
	GetPlaylist(ctx context.Context, playlistID string) (domain.Playlist, error)
}

// Settings are the tunables of a game.
type Settings struct {
	QuestionCount  int
	Countdown      time.Duration
	RapidCountdown time.Duration
	PlayerCurve    progression.Curve
	PlaylistCurve  progression.Curve
	Thresholds     progression.StreakThresholds
	StreakBonus    int
	Timings        sequencer.Timings
}

// DefaultSettings returns the stock game tuning.
func DefaultSettings() Settings {
	return Settings{
		QuestionCount:  5,
		Countdown:      20 * time.Second,
		RapidCountdown: 8 * time.Second,
		PlayerCurve:    progression.PlayerCurve,
		PlaylistCurve:  progression.PlaylistCurve,
		Thresholds:     progression.DefaultThresholds,
		StreakBonus:    5,
		Timings:        sequencer.DefaultTimings,
	}
}

// StartRequest describes a new session.
type StartRequest struct {
	PlaylistID string
	ProfileID  string
	Mode       domain.GameMode
	Lifelines  bool
	// Floor is the playlist level assumed for a playlist never played before.
	Floor int
}

// Option customises a GameService.
type Option func(*GameService)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(g *GameService) { g.clock = c }
}

// WithNarrator sets the commentary source.
func WithNarrator(n *commentary.Narrator) Option {
	return func(g *GameService) { g.narrator = n }
}

// WithSynthesizer voices commentary lines.
func WithSynthesizer(s speech.Synthesizer) Option {
	return func(g *GameService) { g.voice = s }
}

// WithMetrics records into m instead of the global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *GameService) { g.metrics = m }
}

// WithIDs replaces the session id generator.
func WithIDs(next func() string) Option {
	return func(g *GameService) { g.newID = next }
}

// GameService contains the game use cases.
type GameService struct {
	sessions  SessionRepository
	playlists PlaylistRepository
	progress  *progress.Store
	settings  Settings

	clock    clock.Clock
	narrator *commentary.Narrator
	voice    speech.Synthesizer
	metrics  *observe.Metrics
	newID    func() string

	// background tracks commentary goroutines.
	background sync.WaitGroup
}

func NewGameService(sessions SessionRepository, playlists PlaylistRepository, store *progress.Store, settings Settings, opts ...Option) *GameService {
	g := &GameService{
		sessions:  sessions,
		playlists: playlists,
		progress:  store,
		settings:  settings,
		clock:     clock.Real{},
		narrator:  commentary.NewNarrator(nil, 0),
		voice:     speech.Silent{},
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	return g
}

// StartSession loads the playlist and begins its first question.
func (g *GameService) StartSession(ctx context.Context, req StartRequest) (*Session, error) {
	if req.Mode == "" {
		req.Mode = domain.ModeStandard
	}
	if _, err := domain.ParseMode(string(req.Mode)); err != nil {
		return nil, err
	}
	playlist, err := g.playlists.GetPlaylist(ctx, req.PlaylistID)
	if err != nil {
		return nil, err
	}
	if len(playlist.Questions) == 0 {
		return nil, domain.ErrEmptyPlaylist
	}

	repo := g.progress.For(req.ProfileID)
	completed, err := repo.CompletedSongs(ctx)
	if err != nil {
		g.persistenceError(ctx, "read_completed_songs", err)
	}
	profile, err := repo.LoadProfile(ctx)
	if err != nil {
		g.persistenceError(ctx, "read_profile", err)
	}

	count := g.settings.QuestionCount
	if count <= 0 || count > len(playlist.Questions) {
		count = len(playlist.Questions)
	}
	budget := g.settings.Countdown
	if req.Mode == domain.ModeRapid {
		budget = g.settings.RapidCountdown
	}

	now := g.clock.Now()
	s := &Session{
		id:          g.newID(),
		game:        g,
		playlist:    playlist,
		profileID:   repo.ProfileID(),
		profile:     profile,
		mode:        req.Mode,
		floor:       g.clampFloor(req.Floor),
		budget:      budget,
		createdAt:   now,
		countdown:   sequencer.NewCountdown(g.clock),
		state:       sequencer.Idle{},
		questions:   append([]domain.Question(nil), playlist.Questions[:count]...),
		reserve:     append([]domain.Question(nil), playlist.Questions[count:]...),
		streak:      progression.NewStreak(g.settings.Thresholds),
		policy:      progression.PolicyFor(req.Mode, g.settings.StreakBonus),
		completed:   completed,
		rng:         rand.New(rand.NewPCG(uint64(now.UnixNano()), uint64(len(playlist.Questions)))),
		subscribers: make(map[chan Update]struct{}),
	}
	if req.Lifelines {
		s.lifelines = make(map[Lifeline]bool, len(allLifelines))
		for _, l := range allLifelines {
			s.lifelines[l] = false
		}
	}
	s.driver = sequencer.NewDriver(g.clock, g.settings.Timings, s.onTransition)

	g.sessions.Add(s)
	g.metrics.SessionsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", string(s.mode))))
	g.metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("session started",
		"session", s.id, "playlist", playlist.ID, "profile", s.profileID,
		"mode", s.mode, "questions", count, "lifelines", req.Lifelines)

	s.begin(0)
	return s, nil
}

// clampFloor keeps the starting playlist level inside the ladder.
func (g *GameService) clampFloor(floor int) int {
	if floor < progress.DefaultFloor {
		floor = progress.DefaultFloor
	}
	if limit := g.settings.PlaylistCurve.Cap(); limit > 0 && floor > limit {
		floor = limit
	}
	return floor
}

// Session returns a live session.
func (g *GameService) Session(sessionID string) (*Session, error) {
	s, ok := g.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// SubmitAnswer grades and scores an answer to the current question.
func (g *GameService) SubmitAnswer(_ context.Context, sessionID string, sub domain.AnswerSubmission) (RoundResult, error) {
	s, err := g.Session(sessionID)
	if err != nil {
		return RoundResult{}, err
	}
	return s.settle(-1, &sub)
}

// UseLifeline spends a lifeline on the current question.
func (g *GameService) UseLifeline(_ context.Context, sessionID string, l Lifeline) (LifelineResult, error) {
	s, err := g.Session(sessionID)
	if err != nil {
		return LifelineResult{}, err
	}
	return s.useLifeline(l)
}

// Acknowledge closes the level-up modal on screen.
func (g *GameService) Acknowledge(_ context.Context, sessionID string) error {
	return g.dispatch(sessionID, sequencer.Acknowledge{})
}

// Dismiss closes the results list, which ends the session.
func (g *GameService) Dismiss(_ context.Context, sessionID string) error {
	return g.dispatch(sessionID, sequencer.Dismiss{})
}

// Skip settles the current animation early.
func (g *GameService) Skip(_ context.Context, sessionID string) error {
	s, err := g.Session(sessionID)
	if err != nil {
		return err
	}
	return s.driver.Skip()
}

func (g *GameService) dispatch(sessionID string, e sequencer.Event) error {
	s, err := g.Session(sessionID)
	if err != nil {
		return err
	}
	if err := s.driver.Dispatch(e); err != nil {
		if errors.Is(err, sequencer.ErrStopped) {
			return domain.ErrSessionNotFound
		}
		return err
	}
	return nil
}

// Abandon drops a session without committing anything.
func (g *GameService) Abandon(ctx context.Context, sessionID string) error {
	s, err := g.Session(sessionID)
	if err != nil {
		return err
	}
	committed, ok := s.end(true)
	if !ok {
		return domain.ErrSessionNotFound
	}
	g.sessions.Delete(s.id)
	g.metrics.ActiveSessions.Add(ctx, -1)
	if !committed {
		g.metrics.SessionsAbandoned.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", string(s.mode))))
	}
	slog.Info("session abandoned", "session", s.id, "committed", committed)
	return nil
}

// Subscribe returns a channel that receives updates for a session.
// The caller must invoke the returned cancel function to avoid leaks.
func (g *GameService) Subscribe(_ context.Context, sessionID string) (<-chan Update, func(), error) {
	s, err := g.Session(sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.subscribe()
	return ch, cancel, nil
}

// Wait blocks until in-flight commentary has been delivered.
func (g *GameService) Wait() {
	g.background.Wait()
}

// finish ends a session whose results were dismissed.
func (g *GameService) finish(s *Session) {
	if _, ok := s.end(false); !ok {
		return
	}
	g.sessions.Delete(s.id)
	g.metrics.ActiveSessions.Add(context.Background(), -1)
	slog.Info("session finished", "session", s.id)
}

// complete commits the session exactly once and hands the player award to
// the sequencer for the XP disclosure.
func (g *GameService) complete(s *Session, total int) {
	s.mu.Lock()
	if s.committed || s.ended {
		s.mu.Unlock()
		return
	}
	s.committed = true
	attempts := append([]domain.SessionAttempt(nil), s.attempts...)
	songs := append([]domain.CompletedSong(nil), s.credited...)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	summary, start, award := g.commit(ctx, s, total, attempts, songs)

	s.mu.Lock()
	s.summary = &summary
	s.broadcastLocked(Update{Type: UpdateSummary, Payload: summary})
	s.mu.Unlock()

	g.metrics.SessionsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", string(s.mode))))
	g.metrics.PointsAwarded.Add(ctx, int64(total))
	if n := len(summary.PlayerLevelUps); n > 0 {
		g.metrics.LevelUps.Add(ctx, int64(n), metric.WithAttributes(attribute.String("ladder", "player")))
	}
	if n := len(summary.PlaylistLevelUps); n > 0 {
		g.metrics.LevelUps.Add(ctx, int64(n), metric.WithAttributes(attribute.String("ladder", "playlist")))
	}

	line := s.questionContext(commentary.MomentSessionSummary)
	line.Total = total
	line.LevelUps = len(summary.PlayerLevelUps)
	g.narrate(s, line)

	if err := s.driver.Dispatch(sequencer.AwardApplied{
		StartLevel:      start.Level,
		StartExperience: start.Experience,
		Award:           award,
		Attempts:        attempts,
	}); err != nil {
		slog.Warn("award rejected by sequencer", "session", s.id, "error", err)
	}
}

// commit applies the session total to both ladders and writes every record.
// Write failures are logged and the in-memory result is still shown.
func (g *GameService) commit(ctx context.Context, s *Session, total int, attempts []domain.SessionAttempt, songs []domain.CompletedSong) (domain.SessionSummary, domain.Progress, progression.Award) {
	repo := g.progress.For(s.profileID)

	var playerAward progression.Award
	player, playerAfter, err := repo.UpdatePlayerProgress(ctx, func(p domain.Progress) domain.Progress {
		playerAward = progression.ApplyAward(p.Level, p.Experience, total, g.settings.PlayerCurve)
		return domain.Progress{Level: playerAward.FinalLevel, Experience: playerAward.FinalExperience}
	})
	if err != nil {
		// Nothing was written; show the award against the starting record.
		g.persistenceError(ctx, "update_player_progress", err)
		playerAward = progression.ApplyAward(player.Level, player.Experience, total, g.settings.PlayerCurve)
		playerAfter = domain.Progress{Level: playerAward.FinalLevel, Experience: playerAward.FinalExperience}
	}

	var playlistAward progression.Award
	playlist, playlistAfter, err := repo.UpdatePlaylistProgress(ctx, s.playlist.ID, s.floor, func(p domain.Progress) domain.Progress {
		playlistAward = progression.ApplyAward(p.Level, p.Experience, total, g.settings.PlaylistCurve)
		return domain.Progress{Level: playlistAward.FinalLevel, Experience: playlistAward.FinalExperience}
	})
	if err != nil {
		g.persistenceError(ctx, "update_playlist_progress", err)
		playlistAward = progression.ApplyAward(playlist.Level, playlist.Experience, total, g.settings.PlaylistCurve)
		playlistAfter = domain.Progress{Level: playlistAward.FinalLevel, Experience: playlistAward.FinalExperience}
	}

	ids := make([]string, 0, len(songs))
	for _, song := range songs {
		ids = append(ids, song.ID)
	}
	if _, err := repo.AddCompletedSongs(ctx, ids...); err != nil {
		g.persistenceError(ctx, "write_completed_songs", err)
	}
	if _, err := repo.RecordSession(ctx, s.playlist.ID, total, songs); err != nil {
		g.persistenceError(ctx, "write_playlist_stats", err)
	}

	summary := domain.SessionSummary{
		SessionID:        s.id,
		PlaylistID:       s.playlist.ID,
		TotalPoints:      total,
		Player:           playerAfter,
		Playlist:         playlistAfter,
		PlayerLevelUps:   nonNil(playerAward.Events),
		PlaylistLevelUps: nonNil(playlistAward.Events),
		Attempts:         attempts,
		CompletedAt:      g.clock.Now(),
	}
	slog.Info("session committed",
		"session", s.id, "profile", s.profileID, "playlist", s.playlist.ID, "total", total,
		"player_level", playerAfter.Level, "playlist_level", playlistAfter.Level)
	return summary, player, playerAward
}

func nonNil(events []domain.LevelUpEvent) []domain.LevelUpEvent {
	if events == nil {
		return []domain.LevelUpEvent{}
	}
	return events
}

// narrate produces a commentary line in the background and pushes it to
// the session's subscribers.
func (g *GameService) narrate(s *Session, c commentary.Context) {
	g.background.Add(1)
	go func() {
		defer g.background.Done()
		ctx := context.Background()

		started := time.Now()
		text, fallback := g.narrator.Line(ctx, c)
		g.metrics.ProviderDuration.Record(ctx, time.Since(started).Seconds(),
			metric.WithAttributes(attribute.String("provider", "commentary")))
		if fallback {
			g.metrics.CommentaryFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("moment", string(c.Moment))))
		}

		line := CommentaryLine{Moment: c.Moment, Text: text, Fallback: fallback}
		audio, err := g.voice.Synthesize(ctx, text, "")
		switch {
		case err != nil:
			slog.Warn("speech synthesis failed", "session", s.id, "error", err)
		case !audio.Empty():
			line.Audio = &audio
		}
		s.broadcast(Update{Type: UpdateCommentary, Payload: line})
	}()
}

func (g *GameService) persistenceError(ctx context.Context, op string, err error) {
	g.metrics.PersistenceErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	slog.Error("progress persistence failed", "op", op, "error", err)
}

// ProgressReport is everything persisted for a profile.
type ProgressReport struct {
	Profile        string                `json:"profile"`
	DisplayName    string                `json:"displayName,omitempty"`
	Persona        string                `json:"persona,omitempty"`
	Player         LadderView            `json:"player"`
	Playlists      map[string]LadderView `json:"playlists"`
	CompletedSongs int                   `json:"completedSongs"`
}

// LadderView is a progress record with its bar fill.
type LadderView struct {
	Level      int     `json:"level"`
	Experience int     `json:"experience"`
	Required   int     `json:"required"`
	Fraction   float64 `json:"fraction"`
}

func ladderView(p domain.Progress, l progression.Ladder) LadderView {
	return LadderView{
		Level:      p.Level,
		Experience: p.Experience,
		Required:   l.Requirement(p.Level),
		Fraction:   progression.Fraction(p.Level, p.Experience, l),
	}
}

// Progress reads every record of a profile.
func (g *GameService) Progress(ctx context.Context, profileID string) (ProgressReport, error) {
	repo := g.progress.For(profileID)
	player, err := repo.PlayerProgress(ctx)
	if err != nil {
		return ProgressReport{}, fmt.Errorf("player progress: %w", err)
	}
	playlists, err := repo.AllPlaylistProgress(ctx)
	if err != nil {
		return ProgressReport{}, fmt.Errorf("playlist progress: %w", err)
	}
	songs, err := repo.CompletedSongs(ctx)
	if err != nil {
		return ProgressReport{}, fmt.Errorf("completed songs: %w", err)
	}
	profile, err := repo.LoadProfile(ctx)
	if err != nil {
		return ProgressReport{}, fmt.Errorf("profile: %w", err)
	}

	report := ProgressReport{
		Profile:        repo.ProfileID(),
		DisplayName:    profile.DisplayName,
		Persona:        profile.Persona,
		Player:         ladderView(player, g.settings.PlayerCurve),
		Playlists:      make(map[string]LadderView, len(playlists)),
		CompletedSongs: len(songs),
	}
	for id, p := range playlists {
		report.Playlists[id] = ladderView(p, g.settings.PlaylistCurve)
	}
	return report, nil
}

// PlaylistStats returns the aggregate stats of a playlist for a profile.
func (g *GameService) PlaylistStats(ctx context.Context, profileID, playlistID string) (domain.PlaylistStats, error) {
	return g.progress.For(profileID).PlaylistStats(ctx, playlistID)
}

// UpdateProfile stores the display name and persona; empty fields are kept.
func (g *GameService) UpdateProfile(ctx context.Context, profileID string, p domain.Profile) error {
	return g.progress.For(profileID).SaveProfile(ctx, p)
}

// ResetProgress clears every record of a profile.
func (g *GameService) ResetProgress(ctx context.Context, profileID string) error {
	return g.progress.For(profileID).Reset(ctx)
}
