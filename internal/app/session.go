package app

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"song-quiz-service/internal/commentary"
	"song-quiz-service/internal/domain"
	"song-quiz-service/internal/progression"
	"song-quiz-service/internal/sequencer"
)

const subscriberBuffer = 16

// Session is one player's run through a playlist. The sequencer driver owns
// the presentation state; the session owns scores, lifelines and subscribers.
type Session struct {
	id        string
	game      *GameService
	playlist  domain.Playlist
	profileID string
	profile   domain.Profile
	mode      domain.GameMode
	floor     int
	budget    time.Duration
	createdAt time.Time

	driver    *sequencer.Driver
	countdown *sequencer.Countdown

	mu          sync.RWMutex
	state       sequencer.State
	questions   []domain.Question
	reserve     []domain.Question
	current     int
	awaiting    bool
	total       int
	attempts    []domain.SessionAttempt
	streak      *progression.Streak
	policy      progression.Policy
	completed   map[string]struct{}
	credited    []domain.CompletedSong
	lifelines   map[Lifeline]bool
	removed     map[string]struct{}
	rng         *rand.Rand
	committed   bool
	summary     *domain.SessionSummary
	ended       bool
	subscribers map[chan Update]struct{}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// PlaylistID returns the playlist being played.
func (s *Session) PlaylistID() string { return s.playlist.ID }

// ProfileID returns the profile the session commits to.
func (s *Session) ProfileID() string { return s.profileID }

// CreatedAt returns when the session started.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Mode returns the game mode.
func (s *Session) Mode() domain.GameMode { return s.mode }

// Phase returns the current sequencer phase.
func (s *Session) Phase() sequencer.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Phase()
}

// Total returns the points earned so far.
func (s *Session) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Attempts returns a copy of the recorded attempts.
func (s *Session) Attempts() []domain.SessionAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.SessionAttempt(nil), s.attempts...)
}

// Summary returns the committed summary once the session has completed.
func (s *Session) Summary() (domain.SessionSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.summary == nil {
		return domain.SessionSummary{}, false
	}
	return *s.summary, true
}

// Ended reports whether the session was finished or abandoned.
func (s *Session) Ended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ended
}

// View returns the current client view.
func (s *Session) View() StateView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewLocked()
}

// begin starts question index, running the intro reveals only for the opening
// question of a session with lifelines.
func (s *Session) begin(index int) {
	var intro []sequencer.Phase
	if index == 0 && s.lifelinesEnabled() && s.mode != domain.ModeRapid {
		intro = sequencer.IntroSteps
	}
	if err := s.driver.Dispatch(sequencer.BeginQuestion{Index: index, Intro: intro}); err != nil {
		slog.Warn("begin question rejected", "session", s.id, "index", index, "error", err)
	}
}

func (s *Session) lifelinesEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lifelines != nil
}

// onTransition is the driver listener. It runs outside the driver lock.
func (s *Session) onTransition(prev, next sequencer.State) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.state = next
	if st, ok := next.(sequencer.AwaitingAnswer); ok {
		s.current = st.QuestionIndex
		s.awaiting = true
		index := st.QuestionIndex
		s.countdown.Start(s.budget, func() { s.expire(index) })
	}
	if _, ok := prev.(sequencer.Idle); ok {
		if st, ok := next.(sequencer.Intro); ok {
			s.current = st.QuestionIndex
		}
		s.removed = nil
	}
	s.broadcastLocked(Update{Type: UpdateState, Payload: s.viewLocked()})
	s.mu.Unlock()

	switch st := next.(type) {
	case sequencer.Idle:
		switch p := prev.(type) {
		case sequencer.ScoreCounter:
			s.begin(p.QuestionIndex + 1)
		case sequencer.ResultsList:
			s.game.finish(s)
		}
	case sequencer.SessionSummary:
		s.game.complete(s, st.Total)
	}
	if _, ok := prev.(sequencer.Idle); ok {
		if _, ok := next.(sequencer.Idle); !ok {
			s.game.narrate(s, s.questionContext(commentary.MomentQuestionStart))
		}
	}
}

// expire records a zero-point answer when the countdown runs out.
func (s *Session) expire(index int) {
	if _, err := s.settle(index, nil); err != nil {
		slog.Debug("countdown expiry ignored", "session", s.id, "index", index, "error", err)
	}
}

// settle scores the current question. A nil submission is a timeout.
func (s *Session) settle(index int, sub *domain.AnswerSubmission) (RoundResult, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return RoundResult{}, domain.ErrSessionNotFound
	}
	if !s.awaiting || (index >= 0 && index != s.current) {
		s.mu.Unlock()
		return RoundResult{}, domain.ErrNotAwaitingAnswer
	}
	q := s.questions[s.current]

	var g grade
	if sub != nil {
		if sub.QuestionID != "" && sub.QuestionID != q.ID {
			s.mu.Unlock()
			return RoundResult{}, domain.ErrQuestionNotFound
		}
		var err error
		if g, err = gradeSubmission(s.mode, q, *sub); err != nil {
			s.mu.Unlock()
			return RoundResult{}, err
		}
	}
	s.awaiting = false

	round := progression.Score(g.outcome, q.IsSpecial(), s.streak, s.policy)
	attempt := domain.SessionAttempt{
		QuestionIndex: s.current,
		QuestionID:    q.ID,
		SongID:        q.Song.ID,
		PointsEarned:  round.Points,
		ArtistCorrect: g.artistCorrect,
		SongCorrect:   g.songCorrect,
		IsSpecial:     q.IsSpecial(),
		SpecialKind:   q.SpecialKind(),
		TimedOut:      sub == nil,
	}
	if round.Points > 0 && q.Song.ID != "" {
		if _, done := s.completed[q.Song.ID]; !done {
			attempt.FirstCompletion = true
			s.completed[q.Song.ID] = struct{}{}
		}
		s.credited = append(s.credited, domain.CompletedSong{
			ID:       q.Song.ID,
			Artist:   q.Song.Artist,
			Song:     q.Song.Title,
			AlbumArt: q.Song.AlbumArt,
		})
	}

	totalBefore := s.total
	s.total += round.Points
	s.attempts = append(s.attempts, attempt)
	last := s.current == len(s.questions)-1

	result := RoundResult{Attempt: attempt, Round: round, Outcome: round.Outcome.String(), Total: s.total}
	s.broadcastLocked(Update{Type: UpdateRound, Payload: result})
	s.mu.Unlock()

	s.countdown.Stop()
	s.game.metrics.AnswersScored.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("outcome", round.Outcome.String()),
		attribute.Bool("special", attempt.IsSpecial),
	))

	ctx := s.questionContext(commentary.MomentAnswer)
	ctx.Outcome = round.Outcome.String()
	ctx.TimedOut = attempt.TimedOut
	ctx.Points = round.Points
	ctx.Streak = round.Streak.Count
	s.game.narrate(s, ctx)

	if err := s.driver.Dispatch(sequencer.AnswerSubmitted{Attempt: attempt, TotalBefore: totalBefore, Last: last}); err != nil {
		slog.Warn("answer rejected by sequencer", "session", s.id, "index", attempt.QuestionIndex, "error", err)
	}
	return result, nil
}

// useLifeline spends l on the current question.
func (s *Session) useLifeline(l Lifeline) (LifelineResult, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return LifelineResult{}, domain.ErrSessionNotFound
	}
	if s.lifelines == nil {
		s.mu.Unlock()
		return LifelineResult{}, domain.ErrLifelineUnavailable
	}
	if !s.awaiting {
		s.mu.Unlock()
		return LifelineResult{}, domain.ErrNotAwaitingAnswer
	}
	if s.lifelines[l] {
		s.mu.Unlock()
		return LifelineResult{}, domain.ErrLifelineUsed
	}

	q := s.questions[s.current]
	result := LifelineResult{Lifeline: l}
	swapped := false
	switch l {
	case LifelineRevealLetter:
		letter, ok := firstLetter(q.Song.Title)
		if !ok || q.Binary() {
			s.mu.Unlock()
			return LifelineResult{}, domain.ErrLifelineUnavailable
		}
		result.Letter = letter
	case LifelineNarrowChoices:
		hide := narrow(wrongChoices(q, s.removed), s.rng)
		if len(hide) == 0 {
			s.mu.Unlock()
			return LifelineResult{}, domain.ErrLifelineUnavailable
		}
		if s.removed == nil {
			s.removed = make(map[string]struct{}, len(hide))
		}
		for _, id := range hide {
			s.removed[id] = struct{}{}
		}
		result.Removed = hide
	case LifelineSwapSong:
		if len(s.reserve) == 0 {
			s.mu.Unlock()
			return LifelineResult{}, domain.ErrLifelineUnavailable
		}
		s.questions[s.current] = s.reserve[0]
		s.reserve = s.reserve[1:]
		s.removed = nil
		swapped = true
	default:
		s.mu.Unlock()
		return LifelineResult{}, domain.ErrLifelineUnavailable
	}
	s.lifelines[l] = true

	index := s.current
	if swapped {
		s.countdown.Replace(true, s.budget, func() { s.expire(index) })
	}
	result.Question = viewQuestion(s.questions[index], index, len(s.questions), s.removed)
	s.broadcastLocked(Update{Type: UpdateLifeline, Payload: result})
	s.broadcastLocked(Update{Type: UpdateState, Payload: s.viewLocked()})
	s.mu.Unlock()
	return result, nil
}

func (s *Session) questionContext(moment commentary.Moment) commentary.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := commentary.Context{
		Moment:        moment,
		Persona:       s.profile.Persona,
		PlayerName:    s.profile.DisplayName,
		PlaylistName:  s.playlist.Name,
		QuestionIndex: s.current,
		QuestionCount: len(s.questions),
		Total:         s.total,
		Streak:        s.streak.State().Count,
	}
	if moment == commentary.MomentAnswer && s.current < len(s.questions) {
		c.Artist = s.questions[s.current].Song.Artist
		c.Title = s.questions[s.current].Song.Title
	}
	return c
}

func (s *Session) viewLocked() StateView {
	v := StateView{
		SessionID:    s.id,
		PlaylistID:   s.playlist.ID,
		PlaylistName: s.playlist.Name,
		Mode:         s.mode,
		Sequence:     sequencer.Describe(s.state),
		CountdownMs:  s.countdown.Remaining().Milliseconds(),
		Total:        s.total,
		Streak:       s.streak.State(),
		Lifelines:    []Lifeline{},
	}
	switch s.state.(type) {
	case sequencer.Intro, sequencer.AwaitingAnswer, sequencer.ScoreBreakdown:
		v.Question = viewQuestion(s.questions[s.current], s.current, len(s.questions), s.removed)
	}
	for _, l := range allLifelines {
		if used, ok := s.lifelines[l]; ok && !used {
			v.Lifelines = append(v.Lifelines, l)
		}
	}
	return v
}

func (s *Session) subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberBuffer)

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	ch <- Update{Type: UpdateState, Payload: s.viewLocked()}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcast(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(u)
}

// broadcastLocked never blocks: a full subscriber loses its oldest update.
func (s *Session) broadcastLocked(u Update) {
	for ch := range s.subscribers {
		select {
		case ch <- u:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- u
		}
	}
}

// end marks the session over, stops its timers and closes subscribers. An
// abandoned session first pushes the reset state. ok is false if the session
// had already ended.
func (s *Session) end(abandoned bool) (committed, ok bool) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return s.committed, false
	}
	s.ended = true
	s.awaiting = false
	committed = s.committed
	s.countdown.Stop()
	if abandoned {
		s.state = sequencer.Idle{}
		s.broadcastLocked(Update{Type: UpdateState, Payload: s.viewLocked()})
	}
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.mu.Unlock()

	if abandoned {
		// The listener ignores this; it keeps the driver's own state in step.
		_ = s.driver.Dispatch(sequencer.Abandon{})
	}
	s.driver.Stop()
	return committed, true
}
