package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"song-quiz-service/internal/app"
	"song-quiz-service/internal/commentary"
	"song-quiz-service/internal/config"
	"song-quiz-service/internal/domain"
	"song-quiz-service/internal/infra/memory"
	pgloader "song-quiz-service/internal/infra/postgres"
	redisinfra "song-quiz-service/internal/infra/redis"
	"song-quiz-service/internal/infra/sqlite"
	"song-quiz-service/internal/progress"
	"song-quiz-service/internal/speech"
)

// closers collects shutdown hooks in reverse order of creation.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func newRedisClient(cfg config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// openProgressStore picks the backing store of profile records.
func openProgressStore(cfg config.Config, client *redis.Client, cl *closers) (*progress.Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageRedis:
		if client == nil {
			return nil, errors.New("redis storage requires redis.addr")
		}
		return progress.NewStore(redisinfra.NewKV(client, cfg.Redis.Prefix)), nil
	case config.StorageSQLite:
		kv, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %q: %w", cfg.Storage.SQLitePath, err)
		}
		cl.add(func() { _ = kv.Close() })
		return progress.NewStore(kv), nil
	default:
		slog.Warn("progress is kept in memory and lost on restart")
		return progress.NewStore(memory.NewKV()), nil
	}
}

func connectPostgres(ctx context.Context, cfg config.Config, cl *closers) (*pgxpool.Pool, error) {
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	cl.add(pool.Close)
	return pool, nil
}

// playlistLoader prefers Postgres, then the catalog file, then the built-in
// demo playlist.
func playlistLoader(ctx context.Context, cfg config.Config, cl *closers) (memory.PlaylistLoader, error) {
	if cfg.Postgres.URL != "" {
		pool, err := connectPostgres(ctx, cfg, cl)
		if err != nil {
			return nil, err
		}
		return pgloader.NewPlaylistLoader(pool), nil
	}
	if cfg.Playlists.File != "" {
		catalog, err := memory.LoadCatalog(cfg.Playlists.File)
		if err != nil {
			return nil, err
		}
		slog.Info("playlist catalog loaded", "file", cfg.Playlists.File, "playlists", len(catalog.IDs()))
		return catalog, nil
	}
	return memory.NewStaticPlaylistLoader(demoPlaylists()), nil
}

func playlistRepository(cfg config.Config, client *redis.Client, loader memory.PlaylistLoader) app.PlaylistRepository {
	ttl := config.TTLDuration(cfg.Playlists.TTL, 5*time.Minute)
	if client != nil {
		return redisinfra.NewPlaylistRepository(client, loader, cfg.Redis.Prefix, ttl)
	}
	return memory.NewPlaylistRepository(loader, ttl)
}

// providerOptions builds the optional AI integrations. Missing keys leave the
// canned fallbacks in place.
func providerOptions(cfg config.Config) ([]app.Option, speech.Transcriber, error) {
	p := cfg.Providers
	var opts []app.Option

	var gen commentary.Generator
	if p.OpenAI.APIKey != "" {
		ai, err := commentary.NewOpenAI(p.OpenAI.APIKey, p.OpenAI.Model,
			commentary.WithBaseURL(p.OpenAI.BaseURL),
			commentary.WithHTTPTimeout(config.TTLDuration(p.OpenAI.Timeout, 4*time.Second)),
		)
		if err != nil {
			return nil, nil, err
		}
		gen = ai
	}
	opts = append(opts, app.WithNarrator(commentary.NewNarrator(gen, config.TTLDuration(p.OpenAI.Timeout, 4*time.Second))))

	if p.ElevenLabs.APIKey != "" {
		tts, err := speech.NewElevenLabs(p.ElevenLabs.APIKey, p.ElevenLabs.VoiceID,
			speech.WithElevenLabsModel(p.ElevenLabs.Model))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, app.WithSynthesizer(tts))
	}

	var stt speech.Transcriber
	if p.Deepgram.APIKey != "" {
		dg, err := speech.NewDeepgram(p.Deepgram.APIKey,
			speech.WithDeepgramModel(p.Deepgram.Model),
			speech.WithDeepgramLanguage(p.Deepgram.Language))
		if err != nil {
			return nil, nil, err
		}
		stt = dg
	}
	return opts, stt, nil
}

// gameSettings maps the config onto the game tunables.
func gameSettings(cfg config.Config) app.Settings {
	s := app.DefaultSettings()
	s.QuestionCount = cfg.Session.QuestionCount
	s.Countdown = config.TTLDuration(cfg.Session.Countdown, s.Countdown)
	s.RapidCountdown = config.TTLDuration(cfg.Session.RapidCountdown, s.RapidCountdown)
	s.PlayerCurve = cfg.Progression.Player
	s.PlaylistCurve = cfg.Progression.Playlist
	s.Thresholds = cfg.Scoring.StreakThresholds
	s.StreakBonus = cfg.Scoring.StreakBonus
	s.Timings = cfg.Sequencer.Timings()
	return s
}

// demoPlaylists is served when neither Postgres nor a catalog is configured.
func demoPlaylists() map[string]domain.Playlist {
	songs := []domain.Song{
		{ID: "blur-song-2", Artist: "Blur", Title: "Song 2"},
		{ID: "oasis-wonderwall", Artist: "Oasis", Title: "Wonderwall"},
		{ID: "pulp-common-people", Artist: "Pulp", Title: "Common People"},
		{ID: "radiohead-karma-police", Artist: "Radiohead", Title: "Karma Police"},
		{ID: "verve-bitter-sweet", Artist: "The Verve", Title: "Bitter Sweet Symphony"},
	}
	questions := make([]domain.Question, 0, len(songs)+1)
	for i, s := range songs {
		next := songs[(i+1)%len(songs)]
		other := songs[(i+2)%len(songs)]
		questions = append(questions, domain.Question{
			ID:   fmt.Sprintf("demo-%d", i+1),
			Song: s,
			Choices: []domain.Choice{
				{ID: "a", Artist: s.Artist, Title: s.Title},
				{ID: "b", Artist: s.Artist, Title: next.Title},
				{ID: "c", Artist: next.Artist, Title: s.Title},
				{ID: "d", Artist: other.Artist, Title: other.Title},
			},
		})
	}
	questions[1].Special = domain.Tempo{Rate: 1.5}
	questions = append(questions, domain.Question{
		ID:   "demo-trivia",
		Song: songs[0],
		Special: domain.Trivia{
			Prompt: "Which album is Song 2 from?",
			Choices: []domain.Choice{
				{ID: "t1", Title: "Parklife"},
				{ID: "t2", Title: "Blur"},
				{ID: "t3", Title: "The Great Escape"},
			},
			AnswerID: "t2",
		},
	})
	return map[string]domain.Playlist{
		"britpop": {ID: "britpop", Name: "Britpop Essentials", Questions: questions},
	}
}
