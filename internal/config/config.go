package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"song-quiz-service/internal/progression"
	"song-quiz-service/internal/sequencer"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l onto slog, defaulting to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Storage drivers for progress records.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
)

type Config struct {
	Server struct {
		Port     string   `yaml:"port"`
		LogLevel LogLevel `yaml:"log_level"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Storage struct {
		Driver     string `yaml:"driver"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"storage"`
	Playlists struct {
		TTL  string `yaml:"ttl"`
		File string `yaml:"file"`
	} `yaml:"playlists"`
	Progression struct {
		Player   progression.Curve `yaml:"player"`
		Playlist progression.Curve `yaml:"playlist"`
	} `yaml:"progression"`
	Scoring struct {
		StreakThresholds progression.StreakThresholds `yaml:"streak_thresholds"`
		StreakBonus      int                          `yaml:"streak_bonus"`
	} `yaml:"scoring"`
	Session struct {
		QuestionCount  int    `yaml:"question_count"`
		Countdown      string `yaml:"countdown"`
		RapidCountdown string `yaml:"rapid_countdown"`
	} `yaml:"session"`
	Sequencer Sequencer `yaml:"sequencer"`
	Providers struct {
		OpenAI struct {
			APIKey  string `yaml:"api_key"`
			Model   string `yaml:"model"`
			BaseURL string `yaml:"base_url"`
			Timeout string `yaml:"timeout"`
		} `yaml:"openai"`
		ElevenLabs struct {
			APIKey  string `yaml:"api_key"`
			Model   string `yaml:"model"`
			VoiceID string `yaml:"voice_id"`
		} `yaml:"elevenlabs"`
		Deepgram struct {
			APIKey   string `yaml:"api_key"`
			Model    string `yaml:"model"`
			Language string `yaml:"language"`
		} `yaml:"deepgram"`
	} `yaml:"providers"`
}

// Sequencer holds the dwell time of each timed presentation phase.
type Sequencer struct {
	LifelineReveal string `yaml:"lifeline_reveal"`
	TimerReveal    string `yaml:"timer_reveal"`
	PlaybackReveal string `yaml:"playback_reveal"`
	ScoreBreakdown string `yaml:"score_breakdown"`
	ScoreCounter   string `yaml:"score_counter"`
	XPBar          string `yaml:"xp_bar"`
	XPDrain        string `yaml:"xp_drain"`
	XPRefill       string `yaml:"xp_refill"`
}

// Timings converts the configured durations, keeping defaults for blanks.
func (s Sequencer) Timings() sequencer.Timings {
	d := sequencer.DefaultTimings
	return sequencer.Timings{
		LifelineReveal: TTLDuration(s.LifelineReveal, d.LifelineReveal),
		TimerReveal:    TTLDuration(s.TimerReveal, d.TimerReveal),
		PlaybackReveal: TTLDuration(s.PlaybackReveal, d.PlaybackReveal),
		ScoreBreakdown: TTLDuration(s.ScoreBreakdown, d.ScoreBreakdown),
		ScoreCounter:   TTLDuration(s.ScoreCounter, d.ScoreCounter),
		XPBar:          TTLDuration(s.XPBar, d.XPBar),
		XPDrain:        TTLDuration(s.XPDrain, d.XPDrain),
		XPRefill:       TTLDuration(s.XPRefill, d.XPRefill),
	}
}

// Default returns a config that runs entirely in memory.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Server.LogLevel = LogInfo
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.TTL = "10m"
	cfg.Redis.Prefix = "songquiz:"
	cfg.Storage.Driver = StorageMemory
	cfg.Storage.SQLitePath = "data/progress.db"
	cfg.Playlists.TTL = "5m"
	cfg.Progression.Player = progression.PlayerCurve
	cfg.Progression.Playlist = progression.PlaylistCurve
	cfg.Scoring.StreakThresholds = progression.DefaultThresholds
	cfg.Scoring.StreakBonus = 5
	cfg.Session.QuestionCount = 5
	cfg.Session.Countdown = "20s"
	cfg.Session.RapidCountdown = "8s"
	cfg.Providers.OpenAI.Timeout = "4s"
	return cfg
}

// Load reads YAML config from path on top of Default. ${VAR} references are
// expanded from the environment before decoding.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes and validates a YAML config.
func LoadFromReader(r io.Reader) (Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate returns every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	if c.Server.LogLevel != "" && !c.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", c.Server.LogLevel))
	}
	switch c.Storage.Driver {
	case StorageMemory, StorageRedis:
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is invalid; valid values: memory, redis, sqlite", c.Storage.Driver))
	}
	if c.Storage.Driver == StorageRedis && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required for the redis driver"))
	}
	if err := c.Progression.Player.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("progression.player: %w", err))
	}
	if err := c.Progression.Playlist.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("progression.playlist: %w", err))
	}
	if err := c.Scoring.StreakThresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scoring.streak_thresholds: %w", err))
	}
	if c.Scoring.StreakBonus < 0 {
		errs = append(errs, fmt.Errorf("scoring.streak_bonus must not be negative, got %d", c.Scoring.StreakBonus))
	}
	if c.Session.QuestionCount < 1 {
		errs = append(errs, fmt.Errorf("session.question_count must be at least 1, got %d", c.Session.QuestionCount))
	}

	durations := map[string]string{
		"redis.ttl":                 c.Redis.TTL,
		"playlists.ttl":             c.Playlists.TTL,
		"session.countdown":         c.Session.Countdown,
		"session.rapid_countdown":   c.Session.RapidCountdown,
		"providers.openai.timeout":  c.Providers.OpenAI.Timeout,
		"sequencer.lifeline_reveal": c.Sequencer.LifelineReveal,
		"sequencer.timer_reveal":    c.Sequencer.TimerReveal,
		"sequencer.playback_reveal": c.Sequencer.PlaybackReveal,
		"sequencer.score_breakdown": c.Sequencer.ScoreBreakdown,
		"sequencer.score_counter":   c.Sequencer.ScoreCounter,
		"sequencer.xp_bar":          c.Sequencer.XPBar,
		"sequencer.xp_drain":        c.Sequencer.XPDrain,
		"sequencer.xp_refill":       c.Sequencer.XPRefill,
	}
	for _, field := range slices.Sorted(maps.Keys(durations)) {
		raw := durations[field]
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("%s %q is not a valid duration", field, raw))
		}
	}

	if c.Providers.OpenAI.APIKey == "" {
		slog.Info("no openai api key configured; commentary uses canned lines")
	}
	if c.Providers.ElevenLabs.APIKey != "" && c.Providers.ElevenLabs.VoiceID == "" {
		errs = append(errs, errors.New("providers.elevenlabs.voice_id is required when an api key is set"))
	}
	return errors.Join(errs...)
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
