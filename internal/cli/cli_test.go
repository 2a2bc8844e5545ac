package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"song-quiz-service/internal/config"
	"song-quiz-service/internal/infra/memory"
)

func TestShippedConfigAndCatalog(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "..", "config", "config.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	s := gameSettings(cfg)
	if s.QuestionCount != 5 || s.RapidCountdown != 8*time.Second {
		t.Fatalf("unexpected settings %+v", s)
	}
	if s.Timings.ScoreBreakdown != 1500*time.Millisecond {
		t.Fatalf("expected breakdown timing from config, got %v", s.Timings.ScoreBreakdown)
	}

	catalog, err := memory.LoadCatalog(filepath.Join("..", "..", cfg.Playlists.File))
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	p, err := catalog.LoadPlaylist(context.Background(), "90s-anthems")
	if err != nil {
		t.Fatalf("load playlist: %v", err)
	}
	if len(p.Questions) != 6 {
		t.Fatalf("expected 6 questions, got %d", len(p.Questions))
	}
	if !p.Questions[2].Binary() || !p.Questions[4].Binary() || !p.Questions[3].IsSpecial() {
		t.Fatalf("expected lyric, tempo and trivia specials, got %+v", p.Questions)
	}
}

func TestDemoPlaylistIsPlayable(t *testing.T) {
	p, ok := demoPlaylists()["britpop"]
	if !ok {
		t.Fatalf("expected demo playlist")
	}
	for _, q := range p.Questions {
		if q.Binary() {
			continue
		}
		if len(q.Choices) == 0 || q.Choices[0].Artist != q.Song.Artist || q.Choices[0].Title != q.Song.Title {
			t.Fatalf("question %s lacks the correct choice first: %+v", q.ID, q.Choices)
		}
	}
}

func TestProgressResetNeedsConfirmation(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"progress", "reset", "--profile", "p1", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Fatalf("expected confirmation error, got %v", err)
	}
}
