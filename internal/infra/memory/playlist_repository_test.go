package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"song-quiz-service/internal/domain"
)

func TestPlaylistRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		PlaylistLoader: NewStaticPlaylistLoader(map[string]domain.Playlist{
			"90s": samplePlaylist(),
		}),
	}
	repo := NewPlaylistRepository(loader, time.Minute)

	if _, err := repo.GetPlaylist(context.Background(), "90s"); err != nil {
		t.Fatalf("get playlist: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	p, err := repo.GetPlaylist(context.Background(), "90s")
	if err != nil {
		t.Fatalf("get playlist 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}
	if len(p.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(p.Questions))
	}
}

func TestPlaylistRepositoryExpires(t *testing.T) {
	loader := &countingLoader{
		PlaylistLoader: NewStaticPlaylistLoader(map[string]domain.Playlist{"90s": samplePlaylist()}),
	}
	repo := NewPlaylistRepository(loader, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	if _, err := repo.GetPlaylist(context.Background(), "90s"); err != nil {
		t.Fatalf("get playlist: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := repo.GetPlaylist(context.Background(), "90s"); err != nil {
		t.Fatalf("get playlist after ttl: %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after ttl, got %d calls", loader.calls.Load())
	}
}

func TestPlaylistRepositoryCollapsesConcurrentLoads(t *testing.T) {
	release := make(chan struct{})
	loader := &countingLoader{
		PlaylistLoader: NewStaticPlaylistLoader(map[string]domain.Playlist{"90s": samplePlaylist()}),
		gate:           release,
	}
	repo := NewPlaylistRepository(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.GetPlaylist(context.Background(), "90s"); err != nil {
				t.Errorf("get playlist: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if loader.calls.Load() != 1 {
		t.Fatalf("expected a single load, got %d", loader.calls.Load())
	}
}

func TestPlaylistRepositoryUnknown(t *testing.T) {
	repo := NewPlaylistRepository(NewStaticPlaylistLoader(nil), time.Minute)
	_, err := repo.GetPlaylist(context.Background(), "missing")
	if !errors.Is(err, domain.ErrPlaylistNotFound) {
		t.Fatalf("expected ErrPlaylistNotFound, got %v", err)
	}
}

type countingLoader struct {
	PlaylistLoader
	calls atomic.Int32
	gate  chan struct{}
}

func (l *countingLoader) LoadPlaylist(ctx context.Context, playlistID string) (domain.Playlist, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	return l.PlaylistLoader.LoadPlaylist(ctx, playlistID)
}

func samplePlaylist() domain.Playlist {
	return domain.Playlist{
		ID:   "90s",
		Name: "Nineties",
		Questions: []domain.Question{
			{
				ID:   "q1",
				Song: domain.Song{ID: "s1", Artist: "Blur", Title: "Song 2"},
				Choices: []domain.Choice{
					{ID: "a", Artist: "Blur", Title: "Song 2"},
					{ID: "b", Artist: "Oasis", Title: "Wonderwall"},
				},
			},
			{
				ID:      "q2",
				Song:    domain.Song{ID: "s2", Artist: "Pulp", Title: "Common People"},
				Special: domain.Lyric{Line: "She came from Greece, she had a thirst for...", Answer: "knowledge"},
			},
		},
	}
}
