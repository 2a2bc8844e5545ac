package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"song-quiz-service/internal/domain"
	"song-quiz-service/internal/infra/memory"
)

func TestPlaylistRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		PlaylistLoader: memory.NewStaticPlaylistLoader(map[string]domain.Playlist{
			"90s": samplePlaylist(),
		}),
	}
	repo := NewPlaylistRepository(client, loader, "songquiz:", time.Minute)

	if _, err := repo.GetPlaylist(context.Background(), "90s"); err != nil {
		t.Fatalf("get playlist: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("songquiz:playlist:90s") {
		t.Fatalf("expected cached playlist key")
	}
	if ttl := mr.TTL("songquiz:playlist:90s"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected ttl with at most 10%% jitter, got %s", ttl)
	}

	// Second call should hit cache, loader not incremented.
	p, err := repo.GetPlaylist(context.Background(), "90s")
	if err != nil {
		t.Fatalf("get playlist 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	lyric, ok := p.Questions[1].Special.(domain.Lyric)
	if !ok || lyric.Answer != "knowledge" {
		t.Fatalf("special question lost in cache round trip: %#v", p.Questions[1].Special)
	}

	if err := repo.Invalidate(context.Background(), "90s"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := repo.GetPlaylist(context.Background(), "90s"); err != nil {
		t.Fatalf("get playlist 3: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls)
	}
}

func TestPlaylistRepositoryIgnoresCorruptEntry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	if err := mr.Set("songquiz:playlist:90s", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	loader := &countingLoader{
		PlaylistLoader: memory.NewStaticPlaylistLoader(map[string]domain.Playlist{"90s": samplePlaylist()}),
	}
	repo := NewPlaylistRepository(newClient(mr), loader, "songquiz:", time.Minute)

	p, err := repo.GetPlaylist(context.Background(), "90s")
	if err != nil {
		t.Fatalf("get playlist: %v", err)
	}
	if p.Name != "Nineties" || loader.calls != 1 {
		t.Fatalf("expected fallback to loader, got %+v after %d calls", p, loader.calls)
	}
}

type countingLoader struct {
	PlaylistLoader
	calls int
}

func (l *countingLoader) LoadPlaylist(ctx context.Context, playlistID string) (domain.Playlist, error) {
	l.calls++
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

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
