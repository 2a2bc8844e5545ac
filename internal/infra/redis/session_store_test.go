package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"song-quiz-service/internal/app"
	"song-quiz-service/internal/domain"
	"song-quiz-service/internal/infra/memory"
	"song-quiz-service/internal/progress"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewSessionStore(newClient(mr), "songquiz:", time.Minute)
	ids := []string{"s-1", "s-2"}
	playlists := memory.NewPlaylistRepository(memory.NewStaticPlaylistLoader(map[string]domain.Playlist{"90s": samplePlaylist()}), time.Minute)
	svc := app.NewGameService(store, playlists, progress.NewStore(memory.NewKV()), app.DefaultSettings(),
		app.WithIDs(func() string { id := ids[0]; ids = ids[1:]; return id }))

	if _, err := svc.StartSession(ctx, app.StartRequest{PlaylistID: "90s"}); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if got, err := mr.Get("songquiz:session:s-1"); err != nil || got != "90s" {
		t.Fatalf("expected liveness marker naming the playlist, got %q (%v)", got, err)
	}
	if _, ok := store.Get("s-1"); !ok {
		t.Fatalf("expected local session")
	}
	live, err := store.Live(ctx)
	if err != nil || live != 1 {
		t.Fatalf("expected 1 live session, got %d (%v)", live, err)
	}

	mr.FastForward(2 * time.Minute)
	if mr.Exists("songquiz:session:s-1") {
		t.Fatalf("expected liveness marker to expire")
	}

	if _, err := svc.StartSession(ctx, app.StartRequest{PlaylistID: "90s"}); err != nil {
		t.Fatalf("start second session: %v", err)
	}
	if err := svc.Abandon(ctx, "s-2"); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if mr.Exists("songquiz:session:s-2") {
		t.Fatalf("expected redis key to be removed")
	}
	if _, ok := store.Get("s-2"); ok {
		t.Fatalf("expected local session removed")
	}
	_ = svc.Abandon(ctx, "s-1")
}
