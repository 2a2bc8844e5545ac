package memory

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"song-quiz-service/internal/domain"
)

// PlaylistLoader fetches playlist content from a backing store (Postgres, a catalog file).
type PlaylistLoader interface {
	LoadPlaylist(ctx context.Context, playlistID string) (domain.Playlist, error)
}

// PlaylistRepository caches playlists with a TTL to avoid repeated loads.
type PlaylistRepository struct {
	loader PlaylistLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedPlaylist
}

type cachedPlaylist struct {
	playlist  domain.Playlist
	expiresAt time.Time
}

func NewPlaylistRepository(loader PlaylistLoader, ttl time.Duration) *PlaylistRepository {
	return &PlaylistRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		cache:  make(map[string]cachedPlaylist),
	}
}

func (r *PlaylistRepository) GetPlaylist(ctx context.Context, playlistID string) (domain.Playlist, error) {
	if p, ok := r.cached(playlistID); ok {
		return p, nil
	}

	result, err, _ := r.sf.Do(playlistID, func() (interface{}, error) {
		if p, ok := r.cached(playlistID); ok {
			return p, nil
		}
		playlist, err := r.loader.LoadPlaylist(ctx, playlistID)
		if err != nil {
			return domain.Playlist{}, err
		}

		r.mu.Lock()
		r.cache[playlistID] = cachedPlaylist{
			playlist:  playlist,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return playlist, nil
	})
	if err != nil {
		return domain.Playlist{}, err
	}
	return result.(domain.Playlist), nil
}

func (r *PlaylistRepository) cached(playlistID string) (domain.Playlist, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[playlistID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Playlist{}, false
	}
	return entry.playlist, true
}

func (r *PlaylistRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter spreads expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(rand.Int64N(jitterMax+1))
}

// StaticPlaylistLoader serves playlists from a map (catalog files, tests, demos).
type StaticPlaylistLoader struct {
	playlists map[string]domain.Playlist
}

func NewStaticPlaylistLoader(playlists map[string]domain.Playlist) *StaticPlaylistLoader {
	return &StaticPlaylistLoader{playlists: playlists}
}

func (l *StaticPlaylistLoader) LoadPlaylist(_ context.Context, playlistID string) (domain.Playlist, error) {
	if p, ok := l.playlists[playlistID]; ok {
		return p, nil
	}
	return domain.Playlist{}, fmt.Errorf("%w: %s", domain.ErrPlaylistNotFound, playlistID)
}

// IDs lists the playlists the loader knows, in no particular order.
func (l *StaticPlaylistLoader) IDs() []string {
	ids := make([]string, 0, len(l.playlists))
	for id := range l.playlists {
		ids = append(ids, id)
	}
	return ids
}
