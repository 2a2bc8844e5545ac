package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"song-quiz-service/internal/domain"
)

// PlaylistLoader fetches playlist content from a backing store (Postgres, a catalog file).
type PlaylistLoader interface {
	LoadPlaylist(ctx context.Context, playlistID string) (domain.Playlist, error)
}

// PlaylistRepository caches playlists in Redis as JSON and falls back to a
// loader on cache miss:
//
//	SET {prefix}playlist:{playlistID} <json> EX ttl
type PlaylistRepository struct {
	client *redis.Client
	loader PlaylistLoader
	prefix string
	ttl    time.Duration
	sf     singleflight.Group
}

func NewPlaylistRepository(client *redis.Client, loader PlaylistLoader, prefix string, ttl time.Duration) *PlaylistRepository {
	return &PlaylistRepository{
		client: client,
		loader: loader,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *PlaylistRepository) GetPlaylist(ctx context.Context, playlistID string) (domain.Playlist, error) {
	if p, ok := r.cached(ctx, playlistID); ok {
		return p, nil
	}

	result, err, _ := r.sf.Do(playlistID, func() (interface{}, error) {
		// Re-check in case another instance filled it.
		if p, ok := r.cached(ctx, playlistID); ok {
			return p, nil
		}

		playlist, err := r.loader.LoadPlaylist(ctx, playlistID)
		if err != nil {
			return domain.Playlist{}, err
		}

		raw, err := json.Marshal(playlist)
		if err != nil {
			return domain.Playlist{}, err
		}
		if err := r.client.Set(ctx, r.key(playlistID), raw, r.ttlWithJitter()).Err(); err != nil {
			slog.Warn("playlist cache write failed", "playlist", playlistID, "error", err)
		}
		return playlist, nil
	})
	if err != nil {
		return domain.Playlist{}, err
	}
	return result.(domain.Playlist), nil
}

// Invalidate drops the cached copy of a playlist.
func (r *PlaylistRepository) Invalidate(ctx context.Context, playlistID string) error {
	return r.client.Del(ctx, r.key(playlistID)).Err()
}

func (r *PlaylistRepository) cached(ctx context.Context, playlistID string) (domain.Playlist, bool) {
	raw, err := r.client.Get(ctx, r.key(playlistID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("playlist cache read failed", "playlist", playlistID, "error", err)
		}
		return domain.Playlist{}, false
	}
	var p domain.Playlist
	if err := json.Unmarshal(raw, &p); err != nil {
		slog.Warn("playlist cache entry unreadable", "playlist", playlistID, "error", err)
		return domain.Playlist{}, false
	}
	return p, true
}

func (r *PlaylistRepository) key(playlistID string) string {
	return r.prefix + "playlist:" + playlistID
}

func (r *PlaylistRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(rand.Int64N(jitterMax+1))
}
