package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"song-quiz-service/internal/domain"
)

// PlaylistLoader loads playlists, questions as JSONB, from Postgres.
type PlaylistLoader struct {
	pool *pgxpool.Pool
}

func NewPlaylistLoader(pool *pgxpool.Pool) *PlaylistLoader {
	return &PlaylistLoader{pool: pool}
}

func (l *PlaylistLoader) LoadPlaylist(ctx context.Context, playlistID string) (domain.Playlist, error) {
	var (
		name string
		raw  []byte
	)
	err := l.pool.QueryRow(ctx, `SELECT name, questions FROM playlists WHERE id=$1`, playlistID).Scan(&name, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Playlist{}, fmt.Errorf("%w: %s", domain.ErrPlaylistNotFound, playlistID)
	}
	if err != nil {
		return domain.Playlist{}, fmt.Errorf("load playlist: %w", err)
	}
	playlist := domain.Playlist{ID: playlistID, Name: name}
	if err := json.Unmarshal(raw, &playlist.Questions); err != nil {
		return domain.Playlist{}, fmt.Errorf("unmarshal playlist questions: %w", err)
	}
	return playlist, nil
}

// SavePlaylist inserts or replaces a playlist.
func (l *PlaylistLoader) SavePlaylist(ctx context.Context, p domain.Playlist) error {
	questions := p.Questions
	if questions == nil {
		questions = []domain.Question{}
	}
	raw, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal playlist questions: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO playlists (id, name, questions)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, questions = EXCLUDED.questions, updated_at = now()`,
		p.ID, p.Name, raw)
	if err != nil {
		return fmt.Errorf("save playlist %s: %w", p.ID, err)
	}
	return nil
}
