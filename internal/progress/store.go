// Package progress persists player and playlist progression as JSON records
// in a key-value store, one namespace per profile.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"song-quiz-service/internal/domain"
)

// KV is the key-value mechanism progress records are stored in.
type KV interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Update atomically replaces the value of key with fn's result.
	Update(ctx context.Context, key string, fn func(old []byte, ok bool) ([]byte, error)) error
	Delete(ctx context.Context, keys ...string) error
}

// Record keys, relative to a profile namespace.
const (
	KeyPlayerProgress   = "playerProgress"
	KeyPlaylistProgress = "playlistProgress"
	KeyCompletedSongs   = "completedSongs"
	KeyPlaylistStats    = "playlistStats"
	KeyPlayerName       = "playerName"
	KeyPersona          = "persona"
)

// DefaultProfile is used when no profile id is given.
const DefaultProfile = "default"

// DefaultFloor is the playlist level assumed when no floor is supplied.
const DefaultFloor = 1

var allKeys = []string{
	KeyPlayerProgress,
	KeyPlaylistProgress,
	KeyCompletedSongs,
	KeyPlaylistStats,
	KeyPlayerName,
	KeyPersona,
}

// Store hands out per-profile repositories over one KV.
type Store struct {
	kv KV
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// For returns the repository of profile.
func (s *Store) For(profile string) *Repository {
	if profile == "" {
		profile = DefaultProfile
	}
	return &Repository{kv: s.kv, profile: profile}
}

// Repository reads and merge-writes the records of a single profile.
type Repository struct {
	kv      KV
	profile string
}

func (r *Repository) ProfileID() string { return r.profile }

func (r *Repository) key(name string) string {
	return r.profile + ":" + name
}

// PlayerProgress returns the global progress, {1, 0} when never written.
func (r *Repository) PlayerProgress(ctx context.Context) (domain.PlayerProgress, error) {
	p, found, err := readRecord[domain.PlayerProgress](ctx, r, KeyPlayerProgress)
	if err != nil || !found {
		return domain.PlayerProgress{Level: 1}, err
	}
	return normalize(p, 1), nil
}

func (r *Repository) SavePlayerProgress(ctx context.Context, p domain.PlayerProgress) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.kv.Update(ctx, r.key(KeyPlayerProgress), func([]byte, bool) ([]byte, error) {
		return raw, nil
	})
}

// UpdatePlayerProgress applies fn to the player record inside one atomic
// read-modify-write and returns the record before and after. fn may run more
// than once when the backend retries a conflicting write.
func (r *Repository) UpdatePlayerProgress(ctx context.Context, fn func(domain.Progress) domain.Progress) (before, after domain.Progress, err error) {
	before = domain.Progress{Level: 1}
	err = r.kv.Update(ctx, r.key(KeyPlayerProgress), func(old []byte, ok bool) ([]byte, error) {
		before = domain.Progress{Level: 1}
		if p := decodeOrEmpty[*domain.Progress](r, KeyPlayerProgress, old, ok); p != nil {
			before = normalize(*p, 1)
		}
		after = fn(before)
		return json.Marshal(after)
	})
	return before, after, err
}

// PlaylistProgress returns progress on one playlist. A playlist never played
// starts at max(1, floor) with no experience.
func (r *Repository) PlaylistProgress(ctx context.Context, playlistID string, floor int) (domain.PlaylistProgress, error) {
	if floor < DefaultFloor {
		floor = DefaultFloor
	}
	out := domain.PlaylistProgress{PlaylistID: playlistID, Progress: domain.Progress{Level: floor}}
	all, err := r.AllPlaylistProgress(ctx)
	if err != nil {
		return out, err
	}
	if p, ok := all[playlistID]; ok {
		out.Progress = normalize(p, 1)
	}
	return out, nil
}

// UpdatePlaylistProgress is UpdatePlayerProgress for one playlist entry. An
// entry never written starts at max(1, floor); sibling entries are untouched.
func (r *Repository) UpdatePlaylistProgress(ctx context.Context, playlistID string, floor int, fn func(domain.Progress) domain.Progress) (before, after domain.Progress, err error) {
	if floor < DefaultFloor {
		floor = DefaultFloor
	}
	before = domain.Progress{Level: floor}
	err = r.kv.Update(ctx, r.key(KeyPlaylistProgress), func(old []byte, ok bool) ([]byte, error) {
		all := decodeOrEmpty[map[string]domain.Progress](r, KeyPlaylistProgress, old, ok)
		if all == nil {
			all = map[string]domain.Progress{}
		}
		before = domain.Progress{Level: floor}
		if p, found := all[playlistID]; found {
			before = normalize(p, 1)
		}
		after = fn(before)
		all[playlistID] = after
		return json.Marshal(all)
	})
	return before, after, err
}

// AllPlaylistProgress returns the whole playlist map.
func (r *Repository) AllPlaylistProgress(ctx context.Context) (map[string]domain.Progress, error) {
	all, _, err := readRecord[map[string]domain.Progress](ctx, r, KeyPlaylistProgress)
	if err != nil {
		return map[string]domain.Progress{}, err
	}
	if all == nil {
		all = map[string]domain.Progress{}
	}
	return all, nil
}

// SavePlaylistProgress writes one playlist's entry, leaving siblings untouched.
func (r *Repository) SavePlaylistProgress(ctx context.Context, p domain.PlaylistProgress) error {
	return r.kv.Update(ctx, r.key(KeyPlaylistProgress), func(old []byte, ok bool) ([]byte, error) {
		all := decodeOrEmpty[map[string]domain.Progress](r, KeyPlaylistProgress, old, ok)
		if all == nil {
			all = map[string]domain.Progress{}
		}
		all[p.PlaylistID] = p.Progress
		return json.Marshal(all)
	})
}

// CompletedSongs returns the ids of every song ever answered with credit.
func (r *Repository) CompletedSongs(ctx context.Context) (map[string]struct{}, error) {
	ids, _, err := readRecord[[]string](ctx, r, KeyCompletedSongs)
	if err != nil {
		return map[string]struct{}{}, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// AddCompletedSongs adds ids to the completed set and returns how many were new.
func (r *Repository) AddCompletedSongs(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	added := 0
	err := r.kv.Update(ctx, r.key(KeyCompletedSongs), func(old []byte, ok bool) ([]byte, error) {
		added = 0
		existing := decodeOrEmpty[[]string](r, KeyCompletedSongs, old, ok)
		set := make(map[string]struct{}, len(existing)+len(ids))
		for _, id := range existing {
			set[id] = struct{}{}
		}
		for _, id := range ids {
			if id == "" {
				continue
			}
			if _, dup := set[id]; !dup {
				set[id] = struct{}{}
				added++
			}
		}
		merged := make([]string, 0, len(set))
		for id := range set {
			merged = append(merged, id)
		}
		sort.Strings(merged)
		return json.Marshal(merged)
	})
	return added, err
}

// PlaylistStats returns the aggregate stats of one playlist.
func (r *Repository) PlaylistStats(ctx context.Context, playlistID string) (domain.PlaylistStats, error) {
	all, _, err := readRecord[map[string]domain.PlaylistStats](ctx, r, KeyPlaylistStats)
	if err != nil {
		return domain.PlaylistStats{}, err
	}
	return all[playlistID], nil
}

// RecordSession folds one completed session into the playlist's stats.
// Songs already listed are not repeated.
func (r *Repository) RecordSession(ctx context.Context, playlistID string, score int, songs []domain.CompletedSong) (domain.PlaylistStats, error) {
	var out domain.PlaylistStats
	err := r.kv.Update(ctx, r.key(KeyPlaylistStats), func(old []byte, ok bool) ([]byte, error) {
		all := decodeOrEmpty[map[string]domain.PlaylistStats](r, KeyPlaylistStats, old, ok)
		if all == nil {
			all = map[string]domain.PlaylistStats{}
		}
		stats := all[playlistID]
		stats.TimesPlayed++
		stats.TotalScoreSum += score
		if score > stats.HighestScore {
			stats.HighestScore = score
		}
		seen := make(map[string]struct{}, len(stats.CompletedSongs))
		for _, s := range stats.CompletedSongs {
			seen[s.ID] = struct{}{}
		}
		for _, s := range songs {
			if _, dup := seen[s.ID]; dup || s.ID == "" {
				continue
			}
			seen[s.ID] = struct{}{}
			stats.CompletedSongs = append(stats.CompletedSongs, s)
		}
		all[playlistID] = stats
		out = stats
		return json.Marshal(all)
	})
	return out, err
}

// LoadProfile returns the display name and persona; both are empty until set.
func (r *Repository) LoadProfile(ctx context.Context) (domain.Profile, error) {
	name, _, err := r.kv.Get(ctx, r.key(KeyPlayerName))
	if err != nil {
		return domain.Profile{}, fmt.Errorf("read %s: %w", KeyPlayerName, err)
	}
	persona, _, err := r.kv.Get(ctx, r.key(KeyPersona))
	if err != nil {
		return domain.Profile{}, fmt.Errorf("read %s: %w", KeyPersona, err)
	}
	return domain.Profile{DisplayName: string(name), Persona: string(persona)}, nil
}

// SaveProfile stores each non-empty field of p.
func (r *Repository) SaveProfile(ctx context.Context, p domain.Profile) error {
	set := func(key, value string) error {
		if value == "" {
			return nil
		}
		return r.kv.Update(ctx, r.key(key), func([]byte, bool) ([]byte, error) {
			return []byte(value), nil
		})
	}
	if err := set(KeyPlayerName, p.DisplayName); err != nil {
		return fmt.Errorf("write %s: %w", KeyPlayerName, err)
	}
	if err := set(KeyPersona, p.Persona); err != nil {
		return fmt.Errorf("write %s: %w", KeyPersona, err)
	}
	return nil
}

// Reset deletes every record of the profile.
func (r *Repository) Reset(ctx context.Context) error {
	keys := make([]string, 0, len(allKeys))
	for _, k := range allKeys {
		keys = append(keys, r.key(k))
	}
	return r.kv.Delete(ctx, keys...)
}

// readRecord decodes one record. Malformed records are logged and reported
// as absent.
func readRecord[T any](ctx context.Context, r *Repository, name string) (T, bool, error) {
	var zero T
	raw, ok, err := r.kv.Get(ctx, r.key(name))
	if err != nil {
		return zero, false, fmt.Errorf("read %s: %w", name, err)
	}
	if !ok {
		return zero, false, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Warn("discarding malformed progress record", "profile", r.profile, "key", name, "error", err)
		return zero, false, nil
	}
	return v, true, nil
}

func decodeOrEmpty[T any](r *Repository, name string, raw []byte, ok bool) T {
	var v T
	if !ok {
		return v
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Warn("replacing malformed progress record", "profile", r.profile, "key", name, "error", err)
		var zero T
		return zero
	}
	return v
}

func normalize(p domain.Progress, minLevel int) domain.Progress {
	if p.Level < minLevel {
		p.Level = minLevel
	}
	if p.Experience < 0 {
		p.Experience = 0
	}
	return p
}
