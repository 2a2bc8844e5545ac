package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"song-quiz-service/internal/domain"
)

type catalogFile struct {
	Playlists []domain.Playlist `json:"playlists"`
}

// LoadCatalog reads a YAML playlist catalog from path.
func LoadCatalog(path string) (*StaticPlaylistLoader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return ParseCatalog(f)
}

// ParseCatalog decodes a YAML catalog. Questions use the same shape as the
// JSON wire form, including the kind tag of special questions:
//
//	playlists:
//	  - id: 90s
//	    name: Nineties
//	    questions:
//	      - id: q1
//	        song: {id: s1, artist: Blur, title: Song 2}
//	        choices:
//	          - {id: a, artist: Blur, title: Song 2}
func ParseCatalog(r io.Reader) (*StaticPlaylistLoader, error) {
	var doc any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	// Round-trip through JSON so the question codec handles special variants.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert catalog: %w", err)
	}
	var file catalogFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	playlists := make(map[string]domain.Playlist, len(file.Playlists))
	for _, p := range file.Playlists {
		if p.ID == "" {
			return nil, errors.New("catalog playlist without id")
		}
		if _, dup := playlists[p.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog playlist %q", p.ID)
		}
		playlists[p.ID] = p
	}
	return NewStaticPlaylistLoader(playlists), nil
}
