// Package speech holds the optional voice collaborators: text-to-speech for
// host commentary and speech-to-text for spoken answers.
package speech

import (
	"context"
	"io"

	"song-quiz-service/internal/domain"
)

// Audio is a synthesized clip.
type Audio struct {
	Format string `json:"format"`
	Data   []byte `json:"data"`
}

// Empty reports whether there is nothing to play.
func (a Audio) Empty() bool { return len(a.Data) == 0 }

// Synthesizer turns a commentary line into audio in the given voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (Audio, error)
}

// Transcriber turns a recorded answer into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader) (string, error)
}

// Silent is the Synthesizer used when no voice provider is configured.
type Silent struct{}

func (Silent) Synthesize(context.Context, string, string) (Audio, error) {
	return Audio{}, nil
}

// Unavailable is the Transcriber used when no provider is configured.
type Unavailable struct{}

func (Unavailable) Transcribe(context.Context, io.Reader) (string, error) {
	return "", domain.ErrProviderUnavailable
}
