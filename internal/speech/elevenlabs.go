package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

const (
	elevenLabsEndpoint = "wss://api.elevenlabs.io/v1/text-to-speech"
	elevenLabsModel    = "eleven_flash_v2_5"
	elevenLabsFormat   = "pcm_16000"
)

// ElevenLabs synthesizes speech over the stream-input WebSocket API.
type ElevenLabs struct {
	apiKey       string
	model        string
	defaultVoice string
	endpoint     string
	dialer       *websocket.Dialer
}

// ElevenLabsOption configures NewElevenLabs.
type ElevenLabsOption func(*ElevenLabs)

func WithElevenLabsModel(model string) ElevenLabsOption {
	return func(e *ElevenLabs) {
		if model != "" {
			e.model = model
		}
	}
}

// WithElevenLabsEndpoint overrides the WebSocket base URL.
func WithElevenLabsEndpoint(endpoint string) ElevenLabsOption {
	return func(e *ElevenLabs) { e.endpoint = strings.TrimRight(endpoint, "/") }
}

func NewElevenLabs(apiKey, defaultVoice string, opts ...ElevenLabsOption) (*ElevenLabs, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	e := &ElevenLabs{
		apiKey:       apiKey,
		model:        elevenLabsModel,
		defaultVoice: defaultVoice,
		endpoint:     elevenLabsEndpoint,
		dialer:       websocket.DefaultDialer,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type elevenLabsInit struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

type elevenLabsText struct {
	Text string `json:"text"`
}

type elevenLabsAudio struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

func (e *ElevenLabs) streamURL(voice string) string {
	return fmt.Sprintf("%s/%s/stream-input?model_id=%s", e.endpoint, url.PathEscape(voice), url.QueryEscape(e.model))
}

// Synthesize sends text as a single utterance and collects the PCM audio.
// An empty voice uses the configured default.
func (e *ElevenLabs) Synthesize(ctx context.Context, text, voice string) (Audio, error) {
	if voice == "" {
		voice = e.defaultVoice
	}
	if voice == "" {
		return Audio{}, errors.New("elevenlabs: no voice configured")
	}
	if strings.TrimSpace(text) == "" {
		return Audio{}, nil
	}

	conn, _, err := e.dialer.DialContext(ctx, e.streamURL(voice), nil)
	if err != nil {
		return Audio{}, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.Close()
	stop := closeOnDone(ctx, conn)
	defer stop()

	frames := []any{
		elevenLabsInit{
			Text:          " ",
			VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
			XiAPIKey:      e.apiKey,
			OutputFormat:  elevenLabsFormat,
		},
		elevenLabsText{Text: text + " "},
		elevenLabsText{Text: ""},
	}
	for _, f := range frames {
		if err := conn.WriteJSON(f); err != nil {
			return Audio{}, fmt.Errorf("elevenlabs: write: %w", err)
		}
	}

	var pcm []byte
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return Audio{}, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(pcm) > 0 {
				break
			}
			return Audio{}, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp elevenLabsAudio
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err == nil {
				pcm = append(pcm, chunk...)
			}
		}
		if resp.IsFinal {
			break
		}
		if resp.Audio == "" && resp.Message != "" {
			return Audio{}, fmt.Errorf("elevenlabs: %s", resp.Message)
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
	return Audio{Format: elevenLabsFormat, Data: pcm}, nil
}

// closeOnDone closes conn when ctx ends so blocked reads return.
func closeOnDone(ctx context.Context, conn *websocket.Conn) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}
