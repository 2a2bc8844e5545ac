package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	deepgramModel    = "nova-3"
	deepgramLanguage = "en"
	chunkSize        = 8 * 1024
)

// Deepgram transcribes recorded answers over the streaming listen API.
type Deepgram struct {
	apiKey   string
	model    string
	language string
	endpoint string
	dialer   *websocket.Dialer
}

type DeepgramOption func(*Deepgram)

func WithDeepgramModel(model string) DeepgramOption {
	return func(d *Deepgram) {
		if model != "" {
			d.model = model
		}
	}
}

func WithDeepgramLanguage(lang string) DeepgramOption {
	return func(d *Deepgram) {
		if lang != "" {
			d.language = lang
		}
	}
}

// WithDeepgramEndpoint overrides the listen URL.
func WithDeepgramEndpoint(endpoint string) DeepgramOption {
	return func(d *Deepgram) { d.endpoint = endpoint }
}

func NewDeepgram(apiKey string, opts ...DeepgramOption) (*Deepgram, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	d := &Deepgram{
		apiKey:   apiKey,
		model:    deepgramModel,
		language: deepgramLanguage,
		endpoint: deepgramEndpoint,
		dialer:   websocket.DefaultDialer,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

func (d *Deepgram) listenURL() (string, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", d.model)
	q.Set("language", d.language)
	q.Set("punctuate", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type deepgramResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseResult returns the final transcript carried by msg, if any.
func parseResult(msg []byte) (string, bool) {
	var r deepgramResult
	if err := json.Unmarshal(msg, &r); err != nil {
		return "", false
	}
	if r.Type != "Results" || !r.IsFinal || len(r.Channel.Alternatives) == 0 {
		return "", false
	}
	text := strings.TrimSpace(r.Channel.Alternatives[0].Transcript)
	return text, text != ""
}

// Transcribe streams audio to Deepgram and joins the final transcripts.
func (d *Deepgram) Transcribe(ctx context.Context, audio io.Reader) (string, error) {
	wsURL, err := d.listenURL()
	if err != nil {
		return "", fmt.Errorf("deepgram: build URL: %w", err)
	}
	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	conn, _, err := d.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return "", fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.Close()
	stop := closeOnDone(ctx, conn)
	defer stop()

	writeErr := make(chan error, 1)
	go func() {
		buf := make([]byte, chunkSize)
		for {
			n, err := audio.Read(buf)
			if n > 0 {
				if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
					writeErr <- werr
					return
				}
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				writeErr <- err
				return
			}
		}
		writeErr <- conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	}()

	var parts []string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, io.EOF) {
				break
			}
			return "", fmt.Errorf("deepgram: read: %w", err)
		}
		if text, ok := parseResult(msg); ok {
			parts = append(parts, text)
		}
	}
	if err := <-writeErr; err != nil && len(parts) == 0 {
		return "", fmt.Errorf("deepgram: write: %w", err)
	}
	return strings.Join(parts, " "), nil
}
