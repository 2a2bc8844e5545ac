package commentary

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

const defaultModel = "gpt-4o-mini"

// OpenAI generates commentary with the chat completions API.
type OpenAI struct {
	client    oai.Client
	model     string
	maxTokens int64
}

type openAIConfig struct {
	baseURL string
	timeout time.Duration
	retries int
}

// OpenAIOption configures NewOpenAI.
type OpenAIOption func(*openAIConfig)

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithHTTPTimeout sets a per-request HTTP timeout.
func WithHTTPTimeout(d time.Duration) OpenAIOption {
	return func(c *openAIConfig) { c.timeout = d }
}

// WithMaxRetries overrides the SDK retry count.
func WithMaxRetries(n int) OpenAIOption {
	return func(c *openAIConfig) { c.retries = n }
}

func NewOpenAI(apiKey, model string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	if model == "" {
		model = defaultModel
	}
	cfg := &openAIConfig{retries: 1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.retries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &OpenAI{client: oai.NewClient(reqOpts...), model: model, maxTokens: 80}, nil
}

func (o *OpenAI) Generate(ctx context.Context, c Context) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, o.buildParams(c))
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (o *OpenAI) buildParams(c Context) oai.ChatCompletionNewParams {
	return oai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt(c.Persona)),
			oai.UserMessage(userPrompt(c)),
		},
		MaxCompletionTokens: param.NewOpt(o.maxTokens),
		Temperature:         param.NewOpt(0.9),
	}
}

func systemPrompt(persona string) string {
	if persona == "" {
		persona = "an upbeat radio DJ"
	}
	return "You are the host of a music quiz, speaking as " + persona +
		". Reply with one short sentence of at most 20 words. Never reveal an answer before the player responds."
}

func userPrompt(c Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "moment: %s\n", c.Moment)
	if c.PlayerName != "" {
		fmt.Fprintf(&b, "player: %s\n", c.PlayerName)
	}
	if c.PlaylistName != "" {
		fmt.Fprintf(&b, "playlist: %s\n", c.PlaylistName)
	}
	fmt.Fprintf(&b, "question: %d of %d\n", c.QuestionIndex+1, c.QuestionCount)
	switch c.Moment {
	case MomentAnswer:
		fmt.Fprintf(&b, "song: %s by %s\n", c.Title, c.Artist)
		if c.TimedOut {
			b.WriteString("result: ran out of time\n")
		} else {
			fmt.Fprintf(&b, "result: %s, %d points, streak %d\n", c.Outcome, c.Points, c.Streak)
		}
	case MomentSessionSummary:
		fmt.Fprintf(&b, "session total: %d points, level ups: %d\n", c.Total, c.LevelUps)
	default:
		fmt.Fprintf(&b, "score so far: %d\n", c.Total)
	}
	return b.String()
}
