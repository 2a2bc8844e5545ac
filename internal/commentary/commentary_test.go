package commentary

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type stubGenerator struct {
	line  string
	err   error
	delay time.Duration
}

func (s stubGenerator) Generate(ctx context.Context, _ Context) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.line, s.err
}

func TestNarratorWithoutProviderFallsBack(t *testing.T) {
	n := NewNarrator(nil, time.Second)
	c := Context{Moment: MomentAnswer, Outcome: "full", Points: 20}
	line, fallback := n.Line(context.Background(), c)
	if !fallback || line != Fallback(c) {
		t.Fatalf("expected fallback line, got %q (fallback=%v)", line, fallback)
	}
}

func TestNarratorFallsBackOnError(t *testing.T) {
	n := NewNarrator(stubGenerator{err: errors.New("boom")}, time.Second)
	c := Context{Moment: MomentSessionSummary, Total: 70}
	line, fallback := n.Line(context.Background(), c)
	if !fallback || !strings.Contains(line, "70 points") {
		t.Fatalf("expected summary fallback, got %q", line)
	}
}

func TestNarratorFallsBackOnTimeout(t *testing.T) {
	n := NewNarrator(stubGenerator{line: "too late", delay: time.Second}, 20*time.Millisecond)
	start := time.Now()
	_, fallback := n.Line(context.Background(), Context{Moment: MomentQuestionStart})
	if !fallback {
		t.Fatalf("expected fallback after timeout")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("narrator blocked past its timeout")
	}
}

func TestNarratorUsesGeneratedLine(t *testing.T) {
	n := NewNarrator(stubGenerator{line: "What a pick!"}, time.Second)
	line, fallback := n.Line(context.Background(), Context{Moment: MomentAnswer})
	if fallback || line != "What a pick!" {
		t.Fatalf("expected generated line, got %q", line)
	}
}

func TestFallbackIsContextAppropriate(t *testing.T) {
	cases := []struct {
		c    Context
		want string
	}{
		{Context{Moment: MomentQuestionStart, QuestionIndex: 0, PlayerName: "Ana"}, "Welcome, Ana"},
		{Context{Moment: MomentQuestionStart, QuestionIndex: 4, QuestionCount: 5}, "Last one"},
		{Context{Moment: MomentAnswer, TimedOut: true}, "Time's up"},
		{Context{Moment: MomentAnswer, Outcome: "full", Streak: 4}, "4 in a row"},
		{Context{Moment: MomentAnswer, Outcome: "partial", Points: 10}, "10 points"},
		{Context{Moment: MomentAnswer, Outcome: "none", Artist: "Blur", Title: "Song 2"}, "Song 2 by Blur"},
		{Context{Moment: MomentSessionSummary, Total: 90, LevelUps: 1}, "level up"},
	}
	for _, tc := range cases {
		got := Fallback(tc.c)
		if !strings.Contains(got, tc.want) {
			t.Fatalf("fallback for %+v = %q, want it to contain %q", tc.c, got, tc.want)
		}
		if Fallback(tc.c) != got {
			t.Fatalf("fallback is not deterministic for %+v", tc.c)
		}
	}
}

func TestOpenAIGenerate(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "  Nailed it, keep going!  "}}]
		}`)
	}))
	defer srv.Close()

	gen, err := NewOpenAI("test-key", "", WithBaseURL(srv.URL+"/"), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	line, err := gen.Generate(context.Background(), Context{Moment: MomentAnswer, Outcome: "full", Artist: "Blur", Title: "Song 2", Persona: "a grumpy critic"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if line != "Nailed it, keep going!" {
		t.Fatalf("unexpected line %q", line)
	}
	if gotBody["model"] != defaultModel {
		t.Fatalf("expected default model, got %v", gotBody["model"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system and user messages, got %v", gotBody["messages"])
	}
	system, _ := msgs[0].(map[string]any)
	if content, _ := system["content"].(string); !strings.Contains(content, "a grumpy critic") {
		t.Fatalf("persona missing from system prompt: %v", system["content"])
	}
}

func TestOpenAIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error": {"message": "bad request", "type": "invalid_request_error"}}`)
	}))
	defer srv.Close()

	gen, err := NewOpenAI("test-key", "gpt-4o-mini", WithBaseURL(srv.URL+"/"), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := gen.Generate(context.Background(), Context{Moment: MomentQuestionStart}); err == nil {
		t.Fatalf("expected error from 400 response")
	}

	line, fallback := NewNarrator(gen, time.Second).Line(context.Background(), Context{Moment: MomentQuestionStart})
	if !fallback || line == "" {
		t.Fatalf("expected narrator fallback, got %q", line)
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI("", "gpt-4o-mini"); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
