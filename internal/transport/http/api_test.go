package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"song-quiz-service/internal/app"
	"song-quiz-service/internal/domain"
)

type fakeTranscriber struct{ text string }

func (f fakeTranscriber) Transcribe(_ context.Context, audio io.Reader) (string, error) {
	if _, err := io.ReadAll(audio); err != nil {
		return "", err
	}
	return f.text, nil
}

func newAPIServer(t *testing.T, api *API) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	api.Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestProfileAndProgress(t *testing.T) {
	service, _ := newTestService(t)
	server := newAPIServer(t, NewAPI(service, nil, nil))

	resp := do(t, http.MethodPut, server.URL+"/profile/p1", `{"displayName":"Alice","persona":"radio host"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, server.URL+"/progress/p1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var report app.ProgressReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.DisplayName != "Alice" || report.Persona != "radio host" {
		t.Fatalf("unexpected profile in report %+v", report)
	}
	if report.Player.Level != 1 || report.Player.Experience != 0 {
		t.Fatalf("expected a fresh player ladder, got %+v", report.Player)
	}
}

func TestPlaylistStatsAfterSession(t *testing.T) {
	service, _ := newTestService(t)
	server := newAPIServer(t, NewAPI(service, nil, nil))

	ctx := context.Background()
	s, err := service.StartSession(ctx, app.StartRequest{PlaylistID: "90s", ProfileID: "p1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, q := range []string{"q1", "q2", "q3"} {
		if _, err := service.SubmitAnswer(ctx, s.ID(), domain.AnswerSubmission{QuestionID: q, OptionID: "a"}); err != nil {
			t.Fatalf("answer %s: %v", q, err)
		}
	}

	resp := do(t, http.MethodGet, server.URL+"/playlists/90s/stats?profile=p1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var stats domain.PlaylistStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TimesPlayed != 1 || len(stats.CompletedSongs) != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestTranscribe(t *testing.T) {
	service, _ := newTestService(t)

	unconfigured := newAPIServer(t, NewAPI(service, nil, nil))
	resp := do(t, http.MethodPost, unconfigured.URL+"/transcribe", "RIFF")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a transcriber, got %d", resp.StatusCode)
	}

	configured := newAPIServer(t, NewAPI(service, fakeTranscriber{text: "blur song two"}, nil))
	resp = do(t, http.MethodPost, configured.URL+"/transcribe", "RIFF")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out transcript
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	if out.Text != "blur song two" {
		t.Fatalf("unexpected transcript %q", out.Text)
	}
}

func TestBadProfilePayload(t *testing.T) {
	service, _ := newTestService(t)
	server := newAPIServer(t, NewAPI(service, nil, nil))

	resp := do(t, http.MethodPut, server.URL+"/profile/p1", "{")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

type brokenCounter struct{}

func (brokenCounter) Live(context.Context) (int, error) {
	return 0, errors.New("redis: connection refused")
}

func TestHealthReportsLiveSessions(t *testing.T) {
	service, sessions := newTestService(t)
	server := newAPIServer(t, NewAPI(service, nil, sessions))

	ctx := context.Background()
	s, err := service.StartSession(ctx, app.StartRequest{PlaylistID: "90s"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer service.Abandon(ctx, s.ID())

	resp := do(t, http.MethodGet, server.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var report healthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if report.Status != "ok" || report.LiveSessions == nil || *report.LiveSessions != 1 {
		t.Fatalf("expected one live session, got %+v", report)
	}

	degraded := newAPIServer(t, NewAPI(service, nil, brokenCounter{}))
	resp = do(t, http.MethodGet, degraded.URL+"/healthz", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when sessions cannot be counted, got %d", resp.StatusCode)
	}
}
