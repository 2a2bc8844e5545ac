package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"song-quiz-service/internal/app"
	"song-quiz-service/internal/domain"
	"song-quiz-service/internal/speech"
)

// maxAudioBytes bounds a transcription upload.
const maxAudioBytes = 10 << 20

// SessionCounter reports how many sessions are live. The Redis store counts
// every instance sharing the server.
type SessionCounter interface {
	Live(ctx context.Context) (int, error)
}

// API serves the REST endpoints next to the game socket.
type API struct {
	service     *app.GameService
	transcriber speech.Transcriber
	sessions    SessionCounter
}

// NewAPI returns the REST handlers. A nil transcriber answers 503; a nil
// counter leaves the live count out of /healthz.
func NewAPI(service *app.GameService, transcriber speech.Transcriber, sessions SessionCounter) *API {
	if transcriber == nil {
		transcriber = speech.Unavailable{}
	}
	return &API{service: service, transcriber: transcriber, sessions: sessions}
}

// Register mounts the REST routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", a.health)
	mux.HandleFunc("GET /progress/{profile}", a.progress)
	mux.HandleFunc("GET /playlists/{id}/stats", a.playlistStats)
	mux.HandleFunc("PUT /profile/{profile}", a.updateProfile)
	mux.HandleFunc("POST /transcribe", a.transcribe)
}

type healthReport struct {
	Status       string `json:"status"`
	LiveSessions *int   `json:"liveSessions,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if a.sessions == nil {
		writeJSON(w, http.StatusOK, healthReport{Status: "ok"})
		return
	}
	live, err := a.sessions.Live(r.Context())
	if err != nil {
		slog.Warn("health check could not count sessions", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, healthReport{Status: "degraded", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthReport{Status: "ok", LiveSessions: &live})
}

func (a *API) progress(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.Progress(r.Context(), r.PathValue("profile"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) playlistStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.service.PlaylistStats(r.Context(), r.URL.Query().Get("profile"), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	var p domain.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid profile payload", http.StatusBadRequest)
		return
	}
	if err := a.service.UpdateProfile(r.Context(), r.PathValue("profile"), p); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transcript struct {
	Text string `json:"text"`
}

func (a *API) transcribe(w http.ResponseWriter, r *http.Request) {
	text, err := a.transcriber.Transcribe(r.Context(), http.MaxBytesReader(w, r.Body, maxAudioBytes))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transcript{Text: text})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrProviderUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrPlaylistNotFound), errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}
