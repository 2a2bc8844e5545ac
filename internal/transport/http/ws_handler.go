package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"song-quiz-service/internal/app"
	"song-quiz-service/internal/domain"
)

type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type lifelinePayload struct {
	Lifeline string `json:"lifeline"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}

// ServeWS upgrades HTTP requests to websockets, starts a game session and
// relays its updates until the session ends or the client goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := app.StartRequest{
		PlaylistID: q.Get("playlistId"),
		ProfileID:  q.Get("profileId"),
	}
	if req.PlaylistID == "" {
		http.Error(w, "missing playlistId", http.StatusBadRequest)
		return
	}
	mode, err := domain.ParseMode(q.Get("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Mode = mode
	if raw := q.Get("lifelines"); raw != "" {
		if req.Lifelines, err = strconv.ParseBool(raw); err != nil {
			http.Error(w, "invalid lifelines flag", http.StatusBadRequest)
			return
		}
	}
	if raw := q.Get("floor"); raw != "" {
		if req.Floor, err = strconv.Atoi(raw); err != nil {
			http.Error(w, "invalid floor", http.StatusBadRequest)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	session, err := h.service.StartSession(r.Context(), req)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err.Error()))
		return
	}
	sessionID := session.ID()

	updates, cancel, err := h.service.Subscribe(r.Context(), sessionID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err.Error()))
		return
	}
	defer cancel()
	defer func() {
		if !session.Ended() {
			_ = h.service.Abandon(r.Context(), sessionID)
		}
	}()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only the writer goroutine touches the connection for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				slog.Debug("ws write error", "session", sessionID, "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: update.Type, Payload: update.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := h.handle(r, sessionID, inbound); err != nil {
			select {
			case send <- errorMessage(err.Error()):
			case <-writerDone:
			}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// handle applies one client message. Results reach the client through the
// session subscription; only failures are answered directly.
func (h *WSHandler) handle(r *http.Request, sessionID string, msg inboundMessage) error {
	ctx := r.Context()
	switch msg.Type {
	case "answer":
		var sub domain.AnswerSubmission
		if err := json.Unmarshal(msg.Payload, &sub); err != nil {
			return errors.New("invalid answer payload")
		}
		_, err := h.service.SubmitAnswer(ctx, sessionID, sub)
		return err
	case "lifeline":
		var payload lifelinePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return errors.New("invalid lifeline payload")
		}
		l, err := app.ParseLifeline(payload.Lifeline)
		if err != nil {
			return err
		}
		_, err = h.service.UseLifeline(ctx, sessionID, l)
		return err
	case "ack":
		return h.service.Acknowledge(ctx, sessionID)
	case "skip":
		return h.service.Skip(ctx, sessionID)
	case "dismiss":
		return h.service.Dismiss(ctx, sessionID)
	}
	return errors.New("unsupported message type")
}
