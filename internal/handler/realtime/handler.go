package realtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/disagreement-ai/mediation/backend/internal/logging"
	"github.com/disagreement-ai/mediation/backend/internal/model/dispute"
	"github.com/disagreement-ai/mediation/backend/internal/realtime"
	"github.com/disagreement-ai/mediation/backend/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// SessionLookup checks that a disagreement exists before a client subscribes.
type SessionLookup interface {
	GetSession(ctx context.Context, sessionID string) (*dispute.Session, error)
}

// Handler exposes the realtime rooms over WebSocket and Server-Sent Events.
type Handler struct {
	hub      *realtime.Hub
	sessions SessionLookup
	log      *logging.Logger
}

// New creates the realtime handler.
func New(hub *realtime.Hub, sessions SessionLookup, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{hub: hub, sessions: sessions, log: log.Sub("realtime-http")}
}

// RegisterRoutes mounts the WebSocket and event-stream endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
	r.Get("/disagreements/{sessionID}/events", h.handleEventStream)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	if err := h.hub.ServeWS(w, r, sessionID); err != nil {
		h.log.Warn().Err(err).Str("session", sessionID).Msg("websocket connection failed")
	}
}

func (h *Handler) handleEventStream(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := h.hub.Subscribe(sessionID)
	defer h.hub.Unsubscribe(sub)

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEComment(w, flusher, "connected"); err != nil {
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case data := <-sub.Frames():
			if err := utils.SendSSEData(w, flusher, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}

func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionID is required")
		return "", false
	}

	if _, err := h.sessions.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, dispute.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "disagreement not found")
		} else {
			h.log.Error().Err(err).Str("session", sessionID).Msg("session lookup failed")
			utils.RespondError(w, http.StatusInternalServerError, "internal error")
		}
		return "", false
	}
	return sessionID, true
}
