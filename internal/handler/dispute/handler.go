package dispute

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/disagreement-ai/mediation/backend/internal/logging"
	"github.com/disagreement-ai/mediation/backend/internal/model/dispute"
	"github.com/disagreement-ai/mediation/backend/internal/service/mediation"
	"github.com/disagreement-ai/mediation/backend/pkg/utils"
)

const defaultListLimit = 50

// Handler serves the disagreement REST endpoints.
type Handler struct {
	svc *mediation.Service
	log *logging.Logger
}

// New creates the disagreement handler.
func New(svc *mediation.Service, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{svc: svc, log: log.Sub("http")}
}

// RegisterRoutes mounts the disagreement routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/disagreements", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Post("/participants", h.handleJoin)
			r.Post("/participants/{userId}/approve", h.handleApprove)
			r.Post("/messages", h.handlePostMessage)
			r.Post("/agree", h.handleAgree)
			r.Post("/disagree", h.handleDisagree)
			r.Post("/mediate", h.handleMediate)
		})
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		CreatorID   string `json:"creatorId"`
		CreatorName string `json:"creatorName"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.svc.CreateSession(r.Context(), mediation.CreateInput{
		Title:       payload.Title,
		Description: payload.Description,
		CreatorID:   payload.CreatorID,
		CreatorName: payload.CreatorName,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	sessions, err := h.svc.ListSessions(r.Context(), limit)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"disagreements": sessions})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID      string `json:"userId"`
		DisplayName string `json:"displayName"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.UserID) == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId is required")
		return
	}

	out, err := h.svc.JoinSession(r.Context(), chi.URLParam(r, "id"), payload.UserID, payload.DisplayName)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, out.Session)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ApproveParticipant(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, out.Session)
}

func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SenderID string `json:"senderId"`
		Text     string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := h.svc.PostMessage(r.Context(), chi.URLParam(r, "id"), payload.SenderID, payload.Text)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, out.Message)
}

type voteRequest struct {
	ParticipantID string `json:"participantId"`
}

func (h *Handler) decodeVote(w http.ResponseWriter, r *http.Request) (string, bool) {
	var payload voteRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	if strings.TrimSpace(payload.ParticipantID) == "" {
		utils.RespondError(w, http.StatusBadRequest, "participantId is required")
		return "", false
	}
	return payload.ParticipantID, true
}

func (h *Handler) handleAgree(w http.ResponseWriter, r *http.Request) {
	participantID, ok := h.decodeVote(w, r)
	if !ok {
		return
	}

	out, err := h.svc.Agree(r.Context(), chi.URLParam(r, "id"), participantID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, out.Session)
}

func (h *Handler) handleDisagree(w http.ResponseWriter, r *http.Request) {
	participantID, ok := h.decodeVote(w, r)
	if !ok {
		return
	}

	out, err := h.svc.Disagree(r.Context(), chi.URLParam(r, "id"), participantID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, out.Session)
}

func (h *Handler) handleMediate(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.MediatorTurn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, out.Session)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		utils.RespondError(w, status, "internal error")
		return
	}
	utils.RespondError(w, status, err.Error())
}

// StatusFor maps service errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, dispute.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispute.ErrNotAParticipant), errors.Is(err, dispute.ErrParticipantInactive):
		return http.StatusForbidden
	case errors.Is(err, dispute.ErrSessionResolved),
		errors.Is(err, mediation.ErrConcurrentUpdate),
		errors.Is(err, dispute.ErrAlreadyParticipant),
		errors.Is(err, dispute.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, dispute.ErrEmptyMessage),
		errors.Is(err, dispute.ErrTitleRequired),
		errors.Is(err, dispute.ErrCreatorRequired),
		errors.Is(err, dispute.ErrReservedUserID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
