package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/parley/backend/internal/middleware"
	chatService "github.com/zhouzirui/parley/backend/internal/service/chat"
	"github.com/zhouzirui/parley/backend/internal/service/conversation"
	"github.com/zhouzirui/parley/backend/internal/service/ttscache"
	sessionModel "github.com/zhouzirui/parley/backend/internal/session"
	"github.com/zhouzirui/parley/backend/pkg/utils"
)

// Handler exposes sessions and their interactions over HTTP and websocket.
type Handler struct {
	chatSvc     *chatService.Service
	audioFormat string
	upgrader    websocket.Upgrader
}

// New creates a session handler. audioFormat is the container the synthesizer
// produces and decides the Content-Type of audio responses.
func New(chatSvc *chatService.Service, audioFormat string) *Handler {
	if audioFormat == "" {
		audioFormat = "mp3"
	}
	return &Handler{
		chatSvc:     chatSvc,
		audioFormat: audioFormat,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions", h.handleListSessions)
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Delete("/sessions/{sessionID}", h.handleDeleteSession)
	r.Patch("/sessions/{sessionID}/config", h.handleConfigure)
	r.Post("/sessions/{sessionID}/input", h.handleInput)
	r.Post("/sessions/{sessionID}/transcribe", h.handleTranscribe)
	r.Post("/sessions/{sessionID}/voice", h.handleVoice)
	r.Get("/sessions/{sessionID}/turns/{index}/audio", h.handleTurnAudio)
	r.Get("/sessions/{sessionID}/ws", h.handleWebSocket)
}

type createSessionRequest struct {
	Personality string `json:"personality"`
	Language    string `json:"language"`
	Voice       string `json:"voice"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload createSessionRequest
	if r.ContentLength != 0 {
		if err := utils.DecodeJSON(r, &payload); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	snap, err := h.chatSvc.CreateSession(payload.Personality, payload.Language, payload.Voice)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, snap)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.ListSessions())
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.chatSvc.GetSession(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteSession(chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var update chatService.ConfigUpdate
	if err := utils.DecodeJSON(r, &update); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.chatSvc.Configure(r.Context(), chi.URLParam(r, "sessionID"), update)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

type inputRequest struct {
	Text string `json:"text"`
}

func (h *Handler) handleInput(w http.ResponseWriter, r *http.Request) {
	var payload inputRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := h.chatSvc.HandleInput(r.Context(), chi.URLParam(r, "sessionID"), payload.Text)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, outcomeStatus(outcome), outcome)
}

func outcomeStatus(outcome *chatService.Outcome) int {
	if outcome != nil && outcome.Kind == chatService.OutcomeRejected {
		return http.StatusUnprocessableEntity
	}
	return http.StatusOK
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, sessionModel.ErrUnknownPersona),
		errors.Is(err, sessionModel.ErrUnknownLanguage),
		errors.Is(err, sessionModel.ErrUnknownVoice),
		errors.Is(err, ttscache.ErrTurnNotFound),
		errors.Is(err, ttscache.ErrNotAssistant):
		return http.StatusBadRequest
	case errors.Is(err, conversation.ErrEmptyMessage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, chatService.ErrSpeechDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		middleware.Logger(r).Error().Err(err).Int("status", status).Msg("request failed")
		message = strings.ToLower(http.StatusText(status))
	}
	utils.RespondError(w, status, message)
}
