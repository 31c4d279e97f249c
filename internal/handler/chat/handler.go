package chat

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/northbeam-digital/site/backend/internal/middleware"
	"github.com/northbeam-digital/site/backend/internal/model/chat"
	chatService "github.com/northbeam-digital/site/backend/internal/service/chat"
	"github.com/northbeam-digital/site/backend/pkg/utils"
)

// Handler exposes the conversation datastore over HTTP.
type Handler struct {
	chatSvc *chatService.Service
	logger  *zap.Logger
}

// New creates the datastore handler.
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc: chatSvc,
		logger:  logger.Named("datastore"),
	}
}

// RegisterRoutes registers the conversation and message routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/conversations", h.handleFindConversations)
	r.Post("/conversations", h.handleCreateConversation)
	r.Get("/conversations/{conversationID}/messages", h.handleListMessages)
	r.Post("/conversations/{conversationID}/messages", h.handleAppendMessage)
}

// handleFindConversations returns the caller's conversation as a 0 or 1 element list.
func (h *Handler) handleFindConversations(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionID(r.Context())
	if filter := strings.TrimSpace(r.URL.Query().Get("sessionId")); filter != "" && filter != sessionID {
		utils.RespondJSON(w, http.StatusOK, []chat.Conversation{})
		return
	}

	conv, err := h.chatSvc.FindConversation(r.Context(), sessionID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	result := []chat.Conversation{}
	if conv != nil {
		result = append(result, *conv)
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
	}

	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID := middleware.SessionID(r.Context())
	if payload.SessionID == "" {
		payload.SessionID = sessionID
	}
	if sessionID != "" && payload.SessionID != sessionID {
		utils.RespondError(w, http.StatusForbidden, "sessionId does not match the session header")
		return
	}

	conv, created, err := h.chatSvc.CreateConversation(r.Context(), payload.SessionID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	utils.RespondJSON(w, status, conv)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatSvc.LoadTranscript(r.Context(), middleware.SessionID(r.Context()), chi.URLParam(r, "conversationID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

func (h *Handler) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
		IsBot   bool   `json:"isBot"`
	}

	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.chatSvc.SaveMessage(r.Context(), middleware.SessionID(r.Context()), chi.URLParam(r, "conversationID"), payload.Content, payload.IsBot)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, msg)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionRequired):
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, chatService.ErrContentRequired):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrConversationNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("datastore request failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "datastore unavailable")
	}
}
