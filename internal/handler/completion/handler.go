package completion

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/northbeam-digital/site/backend/internal/model/chat"
	"github.com/northbeam-digital/site/backend/internal/service/ai"
	"github.com/northbeam-digital/site/backend/pkg/utils"
)

const maxMessageLength = 4000

// Request is the body accepted by the chat completion function.
type Request struct {
	Message             string      `json:"message"`
	ConversationHistory []chat.Turn `json:"conversationHistory"`
}

// Response carries the assistant reply.
type Response struct {
	Response string `json:"response"`
}

// Handler serves the chat completion function.
type Handler struct {
	responder ai.Responder
	logger    *zap.Logger
}

// New creates the completion handler. A nil responder answers 503.
func New(responder ai.Responder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{responder: responder, logger: logger.Named("completion")}
}

// RegisterRoutes registers the completion route. Extra middleware (rate limiting)
// wraps only this route.
func (h *Handler) RegisterRoutes(r chi.Router, middlewares ...func(http.Handler) http.Handler) {
	r.With(middlewares...).Post("/functions/chat-completion", h.handleCompletion)
}

func (h *Handler) handleCompletion(w http.ResponseWriter, r *http.Request) {
	if h.responder == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "chat completion unavailable")
		return
	}

	var req Request
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}
	if len(message) > maxMessageLength {
		utils.RespondError(w, http.StatusRequestEntityTooLarge, "message is too long")
		return
	}
	for _, turn := range req.ConversationHistory {
		if turn.Role != chat.RoleUser && turn.Role != chat.RoleAssistant {
			utils.RespondError(w, http.StatusBadRequest, "history role must be user or assistant")
			return
		}
	}

	reply, err := h.responder.Reply(r.Context(), message, req.ConversationHistory)
	if err != nil {
		h.logger.Error("completion failed", zap.Error(err), zap.Int("history", len(req.ConversationHistory)))
		utils.RespondError(w, http.StatusBadGateway, "failed to generate a response")
		return
	}

	utils.RespondJSON(w, http.StatusOK, Response{Response: reply})
}
