package realtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/northbeam-digital/site/backend/internal/middleware"
	"github.com/northbeam-digital/site/backend/internal/model/chat"
	realtimehub "github.com/northbeam-digital/site/backend/internal/realtime"
	chatservice "github.com/northbeam-digital/site/backend/internal/service/chat"
	"github.com/northbeam-digital/site/backend/pkg/utils"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// EventInsert is the only event type pushed to subscribers.
const EventInsert = "insert"

// Event is the envelope written for every inserted message row.
type Event struct {
	Type   string       `json:"type"`
	Table  string       `json:"table"`
	Record chat.Message `json:"record"`
}

// WebSocketHandler streams message inserts of one conversation to the widget.
type WebSocketHandler struct {
	chatSvc  *chatservice.Service
	hub      *realtimehub.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler creates the realtime handler.
func NewWebSocketHandler(chatSvc *chatservice.Service, hub *realtimehub.Hub, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		chatSvc: chatSvc,
		hub:     hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.Named("websocket"),
	}
}

// RegisterRoutes registers the websocket route.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/realtime/conversations/{conversationID}", h.handleWebSocket)
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	sessionID := middleware.SessionID(r.Context())

	if _, err := h.chatSvc.GetConversation(r.Context(), sessionID, conversationID); err != nil {
		switch {
		case errors.Is(err, chatservice.ErrSessionRequired):
			utils.RespondError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, chatservice.ErrConversationNotFound):
			utils.RespondError(w, http.StatusNotFound, err.Error())
		default:
			h.logger.Error("conversation lookup failed", zap.Error(err))
			utils.RespondError(w, http.StatusInternalServerError, "datastore unavailable")
		}
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(conversationID)
	defer sub.Close()

	h.logger.Info("subscriber connected", zap.String("conversation", conversationID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.readLoop(conn, cancel)
	h.writeLoop(ctx, conn, sub)

	h.logger.Info("subscriber disconnected", zap.String("conversation", conversationID))
}

// readLoop drains control frames so pongs and close frames are processed.
func (h *WebSocketHandler) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *WebSocketHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *realtimehub.Subscription) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Events():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(Event{Type: EventInsert, Table: "messages", Record: msg}); err != nil {
				h.logger.Warn("write event failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
