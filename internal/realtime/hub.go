package realtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/northbeam-digital/site/backend/internal/model/chat"
)

const defaultBuffer = 32

// Hub fans out message inserts to subscribers of the owning conversation.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	logger *zap.Logger
}

// NewHub creates a hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger.Named("realtime"),
	}
}

// Subscription receives inserts for one conversation until Close is called.
type Subscription struct {
	ConversationID string

	hub    *Hub
	events chan chat.Message
	once   sync.Once
}

// Events returns the insert stream. It is closed by Close.
func (s *Subscription) Events() <-chan chat.Message {
	return s.events
}

// Close detaches the subscription from the hub. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Subscribe registers a listener for inserts in conversationID.
func (h *Hub) Subscribe(conversationID string) *Subscription {
	sub := &Subscription{
		ConversationID: conversationID,
		hub:            h,
		events:         make(chan chat.Message, h.buffer),
	}

	h.mu.Lock()
	set, ok := h.subs[conversationID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[conversationID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("subscribed", zap.String("conversation", conversationID))
	return sub
}

// Publish delivers msg to every subscriber of its conversation. Subscribers whose
// buffer is full miss the event; clients recover on their next fetch.
func (h *Hub) Publish(msg chat.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[msg.ConversationID] {
		select {
		case sub.events <- msg:
		default:
			h.logger.Warn("dropping insert for slow subscriber",
				zap.String("conversation", msg.ConversationID),
				zap.String("message", msg.ID))
		}
	}
}

// Subscribers reports how many listeners conversationID currently has.
func (h *Hub) Subscribers(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[conversationID])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.subs[sub.ConversationID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.ConversationID)
		}
	}
	close(sub.events)
	h.logger.Debug("unsubscribed", zap.String("conversation", sub.ConversationID))
}
