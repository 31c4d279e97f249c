package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/northbeam-digital/site/backend/internal/model/chat"
)

// MemoryStore keeps everything in process memory. Suitable for development and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	bySession     map[string]string
	messages      map[string][]chat.Message
	now           func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]chat.Conversation),
		bySession:     make(map[string]string),
		messages:      make(map[string][]chat.Message),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) FindConversationBySession(_ context.Context, sessionID string) (*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySession[sessionID]
	if !ok {
		return nil, nil
	}
	conv := s.conversations[id]
	return &conv, nil
}

func (s *MemoryStore) CreateConversation(_ context.Context, sessionID string) (chat.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.bySession[sessionID]; ok {
		return s.conversations[id], false, nil
	}

	conv := chat.Conversation{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		CreatedAt: s.now(),
	}
	s.conversations[conv.ID] = conv
	s.bySession[sessionID] = conv.ID
	s.messages[conv.ID] = make([]chat.Message, 0, 16)
	return conv, true, nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return chat.Conversation{}, ErrConversationNotFound
	}
	return conv, nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, conversationID, content string, isBot bool) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return chat.Message{}, ErrConversationNotFound
	}

	// createdAt is the ordering key, keep it strictly increasing per conversation.
	createdAt := s.now()
	existing := s.messages[conversationID]
	if n := len(existing); n > 0 && !createdAt.After(existing[n-1].CreatedAt) {
		createdAt = existing[n-1].CreatedAt.Add(time.Microsecond)
	}

	msg := chat.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Content:        content,
		IsBot:          isBot,
		CreatedAt:      createdAt,
	}
	s.messages[conversationID] = append(existing, msg)
	return msg, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

func (s *MemoryStore) Close() error { return nil }
