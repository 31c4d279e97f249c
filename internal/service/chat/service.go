package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/northbeam-digital/site/backend/internal/model/chat"
	"github.com/northbeam-digital/site/backend/internal/store"
)

var (
	ErrSessionRequired      = errors.New("session id is required")
	ErrContentRequired      = errors.New("message content is required")
	ErrConversationNotFound = errors.New("conversation not found")
)

// Publisher receives every stored message for realtime fan-out.
type Publisher interface {
	Publish(msg chat.Message)
}

// Service encapsulates conversation state management for anonymous sessions.
type Service struct {
	store     store.Store
	publisher Publisher
	logger    *zap.Logger
}

// NewService wires persistence with realtime notification.
func NewService(st store.Store, publisher Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     st,
		publisher: publisher,
		logger:    logger.Named("chat"),
	}
}

// FindConversation returns the session's conversation, or nil when it has none.
func (s *Service) FindConversation(ctx context.Context, sessionID string) (*chat.Conversation, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionRequired
	}
	return s.store.FindConversationBySession(ctx, sessionID)
}

// CreateConversation provisions the session's conversation. When the session already
// owns one, that row is returned with created=false.
func (s *Service) CreateConversation(ctx context.Context, sessionID string) (chat.Conversation, bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return chat.Conversation{}, false, ErrSessionRequired
	}

	conv, created, err := s.store.CreateConversation(ctx, sessionID)
	if err != nil {
		return chat.Conversation{}, false, fmt.Errorf("create conversation: %w", err)
	}
	if created {
		s.logger.Info("conversation created", zap.String("conversation", conv.ID))
	}
	return conv, created, nil
}

// GetConversation loads a conversation and checks that sessionID owns it. Foreign
// conversations are reported as not found.
func (s *Service) GetConversation(ctx context.Context, sessionID, conversationID string) (chat.Conversation, error) {
	if strings.TrimSpace(sessionID) == "" {
		return chat.Conversation{}, ErrSessionRequired
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrConversationNotFound) {
		return chat.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return chat.Conversation{}, err
	}
	if conv.SessionID != sessionID {
		s.logger.Warn("session attempted to access foreign conversation",
			zap.String("conversation", conversationID))
		return chat.Conversation{}, ErrConversationNotFound
	}
	return conv, nil
}

// LoadTranscript returns the conversation's messages oldest first.
func (s *Service) LoadTranscript(ctx context.Context, sessionID, conversationID string) ([]chat.Message, error) {
	if _, err := s.GetConversation(ctx, sessionID, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID)
}

// SaveMessage appends a message and notifies realtime subscribers after the write commits.
func (s *Service) SaveMessage(ctx context.Context, sessionID, conversationID, content string, isBot bool) (chat.Message, error) {
	if strings.TrimSpace(content) == "" {
		return chat.Message{}, ErrContentRequired
	}
	if _, err := s.GetConversation(ctx, sessionID, conversationID); err != nil {
		return chat.Message{}, err
	}

	msg, err := s.store.CreateMessage(ctx, conversationID, content, isBot)
	if err != nil {
		return chat.Message{}, fmt.Errorf("save message: %w", err)
	}

	if s.publisher != nil {
		s.publisher.Publish(msg)
	}
	return msg, nil
}
