package store

import (
	"context"
	"errors"

	"github.com/northbeam-digital/site/backend/internal/model/chat"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrUnsupportedDriver    = errors.New("unsupported store driver")
)

// Store persists conversations and their messages.
//
// Implementations must guarantee at most one conversation per session id:
// CreateConversation returns the existing row when the session already owns one.
type Store interface {
	// FindConversationBySession returns nil when the session has no conversation yet.
	FindConversationBySession(ctx context.Context, sessionID string) (*chat.Conversation, error)
	// CreateConversation inserts a conversation for the session. created is false when
	// a concurrent writer (or an earlier call) already owned the slot.
	CreateConversation(ctx context.Context, sessionID string) (conv chat.Conversation, created bool, err error)
	GetConversation(ctx context.Context, id string) (chat.Conversation, error)
	// CreateMessage assigns id and timestamp and returns the stored row.
	CreateMessage(ctx context.Context, conversationID, content string, isBot bool) (chat.Message, error)
	// ListMessages returns messages ordered oldest first.
	ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error)
	Close() error
}
