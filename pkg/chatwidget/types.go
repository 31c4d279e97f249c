// Package chatwidget is the client-side core of the site's live-chat widget: it keeps
// an anonymous session id, loads or creates the session's conversation, follows new
// messages over a realtime channel and relays visitor messages to the AI endpoint.
package chatwidget

import (
	"context"

	"github.com/northbeam-digital/site/backend/internal/model/chat"
)

type (
	Message      = chat.Message
	Conversation = chat.Conversation
	Turn         = chat.Turn
)

// ConversationStore is the datastore contract the controller needs.
type ConversationStore interface {
	// FindConversationBySession returns nil when the session has no conversation.
	FindConversationBySession(ctx context.Context, sessionID string) (*Conversation, error)
	CreateConversation(ctx context.Context, sessionID string) (Conversation, error)
	// FetchMessages returns messages ordered by CreatedAt ascending.
	FetchMessages(ctx context.Context, conversationID string) ([]Message, error)
	AppendMessage(ctx context.Context, conversationID, content string, isBot bool) (Message, error)
}

// Subscriber opens realtime channels scoped to one conversation.
type Subscriber interface {
	// Subscribe calls onInsert for each inserted message. Delivery is at-least-once.
	Subscribe(ctx context.Context, conversationID string, onInsert func(Message)) (Subscription, error)
}

// Subscription is an open realtime channel.
type Subscription interface {
	// Unsubscribe releases the channel without waiting for a callback already in
	// progress; no new onInsert call starts once it returns. It is safe to call from
	// inside onInsert.
	Unsubscribe() error
	// Done is closed when the channel stops, either by Unsubscribe or by a failure.
	Done() <-chan struct{}
	// Err reports why the channel stopped. It is nil after Unsubscribe and only
	// meaningful once Done is closed.
	Err() error
}

// Responder turns a visitor message plus prior turns into a single reply.
type Responder interface {
	GetReply(ctx context.Context, userMessage string, history []Turn) (string, error)
}

type sessionKey struct{}

// ContextWithSession attaches the session id that scopes datastore access.
func ContextWithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFromContext returns the session id set by ContextWithSession.
func SessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
