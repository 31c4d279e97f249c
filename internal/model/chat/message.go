package chat

import (
	"errors"
	"time"
)

// Roles used in AI conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrMissingID             = errors.New("message id is empty")
	ErrMissingConversationID = errors.New("message conversation id is empty")
	ErrMissingTimestamp      = errors.New("message createdAt is zero")
)

// Message is one utterance in a conversation. Rows are never mutated once stored.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Content        string    `json:"content"`
	IsBot          bool      `json:"isBot"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Validate reports whether the row carries the server-assigned fields.
func (m Message) Validate() error {
	switch {
	case m.ID == "":
		return ErrMissingID
	case m.ConversationID == "":
		return ErrMissingConversationID
	case m.CreatedAt.IsZero():
		return ErrMissingTimestamp
	}
	return nil
}

// Role maps the author flag onto the AI history role.
func (m Message) Role() string {
	if m.IsBot {
		return RoleAssistant
	}
	return RoleUser
}

// Turn is a single history entry sent to the completion endpoint.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History converts stored messages into completion turns, oldest first.
func History(messages []Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, Turn{Role: msg.Role(), Content: msg.Content})
	}
	return turns
}
