package chat

import (
	"errors"
	"time"
)

// Conversation is the single chat thread owned by an anonymous session.
type Conversation struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate reports whether the row carries the server-assigned fields.
func (c Conversation) Validate() error {
	if c.ID == "" {
		return errors.New("conversation id is empty")
	}
	if c.SessionID == "" {
		return errors.New("conversation session id is empty")
	}
	return nil
}
