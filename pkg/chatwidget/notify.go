package chatwidget

import "errors"

// Notification is a non-fatal, user-visible problem (a toast in the browser widget).
type Notification struct {
	Title   string
	Message string
	Err     error
}

// Notifier surfaces notifications to the visitor.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// notificationFor picks the visitor-facing wording for err.
func notificationFor(err error) Notification {
	switch {
	case errors.Is(err, ErrAIGateway):
		return Notification{Title: "Assistant unavailable", Message: "Sorry, I couldn't process that. Please try again.", Err: err}
	case errors.Is(err, ErrStoreWrite):
		return Notification{Title: "Message not sent", Message: "We couldn't save your message. Please try again.", Err: err}
	case errors.Is(err, ErrStoreRead):
		return unavailable(err)
	case errors.Is(err, ErrSubscription):
		return Notification{Title: "Live updates paused", Message: "New messages from other tabs won't appear automatically.", Err: err}
	default:
		return Notification{Title: "Something went wrong", Message: err.Error(), Err: err}
	}
}

// unavailable is the wording for a chat that could not be loaded or started.
func unavailable(err error) Notification {
	return Notification{Title: "Chat unavailable", Message: "We couldn't load the conversation. Please try again later.", Err: err}
}
