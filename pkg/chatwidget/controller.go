package chatwidget

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DefaultWelcomeMessage seeds every new (or empty) conversation.
const DefaultWelcomeMessage = "Hi there! Welcome to Northbeam Digital. How can we help you grow your business today?"

// State is the controller lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Options configures a Controller. Zero values are usable.
type Options struct {
	WelcomeMessage string
	Notifier       Notifier
	// OnChange runs after any visible state change. It is called without the
	// controller lock held and may call back into the controller.
	OnChange func()
	Logger   *zap.Logger
}

// Controller owns one visitor's chat session: the message list, the realtime
// subscription and the send pipeline. It is safe for concurrent use.
type Controller struct {
	sessions   *SessionIDStore
	store      ConversationStore
	subscriber Subscriber
	responder  Responder

	welcome  string
	notifier Notifier
	onChange func()
	logger   *zap.Logger

	mu             sync.Mutex
	state          State
	sessionID      string
	conversationID string
	messages       []Message
	seen           map[string]struct{}
	sending        bool
	open           bool
	sub            Subscription
	disposed       bool
}

// NewController wires the controller to its collaborators. subscriber may be nil, in
// which case the widget only sees messages it writes itself.
func NewController(sessions *SessionIDStore, store ConversationStore, subscriber Subscriber, responder Responder, opts Options) *Controller {
	if opts.WelcomeMessage == "" {
		opts.WelcomeMessage = DefaultWelcomeMessage
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Controller{
		sessions:   sessions,
		store:      store,
		subscriber: subscriber,
		responder:  responder,
		welcome:    opts.WelcomeMessage,
		notifier:   opts.Notifier,
		onChange:   opts.OnChange,
		logger:     opts.Logger.Named("chatwidget"),
		seen:       make(map[string]struct{}),
	}
}

// Init resolves the session's conversation, loads its history (seeding the welcome
// message when empty) and opens the realtime subscription. On a datastore failure the
// controller returns to the state it had before, so a first Init can be retried and a
// failed re-Init leaves a working chat untouched.
func (c *Controller) Init(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.disposed:
		c.mu.Unlock()
		return ErrDisposed
	case c.state == StateInitializing:
		c.mu.Unlock()
		return ErrInitInProgress
	}
	prev := c.state
	c.state = StateInitializing
	c.mu.Unlock()
	c.changed()

	sessionID := c.sessions.GetOrCreate()
	ctx = ContextWithSession(ctx, sessionID)

	conv, history, err := c.loadConversation(ctx, sessionID)
	if err != nil {
		c.mu.Lock()
		if !c.disposed {
			c.state = prev
		}
		c.mu.Unlock()
		c.notify("chat initialization failed", unavailable(err))
		c.changed()
		return err
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	var stale Subscription
	if c.conversationID != conv.ID {
		stale = c.sub
		c.sub = nil
		c.messages = nil
		c.seen = make(map[string]struct{})
	}
	c.sessionID = sessionID
	c.conversationID = conv.ID
	for _, m := range history {
		c.mergeLocked(m)
	}
	c.state = StateReady
	needSub := c.sub == nil && c.subscriber != nil
	c.mu.Unlock()

	if stale != nil {
		_ = stale.Unsubscribe()
	}
	c.logger.Info("chat ready",
		zap.String("conversation_id", conv.ID),
		zap.Int("messages", len(history)))
	c.changed()

	if needSub {
		c.subscribe(ctx, conv.ID)
	}
	return nil
}

func (c *Controller) loadConversation(ctx context.Context, sessionID string) (Conversation, []Message, error) {
	found, err := c.store.FindConversationBySession(ctx, sessionID)
	if err != nil {
		return Conversation{}, nil, storeError(OpRead, err)
	}

	var conv Conversation
	if found != nil {
		conv = *found
		history, err := c.store.FetchMessages(ctx, conv.ID)
		if err != nil {
			return Conversation{}, nil, storeError(OpRead, err)
		}
		if len(history) > 0 {
			return conv, history, nil
		}
	} else {
		conv, err = c.store.CreateConversation(ctx, sessionID)
		if err != nil {
			return Conversation{}, nil, storeError(OpWrite, err)
		}
	}

	welcome, err := c.store.AppendMessage(ctx, conv.ID, c.welcome, true)
	if err != nil {
		return Conversation{}, nil, storeError(OpWrite, err)
	}
	return conv, []Message{welcome}, nil
}

func (c *Controller) subscribe(ctx context.Context, conversationID string) {
	sub, err := c.subscriber.Subscribe(ctx, conversationID, c.receive)
	if err != nil {
		var se *SubscriptionError
		if !errors.As(err, &se) {
			err = &SubscriptionError{ConversationID: conversationID, Err: err}
		}
		c.fail("realtime subscription failed", err)
		return
	}

	c.mu.Lock()
	if c.disposed || c.conversationID != conversationID || c.sub != nil {
		c.mu.Unlock()
		_ = sub.Unsubscribe()
		return
	}
	c.sub = sub
	c.mu.Unlock()

	go c.watch(sub, conversationID)
	c.catchUp(ctx, conversationID)
}

// catchUp refetches the transcript once the subscription is live, picking up rows
// committed between the initial fetch and the subscription.
func (c *Controller) catchUp(ctx context.Context, conversationID string) {
	messages, err := c.store.FetchMessages(ctx, conversationID)
	if err != nil {
		c.logger.Warn("catch-up fetch failed", zap.Error(err))
		return
	}

	added := false
	for _, m := range messages {
		if err := m.Validate(); err != nil {
			continue
		}
		if c.apply(m) {
			added = true
		}
	}
	if added {
		c.changed()
	}
}

// watch reports a subscription that stops on its own.
func (c *Controller) watch(sub Subscription, conversationID string) {
	<-sub.Done()
	err := sub.Err()
	if err == nil {
		return
	}

	c.mu.Lock()
	current := c.sub == sub
	if current {
		c.sub = nil
	}
	c.mu.Unlock()

	if current {
		c.fail("realtime subscription dropped", &SubscriptionError{ConversationID: conversationID, Err: err})
	}
}

// receive merges a realtime insert.
func (c *Controller) receive(msg Message) {
	if err := msg.Validate(); err != nil {
		c.logger.Warn("dropping invalid realtime message", zap.Error(err))
		return
	}
	if c.apply(msg) {
		c.changed()
	}
}

// Send stores the visitor's message, asks the assistant for a reply and stores the
// reply. Only one Send runs at a time.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	switch {
	case c.disposed:
		c.mu.Unlock()
		return ErrDisposed
	case c.state != StateReady:
		c.mu.Unlock()
		return ErrNotReady
	case c.sending:
		c.mu.Unlock()
		return ErrSendInProgress
	}
	c.sending = true
	sessionID, conversationID := c.sessionID, c.conversationID
	c.mu.Unlock()
	c.changed()

	defer func() {
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
		c.changed()
	}()

	ctx = ContextWithSession(ctx, sessionID)

	userMsg, err := c.store.AppendMessage(ctx, conversationID, text, false)
	if err != nil {
		err = storeError(OpWrite, err)
		c.fail("saving visitor message failed", err)
		return err
	}

	history, ok := c.applyAndHistory(userMsg)
	if !ok {
		return ErrDisposed
	}
	c.changed()

	reply, err := c.responder.GetReply(ctx, text, history)
	if err != nil {
		err = gatewayError(err)
		c.fail("assistant reply failed", err)
		return err
	}

	botMsg, err := c.store.AppendMessage(ctx, conversationID, reply, true)
	if err != nil {
		err = storeError(OpWrite, err)
		c.fail("saving assistant reply failed", err)
		return err
	}
	if c.apply(botMsg) {
		c.changed()
	}
	return nil
}

// applyAndHistory merges msg and returns the history that precedes it.
func (c *Controller) applyAndHistory(msg Message) ([]Turn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed || msg.ConversationID != c.conversationID {
		return nil, false
	}
	c.mergeLocked(msg)

	history := make([]Turn, 0, len(c.messages))
	for _, m := range c.messages {
		if m.ID == msg.ID {
			continue
		}
		history = append(history, Turn{Role: m.Role(), Content: m.Content})
	}
	return history, true
}

// apply merges msg if it belongs to the current conversation. It reports whether the
// visible list changed.
func (c *Controller) apply(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed || msg.ConversationID != c.conversationID {
		return false
	}
	return c.mergeLocked(msg)
}

// mergeLocked inserts msg in CreatedAt order after any equal timestamps, skipping ids
// already present.
func (c *Controller) mergeLocked(msg Message) bool {
	if _, ok := c.seen[msg.ID]; ok {
		return false
	}
	c.seen[msg.ID] = struct{}{}

	i := sort.Search(len(c.messages), func(i int) bool {
		return c.messages[i].CreatedAt.After(msg.CreatedAt)
	})
	c.messages = append(c.messages, Message{})
	copy(c.messages[i+1:], c.messages[i:])
	c.messages[i] = msg
	return true
}

// Messages returns a copy of the visible list, oldest first.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Sending reports whether a Send is in flight.
func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Controller) Open()   { c.setOpen(true) }
func (c *Controller) Close()  { c.setOpen(false) }
func (c *Controller) Toggle() { c.setOpen(!c.IsOpen()) }

func (c *Controller) setOpen(open bool) {
	c.mu.Lock()
	changed := c.open != open
	c.open = open
	c.mu.Unlock()
	if changed {
		c.changed()
	}
}

// Dispose releases the realtime subscription. Results of calls still in flight are
// discarded. Dispose is idempotent.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Debug("unsubscribe failed", zap.Error(err))
		}
	}
}

func (c *Controller) fail(msg string, err error) {
	c.notify(msg, notificationFor(err))
}

func (c *Controller) notify(msg string, n Notification) {
	c.logger.Warn(msg, zap.Error(n.Err))

	c.mu.Lock()
	disposed := c.disposed
	c.mu.Unlock()
	if disposed || c.notifier == nil {
		return
	}
	c.notifier.Notify(n)
}

func (c *Controller) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}
