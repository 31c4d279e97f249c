package chatwidget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// fakeStore hands out conv-N and mN ids in insertion order.
type fakeStore struct {
	mu            sync.Mutex
	conversations map[string]Conversation
	messages      map[string][]Message
	nextConv      int
	nextMsg       int

	findErr   error
	createErr error
	fetchErr  error
	appendErr func(content string, isBot bool) error

	creates  int
	appends  int
	sessions []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]Conversation),
		messages:      make(map[string][]Message),
	}
}

func (s *fakeStore) FindConversationBySession(ctx context.Context, sessionID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, SessionFromContext(ctx))
	if s.findErr != nil {
		return nil, s.findErr
	}
	conv, ok := s.conversations[sessionID]
	if !ok {
		return nil, nil
	}
	return &conv, nil
}

func (s *fakeStore) CreateConversation(_ context.Context, sessionID string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return Conversation{}, s.createErr
	}
	s.creates++
	s.nextConv++
	conv := Conversation{
		ID:        fmt.Sprintf("conv-%d", s.nextConv),
		SessionID: sessionID,
		CreatedAt: baseTime,
	}
	s.conversations[sessionID] = conv
	return conv, nil
}

func (s *fakeStore) FetchMessages(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	out := make([]Message, len(s.messages[conversationID]))
	copy(out, s.messages[conversationID])
	return out, nil
}

func (s *fakeStore) AppendMessage(ctx context.Context, conversationID, content string, isBot bool) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, SessionFromContext(ctx))
	if s.appendErr != nil {
		if err := s.appendErr(content, isBot); err != nil {
			return Message{}, err
		}
	}
	s.appends++
	s.nextMsg++
	msg := Message{
		ID:             fmt.Sprintf("m%d", s.nextMsg),
		ConversationID: conversationID,
		Content:        content,
		IsBot:          isBot,
		CreatedAt:      baseTime.Add(time.Duration(s.nextMsg) * time.Second),
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return msg, nil
}

func (s *fakeStore) seed(sessionID string, contents ...string) Conversation {
	conv, _ := s.CreateConversation(context.Background(), sessionID)
	for _, content := range contents {
		_, _ = s.AppendMessage(context.Background(), conv.ID, content, false)
	}
	s.mu.Lock()
	s.creates = 0
	s.appends = 0
	s.mu.Unlock()
	return conv
}

func (s *fakeStore) counts() (creates, appends int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates, s.appends
}

type fakeSubscriber struct {
	mu   sync.Mutex
	err  error
	subs []*fakeSubscription

	// onSubscribe runs before the channel is handed back, like a write landing
	// while the websocket handshake is in flight.
	onSubscribe func(conversationID string)
}

func (f *fakeSubscriber) Subscribe(_ context.Context, conversationID string, onInsert func(Message)) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onSubscribe != nil {
		f.onSubscribe(conversationID)
	}
	if f.err != nil {
		return nil, f.err
	}
	sub := &fakeSubscription{
		conversationID: conversationID,
		onInsert:       onInsert,
		done:           make(chan struct{}),
	}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeSubscriber) last() *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

type fakeSubscription struct {
	conversationID string
	onInsert       func(Message)
	done           chan struct{}

	mu     sync.Mutex
	closed bool
	err    error
}

func (s *fakeSubscription) push(msg Message) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if !closed {
		s.onInsert(msg)
	}
}

func (s *fakeSubscription) drop(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.done)
}

func (s *fakeSubscription) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

func (s *fakeSubscription) unsubscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed && s.err == nil
}

func (s *fakeSubscription) Done() <-chan struct{} { return s.done }

func (s *fakeSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

type fakeResponder struct {
	mu      sync.Mutex
	reply   string
	err     error
	block   chan struct{}
	started chan struct{}
	calls   []responderCall
}

type responderCall struct {
	message string
	history []Turn
}

func (f *fakeResponder) GetReply(ctx context.Context, userMessage string, history []Turn) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, responderCall{message: userMessage, history: history})
	block, started := f.block, f.started
	reply, err := f.reply, f.err
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply, err
}

func (f *fakeResponder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recordingNotifier) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recordingNotifier) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.notes))
	copy(out, r.notes)
	return out
}

var errBoom = errors.New("boom")
