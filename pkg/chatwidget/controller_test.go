package chatwidget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	storage    *MemoryStorage
	store      *fakeStore
	subscriber *fakeSubscriber
	responder  *fakeResponder
	notifier   *recordingNotifier
	ctrl       *Controller
}

func newHarness(t *testing.T, sessionID string) *harness {
	t.Helper()

	h := &harness{
		storage:    NewMemoryStorage(),
		store:      newFakeStore(),
		subscriber: &fakeSubscriber{},
		responder:  &fakeResponder{reply: "We offer SEO, PPC, ..."},
		notifier:   &recordingNotifier{},
	}
	if sessionID != "" {
		require.NoError(t, h.storage.Set(SessionStorageKey, sessionID))
	}
	h.ctrl = NewController(NewSessionIDStore(h.storage, nil), h.store, h.subscriber, h.responder, Options{
		Notifier: h.notifier,
	})
	t.Cleanup(h.ctrl.Dispose)
	return h
}

func ids(messages []Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}

func TestInitFreshSessionCreatesConversationAndWelcome(t *testing.T) {
	h := newHarness(t, "abc-123")

	require.NoError(t, h.ctrl.Init(context.Background()))

	creates, appends := h.store.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, appends)
	assert.Equal(t, StateReady, h.ctrl.State())
	assert.Equal(t, "conv-1", h.ctrl.ConversationID())
	assert.Equal(t, "abc-123", h.ctrl.SessionID())

	messages := h.ctrl.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "m1", messages[0].ID)
	assert.True(t, messages[0].IsBot)
	assert.Equal(t, DefaultWelcomeMessage, messages[0].Content)

	sub := h.subscriber.last()
	require.NotNil(t, sub)
	assert.Equal(t, "conv-1", sub.conversationID)
	assert.Empty(t, h.notifier.all())
}

func TestInitExistingConversationSkipsWelcome(t *testing.T) {
	h := newHarness(t, "abc-123")
	h.store.seed("abc-123", "hello", "any news?")

	require.NoError(t, h.ctrl.Init(context.Background()))

	creates, appends := h.store.counts()
	assert.Zero(t, creates)
	assert.Zero(t, appends)
	assert.Equal(t, []string{"m1", "m2"}, ids(h.ctrl.Messages()))
}

func TestInitExistingEmptyConversationSeedsWelcome(t *testing.T) {
	h := newHarness(t, "abc-123")
	h.store.seed("abc-123")

	require.NoError(t, h.ctrl.Init(context.Background()))

	creates, appends := h.store.counts()
	assert.Zero(t, creates)
	assert.Equal(t, 1, appends)

	messages := h.ctrl.Messages()
	require.Len(t, messages, 1)
	assert.True(t, messages[0].IsBot)
}

func TestInitGeneratesAndPersistsSessionID(t *testing.T) {
	h := newHarness(t, "")

	require.NoError(t, h.ctrl.Init(context.Background()))

	stored, ok, err := h.storage.Get(SessionStorageKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stored, h.ctrl.SessionID())
	for _, s := range h.store.sessions {
		assert.Equal(t, stored, s)
	}
}

func TestInitStoreFailureReturnsToUninitialized(t *testing.T) {
	h := newHarness(t, "abc-123")
	h.store.findErr = errBoom

	err := h.ctrl.Init(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreRead)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateUninitialized, h.ctrl.State())
	require.Len(t, h.notifier.all(), 1)
	assert.Nil(t, h.subscriber.last())

	h.store.findErr = nil
	require.NoError(t, h.ctrl.Init(context.Background()))
	assert.Equal(t, StateReady, h.ctrl.State())
	assert.Len(t, h.ctrl.Messages(), 1)
}

func TestInitCreateFailureIsWriteError(t *testing.T) {
	h := newHarness(t, "abc-123")
	h.store.createErr = errBoom

	err := h.ctrl.Init(context.Background())

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, OpWrite, se.Op)
	assert.ErrorIs(t, err, ErrStoreWrite)

	notes := h.notifier.all()
	require.Len(t, notes, 1)
	assert.Equal(t, "Chat unavailable", notes[0].Title)
	assert.ErrorIs(t, notes[0].Err, ErrStoreWrite)
}

func TestInitWelcomeFailureSaysChatUnavailable(t *testing.T) {
	h := newHarness(t, "abc-123")
	h.store.appendErr = func(string, bool) error { return errBoom }

	require.Error(t, h.ctrl.Init(context.Background()))

	notes := h.notifier.all()
	require.Len(t, notes, 1)
	assert.Equal(t, "Chat unavailable", notes[0].Title)
}

func TestInitPicksUpRowsWrittenWhileSubscribing(t *testing.T) {
	h := newHarness(t, "abc-123")
	h.subscriber.onSubscribe = func(conversationID string) {
		_, err := h.store.AppendMessage(context.Background(), conversationID, "from other tab", false)
		assert.NoError(t, err)
	}

	require.NoError(t, h.ctrl.Init(context.Background()))

	stored, err := h.store.FetchMessages(context.Background(), h.ctrl.ConversationID())
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, ids(stored), ids(h.ctrl.Messages()))
	assert.Equal(t, "from other tab", h.ctrl.Messages()[1].Content)
}

func TestReinitFailureKeepsWorkingChat(t *testing.T) {
	h := newHarness(t, "abc-123")
	require.NoError(t, h.ctrl.Init(context.Background()))
	sub := h.subscriber.last()

	h.store.mu.Lock()
	h.store.findErr = errBoom
	h.store.mu.Unlock()

	assert.ErrorIs(t, h.ctrl.Init(context.Background()), ErrStoreRead)
	assert.Equal(t, StateReady, h.ctrl.State())
	assert.Equal(t, "conv-1", h.ctrl.ConversationID())
	assert.False(t, sub.unsubscribed())
	assert.Same(t, sub, h.subscriber.last())

	require.NoError(t, h.ctrl.Send(context.Background(), "still there?"))
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(h.ctrl.Messages()))
}

func TestSendExampleScenario(t *testing.T) {
	h := newHarness(t, "abc-123")
	require.NoError(t, h.ctrl.Init(context.Background()))

	require.NoError(t, h.ctrl.Send(context.Background(), "Tell me about your services"))

	messages := h.ctrl.Messages()
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(messages))
	assert.False(t, messages[1].IsBot)
	assert.Equal(t, "Tell me about your services", messages[1].Content)
	assert.True(t, messages[2].IsBot)
	assert.Equal(t, "We offer SEO, PPC, ...", messages[2].Content)
	assert.False(t, h.ctrl.Sending())

	require.Equal(t, 1, h.responder.callCount())
	call := h.responder.calls[0]
	assert.Equal(t, "Tell me about your services", call.message)
	assert.Equal(t, []Turn{{Role: "assistant", Content: DefaultWelcomeMessage}}, call.history)
}

func TestSendGatewayFailureScenario(t *testing.T) {
	h := newHarness(t, "abc-123")
	require.NoError(t, h.ctrl.Init(context.Background()))
	require.NoError(t, h.ctrl.Send(context.Background(), "Tell me about your services"))

	h.responder.mu.Lock()
	h.responder.err = errBoom
	h.responder.mu.Unlock()

	err := h.ctrl.Send(context.Background(), "pricing?")
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.ErrorIs(t, err, ErrAIGateway)

	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, ids(h.ctrl.Messages()))
	assert.False(t, h.ctrl.Messages()[3].IsBot)
	assert.False(t, h.ctrl.Sending())
	assert.Equal(t, StateReady, h.ctrl.State())

	notes := h.notifier.all()
	require.Len(t, notes, 1)
	assert.ErrorIs(t, notes[0].Err, ErrAIGateway)

	_, appends := h.store.counts()
	assert.Equal(t, 4, appends)

	h.responder.mu.Lock()
	history := h.responder.calls[1].history
	h.responder.mu.Unlock()
	assert.Len(t, history, 3)
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t, "abc-123")

	assert.ErrorIs(t, h.ctrl.Send(context.Background(), "hi"), ErrNotReady)

	require.NoError(t, h.ctrl.Init(context.Background()))
	assert.ErrorIs(t, h.ctrl.Send(context.Background(), "   \n\t"), ErrEmptyMessage)

	_, appends := h.store.counts()
	assert.Equal(t, 1, appends)
	assert.Zero(t, h.responder.callCount())
}

func TestSendTrimsText(t *testing.T) {
	h := newHarness(t, "abc-123")
	require.NoError(t, h.ctrl.Init(context.Background()))

	require.NoError(t, h.ctrl.Send(context.Background(), "  hello  "))

	assert.Equal(t, "hello", h.ctrl.Messages()[1].Content)
}

func TestSendRejectsConcurrentSend(t *testing.T) {
	h := newHarness(t, "abc-123")
	h.responder.block = make(chan struct{})
	h.responder.started = make(chan struct{}, 1)
	require.NoError(t, h.ctrl.Init(context.Background()))

	errc := make(chan error, 1)
	go func() { errc <- h.ctrl.Send(context.Background(), "first") }()

	<-h.responder.started
	assert.True(t, h.ctrl.Sending())
	assert.ErrorIs(t, h.ctrl.Send(context.Background(), "second"), ErrSendInProgress)

	close(h.responder.block)
	require.NoError(t, <-errc)
	assert.False(t, h.ctrl.Sending())
	assert.Len(t, h.ctrl.Messages(), 3)
}

func TestSendStoreFailureSkipsGateway(t *testing.T) {
	h := newHarness(t, "abc-123")
	require.NoError(t, h.ctrl.Init(context.Background()))
	h.store.appendErr = func(string, bool) error { return errBoom }

	err := h.ctrl.Send(context.Background(), "hello")

	assert.ErrorIs(t, err, ErrStoreWrite)
	assert.Zero(t, h.responder.callCount())
	assert.Len(t, h.ctrl.Messages(), 1)
	assert.False(t, h.ctrl.Sending())
	require.Len(t, h.notifier.all(), 1)
}

func TestSendReplyStoreFailureKeepsUserMessage(t *testing.T) {
	h := newHarness(t, "abc-123")
	require.NoError(t, h.ctrl.Init(context.Background()))
	h.store.appendErr = func(_ string, isBot bool) error {
		if isBot {
			return errBoom
		}
		return nil
	}

	err := h.ctrl.Send(context.Background(), "hello")

	assert.ErrorIs(t, err, ErrStoreWrite)
	assert.Equal(t, []string{"m1", "m2"}, ids(h.ctrl.Messages()))
	assert.False(t, h.ctrl.Sending())
}

func TestRealtimeDuplicateMergedOnce(t *testing.T) {
	h := newHarness(t, "abc-123")
	require.NoError(t, h.ctrl.Init(context.Background()))
	require.NoError(t, h.ctrl.Send(context.Background(), "Tell me about your services"))

	sub := h.subscriber.last()
	for _, m := range h.ctrl.Messages() {
		sub.push(m)
		sub.push(m)
	}

	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(h.ctrl.Messages()))
}

func TestRealtimePushBeforeDirectReturn(t *testing.T) {
	h := newHarness(t, "abc-123")
	require.NoError(t, h.ctrl.Init(context.Background()))
	sub := h.subscriber.last()

	// Every insert is also pushed over the channel, racing the direct return.
	h.store.appendErr = func(content string, isBot bool) error {
		id := h.store.nextMsg + 1
		go sub.push(Message{
			ID:             fmt.Sprintf("m%d", id),
			ConversationID: "conv-1",
			Content:        content,
			IsBot:          isBot,
			CreatedAt:      baseTime.Add(time.Duration(id) * time.Second),
		})
		return nil
	}

	require.NoError(t, h.ctrl.Send(context.Background(), "hello"))

	require.Eventually(t, func() bool {
		return len(h.ctrl.Messages()) == 3
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(h.ctrl.Messages()))
}

func TestRealtimeMessagesKeptInCreationOrder(t *testing.T) {
	h := newHarness(t, "abc-123")
	require.NoError(t, h.ctrl.Init(context.Background()))
	sub := h.subscriber.last()

	late := Message{ID: "x2", ConversationID: "conv-1", Content: "later", CreatedAt: baseTime.Add(time.Hour)}
	early := Message{ID: "x1", ConversationID: "conv-1", Content: "earlier", CreatedAt: baseTime.Add(time.Minute)}
	tie := Message{ID: "x3", ConversationID: "conv-1", Content: "same time", CreatedAt: baseTime.Add(time.Hour)}
	sub.push(late)
	sub.push(early)
	sub.push(tie)

	assert.Equal(t, []string{"m1", "x1", "x2", "x3"}, ids(h.ctrl.Messages()))
}

func TestRealtimeIgnoresForeignAndInvalidRows(t *testing.T) {
	h := newHarness(t, "abc-123")
	require.NoError(t, h.ctrl.Init(context.Background()))
	sub := h.subscriber.last()

	sub.push(Message{ID: "x1", ConversationID: "conv-9", Content: "not ours", CreatedAt: baseTime})
	sub.push(Message{ID: "", ConversationID: "conv-1", Content: "no id", CreatedAt: baseTime})
	sub.push(Message{ID: "x2", ConversationID: "conv-1", Content: "no timestamp"})

	assert.Equal(t, []string{"m1"}, ids(h.ctrl.Messages()))
}

func TestSubscriptionFailureDegrades(t *testing.T) {
	h := newHarness(t, "abc-123")
	h.subscriber.err = errBoom

	require.NoError(t, h.ctrl.Init(context.Background()))

	notes := h.notifier.all()
	require.Len(t, notes, 1)
	assert.ErrorIs(t, notes[0].Err, ErrSubscription)
	assert.Equal(t, StateReady, h.ctrl.State())

	require.NoError(t, h.ctrl.Send(context.Background(), "still works?"))
	assert.Len(t, h.ctrl.Messages(), 3)
}

func TestSubscriptionDropNotifiesOnce(t *testing.T) {
	h := newHarness(t, "abc-123")
	require.NoError(t, h.ctrl.Init(context.Background()))

	h.subscriber.last().drop(errBoom)

	require.Eventually(t, func() bool {
		return len(h.notifier.all()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, h.notifier.all()[0].Err, ErrSubscription)
	require.NoError(t, h.ctrl.Send(context.Background(), "hello"))
}

func TestDisposeReleasesSubscriptionAndDropsLateResults(t *testing.T) {
	h := newHarness(t, "abc-123")
	h.responder.block = make(chan struct{})
	h.responder.started = make(chan struct{}, 1)
	require.NoError(t, h.ctrl.Init(context.Background()))
	sub := h.subscriber.last()

	errc := make(chan error, 1)
	go func() { errc <- h.ctrl.Send(context.Background(), "hello") }()
	<-h.responder.started

	h.ctrl.Dispose()
	h.ctrl.Dispose()
	assert.True(t, sub.unsubscribed())

	close(h.responder.block)
	require.NoError(t, <-errc)

	assert.Equal(t, []string{"m1", "m2"}, ids(h.ctrl.Messages()))
	assert.ErrorIs(t, h.ctrl.Send(context.Background(), "again"), ErrDisposed)
	assert.ErrorIs(t, h.ctrl.Init(context.Background()), ErrDisposed)
	assert.Empty(t, h.notifier.all())
}

func TestConversationChangeReplacesSubscription(t *testing.T) {
	h := newHarness(t, "abc-123")
	require.NoError(t, h.ctrl.Init(context.Background()))
	first := h.subscriber.last()

	require.NoError(t, h.ctrl.Init(context.Background()))
	assert.Same(t, first, h.subscriber.last())
	assert.False(t, first.unsubscribed())

	h.store.mu.Lock()
	delete(h.store.conversations, "abc-123")
	h.store.mu.Unlock()

	require.NoError(t, h.ctrl.Init(context.Background()))
	assert.True(t, first.unsubscribed())
	second := h.subscriber.last()
	require.NotSame(t, first, second)
	assert.Equal(t, "conv-2", second.conversationID)
	assert.Equal(t, "conv-2", h.ctrl.ConversationID())

	for _, m := range h.ctrl.Messages() {
		assert.Equal(t, "conv-2", m.ConversationID)
	}
}

func TestMessageListGrowsMonotonically(t *testing.T) {
	h := newHarness(t, "abc-123")

	var (
		mu      sync.Mutex
		lengths []int
	)
	h.ctrl = NewController(NewSessionIDStore(h.storage, nil), h.store, h.subscriber, h.responder, Options{
		OnChange: func() {
			n := len(h.ctrl.Messages())
			mu.Lock()
			lengths = append(lengths, n)
			mu.Unlock()
		},
	})
	t.Cleanup(h.ctrl.Dispose)

	require.NoError(t, h.ctrl.Init(context.Background()))
	sub := h.subscriber.last()
	for i := 0; i < 10; i++ {
		require.NoError(t, h.ctrl.Send(context.Background(), "message"))
		for _, m := range h.ctrl.Messages() {
			sub.push(m)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(lengths); i++ {
		assert.GreaterOrEqual(t, lengths[i], lengths[i-1])
	}

	seen := map[string]bool{}
	for _, m := range h.ctrl.Messages() {
		assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
	}
	assert.Len(t, seen, 21)
}

func TestOpenCloseToggle(t *testing.T) {
	h := newHarness(t, "abc-123")

	assert.False(t, h.ctrl.IsOpen())
	h.ctrl.Open()
	assert.True(t, h.ctrl.IsOpen())
	h.ctrl.Toggle()
	assert.False(t, h.ctrl.IsOpen())
	h.ctrl.Toggle()
	h.ctrl.Close()
	assert.False(t, h.ctrl.IsOpen())
}

func TestNotificationWording(t *testing.T) {
	cases := []struct {
		err   error
		title string
	}{
		{&GatewayError{Err: errBoom}, "Assistant unavailable"},
		{&StoreError{Op: OpWrite, Err: errBoom}, "Message not sent"},
		{&StoreError{Op: OpRead, Err: errBoom}, "Chat unavailable"},
		{&SubscriptionError{ConversationID: "conv-1", Err: errBoom}, "Live updates paused"},
		{errors.New("other"), "Something went wrong"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.title, notificationFor(tc.err).Title)
	}
}
