package chatwidget

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pongWait  = 60 * time.Second
	writeWait = 10 * time.Second

	eventInsert   = "insert"
	messagesTable = "messages"
)

type insertEvent struct {
	Type   string  `json:"type"`
	Table  string  `json:"table"`
	Record Message `json:"record"`
}

// WSSubscriber opens websocket subscriptions at <baseURL>/api/realtime/conversations/{id}.
type WSSubscriber struct {
	baseURL string
	dialer  *websocket.Dialer
	logger  *zap.Logger
}

// NewSubscriber creates a websocket subscriber. baseURL may use http(s) or ws(s).
func NewSubscriber(baseURL string, logger *zap.Logger) *WSSubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSSubscriber{
		baseURL: strings.TrimRight(baseURL, "/"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger.Named("realtime"),
	}
}

func (s *WSSubscriber) endpoint(conversationID, sessionID string) (string, error) {
	u, err := url.Parse(s.baseURL + "/api/realtime/conversations/" + url.PathEscape(conversationID))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if sessionID != "" {
		q := u.Query()
		q.Set("sessionId", sessionID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (s *WSSubscriber) Subscribe(ctx context.Context, conversationID string, onInsert func(Message)) (Subscription, error) {
	sessionID := SessionFromContext(ctx)
	endpoint, err := s.endpoint(conversationID, sessionID)
	if err != nil {
		return nil, &SubscriptionError{ConversationID: conversationID, Err: err}
	}

	header := http.Header{}
	if sessionID != "" {
		header.Set(SessionHeader, sessionID)
	}

	conn, resp, err := s.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, &SubscriptionError{ConversationID: conversationID, Err: err}
	}

	sub := &wsSubscription{
		conversationID: conversationID,
		conn:           conn,
		done:           make(chan struct{}),
		logger:         s.logger.With(zap.String("conversation_id", conversationID)),
	}
	go sub.readLoop(onInsert)
	return sub, nil
}

type wsSubscription struct {
	conversationID string
	conn           *websocket.Conn
	done           chan struct{}
	logger         *zap.Logger

	closing atomic.Bool
	once    sync.Once
	err     error
}

func (s *wsSubscription) readLoop(onInsert func(Message)) {
	defer close(s.done)

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPingHandler(func(data string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		var event insertEvent
		if err := s.conn.ReadJSON(&event); err != nil {
			if !s.closing.Load() {
				s.err = err
				s.logger.Warn("realtime channel dropped", zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		if event.Type != eventInsert || (event.Table != "" && event.Table != messagesTable) {
			continue
		}
		if err := event.Record.Validate(); err != nil {
			s.logger.Warn("dropping invalid realtime row", zap.Error(err))
			continue
		}
		if event.Record.ConversationID != s.conversationID {
			continue
		}
		if s.closing.Load() {
			return
		}
		onInsert(event.Record)
	}
}

// Unsubscribe closes the websocket. The read loop exits on its own; Done reports when.
func (s *wsSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.closing.Store(true)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = s.conn.Close()
	})
	return err
}

func (s *wsSubscription) Done() <-chan struct{} {
	return s.done
}

func (s *wsSubscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}
