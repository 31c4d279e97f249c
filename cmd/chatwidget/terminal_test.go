package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbeam-digital/site/backend/internal/config"
	"github.com/northbeam-digital/site/backend/internal/handler"
	"github.com/northbeam-digital/site/backend/internal/model/chat"
	"github.com/northbeam-digital/site/backend/internal/realtime"
	chatservice "github.com/northbeam-digital/site/backend/internal/service/chat"
	"github.com/northbeam-digital/site/backend/internal/store"
	"github.com/northbeam-digital/site/backend/pkg/chatwidget"
)

type cannedResponder struct{}

func (cannedResponder) Reply(context.Context, string, []chat.Turn) (string, error) {
	return "We offer SEO, PPC, ...", nil
}

func TestTerminalQuickReply(t *testing.T) {
	hub := realtime.NewHub(8, nil)
	srv := httptest.NewServer(handler.NewRouter(handler.Dependencies{
		Config: &config.Config{
			Server:    config.ServerConfig{AllowedOrigins: []string{"*"}},
			RateLimit: config.RateLimitConfig{PerMinute: 60, Burst: 10},
		},
		Chat:      chatservice.NewService(store.NewMemoryStore(), hub, nil),
		Hub:       hub,
		Responder: cannedResponder{},
	}))
	defer srv.Close()

	var out, errOut bytes.Buffer
	term := newTerminal(strings.NewReader("/open\n/1\n/close\n/quit\n"), &out, &errOut)
	ctrl := chatwidget.NewController(
		chatwidget.NewSessionIDStore(chatwidget.NewMemoryStorage(), nil),
		chatwidget.NewStoreClient(srv.URL, nil),
		nil,
		chatwidget.NewGateway(srv.URL, nil),
		chatwidget.Options{Notifier: term, OnChange: term.render},
	)
	defer ctrl.Dispose()
	term.attach(ctrl)

	require.NoError(t, term.loop(context.Background()))

	transcript := out.String()
	assert.Contains(t, transcript, "assistant: "+chatwidget.DefaultWelcomeMessage)
	assert.Contains(t, transcript, "/1 What services do you offer?")
	assert.Contains(t, transcript, "you: What services do you offer?")
	assert.Contains(t, transcript, "assistant: We offer SEO, PPC, ...")
	assert.Contains(t, transcript, "(chat hidden)")
	assert.Empty(t, errOut.String())
	assert.False(t, ctrl.IsOpen())
}

func TestTerminalUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	term := newTerminal(strings.NewReader(""), &out, &out)

	assert.False(t, term.handle(context.Background(), "/dance"))
	assert.False(t, term.handle(context.Background(), "/9"))
	assert.True(t, term.handle(context.Background(), "/quit"))
	assert.Contains(t, out.String(), "unknown command")
	assert.Contains(t, out.String(), "no such quick reply")
}
