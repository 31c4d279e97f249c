package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/northbeam-digital/site/backend/pkg/chatwidget"
)

var quickReplies = []string{
	"What services do you offer?",
	"How much does SEO cost?",
	"Book a free consultation",
}

const help = `Commands:
  /open      show the chat
  /close     hide the chat (replies keep arriving)
  /toggle    open or close
  /1 /2 /3   send a quick reply
  /retry     reconnect after a failed start
  /quit      exit`

// terminal renders the controller the way the floating widget does in the browser.
type terminal struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	ctrl *chatwidget.Controller

	mu       sync.Mutex
	rendered map[string]bool
	typing   bool
}

func newTerminal(in io.Reader, out, errOut io.Writer) *terminal {
	return &terminal{in: in, out: out, errOut: errOut, rendered: make(map[string]bool)}
}

func (t *terminal) attach(ctrl *chatwidget.Controller) {
	t.ctrl = ctrl
}

// Notify prints a toast.
func (t *terminal) Notify(n chatwidget.Notification) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.errOut, "! %s: %s\n", n.Title, n.Message)
}

func (t *terminal) loop(ctx context.Context) error {
	fmt.Fprintln(t.out, "Chat with Northbeam Digital. Type /open to start, /help for commands.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := t.handle(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

func (t *terminal) handle(ctx context.Context, line string) (quit bool) {
	switch line {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(t.out, help)
		return false
	case "/open":
		t.open(ctx)
		return false
	case "/close":
		t.ctrl.Close()
		fmt.Fprintln(t.out, "(chat hidden)")
		return false
	case "/toggle":
		if t.ctrl.IsOpen() {
			t.ctrl.Close()
			fmt.Fprintln(t.out, "(chat hidden)")
		} else {
			t.open(ctx)
		}
		return false
	case "/retry":
		t.start(ctx)
		return false
	}

	if n, err := strconv.Atoi(strings.TrimPrefix(line, "/")); err == nil && strings.HasPrefix(line, "/") {
		if n < 1 || n > len(quickReplies) {
			fmt.Fprintln(t.out, "no such quick reply")
			return false
		}
		line = quickReplies[n-1]
	} else if strings.HasPrefix(line, "/") {
		fmt.Fprintln(t.out, "unknown command, try /help")
		return false
	}

	if !t.ctrl.IsOpen() {
		t.open(ctx)
	}
	t.send(ctx, line)
	return false
}

func (t *terminal) open(ctx context.Context) {
	t.ctrl.Open()
	if t.ctrl.State() == chatwidget.StateUninitialized {
		t.start(ctx)
	}
	t.render()
	t.showQuickReplies()
}

func (t *terminal) start(ctx context.Context) {
	t.ctrl.Open()
	if err := t.ctrl.Init(ctx); err != nil {
		fmt.Fprintln(t.out, "(chat unavailable, try /retry)")
	}
}

func (t *terminal) send(ctx context.Context, text string) {
	err := t.ctrl.Send(ctx, text)
	switch {
	case err == nil:
	case errors.Is(err, chatwidget.ErrNotReady):
		fmt.Fprintln(t.out, "(chat is still starting, try /retry)")
	case errors.Is(err, chatwidget.ErrSendInProgress):
		fmt.Fprintln(t.out, "(still waiting for the last reply)")
	}
}

func (t *terminal) showQuickReplies() {
	if len(t.ctrl.Messages()) > 1 {
		return
	}
	fmt.Fprintln(t.out, "Quick replies:")
	for i, reply := range quickReplies {
		fmt.Fprintf(t.out, "  /%d %s\n", i+1, reply)
	}
}

// render prints messages not shown yet while the chat is open.
func (t *terminal) render() {
	if t.ctrl == nil || !t.ctrl.IsOpen() {
		return
	}
	messages := t.ctrl.Messages()
	sending := t.ctrl.Sending()

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range messages {
		if t.rendered[m.ID] {
			continue
		}
		t.rendered[m.ID] = true
		who := "you"
		if m.IsBot {
			who = "assistant"
		}
		fmt.Fprintf(t.out, "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), who, m.Content)
	}

	if sending && !t.typing {
		fmt.Fprintln(t.out, "assistant is typing...")
	}
	t.typing = sending
}
