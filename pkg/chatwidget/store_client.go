package chatwidget

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// SessionHeader carries the session id that scopes datastore access.
const SessionHeader = "X-Chat-Session"

const defaultHTTPTimeout = 30 * time.Second

// StoreClient talks to the datastore HTTP API under <baseURL>/api.
type StoreClient struct {
	baseURL string
	http    *http.Client
}

// NewStoreClient creates a datastore client. A nil httpClient gets a default with a timeout.
func NewStoreClient(baseURL string, httpClient *http.Client) *StoreClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &StoreClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *StoreClient) FindConversationBySession(ctx context.Context, sessionID string) (*Conversation, error) {
	var rows []Conversation
	path := "/api/conversations?sessionId=" + url.QueryEscape(sessionID)
	if err := c.do(ContextWithSession(ctx, sessionID), OpRead, http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	conv := rows[0]
	if err := conv.Validate(); err != nil {
		return nil, &StoreError{Op: OpRead, Err: err}
	}
	return &conv, nil
}

func (c *StoreClient) CreateConversation(ctx context.Context, sessionID string) (Conversation, error) {
	var conv Conversation
	body := map[string]string{"sessionId": sessionID}
	if err := c.do(ContextWithSession(ctx, sessionID), OpWrite, http.MethodPost, "/api/conversations", body, &conv); err != nil {
		return Conversation{}, err
	}
	if err := conv.Validate(); err != nil {
		return Conversation{}, &StoreError{Op: OpWrite, Err: err}
	}
	return conv, nil
}

func (c *StoreClient) FetchMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var rows []Message
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, OpRead, http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}
	for _, m := range rows {
		if err := m.Validate(); err != nil {
			return nil, &StoreError{Op: OpRead, Err: err}
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	if rows == nil {
		rows = []Message{}
	}
	return rows, nil
}

func (c *StoreClient) AppendMessage(ctx context.Context, conversationID, content string, isBot bool) (Message, error) {
	var msg Message
	body := struct {
		Content string `json:"content"`
		IsBot   bool   `json:"isBot"`
	}{Content: content, IsBot: isBot}

	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, OpWrite, http.MethodPost, path, body, &msg); err != nil {
		return Message{}, err
	}
	if err := msg.Validate(); err != nil {
		return Message{}, &StoreError{Op: OpWrite, Err: err}
	}
	return msg, nil
}

func (c *StoreClient) do(ctx context.Context, op Op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &StoreError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &StoreError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID := SessionFromContext(ctx); sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &StoreError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StoreError{Op: op, Status: resp.StatusCode, Err: errorFromBody(resp)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &StoreError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// errorFromBody extracts the {"error": "..."} message of a failed response.
func errorFromBody(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return errors.New(payload.Error)
	}
	return errors.New(http.StatusText(resp.StatusCode))
}
