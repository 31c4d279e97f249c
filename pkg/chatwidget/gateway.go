package chatwidget

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var errEmptyResponse = errors.New("empty response")

// Gateway calls the chat-completion endpoint. It never retries.
type Gateway struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewGateway creates a gateway posting to <baseURL>/api/functions/chat-completion.
func NewGateway(baseURL string, httpClient *http.Client) *Gateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Gateway{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/functions/chat-completion",
		http:     httpClient,
	}
}

// WithAPIKey returns a copy that sends key as a bearer token.
func (g *Gateway) WithAPIKey(key string) *Gateway {
	clone := *g
	clone.apiKey = key
	return &clone
}

type completionRequest struct {
	Message             string `json:"message"`
	ConversationHistory []Turn `json:"conversationHistory"`
}

type completionResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (g *Gateway) GetReply(ctx context.Context, userMessage string, history []Turn) (string, error) {
	if history == nil {
		history = []Turn{}
	}
	data, err := json.Marshal(completionRequest{Message: userMessage, ConversationHistory: history})
	if err != nil {
		return "", &GatewayError{Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(data))
	if err != nil {
		return "", &GatewayError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return "", &GatewayError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &GatewayError{Status: resp.StatusCode, Err: errorFromBody(resp)}
	}

	var payload completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &GatewayError{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if payload.Error != "" {
		return "", &GatewayError{Status: resp.StatusCode, Err: errors.New(payload.Error)}
	}
	if strings.TrimSpace(payload.Response) == "" {
		return "", &GatewayError{Status: resp.StatusCode, Err: errEmptyResponse}
	}
	return payload.Response, nil
}
