package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/northbeam-digital/site/backend/internal/config"
	"github.com/northbeam-digital/site/backend/internal/model/chat"
)

// OpenAIResponder answers through any OpenAI-compatible endpoint via langchaingo.
type OpenAIResponder struct {
	llm    llms.Model
	cfg    config.AIConfig
	logger *zap.Logger
}

// NewOpenAIResponder creates a responder for the configured OpenAI model.
func NewOpenAIResponder(cfg config.AIConfig, logger *zap.Logger) (*OpenAIResponder, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("openai credentials or model missing: set OPENAI_API_KEY and OPENAI_MODEL")
	}

	opts := []openai.Option{
		openai.WithToken(cfg.OpenAIKey),
		openai.WithModel(cfg.OpenAIModel),
	}
	if cfg.OpenAIURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return newOpenAIResponderWithModel(llm, cfg, logger), nil
}

func newOpenAIResponderWithModel(llm llms.Model, cfg config.AIConfig, logger *zap.Logger) *OpenAIResponder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIResponder{llm: llm, cfg: cfg, logger: logger.Named("ai")}
}

// Reply sends the system prompt, history and message as one chat completion.
func (r *OpenAIResponder) Reply(ctx context.Context, message string, history []chat.Turn) (string, error) {
	turns := trimHistory(history, r.cfg.HistoryLimit)

	content := make([]llms.MessageContent, 0, len(turns)+2)
	content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, BuildSystemPrompt(r.cfg.AgencyName)))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, turn.Content))
		case chat.RoleAssistant:
			content = append(content, llms.TextParts(llms.ChatMessageTypeAI, turn.Content))
		}
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, message))

	resp, err := r.llm.GenerateContent(ctx, content, r.callOptions()...)
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}

	reply := strings.TrimSpace(resp.Choices[0].Content)
	if reply == "" {
		return "", ErrEmptyReply
	}

	r.logger.Debug("generated reply", zap.Int("history", len(turns)), zap.Int("length", len(reply)))
	return reply, nil
}

func (r *OpenAIResponder) callOptions() []llms.CallOption {
	var opts []llms.CallOption
	if r.cfg.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*r.cfg.Temperature))
	}
	if r.cfg.TopP != nil {
		opts = append(opts, llms.WithTopP(*r.cfg.TopP))
	}
	if r.cfg.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*r.cfg.MaxTokens))
	}
	return opts
}
