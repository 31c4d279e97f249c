package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/northbeam-digital/site/backend/internal/config"
	"github.com/northbeam-digital/site/backend/internal/model/chat"
)

var ErrEmptyReply = errors.New("model returned an empty reply")

// Responder produces a single assistant reply for the visitor's message.
type Responder interface {
	Reply(ctx context.Context, message string, history []chat.Turn) (string, error)
}

// NewResponder builds the responder for the configured provider.
func NewResponder(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (Responder, error) {
	if cfg.Provider == config.ProviderOpenAI {
		return NewOpenAIResponder(cfg, logger)
	}
	return NewService(ctx, cfg, logger)
}

// Service answers visitors through an eino chain backed by the Ark chat model.
type Service struct {
	chatModel model.BaseChatModel
	cfg       config.AIConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
	logger    *zap.Logger
}

// NewService creates the Ark-backed responder.
func NewService(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return newServiceWithModel(ctx, chatModel, cfg, logger)
}

func newServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, cfg config.AIConfig, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		cfg:       cfg,
		chain:     runnable,
		logger:    logger.Named("ai"),
	}, nil
}

// Reply runs the chain with the system prompt, trimmed history and the new message.
func (s *Service) Reply(ctx context.Context, message string, history []chat.Turn) (string, error) {
	response, err := s.chain.Invoke(ctx, map[string]any{
		"system":  BuildSystemPrompt(s.cfg.AgencyName),
		"history": s.buildHistoryMessages(history),
		"query":   message,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	reply := strings.TrimSpace(response.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}

	s.logger.Debug("generated reply", zap.Int("history", len(history)), zap.Int("length", len(reply)))
	return reply, nil
}

func (s *Service) buildHistoryMessages(history []chat.Turn) []*schema.Message {
	turns := trimHistory(history, s.cfg.HistoryLimit)
	if len(turns) == 0 {
		return nil
	}

	messages := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			messages = append(messages, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return messages
}

// trimHistory keeps the most recent limit turns. limit <= 0 keeps everything.
func trimHistory(history []chat.Turn, limit int) []chat.Turn {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}
