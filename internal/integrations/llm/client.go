// Package llm wraps the chat-completion providers used for curation hints.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bankbot/internal/config"

	"go.uber.org/zap"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "gpt-4o-mini"

var ErrNotConfigured = errors.New("llm provider not configured")

type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// Client sends one system+user prompt and returns the text reply.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error)
	Name() string
}

// New builds the client selected by cfg.LLMProvider.
func New(cfg config.Config, httpClient *http.Client, logger *zap.Logger) (Client, error) {
	logger = logger.Named("llm")
	switch cfg.LLMProvider {
	case "":
		return nil, ErrNotConfigured
	case "anthropic":
		return NewAnthropic(cfg.AnthropicAPIKey, cfg.LLMModel, cfg.LLMBaseURL, httpClient, logger), nil
	case "openai":
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.LLMBaseURL, httpClient, logger), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}

// StripCodeFence removes a surrounding ```json fence some models add.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
