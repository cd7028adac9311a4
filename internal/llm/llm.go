// Package llm calls hosted chat models for one-shot text completions.
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/joelkehle/visual-abstract/internal/config"
)

var ErrEmptyResponse = errors.New("model returned an empty response")

// Completer sends one system instruction and one user prompt and returns the
// concatenated text of the reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// New builds the completer selected by cfg, wrapped with retries.
func New(cfg *config.Config) (Completer, error) {
	var c Completer
	switch cfg.Completion.Provider {
	case config.ProviderAnthropic:
		a, err := NewAnthropicCompleter(cfg.AnthropicAPIKey, cfg.Completion)
		if err != nil {
			return nil, err
		}
		c = a
	case config.ProviderOpenAI:
		o, err := NewOpenAICompleter(cfg.OpenAIAPIKey, cfg.Completion)
		if err != nil {
			return nil, err
		}
		c = o
	default:
		return nil, &config.ConfigError{Field: "completion.provider", Message: "unsupported provider " + cfg.Completion.Provider}
	}
	return NewRetrying(c, cfg.Completion.MaxAttempts), nil
}

func requireKey(field, key string) error {
	if strings.TrimSpace(key) == "" {
		return &config.ConfigError{Field: field, Message: "not configured"}
	}
	return nil
}
