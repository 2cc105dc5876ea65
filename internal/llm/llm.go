// Package llm wraps the text-generation providers used for strategy analysis.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"aether-vault/internal/config"
)

// ErrNotConfigured indicates the provider has no API key.
var ErrNotConfigured = errors.New("llm: api key not configured")

// Generator produces a single completion for a system + user prompt pair.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// New builds the configured provider.
func New(ctx context.Context, cfg config.LLMConfig, userAgent string, logger zerolog.Logger) (Generator, error) {
	switch cfg.Provider {
	case "gateway", "":
		return NewGateway(GatewayOptions{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
			UserAgent: userAgent,
		}, logger), nil
	case "anthropic":
		return NewAnthropic(AnthropicOptions{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		}, logger), nil
	case "gemini":
		return NewGemini(ctx, GeminiOptions{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
