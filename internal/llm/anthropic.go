package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
)

const defaultClaudeModel = "claude-sonnet-4-20250514"

// AnthropicOptions configure the Messages API client.
type AnthropicOptions struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Anthropic generates completions through the Messages API.
type Anthropic struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	hasKey    bool
	logger    zerolog.Logger
}

// NewAnthropic constructs the client. BaseURL is only applied when it is not
// the gateway default, so one config file can switch providers.
func NewAnthropic(opts AnthropicOptions, logger zerolog.Logger) *Anthropic {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" && strings.Contains(opts.BaseURL, "anthropic") {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	client := anthropic.NewClient(reqOpts...)

	model := opts.Model
	if model == "" || strings.Contains(model, "/") {
		model = defaultClaudeModel
	}
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	return &Anthropic{
		client:    &client,
		model:     model,
		maxTokens: maxTokens,
		hasKey:    opts.APIKey != "",
		logger:    logger.With().Str("component", "llm_anthropic").Logger(),
	}
}

// Generate concatenates the text blocks of the reply.
func (a *Anthropic) Generate(ctx context.Context, system, prompt string) (string, error) {
	if !a.hasKey {
		return "", ErrNotConfigured
	}
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude api error: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	a.logger.Debug().Int64("input_tokens", resp.Usage.InputTokens).Int64("output_tokens", resp.Usage.OutputTokens).Msg("claude completion")
	return sb.String(), nil
}

var _ Generator = (*Anthropic)(nil)
