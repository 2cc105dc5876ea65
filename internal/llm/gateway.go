package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const chatCompletionsPath = "/chat/completions"

// GatewayOptions parameterise an OpenAI-compatible chat completions endpoint.
type GatewayOptions struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	UserAgent string
}

// Gateway talks to an OpenAI-compatible AI gateway.
type Gateway struct {
	opts    GatewayOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewGateway constructs a gateway client.
func NewGateway(opts GatewayOptions, logger zerolog.Logger) *Gateway {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if opts.Model == "" {
		opts.Model = "google/gemini-2.5-flash"
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://ai.gateway.lovable.dev/v1"
	}
	return &Gateway{
		opts:    opts,
		logger:  logger.With().Str("component", "llm_gateway").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

// Generate sends one system + user turn and returns the first choice's content.
func (g *Gateway) Generate(ctx context.Context, system, prompt string) (string, error) {
	if g.opts.APIKey == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(chatRequest{
		Model: g.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		MaxTokens: g.opts.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if ua := strings.TrimSpace(g.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		g.logger.Error().Int("status", resp.StatusCode).Str("body", truncate(string(payload), 512)).Msg("ai gateway error")
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return "", errors.New("ai gateway rate limited")
		case http.StatusPaymentRequired:
			return "", errors.New("ai gateway credits exhausted")
		default:
			return "", fmt.Errorf("ai gateway returned %d", resp.StatusCode)
		}
	}

	content := gjson.GetBytes(payload, "choices.0.message.content")
	if !content.Exists() {
		return "", errors.New("ai gateway response has no choices")
	}
	return content.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Generator = (*Gateway)(nil)
