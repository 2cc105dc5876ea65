package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// GeminiOptions configure the Gemini API client.
type GeminiOptions struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// Gemini generates completions through the Gemini API directly.
type Gemini struct {
	client    *genai.Client
	model     string
	maxTokens int32
	logger    zerolog.Logger
}

// NewGemini constructs the client. Gateway-style model names
// ("google/gemini-2.5-flash") are accepted and trimmed.
func NewGemini(ctx context.Context, opts GeminiOptions, logger zerolog.Logger) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := strings.TrimPrefix(opts.Model, "google/")
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Gemini{
		client:    client,
		model:     model,
		maxTokens: int32(opts.MaxTokens),
		logger:    logger.With().Str("component", "llm_gemini").Logger(),
	}, nil
}

// Generate returns the concatenated text of the first candidate.
func (g *Gemini) Generate(ctx context.Context, system, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
	if g.maxTokens > 0 {
		cfg.MaxOutputTokens = g.maxTokens
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini api error: %w", err)
	}
	return resp.Text(), nil
}

var _ Generator = (*Gemini)(nil)
