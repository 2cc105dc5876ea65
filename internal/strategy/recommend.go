package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"aether-vault/internal/domain"
	"aether-vault/internal/llm"
)

const (
	// promptPoolLimit caps how many pools are sent to the model.
	promptPoolLimit = 10
	fallbackPicks   = 3
	fallbackAPY     = 18.2
	fallbackRisk    = "Moderate risk with strong upside potential"
)

const baseSystemPrompt = "You are an AI DeFi strategist analyzing Raydium liquidity pools on Solana. " +
	"Analyze the provided pools and recommend the best strategy."

var profileGuidance = map[domain.StrategyProfile]string{
	domain.ProfileConservative: " Focus on stable, high-TVL pools with lower risk. Prioritize SOL-USDC and other stablecoin pairs.",
	domain.ProfileAggressive:   " Focus on high-APY opportunities, new token launches, and higher-risk pools with potential for outsized returns.",
	domain.ProfileBalanced:     " Balance risk and reward by mixing stable pools with some higher-APY opportunities.",
}

var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

// Recommendation is the analysis returned to the dashboard.
type Recommendation struct {
	RecommendedPools []string `json:"recommendedPools"`
	Reasoning        string   `json:"reasoning"`
	ExpectedAPY      float64  `json:"expectedApy"`
	RiskAssessment   string   `json:"riskAssessment"`
	// Fallback is set when the model reply could not be parsed.
	Fallback bool `json:"fallback,omitempty"`
}

// Advisor asks the text-generation provider for a pool strategy.
type Advisor struct {
	gen    llm.Generator
	logger zerolog.Logger
}

// NewAdvisor wires a generator.
func NewAdvisor(gen llm.Generator, logger zerolog.Logger) *Advisor {
	return &Advisor{gen: gen, logger: logger.With().Str("component", "strategy_advisor").Logger()}
}

// SystemPrompt returns the profile specific instructions. Unknown profiles
// get the balanced guidance.
func SystemPrompt(profile domain.StrategyProfile) string {
	guidance, ok := profileGuidance[profile]
	if !ok {
		guidance = profileGuidance[domain.ProfileBalanced]
	}
	return baseSystemPrompt + guidance
}

// UserPrompt embeds the first pools as JSON.
func UserPrompt(pools []domain.Pool) (string, error) {
	if len(pools) > promptPoolLimit {
		pools = pools[:promptPoolLimit]
	}
	if pools == nil {
		pools = []domain.Pool{}
	}
	raw, err := json.Marshal(pools)
	if err != nil {
		return "", fmt.Errorf("marshal pools: %w", err)
	}
	return "Analyze these Raydium pools and provide strategy recommendations: " + string(raw) +
		". Return your analysis as a JSON object with: recommendedPools (array of pool names), " +
		"reasoning (string), expectedApy (number), riskAssessment (string).", nil
}

// Recommend asks the model for a strategy over pools.
func (a *Advisor) Recommend(ctx context.Context, pools []domain.Pool, profile domain.StrategyProfile) (Recommendation, error) {
	if a.gen == nil {
		return Recommendation{}, domain.Upstream("llm", llm.ErrNotConfigured)
	}
	prompt, err := UserPrompt(pools)
	if err != nil {
		return Recommendation{}, err
	}

	text, err := a.gen.Generate(ctx, SystemPrompt(profile), prompt)
	if err != nil {
		a.logger.Error().Err(err).Msg("ai analysis failed")
		return Recommendation{}, domain.Upstream("llm", err)
	}
	a.logger.Debug().Str("profile", string(profile)).Int("chars", len(text)).Msg("ai analysis received")

	if rec, ok := ParseRecommendation(text); ok {
		return rec, nil
	}
	a.logger.Info().Msg("ai reply not parseable, using fallback recommendation")
	return FallbackRecommendation(pools, text), nil
}

// ParseRecommendation extracts the first {...} block of a model reply.
func ParseRecommendation(text string) (Recommendation, bool) {
	match := jsonObject.FindString(text)
	if match == "" {
		return Recommendation{}, false
	}
	var rec Recommendation
	if err := json.Unmarshal([]byte(match), &rec); err != nil {
		return Recommendation{}, false
	}
	return rec, true
}

// FallbackRecommendation picks the first pools in listing order.
func FallbackRecommendation(pools []domain.Pool, reasoning string) Recommendation {
	names := make([]string, 0, fallbackPicks)
	for i := 0; i < len(pools) && i < fallbackPicks; i++ {
		names = append(names, pools[i].Name)
	}
	apy := fallbackAPY
	if len(pools) > 0 && pools[0].APY != 0 {
		apy = pools[0].APY
	}
	return Recommendation{
		RecommendedPools: names,
		Reasoning:        reasoning,
		ExpectedAPY:      apy,
		RiskAssessment:   fallbackRisk,
		Fallback:         true,
	}
}
