package guardian

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"aether-vault/internal/domain"
	"aether-vault/internal/fetcher"
	"aether-vault/internal/storage"
)

// Risk event types.
const (
	EventPriceDrop       = "price_drop"
	EventVolatilitySpike = "volatility_spike"
)

var (
	criticalDrop = decimal.NewFromInt(-15)
	highDrop     = decimal.NewFromInt(-10)
)

// Classify grades a 24h percent change. Both thresholds are inclusive:
// -15 and below is critical, above -15 down to -10 is high.
func Classify(change24h decimal.Decimal) (domain.Severity, bool) {
	switch {
	case change24h.LessThanOrEqual(criticalDrop):
		return domain.SeverityCritical, true
	case change24h.LessThanOrEqual(highDrop):
		return domain.SeverityHigh, true
	default:
		return domain.SeverityLow, false
	}
}

// EventTypeFor maps a severity to the stored event type.
func EventTypeFor(sev domain.Severity) string {
	if sev == domain.SeverityCritical {
		return EventPriceDrop
	}
	return EventVolatilitySpike
}

// Describe renders the risk event description.
func Describe(sev domain.Severity, change24h decimal.Decimal) string {
	pct := change24h.Abs().StringFixed(2)
	if sev == domain.SeverityCritical {
		return fmt.Sprintf("SOL price dropped %s%% in 24 hours", pct)
	}
	return fmt.Sprintf("High volatility detected: %s%% price drop", pct)
}

// Result is the risk-check response.
type Result struct {
	RiskDetected   bool            `json:"riskDetected"`
	EventType      string          `json:"eventType,omitempty"`
	Severity       domain.Severity `json:"severity"`
	Description    string          `json:"description,omitempty"`
	SolPrice       decimal.Decimal `json:"solPrice"`
	PriceChange24h decimal.Decimal `json:"priceChange24h"`
	CheckedAt      time.Time       `json:"checkedAt"`
	// EventRecorded is false when the risk event could not be stored.
	EventRecorded bool `json:"eventRecorded,omitempty"`
}

// Checker fetches the price feed, classifies the move and records risk events.
type Checker struct {
	prices fetcher.PriceFetcher
	events storage.RiskEventStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewChecker wires the price feed and event store. events may be nil, in
// which case nothing is persisted.
func NewChecker(prices fetcher.PriceFetcher, events storage.RiskEventStore, logger zerolog.Logger) *Checker {
	return &Checker{
		prices: prices,
		events: events,
		logger: logger.With().Str("component", "guardian_check").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Check runs one risk evaluation. Only a price feed failure is an error;
// a failed event write is logged and reported in Result.EventRecorded.
func (c *Checker) Check(ctx context.Context) (Result, error) {
	quote, err := c.prices.FetchPrice(ctx)
	if err != nil {
		return Result{}, domain.Upstream("pricefeed", err)
	}

	res := Result{
		Severity:       domain.SeverityLow,
		SolPrice:       quote.Price,
		PriceChange24h: quote.Change24h,
		CheckedAt:      c.now(),
	}
	sev, detected := Classify(quote.Change24h)
	if !detected {
		c.logger.Debug().Str("change_24h", quote.Change24h.String()).Msg("no risk detected")
		return res, nil
	}

	res.RiskDetected = true
	res.Severity = sev
	res.EventType = EventTypeFor(sev)
	res.Description = Describe(sev, quote.Change24h)

	if c.events != nil {
		if _, err := c.events.InsertRiskEvent(ctx, domain.RiskEvent{
			EventType:         res.EventType,
			Severity:          sev,
			Description:       res.Description,
			TriggeredGuardian: true,
			CreatedAt:         res.CheckedAt,
		}); err != nil {
			// 写库失败不影响风险判定
			c.logger.Warn().Err(err).Str("event_type", res.EventType).Msg("risk event not recorded")
		} else {
			res.EventRecorded = true
		}
	}

	c.logger.Warn().
		Str("severity", string(sev)).
		Str("event_type", res.EventType).
		Str("sol_price", quote.Price.String()).
		Str("change_24h", quote.Change24h.String()).
		Msg("risk detected")
	return res, nil
}
