package insights

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"aether-vault/internal/domain"
	"aether-vault/internal/storage"
)

// DefaultLimit is the number of predictions loaded for the panel.
const DefaultLimit = 20

// alphaPerHit is the fee capture credited to each successful prediction.
var alphaPerHit = decimal.RequireFromString("127.50")

// Filter narrows the listed predictions.
type Filter string

const (
	FilterAll     Filter = "all"
	FilterSuccess Filter = "success"
	FilterMiss    Filter = "miss"
)

// ParseFilter accepts all, success or miss. Empty means all.
func ParseFilter(raw string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterSuccess, FilterMiss:
		return f, nil
	default:
		return "", domain.NewValidationError("filter", fmt.Sprintf("unknown filter %q", raw))
	}
}

func (f Filter) keep(p domain.Prediction) bool {
	switch f {
	case FilterSuccess:
		return p.ActualResult != nil && *p.ActualResult
	case FilterMiss:
		return p.ActualResult != nil && !*p.ActualResult
	default:
		return true
	}
}

// Stats summarise the loaded predictions, before filtering.
type Stats struct {
	Total         int             `json:"total"`
	Resolved      int             `json:"resolved"`
	Successes     int             `json:"successes"`
	AccuracyPct   decimal.Decimal `json:"accuracyPct"`
	AvgConfidence decimal.Decimal `json:"avgConfidence"`
	TotalAlpha    decimal.Decimal `json:"totalAlpha"`
}

// Compute derives the panel statistics.
func Compute(preds []domain.Prediction) Stats {
	s := Stats{Total: len(preds), AccuracyPct: decimal.Zero, AvgConfidence: decimal.Zero}
	confidence := decimal.Zero
	for _, p := range preds {
		if p.ConfidenceScore != nil {
			confidence = confidence.Add(*p.ConfidenceScore)
		}
		if p.ActualResult == nil {
			continue
		}
		s.Resolved++
		if *p.ActualResult {
			s.Successes++
		}
	}
	if s.Total > 0 {
		s.AvgConfidence = confidence.Div(decimal.NewFromInt(int64(s.Total)))
	}
	if s.Resolved > 0 {
		s.AccuracyPct = decimal.NewFromInt(int64(s.Successes)).
			Div(decimal.NewFromInt(int64(s.Resolved))).
			Mul(decimal.NewFromInt(100))
	}
	s.TotalAlpha = alphaPerHit.Mul(decimal.NewFromInt(int64(s.Successes)))
	return s
}

// Listing is the predictions panel payload.
type Listing struct {
	Filter      Filter              `json:"filter"`
	Predictions []domain.Prediction `json:"predictions"`
	Stats       Stats               `json:"stats"`
}

// Service reads AI predictions.
type Service struct {
	store  storage.PredictionStore
	logger zerolog.Logger
}

// NewService wires the prediction store.
func NewService(store storage.PredictionStore, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger.With().Str("component", "insights").Logger()}
}

// List loads the latest predictions and applies the filter.
func (s *Service) List(ctx context.Context, filter Filter, limit int) (Listing, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	preds, err := s.store.ListRecentPredictions(ctx, limit)
	if err != nil {
		return Listing{}, domain.Upstream("store", fmt.Errorf("list predictions: %w", err))
	}

	kept := make([]domain.Prediction, 0, len(preds))
	for _, p := range preds {
		if filter.keep(p) {
			kept = append(kept, p)
		}
	}
	return Listing{Filter: filter, Predictions: kept, Stats: Compute(preds)}, nil
}

// Record stores a new forecast.
func (s *Service) Record(ctx context.Context, poolID string, spike bool, confidence decimal.Decimal, at time.Time) (domain.Prediction, error) {
	if strings.TrimSpace(poolID) == "" {
		return domain.Prediction{}, domain.NewValidationError("poolId", "Pool id is required")
	}
	if confidence.IsNegative() || confidence.GreaterThan(decimal.NewFromInt(100)) {
		return domain.Prediction{}, domain.NewValidationError("confidence", "Confidence must be between 0 and 100")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	p, err := s.store.InsertPrediction(ctx, domain.Prediction{
		PoolID:               poolID,
		PredictedVolumeSpike: spike,
		ConfidenceScore:      &confidence,
		PredictionTime:       at,
	})
	if err != nil {
		return domain.Prediction{}, domain.Upstream("store", fmt.Errorf("insert prediction: %w", err))
	}
	s.logger.Info().Str("pool_id", poolID).Bool("spike", spike).Msg("prediction recorded")
	return p, nil
}
