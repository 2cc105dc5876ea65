package insights

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aether-vault/internal/domain"
	"aether-vault/internal/storage"
)

func boolPtr(b bool) *bool { return &b }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCompute(t *testing.T) {
	preds := []domain.Prediction{
		{ActualResult: boolPtr(true), ConfidenceScore: decPtr("90")},
		{ActualResult: boolPtr(true), ConfidenceScore: decPtr("80")},
		{ActualResult: boolPtr(false), ConfidenceScore: decPtr("70")},
		{ActualResult: nil, ConfidenceScore: nil},
	}
	s := Compute(preds)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 3, s.Resolved)
	assert.Equal(t, 2, s.Successes)
	assert.Equal(t, "66.7", s.AccuracyPct.StringFixed(1))
	assert.Equal(t, "60", s.AvgConfidence.String())
	assert.Equal(t, "255.00", s.TotalAlpha.StringFixed(2))

	empty := Compute(nil)
	assert.True(t, empty.AccuracyPct.IsZero())
	assert.True(t, empty.TotalAlpha.IsZero())

	unresolved := Compute([]domain.Prediction{{ConfidenceScore: decPtr("50")}})
	assert.True(t, unresolved.AccuracyPct.IsZero())
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, f)
	f, err = ParseFilter(" Miss ")
	require.NoError(t, err)
	assert.Equal(t, FilterMiss, f)
	_, err = ParseFilter("maybe")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestListFiltersAfterStats(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	svc := NewService(mem, zerolog.Nop())
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, res := range []*bool{boolPtr(true), boolPtr(false), nil, boolPtr(true)} {
		_, err := mem.InsertPrediction(ctx, domain.Prediction{
			PoolID:          "pool",
			ConfidenceScore: decPtr("75"),
			PredictionTime:  base.Add(time.Duration(i) * time.Hour),
			ActualResult:    res,
		})
		require.NoError(t, err)
	}

	l, err := svc.List(ctx, FilterSuccess, 0)
	require.NoError(t, err)
	assert.Len(t, l.Predictions, 2)
	assert.Equal(t, 4, l.Stats.Total)
	assert.True(t, l.Predictions[0].PredictionTime.After(l.Predictions[1].PredictionTime))

	l, err = svc.List(ctx, FilterMiss, 0)
	require.NoError(t, err)
	assert.Len(t, l.Predictions, 1)

	l, err = svc.List(ctx, FilterAll, 2)
	require.NoError(t, err)
	assert.Len(t, l.Predictions, 2)
}

func TestRecordValidation(t *testing.T) {
	svc := NewService(storage.NewMemory(), zerolog.Nop())
	_, err := svc.Record(context.Background(), "", true, decimal.NewFromInt(80), time.Time{})
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = svc.Record(context.Background(), "pool", true, decimal.NewFromInt(120), time.Time{})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	p, err := svc.Record(context.Background(), "pool", true, decimal.NewFromInt(80), time.Time{})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.PredictionTime.IsZero())
}
