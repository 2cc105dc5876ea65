package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"aether-vault/internal/domain"
	"aether-vault/internal/insights"
	"aether-vault/internal/strategy"
)

// Pools prints the current pool listing.
func (a *App) Pools(ctx context.Context, opts ListOptions) error {
	c := a.newCache()
	defer c.Close()

	listing := a.newPoolFetcher(c).FetchPools(ctx)
	if opts.JSON {
		return writeJSON(a, map[string]any{"pools": listing.Pools, "source": listing.Source})
	}

	w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Pool\tType\tAPY%\tTVL\tVolume 24h\tRisk\tAI Score")
	for _, p := range listing.Pools {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.0f\t%.0f\t%s\t%.1f\n",
			sanitizeInline(p.Name), p.Type, p.APY, p.TVL, p.Volume24h, p.RiskLevel, p.AIScore)
	}
	w.Flush()
	fmt.Fprintf(a.Out, "source: %s\n", listing.Source)
	return nil
}

// Recommend asks the configured LLM for a strategy over the current pools.
func (a *App) Recommend(ctx context.Context, rawProfile string, asJSON bool) error {
	profile := domain.StrategyProfile(strings.ToLower(strings.TrimSpace(rawProfile)))

	c := a.newCache()
	defer c.Close()
	pools := a.newPoolFetcher(c).FetchPools(ctx).Pools

	rec, err := strategy.NewAdvisor(a.newGenerator(ctx), a.Logger).Recommend(ctx, pools, profile)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(a, rec)
	}
	fmt.Fprintf(a.Out, "Recommended pools: %s\n", strings.Join(rec.RecommendedPools, ", "))
	fmt.Fprintf(a.Out, "Expected APY: %.2f%%\n", rec.ExpectedAPY)
	fmt.Fprintf(a.Out, "Risk: %s\n", rec.RiskAssessment)
	fmt.Fprintf(a.Out, "\n%s\n", rec.Reasoning)
	return nil
}

// RiskEvents prints recent guardian findings.
func (a *App) RiskEvents(ctx context.Context, opts ListOptions) error {
	repo, err := a.openRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	events, err := repo.ListRecentRiskEvents(ctx, limit)
	if err != nil {
		return domain.Upstream("store", err)
	}
	for i := range events {
		events[i].Severity = domain.ParseSeverity(string(events[i].Severity))
	}
	if opts.JSON {
		return writeJSON(a, events)
	}
	if len(events) == 0 {
		fmt.Fprintln(a.Out, "no risk events found")
		return nil
	}

	w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Time (UTC)\tType\tSeverity\tGuardian\tDescription")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
			ev.CreatedAt.UTC().Format(time.RFC3339), ev.EventType, ev.Severity, ev.TriggeredGuardian, sanitizeInline(ev.Description))
	}
	w.Flush()
	return nil
}

// Predictions prints recent AI forecasts and their accuracy.
func (a *App) Predictions(ctx context.Context, opts ListOptions) error {
	filter, err := insights.ParseFilter(opts.Filter)
	if err != nil {
		return err
	}
	repo, err := a.openRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	listing, err := insights.NewService(repo, a.Logger).List(ctx, filter, insights.DefaultLimit)
	if err != nil {
		return err
	}
	if opts.JSON {
		return writeJSON(a, listing)
	}

	w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Time (UTC)\tPool\tSpike\tConfidence\tResult")
	for _, p := range listing.Predictions {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n",
			p.PredictionTime.UTC().Format(time.RFC3339), p.PoolID, p.PredictedVolumeSpike,
			formatDecimalPtr(p.ConfidenceScore, 1), resultLabel(p.ActualResult))
	}
	w.Flush()
	s := listing.Stats
	fmt.Fprintf(a.Out, "accuracy %s%%  avg confidence %s%%  alpha $%s\n",
		s.AccuracyPct.StringFixed(1), s.AvgConfidence.StringFixed(1), s.TotalAlpha.StringFixed(2))
	return nil
}

// RecordPrediction stores a forecast produced outside the service.
func (a *App) RecordPrediction(ctx context.Context, poolID string, spike bool, confidence decimal.Decimal) error {
	repo, err := a.openRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	p, err := insights.NewService(repo, a.Logger).Record(ctx, poolID, spike, confidence, time.Time{})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "prediction %s recorded\n", p.ID)
	return nil
}

// WalletBalance prints the on-chain SOL balance of address.
func (a *App) WalletBalance(ctx context.Context, address string) error {
	client := a.newChain()
	defer client.Close()

	bal, err := client.Balance(ctx, address)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "%s: %s SOL (slot %d, %s)\n", bal.Address, bal.SOL.StringFixed(4), bal.Slot, a.Config.Solana.Network)
	return nil
}

func resultLabel(actual *bool) string {
	switch {
	case actual == nil:
		return "pending"
	case *actual:
		return "success"
	default:
		return "miss"
	}
}

func formatDecimalPtr(d *decimal.Decimal, places int32) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(places)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
