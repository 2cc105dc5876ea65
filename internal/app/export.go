package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"aether-vault/internal/vault"
)

// Export renders the balance history of a vault as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Owner == "" {
		return errors.New("--user is required")
	}
	if opts.From != nil && opts.To != nil && !opts.From.Before(*opts.To) {
		return errors.New("from must be before to")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	var points []vault.BalancePoint
	err := a.withVaults(ctx, func(svc *vault.Service) error {
		var err error
		points, err = svc.BalanceSeries(ctx, opts.Owner)
		return err
	})
	if err != nil {
		return err
	}

	points = windowPoints(points, opts.From, opts.To)
	if len(points) == 0 {
		a.Logger.Info().Msg("no balance changes found for export window")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting balance history")

	if opts.CSVPath != "" {
		if err := writeBalanceCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeBalancePNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}
	return nil
}

func windowPoints(points []vault.BalancePoint, from, to *time.Time) []vault.BalancePoint {
	if from == nil && to == nil {
		return points
	}
	kept := points[:0:0]
	for _, p := range points {
		if from != nil && p.At.Before(*from) {
			continue
		}
		if to != nil && p.At.After(*to) {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

func downsamplePoints(points []vault.BalancePoint, max int) []vault.BalancePoint {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make([]vault.BalancePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeBalanceCSV(path string, points []vault.BalancePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"timestamp", "type", "amount_usdc", "balance_usdc"}); err != nil {
		return err
	}
	for _, p := range points {
		record := []string{
			p.At.UTC().Format(time.RFC3339),
			string(p.Kind),
			p.Amount.StringFixed(2),
			p.Balance.StringFixed(2),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeBalancePNG(path string, points []vault.BalancePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	balance := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.At
		balance[i] = p.Balance.InexactFloat64()
	}
	// go-chart 需要至少两个点才能画线
	if len(points) == 1 {
		x = append(x, x[0].Add(time.Minute))
		balance = append(balance, balance[0])
	}

	usdc := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Balance (USDC)",
			ValueFormatter: usdc,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Vault balance",
				XValues: x,
				YValues: balance,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
