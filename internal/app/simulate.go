package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"aether-vault/internal/fetcher"
	"aether-vault/internal/guardian"
)

// SimulateRisk 使用给定的价格与 24h 涨跌幅模拟一次 Guardian 检查，并走完整的通知流程。
func (a *App) SimulateRisk(ctx context.Context, price, change24h decimal.Decimal) error {
	quotes := &staticPriceFetcher{quote: fetcher.Quote{Price: price, Change24h: change24h}}
	checker := guardian.NewChecker(quotes, nil, a.Logger)
	poller := guardian.NewPoller(nil, checker, guardian.AlwaysOn{}, a.newNotifier(), guardian.PollerOptions{}, a.Logger)

	if err := poller.Tick(ctx, time.Now().UTC()); err != nil {
		return err
	}
	last, ok := poller.Last()
	if !ok {
		return fmt.Errorf("simulation produced no result")
	}
	printRisk(a, last)
	fmt.Fprintf(a.Out, "Guardian active: %t\n", poller.Active())
	return nil
}

type staticPriceFetcher struct {
	quote fetcher.Quote
}

func (s *staticPriceFetcher) FetchPrice(context.Context) (fetcher.Quote, error) {
	return s.quote, nil
}

var _ fetcher.PriceFetcher = (*staticPriceFetcher)(nil)
