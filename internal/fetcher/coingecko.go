package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const coingeckoPricePath = "/simple/price"

// CoinGeckoOptions parameterise the price feed.
type CoinGeckoOptions struct {
	BaseURL     string
	CoinID      string
	APIKey      string
	Timeout     time.Duration
	MinInterval time.Duration
	UserAgent   string
}

// CoinGecko reads spot price and 24h change from the public simple/price API.
type CoinGecko struct {
	opts    CoinGeckoOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
}

// NewCoinGecko constructs a price fetcher. Calls are paced to MinInterval.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.CoinID == "" {
		opts.CoinID = "solana"
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	return &CoinGecko{
		opts:    opts,
		logger:  logger.With().Str("component", "price_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// FetchPrice returns the current USD price and 24h percent change.
func (c *CoinGecko) FetchPrice(ctx context.Context) (Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Quote{}, fmt.Errorf("price feed rate limit: %w", err)
	}

	q := url.Values{}
	q.Set("ids", c.opts.CoinID)
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")
	endpoint := c.baseURL + coingeckoPricePath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if c.opts.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.opts.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, parseHTTPError("coingecko", resp.StatusCode, payload)
	}

	return parseSimplePrice(payload, c.opts.CoinID)
}

func parseSimplePrice(payload []byte, coinID string) (Quote, error) {
	if !gjson.ValidBytes(payload) {
		return Quote{}, errors.New("coingecko: invalid json")
	}
	// coin ids may contain dots in theory; escape for gjson paths
	key := strings.ReplaceAll(coinID, ".", `\.`)
	price := gjson.GetBytes(payload, key+".usd")
	change := gjson.GetBytes(payload, key+".usd_24h_change")
	if !price.Exists() {
		return Quote{}, fmt.Errorf("coingecko: no usd price for %s", coinID)
	}
	if !change.Exists() {
		return Quote{}, fmt.Errorf("coingecko: no 24h change for %s", coinID)
	}

	p, err := decimal.NewFromString(price.Raw)
	if err != nil {
		return Quote{}, fmt.Errorf("parse price: %w", err)
	}
	ch, err := decimal.NewFromString(change.Raw)
	if err != nil {
		return Quote{}, fmt.Errorf("parse 24h change: %w", err)
	}
	return Quote{Price: p, Change24h: ch}, nil
}

var _ PriceFetcher = (*CoinGecko)(nil)
