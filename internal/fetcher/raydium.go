package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"aether-vault/internal/cache"
	"aether-vault/internal/domain"
)

const (
	raydiumPairsPath = "/main/pairs"
	clmmProgramID    = "CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK"
	poolsCacheKey    = "raydium:pools"

	minLiquidity = 100_000
	minVolume24h = 50_000
)

// RaydiumOptions parameterise the pool listing fetcher.
type RaydiumOptions struct {
	BaseURL   string
	Timeout   time.Duration
	MaxPools  int
	UserAgent string
	Cache     cache.Cache
	CacheTTL  time.Duration
}

// Raydium lists AMM pools and annotates them with risk tier and score.
type Raydium struct {
	opts    RaydiumOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewRaydium constructs a pool fetcher.
func NewRaydium(opts RaydiumOptions, logger zerolog.Logger) *Raydium {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if opts.MaxPools <= 0 {
		opts.MaxPools = 20
	}
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Minute
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.raydium.io/v2"
	}

	return &Raydium{
		opts:    opts,
		logger:  logger.With().Str("component", "raydium_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchPools never fails. An empty upstream result yields the mock pools; an
// upstream error yields the last good listing, or the fallback pools.
func (r *Raydium) FetchPools(ctx context.Context) PoolListing {
	ctx, cancel := context.WithTimeout(ctx, r.client.Timeout)
	defer cancel()

	pools, err := r.fetch(ctx)
	if err != nil {
		if cached, ok := r.cached(ctx); ok {
			r.logger.Warn().Err(err).Int("pools", len(cached)).Msg("raydium unavailable, serving cached pools")
			return PoolListing{Pools: cached, Source: SourceCache}
		}
		r.logger.Warn().Err(err).Msg("raydium unavailable, serving fallback pools")
		return PoolListing{Pools: FallbackPools(), Source: SourceFallback}
	}
	if len(pools) == 0 {
		r.logger.Info().Msg("no pools passed filters, serving mock pools")
		return PoolListing{Pools: MockPools(), Source: SourceMock}
	}

	if payload, err := json.Marshal(pools); err == nil {
		if err := r.opts.Cache.Set(ctx, poolsCacheKey, payload, r.opts.CacheTTL); err != nil {
			r.logger.Debug().Err(err).Msg("cache pools")
		}
	}
	r.logger.Debug().Int("pools", len(pools)).Msg("fetched raydium pools")
	return PoolListing{Pools: pools, Source: SourceLive}
}

func (r *Raydium) fetch(ctx context.Context) ([]domain.Pool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+raydiumPairsPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(r.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, parseHTTPError("raydium", resp.StatusCode, payload)
	}

	return decodePairs(resp.Body, r.opts.MaxPools)
}

// decodePairs streams the pair array and stops once maxPools pools qualify.
// The full listing is tens of megabytes, so it is never buffered.
func decodePairs(body io.Reader, maxPools int) ([]domain.Pool, error) {
	dec := json.NewDecoder(body)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read pairs: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		// 非数组响应视为空结果
		return nil, nil
	}

	pools := make([]domain.Pool, 0, maxPools)
	for dec.More() && len(pools) < maxPools {
		var p pair
		if err := dec.Decode(&p); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				continue
			}
			return nil, fmt.Errorf("decode pair: %w", err)
		}
		if p.Liquidity > minLiquidity && p.Volume24h > minVolume24h {
			pools = append(pools, p.toPool(len(pools)))
		}
	}
	return pools, nil
}

func (r *Raydium) cached(ctx context.Context) ([]domain.Pool, bool) {
	payload, ok := r.opts.Cache.Get(ctx, poolsCacheKey)
	if !ok {
		return nil, false
	}
	var pools []domain.Pool
	if err := json.Unmarshal(payload, &pools); err != nil || len(pools) == 0 {
		return nil, false
	}
	return pools, true
}

type pair struct {
	AmmID           string  `json:"ammId"`
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	APY             float64 `json:"apy"`
	Liquidity       float64 `json:"liquidity"`
	Volume24h       float64 `json:"volume24h"`
	MarketProgramID string  `json:"marketProgramId"`
}

func (p pair) toPool(index int) domain.Pool {
	id := p.AmmID
	if id == "" {
		id = p.ID
	}
	if id == "" {
		id = fmt.Sprintf("pool-%d", index)
	}
	name := p.Name
	if name == "" {
		name = "Unknown Pool"
	}
	poolType := "AMM"
	if p.MarketProgramID == clmmProgramID {
		poolType = "CLMM"
	}
	return domain.Pool{
		PoolID:    id,
		Name:      name,
		APY:       p.APY,
		TVL:       p.Liquidity,
		Volume24h: p.Volume24h,
		RiskLevel: RiskLevelFor(p.Liquidity),
		AIScore:   AIScore(p.APY, p.Volume24h),
		Type:      poolType,
	}
}

// RiskLevelFor tiers a pool by liquidity.
func RiskLevelFor(liquidity float64) domain.RiskLevel {
	switch {
	case liquidity > 1_000_000:
		return domain.RiskLow
	case liquidity > 500_000:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

// AIScore is clamp(apy*3 + volume/100k, 70, 100).
func AIScore(apy, volume24h float64) float64 {
	return math.Min(100, math.Max(70, apy*3+volume24h/100_000))
}

// MockPools is served when the upstream returns nothing usable.
func MockPools() []domain.Pool {
	return samplePools("mock")
}

// FallbackPools is served when the upstream fails and nothing is cached.
func FallbackPools() []domain.Pool {
	return samplePools("fallback")
}

func samplePools(prefix string) []domain.Pool {
	return []domain.Pool{
		{
			PoolID:    prefix + "-sol-usdc",
			Name:      "SOL-USDC",
			APY:       15.5,
			TVL:       5_000_000,
			Volume24h: 250_000,
			RiskLevel: domain.RiskLow,
			AIScore:   85,
			Type:      "AMM",
		},
		{
			PoolID:    prefix + "-ray-usdc",
			Name:      "RAY-USDC",
			APY:       22.3,
			TVL:       2_000_000,
			Volume24h: 150_000,
			RiskLevel: domain.RiskMedium,
			AIScore:   78,
			Type:      "CLMM",
		},
	}
}

var _ PoolFetcher = (*Raydium)(nil)
