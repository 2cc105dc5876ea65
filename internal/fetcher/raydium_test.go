package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"aether-vault/internal/cache"
	"aether-vault/internal/domain"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestRaydiumHTTP500ServesFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewRaydium(RaydiumOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	listing := r.FetchPools(context.Background())

	if listing.Source != SourceFallback {
		t.Fatalf("期望 fallback, 实际 %s", listing.Source)
	}
	if len(listing.Pools) != 2 {
		t.Fatalf("应返回两个兜底池, 实际 %d", len(listing.Pools))
	}
	if listing.Pools[0].Name != "SOL-USDC" || listing.Pools[1].Name != "RAY-USDC" {
		t.Fatalf("兜底池名称不符: %+v", listing.Pools)
	}
	if listing.Pools[0].PoolID != "fallback-sol-usdc" {
		t.Fatalf("兜底池 id 不符: %s", listing.Pools[0].PoolID)
	}
}

func TestRaydiumFiltersAndAnnotates(t *testing.T) {
	body := `[
		{"ammId":"amm-1","name":"SOL-USDC","apy":10,"liquidity":2000000,"volume24h":300000,"marketProgramId":"x"},
		{"id":"id-2","name":"","apy":40,"liquidity":600000,"volume24h":60000,"marketProgramId":"` + clmmProgramID + `"},
		{"name":"thin","apy":5,"liquidity":100000,"volume24h":900000},
		{"name":"quiet","apy":5,"liquidity":900000,"volume24h":50000},
		{"name":"bad","apy":"n/a","liquidity":900000,"volume24h":90000},
		{"apy":1,"liquidity":150000,"volume24h":60000}
	]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != raydiumPairsPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	r := NewRaydium(RaydiumOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	listing := r.FetchPools(context.Background())
	if listing.Source != SourceLive {
		t.Fatalf("期望 live, 实际 %s", listing.Source)
	}
	if len(listing.Pools) != 3 {
		t.Fatalf("期望 3 个池, 实际 %d: %+v", len(listing.Pools), listing.Pools)
	}

	first := listing.Pools[0]
	if first.PoolID != "amm-1" || first.RiskLevel != domain.RiskLow || first.Type != "AMM" {
		t.Fatalf("第一个池注解错误: %+v", first)
	}
	if first.AIScore != 70 {
		t.Fatalf("aiScore 应被夹到 70, 实际 %v", first.AIScore)
	}

	second := listing.Pools[1]
	if second.PoolID != "id-2" || second.Name != "Unknown Pool" || second.RiskLevel != domain.RiskMedium || second.Type != "CLMM" {
		t.Fatalf("第二个池注解错误: %+v", second)
	}
	if second.AIScore != 100 {
		t.Fatalf("aiScore 应被夹到 100, 实际 %v", second.AIScore)
	}

	third := listing.Pools[2]
	if third.PoolID != "pool-2" || third.RiskLevel != domain.RiskHigh {
		t.Fatalf("第三个池注解错误: %+v", third)
	}
}

func TestRaydiumStopsAtMaxPools(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < 50; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"name":"P","apy":1,"liquidity":200000,"volume24h":60000}`)
	}
	sb.WriteString("]")

	pools, err := decodePairs(strings.NewReader(sb.String()), 20)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(pools) != 20 {
		t.Fatalf("期望 20 个池, 实际 %d", len(pools))
	}
}

func TestRaydiumEmptyServesMock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	r := NewRaydium(RaydiumOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	listing := r.FetchPools(context.Background())
	if listing.Source != SourceMock || listing.Pools[0].PoolID != "mock-sol-usdc" {
		t.Fatalf("空结果应返回 mock 池: %+v", listing)
	}
}

func TestRaydiumServesLastGoodOnFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"ammId":"live-1","name":"JUP-USDC","apy":12,"liquidity":3000000,"volume24h":400000}]`))
	}))
	defer srv.Close()

	c, err := cache.NewMemory()
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	defer c.Close()

	r := NewRaydium(RaydiumOptions{BaseURL: srv.URL, Timeout: time.Second, Cache: c}, noopLogger())
	if got := r.FetchPools(context.Background()); got.Source != SourceLive {
		t.Fatalf("首次请求应为 live: %s", got.Source)
	}

	fail.Store(true)
	listing := r.FetchPools(context.Background())
	if listing.Source != SourceCache {
		t.Fatalf("失败时应返回缓存, 实际 %s", listing.Source)
	}
	if len(listing.Pools) != 1 || listing.Pools[0].PoolID != "live-1" {
		t.Fatalf("缓存内容不符: %+v", listing.Pools)
	}
}
