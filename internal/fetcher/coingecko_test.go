package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCoinGeckoFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != coingeckoPricePath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("ids") != "solana" || r.URL.Query().Get("include_24hr_change") != "true" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if r.Header.Get("x-cg-demo-api-key") != "demo" {
			t.Errorf("api key header missing")
		}
		_, _ = w.Write([]byte(`{"solana":{"usd":142.37,"usd_24h_change":-12.3456}}`))
	}))
	defer srv.Close()

	c := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, APIKey: "demo", Timeout: time.Second}, noopLogger())
	q, err := c.FetchPrice(context.Background())
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if !q.Price.Equal(decimal.RequireFromString("142.37")) {
		t.Fatalf("价格错误: %s", q.Price)
	}
	if !q.Change24h.Equal(decimal.RequireFromString("-12.3456")) {
		t.Fatalf("涨跌幅错误: %s", q.Change24h)
	}
}

func TestCoinGeckoFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"status":{"error_code":429,"error_message":"You've exceeded the Rate Limit"}}`))
	}))
	defer srv.Close()

	c := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := c.FetchPrice(context.Background())
	if err == nil {
		t.Fatal("HTTP 429 应返回错误")
	}
	if want := "coingecko api error (429): You've exceeded the Rate Limit"; err.Error() != want {
		t.Fatalf("错误信息不符: %v", err)
	}
}

func TestCoinGeckoMissingFields(t *testing.T) {
	if _, err := parseSimplePrice([]byte(`{"solana":{"usd":100}}`), "solana"); err == nil {
		t.Fatal("缺少 24h 变化时应报错")
	}
	if _, err := parseSimplePrice([]byte(`{}`), "solana"); err == nil {
		t.Fatal("缺少价格时应报错")
	}
	if _, err := parseSimplePrice([]byte(`not json`), "solana"); err == nil {
		t.Fatal("非法 json 应报错")
	}
}

func TestCoinGeckoRespectsContextWhilePaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"solana":{"usd":1,"usd_24h_change":0}}`))
	}))
	defer srv.Close()

	c := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, Timeout: time.Second, MinInterval: time.Hour}, noopLogger())
	if _, err := c.FetchPrice(context.Background()); err != nil {
		t.Fatalf("首次请求不应被限流: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.FetchPrice(ctx); err == nil {
		t.Fatal("第二次请求应因限流等待超时")
	}
}
