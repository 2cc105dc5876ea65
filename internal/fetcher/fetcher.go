package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"aether-vault/internal/domain"
)

// PoolSource tells where a pool listing came from.
type PoolSource string

const (
	SourceLive     PoolSource = "live"
	SourceCache    PoolSource = "cache"
	SourceMock     PoolSource = "mock"
	SourceFallback PoolSource = "fallback"
)

// PoolListing is the result of a pool fetch. It is never empty.
type PoolListing struct {
	Pools  []domain.Pool
	Source PoolSource
}

// PoolFetcher retrieves liquidity pools. Implementations degrade instead of failing.
type PoolFetcher interface {
	FetchPools(ctx context.Context) PoolListing
}

// Quote is a spot price with its 24h percent change.
type Quote struct {
	Price     decimal.Decimal
	Change24h decimal.Decimal
}

// PriceFetcher retrieves the current price of the tracked asset.
type PriceFetcher interface {
	FetchPrice(ctx context.Context) (Quote, error)
}

type errorResponse struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
	Status  struct {
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

func parseHTTPError(service string, status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Status.ErrorMessage != "" {
			return fmt.Errorf("%s api error (%d): %s", service, status, apiErr.Status.ErrorMessage)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("%s api error (%d): %s", service, status, apiErr.Message)
		}
		if len(apiErr.Error) > 0 {
			return fmt.Errorf("%s api error (%d): %s", service, status, strings.Trim(string(apiErr.Error), `"`))
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("%s api error (%d): %s", service, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("%s api error (%d)", service, status)
}
