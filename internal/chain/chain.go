// Package chain reads Solana state over JSON-RPC. Only reads are supported;
// no transaction is ever built or submitted.
package chain

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"aether-vault/internal/domain"
)

const (
	mainnetEndpoint = "https://api.mainnet-beta.solana.com"
	devnetEndpoint  = "https://api.devnet.solana.com"

	lamportsPerSOL = 1_000_000_000
)

var addressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// ValidAddress reports whether s looks like a base58 Solana public key.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// Options parameterise the RPC client.
type Options struct {
	RPCURL  string
	Network string
	Timeout time.Duration
}

// Endpoint resolves the RPC URL: an explicit URL (e.g. a Triton endpoint) wins,
// otherwise the public endpoint for the network.
func (o Options) Endpoint() string {
	if o.RPCURL != "" {
		return o.RPCURL
	}
	if o.Network == "mainnet-beta" {
		return mainnetEndpoint
	}
	return devnetEndpoint
}

// Client is a lazily dialled Solana JSON-RPC client.
type Client struct {
	opts      Options
	logger    zerolog.Logger
	client    *rpc.Client
	clientMux sync.Mutex
}

// NewClient builds a client; the connection is dialled on first use.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	return &Client{opts: opts, logger: logger.With().Str("component", "solana_rpc").Logger()}
}

type commitment struct {
	Commitment string `json:"commitment"`
}

var confirmed = commitment{Commitment: "confirmed"}

type balanceResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value uint64 `json:"value"`
}

// Balance holds a wallet's SOL balance at a slot.
type Balance struct {
	Address  string          `json:"address"`
	Lamports uint64          `json:"lamports"`
	SOL      decimal.Decimal `json:"sol"`
	Slot     uint64          `json:"slot"`
}

// Balance returns the confirmed SOL balance of address.
func (c *Client) Balance(ctx context.Context, address string) (Balance, error) {
	if !ValidAddress(address) {
		return Balance{}, domain.NewValidationError("address", "Invalid Solana wallet address")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return Balance{}, domain.Upstream("solana rpc", err)
	}

	var res balanceResult
	if err := client.CallContext(ctx, &res, "getBalance", address, confirmed); err != nil {
		return Balance{}, domain.Upstream("solana rpc", fmt.Errorf("getBalance: %w", err))
	}

	return Balance{
		Address:  address,
		Lamports: res.Value,
		SOL:      decimal.NewFromInt(int64(res.Value)).Div(decimal.NewFromInt(lamportsPerSOL)),
		Slot:     res.Context.Slot,
	}, nil
}

// Slot returns the current confirmed slot.
func (c *Client) Slot(ctx context.Context) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return 0, domain.Upstream("solana rpc", err)
	}
	var slot uint64
	if err := client.CallContext(ctx, &slot, "getSlot", confirmed); err != nil {
		return 0, domain.Upstream("solana rpc", fmt.Errorf("getSlot: %w", err))
	}
	return slot, nil
}

// Close drops the underlying connection.
func (c *Client) Close() {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Client) getClient(ctx context.Context) (*rpc.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	endpoint := c.opts.Endpoint()
	if endpoint == "" {
		return nil, errors.New("solana rpc url not configured")
	}
	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Str("endpoint", endpoint).Msg("dialled solana rpc")
	c.client = client
	return client, nil
}
