package chain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aether-vault/internal/domain"
)

const testWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func rpcServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}
		result, ok := results[req.Method]
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32601,"message":"Method not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + result + `}`))
	}))
}

func TestBalance(t *testing.T) {
	srv := rpcServer(t, map[string]string{
		"getBalance": `{"context":{"slot":321},"value":2500000000}`,
		"getSlot":    `654`,
	})
	defer srv.Close()

	c := NewClient(Options{RPCURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	defer c.Close()

	b, err := c.Balance(context.Background(), testWallet)
	require.NoError(t, err)
	assert.EqualValues(t, 2_500_000_000, b.Lamports)
	assert.True(t, b.SOL.Equal(decimal.RequireFromString("2.5")), b.SOL.String())
	assert.EqualValues(t, 321, b.Slot)

	slot, err := c.Slot(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 654, slot)
}

func TestBalanceErrors(t *testing.T) {
	srv := rpcServer(t, map[string]string{})
	defer srv.Close()

	c := NewClient(Options{RPCURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	defer c.Close()

	_, err := c.Balance(context.Background(), "0xdeadbeef")
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = c.Balance(context.Background(), testWallet)
	assert.True(t, errors.Is(err, domain.ErrUpstream))
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t, devnetEndpoint, Options{}.Endpoint())
	assert.Equal(t, mainnetEndpoint, Options{Network: "mainnet-beta"}.Endpoint())
	assert.Equal(t, "https://triton.example", Options{RPCURL: "https://triton.example", Network: "mainnet-beta"}.Endpoint())
}
