package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aether-vault/internal/config"
)

func TestGatewayGenerate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, chatCompletionsPath, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"reasoning\":\"ok\"}"}}]}`))
	}))
	defer srv.Close()

	g := NewGateway(GatewayOptions{BaseURL: srv.URL, APIKey: "secret", Timeout: time.Second}, zerolog.Nop())
	out, err := g.Generate(context.Background(), "sys", "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"reasoning":"ok"}`, out)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "sys", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "google/gemini-2.5-flash", got.Model)
}

func TestGatewayErrors(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	g := NewGateway(GatewayOptions{BaseURL: srv.URL, APIKey: "k", Timeout: time.Second}, zerolog.Nop())
	_, err := g.Generate(context.Background(), "s", "p")
	assert.EqualError(t, err, "ai gateway rate limited")

	status = http.StatusInternalServerError
	_, err = g.Generate(context.Background(), "s", "p")
	assert.EqualError(t, err, "ai gateway returned 500")

	noKey := NewGateway(GatewayOptions{BaseURL: srv.URL}, zerolog.Nop())
	_, err = noKey.Generate(context.Background(), "s", "p")
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestNewSelectsProvider(t *testing.T) {
	g, err := New(context.Background(), config.LLMConfig{Provider: "gateway"}, "test", zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &Gateway{}, g)

	a, err := New(context.Background(), config.LLMConfig{Provider: "anthropic", APIKey: "k"}, "test", zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &Anthropic{}, a)

	_, err = New(context.Background(), config.LLMConfig{Provider: "gemini"}, "test", zerolog.Nop())
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, err = New(context.Background(), config.LLMConfig{Provider: "mystery"}, "test", zerolog.Nop())
	assert.Error(t, err)
}
