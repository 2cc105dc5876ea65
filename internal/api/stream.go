package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"aether-vault/internal/domain"
	"aether-vault/internal/vault"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = pongWait * 9 / 10
	sendBufSize = 16
)

// TxEvent is the message pushed to stream clients.
type TxEvent struct {
	Type  string             `json:"type"`
	Entry vault.HistoryEntry `json:"transaction"`
}

type client struct {
	wallet string
	send   chan TxEvent
}

// Hub fans appended transactions out to the websocket clients of the same
// wallet. It implements vault.Publisher.
type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub constructs an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 与 CORS 策略一致，允许任意来源
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger.With().Str("component", "tx_stream").Logger(),
		clients: make(map[*client]struct{}),
	}
}

// Publish delivers tx to subscribers of its wallet. Slow clients drop
// messages instead of blocking the writer.
func (h *Hub) Publish(tx domain.Transaction) {
	ev := TxEvent{
		Type: "transaction",
		Entry: vault.HistoryEntry{
			ID:          tx.ID,
			Type:        tx.Kind,
			Description: vault.Describe(tx),
			Amount:      vault.FormatAmount(tx.Amount),
			Status:      tx.Status,
			Timestamp:   tx.CreatedAt,
		},
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.wallet != tx.WalletAddress {
			continue
		}
		select {
		case c.send <- ev:
		default:
			h.logger.Warn().Str("wallet", c.wallet).Msg("stream client too slow, dropping event")
		}
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// Serve upgrades the request and streams events for wallet until the peer
// disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, wallet string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Info().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{wallet: wallet, send: make(chan TxEvent, sendBufSize)}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	h.logger.Debug().Str("wallet", wallet).Msg("stream client connected")

	go h.writeLoop(conn, c)
	h.readLoop(conn)
	h.unregister(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readLoop drains control frames; clients send nothing else.
func (h *Hub) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ vault.Publisher = (*Hub)(nil)
