package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"aether-vault/internal/domain"
)

// Guardian notification copy shown to the user.
const (
	GuardianTitle = "Guardian Protection Activated!"
	GuardianBody  = "Your funds are being moved to safety due to detected market risk."
)

// Notification 封装一次 Guardian 告警的上下文。
type Notification struct {
	At             time.Time
	Title          string
	Body           string
	EventType      string
	Severity       domain.Severity
	Description    string
	SolPrice       decimal.Decimal
	PriceChange24h decimal.Decimal
}

// GuardianActivated builds the notification sent on the inactive to active edge.
func GuardianActivated(at time.Time, eventType string, sev domain.Severity, description string, price, change decimal.Decimal) Notification {
	return Notification{
		At:             at,
		Title:          GuardianTitle,
		Body:           GuardianBody,
		EventType:      eventType,
		Severity:       sev,
		Description:    description,
		SolPrice:       price,
		PriceChange24h: change,
	}
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken  string
	chatID    string
	baseURL   string
	userAgent string
	client    *http.Client
	logger    zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL, userAgent string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &TelegramNotifier{
		botToken:  botToken,
		chatID:    chatID,
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	body, err := json.Marshal(map[string]string{
		"chat_id": n.chatID,
		"text":    RenderMessage(note),
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.userAgent != "" {
		req.Header.Set("User-Agent", n.userAgent)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return domain.Upstream("telegram", fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Upstream("telegram", fmt.Errorf("响应码异常: %d", resp.StatusCode))
	}
	if ok := gjson.GetBytes(payload, "ok"); ok.Exists() && !ok.Bool() {
		return domain.Upstream("telegram", fmt.Errorf("ok=false: %s", gjson.GetBytes(payload, "description").String()))
	}

	n.logger.Info().
		Str("event_type", note.EventType).
		Str("severity", string(note.Severity)).
		Msg("告警已发送 (Telegram)")
	return nil
}

// LogNotifier writes notifications to the log. It is the default channel
// when no push channel is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a log-only notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the notification at warn level.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Warn().
		Time("at", note.At).
		Str("event_type", note.EventType).
		Str("severity", string(note.Severity)).
		Str("sol_price", note.SolPrice.StringFixed(2)).
		Str("change_24h", note.PriceChange24h.StringFixed(2)).
		Str("description", note.Description).
		Msg(note.Title)
	return nil
}

// Multi fans a notification out to every channel and joins their errors.
type Multi []Notifier

// Notify delivers to all channels even when one fails.
func (m Multi) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RenderMessage formats the push text.
func RenderMessage(note Notification) string {
	var b strings.Builder
	b.WriteString("[Aether Guardian]\n")
	if note.Title != "" {
		b.WriteString(note.Title + "\n")
	}
	if note.Body != "" {
		b.WriteString(note.Body + "\n")
	}
	if !note.At.IsZero() {
		fmt.Fprintf(&b, "Time: %s UTC\n", note.At.UTC().Format(time.RFC3339))
	}
	if note.Severity != "" {
		fmt.Fprintf(&b, "Severity: %s (%s)\n", note.Severity, note.EventType)
	}
	fmt.Fprintf(&b, "SOL: $%s (24h %s%%)\n", note.SolPrice.StringFixed(2), note.PriceChange24h.StringFixed(2))
	if note.Description != "" {
		b.WriteString(note.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Multi(nil)
)
