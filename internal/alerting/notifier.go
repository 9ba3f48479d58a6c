package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification 封装一次告警上下文。
type Notification struct {
	WatchName   string
	PriceCents  int64
	ProfitCents int64
	FloatValue  *float64
	PaintSeed   *int
	Stickers    []string
	ListingURL  string
	InspectURL  string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id":                  n.chatID,
		"text":                     RenderMessage(note),
		"parse_mode":               "Markdown",
		"disable_web_page_preview": "true",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().
		Str("watch", note.WatchName).
		Int64("price_cents", note.PriceCents).
		Msg("告警已发送 (Telegram)")
	return nil
}

// RenderMessage formats the candidate summary sent to the chat.
func RenderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("%s — candidate found\n", note.WatchName))
	builder.WriteString(fmt.Sprintf("Price: $%s | Profit: $%s", dollars(note.PriceCents), dollars(note.ProfitCents)))
	if note.FloatValue != nil {
		builder.WriteString(fmt.Sprintf(" | Float: %.6f", *note.FloatValue))
	}
	if note.PaintSeed != nil {
		builder.WriteString(fmt.Sprintf(" | Seed: %d", *note.PaintSeed))
	}
	builder.WriteString("\n")
	if len(note.Stickers) > 0 {
		builder.WriteString(fmt.Sprintf("Stickers: %s\n", strings.Join(note.Stickers, ", ")))
	} else {
		builder.WriteString("Stickers: None\n")
	}
	if note.ListingURL != "" {
		builder.WriteString(fmt.Sprintf("[Open Listing](%s)\n", note.ListingURL))
	}
	if note.InspectURL != "" {
		builder.WriteString(fmt.Sprintf("[Inspect Link](%s)", note.InspectURL))
	}
	return strings.TrimRight(builder.String(), "\n")
}

func dollars(cents int64) string {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}

var _ Notifier = (*TelegramNotifier)(nil)
