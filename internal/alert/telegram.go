package alert

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

const (
	telegramMaxText    = 4096
	telegramMaxValue   = 512
	telegramParseMode  = "HTML"
	telegramDefaultURL = "https://api.telegram.org"
)

// quietEvents are delivered without a notification sound.
var quietEvents = map[string]bool{
	"runner_started":           true,
	"runner_stopped":           true,
	"failure_streak_recovered": true,
}

// TelegramNotifier posts alerts to one chat through the Bot API sendMessage call.
type TelegramNotifier struct {
	endpoint string
	chatID   string
	http     *http.Client
}

func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = telegramDefaultURL
	}
	return &TelegramNotifier{
		endpoint: strings.TrimRight(baseURL, "/") + "/bot" + botToken + "/sendMessage",
		chatID:   chatID,
		http:     &http.Client{Timeout: timeout},
	}
}

func (t *TelegramNotifier) Notify(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(telegramSendRequest{
		ChatID:                t.chatID,
		Text:                  renderTelegramHTML(msg),
		ParseMode:             telegramParseMode,
		DisableWebPagePreview: true,
		DisableNotification:   quietEvents[msg.Event],
	})
	if err != nil {
		return fmt.Errorf("encode telegram message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram %s: %w", msg.Event, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var reply telegramReply
	decodeErr := json.Unmarshal(raw, &reply)
	if resp.StatusCode/100 != 2 {
		if decodeErr == nil && reply.Description != "" {
			return fmt.Errorf("telegram status=%d: %s", resp.StatusCode, reply.Description)
		}
		return fmt.Errorf("telegram status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if decodeErr == nil && len(raw) > 0 && !reply.OK {
		return fmt.Errorf("telegram api error: %s", strings.TrimSpace(reply.Description))
	}
	return nil
}

// renderTelegramHTML lays out the event as a bold header line, the market on
// the second line, then one line per field. Values are escaped and clipped.
func renderTelegramHTML(msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>[%s] %s</b>\n", appName, html.EscapeString(msg.Event))
	fmt.Fprintf(&b, "<code>%s</code> on %s\n", html.EscapeString(msg.Symbol), html.EscapeString(msg.Exchange))
	fmt.Fprintf(&b, "<i>%s</i>", msg.At.Format(time.RFC3339))
	if id, ok := msg.Field("cycle_id"); ok {
		fmt.Fprintf(&b, "\ncycle <code>%s</code>", html.EscapeString(id))
	}
	for _, f := range msg.Fields {
		if f.Key == "cycle_id" {
			continue
		}
		line := fmt.Sprintf("\n%s: <code>%s</code>", html.EscapeString(f.Key), html.EscapeString(clip(f.Value, telegramMaxValue)))
		if b.Len()+len(line) > telegramMaxText {
			b.WriteString("\n…")
			break
		}
		b.WriteString(line)
	}
	return b.String()
}

func clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "…"
}

type telegramSendRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
	DisableNotification   bool   `json:"disable_notification,omitempty"`
}

type telegramReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}
