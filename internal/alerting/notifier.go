// Package alerting detects retail deals below market value and delivers notifications about them.
package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"boxbluebook/internal/apperr"
)

// DefaultTelegramAPI is the public Bot API base.
const DefaultTelegramAPI = "https://api.telegram.org"

// DealNotification carries the context of one deal alert.
type DealNotification struct {
	CigarName     string
	Competitor    string
	URL           string
	PriceSingle   decimal.Decimal
	CMV           decimal.Decimal
	Confidence    string
	DiscountPct   decimal.Decimal
	ThresholdPct  decimal.Decimal
	Channels      []string
	ScrapedAt     time.Time
	AdditionalMsg string
}

// Notifier delivers deal notifications.
type Notifier interface {
	Notify(ctx context.Context, note DealNotification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	client   *resty.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = DefaultTelegramAPI
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		client:   client,
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered alert text.
func (n *TelegramNotifier) Notify(ctx context.Context, note DealNotification) error {
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id":                  n.chatID,
			"text":                     RenderMessage(note),
			"disable_web_page_preview": true,
		}).
		SetResult(&result).
		SetError(&result).
		Post(fmt.Sprintf("/bot%s/sendMessage", n.botToken))
	if err != nil {
		return fmt.Errorf("send telegram request: %w: %w", err, apperr.ErrUpstreamUnavailable)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram status %d %s: %w", resp.StatusCode(), result.Description, apperr.ErrUpstreamUnavailable)
	}
	if !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	n.logger.Info().
		Str("competitor", note.Competitor).
		Str("cigar", note.CigarName).
		Str("discount_pct", note.DiscountPct.StringFixed(2)).
		Str("channels", strings.Join(note.Channels, ",")).
		Msg("deal alert sent")
	return nil
}

// LogNotifier writes alerts to the log only.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a notifier that only logs.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the alert at warn level.
func (n *LogNotifier) Notify(_ context.Context, note DealNotification) error {
	n.logger.Warn().
		Str("competitor", note.Competitor).
		Str("cigar", note.CigarName).
		Str("price_single", note.PriceSingle.StringFixed(2)).
		Str("cmv", note.CMV.StringFixed(2)).
		Str("discount_pct", note.DiscountPct.StringFixed(2)).
		Msg("deal below market value")
	return nil
}

// RenderMessage formats the alert text.
func RenderMessage(note DealNotification) string {
	var b strings.Builder
	b.WriteString("[BoxBlueBook Deal]\n")
	fmt.Fprintf(&b, "Cigar: %s\n", note.CigarName)
	fmt.Fprintf(&b, "Retailer: %s\n", note.Competitor)
	fmt.Fprintf(&b, "Price: $%s per cigar\n", note.PriceSingle.StringFixed(2))
	if note.Confidence != "" {
		fmt.Fprintf(&b, "Market value: $%s (%s confidence)\n", note.CMV.StringFixed(2), note.Confidence)
	} else {
		fmt.Fprintf(&b, "Market value: $%s\n", note.CMV.StringFixed(2))
	}
	fmt.Fprintf(&b, "Discount: %s%% (threshold %s%%)\n", note.DiscountPct.StringFixed(2), note.ThresholdPct.StringFixed(2))
	if !note.ScrapedAt.IsZero() {
		fmt.Fprintf(&b, "Seen: %s UTC\n", note.ScrapedAt.UTC().Format(time.RFC3339))
	}
	if note.URL != "" {
		fmt.Fprintf(&b, "%s\n", note.URL)
	}
	if len(note.Channels) > 0 {
		fmt.Fprintf(&b, "Channels: %s\n", strings.Join(note.Channels, ","))
	}
	if note.AdditionalMsg != "" {
		b.WriteString(note.AdditionalMsg)
	}
	return b.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
