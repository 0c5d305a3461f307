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

// TriggerEvent carries everything a notification needs about one firing.
type TriggerEvent struct {
	AlertID     int64
	ItineraryID int64
	Origin      string
	Destination string
	Provider    string
	Price       decimal.Decimal
	Currency    string
	MaxPrice    decimal.Decimal
	MaxCurrency string
	DeepLink    string
	TriggeredAt time.Time
}

// Dispatcher delivers trigger notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, event TriggerEvent) error
}

// LogDispatcher writes triggers to the structured log. It is the default
// destination and the fallback when no external channel is configured.
type LogDispatcher struct {
	logger zerolog.Logger
}

// NewLogDispatcher constructs a log-backed dispatcher.
func NewLogDispatcher(logger zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Dispatch logs the firing.
func (d *LogDispatcher) Dispatch(ctx context.Context, event TriggerEvent) error {
	d.logger.Info().
		Int64("alert_id", event.AlertID).
		Int64("itinerary_id", event.ItineraryID).
		Str("route", event.Origin+"-"+event.Destination).
		Str("provider", event.Provider).
		Str("price", event.Price.String()).
		Str("currency", event.Currency).
		Str("max_price", event.MaxPrice.String()).
		Str("deep_link", event.DeepLink).
		Msg("price alert triggered")
	return nil
}

// TelegramDispatcher pushes triggers through the Telegram Bot API.
type TelegramDispatcher struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramDispatcher constructs a Telegram-backed dispatcher.
func NewTelegramDispatcher(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramDispatcher{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Dispatch calls the sendMessage API with the rendered trigger.
func (d *TelegramDispatcher) Dispatch(ctx context.Context, event TriggerEvent) error {
	payload := map[string]string{
		"chat_id": d.chatID,
		"text":    renderMessage(event),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", d.baseURL, d.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	d.logger.Info().Int64("alert_id", event.AlertID).
		Str("route", event.Origin+"-"+event.Destination).
		Msg("alert dispatched via telegram")
	return nil
}

func renderMessage(event TriggerEvent) string {
	builder := strings.Builder{}
	builder.WriteString("[Fare Alert]\n")
	builder.WriteString(fmt.Sprintf("Route: %s -> %s\n", event.Origin, event.Destination))
	builder.WriteString(fmt.Sprintf("Price: %s %s (limit %s %s)\n",
		event.Price.StringFixed(2), event.Currency, event.MaxPrice.StringFixed(2), event.MaxCurrency))
	builder.WriteString(fmt.Sprintf("Provider: %s\n", event.Provider))
	builder.WriteString(fmt.Sprintf("Seen: %s UTC\n", event.TriggeredAt.UTC().Format(time.RFC3339)))
	if event.DeepLink != "" {
		builder.WriteString(fmt.Sprintf("Book: %s\n", event.DeepLink))
	}
	return builder.String()
}

var (
	_ Dispatcher = (*LogDispatcher)(nil)
	_ Dispatcher = (*TelegramDispatcher)(nil)
)
