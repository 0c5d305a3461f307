package relay

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
)

var (
	// ErrDeliveryExhausted reports that every delivery attempt failed.
	ErrDeliveryExhausted = errors.New("relay: delivery attempts exhausted")
	// ErrObservationRejected reports a 4xx from the backend. The payload
	// itself is at fault, so retrying cannot help.
	ErrObservationRejected = errors.New("relay: observation rejected")
)

// RetryPolicy bounds delivery attempts. Delay doubles (or grows by
// Multiplier) after each failed attempt.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy is 1 initial attempt plus 3 retries at 400/800/1600ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BaseDelay: 400 * time.Millisecond, Multiplier: 2}
}

// Delay returns the backoff before the given retry. attempt is 1-based:
// Delay(1) is the wait after the first failure.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay
	if delay <= 0 {
		delay = 400 * time.Millisecond
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * multiplier)
	}
	return delay
}

// Options parameterise the relay client.
type Options struct {
	Endpoint  string
	APIKey    string
	UserAgent string
	Timeout   time.Duration
	Retry     RetryPolicy
}

// Client delivers observations to the ingestion endpoint.
type Client struct {
	opts   Options
	client *http.Client
	logger zerolog.Logger
}

// NewClient constructs a relay client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}

	return &Client{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "relay").Logger(),
	}
}

// Deliver posts the observation, retrying transient failures under the
// retry policy. A backend rejection (4xx) is permanent and returns
// ErrObservationRejected without further attempts; exhausting retries
// returns ErrDeliveryExhausted. Either way the observation is dropped and
// the failure is confined to the returned error and the diagnostic log.
func (c *Client) Deliver(ctx context.Context, obs Observation) error {
	if c.opts.Endpoint == "" {
		return errors.New("relay: endpoint not configured")
	}

	body, err := json.Marshal(payload{
		Vendor:    obs.SourceKey,
		URL:       obs.URL,
		RawPrice:  obs.RawPriceText,
		Price:     obs.ParsedAmount,
		Currency:  obs.CurrencyGuess,
		Route:     obs.Route,
		PageTitle: obs.PageTitle,
		UserAgent: c.opts.UserAgent,
		TabURL:    obs.URL,
		ClientID:  obs.ClientID,
		TS:        obs.CapturedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal observation: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.Retry.MaxAttempts; attempt++ {
		lastErr = c.post(ctx, body)
		if lastErr == nil {
			c.logger.Debug().Str("vendor", obs.SourceKey).Str("url", obs.URL).Int("attempt", attempt).Msg("observation delivered")
			return nil
		}

		if errors.Is(lastErr, ErrObservationRejected) {
			c.logger.Warn().Err(lastErr).Str("vendor", obs.SourceKey).Msg("observation rejected by backend; not retrying")
			return lastErr
		}

		if attempt == c.opts.Retry.MaxAttempts {
			break
		}

		delay := c.opts.Retry.Delay(attempt)
		c.logger.Debug().Err(lastErr).Dur("backoff", delay).Int("attempt", attempt).Msg("delivery failed; backing off")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	c.logger.Error().Err(lastErr).Str("vendor", obs.SourceKey).Str("url", obs.URL).
		Int("attempts", c.opts.Retry.MaxAttempts).Msg("delivery exhausted; observation dropped")
	return fmt.Errorf("%w: %v", ErrDeliveryExhausted, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("X-API-Key", c.opts.APIKey)
	}
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return fmt.Errorf("%w: status %d: %s", ErrObservationRejected, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return fmt.Errorf("ingest endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
}
