package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Snapshot is one immutable rate table: units of each currency per one unit
// of Base. Lookups read whichever snapshot is current; refresh swaps the
// pointer, never mutates.
type Snapshot struct {
	Base      string
	Rates     map[string]decimal.Decimal
	FetchedAt time.Time
	// Fallback marks the built-in table, used when no provider fetch has
	// succeeded yet.
	Fallback bool
}

// Options tune the converter.
type Options struct {
	// ProviderURL is the rate API base, e.g. https://api.exchangerate-api.com.
	ProviderURL string
	// Canonical is the currency alerts and comparisons are normalised to.
	Canonical string
	// Staleness is how old a snapshot may grow before refreshes are urged.
	Staleness time.Duration
	// Timeout bounds a single provider fetch.
	Timeout time.Duration
}

// Converter translates amounts between currencies. It never returns an
// error to callers: unknown currencies pass amounts through unconverted and
// provider outages fall back to the built-in table, both logged.
type Converter struct {
	opts     Options
	client   *http.Client
	logger   zerolog.Logger
	snapshot atomic.Pointer[Snapshot]

	refreshMu sync.Mutex
	now       func() time.Time
}

// NewConverter builds a converter seeded with the built-in fallback table.
func NewConverter(opts Options, logger zerolog.Logger) *Converter {
	if opts.Canonical == "" {
		opts.Canonical = "GBP"
	}
	if opts.Staleness <= 0 {
		opts.Staleness = 24 * time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	c := &Converter{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.With().Str("component", "rates").Logger(),
		now:    time.Now,
	}
	c.snapshot.Store(fallbackSnapshot(opts.Canonical))
	return c
}

// Canonical returns the normalisation currency.
func (c *Converter) Canonical() string {
	return c.opts.Canonical
}

// Current returns the snapshot lookups are served from.
func (c *Converter) Current() *Snapshot {
	return c.snapshot.Load()
}

// Stale reports whether the current snapshot is older than the staleness
// window. The fallback table is always stale.
func (c *Converter) Stale() bool {
	snap := c.snapshot.Load()
	return snap.Fallback || c.now().Sub(snap.FetchedAt) > c.opts.Staleness
}

// Convert translates an amount between currencies via the base, rounded to
// 2 places after the full chain. A currency missing from the table degrades
// to a pass-through so evaluation keeps working through provider outages.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) decimal.Decimal {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == to || from == "" || to == "" {
		return amount.Round(2)
	}

	snap := c.snapshot.Load()
	fromRate, okFrom := snap.rate(from)
	toRate, okTo := snap.rate(to)
	if !okFrom || !okTo || fromRate.IsZero() {
		c.logger.Warn().Str("from", from).Str("to", to).Msg("currency missing from rate table; passing amount through")
		return amount.Round(2)
	}

	// amount/fromRate is the base amount; times toRate lands in the target.
	return amount.Div(fromRate).Mul(toRate).Round(2)
}

// ToCanonical translates an amount into the canonical currency.
func (c *Converter) ToCanonical(ctx context.Context, amount decimal.Decimal, from string) decimal.Decimal {
	return c.Convert(ctx, amount, from, c.opts.Canonical)
}

// Refresh fetches a fresh table from the provider and swaps it in. Failures
// leave the current snapshot serving; the error is for the refresher's log.
func (c *Converter) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if c.opts.ProviderURL == "" {
		return fmt.Errorf("rates: provider url not configured")
	}

	endpoint := strings.TrimRight(c.opts.ProviderURL, "/") + "/v4/latest/" + c.opts.Canonical
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build rates request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rates provider status %d", resp.StatusCode)
	}

	var body struct {
		Base  string             `json:"base"`
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode rates: %w", err)
	}
	if len(body.Rates) == 0 {
		return fmt.Errorf("rates provider returned an empty table")
	}

	table := make(map[string]decimal.Decimal, len(body.Rates)+1)
	for code, rate := range body.Rates {
		table[strings.ToUpper(code)] = decimal.NewFromFloat(rate)
	}
	table[c.opts.Canonical] = decimal.NewFromInt(1)

	c.snapshot.Store(&Snapshot{
		Base:      c.opts.Canonical,
		Rates:     table,
		FetchedAt: c.now().UTC(),
	})
	c.logger.Info().Int("currencies", len(table)).Msg("rate table refreshed")
	return nil
}

// KeepFresh refreshes on the interval until ctx is cancelled. Failures are
// logged and retried next tick; conversion stays available throughout.
func (c *Converter) KeepFresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("initial rate refresh failed; serving fallback table")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn().Err(err).Msg("rate refresh failed; keeping previous table")
			}
		}
	}
}

func (s *Snapshot) rate(code string) (decimal.Decimal, bool) {
	if code == s.Base {
		return decimal.NewFromInt(1), true
	}
	rate, ok := s.Rates[code]
	return rate, ok
}

// fallbackSnapshot is a coarse GBP-based table so conversion works before
// the first provider fetch. Values are deliberately approximate.
func fallbackSnapshot(canonical string) *Snapshot {
	gbp := map[string]decimal.Decimal{
		"GBP": decimal.NewFromInt(1),
		"USD": decimal.RequireFromString("1.25"),
		"EUR": decimal.RequireFromString("1.15"),
		"JPY": decimal.RequireFromString("180"),
		"CAD": decimal.RequireFromString("1.70"),
		"AUD": decimal.RequireFromString("1.95"),
		"CHF": decimal.RequireFromString("1.10"),
		"CNY": decimal.RequireFromString("9.0"),
		"INR": decimal.RequireFromString("104.0"),
	}

	base, ok := gbp[canonical]
	if !ok || base.IsZero() {
		canonical, base = "GBP", decimal.NewFromInt(1)
	}

	// Rebase onto the canonical currency.
	table := make(map[string]decimal.Decimal, len(gbp))
	for code, rate := range gbp {
		table[code] = rate.Div(base)
	}

	return &Snapshot{
		Base:     canonical,
		Rates:    table,
		Fallback: true,
	}
}
