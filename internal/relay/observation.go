package relay

import (
	"time"

	"github.com/shopspring/decimal"
)

// Route is the searched origin/destination/date triple, as scraped.
type Route struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Date        string `json:"date,omitempty"`
}

// Observation is a single as-scraped price fact. It is immutable once
// built by the page agent and owned by the relay until the backend
// acknowledges it; there is no local queue, so an undeliverable
// observation is simply dropped.
type Observation struct {
	SourceKey     string
	URL           string
	RawPriceText  string
	ParsedAmount  decimal.Decimal
	CurrencyGuess string
	Route         Route
	PageTitle     string
	CapturedAt    time.Time
	ClientID      string
}

// payload is the wire shape of an observation on the ingestion endpoint.
type payload struct {
	Vendor    string          `json:"vendor"`
	URL       string          `json:"url"`
	RawPrice  string          `json:"rawPrice,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency,omitempty"`
	Route     Route           `json:"route"`
	PageTitle string          `json:"pageTitle,omitempty"`
	UserAgent string          `json:"userAgent,omitempty"`
	TabURL    string          `json:"tabUrl,omitempty"`
	ClientID  string          `json:"clientId,omitempty"`
	TS        time.Time       `json:"ts"`
}
