package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Itinerary is one deduplicated priced flight option. Repeat observations of
// the same option bump Confidence instead of creating new rows.
type Itinerary struct {
	ID           int64
	QueryID      *string
	Provider     string
	DedupeKey    string
	Origin       string
	Destination  string
	FlightDate   *time.Time
	URL          string
	DeepLink     string
	Price        decimal.Decimal
	Currency     string
	PriceMinor   int64
	Confidence   int
	SourceDomain string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Alert is a standing price watch on a route.
type Alert struct {
	ID            int64
	Origin        string
	Destination   string
	MaxPrice      decimal.Decimal
	Currency      string
	Active        bool
	LastCheckedAt *time.Time
	CreatedAt     time.Time
}

// AlertTrigger records one alert firing against one itinerary. The pair is
// unique so re-evaluation never re-notifies.
type AlertTrigger struct {
	ID          int64
	AlertID     int64
	ItineraryID int64
	Price       decimal.Decimal
	Currency    string
	DeepLink    string
	CreatedAt   time.Time
}
