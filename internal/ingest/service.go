package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"farewatch/internal/deeplink"
	"farewatch/internal/storage"
)

// ErrInvalidObservation reports an observation that cannot be stored: the
// route is unknown or the price is not positive.
var ErrInvalidObservation = errors.New("ingest: invalid observation")

// Observation is an accepted price fact, after transport decoding.
type Observation struct {
	Vendor      string
	URL         string
	RawPrice    string
	Price       decimal.Decimal
	Currency    string
	Origin      string
	Destination string
	FlightDate  string
	PageTitle   string
	ClientID    string
	CapturedAt  time.Time
}

// Options tune deduplication.
type Options struct {
	// PriceBucketMinor is the dedupe bucket width in minor units. Prices
	// within the same bucket collapse into one itinerary.
	PriceBucketMinor int64
	// ConfidenceCap bounds the repeat-observation counter.
	ConfidenceCap int
	// DefaultCurrency fills observations that arrive without one.
	DefaultCurrency string
}

// Service turns observations into deduplicated itineraries.
type Service struct {
	store  storage.ItineraryStore
	links  *deeplink.Resolver
	opts   Options
	logger zerolog.Logger

	now func() time.Time
}

// NewService constructs an ingestion service with defaults applied.
func NewService(store storage.ItineraryStore, links *deeplink.Resolver, opts Options, logger zerolog.Logger) *Service {
	if opts.PriceBucketMinor <= 0 {
		opts.PriceBucketMinor = 1000
	}
	if opts.ConfidenceCap <= 0 {
		opts.ConfidenceCap = 10
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "GBP"
	}

	return &Service{
		store:  store,
		links:  links,
		opts:   opts,
		logger: logger.With().Str("component", "ingest").Logger(),
		now:    time.Now,
	}
}

// Ingest validates, normalises and persists one observation. Repeats of the
// same offer (same provider, route, day and price bucket) land on the same
// row and bump its confidence.
func (s *Service) Ingest(ctx context.Context, obs Observation) (storage.Itinerary, error) {
	origin := strings.ToUpper(strings.TrimSpace(obs.Origin))
	destination := strings.ToUpper(strings.TrimSpace(obs.Destination))
	if origin == "" || destination == "" {
		return storage.Itinerary{}, fmt.Errorf("%w: route is missing", ErrInvalidObservation)
	}
	if !obs.Price.IsPositive() {
		return storage.Itinerary{}, fmt.Errorf("%w: price %s is not positive", ErrInvalidObservation, obs.Price)
	}

	currency := strings.ToUpper(strings.TrimSpace(obs.Currency))
	if currency == "" {
		currency = s.opts.DefaultCurrency
	}

	capturedAt := obs.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = s.now().UTC()
	}

	// The date bucket is the searched travel day; observations without one
	// fall back to the capture day so same-day repeats still collapse.
	flightDate, dateBucket := parseFlightDate(obs.FlightDate, capturedAt)

	price := obs.Price.Round(2)
	priceMinor := price.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	key := dedupeKey(obs.Vendor, origin, destination, dateBucket, bucketMinor(priceMinor, s.opts.PriceBucketMinor))

	// Booking link preference: search-prefilled template, then provider
	// homepage, then the page the price was seen on.
	link := obs.URL
	if s.links != nil {
		if resolved, _ := s.links.Resolve(obs.Vendor, origin, destination, strings.TrimSpace(obs.FlightDate), 1); resolved != "" {
			link = resolved
		}
	}

	it := storage.Itinerary{
		Provider:     strings.TrimSpace(obs.Vendor),
		DedupeKey:    key,
		Origin:       origin,
		Destination:  destination,
		FlightDate:   flightDate,
		URL:          obs.URL,
		DeepLink:     link,
		Price:        price,
		Currency:     currency,
		PriceMinor:   priceMinor,
		SourceDomain: sourceDomain(obs.URL),
	}

	stored, err := s.store.UpsertItinerary(ctx, it, s.opts.ConfidenceCap)
	if err != nil {
		return storage.Itinerary{}, fmt.Errorf("persist itinerary: %w", err)
	}

	s.logger.Info().
		Str("provider", stored.Provider).
		Str("route", origin+"-"+destination).
		Str("price", stored.Price.String()).
		Str("currency", stored.Currency).
		Int("confidence", stored.Confidence).
		Msg("observation ingested")

	return stored, nil
}

// parseFlightDate returns the travel date column value (nil when the search
// carried no date) and the day string used in the dedupe key.
func parseFlightDate(raw string, capturedAt time.Time) (*time.Time, string) {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		if day, err := time.Parse("2006-01-02", raw); err == nil {
			return &day, raw
		}
	}
	return nil, capturedAt.Format("2006-01-02")
}

// bucketMinor floors a minor-unit price into its bucket start.
func bucketMinor(priceMinor, width int64) int64 {
	if width <= 0 {
		width = 1000
	}
	bucket := priceMinor / width
	if priceMinor < 0 && priceMinor%width != 0 {
		bucket--
	}
	return bucket * width
}

func dedupeKey(provider, origin, destination, dateBucket string, priceBucket int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%d",
		strings.ToLower(strings.TrimSpace(provider)), origin, destination, dateBucket, priceBucket)))
	return hex.EncodeToString(sum[:])
}

func sourceDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
