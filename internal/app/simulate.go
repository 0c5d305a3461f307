package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"farewatch/internal/ingest"
)

// SimulateOptions describe a synthetic observation.
type SimulateOptions struct {
	Vendor      string
	Origin      string
	Destination string
	FlightDate  string
	Price       string
	Currency    string
}

// Simulate pushes one synthetic observation through ingestion and runs a
// single evaluation pass against it, exercising the real dedup, deep-link
// and alerting paths end to end.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	price, err := decimal.NewFromString(opts.Price)
	if err != nil {
		return fmt.Errorf("--price must be a decimal amount: %w", err)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot simulate")
	}
	defer closeStore()

	stored, err := a.newIngest(store).Ingest(ctx, ingest.Observation{
		Vendor:      opts.Vendor,
		Origin:      opts.Origin,
		Destination: opts.Destination,
		FlightDate:  opts.FlightDate,
		Price:       price,
		Currency:    opts.Currency,
		CapturedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "itinerary %d stored (confidence %d): %s-%s at %s %s\n",
		stored.ID, stored.Confidence, stored.Origin, stored.Destination,
		stored.Price.StringFixed(2), stored.Currency)

	fired, err := a.newEvaluator(store, a.newConverter()).EvaluateAll(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "evaluation pass fired %d trigger(s)\n", fired)
	return nil
}
