package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"farewatch/internal/storage"
)

// Show prints recent itineraries, or recent triggers with --triggers.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show itineraries")
	}
	defer closeStore()

	if opts.Triggers {
		return a.showTriggers(ctx, store, opts.Limit)
	}

	items, err := store.ListRecentItineraries(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(os.Stdout, "no itineraries found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Updated (UTC)\tRoute\tDate\tProvider\tPrice\tConf\tLink")

	for _, it := range items {
		date := ""
		if it.FlightDate != nil {
			date = it.FlightDate.Format("2006-01-02")
		}
		fmt.Fprintf(
			writer,
			"%s\t%s-%s\t%s\t%s\t%s %s\t%d\t%s\n",
			it.UpdatedAt.UTC().Format(time.RFC3339),
			it.Origin,
			it.Destination,
			date,
			it.Provider,
			it.Price.StringFixed(2),
			it.Currency,
			it.Confidence,
			sanitizeInline(it.DeepLink),
		)
	}

	writer.Flush()
	return nil
}

func (a *App) showTriggers(ctx context.Context, store storage.TriggerStore, limit int) error {
	triggers, err := store.ListRecentTriggers(ctx, limit)
	if err != nil {
		return err
	}
	if len(triggers) == 0 {
		fmt.Fprintln(os.Stdout, "no triggers found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Fired (UTC)\tAlert\tItinerary\tPrice\tLink")
	for _, trig := range triggers {
		fmt.Fprintf(
			writer,
			"%s\t%d\t%d\t%s %s\t%s\n",
			trig.CreatedAt.UTC().Format(time.RFC3339),
			trig.AlertID,
			trig.ItineraryID,
			trig.Price.StringFixed(2),
			trig.Currency,
			sanitizeInline(trig.DeepLink),
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
