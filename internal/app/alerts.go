package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"farewatch/internal/storage"
)

// AlertsList prints every configured route watch.
func (a *App) AlertsList(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot list alerts")
	}
	defer closeStore()

	alerts, err := store.ListAlerts(ctx)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts configured")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tRoute\tMax Price\tActive\tLast Checked (UTC)")
	for _, alert := range alerts {
		checked := "never"
		if alert.LastCheckedAt != nil {
			checked = alert.LastCheckedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(
			writer,
			"%d\t%s-%s\t%s %s\t%t\t%s\n",
			alert.ID,
			alert.Origin,
			alert.Destination,
			alert.MaxPrice.StringFixed(2),
			alert.Currency,
			alert.Active,
			checked,
		)
	}

	writer.Flush()
	return nil
}

// AlertsAdd registers a new route watch.
func (a *App) AlertsAdd(ctx context.Context, opts AlertAddOptions) error {
	origin := strings.ToUpper(strings.TrimSpace(opts.Origin))
	destination := strings.ToUpper(strings.TrimSpace(opts.Destination))
	if origin == "" || destination == "" {
		return errors.New("--from and --to are required")
	}

	maxPrice, err := decimal.NewFromString(opts.MaxPrice)
	if err != nil || !maxPrice.IsPositive() {
		return fmt.Errorf("--max-price must be a positive amount")
	}

	currency := strings.ToUpper(strings.TrimSpace(opts.Currency))
	if currency == "" {
		currency = a.Config.Rates.Canonical
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot add alerts")
	}
	defer closeStore()

	alert, err := store.InsertAlert(ctx, storage.Alert{
		Origin:      origin,
		Destination: destination,
		MaxPrice:    maxPrice,
		Currency:    currency,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "alert %d created: %s-%s under %s %s\n",
		alert.ID, alert.Origin, alert.Destination, alert.MaxPrice.StringFixed(2), alert.Currency)
	return nil
}

// AlertsDisable deactivates a route watch.
func (a *App) AlertsDisable(ctx context.Context, id int64) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot disable alerts")
	}
	defer closeStore()

	if err := store.DeactivateAlert(ctx, id); err != nil {
		return fmt.Errorf("disable alert %d: %w", id, err)
	}
	fmt.Fprintf(os.Stdout, "alert %d disabled\n", id)
	return nil
}
