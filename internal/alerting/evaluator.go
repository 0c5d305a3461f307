package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"farewatch/internal/storage"
)

// RateConverter normalises itinerary prices into an alert's currency.
type RateConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) decimal.Decimal
}

// Options tune evaluation.
type Options struct {
	// RouteScanLimit bounds how many itineraries one alert compares per pass.
	RouteScanLimit int
}

// Evaluator sweeps active alerts against stored itineraries. Comparison
// happens in the alert's own currency; a match below or at the threshold
// records a trigger, and the (alert, itinerary) uniqueness in storage keeps
// repeat passes from re-notifying.
type Evaluator struct {
	itineraries storage.ItineraryStore
	alerts      storage.AlertStore
	triggers    storage.TriggerStore
	converter   RateConverter
	dispatcher  Dispatcher
	opts        Options
	logger      zerolog.Logger

	now func() time.Time
}

// NewEvaluator constructs an evaluator.
func NewEvaluator(
	itineraries storage.ItineraryStore,
	alerts storage.AlertStore,
	triggers storage.TriggerStore,
	converter RateConverter,
	dispatcher Dispatcher,
	opts Options,
	logger zerolog.Logger,
) *Evaluator {
	if opts.RouteScanLimit <= 0 {
		opts.RouteScanLimit = 200
	}

	return &Evaluator{
		itineraries: itineraries,
		alerts:      alerts,
		triggers:    triggers,
		converter:   converter,
		dispatcher:  dispatcher,
		opts:        opts,
		logger:      logger.With().Str("component", "evaluator").Logger(),
		now:         time.Now,
	}
}

// EvaluateAll runs one pass over every active alert. A failing alert is
// logged and skipped so the rest of the sweep still runs; the returned count
// is how many triggers fired.
func (e *Evaluator) EvaluateAll(ctx context.Context) (int, error) {
	alerts, err := e.alerts.ListActiveAlerts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active alerts: %w", err)
	}

	fired := 0
	for _, alert := range alerts {
		n, evalErr := e.evaluateAlert(ctx, alert)
		if evalErr != nil {
			e.logger.Error().Err(evalErr).Int64("alert_id", alert.ID).
				Str("route", alert.Origin+"-"+alert.Destination).Msg("alert evaluation failed")
			continue
		}
		fired += n
	}

	e.logger.Debug().Int("alerts", len(alerts)).Int("fired", fired).Msg("evaluation pass complete")
	return fired, nil
}

func (e *Evaluator) evaluateAlert(ctx context.Context, alert storage.Alert) (int, error) {
	items, err := e.itineraries.ListItinerariesByRoute(ctx, alert.Origin, alert.Destination, e.opts.RouteScanLimit)
	if err != nil {
		return 0, fmt.Errorf("list itineraries: %w", err)
	}

	fired := 0
	for _, it := range items {
		if !it.Price.IsPositive() {
			continue
		}

		normalised := it.Price
		if e.converter != nil {
			normalised = e.converter.Convert(ctx, it.Price, it.Currency, alert.Currency)
		}
		if normalised.GreaterThan(alert.MaxPrice) {
			continue
		}

		created, insErr := e.triggers.InsertTrigger(ctx, storage.AlertTrigger{
			AlertID:     alert.ID,
			ItineraryID: it.ID,
			Price:       normalised,
			Currency:    alert.Currency,
			DeepLink:    it.DeepLink,
		})
		if insErr != nil {
			return fired, fmt.Errorf("record trigger: %w", insErr)
		}
		if !created {
			// Already fired for this pair on a previous pass.
			continue
		}
		fired++

		if e.dispatcher != nil {
			event := TriggerEvent{
				AlertID:     alert.ID,
				ItineraryID: it.ID,
				Origin:      alert.Origin,
				Destination: alert.Destination,
				Provider:    it.Provider,
				Price:       normalised,
				Currency:    alert.Currency,
				MaxPrice:    alert.MaxPrice,
				MaxCurrency: alert.Currency,
				DeepLink:    it.DeepLink,
				TriggeredAt: e.now().UTC(),
			}
			if dispErr := e.dispatcher.Dispatch(ctx, event); dispErr != nil {
				// The trigger row stands; only the notification was lost.
				e.logger.Warn().Err(dispErr).Int64("alert_id", alert.ID).Msg("trigger dispatch failed")
			}
		}
	}

	if err := e.alerts.MarkAlertChecked(ctx, alert.ID, e.now().UTC()); err != nil {
		e.logger.Warn().Err(err).Int64("alert_id", alert.ID).Msg("mark alert checked failed")
	}
	return fired, nil
}
