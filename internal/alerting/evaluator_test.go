package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"farewatch/internal/rates"
	"farewatch/internal/storage"
)

type fakeItineraryStore struct {
	byRoute map[string][]storage.Itinerary
	err     error
}

func routeKey(origin, destination string) string { return origin + "-" + destination }

func (f *fakeItineraryStore) ListItinerariesByRoute(ctx context.Context, origin, destination string, limit int) ([]storage.Itinerary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byRoute[routeKey(origin, destination)], nil
}

func (f *fakeItineraryStore) UpsertItinerary(ctx context.Context, it storage.Itinerary, cap int) (storage.Itinerary, error) {
	return it, nil
}

func (f *fakeItineraryStore) ListRecentItineraries(ctx context.Context, limit int) ([]storage.Itinerary, error) {
	return nil, nil
}

func (f *fakeItineraryStore) ListItineraryHistory(ctx context.Context, origin, destination string, from, to time.Time) ([]storage.Itinerary, error) {
	return nil, nil
}

func (f *fakeItineraryStore) CountItineraries(ctx context.Context) (int64, error) { return 0, nil }

type fakeAlertStore struct {
	alerts  []storage.Alert
	checked map[int64]time.Time
}

func (f *fakeAlertStore) ListActiveAlerts(ctx context.Context) ([]storage.Alert, error) {
	return f.alerts, nil
}

func (f *fakeAlertStore) ListAlerts(ctx context.Context) ([]storage.Alert, error) {
	return f.alerts, nil
}

func (f *fakeAlertStore) InsertAlert(ctx context.Context, alert storage.Alert) (storage.Alert, error) {
	return alert, nil
}

func (f *fakeAlertStore) DeactivateAlert(ctx context.Context, id int64) error { return nil }

func (f *fakeAlertStore) MarkAlertChecked(ctx context.Context, id int64, at time.Time) error {
	if f.checked == nil {
		f.checked = make(map[int64]time.Time)
	}
	f.checked[id] = at
	return nil
}

type fakeTriggerStore struct {
	seen map[[2]int64]bool
	rows []storage.AlertTrigger
}

func (f *fakeTriggerStore) InsertTrigger(ctx context.Context, trigger storage.AlertTrigger) (bool, error) {
	if f.seen == nil {
		f.seen = make(map[[2]int64]bool)
	}
	key := [2]int64{trigger.AlertID, trigger.ItineraryID}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	f.rows = append(f.rows, trigger)
	return true, nil
}

func (f *fakeTriggerStore) ListRecentTriggers(ctx context.Context, limit int) ([]storage.AlertTrigger, error) {
	return f.rows, nil
}

type captureDispatcher struct {
	events []TriggerEvent
}

func (c *captureDispatcher) Dispatch(ctx context.Context, event TriggerEvent) error {
	c.events = append(c.events, event)
	return nil
}

func itinerary(id int64, origin, destination, price, currency string) storage.Itinerary {
	return storage.Itinerary{
		ID:          id,
		Provider:    "BA",
		Origin:      origin,
		Destination: destination,
		Price:       decimal.RequireFromString(price),
		Currency:    currency,
		DeepLink:    "https://www.britishairways.com",
	}
}

func gbpAlert(id int64, origin, destination, maxPrice string) storage.Alert {
	return storage.Alert{
		ID:          id,
		Origin:      origin,
		Destination: destination,
		MaxPrice:    decimal.RequireFromString(maxPrice),
		Currency:    "GBP",
		Active:      true,
	}
}

func testEvaluator(items storage.ItineraryStore, alerts *fakeAlertStore, triggers *fakeTriggerStore, dispatcher Dispatcher) *Evaluator {
	converter := rates.NewConverter(rates.Options{Canonical: "GBP"}, zerolog.Nop())
	return NewEvaluator(items, alerts, triggers, converter, dispatcher, Options{}, zerolog.Nop())
}

func TestEvaluateFiresBelowThreshold(t *testing.T) {
	items := &fakeItineraryStore{byRoute: map[string][]storage.Itinerary{
		"LHR-JFK": {
			itinerary(1, "LHR", "JFK", "289.00", "GBP"),
			itinerary(2, "LHR", "JFK", "410.00", "GBP"),
		},
	}}
	alerts := &fakeAlertStore{alerts: []storage.Alert{gbpAlert(7, "LHR", "JFK", "300")}}
	triggers := &fakeTriggerStore{}
	dispatcher := &captureDispatcher{}

	fired, err := testEvaluator(items, alerts, triggers, dispatcher).EvaluateAll(context.Background())
	if err != nil {
		t.Fatalf("EvaluateAll: %v", err)
	}
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if len(dispatcher.events) != 1 || dispatcher.events[0].ItineraryID != 1 {
		t.Fatalf("dispatched events = %+v", dispatcher.events)
	}
	if _, ok := alerts.checked[7]; !ok {
		t.Fatalf("alert should be marked checked")
	}
}

func TestEvaluateConvertsCurrencyBeforeComparing(t *testing.T) {
	// 342.93 USD at the fallback 1.25 USD/GBP is 274.34 GBP, under 300.
	items := &fakeItineraryStore{byRoute: map[string][]storage.Itinerary{
		"LHR-JFK": {itinerary(1, "LHR", "JFK", "342.93", "USD")},
	}}
	alerts := &fakeAlertStore{alerts: []storage.Alert{gbpAlert(7, "LHR", "JFK", "300")}}
	triggers := &fakeTriggerStore{}
	dispatcher := &captureDispatcher{}

	fired, err := testEvaluator(items, alerts, triggers, dispatcher).EvaluateAll(context.Background())
	if err != nil {
		t.Fatalf("EvaluateAll: %v", err)
	}
	if fired != 1 {
		t.Fatalf("fired = %d, want 1 after conversion", fired)
	}

	event := dispatcher.events[0]
	if event.Currency != "GBP" {
		t.Fatalf("event currency = %s, want GBP", event.Currency)
	}
	if event.Price.String() != "274.34" {
		t.Fatalf("converted price = %s, want 274.34", event.Price)
	}
}

func TestEvaluateDoesNotRefire(t *testing.T) {
	items := &fakeItineraryStore{byRoute: map[string][]storage.Itinerary{
		"LHR-JFK": {itinerary(1, "LHR", "JFK", "250.00", "GBP")},
	}}
	alerts := &fakeAlertStore{alerts: []storage.Alert{gbpAlert(7, "LHR", "JFK", "300")}}
	triggers := &fakeTriggerStore{}
	dispatcher := &captureDispatcher{}
	eval := testEvaluator(items, alerts, triggers, dispatcher)

	if _, err := eval.EvaluateAll(context.Background()); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	fired, err := eval.EvaluateAll(context.Background())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if fired != 0 {
		t.Fatalf("second pass fired = %d, want 0", fired)
	}
	if len(dispatcher.events) != 1 {
		t.Fatalf("dispatched %d events, want 1", len(dispatcher.events))
	}
}

func TestEvaluateSkipsNonPositivePrices(t *testing.T) {
	items := &fakeItineraryStore{byRoute: map[string][]storage.Itinerary{
		"LHR-JFK": {itinerary(1, "LHR", "JFK", "0", "GBP")},
	}}
	alerts := &fakeAlertStore{alerts: []storage.Alert{gbpAlert(7, "LHR", "JFK", "300")}}
	triggers := &fakeTriggerStore{}

	fired, err := testEvaluator(items, alerts, triggers, nil).EvaluateAll(context.Background())
	if err != nil {
		t.Fatalf("EvaluateAll: %v", err)
	}
	if fired != 0 {
		t.Fatalf("fired = %d, want 0", fired)
	}
}

func TestEvaluateIsolatesFailingAlert(t *testing.T) {
	// The first alert's route listing fails; the second must still run.
	calls := 0
	items := &flakyItineraryStore{
		fail: func() bool {
			calls++
			return calls == 1
		},
		rows: []storage.Itinerary{itinerary(1, "MAN", "BCN", "45.00", "GBP")},
	}
	alerts := &fakeAlertStore{alerts: []storage.Alert{
		gbpAlert(1, "LHR", "JFK", "300"),
		gbpAlert(2, "MAN", "BCN", "60"),
	}}
	triggers := &fakeTriggerStore{}
	dispatcher := &captureDispatcher{}

	fired, err := testEvaluator(items, alerts, triggers, dispatcher).EvaluateAll(context.Background())
	if err != nil {
		t.Fatalf("EvaluateAll should not fail the whole pass: %v", err)
	}
	if fired != 1 {
		t.Fatalf("fired = %d, want 1 from the healthy alert", fired)
	}
}

type flakyItineraryStore struct {
	fail func() bool
	rows []storage.Itinerary
}

func (f *flakyItineraryStore) ListItinerariesByRoute(ctx context.Context, origin, destination string, limit int) ([]storage.Itinerary, error) {
	if f.fail() {
		return nil, errors.New("listing failed")
	}
	return f.rows, nil
}

func (f *flakyItineraryStore) UpsertItinerary(ctx context.Context, it storage.Itinerary, cap int) (storage.Itinerary, error) {
	return it, nil
}

func (f *flakyItineraryStore) ListRecentItineraries(ctx context.Context, limit int) ([]storage.Itinerary, error) {
	return nil, nil
}

func (f *flakyItineraryStore) ListItineraryHistory(ctx context.Context, origin, destination string, from, to time.Time) ([]storage.Itinerary, error) {
	return nil, nil
}

func (f *flakyItineraryStore) CountItineraries(ctx context.Context) (int64, error) { return 0, nil }
