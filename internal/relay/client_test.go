package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testObservation() Observation {
	return Observation{
		SourceKey:     "BA",
		URL:           "https://www.britishairways.com/flights?from=LHR&to=JFK",
		RawPriceText:  "£342.93",
		ParsedAmount:  decimal.RequireFromString("342.93"),
		CurrencyGuess: "GBP",
		Route:         Route{Origin: "LHR", Destination: "JFK", Date: "2025-12-15"},
		PageTitle:     "Flights London to New York",
		CapturedAt:    time.Now().UTC(),
		ClientID:      "client-1",
	}
}

func testPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BaseDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestDeliverSuccess(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "secret" {
			t.Fatalf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewClient(Options{Endpoint: srv.URL, APIKey: "secret", Retry: testPolicy()}, zerolog.Nop())
	if err := client.Deliver(context.Background(), testObservation()); err != nil {
		t.Fatalf("Deliver should succeed: %v", err)
	}

	if got.Vendor != "BA" || got.Route.Origin != "LHR" || got.Route.Destination != "JFK" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestDeliverExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(Options{Endpoint: srv.URL, Retry: testPolicy()}, zerolog.Nop())
	err := client.Deliver(context.Background(), testObservation())
	if !errors.Is(err, ErrDeliveryExhausted) {
		t.Fatalf("want ErrDeliveryExhausted, got %v", err)
	}
	if n := attempts.Load(); n != 4 {
		t.Fatalf("attempts = %d, want 4", n)
	}
}

func TestDeliverRejectionDoesNotRetry(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewClient(Options{Endpoint: srv.URL, Retry: testPolicy()}, zerolog.Nop())
	err := client.Deliver(context.Background(), testObservation())
	if !errors.Is(err, ErrObservationRejected) {
		t.Fatalf("want ErrObservationRejected, got %v", err)
	}
	if n := attempts.Load(); n != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry on rejection)", n)
	}
}

func TestRetryPolicyBackoffSequence(t *testing.T) {
	policy := DefaultRetryPolicy()
	want := []time.Duration{400 * time.Millisecond, 800 * time.Millisecond, 1600 * time.Millisecond}
	for i, expected := range want {
		if got := policy.Delay(i + 1); got != expected {
			t.Fatalf("Delay(%d) = %s, want %s", i+1, got, expected)
		}
	}
}

func TestDeliverRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	policy := RetryPolicy{MaxAttempts: 4, BaseDelay: time.Hour, Multiplier: 2}
	client := NewClient(Options{Endpoint: srv.URL, Retry: policy}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := client.Deliver(ctx, testObservation())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want context deadline error, got %v", err)
	}
}
