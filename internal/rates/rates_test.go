package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testConverter(providerURL string) *Converter {
	return NewConverter(Options{
		ProviderURL: providerURL,
		Canonical:   "GBP",
		Timeout:     time.Second,
	}, zerolog.Nop())
}

func TestConvertSameCurrencyRounds(t *testing.T) {
	c := testConverter("")

	got := c.Convert(context.Background(), decimal.RequireFromString("12.345"), "GBP", "GBP")
	if got.String() != "12.35" {
		t.Fatalf("got %s, want 12.35", got)
	}
}

func TestConvertViaFallbackTable(t *testing.T) {
	c := testConverter("")

	// 125 USD at the fallback 1.25 USD/GBP is exactly 100 GBP.
	got := c.ToCanonical(context.Background(), decimal.RequireFromString("125"), "USD")
	if got.String() != "100" {
		t.Fatalf("got %s, want 100", got)
	}
}

func TestConvertRoundTripWithinOneCent(t *testing.T) {
	c := testConverter("")

	amount := decimal.RequireFromString("342.93")
	there := c.Convert(context.Background(), amount, "USD", "GBP")
	back := c.Convert(context.Background(), there, "GBP", "USD")

	if amount.Sub(back).Abs().GreaterThan(decimal.RequireFromString("0.01")) {
		t.Fatalf("round trip drifted: %s -> %s -> %s", amount, there, back)
	}
}

func TestConvertUnknownCurrencyPassesThrough(t *testing.T) {
	c := testConverter("")

	amount := decimal.RequireFromString("50.00")
	got := c.Convert(context.Background(), amount, "XXX", "GBP")
	if got.String() != "50" {
		t.Fatalf("unknown currency should pass through, got %s", got)
	}
}

func TestRefreshSwapsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v4/latest/GBP" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"base":"GBP","rates":{"USD":1.30,"EUR":1.18}}`))
	}))
	defer srv.Close()

	c := testConverter(srv.URL)
	if !c.Stale() {
		t.Fatalf("fallback table should report stale")
	}

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if c.Stale() {
		t.Fatalf("fresh table should not report stale")
	}

	got := c.ToCanonical(context.Background(), decimal.RequireFromString("130"), "USD")
	if got.String() != "100" {
		t.Fatalf("got %s, want 100 at the refreshed rate", got)
	}
}

func TestRefreshFailureKeepsServing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testConverter(srv.URL)
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatalf("refresh against a failing provider should error")
	}

	// Conversion still works off the fallback table.
	got := c.ToCanonical(context.Background(), decimal.RequireFromString("125"), "USD")
	if got.String() != "100" {
		t.Fatalf("got %s, want fallback conversion to keep working", got)
	}
}

func TestConvertIsDeterministic(t *testing.T) {
	c := testConverter("")

	amount := decimal.RequireFromString("342.93")
	first := c.Convert(context.Background(), amount, "USD", "GBP")
	for i := 0; i < 5; i++ {
		if got := c.Convert(context.Background(), amount, "USD", "GBP"); !got.Equal(first) {
			t.Fatalf("conversion drifted between calls: %s vs %s", got, first)
		}
	}
}
