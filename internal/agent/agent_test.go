package agent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"farewatch/internal/relay"
	"farewatch/internal/strategy"
)

type fakeSource struct {
	mu       sync.Mutex
	location string
	html     string
	fetches  int
}

func (f *fakeSource) Location() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.location
}

func (f *fakeSource) Title() string { return "Test flights" }

func (f *fakeSource) Document(ctx context.Context) (*goquery.Document, error) {
	f.mu.Lock()
	html := f.html
	f.fetches++
	f.mu.Unlock()
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (f *fakeSource) set(location, html string) {
	f.mu.Lock()
	f.location = location
	f.html = html
	f.mu.Unlock()
}

type fakeSink struct {
	observations chan relay.Observation
}

func newFakeSink() *fakeSink {
	return &fakeSink{observations: make(chan relay.Observation, 8)}
}

func (f *fakeSink) Deliver(ctx context.Context, obs relay.Observation) error {
	f.observations <- obs
	return nil
}

func testRegistry() *strategy.Registry {
	return strategy.NewRegistry(&strategy.Strategy{
		Key:    "testsite",
		Vendor: "TS",
		Hosts:  []string{"testsite.example"},
		Groups: []strategy.SelectorGroup{{Name: "fares", Selectors: []string{".fare"}}},
	})
}

func testOptions() Options {
	return Options{
		PollInterval: 10 * time.Millisecond,
		Budget:       300 * time.Millisecond,
		Debounce:     20 * time.Millisecond,
		ClientID:     "test-client",
	}
}

func waitForState(t *testing.T, a *Agent, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", a.State(), want)
}

func TestAgentResolvesAfterLatePriceRender(t *testing.T) {
	source := &fakeSource{}
	source.set("https://testsite.example/search?from=LHR&to=JFK&date=2025-12-15", "<html><body></body></html>")
	sink := newFakeSink()

	a := New(testRegistry(), source, sink, testOptions(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	waitForState(t, a, StatePolling)

	// Price appears only after a few polls, as on a real SPA.
	time.Sleep(30 * time.Millisecond)
	source.set(source.Location(), `<html><body><div class="fare">£120</div><div class="fare">£99</div></body></html>`)

	select {
	case obs := <-sink.observations:
		if obs.ParsedAmount.String() != "99" {
			t.Fatalf("delivered price = %s, want 99", obs.ParsedAmount)
		}
		if obs.SourceKey != "TS" {
			t.Fatalf("source key = %s, want TS", obs.SourceKey)
		}
		if obs.Route.Origin != "LHR" || obs.Route.Destination != "JFK" {
			t.Fatalf("route = %+v", obs.Route)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no observation delivered")
	}

	waitForState(t, a, StateResolved)
}

func TestAgentTimesOutSilently(t *testing.T) {
	source := &fakeSource{}
	source.set("https://testsite.example/search?from=LHR&to=JFK", `<html><body><div class="fare">Sold out</div></body></html>`)
	sink := newFakeSink()

	opts := testOptions()
	opts.Budget = 50 * time.Millisecond
	a := New(testRegistry(), source, sink, opts, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	waitForState(t, a, StateTimedOut)

	select {
	case obs := <-sink.observations:
		t.Fatalf("unexpected delivery: %+v", obs)
	default:
	}
}

func TestAgentStaysIdleOnUnsupportedSite(t *testing.T) {
	source := &fakeSource{}
	source.set("https://unknown.example/flights", `<html><body><div class="fare">£99</div></body></html>`)
	sink := newFakeSink()

	a := New(testRegistry(), source, sink, testOptions(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	if a.State() != StateIdle {
		t.Fatalf("state = %s, want idle", a.State())
	}

	source.mu.Lock()
	fetches := source.fetches
	source.mu.Unlock()
	if fetches != 0 {
		t.Fatalf("idle agent fetched the page %d times", fetches)
	}
}

func TestAgentRestartsOnNavigationDebounced(t *testing.T) {
	source := &fakeSource{}
	source.set("https://unknown.example/home", "<html></html>")
	sink := newFakeSink()

	a := New(testRegistry(), source, sink, testOptions(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	waitForState(t, a, StateIdle)

	// Rapid successive route changes must collapse into one restart
	// against the final address.
	target := "https://testsite.example/search?from=MAN&to=BCN&date=2026-02-01"
	source.set(target, `<html><body><div class="fare">£45</div></body></html>`)
	a.Navigate("https://testsite.example/search?from=LHR&to=JFK")
	a.Navigate(target)

	select {
	case obs := <-sink.observations:
		if obs.URL != target {
			t.Fatalf("observation url = %s, want %s", obs.URL, target)
		}
		if obs.Route.Origin != "MAN" || obs.Route.Destination != "BCN" {
			t.Fatalf("route = %+v", obs.Route)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no observation after navigation")
	}

	select {
	case obs := <-sink.observations:
		t.Fatalf("debounce should collapse restarts, got second delivery: %+v", obs)
	case <-time.After(100 * time.Millisecond):
	}
}
