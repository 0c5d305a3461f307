package agent

import (
	"context"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"farewatch/internal/money"
	"farewatch/internal/relay"
	"farewatch/internal/strategy"
)

// State is the extraction lifecycle for one page address.
type State int32

const (
	// StateIdle means no strategy matched the page; nothing is polled.
	StateIdle State = iota
	// StatePolling means extraction attempts are running under the budget.
	StatePolling
	// StateResolved means a positive price was found and handed off.
	StateResolved
	// StateTimedOut means the budget elapsed without a usable price.
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateResolved:
		return "resolved"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// PageSource exposes the page under observation.
type PageSource interface {
	Location() string
	Title() string
	Document(ctx context.Context) (*goquery.Document, error)
}

// Sink receives resolved observations. *relay.Client satisfies it.
type Sink interface {
	Deliver(ctx context.Context, obs relay.Observation) error
}

// Options tune the per-page extraction loop.
type Options struct {
	PollInterval time.Duration
	Budget       time.Duration
	Debounce     time.Duration
	// ClientID identifies this agent instance on the wire.
	ClientID string
	// Route is used when the page address does not encode the search.
	Route strategy.Route
}

// Agent polls one page for prices. Prices on booking sites render well
// after the initial document, so the agent re-extracts on a timer until it
// finds one or the budget runs out, and restarts (debounced) when the page
// navigates client-side. Everything runs on a single goroutine driven by
// timers; delivery is handed off so a slow backend never stalls polling.
type Agent struct {
	registry    *strategy.Registry
	source      PageSource
	sink        Sink
	opts        Options
	logger      zerolog.Logger
	navigations chan string
	state       atomic.Int32
}

// New constructs an Agent with defaults applied.
func New(registry *strategy.Registry, source PageSource, sink Sink, opts Options, logger zerolog.Logger) *Agent {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 900 * time.Millisecond
	}
	if opts.Budget <= 0 {
		opts.Budget = 18 * time.Second
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 250 * time.Millisecond
	}
	if opts.ClientID == "" {
		opts.ClientID = uuid.NewString()
	}

	return &Agent{
		registry:    registry,
		source:      source,
		sink:        sink,
		opts:        opts,
		logger:      logger.With().Str("component", "agent").Logger(),
		navigations: make(chan string, 16),
	}
}

// State reports the current lifecycle state.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// Navigate signals a client-side address change. It never blocks: bursts
// beyond the buffer are dropped, which is fine because the debounce keeps
// only the latest address anyway.
func (a *Agent) Navigate(location string) {
	select {
	case a.navigations <- location:
	default:
	}
}

// Run drives the extraction loop until ctx is cancelled. Cancellation (the
// page going away) drops any pending polls.
func (a *Agent) Run(ctx context.Context) error {
	pollTimer := newStoppedTimer()
	defer pollTimer.Stop()
	debounce := newStoppedTimer()
	defer debounce.Stop()

	var (
		strat    *strategy.Strategy
		pageURL  *url.URL
		deadline time.Time
		pending  string
	)

	start := func(location string) {
		strat, pageURL = nil, nil
		stopTimer(pollTimer)

		u, err := url.Parse(location)
		if err != nil || u.Hostname() == "" {
			a.setState(StateIdle)
			a.logger.Debug().Str("url", location).Msg("unusable page address")
			return
		}

		s, ok := a.registry.Resolve(u.Hostname())
		if !ok {
			// Unsupported site: stay idle, no polling cost.
			a.setState(StateIdle)
			a.logger.Debug().Str("host", u.Hostname()).Msg("no strategy for site")
			return
		}

		strat, pageURL = s, u
		deadline = time.Now().Add(a.opts.Budget)
		a.setState(StatePolling)
		pollTimer.Reset(0)
	}

	start(a.source.Location())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case addr := <-a.navigations:
			pending = addr
			stopTimer(debounce)
			debounce.Reset(a.opts.Debounce)

		case <-debounce.C:
			if pending == "" {
				continue
			}
			a.logger.Debug().Str("url", pending).Msg("navigation detected; restarting extraction")
			start(pending)
			pending = ""

		case <-pollTimer.C:
			if a.State() != StatePolling || strat == nil {
				continue
			}
			if a.poll(ctx, strat, pageURL) {
				a.setState(StateResolved)
				continue
			}
			if time.Now().After(deadline) {
				a.setState(StateTimedOut)
				a.logger.Info().Str("url", pageURL.String()).Str("strategy", strat.Key).
					Dur("budget", a.opts.Budget).Msg("no price found within budget")
				continue
			}
			pollTimer.Reset(a.opts.PollInterval)
		}
	}
}

func (a *Agent) poll(ctx context.Context, strat *strategy.Strategy, pageURL *url.URL) bool {
	doc, err := a.source.Document(ctx)
	if err != nil {
		a.logger.Debug().Err(err).Msg("page snapshot failed")
		return false
	}

	candidate, ok := money.PickLowestCandidate(strat.ExtractCandidates(doc))
	if !ok || !candidate.Value.IsPositive() {
		return false
	}

	route, ok := strategy.RouteFromURL(pageURL)
	if !ok {
		route = a.opts.Route
	}

	obs := relay.Observation{
		SourceKey:     strat.Vendor,
		URL:           pageURL.String(),
		RawPriceText:  candidate.Raw,
		ParsedAmount:  candidate.Value,
		CurrencyGuess: money.GuessCurrency(candidate.Raw),
		Route: relay.Route{
			Origin:      route.Origin,
			Destination: route.Destination,
			Date:        route.Date,
		},
		PageTitle:  a.source.Title(),
		CapturedAt: time.Now().UTC(),
		ClientID:   a.opts.ClientID,
	}

	a.logger.Info().Str("strategy", strat.Key).Str("price", candidate.Value.String()).
		Str("raw", candidate.Raw).Msg("price resolved")

	// Delivery retries can take seconds; keep the extraction loop free to
	// react to navigations while they run. Failures stay inside the relay.
	go func() {
		if err := a.sink.Deliver(ctx, obs); err != nil {
			a.logger.Warn().Err(err).Str("url", obs.URL).Msg("observation not delivered")
		}
	}()
	return true
}

func (a *Agent) setState(s State) {
	a.state.Store(int32(s))
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	stopTimer(t)
	return t
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
