package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"farewatch/internal/agent"
	"farewatch/internal/alerting"
	"farewatch/internal/config"
	"farewatch/internal/deeplink"
	"farewatch/internal/ingest"
	"farewatch/internal/rates"
	"farewatch/internal/relay"
	"farewatch/internal/scheduler"
	"farewatch/internal/service"
	"farewatch/internal/storage"
	"farewatch/internal/strategy"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newResolver() *deeplink.Resolver {
	return deeplink.NewResolver(a.Config.DeepLinks.Templates, a.Config.DeepLinks.Homepages)
}

func (a *App) newConverter() *rates.Converter {
	return rates.NewConverter(rates.Options{
		ProviderURL: a.Config.Rates.ProviderURL,
		Canonical:   a.Config.Rates.Canonical,
		Staleness:   a.Config.Rates.Staleness,
		Timeout:     a.Config.Rates.RequestTimeout,
	}, a.Logger)
}

func (a *App) newIngest(store storage.ItineraryStore) *ingest.Service {
	return ingest.NewService(store, a.newResolver(), ingest.Options{
		PriceBucketMinor: a.Config.Dedup.PriceBucketMinor,
		ConfidenceCap:    a.Config.Dedup.ConfidenceCap,
		DefaultCurrency:  a.Config.Rates.Canonical,
	}, a.Logger)
}

func (a *App) newDispatcher() alerting.Dispatcher {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramDispatcher(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return alerting.NewLogDispatcher(a.Logger)
}

func (a *App) newEvaluator(store *storage.Store, converter *rates.Converter) *alerting.Evaluator {
	return alerting.NewEvaluator(store, store, store, converter, a.newDispatcher(), alerting.Options{
		RouteScanLimit: a.Config.Evaluator.RouteScanLimit,
	}, a.Logger)
}

// RunServer starts the ingestion API and the evaluation loop, and keeps the
// rate table fresh. It blocks until a signal or a fatal component error.
func (a *App) RunServer(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is required for the server")
	}
	defer closeStore()

	converter := a.newConverter()
	ingestSvc := a.newIngest(store)
	router := ingest.NewRouter(ingestSvc, a.Config.Server.APIKey, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Evaluator.Interval,
		AlignToStart: a.Config.Evaluator.AlignToBucket,
		StartupDelay: a.Config.Evaluator.StartupDelay,
	}, a.Logger)

	evalSvc := service.New(sched, a.newEvaluator(store, converter), store, a.Config.Evaluator.AdvisoryLockKey, a.Logger)

	server := &http.Server{
		Addr:    a.Config.Server.ListenAddr,
		Handler: router,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		a.Logger.Info().Str("addr", server.Addr).Msg("ingestion API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ingestion server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		converter.KeepFresh(groupCtx, a.Config.Rates.RefreshInterval)
		return nil
	})

	group.Go(func() error {
		err := evalSvc.Run(groupCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	a.Logger.Info().Msg("server started")
	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("server terminated with error")
		return err
	}

	a.Logger.Info().Msg("server stopped")
	return nil
}

// RunAgent watches the configured pages and relays resolved prices to the
// ingestion endpoint. One relay client is shared across the page agents.
func (a *App) RunAgent(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(a.Config.Agent.WatchURLs) == 0 {
		return errors.New("agent.watch_urls is empty; nothing to watch")
	}

	sink := relay.NewClient(relay.Options{
		Endpoint:  a.Config.Relay.Endpoint,
		APIKey:    a.Config.Relay.APIKey,
		UserAgent: a.Config.Agent.UserAgent,
		Timeout:   a.Config.Relay.Timeout,
		Retry: relay.RetryPolicy{
			MaxAttempts: a.Config.Relay.MaxAttempts,
			BaseDelay:   a.Config.Relay.BaseDelay,
			Multiplier:  a.Config.Relay.Multiplier,
		},
	}, a.Logger)

	registry := strategy.Default()

	group, groupCtx := errgroup.WithContext(ctx)
	for _, watchURL := range a.Config.Agent.WatchURLs {
		source := agent.NewHTTPPageSource(watchURL, a.Config.Agent.RequestTimeout, a.Config.Agent.UserAgent)
		watcher := agent.New(registry, source, sink, agent.Options{
			PollInterval: a.Config.Agent.PollInterval,
			Budget:       a.Config.Agent.Budget,
			Debounce:     a.Config.Agent.Debounce,
		}, a.Logger)

		group.Go(func() error {
			err := watcher.Run(groupCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	a.Logger.Info().Int("pages", len(a.Config.Agent.WatchURLs)).Msg("agent watching")
	err := group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	a.Logger.Info().Msg("agent stopped")
	return nil
}

// ExportOptions hold parameters for exporting route price history.
type ExportOptions struct {
	Origin      string
	Destination string
	From        *time.Time
	To          *time.Time
	PNGPath     string
	CSVPath     string
	MaxPoints   int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit    int
	Triggers bool
}

// AlertAddOptions configure a new route watch.
type AlertAddOptions struct {
	Origin      string
	Destination string
	MaxPrice    string
	Currency    string
}
