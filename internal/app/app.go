package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"cs2-market-watcher/internal/alerting"
	"cs2-market-watcher/internal/config"
	"cs2-market-watcher/internal/fetcher"
	"cs2-market-watcher/internal/ratelimit"
	"cs2-market-watcher/internal/retry"
	"cs2-market-watcher/internal/scheduler"
	"cs2-market-watcher/internal/service"
	"cs2-market-watcher/internal/storage"
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

func (a *App) newProviders() (fetcher.ListingProvider, fetcher.EnrichmentProvider) {
	steam := fetcher.NewSteam(fetcher.SteamOptions{
		BaseURL:   a.Config.Steam.BaseURL,
		PageSize:  a.Config.Steam.PageSize,
		Timeout:   a.Config.Steam.RequestTimeout,
		UserAgent: a.Config.Steam.UserAgent,
	}, a.Logger)

	inspect := fetcher.NewInspect(fetcher.InspectOptions{
		BaseURL: a.Config.Inspect.BaseURL,
		Timeout: a.Config.Inspect.RequestTimeout,
	}, a.Logger)

	return steam, inspect
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn not configured")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if a.Config.Database.AutoMigrate {
		if migrateErr := store.Migrate(ctx); migrateErr != nil {
			store.Close()
			return nil, nil, migrateErr
		}
	}
	return store, store.Close, nil
}

// Run executes the long-running watch worker.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	listingLimiter, err := ratelimit.NewBucket(a.Config.Steam.RPS, 1)
	if err != nil {
		return err
	}
	inspectLimiter, err := ratelimit.NewBucket(a.Config.Inspect.RPS, 1)
	if err != nil {
		return err
	}

	gate := scheduler.NewGate(store, a.Config.Scheduler.PausePoll, a.Logger)
	sched := scheduler.New(scheduler.Options{
		Interval:   a.Config.Scheduler.Interval,
		JitterFrac: a.Config.Scheduler.JitterFrac,
	}, gate, a.Logger)

	listings, inspector := a.newProviders()
	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("no notifier configured; eligible listings will only be logged")
	}

	svc := service.New(service.Deps{
		Watches:        store,
		Snapshots:      store,
		Enrichments:    store,
		Alerts:         store,
		Listings:       listings,
		Inspector:      inspector,
		Notifier:       notifier,
		Gate:           gate,
		Retry:          retry.NewPolicy(a.Config.Retry.MaxAttempts, a.Config.Retry.BaseBackoff, a.Logger),
		ListingLimiter: listingLimiter,
		InspectLimiter: inspectLimiter,
		Fees:           a.Config.Fees.FeeModel(),
		WatchDelay:     a.Config.Scheduler.WatchDelay,
		JitterFrac:     a.Config.Scheduler.JitterFrac,
	}, a.Logger)

	a.Logger.Info().Msg("starting watch worker")
	err = sched.Run(ctx, svc.RunPass)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("worker terminated with error")
		return err
	}

	a.Logger.Info().Msg("watch worker stopped")
	return nil
}

// ExportOptions hold parameters for exporting a watch's price history.
type ExportOptions struct {
	WatchID   int64
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}
