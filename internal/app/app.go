package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"AvitoMonitor/internal/config"
	"AvitoMonitor/internal/infrastructure/fetcher"
	"AvitoMonitor/internal/infrastructure/httpapi"
	"AvitoMonitor/internal/infrastructure/metrics"
	"AvitoMonitor/internal/infrastructure/parser"
	"AvitoMonitor/internal/infrastructure/scheduler"
	"AvitoMonitor/internal/infrastructure/storage"
	"AvitoMonitor/internal/infrastructure/telegram"
	"AvitoMonitor/internal/logging"
	"AvitoMonitor/internal/ports"
	"AvitoMonitor/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// repository is what the storage backends provide to the application.
type repository interface {
	ports.SearchRegistry
	ports.SeenLedger
	ports.SearchWriter
	ports.SearchReader
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	db        *sql.DB
	poller    *usecase.Poller
	scheduler *usecase.Scheduler
	server    *httpapi.Server
}

// New opens storage and builds every component. Close releases the database.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	repo, db, err := openRepository(ctx, cfg.Database, baseLogger)
	if err != nil {
		return nil, err
	}

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.BotToken != "" {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.APIBaseURL)
	} else {
		baseLogger.Warn("telegram bot token not configured, notifications will only be logged")
		notifier = telegram.NewLogNotifier(logging.Component(baseLogger, "notifier.dryrun"))
	}

	counter := metrics.NewBlockCounter()

	poller := usecase.NewPoller(usecase.PollerDeps{
		Registry: repo,
		Ledger:   repo,
		Fetcher: fetcher.New(fetcher.Config{
			UserAgent:         cfg.Fetcher.UserAgent,
			AcceptLanguage:    cfg.Fetcher.AcceptLanguage,
			Timeout:           cfg.Fetcher.Timeout(),
			RequestsPerSecond: cfg.Monitor.RequestsPerSecond,
		}, nil),
		Extractor: parser.NewAvitoParser(logging.Component(baseLogger, "parser.avito")),
		Notifier:  notifier,
		Metrics:   counter,
		Logger:    logging.Component(baseLogger, "poller"),
	}, usecase.PollerConfig{
		MaxSearches:   cfg.Monitor.MaxSearches,
		BlockDuration: cfg.Monitor.BlockDuration(),
		Concurrency:   cfg.Monitor.Concurrency,
		NotifyTimeout: cfg.Monitor.NotifyTimeout(),
	})

	sched := usecase.NewScheduler(
		scheduler.NewIntervalScheduler(cfg.Monitor.CheckInterval()),
		poller,
		logging.Component(baseLogger, "scheduler"),
	)

	var server *httpapi.Server
	if cfg.HTTP.Addr != "" {
		registration := usecase.NewRegistration(repo, cfg.Monitor.MaxSearches, logging.Component(baseLogger, "registration"))
		server = httpapi.NewServer(registration, repo, counter, logging.Component(baseLogger, "http"))
	}

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		db:        db,
		poller:    poller,
		scheduler: sched,
		server:    server,
	}, nil
}

func openRepository(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (repository, *sql.DB, error) {
	if cfg.Driver == config.DriverMemory {
		logger.Warn("using in-memory storage, state is lost on exit")
		return storage.NewMemoryRepository(), nil, nil
	}

	db, dialect, err := storage.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	logger.Info("storage ready", "driver", cfg.Driver)
	return storage.NewSQLRepository(db, dialect), db, nil
}

// Run starts polling and the HTTP endpoint, blocking until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	a.logger.Info("monitor starting",
		"interval", a.cfg.Monitor.CheckInterval().String(),
		"max_searches", a.cfg.Monitor.MaxSearches,
		"block_duration", a.cfg.Monitor.BlockDuration().String(),
		"concurrency", a.cfg.Monitor.Concurrency,
	)

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.server != nil {
		g.Go(func() error {
			return a.server.ListenAndServe(gctx, a.cfg.HTTP.Addr)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.scheduler.Stop(stopCtx); err != nil {
			return fmt.Errorf("stop scheduler: %w", err)
		}
		a.logger.Info("monitor stopped")
		return nil
	})

	return g.Wait()
}

// RunOnce performs a single tick and returns.
func (a *Application) RunOnce(ctx context.Context) error {
	stats, err := a.poller.Tick(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("single tick done", "checked", stats.Checked, "new_ads", stats.NewAds)
	return nil
}

// Close releases the database connection, if any.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
