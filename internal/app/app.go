package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"soundtracker/internal/config"
	"soundtracker/internal/domain"
	"soundtracker/internal/fetch"
	"soundtracker/internal/infrastructure/browser"
	"soundtracker/internal/infrastructure/scheduler"
	"soundtracker/internal/infrastructure/storage"
	"soundtracker/internal/logging"
	"soundtracker/internal/ports"
	"soundtracker/internal/proxy"
	"soundtracker/internal/usecase"
)

// Application wires configuration to adapters and the refresh pipeline.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	db        *pgxpool.Pool
	browser   *browser.Fetcher
	driver    ports.CycleRunner
	scheduler ports.Scheduler
}

// New builds a runnable application instance.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := storage.Open(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	store := storage.NewPostgresRepository(db)

	endpoints, err := loadEndpoints(cfg.Proxy)
	if err != nil {
		db.Close()
		return nil, err
	}
	pool := proxy.NewPool(endpoints, proxy.Options{
		FailureThreshold: cfg.Proxy.FailureThreshold,
		CooldownBase:     cfg.Proxy.CooldownBase.Std(),
		CooldownMax:      cfg.Proxy.CooldownMax.Std(),
		Logger:           baseLogger.With("component", "proxy"),
	})
	baseLogger.Info("proxy pool loaded", "endpoints", pool.Size())

	if cfg.Proxy.ProbeOnStart && len(endpoints) > 0 {
		probeEndpoints(ctx, pool, endpoints, cfg.Proxy, baseLogger)
	}

	registry := fetch.NewRegistry()
	registry.Register(fetch.NewHTTPFetcher(cfg.Fetch.Timeout.Std(), cfg.Fetch.UserAgent))
	rodFetcher := browser.New(cfg.Fetch.Timeout.Std(), baseLogger.With("component", "browser"))
	registry.Register(rodFetcher)

	strategy, err := registry.Resolve(cfg.Fetch.Strategy)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("select fetch strategy: %w", err)
	}

	engine := fetch.NewEngine(strategy, cfg.Refresh.RequestsPerMinute, baseLogger.With("component", "fetch"))
	retry := usecase.NewRetryController(
		engine,
		pool,
		cfg.Refresh.MaxAttempts,
		cfg.Refresh.BaseDelay.Std(),
		usecase.ExhaustedPolicy(cfg.Proxy.Exhausted),
		baseLogger.With("component", "retry"),
	)
	batch := usecase.NewBatchOrchestrator(retry, cfg.Refresh.Concurrency, baseLogger.With("component", "batch"))
	driver := usecase.NewCycleDriver(
		store,
		batch,
		cfg.Refresh.StalenessThreshold.Std(),
		cfg.Refresh.BatchSize,
		cfg.Scheduler.CycleTimeout.Std(),
		baseLogger.With("component", "cycle"),
	)

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		db:        db,
		browser:   rodFetcher,
		driver:    driver,
		scheduler: scheduler.NewIntervalScheduler(cfg.Scheduler.CheckInterval.Std()),
	}, nil
}

// Run starts the cycle trigger and blocks until the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	job := func(trigger time.Time) {
		if _, err := a.driver.RunCycle(ctx, trigger); err != nil {
			a.logger.Error("refresh cycle failed", "error", err)
		}
	}

	if err := a.scheduler.Start(ctx, job); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.scheduler.Stop(stopCtx)

	a.browser.Close()
	a.db.Close()
	return nil
}

func loadEndpoints(cfg config.ProxyConfig) ([]domain.ProxyEndpoint, error) {
	configured := cfg.Endpoints
	if cfg.File != "" {
		fromFile, err := config.LoadProxyFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("load proxies: %w", err)
		}
		configured = append(configured, fromFile...)
	}

	endpoints := make([]domain.ProxyEndpoint, 0, len(configured))
	for _, ep := range configured {
		endpoints = append(endpoints, domain.ProxyEndpoint{
			Host:     ep.Host,
			Port:     ep.Port,
			Username: ep.Username,
			Password: ep.Password,
		})
	}
	return endpoints, nil
}

func probeEndpoints(ctx context.Context, pool *proxy.Pool, endpoints []domain.ProxyEndpoint, cfg config.ProxyConfig, logger *slog.Logger) {
	results := proxy.Probe(ctx, pool, endpoints, cfg.ProbeURL, cfg.ProbeTimeout.Std())
	for _, res := range results {
		if res.Working {
			logger.Info("proxy probe ok", "endpoint", res.Endpoint.Key(), "latency", res.Latency)
		} else {
			logger.Warn("proxy probe failed", "endpoint", res.Endpoint.Key(), "error", res.Err)
		}
	}
}
