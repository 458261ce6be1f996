// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/resurgence-rp/radiorelay/internal/bot"
	"github.com/resurgence-rp/radiorelay/internal/config"
	"github.com/resurgence-rp/radiorelay/internal/pkg/metrics"
	"github.com/resurgence-rp/radiorelay/internal/pkg/postgres"
	"github.com/resurgence-rp/radiorelay/internal/relay"
	"github.com/resurgence-rp/radiorelay/internal/schedule"
	"github.com/resurgence-rp/radiorelay/internal/schedule/filestore"
	"github.com/resurgence-rp/radiorelay/internal/schedule/pgstore"
	"github.com/resurgence-rp/radiorelay/internal/version"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	store         schedule.Store
	db            *pgxpool.Pool // nil with the file backend
	bot           *bot.Bot
	scheduler     *schedule.Scheduler
	metricsServer *http.Server
}

// New creates a new application instance: logger, storage backend, Discord
// session, relay pipeline, deletion scheduler and metrics server, all wired
// but not yet started.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	store, db, err := openStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage backend: %w", err)
	}

	b, err := bot.New(cfg.Discord)
	if err != nil {
		store.Close()
		return nil, err
	}

	rly := relay.New(relay.Config{
		RadioChannelID: cfg.Discord.RadioChannelID,
		AdminChannelID: cfg.Discord.AdminChannelID,
		PublicFooter:   cfg.Relay.PublicFooter,
		AdminFooter:    cfg.Relay.AdminFooter,
		Retention:      cfg.Relay.Retention,
	}, b, store)

	// Each inbound message gets its own goroutine; the gateway event loop
	// must not wait on Discord REST calls or storage writes.
	b.OnMessage(func(msg relay.Inbound) {
		go rly.HandleMessage(context.Background(), msg)
	})

	executor := schedule.NewExecutor(schedule.ExecutorConfig{
		RequestTimeout: cfg.Scheduler.RequestTimeout,
		BaseBackoff:    cfg.Scheduler.BaseBackoff,
		MaxBackoff:     cfg.Scheduler.MaxBackoff,
		RatePerSecond:  cfg.Scheduler.RateLimitPerSec,
	}, bot.NewDeleter(b))

	scheduler := schedule.NewScheduler(schedule.SchedulerConfig{
		TickInterval:       cfg.Scheduler.TickInterval,
		MaxAttempts:        cfg.Scheduler.MaxAttempts,
		HaltOnStorageError: cfg.Scheduler.HaltOnStorageError,
	}, store, executor, bot.NewNotifier(b))

	app := &App{
		config:    cfg,
		logger:    logger,
		store:     store,
		db:        db,
		bot:       b,
		scheduler: scheduler,
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", app.healthzHandler)
	router.Get("/readyz", app.readyzHandler)

	app.metricsServer = &http.Server{
		Addr:              cfg.Server.MetricsAddr,
		Handler:           router,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run connects to Discord, performs the startup reschedule pass and starts
// the scheduler and metrics server. It blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.bot.Open(); err != nil {
		return err
	}

	// Rebuild scheduling state: anything left in-flight by a previous run
	// comes back as pending.
	records, err := a.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load deletion schedule: %w", err)
	}
	a.logger.Info("deletion schedule loaded",
		"records", len(records),
		"version", version.Version,
	)

	a.scheduler.Start(ctx)

	if a.db != nil {
		go a.collectDBMetrics(ctx)
	}

	go func() {
		a.logger.Info("starting metrics server", "addr", a.config.Server.MetricsAddr)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	<-ctx.Done()
	return nil
}

// Shutdown gracefully stops the scheduler, the Discord session and the
// metrics server.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	a.scheduler.Stop()

	var errs []error
	if err := a.bot.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close discord session: %w", err))
	}
	if err := a.metricsServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
	}
	a.store.Close()

	return errors.Join(errs...)
}

func openStore(cfg config.StorageConfig) (schedule.Store, *pgxpool.Pool, error) {
	switch cfg.Backend {
	case "postgres":
		connectCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		pool, err := postgres.Connect(connectCtx, postgres.Config{
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			Database:        cfg.Postgres.Database,
			MaxConns:        cfg.Postgres.MaxConns,
			ConnectAttempts: cfg.Postgres.ConnectAttempts,
		})
		if err != nil {
			return nil, nil, err
		}
		store, err := pgstore.New(connectCtx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool, nil
	default:
		store, err := filestore.Open(cfg.File.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
}

func (a *App) collectDBMetrics(ctx context.Context) {
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	// Ready once the schedule can be read.
	if _, err := a.store.LoadDue(r.Context(), time.Time{}); err != nil {
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
