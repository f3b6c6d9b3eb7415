package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"growth_tracker/internal/config"
	"growth_tracker/internal/httpapi"
	"growth_tracker/internal/publisher"
	"growth_tracker/internal/ratelimit"
	"growth_tracker/internal/scheduler"
	"growth_tracker/internal/service"
	"growth_tracker/internal/source/instagram"
	"growth_tracker/internal/storage/postgres"
	"growth_tracker/internal/storage/redis"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrationsDir := flag.String("migrations", "migrations", "directory with SQL migrations")
	migrateOnly := flag.Bool("migrate", false, "apply migrations and exit")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	if err := runMigrations(*migrationsDir, cfg.Database.URL(), logger); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}
	if *migrateOnly {
		return
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Optional collaborators stay nil interfaces when disabled.
	var events service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		events = rabbitMQ
	}

	var cache service.AnalyticsCache
	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		cache = redis.NewAnalyticsCache(rdb)
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	accountStore := postgres.NewAccountStore(db)
	snapshotStore := postgres.NewSnapshotStore(db)
	postStore := postgres.NewPostSnapshotStore(db)
	syncLogStore := postgres.NewSyncLogStore(db)
	txManager := postgres.NewTransactionManager(db)

	graph := instagram.NewBreakerClient(
		instagram.New(instagram.Config{
			BaseURL: cfg.Instagram.BaseURL,
			Timeout: cfg.Instagram.Timeout,
		}, logger),
		instagram.BreakerConfig{
			MaxRequests:         cfg.Instagram.Breaker.MaxRequests,
			Interval:            cfg.Instagram.Breaker.Interval,
			Timeout:             cfg.Instagram.Breaker.Timeout,
			ConsecutiveFailures: cfg.Instagram.Breaker.ConsecutiveFailures,
		},
		logger,
	)
	refresher := instagram.NewRefresher(instagram.RefresherConfig{
		TokenURL:     cfg.Instagram.TokenURL,
		ClientID:     cfg.Instagram.ClientID,
		ClientSecret: cfg.Instagram.ClientSecret,
		Timeout:      cfg.Instagram.Timeout,
	})

	snapshots := service.NewSnapshotService(
		graph,
		accountStore,
		snapshotStore,
		postStore,
		syncLogStore,
		txManager,
		events,
		cache,
		logger,
		service.SnapshotConfig{
			MediaLimit:    cfg.Instagram.MediaLimit,
			FetchInsights: cfg.Sync.InsightsEnabled(),
		},
	)
	credentials := service.NewCredentialService(accountStore, refresher, syncLogStore, cfg.Sync.RefreshWindow, logger)
	orchestrator := service.NewOrchestrator(
		accountStore,
		snapshotStore,
		syncLogStore,
		snapshots,
		credentials,
		ratelimit.NewInterval(cfg.Sync.AccountDelay),
		ratelimit.NewInterval(cfg.Sync.StaleAccountDelay),
		logger,
		service.OrchestratorConfig{
			StaleThreshold: cfg.Sync.StaleThreshold,
			RetentionDays:  cfg.Sync.RetentionDays,
		},
	)
	history := service.NewHistoryService(accountStore, snapshotStore, postStore, cache, logger)
	growth := service.NewGrowthService(history, logger)

	sched := scheduler.NewScheduler(orchestrator, scheduler.Config{
		DailyCollection: cfg.Schedule.DailyCollection,
		TokenRefresh:    cfg.Schedule.TokenRefresh,
		StaleSweep:      cfg.Schedule.StaleSweep,
		RunTimeout:      cfg.Sync.RunTimeout,
	}, logger)
	if err := sched.Register(); err != nil {
		logger.Error("failed to register jobs", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Syncer:  orchestrator,
			History: history,
			Growth:  growth,
			DB:      db,
			Secret:  cfg.HTTP.CronSecret,
			Logger:  logger,

			RunTimeout: cfg.Sync.RunTimeout,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	logger.Info("starting growth syncer",
		"daily_collection", cfg.Schedule.DailyCollection,
		"account_delay", cfg.Sync.AccountDelay,
		"events", events != nil,
		"cache", cache != nil,
	)

	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
	logger.Info("stopped")
}

func runMigrations(dir, databaseURL string, logger *slog.Logger) error {
	m, err := migrate.New("file://"+dir, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	logger.Info("migrations applied", "version", version, "dirty", dirty)
	return nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
