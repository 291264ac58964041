package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Proton-105/gifpick-bot/internal/bot"
	"github.com/Proton-105/gifpick-bot/internal/bot/handlers"
	"github.com/Proton-105/gifpick-bot/internal/database"
	"github.com/Proton-105/gifpick-bot/internal/engine"
	apperrors "github.com/Proton-105/gifpick-bot/internal/errors"
	"github.com/Proton-105/gifpick-bot/internal/health"
	"github.com/Proton-105/gifpick-bot/internal/idempotency"
	"github.com/Proton-105/gifpick-bot/internal/jobs"
	jobhandlers "github.com/Proton-105/gifpick-bot/internal/jobs/handlers"
	"github.com/Proton-105/gifpick-bot/internal/lifecycle"
	"github.com/Proton-105/gifpick-bot/internal/middleware"
	"github.com/Proton-105/gifpick-bot/internal/presenter"
	"github.com/Proton-105/gifpick-bot/internal/ratelimit"
	"github.com/Proton-105/gifpick-bot/internal/repository"
	"github.com/Proton-105/gifpick-bot/internal/tenor"
	"github.com/Proton-105/gifpick-bot/migrations"
	"github.com/Proton-105/gifpick-bot/pkg/config"
	"github.com/Proton-105/gifpick-bot/pkg/graceful"
	"github.com/Proton-105/gifpick-bot/pkg/logger"
	"github.com/Proton-105/gifpick-bot/pkg/metrics"
	"github.com/Proton-105/gifpick-bot/pkg/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gifpick-bot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return err
	}

	log, level := logger.NewLeveled(*cfg)
	slog.SetDefault(log)

	flushSentry, err := logger.InitSentry(cfg.Sentry, cfg.AppEnv)
	if err != nil {
		return err
	}
	defer flushSentry()

	config.Watch(v, func(updated *config.Config) {
		level.Set(logger.ParseLevel(updated.Logger.Level))
		log.Info("configuration reloaded", slog.String("log_level", updated.Logger.Level))
	}, func(err error) {
		log.Warn("ignoring invalid configuration change", slog.Any("error", err))
	})

	log.Info("starting gifpick bot",
		slog.String("mode", cfg.Bot.Mode),
		slog.String("command", cfg.Bot.Command),
		slog.String("ops_addr", cfg.Server.Port),
	)

	shutdown := lifecycle.NewShutdown(log)
	checker := health.NewChecker(log)

	db, err := openDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	shutdown.Register("database", lifecycle.Closer(db.Close))
	checker.AddCheck("database", health.NewDBChecker(db))

	if err := database.NewMigrator(db, log).ApplyFS(ctx, migrations.FS, "."); err != nil {
		_ = shutdown.Execute(context.Background())
		return fmt.Errorf("apply migrations: %w", err)
	}

	var rdb *goredis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.New(ctx, cfg.Redis.Config)
		if err != nil {
			_ = shutdown.Execute(context.Background())
			return err
		}
		shutdown.Register("redis", lifecycle.Closer(rdb.Close))
		checker.AddCheck("redis", health.NewRedisChecker(rdb))
	}

	store := repository.NewRequestStore(db, log)
	tenorClient := tenor.NewClient(cfg.Tenor, nil, log)

	var engineOpts []engine.Option
	if cfg.Jobs.Enabled {
		jobManager := jobs.NewManager(cfg.Redis.AsynqOpt(), log)
		shutdown.Register("jobs client", lifecycle.Closer(jobManager.Close))
		engineOpts = append(engineOpts, engine.WithShareRegistrar(jobs.NewShareEnqueuer(jobManager, log)))

		if err := startJobs(cfg, store, tenorClient, shutdown, log); err != nil {
			_ = shutdown.Execute(context.Background())
			return err
		}
	}

	eng := engine.New(store, tenorClient, log, engineOpts...)
	gif := handlers.NewGifHandlers(eng, presenter.New(cfg.Bot.Command), cfg.Bot.Command, log)

	var idem idempotency.Manager
	var limiter ratelimit.Limiter
	memLimiter := ratelimit.NewMemoryLimiter()
	limiter = memLimiter
	if rdb != nil {
		idem = idempotency.NewManager(idempotency.NewRedisStore(rdb, log), cfg.Idempotency, log)
		limiter = ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(rdb, log), memLimiter, log)
	}

	var rateLimitMw *middleware.RateLimitMiddleware
	if cfg.RateLimit.Enabled {
		rules, err := ratelimit.NewRules(cfg.RateLimit)
		if err != nil {
			_ = shutdown.Execute(context.Background())
			return err
		}
		rateLimitMw = middleware.NewRateLimitMiddleware(limiter, rules, log)
		go ratelimit.NewCleaner(memLimiter, time.Minute, 10*time.Minute, log).Run(ctx)
	}

	b, err := bot.New(*cfg, log, gif, idem, rateLimitMw)
	if err != nil {
		_ = shutdown.Execute(context.Background())
		return err
	}
	checker.AddCheck("telegram", health.NewTelegramChecker(b.Telebot()))

	go metrics.NewRequestCollector(store, 30*time.Second).Run(ctx)

	probes := lifecycle.NewProbes(checker, log)
	opsServer := graceful.NewServer(log, &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           lifecycle.NewOpsHandler(probes, log),
		ReadHeaderTimeout: 5 * time.Second,
	}, cfg.Server.ShutdownTimeout)

	opsErr := make(chan error, 1)
	go func() { opsErr <- opsServer.ListenAndServe(ctx) }()

	botDone := make(chan struct{})
	go func() {
		b.Start()
		close(botDone)
	}()
	shutdown.Register("telegram bot", func(context.Context) error {
		b.Stop()
		<-botDone
		return nil
	})

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-opsErr:
		if err != nil {
			log.Error("ops server stopped", slog.Any("error", err))
		}
	}

	probes.Drain()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return shutdown.Execute(shutdownCtx)
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	err = apperrors.WithRetry(ctx, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			log.Warn("database not reachable yet", slog.Any("error", err))
			return apperrors.NewDatabaseError(err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("database connected", slog.String("host", cfg.Host), slog.String("name", cfg.Name))
	return db, nil
}

func startJobs(cfg *config.Config, store *repository.RequestStore, client *tenor.Client, shutdown *lifecycle.Shutdown, log *slog.Logger) error {
	worker := jobs.NewWorker(cfg.Redis.AsynqOpt(), cfg.Jobs.Concurrency, log)
	worker.RegisterHandler(jobs.TaskTypeRegisterShare, jobhandlers.NewRegisterShareHandler(client, log))
	worker.RegisterHandler(jobs.TaskTypeExpireRequests, jobhandlers.NewExpireRequestsHandler(store, log))
	if err := worker.Start(); err != nil {
		return fmt.Errorf("start jobs worker: %w", err)
	}
	shutdown.Register("jobs worker", lifecycle.Stopper(worker.Shutdown))

	scheduler := jobs.NewScheduler(cfg.Redis.AsynqOpt(), cfg.Jobs.ExpireSchedule, cfg.Jobs.ExpireAfter, log)
	if err := scheduler.RegisterTasks(); err != nil {
		return fmt.Errorf("register scheduled jobs: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	shutdown.Register("jobs scheduler", lifecycle.Stopper(scheduler.Shutdown))

	return nil
}
