package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/relayforge/relayforge/internal/app"
	"github.com/relayforge/relayforge/internal/billing"
	"github.com/relayforge/relayforge/internal/payments"
	"github.com/relayforge/relayforge/internal/platform/db"
	"github.com/relayforge/relayforge/internal/relays"
	"github.com/relayforge/relayforge/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	relayRepo := relays.NewRepository(pool)
	paymentRepo := payments.NewRepository(pool)
	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, paymentRepo, relayRepo, cfg.Pricing())
	migrator := billing.NewMigrator(billingService, billingRepo, paymentRepo, logger, cfg.BackfillParallelism)

	workerCfg := jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBillingBackfill, Handler: jobs.NewBillingBackfillHandler(migrator, logger)},
		},
	}
	if cfg.BackfillCron != "" {
		task, err := jobs.NewBillingBackfillTask(jobs.BillingBackfillPayload{})
		if err != nil {
			logger.Error("build backfill task", slog.Any("error", err))
			os.Exit(1)
		}
		workerCfg.Cron = append(workerCfg.Cron, jobs.CronRegistration{
			Spec: cfg.BackfillCron,
			Task: task,
		})
	}

	worker, err := jobs.NewWorker(workerCfg)
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
