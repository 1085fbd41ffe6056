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

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/relayforge/relayforge/cmd/relayforge/cli"
	"github.com/relayforge/relayforge/internal/app"
	"github.com/relayforge/relayforge/internal/billing"
	"github.com/relayforge/relayforge/internal/payments"
	"github.com/relayforge/relayforge/internal/platform/cache"
	"github.com/relayforge/relayforge/internal/platform/db"
	"github.com/relayforge/relayforge/internal/relays"
	"github.com/relayforge/relayforge/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	if err := db.Migrate(cfg.PGDSN); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	relayRepo := relays.NewRepository(pool)
	paymentRepo := payments.NewRepository(pool)
	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, paymentRepo, relayRepo, cfg.Pricing())

	if len(os.Args) > 1 && os.Args[1] == "backfill" {
		os.Exit(runBackfill(ctx, cfg, logger, billingService, billingRepo, paymentRepo, os.Args[2:]))
	}

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		// Balance caching degrades to direct computation without Redis.
		logger.Warn("redis unavailable", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	balanceCache := billing.NewBalanceCache(redisClient, cfg.BalanceCacheTTL)
	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	billingHandler := billing.NewHandler(logger, billingService, balanceCache, jobsClient)
	relaysHandler := relays.NewHandler(logger, relayRepo)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		BillingHandler: billingHandler,
		RelaysHandler:  relaysHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      http.TimeoutHandler(router, cfg.AppRequestTimeout, "request timed out"),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.Any("error", err))
	}
}

func runBackfill(ctx context.Context, cfg *app.Config, logger *slog.Logger, service *billing.Service, repo *billing.Repository, paymentRepo *payments.Repository, args []string) int {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	mode := fs.String("mode", "dry", "execution mode: dry or apply")
	jsonOut := fs.Bool("json", false, "emit the summary as JSON")
	yes := fs.Bool("yes", false, "skip the apply confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	migrator := billing.NewMigrator(service, repo, paymentRepo, logger, cfg.BackfillParallelism)
	backfill := cli.NewBackfillCLI(migrator)
	return backfill.Command(ctx, cli.BackfillOptions{
		Mode:       cli.BackfillMode(*mode),
		JSONOutput: *jsonOut,
		Yes:        *yes,
	})
}
