package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/fleetlease/fleetlease/internal/app"
	"github.com/fleetlease/fleetlease/internal/commissions"
	"github.com/fleetlease/fleetlease/internal/leasing/agreements"
	"github.com/fleetlease/fleetlease/internal/leasing/schedules"
	"github.com/fleetlease/fleetlease/internal/ledger/accounts"
	"github.com/fleetlease/fleetlease/internal/ledger/journals"
	"github.com/fleetlease/fleetlease/internal/observability"
	"github.com/fleetlease/fleetlease/internal/payments"
	"github.com/fleetlease/fleetlease/internal/platform/cache"
	"github.com/fleetlease/fleetlease/internal/platform/db"
	"github.com/fleetlease/fleetlease/internal/shared"
	"github.com/fleetlease/fleetlease/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, listing cache disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	accountsRepo := accounts.NewRepository(pool)
	listingCache := accounts.NewListingCache(redisClient, cfg.AccountListingTTL)
	accountsService := accounts.NewService(accountsRepo, listingCache)

	journalsRepo := journals.NewRepository(pool)
	journalsService := journals.NewService(journalsRepo, auditLogger, accountsService)

	agreementsRepo := agreements.NewRepository(pool)

	schedulesRepo := schedules.NewRepository(pool)
	schedulesService := schedules.NewService(schedulesRepo, agreementsRepo, auditLogger)

	commissionsRepo := commissions.NewRepository(pool)
	commissionsService := commissions.NewService(commissionsRepo, auditLogger)

	paymentsRepo := payments.NewRepository(pool)
	paymentsService := payments.NewService(
		paymentsRepo,
		schedulesService,
		journalsService,
		commissionsService,
		agreementsRepo,
		auditLogger,
		payments.PostingConfig{
			CashAccountID:     cfg.CashAccountID,
			RevenueAccountID:  cfg.RevenueAccountID,
			CommissionDueDays: cfg.CommissionDueDays,
		},
	)

	jobHandler := jobs.NewHandler(asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AccountsHandler:    accounts.NewHandler(logger, accountsService),
		JournalsHandler:    journals.NewHandler(logger, journalsService),
		SchedulesHandler:   schedules.NewHandler(logger, schedulesService),
		PaymentsHandler:    payments.NewHandler(logger, paymentsService),
		CommissionsHandler: commissions.NewHandler(logger, commissionsService),
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
