package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/fleetlease/fleetlease/internal/app"
	"github.com/fleetlease/fleetlease/internal/commissions"
	jobmetrics "github.com/fleetlease/fleetlease/internal/jobs"
	"github.com/fleetlease/fleetlease/internal/leasing/agreements"
	"github.com/fleetlease/fleetlease/internal/leasing/schedules"
	"github.com/fleetlease/fleetlease/internal/platform/db"
	"github.com/fleetlease/fleetlease/internal/shared"
	"github.com/fleetlease/fleetlease/jobs"
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

	metrics := jobmetrics.NewMetrics(nil)
	auditLogger := shared.NewAuditLogger(pool)

	agreementsRepo := agreements.NewRepository(pool)
	schedulesRepo := schedules.NewRepository(pool)
	schedulesService := schedules.NewService(schedulesRepo, agreementsRepo, auditLogger)

	commissionsRepo := commissions.NewRepository(pool)
	commissionsService := commissions.NewService(commissionsRepo, auditLogger)

	sweepJob := jobs.NewOverdueSweepJob(schedulesService, logger, metrics)
	commissionJob := jobs.NewCommissionScanJob(commissionsService, logger, metrics)
	integrityJob := jobs.NewLedgerIntegrityJob(pool, logger, metrics)

	sweepTask, err := jobs.NewOverdueSweepTask(jobs.OverdueSweepPayload{})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	commissionTask, err := jobs.NewCommissionScanTask(jobs.CommissionScanPayload{HorizonDays: 7})
	if err != nil {
		logger.Error("build commission task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewLedgerIntegrityTask(jobs.LedgerIntegrityPayload{})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSchedulesOverdueSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskCommissionsDueScan, Handler: commissionJob.Handle},
			{Type: jobs.TaskLedgerIntegrityCheck, Handler: integrityJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 1 * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: commissionTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 2 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
