package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/fleetlease/fleetlease/internal/jobs"
	"github.com/fleetlease/fleetlease/internal/leasing/schedules"
)

// OverdueSweepJob marks lapsed installments overdue and applies late fees.
type OverdueSweepJob struct {
	Schedules *schedules.Service
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewOverdueSweepJob initialises the overdue sweep handler.
func NewOverdueSweepJob(svc *schedules.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueSweepJob {
	return &OverdueSweepJob{
		Schedules: svc,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the sweep.
func (j *OverdueSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Schedules == nil {
		return errors.New("overdue sweep: handler not configured")
	}
	var payload OverdueSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskSchedulesOverdueSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting overdue sweep")

	if payload.DryRun {
		due, err := j.Schedules.ListDueWithin(ctx, 0)
		if err != nil {
			resultErr = err
			logger.Error("dry run failed", slog.Any("error", err))
			return resultErr
		}
		logger.Info("dry run completed", slog.Int("candidates", len(due)))
		return nil
	}

	result, err := j.Schedules.SweepOverdue(ctx)
	if err != nil {
		resultErr = err
		logger.Error("sweep failed", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddLateFees(result.FeesApplied)

	logger.Info("completed overdue sweep",
		slog.Int("marked_overdue", result.MarkedOverdue),
		slog.Int("fees_applied", result.FeesApplied),
		slog.String("total_fees", result.TotalFees.StringFixed(2)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *OverdueSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSchedulesOverdueSweep))
	}
	return slog.Default().With(slog.String("job", TaskSchedulesOverdueSweep))
}

func (j *OverdueSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *OverdueSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
