package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fleetlease/fleetlease/internal/commissions"
	jobmetrics "github.com/fleetlease/fleetlease/internal/jobs"
)

// CommissionScanJob reports commissions approaching or past their due date.
type CommissionScanJob struct {
	Commissions *commissions.Service
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	clock       func() time.Time
}

// NewCommissionScanJob initialises the commission due scan handler.
func NewCommissionScanJob(svc *commissions.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *CommissionScanJob {
	return &CommissionScanJob{
		Commissions: svc,
		Logger:      logger,
		Metrics:     metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the due scan.
func (j *CommissionScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Commissions == nil {
		return errors.New("commission scan: handler not configured")
	}
	var payload CommissionScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.HorizonDays <= 0 {
		payload.HorizonDays = 7
	}

	start := j.now()
	tracker := j.metrics().Track(TaskCommissionsDueScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("horizon_days", payload.HorizonDays))
	logger.Info("starting commission due scan")

	due, err := j.Commissions.ListDue(ctx)
	if err != nil {
		resultErr = err
		logger.Error("due listing failed", slog.Any("error", err))
		return resultErr
	}
	overdue, err := j.Commissions.ListOverdue(ctx)
	if err != nil {
		resultErr = err
		logger.Error("overdue listing failed", slog.Any("error", err))
		return resultErr
	}

	for _, c := range overdue {
		logger.Warn("commission past due",
			slog.Int64("commission_id", c.ID),
			slog.Int64("manufacturer_id", c.ManufacturerID),
			slog.String("amount", c.CommissionAmount.StringFixed(2)),
			slog.String("status", string(c.Status)),
		)
	}

	logger.Info("completed commission due scan",
		slog.Int("due", len(due)),
		slog.Int("overdue", len(overdue)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *CommissionScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCommissionsDueScan))
	}
	return slog.Default().With(slog.String("job", TaskCommissionsDueScan))
}

func (j *CommissionScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *CommissionScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
