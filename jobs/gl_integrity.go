package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/fleetlease/fleetlease/internal/jobs"
	"github.com/fleetlease/fleetlease/internal/ledger/accounts"
	"github.com/fleetlease/fleetlease/internal/ledger/shared"
)

// LedgerIntegrityJob recomputes each account balance from its posted lines
// and reports accounts whose stored balance drifted beyond tolerance.
type LedgerIntegrityJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLedgerIntegrityJob initialises the integrity check handler.
func NewLedgerIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type integrityMismatch struct {
	AccountID int64
	Code      string
	Stored    decimal.Decimal
	Derived   decimal.Decimal
}

// Handle executes the integrity check.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskLedgerIntegrityCheck)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting ledger integrity check")

	checked, mismatches, err := j.scan(ctx, payload.Limit)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}

	for _, m := range mismatches {
		logger.Warn("account balance drift",
			slog.Int64("account_id", m.AccountID),
			slog.String("code", m.Code),
			slog.String("stored", m.Stored.StringFixed(2)),
			slog.String("derived", m.Derived.StringFixed(2)),
		)
	}
	j.metrics().AddImbalances(len(mismatches))

	logger.Info("completed ledger integrity check",
		slog.Int("accounts", checked),
		slog.Int("mismatches", len(mismatches)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *LedgerIntegrityJob) scan(ctx context.Context, limit int) (int, []integrityMismatch, error) {
	if j.Pool == nil {
		return 0, nil, errors.New("ledger integrity: pool not configured")
	}
	// The join operand is pre-filtered to booked entries so accounts whose
	// only lines are DRAFT still yield a row with zero sums.
	query := `SELECT a.id, a.code, a.type, a.balance,
		COALESCE(SUM(l.debit), 0) AS debit, COALESCE(SUM(l.credit), 0) AS credit
		FROM accounts a
		LEFT JOIN (
			SELECT jl.account_id, jl.debit, jl.credit
			FROM journal_lines jl
			JOIN journal_entries je ON je.id = jl.entry_id AND je.status IN ('POSTED', 'REVERSED')
		) l ON l.account_id = a.id
		GROUP BY a.id, a.code, a.type, a.balance
		ORDER BY a.id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := j.Pool.Query(ctx, query, args...)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	checked := 0
	mismatches := make([]integrityMismatch, 0)
	for rows.Next() {
		var (
			id            int64
			code          string
			accountType   accounts.AccountType
			stored        decimal.Decimal
			debit, credit decimal.Decimal
		)
		if err := rows.Scan(&id, &code, &accountType, &stored, &debit, &credit); err != nil {
			return checked, mismatches, err
		}
		checked++
		derived := accounts.BalanceDelta(accountType, debit, credit)
		if stored.Sub(derived).Abs().GreaterThan(shared.Tolerance) {
			mismatches = append(mismatches, integrityMismatch{
				AccountID: id,
				Code:      code,
				Stored:    stored,
				Derived:   derived,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return checked, mismatches, err
	}
	return checked, mismatches, nil
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrityCheck))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrityCheck))
}

func (j *LedgerIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *LedgerIntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
