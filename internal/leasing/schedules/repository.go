package schedules

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository encapsulates DB operations for payment schedules.
type Repository interface {
	Get(ctx context.Context, id int64) (PaymentSchedule, error)
	ListByAgreement(ctx context.Context, agreementID int64) ([]PaymentSchedule, error)
	ListDueWithin(ctx context.Context, from, to time.Time) ([]PaymentSchedule, error)
	ListPastDue(ctx context.Context, asOf time.Time) ([]PaymentSchedule, error)
	CountByAgreement(ctx context.Context, agreementID int64) (int, error)
	InsertBatch(ctx context.Context, rows []PaymentSchedule) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a schedule transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (PaymentSchedule, error)
	UpdatePayment(ctx context.Context, id int64, paid decimal.Decimal, paidDate time.Time, status ScheduleStatus) error
	UpdateStatus(ctx context.Context, id int64, status ScheduleStatus) error
	AddLateFee(ctx context.Context, id int64, fee decimal.Decimal) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const scheduleColumns = `id, lease_agreement_id, installment_number, due_date, principal_amount, interest_amount, total_amount, status, paid_amount, paid_date, late_fee, created_at, updated_at`

func scanSchedule(row pgx.Row) (PaymentSchedule, error) {
	var s PaymentSchedule
	err := row.Scan(&s.ID, &s.LeaseAgreementID, &s.InstallmentNumber, &s.DueDate, &s.PrincipalAmount, &s.InterestAmount, &s.TotalAmount, &s.Status, &s.PaidAmount, &s.PaidDate, &s.LateFee, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PaymentSchedule{}, ErrScheduleNotFound
		}
		return PaymentSchedule{}, err
	}
	return s, nil
}

func (r *repository) Get(ctx context.Context, id int64) (PaymentSchedule, error) {
	return scanSchedule(r.db.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM payment_schedules WHERE id=$1`, id))
}

func (r *repository) ListByAgreement(ctx context.Context, agreementID int64) ([]PaymentSchedule, error) {
	rows, err := r.db.Query(ctx, `SELECT `+scheduleColumns+` FROM payment_schedules WHERE lease_agreement_id=$1 ORDER BY installment_number`, agreementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func (r *repository) ListDueWithin(ctx context.Context, from, to time.Time) ([]PaymentSchedule, error) {
	rows, err := r.db.Query(ctx, `SELECT `+scheduleColumns+` FROM payment_schedules WHERE due_date BETWEEN $1 AND $2 AND status IN ('PENDING','PARTIAL','OVERDUE') ORDER BY due_date`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func (r *repository) ListPastDue(ctx context.Context, asOf time.Time) ([]PaymentSchedule, error) {
	rows, err := r.db.Query(ctx, `SELECT `+scheduleColumns+` FROM payment_schedules WHERE due_date < $1 AND status IN ('PENDING','PARTIAL') ORDER BY due_date`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func (r *repository) CountByAgreement(ctx context.Context, agreementID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM payment_schedules WHERE lease_agreement_id=$1`, agreementID).Scan(&n)
	return n, err
}

func (r *repository) InsertBatch(ctx context.Context, schedules []PaymentSchedule) error {
	batch := &pgx.Batch{}
	for _, s := range schedules {
		batch.Queue(`INSERT INTO payment_schedules (lease_agreement_id, installment_number, due_date, principal_amount, interest_amount, total_amount, status, paid_amount, late_fee)
VALUES ($1,$2,$3,$4,$5,$6,$7,0,0)`, s.LeaseAgreementID, s.InstallmentNumber, s.DueDate, s.PrincipalAmount, s.InterestAmount, s.TotalAmount, s.Status)
	}
	results := r.db.SendBatch(ctx, batch)
	defer results.Close()
	for range schedules {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (PaymentSchedule, error) {
	return scanSchedule(r.tx.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM payment_schedules WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdatePayment(ctx context.Context, id int64, paid decimal.Decimal, paidDate time.Time, status ScheduleStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE payment_schedules SET paid_amount=$2, paid_date=$3, status=$4, updated_at=NOW() WHERE id=$1`, id, paid, paidDate, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status ScheduleStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE payment_schedules SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (r *txRepository) AddLateFee(ctx context.Context, id int64, fee decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE payment_schedules SET late_fee=late_fee+$2, updated_at=NOW() WHERE id=$1`, id, fee)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func collectSchedules(rows pgx.Rows) ([]PaymentSchedule, error) {
	var out []PaymentSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
