package payments

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPaymentNotFound indicates a missing payment.
var ErrPaymentNotFound = errors.New("payments: not found")

// Repository encapsulates DB operations for payments.
type Repository interface {
	Insert(ctx context.Context, p Payment) (Payment, error)
	Get(ctx context.Context, id int64) (Payment, error)
	ListByAgreement(ctx context.Context, agreementID int64) ([]Payment, error)
	SetJournalEntry(ctx context.Context, id, entryID int64) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a payment transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Payment, error)
	SetStatus(ctx context.Context, id int64, status PaymentStatus, processedBy *int64, processedAt *time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const paymentColumns = `id, reference, lease_agreement_id, payment_schedule_id, client_id, amount, processing_fee, net_amount, currency, payment_date, status, journal_entry_id, notes, processed_by, processed_at, created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.Reference, &p.LeaseAgreementID, &p.PaymentScheduleID, &p.ClientID, &p.Amount, &p.ProcessingFee, &p.NetAmount, &p.Currency, &p.PaymentDate, &p.Status, &p.JournalEntryID, &p.Notes, &p.ProcessedBy, &p.ProcessedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

func (r *repository) Insert(ctx context.Context, p Payment) (Payment, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO payments (reference, lease_agreement_id, payment_schedule_id, client_id, amount, processing_fee, net_amount, currency, payment_date, status, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING `+paymentColumns,
		p.Reference, p.LeaseAgreementID, p.PaymentScheduleID, p.ClientID, p.Amount, p.ProcessingFee, p.NetAmount, p.Currency, p.PaymentDate, p.Status, p.Notes)
	return scanPayment(row)
}

func (r *repository) Get(ctx context.Context, id int64) (Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id))
}

func (r *repository) ListByAgreement(ctx context.Context, agreementID int64) ([]Payment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE lease_agreement_id=$1 ORDER BY payment_date DESC`, agreementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) SetJournalEntry(ctx context.Context, id, entryID int64) error {
	cmd, err := r.db.Exec(ctx, `UPDATE payments SET journal_entry_id=$2, updated_at=NOW() WHERE id=$1`, id, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPaymentNotFound
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

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Payment, error) {
	return scanPayment(r.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status PaymentStatus, processedBy *int64, processedAt *time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE payments SET status=$2, processed_by=COALESCE($3, processed_by), processed_at=COALESCE($4, processed_at), updated_at=NOW() WHERE id=$1`, id, status, processedBy, processedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}
