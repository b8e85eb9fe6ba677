package commissions

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCommissionNotFound indicates a missing commission.
var ErrCommissionNotFound = errors.New("commissions: not found")

// Repository encapsulates DB operations for commissions.
type Repository interface {
	Insert(ctx context.Context, c Commission) (Commission, error)
	Get(ctx context.Context, id int64) (Commission, error)
	Update(ctx context.Context, c Commission) (Commission, error)
	SetStatus(ctx context.Context, id int64, status CommissionStatus, paidDate *time.Time) error
	ListByManufacturer(ctx context.Context, manufacturerID int64, limit, offset int) ([]Commission, int, error)
	ListDue(ctx context.Context, asOf time.Time, strict bool) ([]Commission, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const commissionColumns = `id, manufacturer_id, lease_agreement_id, payment_id, type, base_amount, commission_rate, commission_amount, currency, status, calculation_date, due_date, paid_date, notes, created_at, updated_at`

func scanCommission(row pgx.Row) (Commission, error) {
	var c Commission
	err := row.Scan(&c.ID, &c.ManufacturerID, &c.LeaseAgreementID, &c.PaymentID, &c.Type, &c.BaseAmount, &c.CommissionRate, &c.CommissionAmount, &c.Currency, &c.Status, &c.CalculationDate, &c.DueDate, &c.PaidDate, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Commission{}, ErrCommissionNotFound
		}
		return Commission{}, err
	}
	return c, nil
}

func (r *repository) Insert(ctx context.Context, c Commission) (Commission, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO commissions (manufacturer_id, lease_agreement_id, payment_id, type, base_amount, commission_rate, commission_amount, currency, status, calculation_date, due_date, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING `+commissionColumns,
		c.ManufacturerID, c.LeaseAgreementID, c.PaymentID, c.Type, c.BaseAmount, c.CommissionRate, c.CommissionAmount, c.Currency, c.Status, c.CalculationDate, c.DueDate, c.Notes)
	return scanCommission(row)
}

func (r *repository) Get(ctx context.Context, id int64) (Commission, error) {
	return scanCommission(r.db.QueryRow(ctx, `SELECT `+commissionColumns+` FROM commissions WHERE id=$1`, id))
}

func (r *repository) Update(ctx context.Context, c Commission) (Commission, error) {
	row := r.db.QueryRow(ctx, `UPDATE commissions SET base_amount=$2, commission_rate=$3, commission_amount=$4, due_date=$5, notes=$6, updated_at=NOW() WHERE id=$1 RETURNING `+commissionColumns,
		c.ID, c.BaseAmount, c.CommissionRate, c.CommissionAmount, c.DueDate, c.Notes)
	return scanCommission(row)
}

func (r *repository) SetStatus(ctx context.Context, id int64, status CommissionStatus, paidDate *time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE commissions SET status=$2, paid_date=COALESCE($3, paid_date), updated_at=NOW() WHERE id=$1`, id, status, paidDate)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrCommissionNotFound
	}
	return nil
}

func (r *repository) ListByManufacturer(ctx context.Context, manufacturerID int64, limit, offset int) ([]Commission, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM commissions WHERE manufacturer_id=$1`, manufacturerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+commissionColumns+` FROM commissions WHERE manufacturer_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, manufacturerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out, err := collectCommissions(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListDue returns open commissions due on or before asOf; strict excludes the
// boundary day, which is the overdue scope.
func (r *repository) ListDue(ctx context.Context, asOf time.Time, strict bool) ([]Commission, error) {
	op := "<="
	if strict {
		op = "<"
	}
	rows, err := r.db.Query(ctx, `SELECT `+commissionColumns+` FROM commissions WHERE due_date `+op+` $1 AND status IN ('PENDING','APPROVED') ORDER BY due_date`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCommissions(rows)
}

func collectCommissions(rows pgx.Rows) ([]Commission, error) {
	var out []Commission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
