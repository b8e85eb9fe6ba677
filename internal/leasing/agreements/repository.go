package agreements

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetlease/fleetlease/internal/shared"
)

// Repository reads lease agreements owned by the leasing CRUD surface.
type Repository interface {
	Get(ctx context.Context, id int64) (LeaseAgreement, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, id int64) (LeaseAgreement, error) {
	var a LeaseAgreement
	err := r.db.QueryRow(ctx, `SELECT id, number, client_id, manufacturer_id, lease_start_date, lease_duration_months, monthly_payment, currency, late_fee_percentage, grace_period_days, commission_rate, created_at, updated_at
FROM lease_agreements WHERE id=$1`, id).
		Scan(&a.ID, &a.Number, &a.ClientID, &a.ManufacturerID, &a.StartDate, &a.DurationMonths, &a.MonthlyPayment, &a.Currency, &a.LateFeePercentage, &a.GracePeriodDays, &a.CommissionRate, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LeaseAgreement{}, shared.ErrNotFound
		}
		return LeaseAgreement{}, err
	}
	return a, nil
}
