package agreements

import (
	"time"

	"github.com/shopspring/decimal"
)

// LeaseAgreement supplies schedule-generation and late-fee inputs. The
// financial core reads agreements, it never writes them.
type LeaseAgreement struct {
	ID                int64
	Number            string
	ClientID          int64
	ManufacturerID    int64
	StartDate         time.Time
	DurationMonths    int
	MonthlyPayment    decimal.Decimal
	Currency          string
	LateFeePercentage decimal.Decimal
	GracePeriodDays   int
	CommissionRate    decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
