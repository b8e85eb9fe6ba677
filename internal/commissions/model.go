package commissions

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionType enumerates what the manufacturer is owed for.
type CommissionType string

const (
	TypeLease       CommissionType = "LEASE_COMMISSION"
	TypeMaintenance CommissionType = "MAINTENANCE_COMMISSION"
	TypeBonus       CommissionType = "BONUS"
)

// CommissionStatus enumerates the payout workflow.
type CommissionStatus string

const (
	StatusPending   CommissionStatus = "PENDING"
	StatusApproved  CommissionStatus = "APPROVED"
	StatusPaid      CommissionStatus = "PAID"
	StatusCancelled CommissionStatus = "CANCELLED"
)

// Commission is a derived payable owed to a manufacturer. CommissionAmount is
// always base_amount x rate / 100; callers never supply it.
type Commission struct {
	ID               int64
	ManufacturerID   int64
	LeaseAgreementID int64
	PaymentID        *int64
	Type             CommissionType
	BaseAmount       decimal.Decimal
	CommissionRate   decimal.Decimal
	CommissionAmount decimal.Decimal
	Currency         string
	Status           CommissionStatus
	CalculationDate  time.Time
	DueDate          *time.Time
	PaidDate         *time.Time
	Notes            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsOpen reports whether the commission still counts toward due/overdue
// scopes.
func (c Commission) IsOpen() bool {
	return c.Status == StatusPending || c.Status == StatusApproved
}
