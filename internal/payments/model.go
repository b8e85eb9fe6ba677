package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus enumerates the settlement lifecycle. Only COMPLETED payments
// drive ledger posting and commission derivation.
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "PENDING"
	StatusProcessing PaymentStatus = "PROCESSING"
	StatusCompleted  PaymentStatus = "COMPLETED"
	StatusFailed     PaymentStatus = "FAILED"
	StatusCancelled  PaymentStatus = "CANCELLED"
	StatusRefunded   PaymentStatus = "REFUNDED"
)

// Payment is a settlement instrument against a lease agreement, optionally
// targeting one installment.
type Payment struct {
	ID                int64
	Reference         uuid.UUID
	LeaseAgreementID  int64
	PaymentScheduleID *int64
	ClientID          int64
	Amount            decimal.Decimal
	ProcessingFee     decimal.Decimal
	NetAmount         decimal.Decimal
	Currency          string
	PaymentDate       time.Time
	Status            PaymentStatus
	JournalEntryID    *int64
	Notes             string
	ProcessedBy       *int64
	ProcessedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsCompleted reports whether the payment has settled.
func (p Payment) IsCompleted() bool { return p.Status == StatusCompleted }
