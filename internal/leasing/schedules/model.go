package schedules

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScheduleStatus enumerates installment lifecycle values. Status is derived
// from payments and the due date, never set arbitrarily (waive excepted).
type ScheduleStatus string

const (
	StatusPending ScheduleStatus = "PENDING"
	StatusPartial ScheduleStatus = "PARTIAL"
	StatusPaid    ScheduleStatus = "PAID"
	StatusOverdue ScheduleStatus = "OVERDUE"
	StatusWaived  ScheduleStatus = "WAIVED"
)

// PaymentSchedule is one installment of a lease agreement.
type PaymentSchedule struct {
	ID                int64
	LeaseAgreementID  int64
	InstallmentNumber int
	DueDate           time.Time
	PrincipalAmount   decimal.Decimal
	InterestAmount    decimal.Decimal
	TotalAmount       decimal.Decimal
	Status            ScheduleStatus
	PaidAmount        decimal.Decimal
	PaidDate          *time.Time
	LateFee           decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsSettled reports whether the installment accepts no further payments.
func (s PaymentSchedule) IsSettled() bool {
	return s.Status == StatusPaid || s.Status == StatusWaived
}

// IsPastDue reports whether the due date has passed without settlement.
func (s PaymentSchedule) IsPastDue(now time.Time) bool {
	return s.DueDate.Before(truncateToDay(now)) && !s.IsSettled()
}

// DaysOverdue returns whole calendar days past the due date, 0 when not past
// due. Dates are compared as UTC days so DST transitions cannot shift the
// count.
func (s PaymentSchedule) DaysOverdue(now time.Time) int {
	if !s.IsPastDue(now) {
		return 0
	}
	due := time.Date(s.DueDate.Year(), s.DueDate.Month(), s.DueDate.Day(), 0, 0, 0, 0, time.UTC)
	asOf := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(asOf.Sub(due).Hours() / 24)
}

// RemainingAmount returns what is still owed against the installment itself,
// excluding late fees.
func (s PaymentSchedule) RemainingAmount() decimal.Decimal {
	remaining := s.TotalAmount.Sub(s.PaidAmount)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// AmountWithLateFee returns the installment total plus accrued late fees,
// the ceiling for paid_amount.
func (s PaymentSchedule) AmountWithLateFee() decimal.Decimal {
	return s.TotalAmount.Add(s.LateFee)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
