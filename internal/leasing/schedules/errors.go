package schedules

import "errors"

var (
	// ErrScheduleNotFound indicates a missing installment.
	ErrScheduleNotFound = errors.New("schedules: installment not found")
	// ErrScheduleSettled indicates a payment against a paid or waived
	// installment. Extra payments are rejected, not tracked as credit.
	ErrScheduleSettled = errors.New("schedules: installment already settled")
	// ErrOverpayment indicates a payment that would push paid_amount past
	// total_amount plus accrued late fees.
	ErrOverpayment = errors.New("schedules: payment exceeds amount owed")
	// ErrNonPositiveAmount indicates a zero or negative payment amount.
	ErrNonPositiveAmount = errors.New("schedules: payment amount must be positive")
	// ErrScheduleExists indicates installments were already generated for the
	// agreement.
	ErrScheduleExists = errors.New("schedules: agreement already has installments")
)
