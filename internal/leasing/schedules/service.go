package schedules

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fleetlease/fleetlease/internal/leasing/agreements"
	ledgershared "github.com/fleetlease/fleetlease/internal/ledger/shared"
	internalshared "github.com/fleetlease/fleetlease/internal/shared"
)

// AgreementSource reads lease agreements.
type AgreementSource interface {
	Get(ctx context.Context, id int64) (agreements.LeaseAgreement, error)
}

// AuditPort records schedule mutations for attribution.
type AuditPort interface {
	Record(ctx context.Context, log internalshared.AuditLog) error
}

// SweepResult summarises one overdue sweep run.
type SweepResult struct {
	MarkedOverdue int
	FeesApplied   int
	TotalFees     decimal.Decimal
}

// Service drives the installment state machine.
type Service struct {
	repo       Repository
	agreements AgreementSource
	audit      AuditPort
	now        func() time.Time
}

func NewService(repo Repository, agreements AgreementSource, audit AuditPort) *Service {
	return &Service{repo: repo, agreements: agreements, audit: audit, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Get(ctx context.Context, id int64) (PaymentSchedule, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByAgreement(ctx context.Context, agreementID int64) ([]PaymentSchedule, error) {
	return s.repo.ListByAgreement(ctx, agreementID)
}

// ListDueWithin returns open installments due between now and now+days.
func (s *Service) ListDueWithin(ctx context.Context, days int) ([]PaymentSchedule, error) {
	from := truncateToDay(s.now())
	return s.repo.ListDueWithin(ctx, from, from.AddDate(0, 0, days))
}

// ListCurrentMonth returns open installments due in the current calendar month.
func (s *Service) ListCurrentMonth(ctx context.Context) ([]PaymentSchedule, error) {
	now := s.now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return s.repo.ListDueWithin(ctx, from, from.AddDate(0, 1, -1))
}

// Generate creates one installment per month of the agreement's duration,
// starting one month after the lease start date. Fails when installments
// already exist.
func (s *Service) Generate(ctx context.Context, agreementID int64) ([]PaymentSchedule, error) {
	agreement, err := s.agreements.Get(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.CountByAgreement(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrScheduleExists
	}
	rows := make([]PaymentSchedule, 0, agreement.DurationMonths)
	for i := 1; i <= agreement.DurationMonths; i++ {
		rows = append(rows, PaymentSchedule{
			LeaseAgreementID:  agreementID,
			InstallmentNumber: i,
			DueDate:           agreement.StartDate.AddDate(0, i, 0),
			PrincipalAmount:   agreement.MonthlyPayment,
			InterestAmount:    decimal.Zero,
			TotalAmount:       agreement.MonthlyPayment,
			Status:            StatusPending,
		})
	}
	if err := s.repo.InsertBatch(ctx, rows); err != nil {
		return nil, err
	}
	return s.repo.ListByAgreement(ctx, agreementID)
}

// RecordPayment applies a payment to an installment. Paid and waived
// installments reject further payments, as does any amount that would push
// paid_amount past total_amount plus accrued late fees.
func (s *Service) RecordPayment(ctx context.Context, scheduleID int64, amount decimal.Decimal, paymentDate time.Time) (PaymentSchedule, error) {
	if !amount.IsPositive() {
		return PaymentSchedule{}, ErrNonPositiveAmount
	}
	if paymentDate.IsZero() {
		paymentDate = s.now()
	}
	var updated PaymentSchedule
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		schedule, err := tx.GetForUpdate(ctx, scheduleID)
		if err != nil {
			return err
		}
		if schedule.IsSettled() {
			return ErrScheduleSettled
		}
		paid := schedule.PaidAmount.Add(amount)
		if paid.GreaterThan(schedule.AmountWithLateFee()) {
			return ErrOverpayment
		}
		status := schedule.Status
		switch {
		case paid.GreaterThanOrEqual(schedule.TotalAmount):
			status = StatusPaid
		case paid.IsPositive():
			status = StatusPartial
		}
		if err := tx.UpdatePayment(ctx, scheduleID, paid, paymentDate, status); err != nil {
			return err
		}
		updated = schedule
		updated.PaidAmount = paid
		updated.PaidDate = &paymentDate
		updated.Status = status
		return nil
	})
	if err != nil {
		return PaymentSchedule{}, err
	}
	return updated, nil
}

// LateFee computes the fee an installment would accrue as of now. It is pure:
// 0 when not past due or settled, 0 within the agreement's grace period,
// otherwise total_amount x late_fee_percentage / 100.
func (s *Service) LateFee(ctx context.Context, scheduleID int64) (decimal.Decimal, error) {
	schedule, err := s.repo.Get(ctx, scheduleID)
	if err != nil {
		return decimal.Zero, err
	}
	agreement, err := s.agreements.Get(ctx, schedule.LeaseAgreementID)
	if err != nil {
		return decimal.Zero, err
	}
	return CalculateLateFee(schedule, agreement, s.now()), nil
}

// CalculateLateFee is the pure late-fee rule shared by LateFee and the sweep.
func CalculateLateFee(schedule PaymentSchedule, agreement agreements.LeaseAgreement, now time.Time) decimal.Decimal {
	if schedule.IsSettled() || !schedule.IsPastDue(now) {
		return decimal.Zero
	}
	if schedule.DaysOverdue(now) <= agreement.GracePeriodDays {
		return decimal.Zero
	}
	return ledgershared.Percent(schedule.TotalAmount, agreement.LateFeePercentage)
}

// ApplyLateFee adds the computed fee to the installment's accumulated
// late_fee. The mutation is additive, not idempotent: only the overdue sweep
// calls it, once per overdue transition.
func (s *Service) ApplyLateFee(ctx context.Context, scheduleID int64) (decimal.Decimal, error) {
	fee, err := s.LateFee(ctx, scheduleID)
	if err != nil {
		return decimal.Zero, err
	}
	if !fee.IsPositive() {
		return decimal.Zero, nil
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.AddLateFee(ctx, scheduleID, fee)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return fee, nil
}

// UpdateOverdueStatus transitions PENDING past-due installments to OVERDUE.
// Any other state is left untouched, which makes the call idempotent.
func (s *Service) UpdateOverdueStatus(ctx context.Context, scheduleID int64) (PaymentSchedule, error) {
	var updated PaymentSchedule
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		schedule, err := tx.GetForUpdate(ctx, scheduleID)
		if err != nil {
			return err
		}
		updated = schedule
		if schedule.Status != StatusPending || !schedule.IsPastDue(s.now()) {
			return nil
		}
		if err := tx.UpdateStatus(ctx, scheduleID, StatusOverdue); err != nil {
			return err
		}
		updated.Status = StatusOverdue
		return nil
	})
	if err != nil {
		return PaymentSchedule{}, err
	}
	return updated, nil
}

// Waive is the administrative override: status WAIVED, paid_amount forced to
// total_amount, paid_date stamped, regardless of prior state.
func (s *Service) Waive(ctx context.Context, scheduleID, actorID int64) (PaymentSchedule, error) {
	var updated PaymentSchedule
	waivedAt := s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		schedule, err := tx.GetForUpdate(ctx, scheduleID)
		if err != nil {
			return err
		}
		if err := tx.UpdatePayment(ctx, scheduleID, schedule.TotalAmount, waivedAt, StatusWaived); err != nil {
			return err
		}
		updated = schedule
		updated.Status = StatusWaived
		updated.PaidAmount = schedule.TotalAmount
		updated.PaidDate = &waivedAt
		return nil
	})
	if err != nil {
		return PaymentSchedule{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalshared.AuditLog{
			ActorID:  actorID,
			Action:   "schedule.waive",
			Entity:   "payment_schedule",
			EntityID: fmt.Sprintf("%d", scheduleID),
			Meta:     map[string]any{"total_amount": updated.TotalAmount.StringFixed(2)},
			At:       waivedAt,
		})
	}
	return updated, nil
}

// SweepOverdue is the nightly batch: every past-due PENDING installment is
// marked OVERDUE and accrues its late fee exactly once, at the transition.
func (s *Service) SweepOverdue(ctx context.Context) (SweepResult, error) {
	asOf := truncateToDay(s.now())
	pastDue, err := s.repo.ListPastDue(ctx, asOf)
	if err != nil {
		return SweepResult{}, err
	}
	result := SweepResult{TotalFees: decimal.Zero}
	terms := make(map[int64]agreements.LeaseAgreement)
	for _, schedule := range pastDue {
		if schedule.Status != StatusPending {
			continue
		}
		agreement, ok := terms[schedule.LeaseAgreementID]
		if !ok {
			agreement, err = s.agreements.Get(ctx, schedule.LeaseAgreementID)
			if err != nil {
				return result, err
			}
			terms[schedule.LeaseAgreementID] = agreement
		}
		fee, marked, err := s.markOverdueWithFee(ctx, schedule.ID, agreement)
		if err != nil {
			return result, err
		}
		if !marked {
			continue
		}
		result.MarkedOverdue++
		if fee.IsPositive() {
			result.FeesApplied++
			result.TotalFees = result.TotalFees.Add(fee)
		}
	}
	return result, nil
}

// markOverdueWithFee performs the OVERDUE transition and the fee accrual in
// one transaction, so a failure rolls back both and the next sweep retries
// the installment from PENDING.
func (s *Service) markOverdueWithFee(ctx context.Context, scheduleID int64, agreement agreements.LeaseAgreement) (decimal.Decimal, bool, error) {
	fee := decimal.Zero
	marked := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		schedule, err := tx.GetForUpdate(ctx, scheduleID)
		if err != nil {
			return err
		}
		if schedule.Status != StatusPending || !schedule.IsPastDue(s.now()) {
			return nil
		}
		if err := tx.UpdateStatus(ctx, scheduleID, StatusOverdue); err != nil {
			return err
		}
		marked = true
		fee = CalculateLateFee(schedule, agreement, s.now())
		if fee.IsPositive() {
			return tx.AddLateFee(ctx, scheduleID, fee)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, false, err
	}
	return fee, marked, nil
}
