package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fleetlease/fleetlease/internal/commissions"
	"github.com/fleetlease/fleetlease/internal/leasing/agreements"
	"github.com/fleetlease/fleetlease/internal/leasing/schedules"
	"github.com/fleetlease/fleetlease/internal/ledger/journals"
	internalshared "github.com/fleetlease/fleetlease/internal/shared"
)

// ErrInvalidStatus indicates a settlement transition guard rejected the move.
var ErrInvalidStatus = errors.New("payments: invalid status transition")

// ErrNoJournalEntry indicates a refund on a payment that never posted.
var ErrNoJournalEntry = errors.New("payments: no journal entry to reverse")

// SchedulePort applies a completed payment to its installment.
type SchedulePort interface {
	RecordPayment(ctx context.Context, scheduleID int64, amount decimal.Decimal, paymentDate time.Time) (schedules.PaymentSchedule, error)
}

// LedgerPort is the slice of the ledger poster the settlement flow drives.
type LedgerPort interface {
	CreateEntry(ctx context.Context, in journals.CreateEntryInput) (journals.JournalEntry, error)
	AddLine(ctx context.Context, entryID int64, in journals.LineInput) (journals.JournalLine, error)
	Post(ctx context.Context, in journals.PostInput) (journals.JournalEntry, error)
	Reverse(ctx context.Context, in journals.ReverseInput) (journals.JournalEntry, error)
}

// CommissionPort derives manufacturer commissions from completed payments.
type CommissionPort interface {
	Create(ctx context.Context, in commissions.CreateInput) (commissions.Commission, error)
}

// AgreementSource reads lease agreements for commission terms.
type AgreementSource interface {
	Get(ctx context.Context, id int64) (agreements.LeaseAgreement, error)
}

// AuditPort records settlement moves.
type AuditPort interface {
	Record(ctx context.Context, log internalshared.AuditLog) error
}

// PostingConfig names the accounts a completed payment posts against and the
// payout window for derived commissions.
type PostingConfig struct {
	CashAccountID     int64
	RevenueAccountID  int64
	CommissionDueDays int
}

// CreateInput groups fields for registering a payment.
type CreateInput struct {
	LeaseAgreementID  int64
	PaymentScheduleID *int64
	ClientID          int64
	Amount            decimal.Decimal
	ProcessingFee     decimal.Decimal
	Currency          string
	PaymentDate       time.Time
	Notes             string
}

// Validate ensures registration input meets minimum criteria.
func (in CreateInput) Validate() error {
	if in.LeaseAgreementID == 0 {
		return errors.New("payments: lease agreement required")
	}
	if in.ClientID == 0 {
		return errors.New("payments: client required")
	}
	if !in.Amount.IsPositive() {
		return errors.New("payments: amount must be positive")
	}
	if in.ProcessingFee.IsNegative() {
		return errors.New("payments: processing fee must not be negative")
	}
	if in.ProcessingFee.GreaterThan(in.Amount) {
		return errors.New("payments: processing fee exceeds amount")
	}
	return nil
}

// Service owns the payment lifecycle. Completing a payment is the trigger
// that drives the installment, the ledger, and commission derivation.
type Service struct {
	repo        Repository
	schedules   SchedulePort
	ledger      LedgerPort
	commissions CommissionPort
	agreements  AgreementSource
	audit       AuditPort
	cfg         PostingConfig
	now         func() time.Time
}

func NewService(repo Repository, schedulePort SchedulePort, ledger LedgerPort, commissionPort CommissionPort, agreementSource AgreementSource, audit AuditPort, cfg PostingConfig) *Service {
	if cfg.CommissionDueDays <= 0 {
		cfg.CommissionDueDays = 30
	}
	return &Service{
		repo:        repo,
		schedules:   schedulePort,
		ledger:      ledger,
		commissions: commissionPort,
		agreements:  agreementSource,
		audit:       audit,
		cfg:         cfg,
		now:         time.Now,
	}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Get(ctx context.Context, id int64) (Payment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByAgreement(ctx context.Context, agreementID int64) ([]Payment, error) {
	return s.repo.ListByAgreement(ctx, agreementID)
}

// Create registers a PENDING payment. Net amount is derived, never supplied.
func (s *Service) Create(ctx context.Context, in CreateInput) (Payment, error) {
	if err := in.Validate(); err != nil {
		return Payment{}, err
	}
	paymentDate := in.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = s.now()
	}
	currency := in.Currency
	if currency == "" {
		currency = "UGX"
	}
	return s.repo.Insert(ctx, Payment{
		Reference:         uuid.New(),
		LeaseAgreementID:  in.LeaseAgreementID,
		PaymentScheduleID: in.PaymentScheduleID,
		ClientID:          in.ClientID,
		Amount:            in.Amount,
		ProcessingFee:     in.ProcessingFee,
		NetAmount:         in.Amount.Sub(in.ProcessingFee),
		Currency:          currency,
		PaymentDate:       paymentDate,
		Status:            StatusPending,
		Notes:             in.Notes,
	})
}

// MarkProcessing moves PENDING to PROCESSING.
func (s *Service) MarkProcessing(ctx context.Context, id int64) error {
	_, err := s.setStatus(ctx, id, StatusProcessing, nil, func(p Payment) bool {
		return p.Status == StatusPending
	})
	return err
}

// MarkFailed moves PENDING or PROCESSING to FAILED.
func (s *Service) MarkFailed(ctx context.Context, id int64) error {
	_, err := s.setStatus(ctx, id, StatusFailed, nil, func(p Payment) bool {
		return p.Status == StatusPending || p.Status == StatusProcessing
	})
	return err
}

// Cancel voids a payment that never entered processing.
func (s *Service) Cancel(ctx context.Context, id int64) error {
	_, err := s.setStatus(ctx, id, StatusCancelled, nil, func(p Payment) bool {
		return p.Status == StatusPending
	})
	return err
}

// Complete settles the payment and drives the downstream financial flow:
// the installment receives the amount, the ledger gets a posted entry
// (debit cash, credit lease revenue), and the manufacturer commission is
// derived from the agreement's rate. The COMPLETED status commits last, so
// a downstream failure leaves the payment PENDING/PROCESSING and Complete
// can be re-driven once the fault clears.
func (s *Service) Complete(ctx context.Context, id, actorID int64) (Payment, error) {
	payment, err := s.repo.Get(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if payment.Status != StatusPending && payment.Status != StatusProcessing {
		return Payment{}, ErrInvalidStatus
	}

	if payment.PaymentScheduleID != nil {
		if _, err := s.schedules.RecordPayment(ctx, *payment.PaymentScheduleID, payment.Amount, payment.PaymentDate); err != nil {
			return Payment{}, fmt.Errorf("payments: record installment: %w", err)
		}
	}

	entry, err := s.postSettlementEntry(ctx, payment, actorID)
	if err != nil {
		return Payment{}, fmt.Errorf("payments: post ledger entry: %w", err)
	}
	if err := s.repo.SetJournalEntry(ctx, payment.ID, entry.ID); err != nil {
		return Payment{}, err
	}

	if err := s.deriveCommission(ctx, payment); err != nil {
		return Payment{}, fmt.Errorf("payments: derive commission: %w", err)
	}

	processedAt := s.now()
	payment, err = s.setStatus(ctx, id, StatusCompleted, &actorID, func(p Payment) bool {
		return p.Status == StatusPending || p.Status == StatusProcessing
	})
	if err != nil {
		return Payment{}, err
	}
	payment.Status = StatusCompleted
	payment.ProcessedBy = &actorID
	payment.ProcessedAt = &processedAt
	payment.JournalEntryID = &entry.ID

	s.recordAudit(ctx, actorID, "payment.complete", payment.ID, map[string]any{
		"amount":       payment.Amount.StringFixed(2),
		"entry_number": entry.Number,
	})
	return payment, nil
}

// Refund reverses the completed payment's journal entry and marks the payment
// refunded.
func (s *Service) Refund(ctx context.Context, id, actorID int64, reason string) (Payment, error) {
	payment, err := s.repo.Get(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if payment.Status != StatusCompleted {
		return Payment{}, ErrInvalidStatus
	}
	if payment.JournalEntryID == nil {
		return Payment{}, ErrNoJournalEntry
	}
	reversal, err := s.ledger.Reverse(ctx, journals.ReverseInput{
		EntryID: *payment.JournalEntryID,
		ActorID: actorID,
		Reason:  reason,
	})
	if err != nil {
		return Payment{}, err
	}
	payment, err = s.setStatus(ctx, id, StatusRefunded, &actorID, func(p Payment) bool {
		return p.Status == StatusCompleted
	})
	if err != nil {
		return Payment{}, err
	}
	payment.Status = StatusRefunded
	s.recordAudit(ctx, actorID, "payment.refund", id, map[string]any{
		"reversal_number": reversal.Number,
		"reason":          reason,
	})
	return payment, nil
}

func (s *Service) postSettlementEntry(ctx context.Context, payment Payment, actorID int64) (journals.JournalEntry, error) {
	entry, err := s.ledger.CreateEntry(ctx, journals.CreateEntryInput{
		Date:        payment.PaymentDate,
		Reference:   &journals.Reference{Kind: journals.ReferencePayment, ID: payment.ID},
		Description: fmt.Sprintf("Lease payment %s", payment.Reference),
		CreatedBy:   actorID,
	})
	if err != nil {
		return journals.JournalEntry{}, err
	}
	if _, err := s.ledger.AddLine(ctx, entry.ID, journals.LineInput{
		AccountID:   s.cfg.CashAccountID,
		Description: "Cash received",
		Debit:       payment.Amount,
	}); err != nil {
		return journals.JournalEntry{}, err
	}
	if _, err := s.ledger.AddLine(ctx, entry.ID, journals.LineInput{
		AccountID:   s.cfg.RevenueAccountID,
		Description: "Lease revenue",
		Credit:      payment.Amount,
	}); err != nil {
		return journals.JournalEntry{}, err
	}
	return s.ledger.Post(ctx, journals.PostInput{EntryID: entry.ID, ActorID: actorID})
}

func (s *Service) deriveCommission(ctx context.Context, payment Payment) error {
	agreement, err := s.agreements.Get(ctx, payment.LeaseAgreementID)
	if err != nil {
		return err
	}
	if agreement.ManufacturerID == 0 || !agreement.CommissionRate.IsPositive() {
		return nil
	}
	due := s.now().AddDate(0, 0, s.cfg.CommissionDueDays)
	_, err = s.commissions.Create(ctx, commissions.CreateInput{
		ManufacturerID:   agreement.ManufacturerID,
		LeaseAgreementID: agreement.ID,
		PaymentID:        &payment.ID,
		Type:             commissions.TypeLease,
		BaseAmount:       payment.Amount,
		CommissionRate:   agreement.CommissionRate,
		Currency:         payment.Currency,
		DueDate:          &due,
	})
	return err
}

func (s *Service) setStatus(ctx context.Context, id int64, to PaymentStatus, actorID *int64, allowed func(Payment) bool) (Payment, error) {
	var payment Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !allowed(current) {
			return ErrInvalidStatus
		}
		var processedAt *time.Time
		if actorID != nil {
			at := s.now()
			processedAt = &at
		}
		if err := tx.SetStatus(ctx, id, to, actorID, processedAt); err != nil {
			return err
		}
		payment = current
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	return payment, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, paymentID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalshared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "payment",
		EntityID: strconv.FormatInt(paymentID, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
