package commissions

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	ledgershared "github.com/fleetlease/fleetlease/internal/ledger/shared"
	internalshared "github.com/fleetlease/fleetlease/internal/shared"
)

// ErrInvalidStatus indicates a commission workflow guard rejected the move.
var ErrInvalidStatus = errors.New("commissions: invalid status transition")

// CreateInput groups fields for deriving a commission. CommissionAmount is
// not accepted; it is always recomputed from base and rate.
type CreateInput struct {
	ManufacturerID   int64
	LeaseAgreementID int64
	PaymentID        *int64
	Type             CommissionType
	BaseAmount       decimal.Decimal
	CommissionRate   decimal.Decimal
	Currency         string
	DueDate          *time.Time
	Notes            string
}

// Validate ensures derivation input meets minimum criteria.
func (in CreateInput) Validate() error {
	if in.ManufacturerID == 0 {
		return errors.New("commissions: manufacturer required")
	}
	if in.LeaseAgreementID == 0 {
		return errors.New("commissions: lease agreement required")
	}
	if in.BaseAmount.IsNegative() || in.CommissionRate.IsNegative() {
		return errors.New("commissions: base amount and rate must not be negative")
	}
	return nil
}

// UpdateInput carries the mutable fields of a pending commission.
type UpdateInput struct {
	BaseAmount     *decimal.Decimal
	CommissionRate *decimal.Decimal
	DueDate        *time.Time
	Notes          *string
}

// Calculate is the commission rule: base x rate / 100, two decimals.
func Calculate(base, rate decimal.Decimal) decimal.Decimal {
	return ledgershared.Percent(base, rate)
}

// AuditPort records commission workflow moves.
type AuditPort interface {
	Record(ctx context.Context, log internalshared.AuditLog) error
}

// Service owns commission derivation and the payout workflow.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create derives a commission record. The stored amount is recomputed from
// base and rate regardless of what the caller holds.
func (s *Service) Create(ctx context.Context, in CreateInput) (Commission, error) {
	if err := in.Validate(); err != nil {
		return Commission{}, err
	}
	kind := in.Type
	if kind == "" {
		kind = TypeLease
	}
	currency := in.Currency
	if currency == "" {
		currency = "UGX"
	}
	return s.repo.Insert(ctx, Commission{
		ManufacturerID:   in.ManufacturerID,
		LeaseAgreementID: in.LeaseAgreementID,
		PaymentID:        in.PaymentID,
		Type:             kind,
		BaseAmount:       in.BaseAmount,
		CommissionRate:   in.CommissionRate,
		CommissionAmount: Calculate(in.BaseAmount, in.CommissionRate),
		Currency:         currency,
		Status:           StatusPending,
		CalculationDate:  s.now(),
		DueDate:          in.DueDate,
		Notes:            in.Notes,
	})
}

// Update applies field changes. Whenever base or rate moves, the commission
// amount is recomputed before persisting.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Commission, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Commission{}, err
	}
	recompute := false
	if in.BaseAmount != nil && !in.BaseAmount.Equal(current.BaseAmount) {
		current.BaseAmount = *in.BaseAmount
		recompute = true
	}
	if in.CommissionRate != nil && !in.CommissionRate.Equal(current.CommissionRate) {
		current.CommissionRate = *in.CommissionRate
		recompute = true
	}
	if in.DueDate != nil {
		current.DueDate = in.DueDate
	}
	if in.Notes != nil {
		current.Notes = *in.Notes
	}
	if recompute {
		current.CommissionAmount = Calculate(current.BaseAmount, current.CommissionRate)
	}
	return s.repo.Update(ctx, current)
}

func (s *Service) Get(ctx context.Context, id int64) (Commission, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByManufacturer(ctx context.Context, manufacturerID int64, page, perPage int) ([]Commission, internalshared.Pagination, error) {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	list, total, err := s.repo.ListByManufacturer(ctx, manufacturerID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, internalshared.Pagination{}, err
	}
	return list, internalshared.NewPagination(page, perPage, total), nil
}

// ListDue returns open commissions with due_date on or before today.
func (s *Service) ListDue(ctx context.Context) ([]Commission, error) {
	return s.repo.ListDue(ctx, s.today(), false)
}

// ListOverdue returns open commissions with due_date strictly before today.
func (s *Service) ListOverdue(ctx context.Context) ([]Commission, error) {
	return s.repo.ListDue(ctx, s.today(), true)
}

// Approve moves PENDING to APPROVED.
func (s *Service) Approve(ctx context.Context, id, actorID int64) error {
	return s.transition(ctx, id, actorID, StatusApproved, func(c Commission) bool {
		return c.Status == StatusPending
	}, nil)
}

// MarkPaid moves APPROVED to PAID and stamps the paid date.
func (s *Service) MarkPaid(ctx context.Context, id, actorID int64) error {
	paidAt := s.now()
	return s.transition(ctx, id, actorID, StatusPaid, func(c Commission) bool {
		return c.Status == StatusApproved
	}, &paidAt)
}

// Cancel voids an open commission.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) error {
	return s.transition(ctx, id, actorID, StatusCancelled, func(c Commission) bool {
		return c.IsOpen()
	}, nil)
}

func (s *Service) transition(ctx context.Context, id, actorID int64, to CommissionStatus, allowed func(Commission) bool, paidDate *time.Time) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !allowed(current) {
		return ErrInvalidStatus
	}
	if err := s.repo.SetStatus(ctx, id, to, paidDate); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalshared.AuditLog{
			ActorID:  actorID,
			Action:   "commission." + string(to),
			Entity:   "commission",
			EntityID: itoa(id),
			Meta:     map[string]any{"from": string(current.Status)},
			At:       s.now(),
		})
	}
	return nil
}

func (s *Service) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
