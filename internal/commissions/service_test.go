package commissions

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	internalshared "github.com/fleetlease/fleetlease/internal/shared"
)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type memoryCommissionRepo struct {
	nextID int64
	rows   map[int64]*Commission
}

func newMemoryCommissionRepo() *memoryCommissionRepo {
	return &memoryCommissionRepo{rows: make(map[int64]*Commission)}
}

func (r *memoryCommissionRepo) Insert(_ context.Context, c Commission) (Commission, error) {
	r.nextID++
	c.ID = r.nextID
	r.rows[c.ID] = &c
	return c, nil
}

func (r *memoryCommissionRepo) Get(_ context.Context, id int64) (Commission, error) {
	row, ok := r.rows[id]
	if !ok {
		return Commission{}, ErrCommissionNotFound
	}
	return *row, nil
}

func (r *memoryCommissionRepo) Update(_ context.Context, c Commission) (Commission, error) {
	if _, ok := r.rows[c.ID]; !ok {
		return Commission{}, ErrCommissionNotFound
	}
	r.rows[c.ID] = &c
	return c, nil
}

func (r *memoryCommissionRepo) SetStatus(_ context.Context, id int64, status CommissionStatus, paidDate *time.Time) error {
	row, ok := r.rows[id]
	if !ok {
		return ErrCommissionNotFound
	}
	row.Status = status
	if paidDate != nil {
		row.PaidDate = paidDate
	}
	return nil
}

func (r *memoryCommissionRepo) ListByManufacturer(_ context.Context, manufacturerID int64, limit, offset int) ([]Commission, int, error) {
	var matched []Commission
	for id := int64(1); id <= r.nextID; id++ {
		if row, ok := r.rows[id]; ok && row.ManufacturerID == manufacturerID {
			matched = append(matched, *row)
		}
	}
	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *memoryCommissionRepo) ListDue(_ context.Context, asOf time.Time, strict bool) ([]Commission, error) {
	var out []Commission
	for id := int64(1); id <= r.nextID; id++ {
		row, ok := r.rows[id]
		if !ok || !row.IsOpen() || row.DueDate == nil {
			continue
		}
		if strict {
			if row.DueDate.Before(asOf) {
				out = append(out, *row)
			}
			continue
		}
		if !row.DueDate.After(asOf) {
			out = append(out, *row)
		}
	}
	return out, nil
}

type recordingAudit struct {
	logs []internalshared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log internalshared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

var testNow = time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

func newCommissionService(repo Repository, audit AuditPort) *Service {
	svc := NewService(repo, audit)
	svc.WithNow(func() time.Time { return testNow })
	return svc
}

func createInput() CreateInput {
	return CreateInput{
		ManufacturerID:   3,
		LeaseAgreementID: 1,
		BaseAmount:       money("5000.00"),
		CommissionRate:   money("2.5"),
	}
}

func TestCreateDerivesAmountAndDefaults(t *testing.T) {
	repo := newMemoryCommissionRepo()
	svc := newCommissionService(repo, nil)

	created, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)
	require.True(t, created.CommissionAmount.Equal(money("125.00")), "got %s", created.CommissionAmount)
	require.Equal(t, TypeLease, created.Type)
	require.Equal(t, "UGX", created.Currency)
	require.Equal(t, StatusPending, created.Status)
	require.Equal(t, testNow, created.CalculationDate)
}

func TestCreateRejectsBadInput(t *testing.T) {
	repo := newMemoryCommissionRepo()
	svc := newCommissionService(repo, nil)

	in := createInput()
	in.ManufacturerID = 0
	_, err := svc.Create(context.Background(), in)
	require.Error(t, err)

	in = createInput()
	in.CommissionRate = money("-1")
	_, err = svc.Create(context.Background(), in)
	require.Error(t, err)
}

func TestUpdateRecomputesAmount(t *testing.T) {
	repo := newMemoryCommissionRepo()
	svc := newCommissionService(repo, nil)

	created, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	base := money("6000.00")
	updated, err := svc.Update(context.Background(), created.ID, UpdateInput{BaseAmount: &base})
	require.NoError(t, err)
	require.True(t, updated.CommissionAmount.Equal(money("150.00")), "got %s", updated.CommissionAmount)

	rate := money("3")
	updated, err = svc.Update(context.Background(), created.ID, UpdateInput{CommissionRate: &rate})
	require.NoError(t, err)
	require.True(t, updated.CommissionAmount.Equal(money("180.00")), "got %s", updated.CommissionAmount)
}

func TestUpdateSkipsRecomputeWhenUnchanged(t *testing.T) {
	repo := newMemoryCommissionRepo()
	svc := newCommissionService(repo, nil)

	created, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)
	// Tamper with the stored amount to observe whether Update recomputes.
	repo.rows[created.ID].CommissionAmount = money("999.99")

	sameBase := money("5000.00")
	notes := "confirmed with manufacturer"
	updated, err := svc.Update(context.Background(), created.ID, UpdateInput{BaseAmount: &sameBase, Notes: &notes})
	require.NoError(t, err)
	require.True(t, updated.CommissionAmount.Equal(money("999.99")))
	require.Equal(t, notes, updated.Notes)
}

func TestApprovalWorkflow(t *testing.T) {
	repo := newMemoryCommissionRepo()
	audit := &recordingAudit{}
	svc := newCommissionService(repo, audit)

	created, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	require.NoError(t, svc.Approve(context.Background(), created.ID, 7))
	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)

	require.NoError(t, svc.MarkPaid(context.Background(), created.ID, 7))
	got, err = svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, got.Status)
	require.NotNil(t, got.PaidDate)
	require.Equal(t, testNow, *got.PaidDate)

	require.Len(t, audit.logs, 2)
	require.Equal(t, "commission.APPROVED", audit.logs[0].Action)
	require.Equal(t, "commission.PAID", audit.logs[1].Action)
}

func TestInvalidTransitionsRejected(t *testing.T) {
	repo := newMemoryCommissionRepo()
	svc := newCommissionService(repo, nil)

	created, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	// PENDING cannot be paid directly.
	require.ErrorIs(t, svc.MarkPaid(context.Background(), created.ID, 7), ErrInvalidStatus)

	require.NoError(t, svc.Approve(context.Background(), created.ID, 7))
	// APPROVED cannot be approved again.
	require.ErrorIs(t, svc.Approve(context.Background(), created.ID, 7), ErrInvalidStatus)

	require.NoError(t, svc.MarkPaid(context.Background(), created.ID, 7))
	// PAID is terminal.
	require.ErrorIs(t, svc.Cancel(context.Background(), created.ID, 7), ErrInvalidStatus)
}

func TestCancelOpenCommission(t *testing.T) {
	repo := newMemoryCommissionRepo()
	svc := newCommissionService(repo, nil)

	created, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(context.Background(), created.ID, 7))

	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
}

func TestListByManufacturerPaginates(t *testing.T) {
	repo := newMemoryCommissionRepo()
	svc := newCommissionService(repo, nil)

	for i := 0; i < 3; i++ {
		_, err := svc.Create(context.Background(), createInput())
		require.NoError(t, err)
	}
	other := createInput()
	other.ManufacturerID = 9
	_, err := svc.Create(context.Background(), other)
	require.NoError(t, err)

	first, pagination, err := svc.ListByManufacturer(context.Background(), 3, 1, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, 3, pagination.Total)
	require.Equal(t, 2, pagination.TotalPages)

	second, pagination, err := svc.ListByManufacturer(context.Background(), 3, 2, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, 2, pagination.Page)

	// No paging params falls back to the default page size.
	all, pagination, err := svc.ListByManufacturer(context.Background(), 3, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, 20, pagination.PerPage)
}

func TestListDueAndOverdue(t *testing.T) {
	repo := newMemoryCommissionRepo()
	svc := newCommissionService(repo, nil)

	mustCreate := func(due time.Time) Commission {
		in := createInput()
		in.DueDate = &due
		c, err := svc.Create(context.Background(), in)
		require.NoError(t, err)
		return c
	}

	past := mustCreate(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	today := mustCreate(time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC))
	mustCreate(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	cancelled := mustCreate(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, svc.Cancel(context.Background(), cancelled.ID, 7))

	due, err := svc.ListDue(context.Background())
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, past.ID, due[0].ID)
	require.Equal(t, today.ID, due[1].ID)

	overdue, err := svc.ListOverdue(context.Background())
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	require.Equal(t, past.ID, overdue[0].ID)
}
