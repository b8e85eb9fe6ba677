package schedules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fleetlease/fleetlease/internal/leasing/agreements"
	internalshared "github.com/fleetlease/fleetlease/internal/shared"
)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// memoryScheduleRepo keeps installments in a map so the state machine can be
// exercised without Postgres. WithTx hands the fake itself to the callback.
type memoryScheduleRepo struct {
	nextID int64
	rows   map[int64]*PaymentSchedule
}

func newMemoryScheduleRepo() *memoryScheduleRepo {
	return &memoryScheduleRepo{rows: make(map[int64]*PaymentSchedule)}
}

func (r *memoryScheduleRepo) add(s PaymentSchedule) int64 {
	r.nextID++
	s.ID = r.nextID
	r.rows[s.ID] = &s
	return s.ID
}

func (r *memoryScheduleRepo) Get(_ context.Context, id int64) (PaymentSchedule, error) {
	row, ok := r.rows[id]
	if !ok {
		return PaymentSchedule{}, ErrScheduleNotFound
	}
	return *row, nil
}

func (r *memoryScheduleRepo) ListByAgreement(_ context.Context, agreementID int64) ([]PaymentSchedule, error) {
	var out []PaymentSchedule
	for id := int64(1); id <= r.nextID; id++ {
		if row, ok := r.rows[id]; ok && row.LeaseAgreementID == agreementID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *memoryScheduleRepo) ListDueWithin(_ context.Context, from, to time.Time) ([]PaymentSchedule, error) {
	var out []PaymentSchedule
	for id := int64(1); id <= r.nextID; id++ {
		row, ok := r.rows[id]
		if !ok || row.IsSettled() {
			continue
		}
		if !row.DueDate.Before(from) && !row.DueDate.After(to) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *memoryScheduleRepo) ListPastDue(_ context.Context, asOf time.Time) ([]PaymentSchedule, error) {
	var out []PaymentSchedule
	for id := int64(1); id <= r.nextID; id++ {
		if row, ok := r.rows[id]; ok && row.IsPastDue(asOf) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *memoryScheduleRepo) CountByAgreement(_ context.Context, agreementID int64) (int, error) {
	count := 0
	for _, row := range r.rows {
		if row.LeaseAgreementID == agreementID {
			count++
		}
	}
	return count, nil
}

func (r *memoryScheduleRepo) InsertBatch(_ context.Context, rows []PaymentSchedule) error {
	for _, row := range rows {
		r.add(row)
	}
	return nil
}

func (r *memoryScheduleRepo) snapshot() map[int64]PaymentSchedule {
	snap := make(map[int64]PaymentSchedule, len(r.rows))
	for id, row := range r.rows {
		snap[id] = *row
	}
	return snap
}

func (r *memoryScheduleRepo) restore(snap map[int64]PaymentSchedule) {
	r.rows = make(map[int64]*PaymentSchedule, len(snap))
	for id, row := range snap {
		copied := row
		r.rows[id] = &copied
	}
}

// WithTx mimics transactional semantics: a failed callback restores the rows
// it touched.
func (r *memoryScheduleRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snap := r.snapshot()
	if err := fn(ctx, r); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memoryScheduleRepo) GetForUpdate(ctx context.Context, id int64) (PaymentSchedule, error) {
	return r.Get(ctx, id)
}

func (r *memoryScheduleRepo) UpdatePayment(_ context.Context, id int64, paid decimal.Decimal, paidDate time.Time, status ScheduleStatus) error {
	row, ok := r.rows[id]
	if !ok {
		return ErrScheduleNotFound
	}
	row.PaidAmount = paid
	row.PaidDate = &paidDate
	row.Status = status
	return nil
}

func (r *memoryScheduleRepo) UpdateStatus(_ context.Context, id int64, status ScheduleStatus) error {
	row, ok := r.rows[id]
	if !ok {
		return ErrScheduleNotFound
	}
	row.Status = status
	return nil
}

func (r *memoryScheduleRepo) AddLateFee(_ context.Context, id int64, fee decimal.Decimal) error {
	row, ok := r.rows[id]
	if !ok {
		return ErrScheduleNotFound
	}
	row.LateFee = row.LateFee.Add(fee)
	return nil
}

type fakeAgreements struct {
	rows map[int64]agreements.LeaseAgreement
}

func (f *fakeAgreements) Get(_ context.Context, id int64) (agreements.LeaseAgreement, error) {
	row, ok := f.rows[id]
	if !ok {
		return agreements.LeaseAgreement{}, internalshared.ErrNotFound
	}
	return row, nil
}

type recordingAudit struct {
	logs []internalshared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log internalshared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

var testNow = time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

func testAgreement() agreements.LeaseAgreement {
	return agreements.LeaseAgreement{
		ID:                1,
		Number:            "LA-2026-001",
		ClientID:          11,
		ManufacturerID:    21,
		StartDate:         time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		DurationMonths:    6,
		MonthlyPayment:    money("1000.00"),
		Currency:          "UGX",
		LateFeePercentage: money("1.5"),
		GracePeriodDays:   5,
	}
}

func newScheduleService(repo *memoryScheduleRepo, audit AuditPort) *Service {
	src := &fakeAgreements{rows: map[int64]agreements.LeaseAgreement{1: testAgreement()}}
	svc := NewService(repo, src, audit)
	svc.WithNow(func() time.Time { return testNow })
	return svc
}

func pendingInstallment(due time.Time, total string) PaymentSchedule {
	return PaymentSchedule{
		LeaseAgreementID:  1,
		InstallmentNumber: 1,
		DueDate:           due,
		PrincipalAmount:   money(total),
		InterestAmount:    decimal.Zero,
		TotalAmount:       money(total),
		Status:            StatusPending,
		PaidAmount:        decimal.Zero,
		LateFee:           decimal.Zero,
	}
}

func TestGenerateMonthlyInstallments(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := newScheduleService(repo, nil)

	rows, err := svc.Generate(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, rows, 6)

	require.Equal(t, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), rows[0].DueDate)
	require.Equal(t, time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC), rows[5].DueDate)
	for i, row := range rows {
		require.Equal(t, i+1, row.InstallmentNumber)
		require.Equal(t, StatusPending, row.Status)
		require.True(t, row.TotalAmount.Equal(money("1000.00")))
	}
}

func TestGenerateRejectsExistingSchedules(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := newScheduleService(repo, nil)

	_, err := svc.Generate(context.Background(), 1)
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), 1)
	require.ErrorIs(t, err, ErrScheduleExists)
}

func TestRecordPaymentPartialThenPaid(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := newScheduleService(repo, nil)
	id := repo.add(pendingInstallment(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), "1000.00"))

	updated, err := svc.RecordPayment(context.Background(), id, money("400.00"), testNow)
	require.NoError(t, err)
	require.Equal(t, StatusPartial, updated.Status)
	require.True(t, updated.PaidAmount.Equal(money("400.00")))
	require.True(t, updated.RemainingAmount().Equal(money("600.00")))

	updated, err = svc.RecordPayment(context.Background(), id, money("600.00"), testNow)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, updated.Status)
	require.True(t, updated.PaidAmount.Equal(money("1000.00")))
	require.NotNil(t, updated.PaidDate)
}

func TestRecordPaymentSettledRejected(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := newScheduleService(repo, nil)

	row := pendingInstallment(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), "1000.00")
	row.Status = StatusPaid
	row.PaidAmount = money("1000.00")
	id := repo.add(row)

	_, err := svc.RecordPayment(context.Background(), id, money("100.00"), testNow)
	require.ErrorIs(t, err, ErrScheduleSettled)
}

func TestRecordPaymentOverpaymentRejected(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := newScheduleService(repo, nil)
	id := repo.add(pendingInstallment(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), "1000.00"))

	_, err := svc.RecordPayment(context.Background(), id, money("1000.01"), testNow)
	require.ErrorIs(t, err, ErrOverpayment)

	got, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.True(t, got.PaidAmount.IsZero())
}

func TestRecordPaymentCoversLateFee(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := newScheduleService(repo, nil)

	row := pendingInstallment(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), "1000.00")
	row.Status = StatusOverdue
	row.LateFee = money("15.00")
	id := repo.add(row)

	updated, err := svc.RecordPayment(context.Background(), id, money("1015.00"), testNow)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, updated.Status)
	require.True(t, updated.PaidAmount.Equal(money("1015.00")))
}

func TestRecordPaymentNonPositiveRejected(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := newScheduleService(repo, nil)
	id := repo.add(pendingInstallment(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), "1000.00"))

	_, err := svc.RecordPayment(context.Background(), id, decimal.Zero, testNow)
	require.ErrorIs(t, err, ErrNonPositiveAmount)
	_, err = svc.RecordPayment(context.Background(), id, money("-5.00"), testNow)
	require.ErrorIs(t, err, ErrNonPositiveAmount)
}

func TestLateFeeAfterGracePeriod(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := newScheduleService(repo, nil)

	// Due 2026-08-01, clock 2026-08-15: fourteen days overdue, grace five.
	id := repo.add(pendingInstallment(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), "1000.00"))

	fee, err := svc.LateFee(context.Background(), id)
	require.NoError(t, err)
	require.True(t, fee.Equal(money("15.00")), "got %s", fee)
}

func TestLateFeeZeroWithinGracePeriod(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := newScheduleService(repo, nil)

	// Due 2026-08-12, clock 2026-08-15: three days overdue, inside grace.
	id := repo.add(pendingInstallment(time.Date(2026, 8, 12, 0, 0, 0, 0, time.UTC), "1000.00"))

	fee, err := svc.LateFee(context.Background(), id)
	require.NoError(t, err)
	require.True(t, fee.IsZero())
}

func TestLateFeeZeroWhenSettled(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := newScheduleService(repo, nil)

	row := pendingInstallment(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), "1000.00")
	row.Status = StatusWaived
	id := repo.add(row)

	fee, err := svc.LateFee(context.Background(), id)
	require.NoError(t, err)
	require.True(t, fee.IsZero())
}

func TestApplyLateFeeAccumulates(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := newScheduleService(repo, nil)
	id := repo.add(pendingInstallment(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), "1000.00"))

	fee, err := svc.ApplyLateFee(context.Background(), id)
	require.NoError(t, err)
	require.True(t, fee.Equal(money("15.00")))

	fee, err = svc.ApplyLateFee(context.Background(), id)
	require.NoError(t, err)
	require.True(t, fee.Equal(money("15.00")))

	got, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, got.LateFee.Equal(money("30.00")))
}

func TestUpdateOverdueStatusIdempotent(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := newScheduleService(repo, nil)
	id := repo.add(pendingInstallment(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), "1000.00"))

	updated, err := svc.UpdateOverdueStatus(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, StatusOverdue, updated.Status)

	updated, err = svc.UpdateOverdueStatus(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, StatusOverdue, updated.Status)
}

func TestUpdateOverdueStatusSkipsFutureAndSettled(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := newScheduleService(repo, nil)

	future := repo.add(pendingInstallment(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), "1000.00"))
	paid := pendingInstallment(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), "1000.00")
	paid.Status = StatusPaid
	paidID := repo.add(paid)

	updated, err := svc.UpdateOverdueStatus(context.Background(), future)
	require.NoError(t, err)
	require.Equal(t, StatusPending, updated.Status)

	updated, err = svc.UpdateOverdueStatus(context.Background(), paidID)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, updated.Status)
}

func TestWaiveForcesSettlement(t *testing.T) {
	repo := newMemoryScheduleRepo()
	audit := &recordingAudit{}
	svc := newScheduleService(repo, audit)

	row := pendingInstallment(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), "1000.00")
	row.Status = StatusOverdue
	row.PaidAmount = money("200.00")
	id := repo.add(row)

	updated, err := svc.Waive(context.Background(), id, 42)
	require.NoError(t, err)
	require.Equal(t, StatusWaived, updated.Status)
	require.True(t, updated.PaidAmount.Equal(money("1000.00")))
	require.NotNil(t, updated.PaidDate)

	require.Len(t, audit.logs, 1)
	require.Equal(t, "schedule.waive", audit.logs[0].Action)
	require.Equal(t, int64(42), audit.logs[0].ActorID)
}

func TestSweepOverdue(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := newScheduleService(repo, nil)

	// Past due beyond grace: marked overdue, accrues a fee.
	repo.add(pendingInstallment(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), "1000.00"))
	// Past due within grace: marked overdue, no fee yet.
	repo.add(pendingInstallment(time.Date(2026, 8, 12, 0, 0, 0, 0, time.UTC), "1000.00"))
	// Partially paid installments are left to manual follow-up.
	partial := pendingInstallment(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), "1000.00")
	partial.Status = StatusPartial
	partial.PaidAmount = money("300.00")
	partialID := repo.add(partial)
	// Not yet due.
	futureID := repo.add(pendingInstallment(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), "1000.00"))

	result, err := svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.MarkedOverdue)
	require.Equal(t, 1, result.FeesApplied)
	require.True(t, result.TotalFees.Equal(money("15.00")))

	got, err := svc.Get(context.Background(), partialID)
	require.NoError(t, err)
	require.Equal(t, StatusPartial, got.Status)
	got, err = svc.Get(context.Background(), futureID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
}

// feeFailScheduleRepo refuses a configurable number of AddLateFee writes so
// the sweep's transaction boundary can be observed.
type feeFailScheduleRepo struct {
	*memoryScheduleRepo
	failures int
}

func (r *feeFailScheduleRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snap := r.snapshot()
	if err := fn(ctx, r); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *feeFailScheduleRepo) AddLateFee(ctx context.Context, id int64, fee decimal.Decimal) error {
	if r.failures > 0 {
		r.failures--
		return errors.New("late fee write refused")
	}
	return r.memoryScheduleRepo.AddLateFee(ctx, id, fee)
}

func TestSweepRollsBackTransitionWhenFeeWriteFails(t *testing.T) {
	repo := &feeFailScheduleRepo{memoryScheduleRepo: newMemoryScheduleRepo(), failures: 1}
	src := &fakeAgreements{rows: map[int64]agreements.LeaseAgreement{1: testAgreement()}}
	svc := NewService(repo, src, nil)
	svc.WithNow(func() time.Time { return testNow })

	id := repo.add(pendingInstallment(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), "1000.00"))

	_, err := svc.SweepOverdue(context.Background())
	require.Error(t, err)

	// The failed fee write must roll back the OVERDUE transition too,
	// otherwise the next sweep skips the row and the fee is lost.
	got, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.True(t, got.LateFee.IsZero())

	result, err := svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.MarkedOverdue)
	require.Equal(t, 1, result.FeesApplied)
	require.True(t, result.TotalFees.Equal(money("15.00")))

	got, err = svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, StatusOverdue, got.Status)
	require.True(t, got.LateFee.Equal(money("15.00")))
}

func TestListCurrentMonth(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := newScheduleService(repo, nil)

	repo.add(pendingInstallment(time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC), "1000.00"))
	repo.add(pendingInstallment(time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC), "1000.00"))
	repo.add(pendingInstallment(time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC), "1000.00"))

	rows, err := svc.ListCurrentMonth(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestListDueWithinWindow(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := newScheduleService(repo, nil)

	repo.add(pendingInstallment(time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC), "1000.00"))
	repo.add(pendingInstallment(time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), "1000.00"))
	settled := pendingInstallment(time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC), "1000.00")
	settled.Status = StatusPaid
	repo.add(settled)

	rows, err := svc.ListDueWithin(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC), rows[0].DueDate)
}
