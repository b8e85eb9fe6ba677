package journals

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fleetlease/fleetlease/internal/ledger/accounts"
	"github.com/fleetlease/fleetlease/internal/ledger/shared"
	internalshared "github.com/fleetlease/fleetlease/internal/shared"
)

type memoryLedgerRepo struct {
	entries     map[int64]*JournalEntry
	lines       map[int64][]JournalLine
	accounts    map[int64]*accounts.Account
	nextEntryID int64
	nextLineID  int64
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{
		entries:  make(map[int64]*JournalEntry),
		lines:    make(map[int64][]JournalLine),
		accounts: make(map[int64]*accounts.Account),
	}
}

func (r *memoryLedgerRepo) addAccount(id int64, accountType accounts.AccountType, active bool) {
	r.accounts[id] = &accounts.Account{
		ID:       id,
		Code:     "A" + time.Now().Format("150405"),
		Type:     accountType,
		Balance:  decimal.Zero,
		IsActive: active,
	}
}

func (r *memoryLedgerRepo) Get(ctx context.Context, id int64) (JournalEntry, error) {
	entry, ok := r.entries[id]
	if !ok {
		return JournalEntry{}, shared.ErrEntryNotFound
	}
	out := *entry
	out.Lines = append([]JournalLine(nil), r.lines[id]...)
	return out, nil
}

func (r *memoryLedgerRepo) List(ctx context.Context, filter ListFilter) ([]JournalEntry, int, error) {
	ids := make([]int64, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]JournalEntry, 0, len(ids))
	for _, id := range ids {
		entry := *r.entries[id]
		if filter.Status != "" && entry.Status != filter.Status {
			continue
		}
		out = append(out, entry)
	}
	total := len(out)
	if filter.PerPage > 0 {
		start := 0
		if filter.Page > 1 {
			start = (filter.Page - 1) * filter.PerPage
		}
		if start > total {
			start = total
		}
		end := start + filter.PerPage
		if end > total {
			end = total
		}
		out = out[start:end]
	}
	return out, total, nil
}

func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryLedgerRepo) LastEntryNumber(ctx context.Context, prefix string) (string, error) {
	last := ""
	for _, entry := range r.entries {
		if len(entry.Number) >= len(prefix) && entry.Number[:len(prefix)] == prefix && entry.Number > last {
			last = entry.Number
		}
	}
	return last, nil
}

func (r *memoryLedgerRepo) InsertEntry(ctx context.Context, in CreateEntryInput, number string) (JournalEntry, error) {
	for _, entry := range r.entries {
		if entry.Number == number {
			return JournalEntry{}, errNumberTaken
		}
	}
	r.nextEntryID++
	entry := &JournalEntry{
		ID:          r.nextEntryID,
		Number:      number,
		Date:        in.Date,
		Reference:   in.Reference,
		Description: in.Description,
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
		Status:      EntryStatusDraft,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	r.entries[entry.ID] = entry
	return *entry, nil
}

func (r *memoryLedgerRepo) GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	entry, ok := r.entries[id]
	if !ok {
		return JournalEntry{}, shared.ErrEntryNotFound
	}
	return *entry, nil
}

func (r *memoryLedgerRepo) ListLines(ctx context.Context, entryID int64) ([]JournalLine, error) {
	return append([]JournalLine(nil), r.lines[entryID]...), nil
}

func (r *memoryLedgerRepo) InsertLine(ctx context.Context, entryID int64, in LineInput) (JournalLine, error) {
	r.nextLineID++
	line := JournalLine{
		ID:          r.nextLineID,
		EntryID:     entryID,
		AccountID:   in.AccountID,
		Description: in.Description,
		Debit:       in.Debit,
		Credit:      in.Credit,
	}
	r.lines[entryID] = append(r.lines[entryID], line)
	return line, nil
}

func (r *memoryLedgerRepo) DeleteLine(ctx context.Context, entryID, lineID int64) error {
	lines := r.lines[entryID]
	for i, line := range lines {
		if line.ID == lineID {
			r.lines[entryID] = append(lines[:i], lines[i+1:]...)
			return nil
		}
	}
	return shared.ErrLineNotFound
}

func (r *memoryLedgerRepo) UpdateTotals(ctx context.Context, entryID int64, debit, credit decimal.Decimal) error {
	entry, ok := r.entries[entryID]
	if !ok {
		return shared.ErrEntryNotFound
	}
	entry.TotalDebit = debit
	entry.TotalCredit = credit
	return nil
}

func (r *memoryLedgerRepo) MarkPosted(ctx context.Context, entryID, actorID int64, at time.Time) error {
	entry, ok := r.entries[entryID]
	if !ok {
		return shared.ErrEntryNotFound
	}
	entry.Status = EntryStatusPosted
	entry.PostedBy = &actorID
	entry.PostedAt = &at
	return nil
}

func (r *memoryLedgerRepo) MarkReversed(ctx context.Context, entryID int64) error {
	entry, ok := r.entries[entryID]
	if !ok {
		return shared.ErrEntryNotFound
	}
	entry.Status = EntryStatusReversed
	return nil
}

func (r *memoryLedgerRepo) DeleteEntry(ctx context.Context, entryID int64) error {
	if _, ok := r.entries[entryID]; !ok {
		return shared.ErrEntryNotFound
	}
	delete(r.lines, entryID)
	delete(r.entries, entryID)
	return nil
}

func (r *memoryLedgerRepo) GetAccountForUpdate(ctx context.Context, accountID int64) (accounts.Account, error) {
	account, ok := r.accounts[accountID]
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return *account, nil
}

func (r *memoryLedgerRepo) AddAccountBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	account, ok := r.accounts[accountID]
	if !ok {
		return shared.ErrAccountNotFound
	}
	account.Balance = account.Balance.Add(delta)
	return nil
}

type recordingAudit struct {
	logs []internalshared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log internalshared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newLedgerService(t *testing.T) (*Service, *memoryLedgerRepo, *recordingAudit) {
	t.Helper()
	repo := newMemoryLedgerRepo()
	audit := &recordingAudit{}
	svc := NewService(repo, audit, nil)
	svc.WithNow(func() time.Time {
		return time.Date(2026, time.August, 15, 10, 0, 0, 0, time.UTC)
	})
	return svc, repo, audit
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func draftEntry(t *testing.T, svc *Service) JournalEntry {
	t.Helper()
	entry, err := svc.CreateEntry(context.Background(), CreateEntryInput{
		Date:        time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC),
		Description: "monthly lease settlement",
		CreatedBy:   7,
	})
	require.NoError(t, err)
	return entry
}

func TestCreateEntrySequentialNumbers(t *testing.T) {
	svc, _, _ := newLedgerService(t)

	first := draftEntry(t, svc)
	second := draftEntry(t, svc)

	require.Equal(t, "JE202608001", first.Number)
	require.Equal(t, "JE202608002", second.Number)
	require.Equal(t, EntryStatusDraft, first.Status)
	require.True(t, first.TotalDebit.IsZero())
	require.True(t, first.TotalCredit.IsZero())
}

func TestListPaginatesEntries(t *testing.T) {
	svc, _, _ := newLedgerService(t)

	for i := 0; i < 3; i++ {
		draftEntry(t, svc)
	}

	first, pagination, err := svc.List(context.Background(), ListFilter{PerPage: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, 1, pagination.Page)
	require.Equal(t, 2, pagination.PerPage)
	require.Equal(t, 3, pagination.Total)
	require.Equal(t, 2, pagination.TotalPages)

	second, pagination, err := svc.List(context.Background(), ListFilter{Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, 2, pagination.Page)

	// Defaults kick in when no paging params arrive.
	all, pagination, err := svc.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, 20, pagination.PerPage)
	require.Equal(t, 1, pagination.TotalPages)
}

func TestPostBalancedEntryMovesBalances(t *testing.T) {
	svc, repo, audit := newLedgerService(t)
	repo.addAccount(1, accounts.AccountTypeAsset, true)
	repo.addAccount(2, accounts.AccountTypeIncome, true)

	entry := draftEntry(t, svc)
	_, err := svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 1, Debit: money("1500.00")})
	require.NoError(t, err)
	_, err = svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 2, Credit: money("1500.00")})
	require.NoError(t, err)

	posted, err := svc.Post(context.Background(), PostInput{EntryID: entry.ID, ActorID: 9})
	require.NoError(t, err)
	require.Equal(t, EntryStatusPosted, posted.Status)
	require.NotNil(t, posted.PostedAt)
	require.NotNil(t, posted.PostedBy)
	require.EqualValues(t, 9, *posted.PostedBy)
	require.True(t, posted.TotalDebit.Equal(money("1500.00")))
	require.True(t, posted.TotalCredit.Equal(money("1500.00")))

	// Debit increases the asset, credit increases the income account.
	require.True(t, repo.accounts[1].Balance.Equal(money("1500.00")))
	require.True(t, repo.accounts[2].Balance.Equal(money("1500.00")))

	require.Len(t, audit.logs, 1)
	require.Equal(t, "journal.post", audit.logs[0].Action)
}

func TestPostUnbalancedEntryRejected(t *testing.T) {
	svc, repo, _ := newLedgerService(t)
	repo.addAccount(1, accounts.AccountTypeAsset, true)
	repo.addAccount(2, accounts.AccountTypeIncome, true)

	entry := draftEntry(t, svc)
	_, err := svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 1, Debit: money("100.00")})
	require.NoError(t, err)
	_, err = svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 2, Credit: money("99.50")})
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), PostInput{EntryID: entry.ID, ActorID: 9})
	require.ErrorIs(t, err, shared.ErrUnbalanced)

	stored, err := svc.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	require.Equal(t, EntryStatusDraft, stored.Status)
	require.True(t, repo.accounts[1].Balance.IsZero())
	require.True(t, repo.accounts[2].Balance.IsZero())
}

func TestPostWithinToleranceAccepted(t *testing.T) {
	svc, repo, _ := newLedgerService(t)
	repo.addAccount(1, accounts.AccountTypeAsset, true)
	repo.addAccount(2, accounts.AccountTypeIncome, true)

	entry := draftEntry(t, svc)
	_, err := svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 1, Debit: money("100.00")})
	require.NoError(t, err)
	_, err = svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 2, Credit: money("100.01")})
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), PostInput{EntryID: entry.ID, ActorID: 9})
	require.NoError(t, err)
}

func TestPostEmptyEntryRejected(t *testing.T) {
	svc, _, _ := newLedgerService(t)
	entry := draftEntry(t, svc)

	_, err := svc.Post(context.Background(), PostInput{EntryID: entry.ID, ActorID: 9})
	require.ErrorIs(t, err, shared.ErrEmptyEntry)
}

func TestPostTwiceRejected(t *testing.T) {
	svc, repo, _ := newLedgerService(t)
	repo.addAccount(1, accounts.AccountTypeAsset, true)
	repo.addAccount(2, accounts.AccountTypeIncome, true)

	entry := draftEntry(t, svc)
	_, err := svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 1, Debit: money("10.00")})
	require.NoError(t, err)
	_, err = svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 2, Credit: money("10.00")})
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), PostInput{EntryID: entry.ID, ActorID: 9})
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), PostInput{EntryID: entry.ID, ActorID: 9})
	require.ErrorIs(t, err, shared.ErrEntryNotDraft)
}

func TestReverseRestoresBalances(t *testing.T) {
	svc, repo, audit := newLedgerService(t)
	repo.addAccount(1, accounts.AccountTypeAsset, true)
	repo.addAccount(2, accounts.AccountTypeIncome, true)

	entry := draftEntry(t, svc)
	_, err := svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 1, Debit: money("250.00"), Description: "cash in"})
	require.NoError(t, err)
	_, err = svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 2, Credit: money("250.00"), Description: "lease income"})
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), PostInput{EntryID: entry.ID, ActorID: 9})
	require.NoError(t, err)

	reversal, err := svc.Reverse(context.Background(), ReverseInput{EntryID: entry.ID, ActorID: 9, Reason: "billing error"})
	require.NoError(t, err)
	require.Equal(t, EntryStatusPosted, reversal.Status)
	require.Equal(t, "REVERSAL: monthly lease settlement - billing error", reversal.Description)
	require.Len(t, reversal.Lines, 2)

	// Sides are swapped line for line.
	require.True(t, reversal.Lines[0].Credit.Equal(money("250.00")))
	require.True(t, reversal.Lines[1].Debit.Equal(money("250.00")))
	require.Equal(t, "REVERSAL: cash in", reversal.Lines[0].Description)

	original, err := svc.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	require.Equal(t, EntryStatusReversed, original.Status)

	require.True(t, repo.accounts[1].Balance.IsZero())
	require.True(t, repo.accounts[2].Balance.IsZero())

	require.Len(t, audit.logs, 2)
	require.Equal(t, "journal.reverse", audit.logs[1].Action)
}

func TestReverseDraftRejected(t *testing.T) {
	svc, _, _ := newLedgerService(t)
	entry := draftEntry(t, svc)

	_, err := svc.Reverse(context.Background(), ReverseInput{EntryID: entry.ID, ActorID: 9, Reason: "oops"})
	require.ErrorIs(t, err, shared.ErrEntryNotPosted)
}

func TestReverseReversedRejected(t *testing.T) {
	svc, repo, _ := newLedgerService(t)
	repo.addAccount(1, accounts.AccountTypeAsset, true)
	repo.addAccount(2, accounts.AccountTypeIncome, true)

	entry := draftEntry(t, svc)
	_, err := svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 1, Debit: money("10.00")})
	require.NoError(t, err)
	_, err = svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 2, Credit: money("10.00")})
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), PostInput{EntryID: entry.ID, ActorID: 9})
	require.NoError(t, err)
	_, err = svc.Reverse(context.Background(), ReverseInput{EntryID: entry.ID, ActorID: 9})
	require.NoError(t, err)

	_, err = svc.Reverse(context.Background(), ReverseInput{EntryID: entry.ID, ActorID: 9})
	require.ErrorIs(t, err, shared.ErrEntryNotPosted)
}

func TestDeleteDraftOnlyImmutableAfterPost(t *testing.T) {
	svc, repo, _ := newLedgerService(t)
	repo.addAccount(1, accounts.AccountTypeAsset, true)
	repo.addAccount(2, accounts.AccountTypeIncome, true)

	draft := draftEntry(t, svc)
	require.NoError(t, svc.Delete(context.Background(), draft.ID))
	_, err := svc.Get(context.Background(), draft.ID)
	require.ErrorIs(t, err, shared.ErrEntryNotFound)

	posted := draftEntry(t, svc)
	_, err = svc.AddLine(context.Background(), posted.ID, LineInput{AccountID: 1, Debit: money("10.00")})
	require.NoError(t, err)
	_, err = svc.AddLine(context.Background(), posted.ID, LineInput{AccountID: 2, Credit: money("10.00")})
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), PostInput{EntryID: posted.ID, ActorID: 9})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(context.Background(), posted.ID), shared.ErrEntryImmutable)
}

func TestAddLineSideValidation(t *testing.T) {
	svc, repo, _ := newLedgerService(t)
	repo.addAccount(1, accounts.AccountTypeAsset, true)
	entry := draftEntry(t, svc)

	_, err := svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 1, Debit: money("5.00"), Credit: money("5.00")})
	require.ErrorIs(t, err, shared.ErrBothSides)

	_, err = svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 1})
	require.ErrorIs(t, err, shared.ErrNoSide)

	_, err = svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 1, Debit: money("-5.00")})
	require.ErrorIs(t, err, shared.ErrNegativeAmount)
}

func TestAddLineInactiveAccountRejected(t *testing.T) {
	svc, repo, _ := newLedgerService(t)
	repo.addAccount(1, accounts.AccountTypeAsset, false)
	entry := draftEntry(t, svc)

	_, err := svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 1, Debit: money("5.00")})
	require.ErrorIs(t, err, shared.ErrAccountInactive)
}

func TestAddLineToPostedEntryRejected(t *testing.T) {
	svc, repo, _ := newLedgerService(t)
	repo.addAccount(1, accounts.AccountTypeAsset, true)
	repo.addAccount(2, accounts.AccountTypeIncome, true)

	entry := draftEntry(t, svc)
	_, err := svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 1, Debit: money("10.00")})
	require.NoError(t, err)
	_, err = svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 2, Credit: money("10.00")})
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), PostInput{EntryID: entry.ID, ActorID: 9})
	require.NoError(t, err)

	_, err = svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 1, Debit: money("1.00")})
	require.ErrorIs(t, err, shared.ErrEntryNotDraft)
}

func TestRemoveLineRecomputesTotals(t *testing.T) {
	svc, repo, _ := newLedgerService(t)
	repo.addAccount(1, accounts.AccountTypeAsset, true)
	repo.addAccount(2, accounts.AccountTypeIncome, true)

	entry := draftEntry(t, svc)
	line, err := svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 1, Debit: money("40.00")})
	require.NoError(t, err)
	_, err = svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 2, Credit: money("40.00")})
	require.NoError(t, err)

	require.NoError(t, svc.RemoveLine(context.Background(), entry.ID, line.ID))

	stored, err := svc.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	require.True(t, stored.TotalDebit.IsZero())
	require.True(t, stored.TotalCredit.Equal(money("40.00")))
	require.Len(t, stored.Lines, 1)
}

func TestExpenseAndLiabilitySigns(t *testing.T) {
	svc, repo, _ := newLedgerService(t)
	repo.addAccount(3, accounts.AccountTypeExpense, true)
	repo.addAccount(4, accounts.AccountTypeLiability, true)

	entry := draftEntry(t, svc)
	_, err := svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 3, Debit: money("75.00")})
	require.NoError(t, err)
	_, err = svc.AddLine(context.Background(), entry.ID, LineInput{AccountID: 4, Credit: money("75.00")})
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), PostInput{EntryID: entry.ID, ActorID: 9})
	require.NoError(t, err)

	require.True(t, repo.accounts[3].Balance.Equal(money("75.00")))
	require.True(t, repo.accounts[4].Balance.Equal(money("75.00")))
}
