package journals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/fleetlease/fleetlease/internal/ledger/accounts"
	"github.com/fleetlease/fleetlease/internal/ledger/shared"
	internalshared "github.com/fleetlease/fleetlease/internal/shared"
)

// maxConflictRetries bounds internal retries on entry-number races and
// serialization failures before the conflict is surfaced.
const maxConflictRetries = 5

// AuditPort records who did what to which entry.
type AuditPort interface {
	Record(ctx context.Context, log internalshared.AuditLog) error
}

// ListingInvalidator drops cached account listings after balances move.
type ListingInvalidator interface {
	InvalidateListing(ctx context.Context)
}

// Service is the ledger poster: it owns the draft→posted→reversed state
// machine and is the only writer of account balances.
type Service struct {
	repo     Repository
	audit    AuditPort
	listings ListingInvalidator
	now      func() time.Time
}

func NewService(repo Repository, audit AuditPort, listings ListingInvalidator) *Service {
	return &Service{repo: repo, audit: audit, listings: listings, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Get(ctx context.Context, id int64) (JournalEntry, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of entries with pagination metadata. Page defaults to 1
// and page size to 20.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]JournalEntry, internalshared.Pagination, error) {
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internalshared.Pagination{}, err
	}
	return entries, internalshared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// CreateEntry opens a draft entry with zero totals. The entry number is
// generated and checked inside the insert transaction; a lost race rolls the
// transaction back and the whole flow retries with a fresh number.
func (s *Service) CreateEntry(ctx context.Context, in CreateEntryInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			last, err := tx.LastEntryNumber(ctx, entryNumberPrefix(s.now()))
			if err != nil {
				return err
			}
			entry, err = tx.InsertEntry(ctx, in, nextEntryNumber(s.now(), last))
			return err
		})
		if errors.Is(err, errNumberTaken) {
			continue
		}
		if err != nil {
			return JournalEntry{}, err
		}
		return entry, nil
	}
	return JournalEntry{}, shared.ErrConflict
}

// AddLine attaches a line to a draft entry and recomputes its totals.
func (s *Service) AddLine(ctx context.Context, entryID int64, in LineInput) (JournalLine, error) {
	if err := in.Validate(); err != nil {
		return JournalLine{}, err
	}
	var line JournalLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if !entry.IsDraft() {
			return shared.ErrEntryNotDraft
		}
		account, err := tx.GetAccountForUpdate(ctx, in.AccountID)
		if err != nil {
			return err
		}
		if !account.IsActive {
			return shared.ErrAccountInactive
		}
		line, err = tx.InsertLine(ctx, entryID, in)
		if err != nil {
			return err
		}
		_, _, err = recomputeTotals(ctx, tx, entryID)
		return err
	})
	return line, err
}

// RemoveLine detaches a line from a draft entry and recomputes its totals.
func (s *Service) RemoveLine(ctx context.Context, entryID, lineID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if !entry.IsDraft() {
			return shared.ErrEntryNotDraft
		}
		if err := tx.DeleteLine(ctx, entryID, lineID); err != nil {
			return err
		}
		_, _, err = recomputeTotals(ctx, tx, entryID)
		return err
	})
}

// Post commits a balanced draft entry and applies its signed deltas to every
// touched account, all inside one transaction. Serialization conflicts are
// retried a bounded number of times.
func (s *Service) Post(ctx context.Context, in PostInput) (JournalEntry, error) {
	if in.EntryID == 0 {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	var entry JournalEntry
	err := s.withConflictRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.postLocked(ctx, tx, in.EntryID, in.ActorID)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.invalidateListings(ctx)
	s.recordAudit(ctx, in.ActorID, "journal.post", entry.ID, map[string]any{
		"number":       entry.Number,
		"total_debit":  entry.TotalDebit.StringFixed(2),
		"total_credit": entry.TotalCredit.StringFixed(2),
	})
	return entry, nil
}

// Reverse creates and posts a mirrored entry, then marks the original
// reversed. The returned entry is the reversal.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (JournalEntry, error) {
	if in.EntryID == 0 {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	var reversal JournalEntry
	err := s.withConflictRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, in.EntryID)
		if err != nil {
			return err
		}
		if !original.IsPosted() {
			return shared.ErrEntryNotPosted
		}
		lines, err := tx.ListLines(ctx, in.EntryID)
		if err != nil {
			return err
		}
		last, err := tx.LastEntryNumber(ctx, entryNumberPrefix(s.now()))
		if err != nil {
			return err
		}
		reversal, err = tx.InsertEntry(ctx, CreateEntryInput{
			Date:        s.now(),
			Reference:   original.Reference,
			Description: reversalDescription(original.Description, in.Reason),
			CreatedBy:   in.ActorID,
		}, nextEntryNumber(s.now(), last))
		if err != nil {
			return err
		}
		for _, line := range lines {
			mirrored := LineInput{
				AccountID:   line.AccountID,
				Description: "REVERSAL: " + line.Description,
				Debit:       line.Credit,
				Credit:      line.Debit,
			}
			if _, err := tx.InsertLine(ctx, reversal.ID, mirrored); err != nil {
				return err
			}
		}
		reversal, err = s.postLocked(ctx, tx, reversal.ID, in.ActorID)
		if err != nil {
			return err
		}
		return tx.MarkReversed(ctx, original.ID)
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.invalidateListings(ctx)
	s.recordAudit(ctx, in.ActorID, "journal.reverse", in.EntryID, map[string]any{
		"reversal_id":     reversal.ID,
		"reversal_number": reversal.Number,
		"reason":          in.Reason,
	})
	return reversal, nil
}

// Delete removes a draft entry and its lines. Posted and reversed entries are
// immutable; the check happens before any write.
func (s *Service) Delete(ctx context.Context, entryID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if !entry.IsDraft() {
			return shared.ErrEntryImmutable
		}
		return tx.DeleteEntry(ctx, entryID)
	})
}

// postLocked runs the validated posting path against an already-open
// transaction. Reversal recurses into it for the mirrored entry.
func (s *Service) postLocked(ctx context.Context, tx TxRepository, entryID, actorID int64) (JournalEntry, error) {
	entry, err := tx.GetEntryForUpdate(ctx, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if !entry.IsDraft() {
		return JournalEntry{}, shared.ErrEntryNotDraft
	}
	lines, err := tx.ListLines(ctx, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if len(lines) == 0 {
		return JournalEntry{}, shared.ErrEmptyEntry
	}
	debit, credit, err := recomputeTotals(ctx, tx, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if !shared.Balanced(debit, credit) {
		return JournalEntry{}, shared.ErrUnbalanced
	}
	postedAt := s.now()
	if err := tx.MarkPosted(ctx, entryID, actorID, postedAt); err != nil {
		return JournalEntry{}, err
	}
	if err := applyBalanceDeltas(ctx, tx, lines); err != nil {
		return JournalEntry{}, err
	}
	entry.Status = EntryStatusPosted
	entry.PostedBy = &actorID
	entry.PostedAt = &postedAt
	entry.TotalDebit = debit
	entry.TotalCredit = credit
	entry.Lines = lines
	return entry, nil
}

// applyBalanceDeltas aggregates the lines per account and applies each signed
// delta under a row lock. Accounts are locked in ascending id order so two
// concurrent postings over the same set cannot deadlock.
func applyBalanceDeltas(ctx context.Context, tx TxRepository, lines []JournalLine) error {
	type sums struct{ debit, credit decimal.Decimal }
	perAccount := make(map[int64]sums)
	for _, line := range lines {
		agg := perAccount[line.AccountID]
		agg.debit = agg.debit.Add(line.Debit)
		agg.credit = agg.credit.Add(line.Credit)
		perAccount[line.AccountID] = agg
	}
	ids := make([]int64, 0, len(perAccount))
	for id := range perAccount {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		account, err := tx.GetAccountForUpdate(ctx, id)
		if err != nil {
			return err
		}
		agg := perAccount[id]
		delta := accounts.BalanceDelta(account.Type, agg.debit, agg.credit)
		if err := tx.AddAccountBalance(ctx, id, delta); err != nil {
			return err
		}
	}
	return nil
}

// recomputeTotals is the explicit totals step invoked after every line
// mutation and re-checked at posting time.
func recomputeTotals(ctx context.Context, tx TxRepository, entryID int64) (debit, credit decimal.Decimal, err error) {
	lines, err := tx.ListLines(ctx, entryID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if err := tx.UpdateTotals(ctx, entryID, debit, credit); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return debit, credit, nil
}

func (s *Service) withConflictRetry(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.repo.WithTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", shared.ErrConflict, err)
}

// isRetryable matches entry-number races plus Postgres serialization failure
// and deadlock SQLSTATEs.
func isRetryable(err error) bool {
	if errors.Is(err, errNumberTaken) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func reversalDescription(original, reason string) string {
	desc := "REVERSAL: " + original
	if reason != "" {
		desc += " - " + reason
	}
	return desc
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entryID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalshared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entryID),
		Meta:     meta,
		At:       s.now(),
	})
}

func (s *Service) invalidateListings(ctx context.Context) {
	if s.listings != nil {
		s.listings.InvalidateListing(ctx)
	}
}
