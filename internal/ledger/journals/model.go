package journals

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryStatus enumerates journal entry lifecycle values.
type EntryStatus string

const (
	EntryStatusDraft    EntryStatus = "DRAFT"
	EntryStatusPosted   EntryStatus = "POSTED"
	EntryStatusReversed EntryStatus = "REVERSED"
)

// ReferenceKind tags the record an entry originates from. The ledger never
// dereferences these; resolution is the caller's job.
type ReferenceKind string

const (
	ReferencePayment        ReferenceKind = "PAYMENT"
	ReferenceLeaseAgreement ReferenceKind = "LEASE_AGREEMENT"
	ReferenceCommission     ReferenceKind = "COMMISSION"
	ReferenceManual         ReferenceKind = "MANUAL"
)

// Reference identifies the originating record of an entry.
type Reference struct {
	Kind ReferenceKind
	ID   int64
}

// JournalEntry captures a transactional record of balanced debit/credit lines.
// Totals are recomputed from lines after every line mutation while draft.
type JournalEntry struct {
	ID          int64
	Number      string
	Date        time.Time
	Reference   *Reference
	Description string
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Status      EntryStatus
	CreatedBy   int64
	PostedBy    *int64
	PostedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Lines       []JournalLine
}

// IsDraft reports whether the entry may still be edited.
func (e JournalEntry) IsDraft() bool { return e.Status == EntryStatusDraft }

// IsPosted reports whether the entry has been committed to the ledger.
func (e JournalEntry) IsPosted() bool { return e.Status == EntryStatusPosted }

// JournalLine stores a debit or credit amount for one account. Exactly one of
// Debit and Credit is nonzero.
type JournalLine struct {
	ID          int64
	EntryID     int64
	AccountID   int64
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsDebit reports whether the line carries its amount on the debit side.
func (l JournalLine) IsDebit() bool { return l.Debit.IsPositive() }
