package shared

import "errors"

var (
	// ErrUnbalanced indicates entry debits and credits differ beyond tolerance.
	ErrUnbalanced = errors.New("ledger: entry must balance before posting")
	// ErrEmptyEntry indicates an entry without lines.
	ErrEmptyEntry = errors.New("ledger: entry has no lines")
	// ErrEntryNotDraft indicates a mutation attempted on a non-draft entry.
	ErrEntryNotDraft = errors.New("ledger: entry is not draft")
	// ErrEntryNotPosted indicates a reversal attempted on a non-posted entry.
	ErrEntryNotPosted = errors.New("ledger: entry is not posted")
	// ErrEntryImmutable indicates a posted or reversed entry cannot be deleted.
	ErrEntryImmutable = errors.New("ledger: posted and reversed entries are immutable")
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrLineNotFound indicates a missing journal line.
	ErrLineNotFound = errors.New("ledger: journal line not found")
	// ErrAccountNotFound indicates a missing ledger account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrAccountInactive indicates a line references a deactivated account.
	ErrAccountInactive = errors.New("ledger: account is inactive")
	// ErrDuplicateCode indicates the account code is already taken.
	ErrDuplicateCode = errors.New("ledger: account code already exists")
	// ErrSelfParent indicates an account referencing itself as parent.
	ErrSelfParent = errors.New("ledger: account cannot be its own parent")
	// ErrParentNotFound indicates the requested parent account does not exist.
	ErrParentNotFound = errors.New("ledger: parent account not found")
	// ErrNegativeAmount indicates a negative debit or credit.
	ErrNegativeAmount = errors.New("ledger: amounts must not be negative")
	// ErrBothSides indicates a line with both debit and credit set.
	ErrBothSides = errors.New("ledger: line cannot carry both debit and credit")
	// ErrNoSide indicates a line with neither debit nor credit set.
	ErrNoSide = errors.New("ledger: line must carry a debit or a credit")
	// ErrConflict indicates a concurrency conflict that exhausted retries.
	ErrConflict = errors.New("ledger: concurrent update conflict")
)
