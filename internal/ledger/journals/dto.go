package journals

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fleetlease/fleetlease/internal/ledger/shared"
)

// CreateEntryInput groups fields required to open a draft entry.
type CreateEntryInput struct {
	Date        time.Time
	Reference   *Reference
	Description string
	CreatedBy   int64
}

// Validate ensures creation input meets minimum criteria.
func (in CreateEntryInput) Validate() error {
	if in.Date.IsZero() {
		return errors.New("ledger: transaction date required")
	}
	if in.Reference != nil && in.Reference.Kind == "" {
		return errors.New("ledger: reference kind required when reference set")
	}
	return nil
}

// LineInput describes a journal line to attach to a draft entry.
type LineInput struct {
	AccountID   int64
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// Validate enforces the debit-XOR-credit rule.
func (in LineInput) Validate() error {
	if in.AccountID == 0 {
		return errors.New("ledger: line missing account")
	}
	if in.Debit.IsNegative() || in.Credit.IsNegative() {
		return shared.ErrNegativeAmount
	}
	debit := in.Debit.IsPositive()
	credit := in.Credit.IsPositive()
	if debit && credit {
		return shared.ErrBothSides
	}
	if !debit && !credit {
		return shared.ErrNoSide
	}
	return nil
}

// PostInput wraps parameters for posting.
type PostInput struct {
	EntryID int64
	ActorID int64
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID int64
	ActorID int64
	Reason  string
}

// ListFilter narrows entry listings.
type ListFilter struct {
	Status        EntryStatus
	ReferenceKind ReferenceKind
	From          time.Time
	To            time.Time
	Search        string
	Page          int
	PerPage       int
}
