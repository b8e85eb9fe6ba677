package journals

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fleetlease/fleetlease/internal/ledger/accounts"
	"github.com/fleetlease/fleetlease/internal/ledger/shared"
)

// errNumberTaken signals the generated entry number lost a race; the service
// re-checks and retries inside the same flow.
var errNumberTaken = errors.New("ledger: entry number already assigned")

// Repository encapsulates DB operations for journal entries.
type Repository interface {
	Get(ctx context.Context, id int64) (JournalEntry, error)
	List(ctx context.Context, filter ListFilter) ([]JournalEntry, int, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a posting transaction.
type TxRepository interface {
	LastEntryNumber(ctx context.Context, prefix string) (string, error)
	InsertEntry(ctx context.Context, in CreateEntryInput, number string) (JournalEntry, error)
	GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error)
	ListLines(ctx context.Context, entryID int64) ([]JournalLine, error)
	InsertLine(ctx context.Context, entryID int64, in LineInput) (JournalLine, error)
	DeleteLine(ctx context.Context, entryID, lineID int64) error
	UpdateTotals(ctx context.Context, entryID int64, debit, credit decimal.Decimal) error
	MarkPosted(ctx context.Context, entryID, actorID int64, at time.Time) error
	MarkReversed(ctx context.Context, entryID int64) error
	DeleteEntry(ctx context.Context, entryID int64) error
	GetAccountForUpdate(ctx context.Context, accountID int64) (accounts.Account, error)
	AddAccountBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, number, date, reference_kind, reference_id, description, total_debit, total_credit, status, created_by, posted_by, posted_at, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	var refKind *string
	var refID *int64
	err := row.Scan(&e.ID, &e.Number, &e.Date, &refKind, &refID, &e.Description, &e.TotalDebit, &e.TotalCredit, &e.Status, &e.CreatedBy, &e.PostedBy, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	if refKind != nil && refID != nil {
		e.Reference = &Reference{Kind: ReferenceKind(*refKind), ID: *refID}
	}
	return e, nil
}

func (r *repository) Get(ctx context.Context, id int64) (JournalEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id))
	if err != nil {
		return JournalEntry{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, entry_id, account_id, description, debit, credit, created_at, updated_at FROM journal_lines WHERE entry_id=$1 ORDER BY id`, id)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	entry.Lines, err = collectLines(rows)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]JournalEntry, int, error) {
	where := ` FROM journal_entries WHERE 1=1`
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		where += clause + "$" + itoa(len(args))
	}
	if filter.Status != "" {
		add(` AND status=`, filter.Status)
	}
	if filter.ReferenceKind != "" {
		add(` AND reference_kind=`, filter.ReferenceKind)
	}
	if !filter.From.IsZero() {
		add(` AND date >= `, filter.From)
	}
	if !filter.To.IsZero() {
		add(` AND date <= `, filter.To)
	}
	if filter.Search != "" {
		args = append(args, filter.Search)
		ph := "$" + itoa(len(args))
		where += ` AND (number ILIKE '%'||` + ph + `||'%' OR description ILIKE '%'||` + ph + `||'%')`
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*)`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + entryColumns + where + ` ORDER BY number DESC`
	if filter.PerPage > 0 {
		args = append(args, filter.PerPage)
		query += ` LIMIT $` + itoa(len(args))
		if filter.Page > 1 {
			args = append(args, (filter.Page-1)*filter.PerPage)
			query += ` OFFSET $` + itoa(len(args))
		}
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LastEntryNumber(ctx context.Context, prefix string) (string, error) {
	var number string
	err := r.tx.QueryRow(ctx, `SELECT number FROM journal_entries WHERE number LIKE $1 ORDER BY number DESC LIMIT 1`, prefix+"%").Scan(&number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return number, nil
}

func (r *txRepository) InsertEntry(ctx context.Context, in CreateEntryInput, number string) (JournalEntry, error) {
	var refKind *string
	var refID *int64
	if in.Reference != nil {
		kind := string(in.Reference.Kind)
		refKind, refID = &kind, &in.Reference.ID
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (number, date, reference_kind, reference_id, description, total_debit, total_credit, status, created_by)
VALUES ($1,$2,$3,$4,$5,0,0,'DRAFT',$6) RETURNING `+entryColumns, number, in.Date, refKind, refID, in.Description, in.CreatedBy)
	entry, err := scanEntry(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return JournalEntry{}, errNumberTaken
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	return scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) ListLines(ctx context.Context, entryID int64) ([]JournalLine, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, account_id, description, debit, credit, created_at, updated_at FROM journal_lines WHERE entry_id=$1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLines(rows)
}

func (r *txRepository) InsertLine(ctx context.Context, entryID int64, in LineInput) (JournalLine, error) {
	var line JournalLine
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, account_id, description, debit, credit)
VALUES ($1,$2,$3,$4,$5) RETURNING id, entry_id, account_id, description, debit, credit, created_at, updated_at`,
		entryID, in.AccountID, in.Description, in.Debit, in.Credit).
		Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Description, &line.Debit, &line.Credit, &line.CreatedAt, &line.UpdatedAt)
	if err != nil {
		return JournalLine{}, err
	}
	return line, nil
}

func (r *txRepository) DeleteLine(ctx context.Context, entryID, lineID int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE id=$1 AND entry_id=$2`, lineID, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrLineNotFound
	}
	return nil
}

func (r *txRepository) UpdateTotals(ctx context.Context, entryID int64, debit, credit decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE journal_entries SET total_debit=$2, total_credit=$3, updated_at=NOW() WHERE id=$1`, entryID, debit, credit)
	return err
}

func (r *txRepository) MarkPosted(ctx context.Context, entryID, actorID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='POSTED', posted_by=$2, posted_at=$3, updated_at=NOW() WHERE id=$1`, entryID, actorID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) MarkReversed(ctx context.Context, entryID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='REVERSED', updated_at=NOW() WHERE id=$1`, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) DeleteEntry(ctx context.Context, entryID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, entryID); err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE id=$1`, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) GetAccountForUpdate(ctx context.Context, accountID int64) (accounts.Account, error) {
	var a accounts.Account
	err := r.tx.QueryRow(ctx, `SELECT id, code, name, type, parent_id, balance, is_active, description, created_at, updated_at FROM accounts WHERE id=$1 FOR UPDATE`, accountID).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.Balance, &a.IsActive, &a.Description, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return accounts.Account{}, shared.ErrAccountNotFound
		}
		return accounts.Account{}, err
	}
	return a, nil
}

func (r *txRepository) AddAccountBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET balance=balance+$2, updated_at=NOW() WHERE id=$1`, accountID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func collectLines(rows pgx.Rows) ([]JournalLine, error) {
	var lines []JournalLine
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountID, &l.Description, &l.Debit, &l.Credit, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
