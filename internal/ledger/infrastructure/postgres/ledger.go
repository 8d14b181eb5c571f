package postgres

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	ledger "trusted-properties/internal/ledger/domain"
)

const (
	defaultAccountsTable = "ledger_accounts"
	defaultEntriesTable  = "ledger_entries"
)

// Ledger is a PostgreSQL ledger. Each unit of work is a sql.Tx and every
// touched account row is locked with SELECT ... FOR UPDATE.
type Ledger struct {
	db            *sql.DB
	accountsTable string
	entriesTable  string
	builder       sq.StatementBuilderType
	now           func() time.Time
}

// Option configures the ledger.
type Option func(*Ledger)

// WithTables overrides the table names.
func WithTables(accounts, entries string) Option {
	return func(l *Ledger) {
		if accounts != "" {
			l.accountsTable = accounts
		}
		if entries != "" {
			l.entriesTable = entries
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger constructs a ledger.
func NewLedger(db *sql.DB, opts ...Option) *Ledger {
	l := &Ledger{
		db:            db,
		accountsTable: defaultAccountsTable,
		entriesTable:  defaultEntriesTable,
		builder:       sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Atomically runs fn inside a transaction and commits when it returns nil.
func (l *Ledger) Atomically(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if l == nil || l.db == nil {
		return errors.New("postgres ledger: nil db")
	}
	sqlTx, err := l.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrap(err, "postgres ledger: begin")
	}
	if err := fn(&tx{ledger: l, sqlTx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	return errors.Wrap(sqlTx.Commit(), "postgres ledger: commit")
}

// View runs fn in a read-only transaction.
func (l *Ledger) View(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if l == nil || l.db == nil {
		return errors.New("postgres ledger: nil db")
	}
	sqlTx, err := l.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return errors.Wrap(err, "postgres ledger: begin")
	}
	defer func() { _ = sqlTx.Rollback() }()
	return fn(&tx{ledger: l, sqlTx: sqlTx, readOnly: true})
}

type tx struct {
	ledger   *Ledger
	sqlTx    *sql.Tx
	readOnly bool
}

// lockBalances loads balances for addrs in address order, locking rows
// unless the transaction is read-only. Missing accounts read as zero.
func (t *tx) lockBalances(ctx context.Context, addrs ...ledger.Address) (map[ledger.Address]uint64, error) {
	keys := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if err := addr.Validate(); err != nil {
			return nil, err
		}
		keys = append(keys, string(addr))
	}
	sort.Strings(keys)

	query := t.ledger.builder.
		Select("address", "balance::text").
		From(t.ledger.accountsTable).
		Where(sq.Eq{"address": keys}).
		OrderBy("address")
	if !t.readOnly {
		query = query.Suffix("FOR UPDATE")
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "postgres ledger: build select")
	}
	rows, err := t.sqlTx.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "postgres ledger: select balances")
	}
	defer rows.Close()

	result := make(map[ledger.Address]uint64, len(addrs))
	for _, addr := range addrs {
		result[addr] = 0
	}
	for rows.Next() {
		var address, raw string
		if err := rows.Scan(&address, &raw); err != nil {
			return nil, errors.Wrap(err, "postgres ledger: scan balance")
		}
		balance, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "postgres ledger: parse balance of %s", address)
		}
		result[ledger.Address(address)] = balance
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "postgres ledger: iterate balances")
	}
	return result, nil
}

func (t *tx) setBalance(ctx context.Context, addr ledger.Address, balance uint64, now time.Time) error {
	stmt, args, err := t.ledger.builder.
		Insert(t.ledger.accountsTable).
		Columns("address", "balance", "updated_at").
		Values(string(addr), sq.Expr("?::numeric", strconv.FormatUint(balance, 10)), now).
		Suffix("ON CONFLICT (address) DO UPDATE SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "postgres ledger: build upsert")
	}
	if _, err := t.sqlTx.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrapf(err, "postgres ledger: upsert balance of %s", addr)
	}
	return nil
}

func (t *tx) insertEntries(ctx context.Context, entries ...ledger.Entry) error {
	query := t.ledger.builder.
		Insert(t.ledger.entriesTable).
		Columns("account", "counterparty", "debit", "credit", "balance_before", "balance_after", "occurred_at")
	for _, entry := range entries {
		query = query.Values(
			string(entry.Account),
			string(entry.Counterparty),
			sq.Expr("?::numeric", strconv.FormatUint(entry.Debit, 10)),
			sq.Expr("?::numeric", strconv.FormatUint(entry.Credit, 10)),
			sq.Expr("?::numeric", strconv.FormatUint(entry.BalanceBefore, 10)),
			sq.Expr("?::numeric", strconv.FormatUint(entry.BalanceAfter, 10)),
			entry.OccurredAt,
		)
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "postgres ledger: build entries insert")
	}
	if _, err := t.sqlTx.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "postgres ledger: insert entries")
	}
	return nil
}

func (t *tx) Balance(ctx context.Context, addr ledger.Address) (uint64, error) {
	balances, err := t.lockBalances(ctx, addr)
	if err != nil {
		return 0, err
	}
	return balances[addr], nil
}

func (t *tx) Transfer(ctx context.Context, from, to ledger.Address, amount uint64) error {
	if t.readOnly {
		return ledger.ErrReadOnly
	}
	if err := from.Validate(); err != nil {
		return err
	}
	if err := to.Validate(); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	if from == to {
		return ledger.ErrSelfTransfer
	}
	balances, err := t.lockBalances(ctx, from, to)
	if err != nil {
		return err
	}
	fromAfter, underflow := ledger.OSub(balances[from], amount)
	if underflow {
		return ledger.ErrInsufficientFunds
	}
	toAfter, overflow := ledger.OAdd(balances[to], amount)
	if overflow {
		return ledger.ErrBalanceOverflow
	}
	now := t.ledger.now()
	if err := t.setBalance(ctx, from, fromAfter, now); err != nil {
		return err
	}
	if err := t.setBalance(ctx, to, toAfter, now); err != nil {
		return err
	}
	return t.insertEntries(ctx,
		ledger.Entry{Account: from, Counterparty: to, Debit: amount, BalanceBefore: balances[from], BalanceAfter: fromAfter, OccurredAt: now},
		ledger.Entry{Account: to, Counterparty: from, Credit: amount, BalanceBefore: balances[to], BalanceAfter: toAfter, OccurredAt: now},
	)
}

func (t *tx) Credit(ctx context.Context, addr ledger.Address, amount uint64) error {
	if t.readOnly {
		return ledger.ErrReadOnly
	}
	balances, err := t.lockBalances(ctx, addr)
	if err != nil {
		return err
	}
	after, overflow := ledger.OAdd(balances[addr], amount)
	if overflow {
		return ledger.ErrBalanceOverflow
	}
	now := t.ledger.now()
	if err := t.setBalance(ctx, addr, after, now); err != nil {
		return err
	}
	return t.insertEntries(ctx, ledger.Entry{Account: addr, Credit: amount, BalanceBefore: balances[addr], BalanceAfter: after, OccurredAt: now})
}

func (t *tx) Slot(ctx context.Context, addr ledger.Address) (*ledger.Slot, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	query := t.ledger.builder.
		Select("program", "data").
		From(t.ledger.accountsTable).
		Where(sq.Eq{"address": string(addr)})
	if !t.readOnly {
		query = query.Suffix("FOR UPDATE")
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "postgres ledger: build slot select")
	}
	var program sql.NullString
	var data []byte
	err = t.sqlTx.QueryRowContext(ctx, stmt, args...).Scan(&program, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "postgres ledger: select slot of %s", addr)
	}
	if !program.Valid {
		return nil, nil
	}
	return &ledger.Slot{Program: program.String, Data: data}, nil
}

func (t *tx) Allocate(ctx context.Context, addr ledger.Address, program string, data []byte) error {
	if t.readOnly {
		return ledger.ErrReadOnly
	}
	if err := addr.Validate(); err != nil {
		return err
	}
	now := t.ledger.now()
	stmt, args, err := t.ledger.builder.
		Insert(t.ledger.accountsTable).
		Columns("address", "program", "data", "updated_at").
		Values(string(addr), program, data, now).
		Suffix("ON CONFLICT (address) DO UPDATE SET program = EXCLUDED.program, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at WHERE " + t.ledger.accountsTable + ".program IS NULL").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "postgres ledger: build allocate")
	}
	res, err := t.sqlTx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return errors.Wrapf(err, "postgres ledger: allocate %s", addr)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "postgres ledger: rows affected")
	}
	if affected == 0 {
		return ledger.ErrSlotOccupied
	}
	return nil
}

func (t *tx) Write(ctx context.Context, addr ledger.Address, program string, data []byte) error {
	if t.readOnly {
		return ledger.ErrReadOnly
	}
	current, err := t.Slot(ctx, addr)
	if err != nil {
		return err
	}
	if current == nil {
		return ledger.ErrSlotNotFound
	}
	if current.Program != program {
		return ledger.ErrProgramMismatch
	}
	stmt, args, err := t.ledger.builder.
		Update(t.ledger.accountsTable).
		Set("data", data).
		Set("updated_at", t.ledger.now()).
		Where(sq.Eq{"address": string(addr), "program": program}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "postgres ledger: build write")
	}
	if _, err := t.sqlTx.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrapf(err, "postgres ledger: write %s", addr)
	}
	return nil
}
