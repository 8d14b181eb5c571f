package memory

import (
	"context"
	"sync"
	"time"

	ledger "trusted-properties/internal/ledger/domain"
)

// Ledger is an in-memory ledger for demo/testing. Units of work are
// serialized and staged in an overlay that is applied only on success.
type Ledger struct {
	mu       sync.RWMutex
	balances map[ledger.Address]uint64
	slots    map[ledger.Address]ledger.Slot
	entries  []ledger.Entry
	now      func() time.Time
}

// Option configures the ledger.
type Option func(*Ledger)

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger constructs an empty ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		balances: make(map[ledger.Address]uint64),
		slots:    make(map[ledger.Address]ledger.Slot),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Atomically runs fn and commits its writes when it returns nil.
func (l *Ledger) Atomically(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.newTx(false)
	if err := fn(t); err != nil {
		return err
	}
	for addr, balance := range t.balances {
		l.balances[addr] = balance
	}
	for addr, slot := range t.slots {
		l.slots[addr] = slot
	}
	l.entries = append(l.entries, t.entries...)
	return nil
}

// View runs fn against a read-only snapshot.
func (l *Ledger) View(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(l.newTx(true))
}

// Entries returns a copy of the committed transfer journal.
func (l *Ledger) Entries() []ledger.Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]ledger.Entry(nil), l.entries...)
}

// TotalSupply sums every committed balance.
func (l *Ledger) TotalSupply() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total uint64
	for _, balance := range l.balances {
		total += balance
	}
	return total
}

func (l *Ledger) newTx(readOnly bool) *tx {
	return &tx{
		base:     l,
		readOnly: readOnly,
		balances: make(map[ledger.Address]uint64),
		slots:    make(map[ledger.Address]ledger.Slot),
	}
}

type tx struct {
	base     *Ledger
	readOnly bool
	balances map[ledger.Address]uint64
	slots    map[ledger.Address]ledger.Slot
	entries  []ledger.Entry
}

func (t *tx) balance(addr ledger.Address) uint64 {
	if balance, ok := t.balances[addr]; ok {
		return balance
	}
	return t.base.balances[addr]
}

func (t *tx) slot(addr ledger.Address) (ledger.Slot, bool) {
	if slot, ok := t.slots[addr]; ok {
		return slot, true
	}
	slot, ok := t.base.slots[addr]
	return slot, ok
}

func (t *tx) Balance(_ context.Context, addr ledger.Address) (uint64, error) {
	if err := addr.Validate(); err != nil {
		return 0, err
	}
	return t.balance(addr), nil
}

func (t *tx) Transfer(_ context.Context, from, to ledger.Address, amount uint64) error {
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
	fromBefore := t.balance(from)
	toBefore := t.balance(to)
	fromAfter, underflow := ledger.OSub(fromBefore, amount)
	if underflow {
		return ledger.ErrInsufficientFunds
	}
	toAfter, overflow := ledger.OAdd(toBefore, amount)
	if overflow {
		return ledger.ErrBalanceOverflow
	}
	t.balances[from] = fromAfter
	t.balances[to] = toAfter

	now := t.base.now()
	t.entries = append(t.entries,
		ledger.Entry{Account: from, Counterparty: to, Debit: amount, BalanceBefore: fromBefore, BalanceAfter: fromAfter, OccurredAt: now},
		ledger.Entry{Account: to, Counterparty: from, Credit: amount, BalanceBefore: toBefore, BalanceAfter: toAfter, OccurredAt: now},
	)
	return nil
}

func (t *tx) Credit(_ context.Context, addr ledger.Address, amount uint64) error {
	if t.readOnly {
		return ledger.ErrReadOnly
	}
	if err := addr.Validate(); err != nil {
		return err
	}
	before := t.balance(addr)
	after, overflow := ledger.OAdd(before, amount)
	if overflow {
		return ledger.ErrBalanceOverflow
	}
	t.balances[addr] = after
	t.entries = append(t.entries, ledger.Entry{Account: addr, Credit: amount, BalanceBefore: before, BalanceAfter: after, OccurredAt: t.base.now()})
	return nil
}

func (t *tx) Slot(_ context.Context, addr ledger.Address) (*ledger.Slot, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	slot, ok := t.slot(addr)
	if !ok {
		return nil, nil
	}
	return &ledger.Slot{Program: slot.Program, Data: append([]byte(nil), slot.Data...)}, nil
}

func (t *tx) Allocate(_ context.Context, addr ledger.Address, program string, data []byte) error {
	if t.readOnly {
		return ledger.ErrReadOnly
	}
	if err := addr.Validate(); err != nil {
		return err
	}
	if _, ok := t.slot(addr); ok {
		return ledger.ErrSlotOccupied
	}
	t.slots[addr] = ledger.Slot{Program: program, Data: append([]byte(nil), data...)}
	return nil
}

func (t *tx) Write(_ context.Context, addr ledger.Address, program string, data []byte) error {
	if t.readOnly {
		return ledger.ErrReadOnly
	}
	if err := addr.Validate(); err != nil {
		return err
	}
	slot, ok := t.slot(addr)
	if !ok {
		return ledger.ErrSlotNotFound
	}
	if slot.Program != program {
		return ledger.ErrProgramMismatch
	}
	t.slots[addr] = ledger.Slot{Program: program, Data: append([]byte(nil), data...)}
	return nil
}
