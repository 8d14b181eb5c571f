package ledger

import (
	"context"
	"time"
)

// Slot is the typed data attached to an account. Only the program recorded
// at allocation may rewrite it.
type Slot struct {
	Program string
	Data    []byte
}

// Entry is one side of a value transfer.
type Entry struct {
	Account       Address
	Counterparty  Address
	Debit         uint64
	Credit        uint64
	BalanceBefore uint64
	BalanceAfter  uint64
	OccurredAt    time.Time
}

// Tx is a unit of work against the ledger. Writes become visible only when
// the surrounding Atomically call returns nil.
type Tx interface {
	Balance(ctx context.Context, addr Address) (uint64, error)
	// Transfer moves amount from one account to another. A zero amount is a no-op.
	Transfer(ctx context.Context, from, to Address, amount uint64) error
	// Credit mints amount into an account.
	Credit(ctx context.Context, addr Address, amount uint64) error
	// Slot returns the data attached to an account, or nil when none is allocated.
	Slot(ctx context.Context, addr Address) (*Slot, error)
	Allocate(ctx context.Context, addr Address, program string, data []byte) error
	Write(ctx context.Context, addr Address, program string, data []byte) error
}

// Ledger runs units of work with all-or-nothing semantics.
type Ledger interface {
	Atomically(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}
