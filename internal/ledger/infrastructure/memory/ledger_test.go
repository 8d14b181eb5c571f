package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	ledger "trusted-properties/internal/ledger/domain"
)

func TestLedger_TransferProducesEntryPair(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	require.NoError(t, l.Atomically(ctx, func(tx ledger.Tx) error {
		return tx.Credit(ctx, "alice", 100)
	}))

	require.NoError(t, l.Atomically(ctx, func(tx ledger.Tx) error {
		return tx.Transfer(ctx, "alice", "bob", 40)
	}))

	require.NoError(t, l.View(ctx, func(tx ledger.Tx) error {
		alice, err := tx.Balance(ctx, "alice")
		require.NoError(t, err)
		bob, err := tx.Balance(ctx, "bob")
		require.NoError(t, err)
		require.Equal(t, uint64(60), alice)
		require.Equal(t, uint64(40), bob)
		return nil
	}))

	entries := l.Entries()
	require.Len(t, entries, 3)
	require.Equal(t, uint64(40), entries[1].Debit)
	require.Equal(t, uint64(40), entries[2].Credit)
	require.Equal(t, uint64(100), l.TotalSupply())
}

func TestLedger_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	err := l.Atomically(ctx, func(tx ledger.Tx) error {
		return tx.Transfer(ctx, "alice", "bob", 1)
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
}

func TestLedger_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	require.NoError(t, l.Atomically(ctx, func(tx ledger.Tx) error {
		return tx.Credit(ctx, "alice", 10)
	}))

	boom := errors.New("boom")
	err := l.Atomically(ctx, func(tx ledger.Tx) error {
		require.NoError(t, tx.Transfer(ctx, "alice", "bob", 10))
		require.NoError(t, tx.Allocate(ctx, "record", "prog", []byte{1}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, l.View(ctx, func(tx ledger.Tx) error {
		alice, _ := tx.Balance(ctx, "alice")
		require.Equal(t, uint64(10), alice)
		slot, err := tx.Slot(ctx, "record")
		require.NoError(t, err)
		require.Nil(t, slot)
		return nil
	}))
	require.Len(t, l.Entries(), 1)
}

func TestLedger_SlotOwnership(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	require.NoError(t, l.Atomically(ctx, func(tx ledger.Tx) error {
		return tx.Allocate(ctx, "record", "prog-a", []byte{1})
	}))

	err := l.Atomically(ctx, func(tx ledger.Tx) error {
		return tx.Allocate(ctx, "record", "prog-a", []byte{2})
	})
	require.ErrorIs(t, err, ledger.ErrSlotOccupied)

	err = l.Atomically(ctx, func(tx ledger.Tx) error {
		return tx.Write(ctx, "record", "prog-b", []byte{2})
	})
	require.ErrorIs(t, err, ledger.ErrProgramMismatch)

	err = l.Atomically(ctx, func(tx ledger.Tx) error {
		return tx.Write(ctx, "missing", "prog-a", []byte{2})
	})
	require.ErrorIs(t, err, ledger.ErrSlotNotFound)

	err = l.View(ctx, func(tx ledger.Tx) error {
		return tx.Credit(ctx, "alice", 1)
	})
	require.ErrorIs(t, err, ledger.ErrReadOnly)
}
