package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	ledger "trusted-properties/internal/ledger/domain"
	"trusted-properties/internal/ledger/infrastructure/postgres"
	"trusted-properties/internal/migrations"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = migrations.Upgrade(context.Background(), db, zerolog.Nop())
	require.NoError(t, err)
	return db
}

func addr(prefix string) ledger.Address {
	return ledger.Address(prefix + "-" + uuid.NewString()[:8])
}

func TestPostgresLedger_TransferAndRollback(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	l := postgres.NewLedger(db)
	alice, bob := addr("alice"), addr("bob")

	require.NoError(t, l.Atomically(ctx, func(tx ledger.Tx) error {
		return tx.Credit(ctx, alice, 100)
	}))
	require.NoError(t, l.Atomically(ctx, func(tx ledger.Tx) error {
		return tx.Transfer(ctx, alice, bob, 30)
	}))

	boom := errors.New("boom")
	err := l.Atomically(ctx, func(tx ledger.Tx) error {
		require.NoError(t, tx.Transfer(ctx, alice, bob, 70))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = l.Atomically(ctx, func(tx ledger.Tx) error {
		return tx.Transfer(ctx, alice, bob, 71)
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	require.NoError(t, l.View(ctx, func(tx ledger.Tx) error {
		a, err := tx.Balance(ctx, alice)
		require.NoError(t, err)
		b, err := tx.Balance(ctx, bob)
		require.NoError(t, err)
		require.Equal(t, uint64(70), a)
		require.Equal(t, uint64(30), b)
		return nil
	}))
}

func TestPostgresLedger_Slots(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	l := postgres.NewLedger(db)
	record := addr("record")

	require.NoError(t, l.Atomically(ctx, func(tx ledger.Tx) error {
		return tx.Allocate(ctx, record, "prog", []byte{1, 2})
	}))
	err := l.Atomically(ctx, func(tx ledger.Tx) error {
		return tx.Allocate(ctx, record, "prog", []byte{3})
	})
	require.ErrorIs(t, err, ledger.ErrSlotOccupied)

	err = l.Atomically(ctx, func(tx ledger.Tx) error {
		return tx.Write(ctx, record, "other", []byte{3})
	})
	require.ErrorIs(t, err, ledger.ErrProgramMismatch)

	require.NoError(t, l.Atomically(ctx, func(tx ledger.Tx) error {
		return tx.Write(ctx, record, "prog", []byte{9})
	}))
	require.NoError(t, l.View(ctx, func(tx ledger.Tx) error {
		slot, err := tx.Slot(ctx, record)
		require.NoError(t, err)
		require.NotNil(t, slot)
		require.Equal(t, []byte{9}, slot.Data)
		return nil
	}))
}
