package ledger

import "errors"

var (
	// ErrInvalidAddress is returned when an address is empty or malformed.
	ErrInvalidAddress = errors.New("ledger: invalid address")
	// ErrInsufficientFunds is returned when a debit would take a balance below zero.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	// ErrBalanceOverflow is returned when a credit would overflow a balance.
	ErrBalanceOverflow = errors.New("ledger: balance overflow")
	// ErrSelfTransfer is returned when source and destination are the same account.
	ErrSelfTransfer = errors.New("ledger: self transfer")
	// ErrSlotOccupied is returned when allocating data on an account that already holds data.
	ErrSlotOccupied = errors.New("ledger: account data already allocated")
	// ErrSlotNotFound is returned when writing data to an account without an allocation.
	ErrSlotNotFound = errors.New("ledger: account data not allocated")
	// ErrProgramMismatch is returned when a program writes data it does not own.
	ErrProgramMismatch = errors.New("ledger: account owned by another program")
	// ErrReadOnly is returned when a read-only view attempts a write.
	ErrReadOnly = errors.New("ledger: read-only transaction")
)
