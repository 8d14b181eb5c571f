package agreement

import (
	"fmt"
	"strings"

	ledger "trusted-properties/internal/ledger/domain"
)

// DefaultMaxDuration is the longest lease accepted, in payment periods.
const DefaultMaxDuration uint64 = 60

// DurationLimit bounds any configured maximum duration.
const DurationLimit uint64 = 255

// Terms are the caller supplied parameters of a new agreement.
type Terms struct {
	SecurityDeposit uint64
	RentAmount      uint64
	Duration        uint64
	StartMonth      uint64
	StartYear       uint64
}

// Validate checks the terms against a maximum duration.
func (t Terms) Validate(maxDuration uint64) error {
	if maxDuration == 0 {
		maxDuration = DefaultMaxDuration
	}
	if maxDuration > DurationLimit {
		maxDuration = DurationLimit
	}
	switch {
	case t.Duration == 0 || t.Duration > maxDuration:
		return fmt.Errorf("%w: duration must be within 1..%d", ErrInvalidTerms, maxDuration)
	case t.RentAmount == 0:
		return fmt.Errorf("%w: rent amount must be positive", ErrInvalidTerms)
	case t.StartMonth < 1 || t.StartMonth > 12:
		return fmt.Errorf("%w: start month must be within 1..12", ErrInvalidTerms)
	case t.StartYear < 1 || t.StartYear > 65535:
		return fmt.Errorf("%w: start year must be within 1..65535", ErrInvalidTerms)
	}
	return nil
}

// DrawdownPolicy selects how the deposit may be drawn down during the lease.
type DrawdownPolicy string

const (
	// DrawdownOwnerWithholding lets the owner withhold from the deposit at any time.
	DrawdownOwnerWithholding DrawdownPolicy = "owner_withholding"
	// DrawdownSettlementOnly allows withholding only at settlement or termination.
	DrawdownSettlementOnly DrawdownPolicy = "settlement_only"
)

// ParseDrawdownPolicy parses a policy name. Empty selects the default.
func ParseDrawdownPolicy(value string) (DrawdownPolicy, error) {
	switch DrawdownPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", DrawdownOwnerWithholding:
		return DrawdownOwnerWithholding, nil
	case DrawdownSettlementOnly:
		return DrawdownSettlementOnly, nil
	default:
		return "", fmt.Errorf("agreement: unknown drawdown policy %q", value)
	}
}

// Policy holds the configurable behaviour of the state machine.
type Policy struct {
	RefundOnCompletion bool
	Drawdown           DrawdownPolicy
	MaxDuration        uint64
}

// DefaultPolicy returns the default policy.
func DefaultPolicy() Policy {
	return Policy{
		RefundOnCompletion: true,
		Drawdown:           DrawdownOwnerWithholding,
		MaxDuration:        DefaultMaxDuration,
	}
}

// Signers are the addresses that signed an instruction.
type Signers []ledger.Address

// Has reports whether addr signed.
func (s Signers) Has(addr ledger.Address) bool {
	if addr.IsZero() {
		return false
	}
	for _, signer := range s {
		if signer == addr {
			return true
		}
	}
	return false
}

// Transfer is a value movement requested by a transition.
type Transfer struct {
	From   ledger.Address
	To     ledger.Address
	Amount uint64
}
