package agreement

import (
	"errors"

	ledger "trusted-properties/internal/ledger/domain"
)

var (
	// ErrInvalidTerms is returned when initialization parameters are malformed.
	ErrInvalidTerms = errors.New("agreement: invalid terms")
	// ErrAlreadyInitialized is returned when the agreement account already holds a record.
	ErrAlreadyInitialized = errors.New("agreement: already initialized")
	// ErrWrongStatus is returned when an instruction is not allowed from the current status.
	ErrWrongStatus = errors.New("agreement: wrong status")
	// ErrUnauthorized is returned when a required party did not sign.
	ErrUnauthorized = errors.New("agreement: unauthorized")
	// ErrInsufficientFunds is surfaced from the transfer primitive.
	ErrInsufficientFunds = ledger.ErrInsufficientFunds
	// ErrOverWithdrawal is returned when withholding exceeds the escrowed deposit.
	ErrOverWithdrawal = errors.New("agreement: withholding exceeds remaining deposit")
	// ErrNoPaymentsDue is returned when rent is paid on a fully paid lease.
	ErrNoPaymentsDue = errors.New("agreement: no payments due")
	// ErrIncorrectAmount is returned when a deposit or withholding amount is not acceptable.
	ErrIncorrectAmount = errors.New("agreement: incorrect amount")
	// ErrDrawdownDisabled is returned when withholding is disabled by policy.
	ErrDrawdownDisabled = errors.New("agreement: deposit drawdown disabled")
	// ErrNotFound is returned when no record exists at an address.
	ErrNotFound = errors.New("agreement: not found")
	// ErrUnsupportedSchema is returned when a stored record carries an unknown version.
	ErrUnsupportedSchema = errors.New("agreement: unsupported schema version")
	// ErrCorruptRecord is returned when stored record data cannot be decoded.
	ErrCorruptRecord = errors.New("agreement: corrupt record")
	// ErrCustodyMismatch is returned when the custody balance diverges from the escrowed deposit.
	ErrCustodyMismatch = errors.New("agreement: custody balance mismatch")
)

// Error codes reported to callers.
const (
	CodeInvalidTerms       = "invalid_terms"
	CodeAlreadyInitialized = "already_initialized"
	CodeWrongStatus        = "wrong_status"
	CodeUnauthorized       = "unauthorized"
	CodeInsufficientFunds  = "insufficient_funds"
	CodeOverWithdrawal     = "over_withdrawal"
	CodeNoPaymentsDue      = "no_payments_due"
	CodeIncorrectAmount    = "incorrect_amount"
	CodeDrawdownDisabled   = "drawdown_disabled"
	CodeNotFound           = "not_found"
	CodeInvalidAddress     = "invalid_address"
	CodeInternal           = "internal"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidTerms, CodeInvalidTerms},
	{ErrAlreadyInitialized, CodeAlreadyInitialized},
	{ErrWrongStatus, CodeWrongStatus},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrOverWithdrawal, CodeOverWithdrawal},
	{ErrNoPaymentsDue, CodeNoPaymentsDue},
	{ErrIncorrectAmount, CodeIncorrectAmount},
	{ErrDrawdownDisabled, CodeDrawdownDisabled},
	{ErrNotFound, CodeNotFound},
	{ledger.ErrInvalidAddress, CodeInvalidAddress},
}

// Code maps an error to a stable code. Unknown errors map to CodeInternal
// and nil maps to "ok".
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
