package ledger

import (
	"strings"
	"unicode"
)

// MaxAddressLen bounds the encoded size of an address.
const MaxAddressLen = 64

// Address identifies a ledger account.
type Address string

// ParseAddress trims and validates an address.
func ParseAddress(value string) (Address, error) {
	value = strings.TrimSpace(value)
	addr := Address(value)
	if err := addr.Validate(); err != nil {
		return "", err
	}
	return addr, nil
}

// Validate checks length and character set.
func (a Address) Validate() error {
	if a == "" || len(a) > MaxAddressLen {
		return ErrInvalidAddress
	}
	for _, r := range string(a) {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' || r == ':') {
			return ErrInvalidAddress
		}
	}
	return nil
}

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool { return a == "" }

func (a Address) String() string { return string(a) }
