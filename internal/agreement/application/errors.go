package application

import "errors"

var (
	// ErrFaucetDisabled is returned by Airdrop when the faucet is off.
	ErrFaucetDisabled = errors.New("agreement service: faucet disabled")
	// ErrCustodyAccount is returned when crediting an account that holds a record.
	ErrCustodyAccount = errors.New("agreement service: account is an agreement custody account")
)
