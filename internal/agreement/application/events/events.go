package events

import "time"

// AgreementInitialized is emitted when a record is allocated.
type AgreementInitialized struct {
	Agreement       string    `json:"agreement"`
	Owner           string    `json:"owner"`
	Tenant          string    `json:"tenant"`
	SecurityDeposit uint64    `json:"security_deposit"`
	RentAmount      uint64    `json:"rent_amount"`
	Duration        uint64    `json:"duration"`
	StartMonth      int       `json:"start_month"`
	StartYear       int       `json:"start_year"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// SecurityDeposited is emitted when the tenant escrows the deposit.
type SecurityDeposited struct {
	Agreement  string    `json:"agreement"`
	Tenant     string    `json:"tenant"`
	Amount     uint64    `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RentPaid is emitted for every accepted rent payment.
type RentPaid struct {
	Agreement         string    `json:"agreement"`
	Tenant            string    `json:"tenant"`
	Owner             string    `json:"owner"`
	Amount            uint64    `json:"amount"`
	RemainingPayments uint64    `json:"remaining_payments"`
	Status            string    `json:"status"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// DepositWithheld is emitted when the owner draws from the deposit during the lease.
type DepositWithheld struct {
	Agreement                string    `json:"agreement"`
	Owner                    string    `json:"owner"`
	Amount                   uint64    `json:"amount"`
	RemainingSecurityDeposit uint64    `json:"remaining_security_deposit"`
	OccurredAt               time.Time `json:"occurred_at"`
}

// AgreementSettled is emitted when a record reaches Completed or Terminated.
type AgreementSettled struct {
	Agreement   string    `json:"agreement"`
	Instruction string    `json:"instruction"`
	Withheld    uint64    `json:"withheld"`
	Refunded    uint64    `json:"refunded"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// All returns one sample of every event type, for registries.
func All() []any {
	return []any{
		AgreementInitialized{},
		SecurityDeposited{},
		RentPaid{},
		DepositWithheld{},
		AgreementSettled{},
	}
}
