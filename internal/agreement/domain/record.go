package agreement

import (
	"time"

	ledger "trusted-properties/internal/ledger/domain"
)

// Record is the rent agreement aggregate stored in the slot of its custody account.
type Record struct {
	address ledger.Address
	owner   ledger.Address
	tenant  ledger.Address

	securityDeposit          uint64
	remainingSecurityDeposit uint64
	rentAmount               uint64
	duration                 uint64
	remainingPayments        uint64
	startMonth               uint8
	startYear                uint16
	status                   Status

	createdAt time.Time
	updatedAt time.Time
}

// New validates terms and authorization and returns a record in StatusCreated.
func New(address, owner, tenant ledger.Address, terms Terms, policy Policy, signers Signers, now time.Time) (*Record, error) {
	for _, addr := range []ledger.Address{address, owner, tenant} {
		if err := addr.Validate(); err != nil {
			return nil, ErrInvalidTerms
		}
	}
	if address == owner || address == tenant {
		return nil, ErrInvalidTerms
	}
	if err := terms.Validate(policy.MaxDuration); err != nil {
		return nil, err
	}
	if !signers.Has(owner) {
		return nil, ErrUnauthorized
	}
	return &Record{
		address:                  address,
		owner:                    owner,
		tenant:                   tenant,
		securityDeposit:          terms.SecurityDeposit,
		remainingSecurityDeposit: terms.SecurityDeposit,
		rentAmount:               terms.RentAmount,
		duration:                 terms.Duration,
		remainingPayments:        terms.Duration,
		startMonth:               uint8(terms.StartMonth),
		startYear:                uint16(terms.StartYear),
		status:                   StatusCreated,
		createdAt:                now,
		updatedAt:                now,
	}, nil
}

// Deposit escrows the security deposit from the tenant.
func (r *Record) Deposit(signers Signers, amount uint64, now time.Time) ([]Transfer, error) {
	if err := Guard(InstructionDepositSecurity, r.status); err != nil {
		return nil, err
	}
	if !signers.Has(r.tenant) {
		return nil, ErrUnauthorized
	}
	if amount != r.securityDeposit {
		return nil, ErrIncorrectAmount
	}
	transfers := []Transfer{{From: r.tenant, To: r.address, Amount: amount}}
	r.remainingSecurityDeposit = amount
	return transfers, r.advance(StatusSecurityDeposited, now)
}

// PayRent forwards one period's rent from tenant to owner. A self-leased
// record moves no rent but still counts the period. When the last
// payment lands and the policy refunds on completion, the deposit is returned
// to the tenant in the same step.
func (r *Record) PayRent(signers Signers, policy Policy, now time.Time) ([]Transfer, error) {
	if err := Guard(InstructionPayRent, r.status); err != nil {
		return nil, err
	}
	if !signers.Has(r.tenant) {
		return nil, ErrUnauthorized
	}
	if r.remainingPayments == 0 {
		return nil, ErrNoPaymentsDue
	}
	var transfers []Transfer
	if r.tenant != r.owner {
		transfers = append(transfers, Transfer{From: r.tenant, To: r.owner, Amount: r.rentAmount})
	}
	r.remainingPayments--
	next := StatusActive
	if r.remainingPayments == 0 && policy.RefundOnCompletion {
		if r.remainingSecurityDeposit > 0 {
			transfers = append(transfers, Transfer{From: r.address, To: r.tenant, Amount: r.remainingSecurityDeposit})
		}
		r.remainingSecurityDeposit = 0
		next = StatusCompleted
	}
	return transfers, r.advance(next, now)
}

// Withhold draws amount from the deposit to the owner during the lease.
func (r *Record) Withhold(signers Signers, amount uint64, policy Policy, now time.Time) ([]Transfer, error) {
	if err := Guard(InstructionWithholdDeposit, r.status); err != nil {
		return nil, err
	}
	if policy.Drawdown == DrawdownSettlementOnly {
		return nil, ErrDrawdownDisabled
	}
	if !signers.Has(r.owner) {
		return nil, ErrUnauthorized
	}
	if amount == 0 {
		return nil, ErrIncorrectAmount
	}
	if amount > r.Escrowed() {
		return nil, ErrOverWithdrawal
	}
	transfers := []Transfer{{From: r.address, To: r.owner, Amount: amount}}
	r.remainingSecurityDeposit -= amount
	return transfers, r.advance(r.status, now)
}

// Terminate ends the lease. The owner alone may withhold part of the deposit;
// a plain refund needs both parties. The record ends Completed when every
// payment was made and Terminated otherwise.
func (r *Record) Terminate(signers Signers, withheld uint64, now time.Time) ([]Transfer, error) {
	if err := Guard(InstructionTerminate, r.status); err != nil {
		return nil, err
	}
	if !signers.Has(r.owner) || (withheld == 0 && !signers.Has(r.tenant)) {
		return nil, ErrUnauthorized
	}
	return r.release(withheld, now)
}

// Settle releases the deposit of a fully paid lease. The owner signs.
func (r *Record) Settle(signers Signers, withheld uint64, now time.Time) ([]Transfer, error) {
	if err := Guard(InstructionSettleDeposit, r.status); err != nil {
		return nil, err
	}
	if r.remainingPayments != 0 {
		return nil, ErrWrongStatus
	}
	if !signers.Has(r.owner) {
		return nil, ErrUnauthorized
	}
	return r.release(withheld, now)
}

func (r *Record) release(withheld uint64, now time.Time) ([]Transfer, error) {
	escrowed := r.Escrowed()
	if withheld > escrowed {
		return nil, ErrOverWithdrawal
	}
	var transfers []Transfer
	if withheld > 0 {
		transfers = append(transfers, Transfer{From: r.address, To: r.owner, Amount: withheld})
	}
	if refund := escrowed - withheld; refund > 0 {
		transfers = append(transfers, Transfer{From: r.address, To: r.tenant, Amount: refund})
	}
	r.remainingSecurityDeposit = 0
	next := StatusTerminated
	if r.remainingPayments == 0 {
		next = StatusCompleted
	}
	return transfers, r.advance(next, now)
}

func (r *Record) advance(next Status, now time.Time) error {
	if !r.status.CanAdvanceTo(next) {
		return ErrWrongStatus
	}
	r.status = next
	r.updatedAt = now
	return nil
}

// Escrowed is the amount the custody account must hold.
func (r *Record) Escrowed() uint64 {
	switch r.status {
	case StatusSecurityDeposited, StatusActive:
		return r.remainingSecurityDeposit
	default:
		return 0
	}
}

// Address returns the custody account address.
func (r *Record) Address() ledger.Address { return r.address }

// Owner returns the lessor.
func (r *Record) Owner() ledger.Address { return r.owner }

// Tenant returns the lessee.
func (r *Record) Tenant() ledger.Address { return r.tenant }

// SecurityDeposit returns the agreed deposit.
func (r *Record) SecurityDeposit() uint64 { return r.securityDeposit }

// RemainingSecurityDeposit returns the deposit not yet drawn down or refunded.
func (r *Record) RemainingSecurityDeposit() uint64 { return r.remainingSecurityDeposit }

// RentAmount returns the rent per period.
func (r *Record) RentAmount() uint64 { return r.rentAmount }

// Duration returns the number of payment periods.
func (r *Record) Duration() uint64 { return r.duration }

// RemainingPayments returns the number of unpaid periods.
func (r *Record) RemainingPayments() uint64 { return r.remainingPayments }

// StartMonth returns the first due month.
func (r *Record) StartMonth() time.Month { return time.Month(r.startMonth) }

// StartYear returns the year of the first due month.
func (r *Record) StartYear() int { return int(r.startYear) }

// Status returns the lifecycle status.
func (r *Record) Status() Status { return r.status }

// CreatedAt returns the initialization time.
func (r *Record) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns the time of the last transition.
func (r *Record) UpdatedAt() time.Time { return r.updatedAt }

// Clone returns a detached copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	copy := *r
	return &copy
}

// Snapshot is a read-only view of a record.
type Snapshot struct {
	Address                  ledger.Address `json:"address"`
	Owner                    ledger.Address `json:"owner"`
	Tenant                   ledger.Address `json:"tenant"`
	SecurityDeposit          uint64         `json:"security_deposit"`
	RemainingSecurityDeposit uint64         `json:"remaining_security_deposit"`
	RentAmount               uint64         `json:"rent_amount"`
	Duration                 uint64         `json:"duration"`
	RemainingPayments        uint64         `json:"remaining_payments"`
	StartMonth               int            `json:"start_month"`
	StartYear                int            `json:"start_year"`
	Status                   Status         `json:"status"`
	SchemaVersion            uint8          `json:"schema_version"`
	CreatedAt                time.Time      `json:"created_at"`
	UpdatedAt                time.Time      `json:"updated_at"`
}

// Snapshot returns the exported view of the record.
func (r *Record) Snapshot() Snapshot {
	return Snapshot{
		Address:                  r.address,
		Owner:                    r.owner,
		Tenant:                   r.tenant,
		SecurityDeposit:          r.securityDeposit,
		RemainingSecurityDeposit: r.remainingSecurityDeposit,
		RentAmount:               r.rentAmount,
		Duration:                 r.duration,
		RemainingPayments:        r.remainingPayments,
		StartMonth:               int(r.startMonth),
		StartYear:                int(r.startYear),
		Status:                   r.status,
		SchemaVersion:            SchemaVersion,
		CreatedAt:                r.createdAt,
		UpdatedAt:                r.updatedAt,
	}
}
