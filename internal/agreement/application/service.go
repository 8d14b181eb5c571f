package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	agreement "trusted-properties/internal/agreement/domain"
	"trusted-properties/internal/agreement/application/events"
	ledger "trusted-properties/internal/ledger/domain"
	"trusted-properties/internal/observability/metrics"
)

// Publisher emits domain events after commit.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// InitializeCommand carries the parameters of InitializeRentContract.
// Agreement is generated when empty.
type InitializeCommand struct {
	Agreement ledger.Address
	Owner     ledger.Address
	Tenant    ledger.Address
	Terms     agreement.Terms
	Signers   agreement.Signers
}

// View is a record read together with its custody balance.
type View struct {
	Record   agreement.Snapshot `json:"record"`
	Held     uint64             `json:"held_balance"`
	Schedule []agreement.Due    `json:"schedule"`
}

// Service runs agreement instructions against a ledger. Each instruction is
// one ledger unit of work: load, guard, transfer, mutate, write, commit.
type Service struct {
	ledger     ledger.Ledger
	publisher  Publisher
	clock      Clock
	policy     agreement.Policy
	logger     zerolog.Logger
	faucet     bool
	newAddress func() ledger.Address
}

// Option configures the service.
type Option func(*Service)

// WithPublisher sets the event publisher.
func WithPublisher(publisher Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// WithClock sets the clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPolicy sets the state machine policy.
func WithPolicy(policy agreement.Policy) Option {
	return func(s *Service) { s.policy = policy }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithFaucet enables Airdrop.
func WithFaucet(enabled bool) Option {
	return func(s *Service) { s.faucet = enabled }
}

// WithAddressGenerator overrides generation of agreement addresses.
func WithAddressGenerator(fn func() ledger.Address) Option {
	return func(s *Service) {
		if fn != nil {
			s.newAddress = fn
		}
	}
}

// NewService constructs the service.
func NewService(l ledger.Ledger, opts ...Option) (*Service, error) {
	if l == nil {
		return nil, errors.New("agreement service: nil ledger")
	}
	s := &Service{
		ledger: l,
		clock:  SystemClock{},
		policy: agreement.DefaultPolicy(),
		logger: zerolog.Nop(),
		newAddress: func() ledger.Address {
			return ledger.Address("agr-" + uuid.NewString())
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Policy returns the configured policy.
func (s *Service) Policy() agreement.Policy { return s.policy }

// Initialize allocates a new agreement record. No funds move.
func (s *Service) Initialize(ctx context.Context, cmd InitializeCommand) (snapshot agreement.Snapshot, err error) {
	start := time.Now()
	address := cmd.Agreement
	if address.IsZero() {
		address = s.newAddress()
	}
	defer func() { s.observe(agreement.InstructionInitialize, address, start, err) }()

	now := s.clock.Now()
	var record *agreement.Record
	err = s.ledger.Atomically(ctx, func(tx ledger.Tx) error {
		slot, err := tx.Slot(ctx, address)
		if err != nil {
			return err
		}
		if slot != nil {
			return agreement.ErrAlreadyInitialized
		}
		held, err := tx.Balance(ctx, address)
		if err != nil {
			return err
		}
		if held != 0 {
			return agreement.ErrInvalidTerms
		}
		record, err = agreement.New(address, cmd.Owner, cmd.Tenant, cmd.Terms, s.policy, cmd.Signers, now)
		if err != nil {
			return err
		}
		// A concurrent Initialize can win the allocation after our Slot read.
		if err := tx.Allocate(ctx, address, agreement.ProgramID, agreement.Encode(record)); err != nil {
			if errors.Is(err, ledger.ErrSlotOccupied) {
				return agreement.ErrAlreadyInitialized
			}
			return err
		}
		return nil
	})
	if err != nil {
		return agreement.Snapshot{}, err
	}

	metrics.IncTransition(record.Status().String())
	snapshot = record.Snapshot()
	s.publish(ctx, events.AgreementInitialized{
		Agreement:       string(address),
		Owner:           string(snapshot.Owner),
		Tenant:          string(snapshot.Tenant),
		SecurityDeposit: snapshot.SecurityDeposit,
		RentAmount:      snapshot.RentAmount,
		Duration:        snapshot.Duration,
		StartMonth:      snapshot.StartMonth,
		StartYear:       snapshot.StartYear,
		OccurredAt:      now,
	})
	return snapshot, nil
}

// DepositSecurity escrows the deposit from the tenant into custody.
func (s *Service) DepositSecurity(ctx context.Context, address ledger.Address, amount uint64, signers agreement.Signers) (agreement.Snapshot, error) {
	snapshot, _, err := s.apply(ctx, agreement.InstructionDepositSecurity, address, func(r *agreement.Record, now time.Time) ([]agreement.Transfer, error) {
		return r.Deposit(signers, amount, now)
	})
	if err != nil {
		return agreement.Snapshot{}, err
	}
	s.publish(ctx, events.SecurityDeposited{
		Agreement:  string(address),
		Tenant:     string(snapshot.Tenant),
		Amount:     amount,
		OccurredAt: snapshot.UpdatedAt,
	})
	return snapshot, nil
}

// PayRent forwards one period's rent from tenant to owner.
func (s *Service) PayRent(ctx context.Context, address ledger.Address, signers agreement.Signers) (agreement.Snapshot, error) {
	snapshot, transfers, err := s.apply(ctx, agreement.InstructionPayRent, address, func(r *agreement.Record, now time.Time) ([]agreement.Transfer, error) {
		return r.PayRent(signers, s.policy, now)
	})
	if err != nil {
		return agreement.Snapshot{}, err
	}
	s.publish(ctx, events.RentPaid{
		Agreement:         string(address),
		Tenant:            string(snapshot.Tenant),
		Owner:             string(snapshot.Owner),
		Amount:            rentMoved(transfers, snapshot),
		RemainingPayments: snapshot.RemainingPayments,
		Status:            snapshot.Status.String(),
		OccurredAt:        snapshot.UpdatedAt,
	})
	if snapshot.Status.IsTerminal() {
		s.publishSettled(ctx, agreement.InstructionPayRent, snapshot, transfers, 0)
	}
	return snapshot, nil
}

// WithholdDeposit draws amount from the deposit to the owner.
func (s *Service) WithholdDeposit(ctx context.Context, address ledger.Address, amount uint64, signers agreement.Signers) (agreement.Snapshot, error) {
	snapshot, _, err := s.apply(ctx, agreement.InstructionWithholdDeposit, address, func(r *agreement.Record, now time.Time) ([]agreement.Transfer, error) {
		return r.Withhold(signers, amount, s.policy, now)
	})
	if err != nil {
		return agreement.Snapshot{}, err
	}
	s.publish(ctx, events.DepositWithheld{
		Agreement:                string(address),
		Owner:                    string(snapshot.Owner),
		Amount:                   amount,
		RemainingSecurityDeposit: snapshot.RemainingSecurityDeposit,
		OccurredAt:               snapshot.UpdatedAt,
	})
	return snapshot, nil
}

// Terminate ends the lease, paying withheld to the owner and the rest to the tenant.
func (s *Service) Terminate(ctx context.Context, address ledger.Address, withheld uint64, signers agreement.Signers) (agreement.Snapshot, error) {
	snapshot, transfers, err := s.apply(ctx, agreement.InstructionTerminate, address, func(r *agreement.Record, now time.Time) ([]agreement.Transfer, error) {
		return r.Terminate(signers, withheld, now)
	})
	if err != nil {
		return agreement.Snapshot{}, err
	}
	s.publishSettled(ctx, agreement.InstructionTerminate, snapshot, transfers, withheld)
	return snapshot, nil
}

// SettleDeposit releases the deposit of a fully paid lease.
func (s *Service) SettleDeposit(ctx context.Context, address ledger.Address, withheld uint64, signers agreement.Signers) (agreement.Snapshot, error) {
	snapshot, transfers, err := s.apply(ctx, agreement.InstructionSettleDeposit, address, func(r *agreement.Record, now time.Time) ([]agreement.Transfer, error) {
		return r.Settle(signers, withheld, now)
	})
	if err != nil {
		return agreement.Snapshot{}, err
	}
	s.publishSettled(ctx, agreement.InstructionSettleDeposit, snapshot, transfers, withheld)
	return snapshot, nil
}

// Get returns a record with its held balance and due schedule.
func (s *Service) Get(ctx context.Context, address ledger.Address) (View, error) {
	var view View
	err := s.ledger.View(ctx, func(tx ledger.Tx) error {
		record, err := load(ctx, tx, address)
		if err != nil {
			return err
		}
		held, err := tx.Balance(ctx, address)
		if err != nil {
			return err
		}
		view = View{Record: record.Snapshot(), Held: held, Schedule: record.Schedule()}
		return nil
	})
	return view, err
}

// Balance returns the balance of any account.
func (s *Service) Balance(ctx context.Context, address ledger.Address) (uint64, error) {
	var balance uint64
	err := s.ledger.View(ctx, func(tx ledger.Tx) error {
		var err error
		balance, err = tx.Balance(ctx, address)
		return err
	})
	return balance, err
}

// Airdrop credits amount to an account when the faucet is enabled.
func (s *Service) Airdrop(ctx context.Context, address ledger.Address, amount uint64) (uint64, error) {
	if !s.faucet {
		return 0, ErrFaucetDisabled
	}
	var balance uint64
	err := s.ledger.Atomically(ctx, func(tx ledger.Tx) error {
		slot, err := tx.Slot(ctx, address)
		if err != nil {
			return err
		}
		if slot != nil {
			return ErrCustodyAccount
		}
		if err := tx.Credit(ctx, address, amount); err != nil {
			return err
		}
		balance, err = tx.Balance(ctx, address)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("account", string(address)).Uint64("amount", amount).Msg("airdrop")
	return balance, nil
}

type transition func(r *agreement.Record, now time.Time) ([]agreement.Transfer, error)

// apply runs a transition in one unit of work. Transfers execute before the
// record is written; the custody balance must equal the escrowed amount
// afterwards or the whole unit rolls back.
func (s *Service) apply(ctx context.Context, instruction agreement.Instruction, address ledger.Address, fn transition) (snapshot agreement.Snapshot, transfers []agreement.Transfer, err error) {
	start := time.Now()
	defer func() { s.observe(instruction, address, start, err) }()

	now := s.clock.Now()
	var record *agreement.Record
	var before agreement.Snapshot
	err = s.ledger.Atomically(ctx, func(tx ledger.Tx) error {
		var err error
		record, err = load(ctx, tx, address)
		if err != nil {
			return err
		}
		before = record.Snapshot()
		transfers, err = fn(record, now)
		if err != nil {
			return err
		}
		for _, t := range transfers {
			if err := tx.Transfer(ctx, t.From, t.To, t.Amount); err != nil {
				return err
			}
		}
		held, err := tx.Balance(ctx, address)
		if err != nil {
			return err
		}
		if held != record.Escrowed() {
			return agreement.ErrCustodyMismatch
		}
		return tx.Write(ctx, address, agreement.ProgramID, agreement.Encode(record))
	})
	if err != nil {
		return agreement.Snapshot{}, nil, err
	}

	snapshot = record.Snapshot()
	if snapshot.Status != before.Status {
		metrics.IncTransition(snapshot.Status.String())
	}
	escrowDelta := float64(snapshot.RemainingSecurityDeposit) - float64(before.RemainingSecurityDeposit)
	if before.Status == agreement.StatusCreated {
		escrowDelta = float64(record.Escrowed())
	}
	metrics.AddEscrowHeld(escrowDelta)
	for _, t := range transfers {
		metrics.AddFundsMoved(transferKind(t, snapshot), t.Amount)
	}
	return snapshot, transfers, nil
}

func load(ctx context.Context, tx ledger.Tx, address ledger.Address) (*agreement.Record, error) {
	if err := address.Validate(); err != nil {
		return nil, err
	}
	slot, err := tx.Slot(ctx, address)
	if err != nil {
		return nil, err
	}
	if slot == nil || slot.Program != agreement.ProgramID {
		return nil, agreement.ErrNotFound
	}
	return agreement.Decode(address, slot.Data)
}

func transferKind(t agreement.Transfer, snapshot agreement.Snapshot) string {
	switch {
	case t.To == snapshot.Address:
		return "deposit"
	case t.From == snapshot.Tenant:
		return "rent"
	case t.To == snapshot.Owner:
		return "withheld"
	default:
		return "refund"
	}
}

// publishSettled splits the custody release by the withheld amount rather
// than by destination, since owner and tenant may share an account.
func (s *Service) publishSettled(ctx context.Context, instruction agreement.Instruction, snapshot agreement.Snapshot, transfers []agreement.Transfer, withheld uint64) {
	var released uint64
	for _, t := range transfers {
		if t.From == snapshot.Address {
			released += t.Amount
		}
	}
	if withheld > released {
		withheld = released
	}
	s.publish(ctx, events.AgreementSettled{
		Agreement:   string(snapshot.Address),
		Instruction: string(instruction),
		Withheld:    withheld,
		Refunded:    released - withheld,
		Status:      snapshot.Status.String(),
		OccurredAt:  snapshot.UpdatedAt,
	})
}

func rentMoved(transfers []agreement.Transfer, snapshot agreement.Snapshot) uint64 {
	var amount uint64
	for _, t := range transfers {
		if t.From == snapshot.Tenant && t.To == snapshot.Owner {
			amount += t.Amount
		}
	}
	return amount
}

func (s *Service) publish(ctx context.Context, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error().Err(err).Msg("publish agreement event")
	}
}

func (s *Service) observe(instruction agreement.Instruction, address ledger.Address, start time.Time, err error) {
	code := agreement.Code(err)
	metrics.ObserveInstruction(string(instruction), code, time.Since(start))
	event := s.logger.Info()
	if err != nil {
		event = s.logger.Warn().Err(err)
	}
	event.Str("instruction", string(instruction)).
		Str("agreement", string(address)).
		Str("code", code).
		Dur("took", time.Since(start)).
		Msg("instruction processed")
}
