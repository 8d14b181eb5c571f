package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trusted-properties/internal/agreement/application"
	"trusted-properties/internal/agreement/application/events"
	agreement "trusted-properties/internal/agreement/domain"
	ledger "trusted-properties/internal/ledger/domain"
	"trusted-properties/internal/ledger/infrastructure/memory"
)

const (
	agreementAddr ledger.Address = "agreement-1"
	ownerAddr     ledger.Address = "owner"
	tenantAddr    ledger.Address = "tenant"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, event any) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

type fixture struct {
	ctx       context.Context
	ledger    *memory.Ledger
	service   *application.Service
	publisher *recordingPublisher
}

func newFixture(t *testing.T, opts ...application.Option) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background(), ledger: memory.NewLedger(), publisher: &recordingPublisher{}}
	base := []application.Option{
		application.WithPublisher(f.publisher),
		application.WithClock(fixedClock{now: time.Date(2021, 10, 1, 0, 0, 0, 0, time.UTC)}),
		application.WithFaucet(true),
	}
	service, err := application.NewService(f.ledger, append(base, opts...)...)
	require.NoError(t, err)
	f.service = service
	return f
}

func (f *fixture) fund(t *testing.T, addr ledger.Address, amount uint64) {
	t.Helper()
	_, err := f.service.Airdrop(f.ctx, addr, amount)
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, addr ledger.Address) uint64 {
	t.Helper()
	balance, err := f.service.Balance(f.ctx, addr)
	require.NoError(t, err)
	return balance
}

func (f *fixture) initialize(t *testing.T, terms agreement.Terms) agreement.Snapshot {
	t.Helper()
	snapshot, err := f.service.Initialize(f.ctx, application.InitializeCommand{
		Agreement: agreementAddr,
		Owner:     ownerAddr,
		Tenant:    tenantAddr,
		Terms:     terms,
		Signers:   agreement.Signers{ownerAddr},
	})
	require.NoError(t, err)
	return snapshot
}

func sampleTerms() agreement.Terms {
	return agreement.Terms{SecurityDeposit: 1000, RentAmount: 500, Duration: 2, StartMonth: 10, StartYear: 2021}
}

func TestService_EndToEndDeposit(t *testing.T) {
	f := newFixture(t)
	f.fund(t, tenantAddr, 5000)

	f.initialize(t, sampleTerms())
	view, err := f.service.Get(f.ctx, agreementAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), view.Record.SecurityDeposit)
	require.Equal(t, uint64(2), view.Record.Duration)
	require.Equal(t, uint64(2), view.Record.RemainingPayments)
	require.Equal(t, agreement.StatusCreated, view.Record.Status)
	require.Zero(t, view.Held)

	snapshot, err := f.service.DepositSecurity(f.ctx, agreementAddr, 1000, agreement.Signers{tenantAddr})
	require.NoError(t, err)
	require.Equal(t, agreement.StatusSecurityDeposited, snapshot.Status)

	view, err = f.service.Get(f.ctx, agreementAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), view.Held)
	require.Equal(t, uint64(4000), f.balance(t, tenantAddr))
	require.Len(t, view.Schedule, 2)
}

func TestService_DoubleDepositRejected(t *testing.T) {
	f := newFixture(t)
	f.fund(t, tenantAddr, 5000)
	f.initialize(t, sampleTerms())

	_, err := f.service.DepositSecurity(f.ctx, agreementAddr, 1000, agreement.Signers{tenantAddr})
	require.NoError(t, err)

	_, err = f.service.DepositSecurity(f.ctx, agreementAddr, 1000, agreement.Signers{tenantAddr})
	require.ErrorIs(t, err, agreement.ErrWrongStatus)
	require.Equal(t, uint64(4000), f.balance(t, tenantAddr))
	require.Equal(t, uint64(1000), f.balance(t, agreementAddr))
}

func TestService_DepositRequiresTenant(t *testing.T) {
	f := newFixture(t)
	f.fund(t, ownerAddr, 5000)
	f.fund(t, tenantAddr, 5000)
	f.initialize(t, sampleTerms())

	_, err := f.service.DepositSecurity(f.ctx, agreementAddr, 1000, agreement.Signers{ownerAddr})
	require.ErrorIs(t, err, agreement.ErrUnauthorized)

	_, err = f.service.DepositSecurity(f.ctx, agreementAddr, 900, agreement.Signers{tenantAddr})
	require.ErrorIs(t, err, agreement.ErrIncorrectAmount)

	view, err := f.service.Get(f.ctx, agreementAddr)
	require.NoError(t, err)
	require.Equal(t, agreement.StatusCreated, view.Record.Status)
	require.Zero(t, view.Held)
	require.Equal(t, uint64(5000), f.balance(t, ownerAddr))
	require.Equal(t, uint64(5000), f.balance(t, tenantAddr))
}

func TestService_InsufficientFundsRollsBack(t *testing.T) {
	f := newFixture(t)
	f.fund(t, tenantAddr, 999)
	f.initialize(t, sampleTerms())

	_, err := f.service.DepositSecurity(f.ctx, agreementAddr, 1000, agreement.Signers{tenantAddr})
	require.ErrorIs(t, err, agreement.ErrInsufficientFunds)
	require.Equal(t, agreement.CodeInsufficientFunds, agreement.Code(err))

	view, err := f.service.Get(f.ctx, agreementAddr)
	require.NoError(t, err)
	require.Equal(t, agreement.StatusCreated, view.Record.Status)
	require.Equal(t, uint64(999), f.balance(t, tenantAddr))
}

func TestService_RentToCompletion(t *testing.T) {
	f := newFixture(t)
	f.fund(t, tenantAddr, 5000)
	f.initialize(t, sampleTerms())
	_, err := f.service.DepositSecurity(f.ctx, agreementAddr, 1000, agreement.Signers{tenantAddr})
	require.NoError(t, err)

	snapshot, err := f.service.PayRent(f.ctx, agreementAddr, agreement.Signers{tenantAddr})
	require.NoError(t, err)
	require.Equal(t, agreement.StatusActive, snapshot.Status)

	snapshot, err = f.service.PayRent(f.ctx, agreementAddr, agreement.Signers{tenantAddr})
	require.NoError(t, err)
	require.Equal(t, agreement.StatusCompleted, snapshot.Status)
	require.Zero(t, snapshot.RemainingPayments)

	require.Equal(t, uint64(1000), f.balance(t, ownerAddr))
	require.Equal(t, uint64(4000), f.balance(t, tenantAddr))
	require.Zero(t, f.balance(t, agreementAddr))
	require.Equal(t, uint64(5000), f.ledger.TotalSupply())

	_, err = f.service.PayRent(f.ctx, agreementAddr, agreement.Signers{tenantAddr})
	require.ErrorIs(t, err, agreement.ErrWrongStatus)

	require.Len(t, f.publisher.events, 5)
	require.IsType(t, events.AgreementInitialized{}, f.publisher.events[0])
	require.IsType(t, events.SecurityDeposited{}, f.publisher.events[1])
	require.IsType(t, events.RentPaid{}, f.publisher.events[2])
	require.IsType(t, events.RentPaid{}, f.publisher.events[3])
	settled := f.publisher.events[4].(events.AgreementSettled)
	require.Equal(t, uint64(1000), settled.Refunded)
	require.Zero(t, settled.Withheld)
	require.Equal(t, "completed", settled.Status)
}

func TestService_SettleWithoutRefundOnCompletion(t *testing.T) {
	policy := agreement.DefaultPolicy()
	policy.RefundOnCompletion = false
	f := newFixture(t, application.WithPolicy(policy))
	f.fund(t, tenantAddr, 5000)
	f.initialize(t, sampleTerms())
	_, err := f.service.DepositSecurity(f.ctx, agreementAddr, 1000, agreement.Signers{tenantAddr})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = f.service.PayRent(f.ctx, agreementAddr, agreement.Signers{tenantAddr})
		require.NoError(t, err)
	}
	require.Equal(t, uint64(1000), f.balance(t, agreementAddr))

	_, err = f.service.PayRent(f.ctx, agreementAddr, agreement.Signers{tenantAddr})
	require.ErrorIs(t, err, agreement.ErrNoPaymentsDue)

	snapshot, err := f.service.SettleDeposit(f.ctx, agreementAddr, 250, agreement.Signers{ownerAddr})
	require.NoError(t, err)
	require.Equal(t, agreement.StatusCompleted, snapshot.Status)
	require.Equal(t, uint64(1250), f.balance(t, ownerAddr))
	require.Equal(t, uint64(3750), f.balance(t, tenantAddr))
	require.Zero(t, f.balance(t, agreementAddr))
}

func TestService_TerminateWithholding(t *testing.T) {
	f := newFixture(t)
	f.fund(t, tenantAddr, 5000)
	f.initialize(t, sampleTerms())
	_, err := f.service.DepositSecurity(f.ctx, agreementAddr, 1000, agreement.Signers{tenantAddr})
	require.NoError(t, err)
	_, err = f.service.WithholdDeposit(f.ctx, agreementAddr, 200, agreement.Signers{ownerAddr})
	require.NoError(t, err)

	_, err = f.service.Terminate(f.ctx, agreementAddr, 801, agreement.Signers{ownerAddr})
	require.ErrorIs(t, err, agreement.ErrOverWithdrawal)
	require.Equal(t, uint64(800), f.balance(t, agreementAddr))
	require.Equal(t, uint64(200), f.balance(t, ownerAddr))

	snapshot, err := f.service.Terminate(f.ctx, agreementAddr, 300, agreement.Signers{ownerAddr})
	require.NoError(t, err)
	require.Equal(t, agreement.StatusTerminated, snapshot.Status)
	require.Zero(t, snapshot.RemainingSecurityDeposit)
	require.Equal(t, uint64(500), f.balance(t, ownerAddr))
	require.Equal(t, uint64(4500), f.balance(t, tenantAddr))
	require.Zero(t, f.balance(t, agreementAddr))
}

func TestService_InitializeErrors(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, sampleTerms())

	_, err := f.service.Initialize(f.ctx, application.InitializeCommand{
		Agreement: agreementAddr, Owner: ownerAddr, Tenant: tenantAddr,
		Terms: sampleTerms(), Signers: agreement.Signers{ownerAddr},
	})
	require.ErrorIs(t, err, agreement.ErrAlreadyInitialized)

	bad := sampleTerms()
	bad.Duration = 0
	_, err = f.service.Initialize(f.ctx, application.InitializeCommand{
		Owner: ownerAddr, Tenant: tenantAddr, Terms: bad, Signers: agreement.Signers{ownerAddr},
	})
	require.ErrorIs(t, err, agreement.ErrInvalidTerms)

	f.fund(t, "prefunded", 1)
	_, err = f.service.Initialize(f.ctx, application.InitializeCommand{
		Agreement: "prefunded", Owner: ownerAddr, Tenant: tenantAddr,
		Terms: sampleTerms(), Signers: agreement.Signers{ownerAddr},
	})
	require.ErrorIs(t, err, agreement.ErrInvalidTerms)

	generated, err := f.service.Initialize(f.ctx, application.InitializeCommand{
		Owner: ownerAddr, Tenant: tenantAddr, Terms: sampleTerms(), Signers: agreement.Signers{ownerAddr},
	})
	require.NoError(t, err)
	require.NotEqual(t, agreementAddr, generated.Address)
	require.NoError(t, generated.Address.Validate())
}

func TestService_ReadsAndFaucet(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Get(f.ctx, "missing")
	require.ErrorIs(t, err, agreement.ErrNotFound)

	f.initialize(t, sampleTerms())
	_, err = f.service.Airdrop(f.ctx, agreementAddr, 10)
	require.ErrorIs(t, err, application.ErrCustodyAccount)

	disabled := newFixture(t, application.WithFaucet(false))
	_, err = disabled.service.Airdrop(disabled.ctx, tenantAddr, 10)
	require.ErrorIs(t, err, application.ErrFaucetDisabled)
}

func TestService_SelfLeaseReachesCompletion(t *testing.T) {
	f := newFixture(t)
	f.fund(t, ownerAddr, 3000)

	_, err := f.service.Initialize(f.ctx, application.InitializeCommand{
		Agreement: agreementAddr, Owner: ownerAddr, Tenant: ownerAddr,
		Terms: sampleTerms(), Signers: agreement.Signers{ownerAddr},
	})
	require.NoError(t, err)
	_, err = f.service.DepositSecurity(f.ctx, agreementAddr, 1000, agreement.Signers{ownerAddr})
	require.NoError(t, err)

	var snapshot agreement.Snapshot
	for i := 0; i < 2; i++ {
		snapshot, err = f.service.PayRent(f.ctx, agreementAddr, agreement.Signers{ownerAddr})
		require.NoError(t, err)
	}
	require.Equal(t, agreement.StatusCompleted, snapshot.Status)
	require.Zero(t, snapshot.RemainingPayments)
	require.Equal(t, uint64(3000), f.balance(t, ownerAddr))
	require.Zero(t, f.balance(t, agreementAddr))

	rent := f.publisher.events[2].(events.RentPaid)
	require.Zero(t, rent.Amount)
	settled := f.publisher.events[len(f.publisher.events)-1].(events.AgreementSettled)
	require.Equal(t, uint64(1000), settled.Refunded)
	require.Zero(t, settled.Withheld)
}

// racingLedger reports an empty slot and then loses the allocation, the way
// a concurrent Initialize on PostgreSQL does.
type racingLedger struct{}

func (racingLedger) Atomically(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return fn(racingTx{})
}

func (racingLedger) View(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return fn(racingTx{})
}

type racingTx struct{}

func (racingTx) Balance(context.Context, ledger.Address) (uint64, error) { return 0, nil }
func (racingTx) Transfer(context.Context, ledger.Address, ledger.Address, uint64) error {
	return nil
}
func (racingTx) Credit(context.Context, ledger.Address, uint64) error { return nil }
func (racingTx) Slot(context.Context, ledger.Address) (*ledger.Slot, error) {
	return nil, nil
}
func (racingTx) Allocate(context.Context, ledger.Address, string, []byte) error {
	return ledger.ErrSlotOccupied
}
func (racingTx) Write(context.Context, ledger.Address, string, []byte) error { return nil }

func TestService_InitializeLostAllocationIsAlreadyInitialized(t *testing.T) {
	service, err := application.NewService(racingLedger{})
	require.NoError(t, err)

	_, err = service.Initialize(context.Background(), application.InitializeCommand{
		Agreement: agreementAddr, Owner: ownerAddr, Tenant: tenantAddr,
		Terms: sampleTerms(), Signers: agreement.Signers{ownerAddr},
	})
	require.ErrorIs(t, err, agreement.ErrAlreadyInitialized)
	require.Equal(t, agreement.CodeAlreadyInitialized, agreement.Code(err))
}
