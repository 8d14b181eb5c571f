package interfaces

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"trusted-properties/internal/agreement/application/events"
	"trusted-properties/internal/eventing"
)

const eventLogConsumer = "agreement-event-log"

// EventLog writes delivered agreement events to a structured log.
type EventLog struct {
	logger zerolog.Logger
}

// NewEventLog constructs the consumer.
func NewEventLog(logger zerolog.Logger) *EventLog {
	return &EventLog{logger: logger}
}

// Register subscribes the consumer to every agreement event.
func (l *EventLog) Register(sub eventing.Subscriber, store eventing.ProcessedStore) {
	eventing.SubscribeAll(sub, events.All(), eventLogConsumer, l.Handle, store)
}

// Handle logs one event.
func (l *EventLog) Handle(ctx context.Context, event any) error {
	if l == nil {
		return errors.New("event log: nil consumer")
	}
	entry := l.logger.Info()
	if env, ok := eventing.EnvelopeFromContext(ctx); ok {
		entry = entry.Str("event_id", env.EventID).Str("actor", env.Actor)
	}
	switch e := event.(type) {
	case events.AgreementInitialized:
		entry.Str("agreement", e.Agreement).Str("owner", e.Owner).Str("tenant", e.Tenant).
			Uint64("security_deposit", e.SecurityDeposit).Uint64("rent_amount", e.RentAmount).
			Uint64("duration", e.Duration).Msg("agreement initialized")
	case events.SecurityDeposited:
		entry.Str("agreement", e.Agreement).Uint64("amount", e.Amount).Msg("security deposited")
	case events.RentPaid:
		entry.Str("agreement", e.Agreement).Uint64("amount", e.Amount).
			Uint64("remaining_payments", e.RemainingPayments).Str("status", e.Status).Msg("rent paid")
	case events.DepositWithheld:
		entry.Str("agreement", e.Agreement).Uint64("amount", e.Amount).
			Uint64("remaining_security_deposit", e.RemainingSecurityDeposit).Msg("deposit withheld")
	case events.AgreementSettled:
		entry.Str("agreement", e.Agreement).Str("instruction", e.Instruction).
			Uint64("withheld", e.Withheld).Uint64("refunded", e.Refunded).Str("status", e.Status).Msg("agreement settled")
	default:
		entry.Str("event_type", eventing.EventType(event)).Msg("unhandled agreement event")
	}
	return nil
}
