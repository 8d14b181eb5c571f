package eventing

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"trusted-properties/internal/observability/metrics"
)

// OutboxWriter inserts outbox records.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// Subscriber registers handlers.
type Subscriber interface {
	Subscribe(eventType string, handler EventHandler)
}

// Publisher stages events in the outbox and pushes the newest one through
// the dispatcher right away. Records left pending are picked up by
// Dispatcher.Run.
type Publisher struct {
	outbox   OutboxWriter
	dispatch *Dispatcher
	sub      Subscriber
	registry *Registry
	logger   zerolog.Logger
}

// PublisherOption configures the publisher.
type PublisherOption func(*Publisher)

// WithRegistry rejects events the registry cannot decode, so the dispatcher
// never dead-letters them later.
func WithRegistry(registry *Registry) PublisherOption {
	return func(p *Publisher) { p.registry = registry }
}

// WithPublisherLogger sets the logger for inline dispatch failures.
func WithPublisherLogger(logger zerolog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

// NewPublisher constructs a publisher.
func NewPublisher(outbox OutboxWriter, dispatch *Dispatcher, sub Subscriber, opts ...PublisherOption) *Publisher {
	p := &Publisher{outbox: outbox, dispatch: dispatch, sub: sub, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish writes the event to the outbox and triggers dispatch. A failed
// inline dispatch leaves the record pending and is only logged.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	if p == nil || p.outbox == nil {
		return nil
	}
	start := time.Now()
	if p.registry != nil && !p.registry.Known(EventType(event)) {
		metrics.ObserveOutboxPublish(metrics.ResultError, time.Since(start))
		return ErrUnknownEventType
	}
	env, err := BuildEnvelope(event, MetaFromContext(ctx))
	if err != nil {
		metrics.ObserveOutboxPublish(metrics.ResultError, time.Since(start))
		return err
	}
	id, err := p.outbox.Insert(ctx, env)
	if err != nil {
		metrics.ObserveOutboxPublish(metrics.ResultError, time.Since(start))
		return err
	}
	metrics.ObserveOutboxPublish(metrics.ResultSuccess, time.Since(start))
	if p.dispatch != nil {
		if err := p.dispatch.Dispatch(ctx, 1); err != nil {
			p.logger.Warn().Err(err).
				Str("outbox_id", id).
				Str("event_type", env.EventType).
				Str("aggregate_id", env.AggregateID).
				Msg("inline dispatch failed")
		}
	}
	return nil
}

// Subscribe delegates to the underlying subscriber when available.
func (p *Publisher) Subscribe(eventType string, handler EventHandler) {
	if p == nil || p.sub == nil {
		return
	}
	p.sub.Subscribe(eventType, handler)
}
