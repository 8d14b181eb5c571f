package interfaces

import (
	"context"

	"trusted-properties/internal/eventing"
)

// OutboxPublisher writes agreement events to the outbox.
type OutboxPublisher struct {
	publisher *eventing.Publisher
	source    string
}

// NewOutboxPublisher constructs an outbox publisher. Source is used as the
// envelope actor when the request did not set one.
func NewOutboxPublisher(publisher *eventing.Publisher, source string) *OutboxPublisher {
	return &OutboxPublisher{publisher: publisher, source: source}
}

// Publish writes event to outbox.
func (p *OutboxPublisher) Publish(ctx context.Context, event any) error {
	if p == nil || p.publisher == nil {
		return nil
	}
	if eventing.MetaFromContext(ctx).Actor == "" && p.source != "" {
		ctx = eventing.WithActor(ctx, p.source)
	}
	return p.publisher.Publish(ctx, event)
}
