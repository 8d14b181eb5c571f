package eventing

import (
	"context"

	"github.com/pkg/errors"
)

// ProcessedStore provides idempotency checks.
type ProcessedStore interface {
	HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, consumerName string) error
}

// Subscribe wraps handler with idempotency if store is provided.
func Subscribe(sub Subscriber, eventType, consumerName string, handler EventHandler, store ProcessedStore) {
	if sub == nil || handler == nil {
		return
	}
	if store == nil {
		sub.Subscribe(eventType, handler)
		return
	}
	sub.Subscribe(eventType, WrapHandler(consumerName, handler, store))
}

// SubscribeAll registers one consumer for every sample's event type. The
// consumer name is shared, so each event is processed once per consumer
// whatever its type.
func SubscribeAll(sub Subscriber, samples []any, consumerName string, handler EventHandler, store ProcessedStore) {
	for _, sample := range samples {
		if eventType := EventType(sample); eventType != "" {
			Subscribe(sub, eventType, consumerName, handler, store)
		}
	}
}

// WrapHandler enforces idempotency per consumer. Handler failures are
// annotated with the consumer and event id and leave the event unmarked.
func WrapHandler(consumerName string, handler EventHandler, store ProcessedStore) EventHandler {
	return func(ctx context.Context, event any) error {
		env, ok := EnvelopeFromContext(ctx)
		if !ok || env.EventID == "" {
			return handler(ctx, event)
		}
		processed, err := store.HasProcessed(ctx, env.EventID, consumerName)
		if err != nil {
			return errors.Wrapf(err, "%s: check processed %s", consumerName, env.EventID)
		}
		if processed {
			return nil
		}
		if err := handler(ctx, event); err != nil {
			return errors.Wrapf(err, "%s: handle %s", consumerName, env.EventID)
		}
		return store.MarkProcessed(ctx, env.EventID, consumerName)
	}
}
