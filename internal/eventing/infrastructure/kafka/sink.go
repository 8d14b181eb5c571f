package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"trusted-properties/internal/eventing"
)

// MessageWriter is the subset of kafka.Writer used by the sink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Sink forwards delivered envelopes to a Kafka topic keyed by aggregate id,
// so events of one agreement stay ordered within a partition.
type Sink struct {
	writer MessageWriter
	logger zerolog.Logger
}

// NewWriter builds a writer for the brokers and topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchSize:              1,
	}
}

// NewSink constructs a sink.
func NewSink(writer MessageWriter, logger zerolog.Logger) (*Sink, error) {
	if writer == nil {
		return nil, errors.New("kafka sink: nil writer")
	}
	return &Sink{writer: writer, logger: logger}, nil
}

// Handle writes the envelope carried in ctx. It is meant to be subscribed on
// the bus through eventing.Subscribe so redeliveries are skipped.
func (s *Sink) Handle(ctx context.Context, event any) error {
	env, ok := eventing.EnvelopeFromContext(ctx)
	if !ok {
		built, err := eventing.BuildEnvelope(event, eventing.MetaFromContext(ctx))
		if err != nil {
			return err
		}
		env = built
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(env.AggregateID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "event_id", Value: []byte(env.EventID)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Error().Err(err).Str("event_id", env.EventID).Msg("kafka write failed")
		return err
	}
	s.logger.Debug().Str("event_id", env.EventID).Str("event_type", env.EventType).Msg("event forwarded")
	return nil
}
