package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"trusted-properties/internal/eventing"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

type rentPaid struct {
	Agreement string `json:"agreement"`
}

func TestSink_HandleUsesEnvelopeFromContext(t *testing.T) {
	writer := &recordingWriter{}
	sink, err := NewSink(writer, zerolog.Nop())
	require.NoError(t, err)

	env, err := eventing.BuildEnvelope(rentPaid{Agreement: "agr-9"}, eventing.Meta{EventID: "evt-1"})
	require.NoError(t, err)
	require.NoError(t, sink.Handle(eventing.WithEnvelope(context.Background(), env), rentPaid{Agreement: "agr-9"}))

	require.Len(t, writer.msgs, 1)
	msg := writer.msgs[0]
	require.Equal(t, "agr-9", string(msg.Key))
	var decoded eventing.Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, "evt-1", decoded.EventID)
	require.Equal(t, env.EventType, string(msg.Headers[0].Value))
}

func TestSink_PropagatesWriteErrors(t *testing.T) {
	boom := errors.New("broker unavailable")
	sink, err := NewSink(&recordingWriter{err: boom}, zerolog.Nop())
	require.NoError(t, err)
	require.ErrorIs(t, sink.Handle(context.Background(), rentPaid{Agreement: "agr-1"}), boom)

	_, err = NewSink(nil, zerolog.Nop())
	require.Error(t, err)
}
