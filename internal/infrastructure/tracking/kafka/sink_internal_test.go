package kafka_sink

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/hwsign/internal/core/domain"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestSink(t *testing.T) {
	writer := &fakeWriter{}
	s := newSink(writer)
	payload := domain.TrackingPayload{
		FlowID: "flow", Kind: domain.SigningKindTransaction, TxType: 2,
	}
	result := domain.SigningResult{
		Broadcast: &domain.BroadcastResult{TxHash: "0xabc", Network: "sepolia"},
	}

	require.NoError(t, s.RecordStarted(context.Background(), payload))
	require.NoError(t, s.RecordCompleted(context.Background(), payload, result))
	require.Len(t, writer.msgs, 2)

	msg := writer.msgs[1]
	require.Equal(t, []byte("flow"), msg.Key)
	require.Equal(t, "completed", string(msg.Headers[0].Value))

	var event domain.TrackingEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	require.Equal(t, domain.TrackingEventCompleted, event.Type)
	require.Equal(t, "0xabc", event.TxHash)
	require.Equal(t, "sepolia", event.Network)
	require.Equal(t, "transaction", event.Kind)
}

func TestSinkError(t *testing.T) {
	s := newSink(&fakeWriter{err: fmt.Errorf("broker down")})
	err := s.RecordStarted(context.Background(), domain.TrackingPayload{})
	require.ErrorContains(t, err, "broker down")
}

func TestNewSink(t *testing.T) {
	_, err := NewSink(nil, "")
	require.Error(t, err)

	ts, err := NewSink([]string{"localhost:9092"}, "")
	require.NoError(t, err)
	require.Equal(t, DefaultTopic, ts.(*sink).writer.(*kafka.Writer).Topic)
}
