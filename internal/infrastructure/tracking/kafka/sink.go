package kafka_sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/core/ports"
)

const DefaultTopic = "hwsign.tracking"

// messageWriter is the subset of kafka.Writer used by the sink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// sink publishes tracking events as JSON messages keyed by flow id, so that
// the events of a flow land in the same partition.
type sink struct {
	writer messageWriter
}

func NewSink(brokers []string, topic string) (ports.TrackingSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("missing kafka brokers")
	}
	if topic == "" {
		topic = DefaultTopic
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
	}
	return newSink(writer), nil
}

func newSink(writer messageWriter) *sink {
	return &sink{writer}
}

func (s *sink) RecordStarted(ctx context.Context, payload domain.TrackingPayload) error {
	return s.publish(ctx, domain.NewStartedEvent(payload))
}

func (s *sink) RecordCompleted(
	ctx context.Context, payload domain.TrackingPayload, result domain.SigningResult,
) error {
	return s.publish(ctx, domain.NewCompletedEvent(payload, result))
}

// Close flushes pending messages and closes the writer.
func (s *sink) Close() error {
	return s.writer.Close()
}

func (s *sink) publish(ctx context.Context, event domain.TrackingEvent) error {
	buf, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(event.FlowID),
		Value: buf,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write error: %w", err)
	}
	return nil
}
