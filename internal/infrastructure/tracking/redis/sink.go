package redis_sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/core/ports"
)

const (
	DefaultStream = "hwsign:tracking"
	// maxStreamLen bounds the stream, older entries are trimmed
	// approximately.
	maxStreamLen = 100000
)

// sink appends tracking events to a redis stream.
type sink struct {
	client redis.Cmdable
	stream string
}

func NewSink(client redis.Cmdable, stream string) ports.TrackingSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &sink{client, stream}
}

func (s *sink) RecordStarted(ctx context.Context, payload domain.TrackingPayload) error {
	return s.publish(ctx, domain.NewStartedEvent(payload))
}

func (s *sink) RecordCompleted(
	ctx context.Context, payload domain.TrackingPayload, result domain.SigningResult,
) error {
	return s.publish(ctx, domain.NewCompletedEvent(payload, result))
}

func (s *sink) publish(ctx context.Context, event domain.TrackingEvent) error {
	buf, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":    event.Type,
			"flowId":  event.FlowID,
			"payload": buf,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd error: %w", err)
	}
	return nil
}
