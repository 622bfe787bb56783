package redis_sink_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	redis_sink "github.com/vulpemventures/hwsign/internal/infrastructure/tracking/redis"
)

func TestSink(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	sink := redis_sink.NewSink(client, "")
	payload := domain.TrackingPayload{
		FlowID: "flow", Kind: domain.SigningKindPersonalMessage, TxType: -1,
	}

	require.NoError(t, sink.RecordStarted(ctx, payload))
	require.NoError(t, sink.RecordCompleted(ctx, payload, domain.SigningResult{}))

	entries, err := client.XRange(ctx, redis_sink.DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, domain.TrackingEventStarted, entries[0].Values["type"])
	require.Equal(t, "flow", entries[1].Values["flowId"])

	var event domain.TrackingEvent
	require.NoError(t, json.Unmarshal([]byte(entries[1].Values["payload"].(string)), &event))
	require.Equal(t, domain.TrackingEventCompleted, event.Type)
	require.Equal(t, "personalMessage", event.Kind)
	require.Empty(t, event.Value)
}

func TestSinkError(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	server.Close()

	sink := redis_sink.NewSink(client, "events")
	require.Error(t, sink.RecordStarted(context.Background(), domain.TrackingPayload{}))
}
