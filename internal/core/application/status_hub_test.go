package application_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/hwsign/internal/core/application"
	"github.com/vulpemventures/hwsign/internal/core/domain"
)

func TestStatusHub(t *testing.T) {
	kind := domain.SigningKindPersonalMessage

	t.Run("late subscriber gets the most recent status", func(t *testing.T) {
		hub := application.NewStatusHub(nil)
		require.True(t, hub.Publish(domain.DebuggingStatus("f", kind, "first")))
		require.True(t, hub.Publish(domain.InteractionStatus("f", kind, domain.InteractionConfirmOpenApp)))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		ch := hub.Subscribe(ctx)

		status := receive(t, ch)
		require.Equal(t, domain.SignFlowUserInteractionNeeded, status.State)
		require.Equal(t, domain.InteractionConfirmOpenApp, status.Interaction)

		require.True(t, hub.Publish(domain.DebuggingStatus("f", kind, "second")))
		status = receive(t, ch)
		require.Equal(t, "second", status.Message)
	})

	t.Run("nothing is published after a terminal status", func(t *testing.T) {
		hub := application.NewStatusHub(nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		ch := hub.Subscribe(ctx)

		require.True(t, hub.Publish(domain.ErrorStatus("f", kind, fmt.Errorf("boom"))))
		require.False(t, hub.Publish(domain.DebuggingStatus("f", kind, "late")))
		require.False(t, hub.Publish(domain.SuccessStatus("f", kind, domain.SigningResult{})))

		status := receive(t, ch)
		require.Equal(t, domain.SignFlowError, status.State)
		requireClosed(t, ch)

		// A subscriber arriving after the end gets the terminal status only.
		late := hub.Subscribe(ctx)
		status = receive(t, late)
		require.Equal(t, domain.SignFlowError, status.State)
		requireClosed(t, late)
	})

	t.Run("multiple observers", func(t *testing.T) {
		hub := application.NewStatusHub(nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		slow := hub.Subscribe(ctx)
		fast := hub.Subscribe(ctx)

		for i := 0; i < 10; i++ {
			hub.Publish(domain.DebuggingStatus("f", kind, fmt.Sprintf("%d", i)))
		}
		hub.Publish(domain.SuccessStatus("f", kind, domain.SigningResult{}))

		fastStatuses := drain(t, fast)
		require.Len(t, fastStatuses, 11)
		slowStatuses := drain(t, slow)
		require.Equal(t, fastStatuses, slowStatuses)
		for i := 0; i < 10; i++ {
			require.Equal(t, fmt.Sprintf("%d", i), slowStatuses[i].Message)
		}
	})

	t.Run("idle callback", func(t *testing.T) {
		var idle atomic.Int32
		hub := application.NewStatusHub(func() { idle.Add(1) })

		ctx1, cancel1 := context.WithCancel(context.Background())
		ctx2, cancel2 := context.WithCancel(context.Background())
		ch1 := hub.Subscribe(ctx1)
		ch2 := hub.Subscribe(ctx2)

		cancel1()
		requireClosed(t, ch1)
		require.Zero(t, idle.Load())

		cancel2()
		requireClosed(t, ch2)
		require.Eventually(t, func() bool {
			return idle.Load() == 1
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("close", func(t *testing.T) {
		hub := application.NewStatusHub(nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch := hub.Subscribe(ctx)
		hub.Publish(domain.DebuggingStatus("f", kind, "first"))
		require.Equal(t, "first", receive(t, ch).Message)

		hub.Close()
		requireClosed(t, ch)
		require.False(t, hub.Publish(domain.DebuggingStatus("f", kind, "late")))
		requireClosed(t, hub.Subscribe(ctx))
	})
}

func receive(t *testing.T, ch <-chan domain.SignFlowStatus) domain.SignFlowStatus {
	t.Helper()

	select {
	case status, ok := <-ch:
		require.True(t, ok, "channel unexpectedly closed")
		return status
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for status")
		return domain.SignFlowStatus{}
	}
}

func requireClosed(t *testing.T, ch <-chan domain.SignFlowStatus) {
	t.Helper()

	select {
	case status, ok := <-ch:
		require.False(t, ok, "unexpected status %+v", status)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for channel to be closed")
	}
}

func drain(t *testing.T, ch <-chan domain.SignFlowStatus) []domain.SignFlowStatus {
	t.Helper()

	statuses := make([]domain.SignFlowStatus, 0)
	timeout := time.After(5 * time.Second)
	for {
		select {
		case status, ok := <-ch:
			if !ok {
				return statuses
			}
			statuses = append(statuses, status)
		case <-timeout:
			t.Fatal("timeout draining statuses")
			return nil
		}
	}
}
