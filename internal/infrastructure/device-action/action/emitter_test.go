package action_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/infrastructure/device-action/action"
)

func TestRun(t *testing.T) {
	states := action.Run(context.Background(), 0, func(e *action.Emitter[int]) {
		if !e.Pending(domain.DeviceInteractionUnlockDevice, "") {
			return
		}
		e.Complete(42)
	})

	first := <-states
	require.Equal(t, domain.DeviceActionPending, first.Status)
	require.Equal(t, domain.DeviceInteractionUnlockDevice, first.Pending.Interaction)
	last := <-states
	require.Equal(t, 42, last.Output)
	_, ok := <-states
	require.False(t, ok)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan bool, 1)
	states := action.Run(ctx, time.Hour, func(e *action.Emitter[int]) {
		returned <- e.Pending(domain.DeviceInteractionUnlockDevice, "")
	})
	cancel()

	require.False(t, <-returned)
	_, ok := <-states
	require.False(t, ok)
}

func TestFailed(t *testing.T) {
	err := fmt.Errorf("boom")
	states := action.Failed[string](err)

	state := <-states
	require.Equal(t, domain.DeviceActionError, state.Status)
	require.Equal(t, err, state.Err)
	_, ok := <-states
	require.False(t, ok)
}
