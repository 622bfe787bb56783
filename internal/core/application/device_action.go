package application

import (
	"context"
	"fmt"

	"github.com/vulpemventures/hwsign/internal/core/domain"
)

var (
	ErrDeviceActionInterrupted = fmt.Errorf(
		"device action stream closed before a terminal state",
	)
	ErrDeviceActionFailed = fmt.Errorf("device action failed with no reason")
)

// consumeDeviceAction reads the given device action stream until its
// terminal state. Every pending state is passed to onPending, if defined.
// The step of the last pending state is returned together with the outcome.
func consumeDeviceAction[T any](
	ctx context.Context, states <-chan domain.DeviceActionState[T],
	onPending func(domain.PendingInteraction),
) (output T, lastStep string, err error) {
	for {
		select {
		case <-ctx.Done():
			return output, lastStep, ctx.Err()
		case state, ok := <-states:
			if !ok {
				return output, lastStep, ErrDeviceActionInterrupted
			}

			switch state.Status {
			case domain.DeviceActionPending:
				if state.Pending == nil {
					continue
				}
				lastStep = state.Pending.Step
				if onPending != nil {
					onPending(*state.Pending)
				}
			case domain.DeviceActionCompleted:
				return state.Output, lastStep, nil
			case domain.DeviceActionError:
				if state.Err == nil {
					return output, lastStep, ErrDeviceActionFailed
				}
				return output, lastStep, state.Err
			}
		}
	}
}
