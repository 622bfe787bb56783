// Package action helps device-action sources implement the stream contract:
// states are emitted in order, exactly one terminal state ends the stream,
// and the stream is closed early once the consumer context is done.
package action

import (
	"context"
	"time"

	"github.com/vulpemventures/hwsign/internal/core/domain"
)

type Emitter[T any] struct {
	ctx   context.Context
	out   chan<- domain.DeviceActionState[T]
	delay time.Duration
}

// Run executes fn in its own goroutine and returns the stream of states it
// emits. The stream is closed when fn returns. Every state is emitted after
// the given delay, if any.
func Run[T any](
	ctx context.Context, delay time.Duration, fn func(e *Emitter[T]),
) <-chan domain.DeviceActionState[T] {
	ch := make(chan domain.DeviceActionState[T])
	go func() {
		defer close(ch)
		fn(&Emitter[T]{ctx, ch, delay})
	}()
	return ch
}

// Failed returns a stream made of the given error state only.
func Failed[T any](err error) <-chan domain.DeviceActionState[T] {
	ch := make(chan domain.DeviceActionState[T], 1)
	ch <- domain.ErrorState[T](err)
	close(ch)
	return ch
}

// Pending emits a pending state and returns false if the consumer is gone.
func (e *Emitter[T]) Pending(interaction domain.DeviceInteraction, step string) bool {
	return e.send(domain.PendingState[T](interaction, step))
}

func (e *Emitter[T]) Complete(output T) {
	e.send(domain.CompletedState(output))
}

func (e *Emitter[T]) Fail(err error) {
	e.send(domain.ErrorState[T](err))
}

func (e *Emitter[T]) send(state domain.DeviceActionState[T]) bool {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-e.ctx.Done():
			return false
		}
	}

	select {
	case e.out <- state:
		return true
	case <-e.ctx.Done():
		return false
	}
}
