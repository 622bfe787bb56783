package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/vulpemventures/hwsign/internal/core/domain"
)

var ErrSignFlowCancelled = fmt.Errorf("signing flow cancelled")

// SignFlow is the handle of a running or finished signing flow.
type SignFlow struct {
	id     string
	kind   domain.SigningKind
	hub    *StatusHub
	done   chan struct{}
	cancel context.CancelFunc

	cancelOnce sync.Once
}

func newSignFlow(id string, kind domain.SigningKind) *SignFlow {
	flow := &SignFlow{
		id:     id,
		kind:   kind,
		done:   make(chan struct{}),
		cancel: func() {},
	}
	flow.hub = NewStatusHub(flow.Cancel)
	return flow
}

// newFailedSignFlow returns a flow that never started, whose only status is
// the given terminal error.
func newFailedSignFlow(id string, kind domain.SigningKind, err error) *SignFlow {
	flow := newSignFlow(id, kind)
	flow.hub.Publish(domain.ErrorStatus(id, kind, err))
	close(flow.done)
	return flow
}

func (f *SignFlow) ID() string {
	return f.id
}

func (f *SignFlow) Kind() domain.SigningKind {
	return f.kind
}

// Subscribe returns the stream of statuses of the flow, starting with the
// most recent one. The stream is closed after the terminal status, when ctx
// is done or when the flow is cancelled. If every subscriber leaves before
// the flow terminates, the flow is cancelled.
func (f *SignFlow) Subscribe(ctx context.Context) <-chan domain.SignFlowStatus {
	return f.hub.Subscribe(ctx)
}

// Wait blocks until the flow reaches a terminal status and returns it.
func (f *SignFlow) Wait(ctx context.Context) (domain.SignFlowStatus, error) {
	var last domain.SignFlowStatus
	for status := range f.Subscribe(ctx) {
		last = status
	}
	if last.IsTerminal() {
		return last, nil
	}
	if err := ctx.Err(); err != nil {
		return last, err
	}
	return last, ErrSignFlowCancelled
}

// Last returns the most recent status of the flow.
func (f *SignFlow) Last() (domain.SignFlowStatus, bool) {
	return f.hub.Last()
}

// Done is closed once the flow is over, either terminated or cancelled.
func (f *SignFlow) Done() <-chan struct{} {
	return f.done
}

// Cancel stops the flow locally: no status is published afterwards and every
// subscriber stream is closed. A command already sent to the device may still
// be completed by the device.
func (f *SignFlow) Cancel() {
	f.cancelOnce.Do(func() {
		f.hub.Close()
		f.cancel()
	})
}
