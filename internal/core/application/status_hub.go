package application

import (
	"context"
	"sync"

	"github.com/vulpemventures/hwsign/internal/core/domain"
)

// StatusHub fans the statuses of one signing flow out to any number of
// observers:
//   - a new observer immediately receives the most recent status, if any.
//   - nothing is published after a terminal status.
//   - every observer has its own unbounded queue, a slow observer never blocks
//     the publisher nor the other observers.
//
// An observer channel is closed after the terminal status has been delivered,
// once the observer context is done, or when the hub is closed.
// If all observers leave before a terminal status, the idle callback is
// invoked.
type StatusHub struct {
	lock      sync.Mutex
	last      *domain.SignFlowStatus
	terminal  bool
	closed    bool
	observers map[int]*statusObserver
	nextID    int
	onIdle    func()
}

func NewStatusHub(onIdle func()) *StatusHub {
	return &StatusHub{
		observers: make(map[int]*statusObserver),
		onIdle:    onIdle,
	}
}

// Publish delivers the given status to all current observers and stores it
// for later ones. It returns false if the status has been dropped because the
// hub already published a terminal status or has been closed.
func (h *StatusHub) Publish(status domain.SignFlowStatus) bool {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.terminal || h.closed {
		return false
	}

	h.last = &status
	h.terminal = status.IsTerminal()
	for id, o := range h.observers {
		o.push(status, h.terminal)
		if h.terminal {
			delete(h.observers, id)
		}
	}
	return true
}

// Subscribe registers a new observer. The returned channel first yields the
// last published status, if any.
func (h *StatusHub) Subscribe(ctx context.Context) <-chan domain.SignFlowStatus {
	h.lock.Lock()
	defer h.lock.Unlock()

	o := newStatusObserver()
	if h.closed && !h.terminal {
		close(o.out)
		return o.out
	}

	if h.last != nil {
		o.push(*h.last, h.terminal)
	}

	id := h.nextID
	h.nextID++
	if !h.terminal {
		h.observers[id] = o
	}

	go o.pump(ctx, func() { h.unsubscribe(id) })
	return o.out
}

// Last returns the most recent status, if any.
func (h *StatusHub) Last() (domain.SignFlowStatus, bool) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.last == nil {
		return domain.SignFlowStatus{}, false
	}
	return *h.last, true
}

// IsTerminal returns whether a terminal status has been published.
func (h *StatusHub) IsTerminal() bool {
	h.lock.Lock()
	defer h.lock.Unlock()

	return h.terminal
}

// Close stops the hub: every observer channel is closed without delivering
// any pending status and any later Publish is dropped.
func (h *StatusHub) Close() {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, o := range h.observers {
		o.abort()
		delete(h.observers, id)
	}
}

func (h *StatusHub) unsubscribe(id int) {
	h.lock.Lock()
	if _, ok := h.observers[id]; !ok {
		h.lock.Unlock()
		return
	}
	delete(h.observers, id)
	idle := len(h.observers) == 0 && !h.terminal && !h.closed
	h.lock.Unlock()

	if idle && h.onIdle != nil {
		h.onIdle()
	}
}

type statusObserver struct {
	lock     sync.Mutex
	queue    []domain.SignFlowStatus
	finished bool
	notify   chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
	out      chan domain.SignFlowStatus
}

func newStatusObserver() *statusObserver {
	return &statusObserver{
		notify: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		out:    make(chan domain.SignFlowStatus),
	}
}

func (o *statusObserver) push(status domain.SignFlowStatus, last bool) {
	o.lock.Lock()
	o.queue = append(o.queue, status)
	o.finished = last
	o.lock.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
}

func (o *statusObserver) abort() {
	o.quitOnce.Do(func() { close(o.quit) })
}

func (o *statusObserver) pump(ctx context.Context, leave func()) {
	defer close(o.out)

	for {
		o.lock.Lock()
		if len(o.queue) == 0 {
			finished := o.finished
			o.lock.Unlock()
			if finished {
				return
			}

			select {
			case <-o.notify:
				continue
			case <-o.quit:
				return
			case <-ctx.Done():
				leave()
				return
			}
		}
		next := o.queue[0]
		o.queue = o.queue[1:]
		o.lock.Unlock()

		select {
		case o.out <- next:
		case <-o.quit:
			return
		case <-ctx.Done():
			leave()
			return
		}
	}
}
