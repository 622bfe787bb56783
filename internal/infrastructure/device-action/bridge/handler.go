package bridge

import "sync"

type pendingAction struct {
	states chan wireState
	quit   chan struct{}
}

// deliver blocks until the consumer reads the state or leaves.
func (a *pendingAction) deliver(state wireState) {
	select {
	case a.states <- state:
	case <-a.quit:
	}
}

type chHandler struct {
	lock    *sync.RWMutex
	actions map[uint64]*pendingAction
}

func newChHandler() *chHandler {
	return &chHandler{
		lock:    &sync.RWMutex{},
		actions: make(map[uint64]*pendingAction),
	}
}

func (h *chHandler) addAction(id uint64) *pendingAction {
	h.lock.Lock()
	defer h.lock.Unlock()

	a := &pendingAction{
		states: make(chan wireState),
		quit:   make(chan struct{}),
	}
	h.actions[id] = a
	return a
}

func (h *chHandler) getAction(id uint64) *pendingAction {
	h.lock.RLock()
	defer h.lock.RUnlock()

	return h.actions[id]
}

func (h *chHandler) clearAction(id uint64) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if a, ok := h.actions[id]; ok {
		close(a.quit)
		delete(h.actions, id)
	}
}

func (h *chHandler) clear() {
	h.lock.Lock()
	defer h.lock.Unlock()

	for id, a := range h.actions {
		close(a.quit)
		delete(h.actions, id)
	}
}
