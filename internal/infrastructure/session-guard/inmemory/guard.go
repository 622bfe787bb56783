package inmemory_guard

import (
	"context"
	"sync"
	"time"

	"github.com/vulpemventures/hwsign/internal/core/ports"
)

// guard keeps device session locks in memory. A lock expires after its ttl
// even if never released.
type guard struct {
	lock  *sync.Mutex
	locks map[string]time.Time
	now   func() time.Time
}

func NewGuard() ports.SessionGuard {
	return newGuard(time.Now)
}

func newGuard(now func() time.Time) *guard {
	return &guard{
		lock:  &sync.Mutex{},
		locks: make(map[string]time.Time),
		now:   now,
	}
}

func (g *guard) Acquire(
	_ context.Context, sessionID string, ttl time.Duration,
) (bool, error) {
	g.lock.Lock()
	defer g.lock.Unlock()

	now := g.now()
	if expiry, ok := g.locks[sessionID]; ok && now.Before(expiry) {
		return false, nil
	}
	g.locks[sessionID] = now.Add(ttl)
	return true, nil
}

func (g *guard) Release(_ context.Context, sessionID string) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	delete(g.locks, sessionID)
	return nil
}
