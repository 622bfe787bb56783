package ports

import (
	"context"
	"time"
)

// SessionGuard grants exclusive use of a device session to one signing flow
// at a time.
type SessionGuard interface {
	// Acquire returns false if the session is already held. The ttl bounds
	// how long a lock survives a holder that never releases it.
	Acquire(ctx context.Context, sessionID string, ttl time.Duration) (bool, error)
	// Release frees the session.
	Release(ctx context.Context, sessionID string) error
}
