package redis_guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vulpemventures/hwsign/internal/core/ports"
)

const keyPrefix = "hwsign:session-lock:"

// releaseScript deletes the lock only if still owned by the given token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// guard shares device session locks among several daemon instances through
// redis (SET NX with expiry). Each lock holds a random token so that an
// instance never releases a lock it doesn't own anymore.
type guard struct {
	client redis.UniversalClient

	lock   *sync.Mutex
	tokens map[string]string
}

func NewGuard(client redis.UniversalClient) ports.SessionGuard {
	return &guard{
		client: client,
		lock:   &sync.Mutex{},
		tokens: make(map[string]string),
	}
}

func (g *guard) Acquire(
	ctx context.Context, sessionID string, ttl time.Duration,
) (bool, error) {
	token := uuid.New().String()
	ok, err := g.client.SetNX(ctx, keyPrefix+sessionID, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if !ok {
		return false, nil
	}

	g.lock.Lock()
	g.tokens[sessionID] = token
	g.lock.Unlock()
	return true, nil
}

func (g *guard) Release(ctx context.Context, sessionID string) error {
	g.lock.Lock()
	token, ok := g.tokens[sessionID]
	delete(g.tokens, sessionID)
	g.lock.Unlock()

	if !ok {
		return nil
	}
	err := releaseScript.Run(ctx, g.client, []string{keyPrefix + sessionID}, token).Err()
	if err != nil {
		return fmt.Errorf("failed to release session lock: %w", err)
	}
	return nil
}
