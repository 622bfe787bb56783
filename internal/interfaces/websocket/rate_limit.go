package websocket_interface

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter applies a token bucket per remote address and evicts the idle
// ones every now and then.
type rateLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	lock    *sync.Mutex
	byAddr  map[string]*clientLimiter
	hits    uint64
	nowFunc func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(rps float64, burst int, idleTTL time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		lock:    &sync.Mutex{},
		byAddr:  make(map[string]*clientLimiter),
		nowFunc: time.Now,
	}
}

func (l *rateLimiter) allow(addr string) bool {
	now := l.nowFunc()

	l.lock.Lock()
	defer l.lock.Unlock()

	c, ok := l.byAddr[addr]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byAddr[addr] = c
	}
	c.lastSeen = now
	allowed := c.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byAddr {
			if v.lastSeen.Before(cutoff) {
				delete(l.byAddr, k)
			}
		}
	}
	return allowed
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(remoteHost(r)) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
