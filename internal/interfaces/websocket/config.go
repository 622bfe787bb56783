package websocket_interface

import (
	"fmt"
	"time"
)

const (
	minPort = 1024
	maxPort = 49151

	DefaultRateLimitRPS   = 5
	DefaultRateLimitBurst = 10
	defaultIdleTTL        = 10 * time.Minute
)

type ServiceConfig struct {
	Port int
	// RateLimitRPS and RateLimitBurst bound the requests accepted per remote
	// address. Zero values fall back to the defaults.
	RateLimitRPS   float64
	RateLimitBurst int
}

func (c ServiceConfig) validate() error {
	if c.Port < minPort || c.Port > maxPort {
		return fmt.Errorf("port must be in range [%d, %d]", minPort, maxPort)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	return nil
}

func (c ServiceConfig) address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c ServiceConfig) rateLimit() (float64, int) {
	rps, burst := c.RateLimitRPS, c.RateLimitBurst
	if rps == 0 {
		rps = DefaultRateLimitRPS
	}
	if burst == 0 {
		burst = DefaultRateLimitBurst
	}
	return rps, burst
}
