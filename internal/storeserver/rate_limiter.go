package storeserver

import (
	"sync"
	"time"

	"sharing/internal/clock"
)

// RateLimiter allows a fixed number of events per key per minute window
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	clock   clock.Clock
	clients map[string]*clientLimit
}

type clientLimit struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter; a limit of zero or less disables limiting
func NewRateLimiter(limit int, c clock.Clock) *RateLimiter {
	if c == nil {
		c = clock.RealClock{}
	}
	return &RateLimiter{
		limit:   limit,
		clock:   c,
		clients: make(map[string]*clientLimit),
	}
}

// Allow records one event for key and reports whether it is within the limit
func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	limit, exists := rl.clients[key]
	if !exists || now.Sub(limit.windowStart) >= time.Minute {
		rl.clients[key] = &clientLimit{count: 1, windowStart: now}
		return true
	}
	if limit.count >= rl.limit {
		return false
	}
	limit.count++
	return true
}

// Forget drops the state kept for key
func (rl *RateLimiter) Forget(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, key)
}

// Cleanup removes entries idle for five windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	for key, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*time.Minute {
			delete(rl.clients, key)
		}
	}
}
