package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SessionRateLimiter limits ingestion throughput per session so one noisy
// session cannot starve the rest of the coordinator.
type SessionRateLimiter struct {
	mu       sync.Mutex
	limits   map[string]*limiterEntry
	perSec   int
	burst    int
	maxIdle  time.Duration
	lastScan time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewSessionRateLimiter creates a limiter allowing perSec requests per second
// with the given burst, per session id.
func NewSessionRateLimiter(perSec, burst int) *SessionRateLimiter {
	if perSec <= 0 {
		perSec = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &SessionRateLimiter{
		limits:   make(map[string]*limiterEntry),
		perSec:   perSec,
		burst:    burst,
		maxIdle:  10 * time.Minute,
		lastScan: time.Now(),
	}
}

// Allow checks whether a request for the session id is allowed. Idle limiter
// entries are reaped opportunistically so the map does not grow unbounded.
func (rl *SessionRateLimiter) Allow(sessionID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastScan) > rl.maxIdle {
		for id, entry := range rl.limits {
			if now.Sub(entry.lastSeen) > rl.maxIdle {
				delete(rl.limits, id)
			}
		}
		rl.lastScan = now
	}

	entry, ok := rl.limits[sessionID]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Every(time.Second/time.Duration(rl.perSec)), rl.burst),
		}
		rl.limits[sessionID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}
