package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clashmarket/arena/internal/domain"
	"github.com/jonboulle/clockwork"
)

// RateLimiter admits at most limit writes per caller within any trailing window.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	clock  clockwork.Clock
}

// NewRateLimiter creates a limiter allowing limit calls per window per key.
func NewRateLimiter(limit int, window time.Duration, clock clockwork.Clock) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		clock:  clock,
	}
}

// Check records a call for key if it fits in the window. A rejected call is not
// recorded, and RetryAfter says when the oldest recorded call leaves the window.
func (rl *RateLimiter) Check(_ context.Context, key string) domain.GuardResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	recent := rl.trim(key, now)

	if len(recent) >= rl.limit {
		return domain.GuardResult{
			Allowed:    false,
			Reason:     fmt.Sprintf("too many game writes: limit is %d per %s", rl.limit, rl.window),
			Guard:      "rate_limiter",
			RetryAfter: recent[0].Add(rl.window).Sub(now),
		}
	}

	rl.hits[key] = append(recent, now)
	return domain.GuardResult{Allowed: true}
}

// Sweep forgets callers with no calls inside the window and returns how many
// were dropped.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	dropped := 0
	for key := range rl.hits {
		if len(rl.trim(key, now)) == 0 {
			delete(rl.hits, key)
			dropped++
		}
	}
	return dropped
}

// trim drops calls older than the window. Callers hold mu.
func (rl *RateLimiter) trim(key string, now time.Time) []time.Time {
	cutoff := now.Add(-rl.window)
	entries := rl.hits[key]
	i := 0
	for i < len(entries) && !entries[i].After(cutoff) {
		i++
	}
	entries = entries[i:]
	rl.hits[key] = entries
	return entries
}
