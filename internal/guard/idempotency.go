package guard

import (
	"context"
	"sync"
	"time"

	"github.com/clashmarket/arena/internal/domain"
	"github.com/jonboulle/clockwork"
)

// IdempotencyGuard deduplicates requests by idempotency key and remembers the
// resource each completed request produced, so a retry can be answered with it.
type IdempotencyGuard struct {
	mu      sync.Mutex
	entries map[string]*idemEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

type idemEntry struct {
	result string
	done   bool
	at     time.Time
}

// NewIdempotencyGuard creates a new in-memory idempotency guard. Keys expire after ttl.
func NewIdempotencyGuard(ttl time.Duration, clock clockwork.Clock) *IdempotencyGuard {
	return &IdempotencyGuard{
		entries: make(map[string]*idemEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

// Check claims key. When the key was already used, the result is not allowed and
// prior holds the recorded result ("" while the first request is still running).
func (ig *IdempotencyGuard) Check(_ context.Context, key string) (res domain.GuardResult, prior string) {
	if key == "" {
		return domain.GuardResult{Allowed: true}, ""
	}

	ig.mu.Lock()
	defer ig.mu.Unlock()

	now := ig.clock.Now()
	if e, ok := ig.entries[key]; ok && now.Sub(e.at) < ig.ttl {
		reason := "duplicate request: idempotency key already processed"
		if !e.done {
			reason = "duplicate request: original still in progress"
		}
		return domain.GuardResult{Allowed: false, Reason: reason, Guard: "idempotency"}, e.result
	}

	ig.entries[key] = &idemEntry{at: now}
	return domain.GuardResult{Allowed: true}, ""
}

// Complete records the result for a claimed key.
func (ig *IdempotencyGuard) Complete(key, result string) {
	if key == "" {
		return
	}
	ig.mu.Lock()
	defer ig.mu.Unlock()
	if e, ok := ig.entries[key]; ok {
		e.result = result
		e.done = true
	}
}

// Remove deletes a key from the seen set (for retry scenarios).
func (ig *IdempotencyGuard) Remove(key string) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	delete(ig.entries, key)
}

// Sweep drops expired keys.
func (ig *IdempotencyGuard) Sweep() int {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	now := ig.clock.Now()
	n := 0
	for k, e := range ig.entries {
		if now.Sub(e.at) >= ig.ttl {
			delete(ig.entries, k)
			n++
		}
	}
	return n
}
