package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clashmarket/arena/internal/domain"
	"github.com/jonboulle/clockwork"
)

// ErrCircuitOpen is returned by Do when the circuit rejects the call.
var ErrCircuitOpen = errors.New("circuit open")

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker trips per key after failThreshold consecutive failures. Once
// resetTimeout has passed a single probe is let through; its outcome closes or
// reopens the circuit.
type CircuitBreaker struct {
	mu            sync.Mutex
	circuits      map[string]*circuit
	failThreshold int
	resetTimeout  time.Duration
	clock         clockwork.Clock
}

type circuit struct {
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
}

// NewCircuitBreaker creates a circuit breaker with configurable thresholds.
func NewCircuitBreaker(failThreshold int, resetTimeout time.Duration, clock clockwork.Clock) *CircuitBreaker {
	return &CircuitBreaker{
		circuits:      make(map[string]*circuit),
		failThreshold: failThreshold,
		resetTimeout:  resetTimeout,
		clock:         clock,
	}
}

func (cb *CircuitBreaker) get(key string) *circuit {
	c, ok := cb.circuits[key]
	if !ok {
		c = &circuit{}
		cb.circuits[key] = c
	}
	return c
}

func (cb *CircuitBreaker) trip(c *circuit) {
	c.state = CircuitOpen
	c.openedAt = cb.clock.Now()
	c.probing = false
}

// Check reports whether a call for key may proceed. Admitting the half-open probe
// counts as starting it; the caller must report the outcome.
func (cb *CircuitBreaker) Check(_ context.Context, key string) domain.GuardResult {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(key)
	if c.state == CircuitOpen {
		wait := cb.resetTimeout - cb.clock.Since(c.openedAt)
		if wait > 0 {
			return domain.GuardResult{
				Reason:     fmt.Sprintf("%s circuit open, retry in %s", key, wait.Round(time.Millisecond)),
				Guard:      "circuit_breaker",
				RetryAfter: wait,
			}
		}
		c.state = CircuitHalfOpen
	}
	if c.state == CircuitHalfOpen {
		if c.probing {
			return domain.GuardResult{Reason: key + " circuit probe in flight", Guard: "circuit_breaker"}
		}
		c.probing = true
	}
	return domain.GuardResult{Allowed: true}
}

// State reports the current state for key.
func (cb *CircuitBreaker) State(key string) CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if c, ok := cb.circuits[key]; ok {
		return c.state
	}
	return CircuitClosed
}

// RecordSuccess closes the circuit for key and clears its failure count.
func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if c, ok := cb.circuits[key]; ok {
		*c = circuit{}
	}
}

// RecordFailure counts a failure for key. A failed probe reopens immediately.
func (cb *CircuitBreaker) RecordFailure(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(key)
	c.failures++
	if c.state == CircuitHalfOpen || c.failures >= cb.failThreshold {
		cb.trip(c)
	}
}

// Do runs fn if the circuit allows it and records the outcome.
func (cb *CircuitBreaker) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	if res := cb.Check(ctx, key); !res.Allowed {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, res.Reason)
	}
	if err := fn(ctx); err != nil {
		cb.RecordFailure(key)
		return err
	}
	cb.RecordSuccess(key)
	return nil
}
