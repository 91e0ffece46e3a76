package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/clashmarket/arena/internal/guard"
	"github.com/google/uuid"
)

// Alert is one fired milestone.
type Alert struct {
	GameID    uuid.UUID
	Milestone Milestone
	Remaining time.Duration
}

// Notifier delivers alerts to the user.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Scheduler evaluates milestones for one observer of one game. Alerts are handed
// to a background sender so a slow notifier never holds up the caller. Delivery
// failures are logged and swallowed; the milestone still counts as fired.
type Scheduler struct {
	mu       sync.Mutex
	gameID   uuid.UUID
	flags    Flags
	notifier Notifier
	breaker  *guard.CircuitBreaker
	logger   *slog.Logger
	timeout  time.Duration

	queue   chan Alert
	closed  bool
	started sync.Once
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler with clear flags. breaker may be nil.
func NewScheduler(gameID uuid.UUID, notifier Notifier, breaker *guard.CircuitBreaker, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		gameID:   gameID,
		notifier: notifier,
		breaker:  breaker,
		logger:   logger,
		timeout:  2 * time.Second,
		queue:    make(chan Alert, len(Milestones)),
	}
}

// Evaluate marks every newly crossed milestone as fired, queues its alert and
// returns them. It does not wait for delivery.
func (s *Scheduler) Evaluate(ctx context.Context, remaining time.Duration) []Milestone {
	s.mu.Lock()
	defer s.mu.Unlock()
	due := s.flags.Due(remaining)
	if len(due) == 0 || s.closed {
		return due
	}

	s.started.Do(func() {
		s.wg.Add(1)
		go s.send(context.WithoutCancel(ctx))
	})
	for _, m := range due {
		select {
		case s.queue <- Alert{GameID: s.gameID, Milestone: m, Remaining: remaining}:
		default:
			s.logger.Warn("notification queue full, dropping alert", "game_id", s.gameID, "milestone", m.Name)
		}
	}
	return due
}

// Fired reports whether the named milestone has fired for this observer.
func (s *Scheduler) Fired(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags.Fired(name)
}

// Close stops accepting alerts and waits for queued ones to be delivered.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) send(ctx context.Context) {
	defer s.wg.Done()
	for a := range s.queue {
		if err := s.deliver(ctx, a); err != nil {
			s.logger.Warn("milestone notification failed",
				"game_id", s.gameID, "milestone", a.Milestone.Name, "error", err)
		}
	}
}

func (s *Scheduler) deliver(ctx context.Context, a Alert) error {
	send := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.notifier.Notify(ctx, a)
	}
	if s.breaker == nil {
		return send(ctx)
	}
	return s.breaker.Do(ctx, "notifier", send)
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, a Alert) error {
	n.Logger.Info("milestone", "game_id", a.GameID, "milestone", a.Milestone.Name,
		"message", a.Milestone.Message, "remaining", a.Remaining.Round(time.Second))
	return nil
}

// WriterNotifier prints alerts for a terminal, ringing the bell.
type WriterNotifier struct {
	mu sync.Mutex
	W  io.Writer
}

func (n *WriterNotifier) Notify(_ context.Context, a Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintf(n.W, "\a[%s] game %s: %s\n", a.Milestone.Name, a.GameID, a.Milestone.Message)
	return err
}

// MultiNotifier delivers to each notifier and returns the first error.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, a Alert) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil && first == nil {
			first = err
		}
	}
	return first
}
