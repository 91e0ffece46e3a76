package countdown

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clashmarket/arena/internal/domain"
	"github.com/clashmarket/arena/internal/notify"
	"github.com/clashmarket/arena/internal/push"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Fetcher reads the authoritative game state.
type Fetcher interface {
	GetGame(ctx context.Context, id uuid.UUID) (*domain.Game, error)
}

// View is what the watcher renders on every change and tick.
type View struct {
	GameID        uuid.UUID
	Status        domain.GameStatus
	Remaining     time.Duration
	Display       Breakdown
	TargetEndTime *time.Time
}

// Config tunes the watch loop.
type Config struct {
	PollInterval time.Duration
	TickInterval time.Duration
	// ClockOffset is added to the local clock (server - local). Zero uses the
	// local clock as is.
	ClockOffset time.Duration
}

// Watcher drives one observer: initial fetch, push subscription, fallback
// polling while the game is not live, and a periodic tick while it is.
type Watcher struct {
	fetcher   Fetcher
	source    push.Source
	scheduler *notify.Scheduler
	clock     clockwork.Clock
	logger    *slog.Logger
	cfg       Config
	render    func(View)
}

// NewWatcher creates a watcher. source and scheduler may be nil.
func NewWatcher(fetcher Fetcher, source push.Source, scheduler *notify.Scheduler, clock clockwork.Clock,
	logger *slog.Logger, cfg Config, render func(View)) *Watcher {
	if render == nil {
		render = func(View) {}
	}
	return &Watcher{
		fetcher:   fetcher,
		source:    source,
		scheduler: scheduler,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
		render:    render,
	}
}

type pollResult struct {
	game *domain.Game
	err  error
}

// Watch runs until the game reaches a terminal status or ctx is cancelled, and
// returns the last accepted snapshot. Poll responses arriving after cancellation
// are discarded.
func (w *Watcher) Watch(ctx context.Context, gameID uuid.UUID) (Snapshot, error) {
	obs := &Observer{}

	g, err := w.fetcher.GetGame(ctx, gameID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("initial fetch: %w", err)
	}
	obs.Reconcile(SnapshotFromGame(g))
	w.show(ctx, obs)
	if obs.Done() {
		snap, _ := obs.Snapshot()
		return snap, nil
	}

	var updates <-chan push.Update
	if w.source != nil {
		ch, err := w.source.Subscribe(ctx, gameID)
		if err != nil {
			w.logger.Warn("push unavailable, polling only", "game_id", gameID, "error", err)
		} else {
			updates = ch
		}
	}

	tick := w.clock.NewTicker(w.cfg.TickInterval)
	defer tick.Stop()
	poll := w.clock.NewTicker(w.cfg.PollInterval)
	defer poll.Stop()

	results := make(chan pollResult, 1)
	inFlight := false

	for {
		select {
		case <-ctx.Done():
			snap, _ := obs.Snapshot()
			return snap, ctx.Err()

		case u := <-updates:
			w.apply(ctx, obs, SnapshotFromUpdate(u), "push")

		case r := <-results:
			inFlight = false
			if r.err != nil {
				w.logger.Warn("poll failed", "game_id", gameID, "error", r.err)
				break
			}
			w.apply(ctx, obs, SnapshotFromGame(r.game), "poll")

		case <-poll.Chan():
			if !inFlight && w.needsPoll(obs) {
				inFlight = true
				go w.fetch(ctx, gameID, results)
			}

		case <-tick.Chan():
			if obs.Active() {
				w.show(ctx, obs)
			}
		}

		if obs.Done() {
			snap, _ := obs.Snapshot()
			return snap, nil
		}
	}
}

// needsPoll: before activation to catch a missed start, and after the countdown
// has run out to catch the resolution.
func (w *Watcher) needsPoll(obs *Observer) bool {
	if !obs.Active() {
		return true
	}
	snap, _ := obs.Snapshot()
	return snap.Remaining(w.now()) == 0
}

func (w *Watcher) fetch(ctx context.Context, id uuid.UUID, out chan<- pollResult) {
	g, err := w.fetcher.GetGame(ctx, id)
	select {
	case out <- pollResult{game: g, err: err}:
	case <-ctx.Done():
	}
}

func (w *Watcher) apply(ctx context.Context, obs *Observer, s Snapshot, via string) {
	if !obs.Reconcile(s) {
		w.logger.Debug("ignored stale update", "game_id", s.GameID, "status", s.Status, "via", via)
		return
	}
	w.logger.Debug("applied update", "game_id", s.GameID, "status", s.Status, "via", via)
	w.show(ctx, obs)
}

func (w *Watcher) show(ctx context.Context, obs *Observer) {
	snap, ok := obs.Snapshot()
	if !ok {
		return
	}
	remaining := obs.Remaining(w.now())
	v := View{
		GameID:    snap.GameID,
		Status:    snap.Status,
		Remaining: remaining,
		Display:   Split(remaining),
	}
	if target, ok := snap.TargetEndTime(); ok {
		v.TargetEndTime = &target
	}
	w.render(v)

	if obs.Active() && w.scheduler != nil {
		w.scheduler.Evaluate(ctx, remaining)
	}
}

func (w *Watcher) now() time.Time {
	return w.clock.Now().Add(w.cfg.ClockOffset)
}

// EstimateOffset returns server - local, assuming the server stamped serverTime at
// the midpoint of the request round trip [sent, received].
func EstimateOffset(sent, received, serverTime time.Time) time.Duration {
	rtt := received.Sub(sent)
	midpoint := sent.Add(rtt / 2)
	return serverTime.Sub(midpoint)
}
