package countdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/clashmarket/arena/internal/domain"
	"github.com/clashmarket/arena/internal/notify"
	"github.com/clashmarket/arena/internal/push"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu    sync.Mutex
	game  domain.Game
	calls int
	err   error
}

func (f *fakeFetcher) GetGame(_ context.Context, _ uuid.UUID) (*domain.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	g := f.game
	return &g, nil
}

func (f *fakeFetcher) set(mut func(g *domain.Game)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mut(&f.game)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSource struct {
	ch  chan push.Update
	err error
}

func (s *fakeSource) Subscribe(context.Context, uuid.UUID) (<-chan push.Update, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ch, nil
}

type views struct {
	mu  sync.Mutex
	all []View
}

func (v *views) add(view View) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.all = append(v.all, view)
}

func (v *views) last() View {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.all) == 0 {
		return View{}
	}
	return v.all[len(v.all)-1]
}

type recNotifier struct {
	mu    sync.Mutex
	names []string
}

func (n *recNotifier) Notify(_ context.Context, a notify.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.names = append(n.names, a.Milestone.Name)
	return nil
}

func (n *recNotifier) fired() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.names...)
}

type harness struct {
	clock   *clockwork.FakeClock
	fetcher *fakeFetcher
	source  *fakeSource
	views   *views
	notes   *recNotifier
	watcher *Watcher
	gameID  uuid.UUID
	done    chan struct{}
	result  Snapshot
	err     error
}

func newHarness(t *testing.T, status domain.GameStatus) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(base)
	id := uuid.New()
	h := &harness{
		clock:   clock,
		fetcher: &fakeFetcher{game: domain.Game{ID: id, Status: status, DurationSeconds: 300, UpdatedAt: base}},
		source:  &fakeSource{ch: make(chan push.Update, 4)},
		views:   &views{},
		notes:   &recNotifier{},
		gameID:  id,
		done:    make(chan struct{}),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sched := notify.NewScheduler(id, h.notes, nil, logger)
	t.Cleanup(sched.Close)
	h.watcher = NewWatcher(h.fetcher, h.source, sched, clock, logger,
		Config{PollInterval: 10 * time.Second, TickInterval: time.Second}, h.views.add)
	return h
}

func (h *harness) start(t *testing.T, ctx context.Context) {
	t.Helper()
	go func() {
		h.result, h.err = h.watcher.Watch(ctx, h.gameID)
		close(h.done)
	}()
	// Both tickers registered means the loop is running.
	require.NoError(t, h.clock.BlockUntilContext(ctx, 2))
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not return")
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestWatcher_PushActivatesAndCompletes(t *testing.T) {
	h := newHarness(t, domain.GameJoined)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(t, ctx)

	assert.Equal(t, 300*time.Second, h.views.last().Remaining)

	start := base
	h.source.ch <- push.Update{GameID: h.gameID, Status: domain.GameActive, StartTime: &start, DurationSeconds: 300, UpdatedAt: base.Add(time.Millisecond)}
	eventually(t, func() bool { return h.views.last().Status == domain.GameActive })
	// A 5-minute game is already inside the 60m and 10m windows at activation.
	eventually(t, func() bool { return len(h.notes.fired()) == 2 })

	h.clock.Advance(241 * time.Second)
	eventually(t, func() bool { return h.views.last().Remaining <= 59*time.Second })
	eventually(t, func() bool { return len(h.notes.fired()) == 3 })

	h.source.ch <- push.Update{GameID: h.gameID, Status: domain.GameCompleted, StartTime: &start, DurationSeconds: 300, UpdatedAt: base.Add(5 * time.Minute)}
	h.wait(t)
	require.NoError(t, h.err)
	assert.Equal(t, domain.GameCompleted, h.result.Status)
	assert.Equal(t, []string{"one_hour", "ten_minutes", "one_minute"}, h.notes.fired())
}

func TestWatcher_PollCatchesMissedStart(t *testing.T) {
	h := newHarness(t, domain.GameJoined)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(t, ctx)
	require.Equal(t, 1, h.fetcher.callCount())

	start := base.Add(time.Second)
	h.fetcher.set(func(g *domain.Game) {
		g.Status = domain.GameActive
		g.StartTime = &start
		g.UpdatedAt = start
	})

	h.clock.Advance(10 * time.Second)
	eventually(t, func() bool { return h.views.last().Status == domain.GameActive })
	assert.Equal(t, 2, h.fetcher.callCount())

	target := start.Add(300 * time.Second)
	require.NotNil(t, h.views.last().TargetEndTime)
	assert.Equal(t, target, *h.views.last().TargetEndTime)
}

func TestWatcher_StopsPollingOnceActive(t *testing.T) {
	h := newHarness(t, domain.GameActive)
	start := base
	h.fetcher.set(func(g *domain.Game) { g.StartTime = &start; g.DurationSeconds = 3600 })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(t, ctx)

	for i := 0; i < 5; i++ {
		h.clock.Advance(10 * time.Second)
	}
	eventually(t, func() bool { return h.views.last().Remaining == 3550*time.Second })
	assert.Equal(t, 1, h.fetcher.callCount(), "no polling while the countdown is live")
}

func TestWatcher_PollsAfterExpiryForResolution(t *testing.T) {
	h := newHarness(t, domain.GameActive)
	start := base.Add(-10 * time.Minute)
	h.fetcher.set(func(g *domain.Game) { g.StartTime = &start })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(t, ctx)

	h.fetcher.set(func(g *domain.Game) {
		w := uuid.New()
		g.Status = domain.GameCompleted
		g.WinnerID = &w
		g.UpdatedAt = base.Add(time.Second)
	})
	h.clock.Advance(10 * time.Second)
	h.wait(t)
	require.NoError(t, h.err)
	assert.Equal(t, domain.GameCompleted, h.result.Status)
	eventually(t, func() bool { return slices.Contains(h.notes.fired(), "start") })
}

func TestWatcher_StalePushIgnored(t *testing.T) {
	h := newHarness(t, domain.GameActive)
	start := base
	h.fetcher.set(func(g *domain.Game) { g.StartTime = &start; g.UpdatedAt = base.Add(time.Minute) })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(t, ctx)

	h.source.ch <- push.Update{GameID: h.gameID, Status: domain.GameJoined, DurationSeconds: 300, UpdatedAt: base}
	h.clock.Advance(time.Second)
	eventually(t, func() bool { return h.views.last().Remaining == 299*time.Second })
	assert.Equal(t, domain.GameActive, h.views.last().Status)
}

func TestWatcher_CancelStopsLoop(t *testing.T) {
	h := newHarness(t, domain.GameCreated)
	ctx, cancel := context.WithCancel(context.Background())
	h.start(t, ctx)

	cancel()
	h.wait(t)
	assert.ErrorIs(t, h.err, context.Canceled)
	assert.Equal(t, domain.GameCreated, h.result.Status)
}

func TestWatcher_TerminalOnFirstFetch(t *testing.T) {
	h := newHarness(t, domain.GameCanceled)
	snap, err := h.watcher.Watch(context.Background(), h.gameID)
	require.NoError(t, err)
	assert.Equal(t, domain.GameCanceled, snap.Status)
}

func TestWatcher_InitialFetchError(t *testing.T) {
	h := newHarness(t, domain.GameCreated)
	h.fetcher.err = errors.New("unreachable")
	_, err := h.watcher.Watch(context.Background(), h.gameID)
	assert.Error(t, err)
}

func TestWatcher_PushUnavailableFallsBackToPolling(t *testing.T) {
	h := newHarness(t, domain.GameCreated)
	h.source.err = errors.New("no broker")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(t, ctx)

	h.fetcher.set(func(g *domain.Game) { g.Status = domain.GameCanceled; g.UpdatedAt = base.Add(time.Second) })
	h.clock.Advance(10 * time.Second)
	h.wait(t)
	assert.Equal(t, domain.GameCanceled, h.result.Status)
}
