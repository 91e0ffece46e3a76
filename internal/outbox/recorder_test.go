package outbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/clashmarket/arena/internal/domain"
	"github.com/clashmarket/arena/internal/repository"
	"github.com/clashmarket/arena/internal/service"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (s *fakeSource) FetchMessage(ctx context.Context) (kafka.Message, error) {
	s.mu.Lock()
	if len(s.msgs) > 0 {
		m := s.msgs[0]
		s.msgs = s.msgs[1:]
		s.mu.Unlock()
		return m, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (s *fakeSource) Commit(_ context.Context, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.committed = append(s.committed, m.Offset)
	}
	return nil
}

func (s *fakeSource) commits() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.committed...)
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, *domain.Game) (bool, error) {
	return false, domain.ErrTransport("record match", assert.AnError)
}

func completedGame() *domain.Game {
	winner, loser := uuid.New(), uuid.New()
	now := time.Now().UTC()
	return &domain.Game{
		ID:         uuid.New(),
		CreatorID:  winner,
		OpponentID: &loser,
		WinnerID:   &winner,
		Status:     domain.GameCompleted,
		StartTime:  &now,
		EndTime:    &now,
		UpdatedAt:  now,
	}
}

func envelopeMessage(t *testing.T, offset int64, evt domain.EventType, g *domain.Game) kafka.Message {
	t.Helper()
	draft := domain.NewGameEvent(evt, g)
	raw, err := json.Marshal(Envelope{
		EventID:       draft.EventID,
		AggregateType: string(draft.AggregateType),
		AggregateID:   draft.AggregateID,
		EventType:     string(draft.EventType),
		Payload:       draft.Payload,
		OccurredAt:    draft.OccurredAt,
	})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: raw}
}

func newMatches() (*service.MatchService, *repository.MemoryMatchRepository) {
	repo := repository.NewMemoryMatchRepository()
	return service.NewMatchService(repo, slog.New(slog.NewTextHandler(io.Discard, nil))), repo
}

// flakyRecorder fails the first n calls.
type flakyRecorder struct {
	mu    sync.Mutex
	fails int
	calls int
	next  MatchRecorder
}

func (f *flakyRecorder) Record(ctx context.Context, g *domain.Game) (bool, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.fails
	f.mu.Unlock()
	if fail {
		return false, domain.ErrTransport("record match", assert.AnError)
	}
	return f.next.Record(ctx, g)
}

func (f *flakyRecorder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRecorder_Handle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("completed game is recorded once", func(t *testing.T) {
		matches, repo := newMatches()
		rec := NewRecorder(&fakeSource{}, matches, clockwork.NewFakeClock(), logger)
		g := completedGame()
		msg := envelopeMessage(t, 1, domain.EventGameCompleted, g)

		require.NoError(t, rec.Handle(ctx, msg))
		require.NoError(t, rec.Handle(ctx, msg))

		recent, err := repo.ListRecent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, g.ID, recent[0].GameID)
		assert.Equal(t, *g.WinnerID, recent[0].WinnerID)
	})

	t.Run("other events are skipped", func(t *testing.T) {
		matches, repo := newMatches()
		rec := NewRecorder(&fakeSource{}, matches, clockwork.NewFakeClock(), logger)
		g := completedGame()
		require.NoError(t, rec.Handle(ctx, envelopeMessage(t, 1, domain.EventGameStarted, g)))

		recent, err := repo.ListRecent(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, recent)
	})

	t.Run("malformed message is skipped", func(t *testing.T) {
		matches, _ := newMatches()
		rec := NewRecorder(&fakeSource{}, matches, clockwork.NewFakeClock(), logger)
		assert.NoError(t, rec.Handle(ctx, kafka.Message{Value: []byte("{")}))
	})

	t.Run("completion without winner is skipped", func(t *testing.T) {
		matches, _ := newMatches()
		rec := NewRecorder(&fakeSource{}, matches, clockwork.NewFakeClock(), logger)
		g := completedGame()
		g.WinnerID = nil
		assert.NoError(t, rec.Handle(ctx, envelopeMessage(t, 1, domain.EventGameCompleted, g)))
	})

	t.Run("store failure is returned", func(t *testing.T) {
		rec := NewRecorder(&fakeSource{}, failingRecorder{}, clockwork.NewFakeClock(), logger)
		err := rec.Handle(ctx, envelopeMessage(t, 1, domain.EventGameCompleted, completedGame()))
		assert.True(t, domain.IsTransport(err))
	})
}

func TestRecorder_RunCommitsAfterRecording(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	matches, repo := newMatches()
	src := &fakeSource{msgs: []kafka.Message{
		envelopeMessage(t, 10, domain.EventGameCreated, completedGame()),
		envelopeMessage(t, 11, domain.EventGameCompleted, completedGame()),
		envelopeMessage(t, 12, domain.EventGameCompleted, completedGame()),
	}}
	rec := NewRecorder(src, matches, clockwork.NewFakeClock(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	require.Eventually(t, func() bool { return len(src.commits()) == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{10, 11, 12}, src.commits())
	recent, err := repo.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestRecorder_RunRetriesFailedMessageOnClock(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	matches, repo := newMatches()
	flaky := &flakyRecorder{fails: 2, next: matches}
	src := &fakeSource{msgs: []kafka.Message{
		envelopeMessage(t, 20, domain.EventGameCompleted, completedGame()),
		envelopeMessage(t, 21, domain.EventGameCompleted, completedGame()),
	}}
	clock := clockwork.NewFakeClock()
	rec := NewRecorder(src, flaky, clock, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	for attempt := 1; attempt <= 2; attempt++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, attempt, flaky.callCount())
		assert.Empty(t, src.commits(), "nothing is committed past a failed message")
		clock.Advance(time.Second)
	}

	require.Eventually(t, func() bool { return len(src.commits()) == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{20, 21}, src.commits())
	recent, err := repo.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}
