package push

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clashmarket/arena/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEncodeDecodeMessage(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	u := Update{GameID: uuid.New(), Status: domain.GameActive, StartTime: &start, DurationSeconds: 300, UpdatedAt: start}

	raw, err := EncodeMessage(u)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"event":"game.updated"`)

	got, ok, err := DecodeMessage(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, u.GameID, got.GameID)
	assert.Equal(t, domain.GameActive, got.Status)
	assert.True(t, start.Equal(*got.StartTime))

	_, ok, err = DecodeMessage([]byte(`{"event":"other","data":{}}`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = DecodeMessage([]byte(`nope`))
	assert.Error(t, err)
}

func TestUpdateFromGame(t *testing.T) {
	now := time.Now()
	g := &domain.Game{ID: uuid.New(), Status: domain.GameJoined, DurationSeconds: 60, UpdatedAt: now}
	u := UpdateFromGame(g)
	assert.Equal(t, g.ID, u.GameID)
	assert.Equal(t, domain.GameJoined, u.Status)
	assert.Nil(t, u.StartTime)
	assert.Equal(t, 60, u.DurationSeconds)
}

func TestSubject(t *testing.T) {
	id := uuid.MustParse("7f1d6c3a-8a35-4e0c-9a43-6a3c2b1d0e9f")
	assert.Equal(t, "clash.games.7f1d6c3a-8a35-4e0c-9a43-6a3c2b1d0e9f", Subject("clash.games", id))
}

type recordingPublisher struct {
	got []Update
	err error
}

func (p *recordingPublisher) Publish(_ context.Context, u Update) error {
	p.got = append(p.got, u)
	return p.err
}

func TestMultiPublisher(t *testing.T) {
	a := &recordingPublisher{err: errors.New("down")}
	b := &recordingPublisher{}
	err := MultiPublisher{a, b}.Publish(context.Background(), Update{GameID: uuid.New()})
	assert.EqualError(t, err, "down")
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1, "later publishers still receive the update")
}

func newHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// path: /games/{id}/ws
		id, err := uuid.Parse(r.URL.Path[len("/games/") : len(r.URL.Path)-len("/ws")])
		if err != nil {
			http.Error(w, "bad id", http.StatusBadRequest)
			return
		}
		_ = hub.ServeGame(w, r, id)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHub_DeliversToGameRoomOnly(t *testing.T) {
	hub := NewHub(discardLogger(), nil)
	srv := newHubServer(t, hub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, err := NewWSSource(srv.URL, "", clockwork.NewRealClock(), discardLogger())
	require.NoError(t, err)

	watched, other := uuid.New(), uuid.New()
	ch, err := src.Subscribe(ctx, watched)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.RoomCount())

	require.NoError(t, hub.Publish(ctx, Update{GameID: other, Status: domain.GameActive}))
	require.NoError(t, hub.Publish(ctx, Update{GameID: watched, Status: domain.GameJoined}))

	select {
	case u := <-ch:
		assert.Equal(t, watched, u.GameID)
		assert.Equal(t, domain.GameJoined, u.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no update delivered")
	}

	cancel()
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWSSource_ReconnectsAfterDrop(t *testing.T) {
	hub := NewHub(discardLogger(), nil)
	srv := newHubServer(t, hub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClock()
	src, err := NewWSSource(srv.URL, "token", clock, discardLogger())
	require.NoError(t, err)

	gameID := uuid.New()
	ch, err := src.Subscribe(ctx, gameID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Drop every connection; the source must wait the backoff then redial.
	hub.Shutdown(ctx)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(minReconnectDelay)
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(ctx, Update{GameID: gameID, Status: domain.GameActive}))
	select {
	case u := <-ch:
		assert.Equal(t, domain.GameActive, u.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no update after reconnect")
	}
}

func TestWSSource_SubscribeFailsOnBadAddress(t *testing.T) {
	src, err := NewWSSource("http://127.0.0.1:1", "", clockwork.NewRealClock(), discardLogger())
	require.NoError(t, err)
	_, err = src.Subscribe(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestNewWSSource_Scheme(t *testing.T) {
	src, err := NewWSSource("https://api.example/", "", clockwork.NewRealClock(), discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example", src.baseURL)

	src, err = NewWSSource("http://localhost:3200", "tok", clockwork.NewRealClock(), discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:3200", src.baseURL)
	assert.Equal(t, "Bearer tok", src.header.Get("Authorization"))
}
