package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clashmarket/arena/internal/domain"
	"github.com/google/uuid"
)

// MemoryGameStore is an in-process GameStore with the same guard semantics as the
// PostgreSQL store. A single mutex serializes every read-check-write.
type MemoryGameStore struct {
	mu    sync.Mutex
	games map[uuid.UUID]*domain.Game
	// events holds one outbox draft per successful write.
	events []domain.OutboxDraft
}

// NewMemoryGameStore creates an empty MemoryGameStore.
func NewMemoryGameStore() *MemoryGameStore {
	return &MemoryGameStore{games: make(map[uuid.UUID]*domain.Game)}
}

// Events returns the outbox drafts recorded so far.
func (s *MemoryGameStore) Events() []domain.OutboxDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.OutboxDraft, len(s.events))
	copy(out, s.events)
	return out
}

func (s *MemoryGameStore) Create(_ context.Context, g *domain.Game) (*domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.Code != nil && s.codeInUse(*g.Code, g.ID) {
		return nil, ErrCodeTaken
	}
	stored := cloneGame(g)
	stored.Status = domain.GameCreated
	stored.OpponentID = nil
	stored.StartTime = nil
	stored.EndTime = nil
	stored.WinnerID = nil
	stored.UpdatedAt = stored.CreatedAt
	s.games[stored.ID] = stored
	return s.commit(domain.EventGameCreated, stored), nil
}

func (s *MemoryGameStore) FindByID(_ context.Context, id uuid.UUID) (*domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return nil, nil
	}
	return cloneGame(g), nil
}

func (s *MemoryGameStore) FindOpenByCode(_ context.Context, code string) (*domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.games {
		if g.Status.IsOpen() && g.Code != nil && *g.Code == code {
			return cloneGame(g), nil
		}
	}
	return nil, nil
}

func (s *MemoryGameStore) ListByStatus(_ context.Context, statuses []domain.GameStatus, limit int) ([]domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[domain.GameStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	return s.list(limit, func(g *domain.Game) bool { return want[g.Status] }), nil
}

func (s *MemoryGameStore) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(limit, func(g *domain.Game) bool { return g.IsParticipant(userID) }), nil
}

func (s *MemoryGameStore) Join(_ context.Context, id, actor uuid.UUID, at time.Time) (*domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok || g.Status != domain.GameCreated || g.OpponentID != nil || g.CreatorID == actor {
		return nil, nil
	}
	opp := actor
	g.OpponentID = &opp
	g.Status = domain.GameJoined
	g.UpdatedAt = at
	return s.commit(domain.EventGameJoined, g), nil
}

func (s *MemoryGameStore) Start(_ context.Context, id, actor uuid.UUID, at time.Time) (*domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok || g.Status != domain.GameJoined || !g.IsParticipant(actor) {
		return nil, nil
	}
	start := at
	g.StartTime = &start
	g.Status = domain.GameActive
	g.UpdatedAt = at
	return s.commit(domain.EventGameStarted, g), nil
}

func (s *MemoryGameStore) Complete(_ context.Context, id, winner uuid.UUID, at time.Time) (*domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok || g.Status != domain.GameActive || !g.IsParticipant(winner) {
		return nil, nil
	}
	w, end := winner, at
	g.WinnerID = &w
	g.EndTime = &end
	g.Status = domain.GameCompleted
	g.UpdatedAt = at
	return s.commit(domain.EventGameCompleted, g), nil
}

func (s *MemoryGameStore) Cancel(_ context.Context, id, actor uuid.UUID, at time.Time) (*domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok || (g.Status != domain.GameCreated && g.Status != domain.GameJoined) || !g.IsParticipant(actor) {
		return nil, nil
	}
	g.Status = domain.GameCanceled
	g.UpdatedAt = at
	return s.commit(domain.EventGameCanceled, g), nil
}

func (s *MemoryGameStore) Edit(_ context.Context, id, actor uuid.UUID, edit domain.GameEdit, at time.Time) (*domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok || g.Status != domain.GameCreated || g.CreatorID != actor {
		return nil, nil
	}

	next := cloneGame(g)
	if edit.PrincipalAmount != nil {
		next.PrincipalAmount = *edit.PrincipalAmount
	}
	if edit.PotAmount != nil {
		next.PotAmount = *edit.PotAmount
	}
	if edit.Token != nil {
		next.Token = *edit.Token
	}
	if edit.DurationSeconds != nil {
		next.DurationSeconds = *edit.DurationSeconds
	}
	if edit.IsPrivate != nil {
		next.IsPrivate = *edit.IsPrivate
	}
	switch edit.CodeMode {
	case domain.CodeClear:
		next.Code = nil
	case domain.CodeSet:
		code := edit.Code
		next.Code = &code
	case domain.CodeKeepOrGenerate:
		if next.Code == nil {
			code := edit.Code
			next.Code = &code
		}
	}
	if next.Code != nil && s.codeInUse(*next.Code, id) {
		return nil, ErrCodeTaken
	}
	next.UpdatedAt = at
	s.games[id] = next
	return s.commit(domain.EventGameEdited, next), nil
}

func (s *MemoryGameStore) codeInUse(code string, except uuid.UUID) bool {
	for id, g := range s.games {
		if id != except && g.Status.IsOpen() && g.Code != nil && *g.Code == code {
			return true
		}
	}
	return false
}

func (s *MemoryGameStore) list(limit int, keep func(*domain.Game) bool) []domain.Game {
	var out []domain.Game
	for _, g := range s.games {
		if keep(g) {
			out = append(out, *cloneGame(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// commit records the outbox draft and returns a caller-owned copy. Caller holds mu.
func (s *MemoryGameStore) commit(evt domain.EventType, g *domain.Game) *domain.Game {
	out := cloneGame(g)
	s.events = append(s.events, domain.NewGameEvent(evt, out))
	return out
}

func cloneGame(g *domain.Game) *domain.Game {
	c := *g
	if g.Code != nil {
		v := *g.Code
		c.Code = &v
	}
	if g.OpponentID != nil {
		v := *g.OpponentID
		c.OpponentID = &v
	}
	if g.StartTime != nil {
		v := *g.StartTime
		c.StartTime = &v
	}
	if g.EndTime != nil {
		v := *g.EndTime
		c.EndTime = &v
	}
	if g.WinnerID != nil {
		v := *g.WinnerID
		c.WinnerID = &v
	}
	return &c
}
