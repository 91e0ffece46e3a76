package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/clashmarket/arena/internal/countdown"
	"github.com/clashmarket/arena/internal/domain"
	"github.com/clashmarket/arena/internal/push"
	"github.com/clashmarket/arena/internal/repository"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	codeAttempts     = 5
)

// GameOptions holds the lifecycle tunables.
type GameOptions struct {
	// Timeout bounds every store round trip. A call that exceeds it fails with a
	// transport error instead of blocking.
	Timeout         time.Duration
	DefaultToken    string
	DefaultDuration time.Duration
}

// GameService is the game lifecycle: it validates input, delegates every
// transition to a single conditional store write, and publishes the result.
type GameService struct {
	store     repository.GameStore
	publisher push.Publisher
	clock     clockwork.Clock
	logger    *slog.Logger
	opts      GameOptions
}

// NewGameService creates a GameService. publisher may be nil.
func NewGameService(store repository.GameStore, publisher push.Publisher, clock clockwork.Clock, logger *slog.Logger, opts GameOptions) *GameService {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.DefaultToken == "" {
		opts.DefaultToken = "SOL"
	}
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = 300 * time.Second
	}
	return &GameService{
		store:     store,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		opts:      opts,
	}
}

// Create validates in, fills defaults, and inserts a new game in status created.
// Private games without a code get a generated one.
func (s *GameService) Create(ctx context.Context, in domain.CreateGameInput) (*domain.Game, error) {
	if in.Token == "" {
		in.Token = s.opts.DefaultToken
	}
	in.Token = strings.ToUpper(in.Token)
	if in.DurationSeconds == 0 {
		in.DurationSeconds = int(s.opts.DefaultDuration / time.Second)
	}
	if in.Code != nil {
		code := normalizeCode(*in.Code)
		in.Code = &code
	}
	if err := domain.ValidateCreate(in); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	generated := in.IsPrivate && in.Code == nil
	now := s.clock.Now()
	g := &domain.Game{
		ID:              uuid.New(),
		Code:            in.Code,
		CreatorID:       in.CreatorID,
		PrincipalAmount: in.PrincipalAmount,
		PotAmount:       in.PotAmount,
		Token:           in.Token,
		DurationSeconds: in.DurationSeconds,
		IsPrivate:       in.IsPrivate,
		Status:          domain.GameCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		if generated {
			code, err := domain.GenerateGameCode()
			if err != nil {
				return nil, domain.ErrInternal("generate game code", err)
			}
			g.Code = &code
		}

		created, err := s.store.Create(ctx, g)
		if errors.Is(err, repository.ErrCodeTaken) {
			if generated && attempt < codeAttempts {
				continue
			}
			return nil, domain.ErrValidation("game_code is already in use by an open game")
		}
		if err != nil {
			return nil, s.storeErr(ctx, "create game", err)
		}

		s.logger.Info("game created", "game_id", created.ID, "creator_id", created.CreatorID, "private", created.IsPrivate)
		s.publish(ctx, created)
		return created, nil
	}
}

// Get returns one game.
func (s *GameService) Get(ctx context.Context, id uuid.UUID) (*domain.Game, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	g, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.storeErr(ctx, "get game", err)
	}
	if g == nil {
		return nil, domain.ErrNotFound("game", id.String())
	}
	return g, nil
}

// ListActive returns open games, newest first.
func (s *GameService) ListActive(ctx context.Context, limit int) ([]domain.Game, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	games, err := s.store.ListByStatus(ctx, domain.OpenStatuses, clampLimit(limit))
	if err != nil {
		return nil, s.storeErr(ctx, "list active games", err)
	}
	return games, nil
}

// ListForUser returns games the user created or joined, newest first.
func (s *GameService) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Game, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	games, err := s.store.ListByUser(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, s.storeErr(ctx, "list user games", err)
	}
	return games, nil
}

// Join makes actor the opponent of a created game.
func (s *GameService) Join(ctx context.Context, id, actor uuid.UUID) (*domain.Game, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	return s.join(ctx, id, actor)
}

// JoinByCode resolves a private game's code among open games, then joins it.
func (s *GameService) JoinByCode(ctx context.Context, code string, actor uuid.UUID) (*domain.Game, error) {
	code = normalizeCode(code)
	if err := domain.ValidateGameCode(code); err != nil {
		return nil, domain.ErrNotFound("game with code", code)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	g, err := s.store.FindOpenByCode(ctx, code)
	if err != nil {
		return nil, s.storeErr(ctx, "resolve game code", err)
	}
	if g == nil {
		return nil, domain.ErrNotFound("game with code", code)
	}
	return s.join(ctx, g.ID, actor)
}

func (s *GameService) join(ctx context.Context, id, actor uuid.UUID) (*domain.Game, error) {
	g, err := s.store.Join(ctx, id, actor, s.clock.Now())
	if err != nil {
		return nil, s.storeErr(ctx, "join game", err)
	}
	if g == nil {
		return nil, s.rejected(ctx, id, actor, "join")
	}
	s.logger.Info("game joined", "game_id", g.ID, "opponent_id", actor)
	s.publish(ctx, g)
	return g, nil
}

// Start activates a joined game and stamps start_time from the server clock.
func (s *GameService) Start(ctx context.Context, id, actor uuid.UUID) (*domain.Game, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	g, err := s.store.Start(ctx, id, actor, s.clock.Now())
	if err != nil {
		return nil, s.storeErr(ctx, "start game", err)
	}
	if g == nil {
		return nil, s.rejected(ctx, id, actor, "start")
	}
	s.logger.Info("game started", "game_id", g.ID, "start_time", g.StartTime, "duration_seconds", g.DurationSeconds)
	s.publish(ctx, g)
	return g, nil
}

// Complete resolves an active game with winner.
func (s *GameService) Complete(ctx context.Context, id, winner uuid.UUID) (*domain.Game, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	g, err := s.store.Complete(ctx, id, winner, s.clock.Now())
	if err != nil {
		return nil, s.storeErr(ctx, "complete game", err)
	}
	if g == nil {
		return nil, s.rejected(ctx, id, winner, "complete")
	}
	s.logger.Info("game completed", "game_id", g.ID, "winner_id", winner)
	s.publish(ctx, g)
	return g, nil
}

// Cancel terminates a created or joined game.
func (s *GameService) Cancel(ctx context.Context, id, actor uuid.UUID) (*domain.Game, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	g, err := s.store.Cancel(ctx, id, actor, s.clock.Now())
	if err != nil {
		return nil, s.storeErr(ctx, "cancel game", err)
	}
	if g == nil {
		return nil, s.rejected(ctx, id, actor, "cancel")
	}
	s.logger.Info("game canceled", "game_id", g.ID, "actor_id", actor)
	s.publish(ctx, g)
	return g, nil
}

// Edit changes stake, token, duration or privacy of a created game. Only the
// creator may edit. Turning privacy off clears the code; turning it on without
// a code keeps the existing one or generates a fresh one. Supplying a code makes
// the game private.
func (s *GameService) Edit(ctx context.Context, id, actor uuid.UUID, patch domain.GamePatch) (*domain.Game, error) {
	if patch.Token != nil {
		tok := strings.ToUpper(*patch.Token)
		patch.Token = &tok
	}
	if patch.Code != nil {
		code := normalizeCode(*patch.Code)
		patch.Code = &code
	}
	if err := domain.ValidatePatch(patch); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if patch.Empty() {
		return nil, domain.ErrValidation("nothing to edit")
	}

	edit := domain.GameEdit{
		PrincipalAmount: patch.PrincipalAmount,
		PotAmount:       patch.PotAmount,
		Token:           patch.Token,
		DurationSeconds: patch.DurationSeconds,
		IsPrivate:       patch.IsPrivate,
	}
	generated := false
	switch {
	case patch.IsPrivate != nil && !*patch.IsPrivate:
		edit.CodeMode = domain.CodeClear
	case patch.Code != nil:
		private := true
		edit.IsPrivate = &private
		edit.CodeMode = domain.CodeSet
		edit.Code = *patch.Code
	case patch.IsPrivate != nil:
		edit.CodeMode = domain.CodeKeepOrGenerate
		generated = true
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		if generated {
			code, err := domain.GenerateGameCode()
			if err != nil {
				return nil, domain.ErrInternal("generate game code", err)
			}
			edit.Code = code
		}

		g, err := s.store.Edit(ctx, id, actor, edit, s.clock.Now())
		if errors.Is(err, repository.ErrCodeTaken) {
			if generated && attempt < codeAttempts {
				continue
			}
			return nil, domain.ErrValidation("game_code is already in use by an open game")
		}
		if err != nil {
			return nil, s.storeErr(ctx, "edit game", err)
		}
		if g == nil {
			return nil, s.rejected(ctx, id, actor, "edit")
		}
		s.logger.Info("game edited", "game_id", g.ID)
		s.publish(ctx, g)
		return g, nil
	}
}

// CountdownView is the server's view of a game's countdown.
type CountdownView struct {
	GameID           uuid.UUID           `json:"game_id"`
	Status           domain.GameStatus   `json:"status"`
	DurationSeconds  int                 `json:"duration_seconds"`
	StartTime        *time.Time          `json:"start_time"`
	TargetEndTime    *time.Time          `json:"target_end_time"`
	RemainingSeconds int64               `json:"remaining_seconds"`
	Display          countdown.Breakdown `json:"display"`
	ServerTime       time.Time           `json:"server_time"`
}

// Countdown reports the remaining time computed on the server clock. Observers
// use server_time to estimate their clock offset.
func (s *GameService) Countdown(ctx context.Context, id uuid.UUID) (*CountdownView, error) {
	g, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	snap := countdown.SnapshotFromGame(g)
	remaining := snap.Remaining(now)
	v := &CountdownView{
		GameID:           g.ID,
		Status:           g.Status,
		DurationSeconds:  g.DurationSeconds,
		StartTime:        g.StartTime,
		RemainingSeconds: int64(math.Ceil(remaining.Seconds())),
		Display:          countdown.Split(remaining),
		ServerTime:       now,
	}
	if target, ok := snap.TargetEndTime(); ok {
		v.TargetEndTime = &target
	}
	return v, nil
}

// rejected builds the error for a transition whose guard failed, carrying the
// game as currently stored.
func (s *GameService) rejected(ctx context.Context, id, actor uuid.UUID, op string) error {
	cur, err := s.store.FindByID(ctx, id)
	if err != nil {
		return s.storeErr(ctx, "re-read game", err)
	}
	if cur == nil {
		return domain.ErrNotFound("game", id.String())
	}

	var reason string
	switch op {
	case "join":
		switch {
		case cur.CreatorID == actor:
			reason = "cannot join your own game"
		case cur.Status != domain.GameCreated:
			reason = fmt.Sprintf("game is %s, not open for joining", cur.Status)
		default:
			reason = "game already has an opponent"
		}
	case "start":
		if cur.Status != domain.GameJoined {
			reason = fmt.Sprintf("cannot start a %s game", cur.Status)
		} else {
			reason = "only participants can start the game"
		}
	case "complete":
		if cur.Status != domain.GameActive {
			reason = fmt.Sprintf("cannot complete a %s game", cur.Status)
		} else {
			reason = "winner must be a participant"
		}
	case "cancel":
		if cur.Status != domain.GameCreated && cur.Status != domain.GameJoined {
			reason = fmt.Sprintf("cannot cancel a %s game", cur.Status)
		} else {
			reason = "only participants can cancel the game"
		}
	case "edit":
		if cur.CreatorID != actor {
			return domain.ErrForbidden("only the creator can edit a game")
		}
		reason = fmt.Sprintf("cannot edit a %s game", cur.Status)
	}
	s.logger.Info("transition rejected", "op", op, "game_id", id, "status", cur.Status, "reason", reason)
	return domain.ErrInvalidState(reason, cur)
}

func (s *GameService) storeErr(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.ErrTransport(op+": timed out", err)
	}
	return domain.ErrTransport(op+": store unavailable", err)
}

// publish is best-effort: the transition has already committed.
func (s *GameService) publish(ctx context.Context, g *domain.Game) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), push.UpdateFromGame(g)); err != nil {
		s.logger.Warn("push publish failed", "game_id", g.ID, "status", g.Status, "error", err)
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
