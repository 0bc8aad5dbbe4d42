package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/metrics"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/tictactoe"
)

type sessionRepo interface {
	Save(ctx context.Context, sessionID string, game *entity.Game) error
	GetByID(ctx context.Context, sessionID string) (*entity.Game, error)
}

// Session is one browser session and the engine it owns.
// Every connection of the session shares the engine; commands are applied one at a time.
type Session struct {
	ID string

	mu     sync.Mutex
	engine *tictactoe.Engine

	// connections is guarded by GameManager.mu
	connections int
}

func (that *Session) Game() entity.Game {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.engine.Snapshot()
}

type GameManager struct {
	logger      *slog.Logger
	sessionRepo sessionRepo
	metrics     *metrics.Metrics

	mu   sync.Mutex
	live map[string]*Session
}

func NewGameManager(logger *slog.Logger, sessionRepo sessionRepo, gameMetrics *metrics.Metrics) *GameManager {
	return &GameManager{
		logger:      logger.With("component", "game_manager"),
		sessionRepo: sessionRepo,
		metrics:     gameMetrics,
		live:        make(map[string]*Session),
	}
}

// Resume - joins the live session with this id, or picks up its stored game, or starts a new one.
func (that *GameManager) Resume(ctx context.Context, sessionID string) (*Session, error) {
	log := that.logger.With("method", "Resume", "sessionID", sessionID)

	that.mu.Lock()
	defer that.mu.Unlock()

	if session, ok := that.live[sessionID]; ok {
		session.connections++
		that.metrics.Sessions.Inc()
		log.Info("joined live session", "connections", session.connections)

		return session, nil
	}

	session := &Session{ID: sessionID}

	stored, err := that.sessionRepo.GetByID(ctx, sessionID)
	switch {
	case errors.Is(err, apperror.ErrSessionNotFound):
		log.Debug("no stored game, starting a new one")
		session.engine = tictactoe.NewEngine()
	case err != nil:
		return nil, fmt.Errorf("failed to get session: %w", err)
	default:
		session.engine, err = tictactoe.Restore(*stored)
		if err != nil {
			log.Warn("stored game is unusable, starting a new one", "error", err)
			session.engine = tictactoe.NewEngine()
		}
	}

	if err = that.save(ctx, session); err != nil {
		return nil, err
	}

	session.connections = 1
	that.live[sessionID] = session
	that.metrics.Sessions.Inc()
	log.Info("session resumed", "moves", len(session.engine.Snapshot().History))

	return session, nil
}

// Restart - resets the game. Always applied.
func (that *GameManager) Restart(ctx context.Context, session *Session) {
	session.mu.Lock()
	defer session.mu.Unlock()

	session.engine.Start()
	that.metrics.Applied(metrics.CommandRestart)

	that.persist(ctx, session)
}

// Move - applies a cell activation. The only error is an out-of-range cell.
func (that *GameManager) Move(ctx context.Context, session *Session, cell int) (tictactoe.MoveResult, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	result, err := session.engine.ApplyMove(cell)
	if err != nil {
		return result, fmt.Errorf("failed to apply move: %w", err)
	}

	if !result.Applied {
		that.metrics.NoOp(metrics.CommandMove, string(result.Reason))
		return result, nil
	}

	that.metrics.Applied(metrics.CommandMove)

	switch result.Status {
	case entity.StatusWon:
		that.metrics.GameFinished(string(result.Winner))
	case entity.StatusDraw:
		that.metrics.GameFinished(string(entity.StatusDraw))
	}

	that.persist(ctx, session)

	return result, nil
}

func (that *GameManager) Undo(ctx context.Context, session *Session) tictactoe.UndoResult {
	session.mu.Lock()
	defer session.mu.Unlock()

	result := session.engine.Undo()
	if !result.Applied {
		that.metrics.NoOp(metrics.CommandUndo, string(result.Reason))
		return result
	}

	that.metrics.Applied(metrics.CommandUndo)
	that.persist(ctx, session)

	return result
}

// Close - releases one connection of the session. The last one takes the session off the live set;
// the stored game stays until it expires.
func (that *GameManager) Close(_ context.Context, session *Session) {
	that.mu.Lock()
	session.connections--
	remaining := session.connections
	if remaining <= 0 && that.live[session.ID] == session {
		delete(that.live, session.ID)
	}
	that.mu.Unlock()

	that.metrics.Sessions.Dec()

	game := session.Game()
	that.logger.Info("session closed",
		"sessionID", session.ID,
		"connections", remaining,
		"status", game.Status,
		"moves", len(game.History),
	)
}

// persist - a failed write is logged; the command has already been applied. Caller holds session.mu.
func (that *GameManager) persist(ctx context.Context, session *Session) {
	if err := that.save(ctx, session); err != nil {
		that.logger.Error("failed to save session", "sessionID", session.ID, "error", err)
	}
}

func (that *GameManager) save(ctx context.Context, session *Session) error {
	game := session.engine.Snapshot()
	if err := that.sessionRepo.Save(ctx, session.ID, &game); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}
