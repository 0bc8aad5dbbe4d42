package tictactoe

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
)

// NoOpReason tells why a command left the state untouched.
type NoOpReason string

const (
	NoOpNone         NoOpReason = ""
	NoOpGameOver     NoOpReason = "game_over"
	NoOpCellOccupied NoOpReason = "cell_occupied"
	NoOpEmptyHistory NoOpReason = "empty_history"
)

var WinCombos = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// MoveResult describes what ApplyMove did, so the caller knows which cell to redraw.
type MoveResult struct {
	Applied bool
	Reason  NoOpReason
	Cell    int
	Mark    entity.Mark
	Status  entity.Status
	Winner  entity.Mark
	Turn    entity.Mark
}

// UndoResult carries the cleared cell and the player whose turn it is again.
type UndoResult struct {
	Applied bool
	Reason  NoOpReason
	Cell    int
	Turn    entity.Mark
}

// Engine owns the state of a single game. It is not safe for concurrent use.
type Engine struct {
	board   entity.Board
	history []int
	turn    entity.Mark
	status  entity.Status
	winner  entity.Mark
}

func NewEngine() *Engine {
	engine := &Engine{}
	engine.Start()

	return engine
}

// Start - resets the engine to the initial state. Safe to call at any time.
func (that *Engine) Start() {
	that.board = entity.Board{}
	that.history = make([]int, 0, entity.BoardSize)
	that.turn = entity.PlayerX
	that.status = entity.StatusInProgress
	that.winner = entity.EmptyCell
}

// ApplyMove - places the current player's mark on cell.
// Moves after the game has ended and moves onto an occupied cell are no-ops, not errors.
func (that *Engine) ApplyMove(cell int) (MoveResult, error) {
	if cell < 0 || cell >= entity.BoardSize {
		return MoveResult{}, fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	if that.status.IsTerminal() {
		return that.moveNoOp(cell, NoOpGameOver), nil
	}

	if that.board[cell] != entity.EmptyCell {
		return that.moveNoOp(cell, NoOpCellOccupied), nil
	}

	mover := that.turn
	that.board[cell] = mover
	that.history = append(that.history, cell)

	switch {
	case hasLine(&that.board, mover):
		that.status = entity.StatusWon
		that.winner = mover
	case that.board.IsFull():
		that.status = entity.StatusDraw
	default:
		that.turn = mover.Opponent()
	}

	return MoveResult{
		Applied: true,
		Cell:    cell,
		Mark:    mover,
		Status:  that.status,
		Winner:  that.winner,
		Turn:    that.turn,
	}, nil
}

// Undo - takes back the most recent move while the game is still in progress.
func (that *Engine) Undo() UndoResult {
	if that.status.IsTerminal() {
		return UndoResult{Reason: NoOpGameOver, Cell: -1, Turn: that.turn}
	}

	if len(that.history) == 0 {
		return UndoResult{Reason: NoOpEmptyHistory, Cell: -1, Turn: that.turn}
	}

	last := that.history[len(that.history)-1]
	that.history = that.history[:len(that.history)-1]
	that.board[last] = entity.EmptyCell
	that.turn = that.turn.Opponent()

	return UndoResult{
		Applied: true,
		Cell:    last,
		Turn:    that.turn,
	}
}

func (that *Engine) Status() entity.Status {
	return that.status
}

func (that *Engine) Turn() entity.Mark {
	return that.turn
}

// Snapshot - returns a copy of the state; changing it does not affect the engine.
func (that *Engine) Snapshot() entity.Game {
	history := make([]int, len(that.history))
	copy(history, that.history)

	return entity.Game{
		Board:   that.board,
		History: history,
		Turn:    that.turn,
		Status:  that.status,
		Winner:  that.winner,
	}
}

// Restore - rebuilds an engine by replaying the snapshot's history and checks that
// the replayed state matches the rest of the snapshot.
func Restore(game entity.Game) (*Engine, error) {
	if !game.Turn.IsPlayer() {
		return nil, fmt.Errorf("%w: unknown turn %q", apperror.ErrCorruptedGame, game.Turn)
	}

	engine := NewEngine()

	for i, cell := range game.History {
		result, err := engine.ApplyMove(cell)
		if err != nil {
			return nil, fmt.Errorf("%w: move %d: %w", apperror.ErrCorruptedGame, i, err)
		}

		if !result.Applied {
			return nil, fmt.Errorf("%w: move %d on cell %d is %s", apperror.ErrCorruptedGame, i, cell, result.Reason)
		}
	}

	replayed := engine.Snapshot()
	switch {
	case replayed.Board != game.Board:
		return nil, fmt.Errorf("%w: board does not match history", apperror.ErrCorruptedGame)
	case replayed.Turn != game.Turn:
		return nil, fmt.Errorf("%w: turn %q, history says %q", apperror.ErrCorruptedGame, game.Turn, replayed.Turn)
	case replayed.Status != game.Status || replayed.Winner != game.Winner:
		return nil, fmt.Errorf("%w: status %q/%q, history says %q/%q",
			apperror.ErrCorruptedGame, game.Status, game.Winner, replayed.Status, replayed.Winner)
	}

	return engine, nil
}

func (that *Engine) moveNoOp(cell int, reason NoOpReason) MoveResult {
	return MoveResult{
		Reason: reason,
		Cell:   cell,
		Status: that.status,
		Winner: that.winner,
		Turn:   that.turn,
	}
}

// hasLine only needs to look at the player who just moved.
func hasLine(board *entity.Board, mark entity.Mark) bool {
	for _, combo := range WinCombos {
		if board[combo[0]] == mark && board[combo[1]] == mark && board[combo[2]] == mark {
			return true
		}
	}

	return false
}
