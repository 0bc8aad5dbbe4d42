package entity

import "fmt"

type Mark string

const (
	EmptyCell Mark = ""
	PlayerX   Mark = "X"
	PlayerO   Mark = "O"
)

// Opponent - returns the mark that moves after this one.
func (that Mark) Opponent() Mark {
	if that == PlayerX {
		return PlayerO
	}
	return PlayerX
}

func (that Mark) IsPlayer() bool {
	return that == PlayerX || that == PlayerO
}

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusWon        Status = "won"
	StatusDraw       Status = "draw"
)

func (that Status) IsTerminal() bool {
	return that == StatusWon || that == StatusDraw
}

const BoardSize = 9

// Board is the 3x3 grid in row-major order.
type Board [BoardSize]Mark

func (that *Board) Occupied() int {
	count := 0
	for _, cell := range that {
		if cell != EmptyCell {
			count++
		}
	}
	return count
}

func (that *Board) IsFull() bool {
	return that.Occupied() == BoardSize
}

// Game is a point-in-time copy of the engine state, shaped for storage and for the presentation layer.
type Game struct {
	Board   Board  `json:"board"`
	History []int  `json:"history"`
	Turn    Mark   `json:"player_turn"`
	Status  Status `json:"status"`
	Winner  Mark   `json:"winner,omitempty"`
}

func (that *Game) IsWon() bool {
	return that.Status == StatusWon
}

func (that *Game) IsDraw() bool {
	return that.Status == StatusDraw
}

// StatusText - renders the status line shown under the grid.
func (that *Game) StatusText() string {
	switch {
	case that.IsWon():
		return fmt.Sprintf("Player %s wins!", that.Winner)
	case that.IsDraw():
		return "It's a draw!"
	default:
		return fmt.Sprintf("Player %s's turn", that.Turn)
	}
}
