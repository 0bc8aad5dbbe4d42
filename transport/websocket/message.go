package websocket

import (
	"encoding/json"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
)

const (
	actionState   = "game:state"
	actionRestart = "game:restart"
	actionMove    = "game:move"
	actionUndo    = "game:undo"
	actionError   = "error"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MoveRequest is the payload of game:move.
type MoveRequest struct {
	Cell *int `json:"cell"`
}

// Payload is sent back for every action. Applied is false for no-ops, Reason says why.
type Payload struct {
	Game       *entity.Game `json:"game,omitempty"`
	StatusText string       `json:"status_text,omitempty"`
	Applied    bool         `json:"applied"`
	Cell       *int         `json:"cell,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Error      string       `json:"error,omitempty"`
}

func gamePayload(game entity.Game) Payload {
	return Payload{
		Game:       &game,
		StatusText: game.StatusText(),
	}
}
