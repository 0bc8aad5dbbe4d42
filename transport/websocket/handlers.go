package websocket

import (
	"context"
	"encoding/json"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/usecase"
)

func (that *Server) handleState(_ context.Context, session *usecase.Session, _ *Message) Payload {
	return gamePayload(session.Game())
}

func (that *Server) handleRestart(ctx context.Context, session *usecase.Session, _ *Message) Payload {
	that.games.Restart(ctx, session)

	payload := gamePayload(session.Game())
	payload.Applied = true

	return payload
}

func (that *Server) handleMove(ctx context.Context, session *usecase.Session, msg *Message) Payload {
	log := that.logger.With("method", "handleMove", "sessionID", session.ID)

	var request MoveRequest
	if err := json.Unmarshal(msg.Payload, &request); err != nil {
		log.Warn("failed to unmarshal payload", "error", err)
		return Payload{Error: "malformed payload"}
	}

	if request.Cell == nil {
		return Payload{Error: "cell is required"}
	}

	result, err := that.games.Move(ctx, session, *request.Cell)
	if err != nil {
		log.Warn("move rejected", "cell", *request.Cell, "error", err)
		return Payload{Error: err.Error()}
	}

	payload := gamePayload(session.Game())
	payload.Applied = result.Applied
	payload.Cell = &result.Cell
	payload.Reason = string(result.Reason)

	return payload
}

func (that *Server) handleUndo(ctx context.Context, session *usecase.Session, _ *Message) Payload {
	result := that.games.Undo(ctx, session)

	payload := gamePayload(session.Game())
	payload.Applied = result.Applied
	payload.Reason = string(result.Reason)
	if result.Applied {
		payload.Cell = &result.Cell
	}

	return payload
}
