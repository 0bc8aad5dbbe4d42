package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/pkg"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/tictactoe"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/usecase"
)

const (
	sessionCookie   = "user_session"
	maxMessageBytes = 4096
	shutdownTimeout = 5 * time.Second
)

type gameManager interface {
	Resume(ctx context.Context, sessionID string) (*usecase.Session, error)
	Restart(ctx context.Context, session *usecase.Session)
	Move(ctx context.Context, session *usecase.Session, cell int) (tictactoe.MoveResult, error)
	Undo(ctx context.Context, session *usecase.Session) tictactoe.UndoResult
	Close(ctx context.Context, session *usecase.Session)
}

type handlerFunc func(ctx context.Context, session *usecase.Session, msg *Message) Payload

type Server struct {
	logger     *slog.Logger
	games      gameManager
	sessionTTL time.Duration
	upgrader   websocket.Upgrader

	handlers map[string]handlerFunc
}

// New - allowedOrigins empty means only same-origin pages may connect.
func New(logger *slog.Logger, games gameManager, sessionTTL time.Duration, allowedOrigins []string) *Server {
	server := &Server{
		logger:     logger.With("component", "websocket"),
		games:      games,
		sessionTTL: sessionTTL,
		handlers:   make(map[string]handlerFunc),
	}

	if len(allowedOrigins) > 0 {
		server.upgrader.CheckOrigin = func(r *http.Request) bool {
			return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
		}
	}

	server.handlers[actionState] = server.handleState
	server.handlers[actionRestart] = server.handleRestart
	server.handlers[actionMove] = server.handleMove
	server.handlers[actionUndo] = server.handleUndo

	return server
}

// Start - starts WebSocket server and stops it when ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", that.ServeWS)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// ServeWS - upgrades the connection and runs the action loop of one session.
func (that *Server) ServeWS(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "ServeWS")

	sessionID, header := that.sessionCookie(req)

	conn, err := that.upgrader.Upgrade(writer, req, header)
	if err != nil {
		// Upgrade has already written the HTTP error
		log.Error("failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageBytes)

	ctx := req.Context()

	// hijacked connections are not closed by http.Server.Shutdown
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	session, err := that.games.Resume(ctx, sessionID)
	if err != nil {
		log.Error("failed to resume session", "sessionID", sessionID, "error", err)
		_ = conn.WriteJSON(newMessage(actionError, Payload{Error: "failed to load the game"}))
		return
	}
	defer that.games.Close(ctx, session)

	log.Info("WebSocket connection established", "sessionID", sessionID)

	if err = conn.WriteJSON(newMessage(actionState, gamePayload(session.Game()))); err != nil {
		log.Error("failed to send state", "error", err)
		return
	}

	if err = that.handleMessages(ctx, conn, session); err != nil {
		log.Error("error handling messages", "error", err)
	}
}

// handleMessages - processes messages from the client one at a time, in the order received.
func (that *Server) handleMessages(ctx context.Context, conn *websocket.Conn, session *usecase.Session) error {
	log := that.logger.With("method", "handleMessages", "sessionID", session.ID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}

			return fmt.Errorf("failed to read message: %w", err)
		}

		var message Message
		if err = json.Unmarshal(data, &message); err != nil {
			log.Warn("failed to unmarshal message", "error", err)
			if err = conn.WriteJSON(newMessage(actionError, Payload{Error: "malformed message"})); err != nil {
				return fmt.Errorf("failed to send response: %w", err)
			}
			continue
		}

		response := that.dispatch(ctx, session, &message)
		if err = conn.WriteJSON(newMessage(message.Action, response)); err != nil {
			return fmt.Errorf("failed to send response: %w", err)
		}
	}
}

func (that *Server) dispatch(ctx context.Context, session *usecase.Session, message *Message) Payload {
	handler, ok := that.handlers[message.Action]
	if !ok {
		that.logger.Warn("unknown action", "action", message.Action)
		return Payload{Error: apperror.ErrUnknownAction.Error()}
	}

	return handler(ctx, session, message)
}

// sessionCookie - returns the session of the request, creating one if the cookie is missing or invalid.
func (that *Server) sessionCookie(req *http.Request) (string, http.Header) {
	cookie, err := req.Cookie(sessionCookie)
	if err == nil && pkg.IsValidSessionID(cookie.Value) {
		return cookie.Value, nil
	}

	cookie = &http.Cookie{
		Name:     sessionCookie,
		Value:    pkg.GenerateNewSessionID(),
		Expires:  time.Now().Add(that.sessionTTL),
		Path:     "/ws",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	header := http.Header{}
	header.Add("Set-Cookie", cookie.String())

	that.logger.Info("session cookie not found, new one created", "cookie", cookie.Value)

	return cookie.Value, header
}

func newMessage(action string, payload Payload) Message {
	data, err := json.Marshal(payload)
	if err != nil {
		// Payload only holds plain values
		panic(fmt.Errorf("failed to marshal payload: %w", err))
	}

	return Message{
		Action:  action,
		Payload: data,
	}
}
