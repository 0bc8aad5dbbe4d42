package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/metrics"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/usecase"
)

type memorySessions struct {
	mu    sync.Mutex
	games map[string]entity.Game
}

func (that *memorySessions) Save(_ context.Context, sessionID string, game *entity.Game) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.games[sessionID] = *game
	return nil
}

func (that *memorySessions) GetByID(_ context.Context, sessionID string) (*entity.Game, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	game, ok := that.games[sessionID]
	if !ok {
		return nil, apperror.ErrSessionNotFound
	}
	return &game, nil
}

type client struct {
	t      *testing.T
	conn   *websocket.Conn
	cookie *http.Cookie
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	sessions := &memorySessions{games: make(map[string]entity.Game)}
	games := usecase.NewGameManager(logger, sessions, metrics.New(prometheus.NewRegistry()))

	server := New(logger, games, time.Hour, nil)

	httpServer := httptest.NewServer(http.HandlerFunc(server.ServeWS))
	t.Cleanup(httpServer.Close)

	return httpServer
}

// dial connects and consumes the game:state message sent on connect.
func dial(t *testing.T, httpServer *httptest.Server, cookie *http.Cookie) (*client, Payload) {
	t.Helper()

	header := http.Header{}
	if cookie != nil {
		header.Add("Cookie", (&http.Cookie{Name: cookie.Name, Value: cookie.Value}).String())
	}

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	if cookie == nil {
		for _, c := range resp.Cookies() {
			if c.Name == sessionCookie {
				cookie = c
			}
		}
	}
	require.NotNil(t, cookie, "session cookie was not set")

	c := &client{t: t, conn: conn, cookie: cookie}

	action, payload := c.read()
	require.Equal(t, actionState, action)

	return c, payload
}

func (that *client) send(action string, payload any) {
	that.t.Helper()

	message := map[string]any{"action": action}
	if payload != nil {
		message["payload"] = payload
	}

	require.NoError(that.t, that.conn.WriteJSON(message))
}

func (that *client) read() (string, Payload) {
	that.t.Helper()

	require.NoError(that.t, that.conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var message Message
	require.NoError(that.t, that.conn.ReadJSON(&message))

	var payload Payload
	require.NoError(that.t, json.Unmarshal(message.Payload, &payload))

	return message.Action, payload
}

func (that *client) move(cell int) Payload {
	that.t.Helper()

	that.send(actionMove, map[string]int{"cell": cell})
	action, payload := that.read()
	require.Equal(that.t, actionMove, action)

	return payload
}

func TestServer_Connect(t *testing.T) {
	// Given: a running server
	httpServer := newTestServer(t)

	// When: a browser connects without a session cookie
	_, payload := dial(t, httpServer, nil)

	// Then: a fresh game is sent with the initial status line
	require.NotNil(t, payload.Game)
	assert.Equal(t, entity.StatusInProgress, payload.Game.Status)
	assert.Equal(t, "Player X's turn", payload.StatusText)
}

func TestServer_Move(t *testing.T) {
	t.Run("Applied move", func(t *testing.T) {
		// Given: a connected client
		httpServer := newTestServer(t)
		c, _ := dial(t, httpServer, nil)

		// When: X clicks cell 0
		payload := c.move(0)

		// Then: cell 0 is reported for redraw and O is next
		assert.True(t, payload.Applied)
		require.NotNil(t, payload.Cell)
		assert.Equal(t, 0, *payload.Cell)
		assert.Equal(t, entity.PlayerX, payload.Game.Board[0])
		assert.Equal(t, "Player O's turn", payload.StatusText)
	})

	t.Run("Occupied cell is a no-op", func(t *testing.T) {
		// Given: X holds cell 0
		httpServer := newTestServer(t)
		c, _ := dial(t, httpServer, nil)
		c.move(0)

		// When: cell 0 is clicked again
		payload := c.move(0)

		// Then: nothing is applied and there is no error
		assert.False(t, payload.Applied)
		assert.Equal(t, "cell_occupied", payload.Reason)
		assert.Empty(t, payload.Error)
		assert.Equal(t, "Player O's turn", payload.StatusText)
	})

	t.Run("Out of range cell is an error", func(t *testing.T) {
		// Given: a connected client
		httpServer := newTestServer(t)
		c, _ := dial(t, httpServer, nil)

		// When: cell 9 is requested
		payload := c.move(9)

		// Then: an error is returned
		assert.Contains(t, payload.Error, "invalid cell index")
		assert.False(t, payload.Applied)
	})

	t.Run("Missing cell", func(t *testing.T) {
		// Given: a connected client
		httpServer := newTestServer(t)
		c, _ := dial(t, httpServer, nil)

		// When: a move without a cell is sent
		c.send(actionMove, map[string]any{})
		_, payload := c.read()

		// Then: an error is returned
		assert.Equal(t, "cell is required", payload.Error)
	})

	t.Run("Win then restart", func(t *testing.T) {
		// Given: a connected client
		httpServer := newTestServer(t)
		c, _ := dial(t, httpServer, nil)

		// When: X wins with the top row
		var payload Payload
		for _, cell := range []int{0, 3, 1, 4, 2} {
			payload = c.move(cell)
		}

		// Then: the win is announced
		assert.Equal(t, "Player X wins!", payload.StatusText)

		// And: undo is a no-op
		c.send(actionUndo, nil)
		_, payload = c.read()
		assert.False(t, payload.Applied)
		assert.Equal(t, "game_over", payload.Reason)

		// And: restart gives a fresh game
		c.send(actionRestart, nil)
		action, payload := c.read()
		assert.Equal(t, actionRestart, action)
		assert.True(t, payload.Applied)
		assert.Equal(t, "Player X's turn", payload.StatusText)
		assert.Equal(t, entity.Board{}, payload.Game.Board)
	})
}

func TestServer_Undo(t *testing.T) {
	// Given: X at 4 and O at 0
	httpServer := newTestServer(t)
	c, _ := dial(t, httpServer, nil)
	c.move(4)
	c.move(0)

	// When: undo is requested
	c.send(actionUndo, nil)
	action, payload := c.read()

	// Then: cell 0 is cleared and O moves again
	assert.Equal(t, actionUndo, action)
	assert.True(t, payload.Applied)
	require.NotNil(t, payload.Cell)
	assert.Equal(t, 0, *payload.Cell)
	assert.Equal(t, entity.EmptyCell, payload.Game.Board[0])
	assert.Equal(t, "Player O's turn", payload.StatusText)
}

func TestServer_Resume(t *testing.T) {
	// Given: a session that played one move and disconnected
	httpServer := newTestServer(t)
	first, _ := dial(t, httpServer, nil)
	first.move(4)
	require.NoError(t, first.conn.Close())

	// When: the same browser reconnects with its cookie
	_, payload := dial(t, httpServer, first.cookie)

	// Then: the board is the one it left
	require.NotNil(t, payload.Game)
	assert.Equal(t, entity.PlayerX, payload.Game.Board[4])
	assert.Equal(t, "Player O's turn", payload.StatusText)
}

func TestServer_TwoTabsShareOneGame(t *testing.T) {
	// Given: two tabs of one browser connected with the same cookie
	httpServer := newTestServer(t)
	tabA, _ := dial(t, httpServer, nil)
	tabB, payload := dial(t, httpServer, tabA.cookie)
	require.NotNil(t, payload.Game)

	// When: both tabs click cell 0
	first := tabA.move(0)
	second := tabB.move(0)

	// Then: only the first click is applied
	assert.True(t, first.Applied)
	assert.False(t, second.Applied)
	assert.Equal(t, "cell_occupied", second.Reason)

	// When: tab B plays 4 and tab A asks for the state
	tabB.move(4)
	tabA.send(actionState, nil)
	_, state := tabA.read()

	// Then: tab A sees both moves
	require.NotNil(t, state.Game)
	assert.Equal(t, []int{0, 4}, state.Game.History)
}

func TestServer_BadMessages(t *testing.T) {
	t.Run("Unknown action", func(t *testing.T) {
		// Given: a connected client
		httpServer := newTestServer(t)
		c, _ := dial(t, httpServer, nil)

		// When: an unknown action is sent
		c.send("game:fly", nil)
		action, payload := c.read()

		// Then: the action is echoed with an error
		assert.Equal(t, "game:fly", action)
		assert.Equal(t, apperror.ErrUnknownAction.Error(), payload.Error)
	})

	t.Run("Malformed JSON keeps the connection open", func(t *testing.T) {
		// Given: a connected client
		httpServer := newTestServer(t)
		c, _ := dial(t, httpServer, nil)

		// When: a frame that is not JSON is sent
		require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("{")))
		action, payload := c.read()

		// Then: an error comes back and later actions still work
		assert.Equal(t, actionError, action)
		assert.Equal(t, "malformed message", payload.Error)

		c.send(actionState, nil)
		action, payload = c.read()
		assert.Equal(t, actionState, action)
		assert.Empty(t, payload.Error)
	})
}

func TestServer_Origin(t *testing.T) {
	// Given: a server that only accepts one origin
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	sessions := &memorySessions{games: make(map[string]entity.Game)}
	games := usecase.NewGameManager(logger, sessions, metrics.New(prometheus.NewRegistry()))
	server := New(logger, games, time.Hour, []string{"http://game.local"})

	httpServer := httptest.NewServer(http.HandlerFunc(server.ServeWS))
	t.Cleanup(httpServer.Close)

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"

	// When: a page from another origin connects
	header := http.Header{}
	header.Set("Origin", "http://evil.local")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)

	// Then: the upgrade is refused
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
