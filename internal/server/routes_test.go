package server

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skinbet/internal/config"
	"skinbet/internal/eventloop"
	"skinbet/internal/game"
	"skinbet/internal/wallet"
)

func newTestServer(t *testing.T) *FiberServer {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)

	loop := eventloop.New(0)
	loop.Start()
	platform := game.NewPlatform(game.Options{
		Config: cfg,
		Loop:   loop,
		Wallet: wallet.NewMemory(),
	})
	platform.Start()
	t.Cleanup(func() {
		platform.Stop()
		loop.Stop()
	})

	s := New(Options{Platform: platform})
	s.RegisterFiberRoutes()
	return s
}

func getJSON(t *testing.T, app *fiber.App, path string, v any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if v != nil {
		require.NoError(t, json.Unmarshal(body, v), string(body))
	}
	return resp.StatusCode
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t)

	var result struct {
		Status string      `json:"status"`
		Game   game.Health `json:"game"`
	}
	code := getJSON(t, s.App, "/health", &result)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, 0, result.Game.ConnectedUsers)
	assert.True(t, result.Game.JackpotActive)
	assert.False(t, result.Game.RainActive)
}

func TestStatsHandler(t *testing.T) {
	s := newTestServer(t)

	var stats game.Stats
	code := getJSON(t, s.App, "/api/stats", &stats)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, game.PhaseBetting, stats.Crash.Phase)
	assert.Nil(t, stats.Crash.CrashPoint)
	assert.True(t, stats.Jackpot.IsActive)
}

func TestMetricsHandler(t *testing.T) {
	s := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, "/metrics", nil)
	require.NoError(t, err)
	resp, err := s.App.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "skinbet_connections_open")
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	s := newTestServer(t)

	code := getJSON(t, s.App, "/ws", nil)
	assert.Equal(t, fiber.StatusUpgradeRequired, code)
}

// readUntil reads frames until one of type event arrives.
func readUntil(t *testing.T, conn *gorilla.Conn, event string) game.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg game.WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == event {
			return msg
		}
	}
}

func TestWebsocketSession(t *testing.T) {
	s := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.App.Listener(ln) }()
	t.Cleanup(func() { _ = s.App.Shutdown() })

	url := "ws://" + ln.Addr().String() + "/ws"
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readUntil(t, conn, game.EventCrashState)
	readUntil(t, conn, game.EventChatHistory)

	require.NoError(t, conn.WriteMessage(gorilla.TextMessage,
		[]byte(`{"type":"authenticate","data":{"userId":"alice","username":"Alice","balance":25}}`)))
	msg := readUntil(t, conn, game.EventAuthenticated)
	var auth game.AuthenticatedPayload
	require.NoError(t, json.Unmarshal(msg.Data, &auth))
	assert.True(t, auth.Success)

	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte(`{"type":"chat:message","data":{"content":"hello"}}`)))
	msg = readUntil(t, conn, game.EventChatMessage)
	var chat game.ChatMessage
	require.NoError(t, json.Unmarshal(msg.Data, &chat))
	assert.Equal(t, "hello", chat.Content)
	assert.Equal(t, "Alice", chat.Username)

	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte(`{"type":"dance"}`)))
	msg = readUntil(t, conn, game.EventError)
	assert.True(t, strings.Contains(string(msg.Data), "dance"))

	require.NoError(t, conn.WriteMessage(gorilla.CloseMessage,
		gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool {
		return s.platform.Stats().Connections == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestClientSendDropsWhenFull(t *testing.T) {
	c := newClient(nil, 1)
	assert.True(t, c.Send([]byte("a")))
	assert.False(t, c.Send([]byte("b")))

	<-c.send
	c.close()
	assert.False(t, c.Send([]byte("c")))
}
