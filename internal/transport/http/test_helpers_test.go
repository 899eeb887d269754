package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-rooms/internal/config"
	"github.com/vovakirdan/wirechat-rooms/internal/core"
	"github.com/vovakirdan/wirechat-rooms/internal/proto"
	"github.com/vovakirdan/wirechat-rooms/internal/store/sqlite"
)

type testEnv struct {
	server     *httptest.Server
	dispatcher *core.Dispatcher
}

func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	history, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })

	disabledLogger := zerolog.Nop()
	dispatcher := core.NewDispatcher(history, &disabledLogger)
	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Run(ctx)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second

	server := NewServer(dispatcher, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		dispatcher.Shutdown()
	})

	return &testEnv{server: ts, dispatcher: dispatcher}
}

func (e *testEnv) wsURL(room, name string) string {
	u := strings.Replace(e.server.URL, "http", "ws", 1) + "/api/rooms/" + room + "/websocket"
	if name != "" {
		u += "?name=" + name
	}
	return u
}

// dial connects to room and waits until the room reports want members.
func (e *testEnv) dial(t *testing.T, room, name string, want int) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, e.wsURL(room, name), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })

	e.waitMembers(t, room, want)
	return conn
}

func (e *testEnv) waitMembers(t *testing.T, room string, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, info := range e.dispatcher.ActiveRooms() {
			if info.Room == room {
				return info.Members == want
			}
		}
		return want == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func readOutbound(t *testing.T, conn *websocket.Conn) proto.Outbound {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out proto.Outbound
	require.NoError(t, wsjson.Read(ctx, conn, &out))
	return out
}

func sendMessage(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	sendRaw(t, conn, `{"message":`+quote(text)+`}`)
}

func sendRaw(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(raw)))
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
