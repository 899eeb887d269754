package http

import (
	"context"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-rooms/internal/core"
)

// wsConn adapts a websocket connection to core.Conn.
type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

func (c *wsConn) WriteEvent(ctx context.Context, event core.ChatEvent) error {
	return wsjson.Write(ctx, c.conn, outboundFromEvent(event))
}

// detach turns later Close calls into no-ops. The handler calls it once it
// sends the close frame itself.
func (c *wsConn) detach() {
	c.closeOnce.Do(func() {})
}

// Close starts the close handshake in the background; the handshake waits
// for the peer and must not hold up the room.
func (c *wsConn) Close(reason string) error {
	c.closeOnce.Do(func() {
		status := websocket.StatusNormalClosure
		switch reason {
		case core.CloseReasonShutdown:
			status = websocket.StatusGoingAway
		case core.CloseReasonSlowConsumer:
			status = websocket.StatusPolicyViolation
		}
		go func() {
			_ = c.conn.Close(status, truncateReason(reason))
		}()
	})
	return nil
}
