package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 13 // 8 KB
	sendBufferSize = 64
)

// session is one live protocol connection. All device state is shared; the
// session only owns its transport handle and outbound queue.
type session struct {
	srv  *Server
	conn *websocket.Conn

	// mu orders queue against close: broadcasters hold session-set
	// snapshots taken before a concurrent teardown, so every send must
	// recheck closed or it races a closed channel.
	mu           sync.Mutex
	send         chan []byte
	closed       bool
	closeMessage []byte
}

// queue hands a pre-marshaled frame to the write pump without blocking.
// Frames for a closed session are silently discarded; a full buffer marks
// the client as too slow and the server drops it.
func (c *session) queue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close marks the session closed and wakes the write pump, which delivers
// closeMessage when one is given. Idempotent.
func (c *session) close(closeMessage []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeMessage = closeMessage
	close(c.send)
}

// writePump owns all writes on the connection: queued frames, pings, and
// the final close frame when the send channel is closed.
func (c *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Server closed the session; say why when a close code was
				// chosen (offline, shutdown).
				_ = c.conn.WriteMessage(websocket.CloseMessage, c.closeMessage)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop processes client commands until the connection drops. A bad
// message is answered, never fatal; only transport errors end the loop.
func (c *session) readLoop() {
	defer c.srv.removeSession(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.srv.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.srv.handleMessage(c, raw)
	}
}
