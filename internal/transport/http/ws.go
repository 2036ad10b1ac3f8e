package http

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nadzzz/qia/internal/auth"
	"github.com/nadzzz/qia/internal/session"
	"github.com/nadzzz/qia/internal/task"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameBytes  = 64 << 10
	closeGoingAway = websocket.CloseGoingAway
)

var (
	errConnClosed     = errors.New("connection closed")
	errSendBufferFull = errors.New("send buffer full")
)

var _ session.Conn = (*wsConn)(nil)

// Browser clients connect from other origins; identity is checked by token.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsConn is one session connection. Frames are queued by Send and written
// by writePump, the only goroutine that writes to the socket.
type wsConn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	code      int
	reason    string
}

func newWSConn(ws *websocket.Conn, buffer int) *wsConn {
	return &wsConn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
		code: websocket.CloseNormalClosure,
	}
}

func (c *wsConn) ID() string { return c.id }

// Send queues data without blocking. A full queue means the client is not
// keeping up and the frame is refused.
func (c *wsConn) Send(data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		return errSendBufferFull
	}
}

// Close asks writePump to send a close frame with code and stop.
func (c *wsConn) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.code, c.reason = code, reason
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *wsConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// writePump drains the send queue and keeps the connection alive with
// pings. On Close it flushes what is queued, sends the close frame and
// closes the socket, which also ends the read loop.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				slog.Debug("session write failed", "conn_id", c.id, "error", err)
				c.Close(session.CloseInternalError, "write failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			c.flush()
			c.mu.Lock()
			code, reason := c.code, c.reason
			c.mu.Unlock()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, reason),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *wsConn) write(data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) flush() {
	for {
		select {
		case data := <-c.send:
			if c.write(data) != nil {
				return
			}
		default:
			return
		}
	}
}

// handleSession serves GET /ws/{user_id}.
//
// @Summary     Open a command session
// @Description Upgrades to a WebSocket. Each inbound text frame is a JSON object {"text": "..."}; each
// @Description command's result envelope is sent to every open session of the user. A frame that is not
// @Description valid JSON is answered with {"type":"error","message":"Invalid JSON format"}.
// @Description The connection is closed with code 4001 when the token does not belong to user_id and
// @Description with 4000 on an internal fault.
// @Tags        sessions
// @Param       user_id  path   string  true   "User identity"
// @Param       token    query  string  false  "Bearer token (alternatively the Authorization header)"
// @Success     101
// @Router      /ws/{user_id} [get]
func (t *Transport) handleSession(w http.ResponseWriter, r *http.Request) {
	user := task.UserID(r.PathValue("user_id"))
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r)
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	c := newWSConn(ws, t.opts.SendBuffer)
	logger := slog.With("user", user, "conn_id", c.id)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	if err := auth.CheckIdentity(r.Context(), t.opts.Auth, token, user); err != nil {
		logger.Warn("session rejected", "error", err)
		c.Close(session.CloseIdentityMismatch, "Authentication failed")
		<-writerDone
		return
	}

	sessions := t.opts.Sessions
	sessions.Register(user, c)
	defer func() {
		sessions.Unregister(user, c)
		c.Close(websocket.CloseNormalClosure, "")
		<-writerDone
	}()

	ws.SetReadLimit(maxFrameBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := r.Context()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !c.closed() {
				logger.Debug("session read failed", "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		if err := sessions.HandleFrame(ctx, user, c, data); err != nil {
			logger.Warn("session frame failed", "error", err)
		}
		if c.closed() {
			return
		}
	}
}
