// Package session tracks the live connections of each user and runs the
// commands that arrive on them.
//
// A user may hold several connections at once. Commands of one user run one
// at a time in arrival order; every result is broadcast to all of that
// user's connections. Different users never wait on each other.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nadzzz/qia/internal/message"
	"github.com/nadzzz/qia/internal/task"
)

// Close codes sent to clients.
const (
	// CloseInternalError closes a connection after an unexpected fault.
	CloseInternalError = 4000
	// CloseIdentityMismatch rejects a connection whose token belongs to a
	// different user than the one it connected as.
	CloseIdentityMismatch = 4001
)

// ErrNotRegistered is returned for frames from a connection the manager
// does not know.
var ErrNotRegistered = errors.New("connection not registered")

// Conn is one client connection. Send must not block for long; transports
// queue the frame and write it from their own goroutine.
type Conn interface {
	ID() string
	Send(data []byte) error
	Close(code int, reason string)
}

// Handler runs a command.
type Handler interface {
	Handle(ctx context.Context, cmd task.Command) task.Result
}

// userSessions holds the open connections of one user.
type userSessions struct {
	conns map[string]Conn
}

// Manager is the connection registry. It is safe for concurrent use.
type Manager struct {
	handler Handler

	mu    sync.RWMutex
	users map[task.UserID]*userSessions
	// runs serializes each user's commands. Entries outlive the user's
	// connections so a reconnect cannot start a second run lock.
	runs map[task.UserID]*sync.Mutex
}

// NewManager creates a manager that runs commands with h.
func NewManager(h Handler) *Manager {
	return &Manager{
		handler: h,
		users:   make(map[task.UserID]*userSessions),
		runs:    make(map[task.UserID]*sync.Mutex),
	}
}

// Register adds c to user's connections. It must return before the
// transport starts reading from c.
func (m *Manager) Register(user task.UserID, c Conn) {
	m.mu.Lock()
	us, ok := m.users[user]
	if !ok {
		us = &userSessions{conns: make(map[string]Conn)}
		m.users[user] = us
	}
	if _, ok := m.runs[user]; !ok {
		m.runs[user] = &sync.Mutex{}
	}
	us.conns[c.ID()] = c
	n := len(us.conns)
	m.mu.Unlock()

	slog.Info("session registered", "user", user, "conn_id", c.ID(), "connections", n)
}

// Unregister removes c from user's connections and reports whether it was
// registered. Other connections of the user are untouched.
func (m *Manager) Unregister(user task.UserID, c Conn) bool {
	m.mu.Lock()
	us, ok := m.users[user]
	if !ok || us.conns[c.ID()] != c {
		m.mu.Unlock()
		return false
	}
	delete(us.conns, c.ID())
	n := len(us.conns)
	if n == 0 {
		delete(m.users, user)
	}
	m.mu.Unlock()

	slog.Info("session unregistered", "user", user, "conn_id", c.ID(), "connections", n)
	return true
}

// Connections returns how many connections user has open.
func (m *Manager) Connections(user task.UserID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if us, ok := m.users[user]; ok {
		return len(us.conns)
	}
	return 0
}

// snapshot copies user's connections so sends happen outside the lock.
func (m *Manager) snapshot(user task.UserID) []Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	us, ok := m.users[user]
	if !ok {
		return nil
	}
	out := make([]Conn, 0, len(us.conns))
	for _, c := range us.conns {
		out = append(out, c)
	}
	return out
}

// BroadcastTo sends data to every connection of user and returns how many
// accepted it. A connection that fails is unregistered and closed; the
// others still receive the frame.
func (m *Manager) BroadcastTo(user task.UserID, data []byte) int {
	delivered := 0
	for _, c := range m.snapshot(user) {
		if err := c.Send(data); err != nil {
			slog.Warn("dropping connection after failed send", "user", user, "conn_id", c.ID(), "error", err)
			if m.Unregister(user, c) {
				c.Close(CloseInternalError, "send failed")
			}
			continue
		}
		delivered++
	}
	return delivered
}

// HandleFrame processes one inbound text frame from c. A frame that cannot
// be decoded is answered on c alone and the connection stays open. A valid
// frame runs as a command and its envelope is broadcast to all of the
// user's connections.
func (m *Manager) HandleFrame(ctx context.Context, user task.UserID, c Conn, data []byte) error {
	logger := slog.With("user", user, "conn_id", c.ID())

	frame, err := message.ParseFrame(data)
	if err != nil {
		logger.Debug("rejecting malformed frame", "error", err)
		out, encErr := message.Encode(message.NewErrorFrame(err))
		if encErr != nil {
			return encErr
		}
		return c.Send(out)
	}

	m.mu.RLock()
	us, ok := m.users[user]
	if ok && us.conns[c.ID()] != c {
		ok = false
	}
	run := m.runs[user]
	m.mu.RUnlock()
	if !ok {
		return ErrNotRegistered
	}

	run.Lock()
	r, err := m.handle(ctx, task.Command{User: user, Text: frame.Text, Aux: frame.Aux})
	run.Unlock()
	if err != nil {
		logger.Error("command fault", "error", err)
		if m.Unregister(user, c) {
			c.Close(CloseInternalError, "internal error")
		}
		return err
	}

	out, err := message.Encode(message.NewEnvelope(r))
	if err != nil {
		return err
	}
	m.BroadcastTo(user, out)
	return nil
}

// handle runs the command and turns a panic into an error.
func (m *Manager) handle(ctx context.Context, cmd task.Command) (r task.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic handling command: %v", p)
		}
	}()
	return m.handler.Handle(ctx, cmd), nil
}

// CloseAll closes and unregisters every connection. Used at shutdown.
func (m *Manager) CloseAll(code int, reason string) {
	m.mu.Lock()
	users := m.users
	m.users = make(map[task.UserID]*userSessions)
	m.mu.Unlock()

	for _, us := range users {
		for _, c := range us.conns {
			c.Close(code, reason)
		}
	}
}
