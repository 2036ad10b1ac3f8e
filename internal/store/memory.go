package store

import (
	"context"
	"sync"
	"time"

	"github.com/nadzzz/qia/internal/task"
)

// Memory is a RecordStore that keeps records in process memory.
type Memory struct {
	mu      sync.Mutex
	records map[task.UserID]Record
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[task.UserID]Record), now: time.Now}
}

// Load returns a copy of the user's record.
func (m *Memory) Load(ctx context.Context, user task.UserID) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[user]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

// Update applies fn under the store lock.
func (m *Memory) Update(ctx context.Context, user task.UserID, fn func(*Record) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[user]
	if ok {
		rec = rec.Clone()
	} else {
		rec = NewRecord()
	}
	if err := fn(&rec); err != nil {
		return err
	}
	rec.normalize()
	rec.UpdatedAt = m.now()
	m.records[user] = rec
	return nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }
