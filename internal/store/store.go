// Package store persists the long-lived part of a user's context:
// preferences, command usage counts and custom shortcuts.
package store

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/nadzzz/qia/internal/task"
)

// ErrNotFound is returned by Load for a user that has no record yet.
var ErrNotFound = errors.New("user record not found")

// Record is the persisted part of a user's context.
type Record struct {
	Preferences map[string]any    `json:"preferences"`
	Frequency   map[string]int    `json:"frequently_used_commands"`
	Shortcuts   map[string]string `json:"custom_shortcuts"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewRecord returns an empty record with all maps allocated.
func NewRecord() Record {
	return Record{
		Preferences: map[string]any{},
		Frequency:   map[string]int{},
		Shortcuts:   map[string]string{},
	}
}

// Clone returns a copy sharing no mutable state with r.
func (r Record) Clone() Record {
	out := Record{
		Preferences: cloneMap(r.Preferences),
		Frequency:   maps.Clone(r.Frequency),
		Shortcuts:   maps.Clone(r.Shortcuts),
		UpdatedAt:   r.UpdatedAt,
	}
	out.normalize()
	return out
}

func (r *Record) normalize() {
	if r.Preferences == nil {
		r.Preferences = map[string]any{}
	}
	if r.Frequency == nil {
		r.Frequency = map[string]int{}
	}
	if r.Shortcuts == nil {
		r.Shortcuts = map[string]string{}
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// RecordStore is the persisted user-record store.
type RecordStore interface {
	// Load returns the record of user, or ErrNotFound.
	Load(ctx context.Context, user task.UserID) (Record, error)

	// Update applies fn to the user's record atomically, creating the record
	// if absent. fn sees a private copy; returning an error discards it.
	// Concurrent updates of the same user are serialized, never lost.
	Update(ctx context.Context, user task.UserID, fn func(*Record) error) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
