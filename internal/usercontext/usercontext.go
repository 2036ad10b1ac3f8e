// Package usercontext merges a user's short-term interaction history, kept
// in process memory, with the preferences, usage counts and shortcuts
// persisted in the record store.
package usercontext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/nadzzz/qia/internal/store"
	"github.com/nadzzz/qia/internal/task"
)

// Config bounds the short-term history.
type Config struct {
	// Capacity is the maximum number of remembered interactions per user.
	Capacity int
	// TTL is how long an interaction is remembered.
	TTL time.Duration
	// PruneInterval is how often Run drops users with no live interactions.
	PruneInterval time.Duration
}

// DefaultConfig returns the standard limits: 50 interactions, one hour.
func DefaultConfig() Config {
	return Config{Capacity: 50, TTL: time.Hour, PruneInterval: 5 * time.Minute}
}

// Store is the user context store. It is safe for concurrent use; commands
// of different users never contend on the same lock.
type Store struct {
	records  store.RecordStore
	learners map[task.Intent]task.Learner
	cfg      Config
	now      func() time.Time

	sessions sync.Map // task.UserID -> *memory
}

// New creates a store. learners are consulted after every successful command
// of their intent.
func New(records store.RecordStore, learners map[task.Intent]task.Learner, cfg Config) *Store {
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = def.PruneInterval
	}
	return &Store{
		records:  records,
		learners: maps.Clone(learners),
		cfg:      cfg,
		now:      time.Now,
	}
}

// memory is one user's short-term history, oldest first.
type memory struct {
	mu      sync.Mutex
	entries []task.Interaction
	// dead is set once the memory has been pruned from the session map.
	dead bool
}

// expire drops entries older than ttl. Caller holds mu.
func (m *memory) expire(now time.Time, ttl time.Duration) {
	i := 0
	for i < len(m.entries) && now.Sub(m.entries[i].Timestamp) >= ttl {
		i++
	}
	if i > 0 {
		m.entries = append(m.entries[:0:0], m.entries[i:]...)
	}
}

func (m *memory) snapshot(now time.Time, ttl time.Duration) []task.Interaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expire(now, ttl)
	out := make([]task.Interaction, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *memory) append(it task.Interaction, capacity int, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dead {
		return false
	}
	m.expire(it.Timestamp, ttl)
	m.entries = append(m.entries, it)
	if over := len(m.entries) - capacity; over > 0 {
		m.entries = append(m.entries[:0:0], m.entries[over:]...)
	}
	return true
}

// Get returns the merged context of user. A user without a persisted record
// gets empty preferences. If the record store fails the short-term history is
// still returned, together with an error wrapping task.ErrContextLoad.
func (s *Store) Get(ctx context.Context, user task.UserID) (task.UserContext, error) {
	uc := task.EmptyContext(user)
	if v, ok := s.sessions.Load(user); ok {
		uc.Recent = v.(*memory).snapshot(s.now(), s.cfg.TTL)
	}

	rec, err := s.records.Load(ctx, user)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return uc, nil
	case err != nil:
		return uc, fmt.Errorf("%w: %v", task.ErrContextLoad, err)
	}
	uc.Preferences = rec.Preferences
	uc.Frequency = rec.Frequency
	uc.Shortcuts = rec.Shortcuts
	return uc, nil
}

// Update records one finished command: the interaction is appended to the
// short-term history, the command's usage count is incremented and, for a
// successful command, whatever the intent's learner extracts from the
// payload is stored under the intent in the preferences.
func (s *Store) Update(ctx context.Context, user task.UserID, command string, r task.Result) error {
	s.remember(user, task.Interaction{
		Command:   command,
		Intent:    r.Intent,
		Status:    r.Status,
		Summary:   r.Message,
		Timestamp: s.now(),
	})

	var learned map[string]any
	if r.OK() && r.Payload != nil {
		if l, ok := s.learners[r.Intent]; ok {
			learned = l.Learn(r.Payload)
		}
	}

	err := s.records.Update(ctx, user, func(rec *store.Record) error {
		rec.Frequency[command]++
		if len(learned) > 0 {
			sub, _ := rec.Preferences[string(r.Intent)].(map[string]any)
			if sub == nil {
				sub = map[string]any{}
			}
			maps.Copy(sub, learned)
			rec.Preferences[string(r.Intent)] = sub
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("updating record of %s: %w", user, err)
	}
	return nil
}

func (s *Store) remember(user task.UserID, it task.Interaction) {
	for {
		v, _ := s.sessions.LoadOrStore(user, &memory{})
		if v.(*memory).append(it, s.cfg.Capacity, s.cfg.TTL) {
			return
		}
		// Lost a race with Prune; the dead memory is already unlinked.
		s.sessions.CompareAndDelete(user, v)
	}
}

// SetShortcut stores a custom shortcut. An empty expansion removes it.
func (s *Store) SetShortcut(ctx context.Context, user task.UserID, phrase, expansion string) error {
	key := task.ShortcutKey(phrase)
	if key == "" {
		return fmt.Errorf("shortcut phrase must not be empty")
	}
	return s.records.Update(ctx, user, func(rec *store.Record) error {
		if expansion == "" {
			delete(rec.Shortcuts, key)
			return nil
		}
		rec.Shortcuts[key] = expansion
		return nil
	})
}

// Prune drops users whose short-term history has fully expired and returns
// how many were dropped.
func (s *Store) Prune() int {
	now := s.now()
	dropped := 0
	s.sessions.Range(func(k, v any) bool {
		m := v.(*memory)
		m.mu.Lock()
		m.expire(now, s.cfg.TTL)
		empty := len(m.entries) == 0
		if empty {
			m.dead = true
		}
		m.mu.Unlock()
		if empty && s.sessions.CompareAndDelete(k, v) {
			dropped++
		}
		return true
	})
	return dropped
}

// Run prunes periodically until ctx is cancelled.
func (s *Store) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Prune(); n > 0 {
				slog.Debug("pruned idle user sessions", "count", n)
			}
		}
	}
}

// Ping checks the record store.
func (s *Store) Ping(ctx context.Context) error {
	return s.records.Ping(ctx)
}
