package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]RecordStore {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "qia.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return map[string]RecordStore{
		"memory": NewMemory(),
		"sqlite": db,
	}
}

func TestLoadUnknownUser(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(context.Background(), "nobody")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestUpdateCreatesAndRoundTrips(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Update(ctx, "alice", func(r *Record) error {
				r.Frequency["turn on the light"]++
				r.Preferences["smart_home"] = map[string]any{"preferred_temperature": 21.0}
				r.Shortcuts["lights"] = "turn on the light"
				return nil
			})
			require.NoError(t, err)

			rec, err := s.Load(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, 1, rec.Frequency["turn on the light"])
			assert.Equal(t, map[string]any{"preferred_temperature": 21.0}, rec.Preferences["smart_home"])
			assert.Equal(t, "turn on the light", rec.Shortcuts["lights"])
			assert.False(t, rec.UpdatedAt.IsZero())
		})
	}
}

func TestUpdateErrorDiscardsChanges(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Update(ctx, "bob", func(r *Record) error {
				r.Frequency["a"] = 1
				return nil
			}))
			err := s.Update(ctx, "bob", func(r *Record) error {
				r.Frequency["a"] = 99
				return boom
			})
			assert.ErrorIs(t, err, boom)

			rec, err := s.Load(ctx, "bob")
			require.NoError(t, err)
			assert.Equal(t, 1, rec.Frequency["a"])
		})
	}
}

func TestConcurrentUpdatesAreNotLost(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			const n = 40
			var wg sync.WaitGroup
			for i := range n {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.Update(ctx, "carol", func(r *Record) error {
						r.Frequency["hello"]++
						r.Preferences[fmt.Sprintf("k%d", i)] = i
						return nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			rec, err := s.Load(ctx, "carol")
			require.NoError(t, err)
			assert.Equal(t, n, rec.Frequency["hello"])
			assert.Len(t, rec.Preferences, n)
		})
	}
}

func TestLoadReturnsPrivateCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Update(ctx, "dave", func(r *Record) error {
		r.Preferences["smart_home"] = map[string]any{"preferred_temperature": 20.0}
		return nil
	}))

	rec, err := s.Load(ctx, "dave")
	require.NoError(t, err)
	rec.Preferences["smart_home"].(map[string]any)["preferred_temperature"] = 30.0

	again, err := s.Load(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, 20.0, again.Preferences["smart_home"].(map[string]any)["preferred_temperature"])
}

func TestPing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, s.Ping(context.Background()))
		})
	}
}
