package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nadzzz/qia/internal/task"
)

// SQLite is a RecordStore backed by a SQLite database file. Each record's
// maps are stored as JSON columns.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store dir: %w", err)
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	// A single connection serializes read-modify-write transactions.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}
	s := &SQLite{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init store schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS user_records (
		user_id     TEXT PRIMARY KEY,
		preferences TEXT NOT NULL DEFAULT '{}',
		frequency   TEXT NOT NULL DEFAULT '{}',
		shortcuts   TEXT NOT NULL DEFAULT '{}',
		updated_at  TEXT NOT NULL
	)`)
	return err
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLite) load(ctx context.Context, q querier, user task.UserID) (Record, error) {
	var prefs, freq, shortcuts, updated string
	err := q.QueryRowContext(ctx,
		`SELECT preferences, frequency, shortcuts, updated_at FROM user_records WHERE user_id = ?`,
		string(user),
	).Scan(&prefs, &freq, &shortcuts, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("loading record of %s: %w", user, err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(prefs), &rec.Preferences); err != nil {
		return Record{}, fmt.Errorf("decoding preferences of %s: %w", user, err)
	}
	if err := json.Unmarshal([]byte(freq), &rec.Frequency); err != nil {
		return Record{}, fmt.Errorf("decoding frequency of %s: %w", user, err)
	}
	if err := json.Unmarshal([]byte(shortcuts), &rec.Shortcuts); err != nil {
		return Record{}, fmt.Errorf("decoding shortcuts of %s: %w", user, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		rec.UpdatedAt = t
	}
	rec.normalize()
	return rec, nil
}

// Load returns the user's record.
func (s *SQLite) Load(ctx context.Context, user task.UserID) (Record, error) {
	return s.load(ctx, s.db, user)
}

// Update runs fn inside a transaction and upserts the result.
func (s *SQLite) Update(ctx context.Context, user task.UserID, fn func(*Record) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning update of %s: %w", user, err)
	}
	defer tx.Rollback()

	rec, err := s.load(ctx, tx, user)
	if errors.Is(err, ErrNotFound) {
		rec = NewRecord()
	} else if err != nil {
		return err
	}
	if err := fn(&rec); err != nil {
		return err
	}
	rec.normalize()
	rec.UpdatedAt = s.now().UTC()

	prefs, err := json.Marshal(rec.Preferences)
	if err != nil {
		return fmt.Errorf("encoding preferences of %s: %w", user, err)
	}
	freq, err := json.Marshal(rec.Frequency)
	if err != nil {
		return fmt.Errorf("encoding frequency of %s: %w", user, err)
	}
	shortcuts, err := json.Marshal(rec.Shortcuts)
	if err != nil {
		return fmt.Errorf("encoding shortcuts of %s: %w", user, err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO user_records (user_id, preferences, frequency, shortcuts, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			preferences = excluded.preferences,
			frequency   = excluded.frequency,
			shortcuts   = excluded.shortcuts,
			updated_at  = excluded.updated_at`,
		string(user), string(prefs), string(freq), string(shortcuts), rec.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving record of %s: %w", user, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing record of %s: %w", user, err)
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
