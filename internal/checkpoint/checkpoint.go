// Package checkpoint keeps the latest managed status fields in a single-row
// SQLite table so that a restarted daemon resumes from the last applied state
// instead of the template's seed values. Only the current state is stored.
package checkpoint

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// State is the checkpointed subset of the status document.
type State struct {
	LeverOpen       bool
	LeverLastChange time.Time
	DoorOpen        bool
	DoorLocked      bool
	DoorLastChange  time.Time
}

// Store is a SQLite-backed checkpoint.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the checkpoint database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout=5000;",
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("checkpoint: set pragma %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint: create schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Load returns the stored state. ok is false if nothing was saved yet.
func (s *Store) Load(ctx context.Context) (st State, ok bool, err error) {
	var leverOpen, doorOpen, doorLocked int
	var leverChange, doorChange int64
	err = s.db.QueryRowContext(ctx, `
SELECT lever_open, lever_lastchange, door_open, door_locked, door_lastchange
FROM checkpoint WHERE id = 1;`,
	).Scan(&leverOpen, &leverChange, &doorOpen, &doorLocked, &doorChange)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("checkpoint: load: %w", err)
	}
	return State{
		LeverOpen:       leverOpen != 0,
		LeverLastChange: fromUnix(leverChange),
		DoorOpen:        doorOpen != 0,
		DoorLocked:      doorLocked != 0,
		DoorLastChange:  fromUnix(doorChange),
	}, true, nil
}

// Save replaces the stored state.
func (s *Store) Save(ctx context.Context, st State) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO checkpoint(id, lever_open, lever_lastchange, door_open, door_locked, door_lastchange, updated_at_ms)
VALUES (1, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  lever_open = excluded.lever_open,
  lever_lastchange = excluded.lever_lastchange,
  door_open = excluded.door_open,
  door_locked = excluded.door_locked,
  door_lastchange = excluded.door_lastchange,
  updated_at_ms = excluded.updated_at_ms;`,
		boolInt(st.LeverOpen), toUnix(st.LeverLastChange),
		boolInt(st.DoorOpen), boolInt(st.DoorLocked), toUnix(st.DoorLastChange),
		s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("checkpoint: save: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Zero times are stored as 0 so they survive a round trip as zero.
func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
