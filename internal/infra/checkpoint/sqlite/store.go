// Package sqlite implements a checkpoint Store on an embedded sqlite file.
// The checkpoint is written as a single JSON payload keyed by bucket.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"trackcore/internal/checkpoint/core"
	"trackcore/internal/tracking"
)

const checkpointBucket = "checkpoint"

// Store persists checkpoints to a single SQLite table as JSON blobs.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) a sqlite-backed checkpoint store at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "trackcore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverSQLite }

// Save replaces any stored checkpoint with cp.
func (s *Store) Save(ctx context.Context, cp tracking.Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `INSERT INTO state (bucket, payload) VALUES (?, ?)
		ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload`, checkpointBucket, payload)
	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

// Load returns the stored checkpoint, or false when none has been saved.
func (s *Store) Load(ctx context.Context) (tracking.Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM state WHERE bucket = ?`, checkpointBucket).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return tracking.Checkpoint{}, false, nil
	}
	if err != nil {
		return tracking.Checkpoint{}, false, fmt.Errorf("select checkpoint: %w", err)
	}
	var cp tracking.Checkpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return tracking.Checkpoint{}, false, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, true, nil
}

func (s *Store) Close() error { return s.db.Close() }
