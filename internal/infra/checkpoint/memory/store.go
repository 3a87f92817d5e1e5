// Package memory implements an in-memory checkpoint Store for tests.
package memory

import (
	"context"
	"sync"

	"trackcore/internal/checkpoint/core"
	"trackcore/internal/tracking"
)

// Store implements core.Store backed by process memory.
type Store struct {
	mu    sync.RWMutex
	cp    tracking.Checkpoint
	saved bool
}

// NewStore returns an empty in-memory checkpoint store.
func NewStore() *Store { return &Store{} }

func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Save replaces the stored checkpoint.
func (s *Store) Save(_ context.Context, cp tracking.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp = cp
	s.saved = true
	return nil
}

// Load returns the stored checkpoint, or false when none has been saved.
func (s *Store) Load(_ context.Context) (tracking.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cp, s.saved, nil
}

func (s *Store) Close() error { return nil }
