// Package memory implements an in-memory journal Sink for tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"trackcore/internal/journal/core"
)

// Sink implements core.Sink backed by process memory. Intended for tests.
type Sink struct {
	mu      sync.RWMutex
	records []core.Record
}

// New returns an empty in-memory sink.
func New() *Sink { return &Sink{} }

// Driver returns the journal driver identifier.
func (s *Sink) Driver() core.Driver { return core.DriverMemory }

// Append stores a copy of the supplied records.
func (s *Sink) Append(_ context.Context, records []core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

// List returns all records ordered by sequence number.
func (s *Sink) List(_ context.Context) ([]core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Record, len(s.records))
	copy(out, s.records)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Reset drops all stored records.
func (s *Sink) Reset() {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()
}
