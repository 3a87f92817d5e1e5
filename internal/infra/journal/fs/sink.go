// Package fs implements a journal Sink on the local filesystem: records are
// appended as JSON lines to a single segment file under the root directory.
package fs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"trackcore/internal/journal/core"
)

const segmentName = "journal.jsonl"

// Sink implements core.Sink using a JSON-lines file. Appends are serialized
// through a mutex; this is intentionally simple and not multi-process safe.
type Sink struct {
	mu   sync.Mutex
	root string
}

// New returns a filesystem-backed journal sink rooted at path, creating the
// directory if needed.
func New(root string) (*Sink, error) {
	if root == "" {
		root = "./journaldata"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Sink{root: root}, nil
}

func (s *Sink) Driver() core.Driver { return core.DriverFilesystem }

func (s *Sink) segmentPath() string { return filepath.Join(s.root, segmentName) }

// Append writes the records to the segment file, one JSON document per line.
func (s *Sink) Append(_ context.Context, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.segmentPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// List reads the segment file back and returns records ordered by sequence.
func (s *Sink) List(_ context.Context) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.segmentPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var out []core.Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec core.Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("journal segment line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
