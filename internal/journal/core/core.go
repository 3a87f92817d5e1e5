// Package core defines the append-only change-journal contract shared by
// the tracking layer and the concrete sink implementations: one record per
// entry state transition, durable behind a pluggable sink.
package core

import (
	"context"
	"errors"
	"time"
)

// Driver identifies a concrete journal sink implementation.
type Driver string

const (
	// DriverFilesystem appends records to JSON-line files under a root dir.
	DriverFilesystem Driver = "fs"
	// DriverS3 writes record batches as objects to an S3-compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps records in process memory, typically for tests.
	DriverMemory Driver = "memory"
)

// Record describes one entry state transition.
type Record struct {
	Seq        uint64    `json:"seq"`
	RecordedAt time.Time `json:"recorded_at"`
	EntityType string    `json:"entity_type"`
	Key        string    `json:"key,omitempty"`
	FromState  string    `json:"from_state"`
	ToState    string    `json:"to_state"`
	Modified   []string  `json:"modified,omitempty"`
}

// Sink is an append-only destination for change records.
type Sink interface {
	Append(ctx context.Context, records []Record) error
	List(ctx context.Context) ([]Record, error)
	Driver() Driver
}

// ErrUnsupported is returned when an optional capability is not available.
var ErrUnsupported = errors.New("journal: unsupported operation")
