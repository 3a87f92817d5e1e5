// Package core defines the checkpoint store contract: durable save/load of a
// full tracked-set snapshot, shared by the concrete backend implementations.
package core

import (
	"context"

	"trackcore/internal/tracking"
)

// Driver identifies a concrete checkpoint storage implementation.
type Driver string

const (
	// DriverMemory keeps the checkpoint in process memory (tests / ephemeral).
	DriverMemory Driver = "memory"
	// DriverSQLite persists the checkpoint in an embedded sqlite file.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres persists the checkpoint in a PostgreSQL server.
	DriverPostgres Driver = "postgres"
)

// Store saves and restores tracked-set checkpoints. Save replaces any prior
// checkpoint; Load reports false when none has been saved.
type Store interface {
	Save(ctx context.Context, cp tracking.Checkpoint) error
	Load(ctx context.Context) (tracking.Checkpoint, bool, error)
	Driver() Driver
	Close() error
}
