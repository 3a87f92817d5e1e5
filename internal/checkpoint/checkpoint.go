// Package checkpoint selects and opens checkpoint stores. The contract lives
// in the core subpackage; this package re-exports it alongside an
// environment-driven factory.
package checkpoint

import (
	"fmt"
	"os"

	"trackcore/internal/checkpoint/core"
	"trackcore/internal/infra/checkpoint/memory"
	"trackcore/internal/infra/checkpoint/postgres"
	"trackcore/internal/infra/checkpoint/sqlite"
)

type (
	// Driver identifies a concrete checkpoint storage implementation.
	Driver = core.Driver
	// Store saves and restores tracked-set checkpoints.
	Store = core.Store
)

// Supported checkpoint drivers.
const (
	DriverMemory   = core.DriverMemory
	DriverSQLite   = core.DriverSQLite
	DriverPostgres = core.DriverPostgres
)

// Open selects a checkpoint backend using environment variables. Defaults to
// sqlite when unset.
//
//	TRACKCORE_CHECKPOINT_DRIVER: memory|sqlite|postgres (default sqlite)
//	TRACKCORE_SQLITE_PATH: path to sqlite file (default ./trackcore.db)
//	TRACKCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func Open() (Store, error) {
	driver := os.Getenv("TRACKCORE_CHECKPOINT_DRIVER")
	if driver == "" {
		driver = string(DriverSQLite)
	}
	switch Driver(driver) {
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		return sqlite.NewStore(os.Getenv("TRACKCORE_SQLITE_PATH"))
	case DriverPostgres:
		return postgres.NewStore(os.Getenv("TRACKCORE_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown checkpoint driver %s", driver)
	}
}
