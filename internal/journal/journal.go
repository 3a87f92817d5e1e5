// Package journal selects and opens change-journal sinks. The contract
// lives in the core subpackage; this package re-exports it alongside an
// environment-driven factory.
package journal

import (
	"context"
	"fmt"
	"os"

	"trackcore/internal/infra/journal/fs"
	"trackcore/internal/infra/journal/memory"
	"trackcore/internal/infra/journal/s3"
	"trackcore/internal/journal/core"
)

type (
	// Driver identifies a concrete journal sink implementation.
	Driver = core.Driver
	// Record describes one entry state transition.
	Record = core.Record
	// Sink is an append-only destination for change records.
	Sink = core.Sink
)

// Supported sink drivers.
const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// ErrUnsupported is returned when an optional capability is not available.
var ErrUnsupported = core.ErrUnsupported

// Open selects a sink backend using environment variables. Defaults to the
// filesystem driver when unset.
//
//	TRACKCORE_JOURNAL_DRIVER: fs|s3|memory (default fs)
//	TRACKCORE_JOURNAL_FS_ROOT: record directory for the fs driver
//	TRACKCORE_JOURNAL_S3_BUCKET (and friends): see the s3 sink package
func Open(ctx context.Context) (Sink, error) {
	driver := os.Getenv("TRACKCORE_JOURNAL_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverMemory:
		return memory.New(), nil
	case DriverFilesystem:
		return fs.New(os.Getenv("TRACKCORE_JOURNAL_FS_ROOT"))
	case DriverS3:
		return s3.OpenFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unknown journal driver %s", driver)
	}
}
