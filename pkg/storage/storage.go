// Package storage defines interfaces for the data logger's append-only file
// store.
//
// All persistent state lives on the filesystem under a single configured
// root. Implementations coordinate concurrent writers through per-path locks
// rather than in-process shared state.
package storage

import (
	"context"
	"time"

	"github.com/jittakal/datalogger/pkg/reading"
)

// Partitioner maps a point in time and a log kind to an on-disk path.
type Partitioner interface {
	// Resolve returns root/YYYY/MM/YYYY-MM-DD<suffix>, creating the year and
	// month directories if they do not exist.
	Resolve(t time.Time, kind reading.LogKind) (string, error)

	// Root returns the storage root directory.
	Root() string
}

// Rotator relocates an oversized file before it is appended to.
type Rotator interface {
	// MaybeRotate returns nil, nil when no rotation was needed.
	// Callers must hold the path's lock.
	MaybeRotate(path string) (*reading.RotationRecord, error)
}

// Archiver copies a rotated backup to remote storage.
type Archiver interface {
	// Archive uploads the file at localPath and returns its remote URI.
	Archive(ctx context.Context, localPath string) (string, error)

	// Name returns the backend name used in logs and metrics.
	Name() string

	// Close releases client resources.
	Close() error
}

// Status is a best-effort snapshot of the persisted log files.
type Status struct {
	LineFileCount   int   `json:"line_file_count"`
	RecordFileCount int   `json:"record_file_count"`
	TotalSizeBytes  int64 `json:"total_size_bytes"`
}
