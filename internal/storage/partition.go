// Package storage implements the date-partitioned append-only log store.
package storage

import (
	"os"
	"path/filepath"
	"time"

	"github.com/jittakal/datalogger/internal/errors"
	"github.com/jittakal/datalogger/pkg/reading"
	"github.com/jittakal/datalogger/pkg/storage"
)

// Ensure implementations satisfy interfaces.
var (
	_ storage.Partitioner = (*DatePartitioner)(nil)
	_ storage.Rotator     = (*SizeRotator)(nil)
)

// DatePartitioner lays log files out as root/YYYY/MM/YYYY-MM-DD<suffix>.
type DatePartitioner struct {
	root string
}

// NewPartitioner creates a partitioner rooted at root.
func NewPartitioner(root string) *DatePartitioner {
	return &DatePartitioner{root: root}
}

// Root returns the storage root directory.
func (p *DatePartitioner) Root() string {
	return p.root
}

// Resolve returns the log file path for t and kind, creating the year and
// month directories as needed. A directory that already exists, including
// one created concurrently by another request, is not an error.
func (p *DatePartitioner) Resolve(t time.Time, kind reading.LogKind) (string, error) {
	dir := p.Dir(t)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.NewStorageError("mkdir", dir, err)
	}
	return filepath.Join(dir, FileName(t, kind)), nil
}

// Dir returns the month partition directory for t without creating it.
func (p *DatePartitioner) Dir(t time.Time) string {
	return filepath.Join(p.root, t.Format("2006"), t.Format("01"))
}

// FileName returns the base name of the log file for t and kind.
func FileName(t time.Time, kind reading.LogKind) string {
	return t.Format("2006-01-02") + kind.Suffix()
}
