// Package archive copies rotated log backups to object storage.
//
// Archiving runs after a rotation has completed and the file lock has been
// released. The local backup is always kept; an upload failure is logged and
// counted but never fails the append that triggered the rotation.
package archive

import (
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jittakal/datalogger/internal/config/dto"
	"github.com/jittakal/datalogger/pkg/storage"
)

// Backend names.
const (
	BackendNone  = "none"
	BackendS3    = "s3"
	BackendGCS   = "gcs"
	BackendAzure = "azure"
)

// MetricsCollector defines metrics operations for archiving.
type MetricsCollector interface {
	IncArchiveUploads(backend string, status string)
	ObserveArchiveDuration(backend string, duration float64)
	IncStorageErrors(backend string, operation string)
}

// New creates the archiver selected by cfg.Backend. It returns nil when
// archiving is disabled.
func New(cfg dto.ArchiveConfig, logger *slog.Logger, metrics MetricsCollector) (storage.Archiver, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendNone:
		logger.Info("archiving disabled")
		return nil, nil

	case BackendS3:
		a, err := NewS3Archiver(cfg.S3, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 archiver: %w", err)
		}
		return a, nil

	case BackendGCS:
		a, err := NewGCSArchiver(cfg.GCS, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS archiver: %w", err)
		}
		return a, nil

	case BackendAzure:
		a, err := NewAzureArchiver(cfg.Azure, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure archiver: %w", err)
		}
		return a, nil

	default:
		return nil, fmt.Errorf("unsupported archive backend: %s", cfg.Backend)
	}
}

// ObjectKey maps a local backup at root/YYYY/MM/file to prefix/YYYY/MM/file.
func ObjectKey(prefix string, localPath string) string {
	dir := filepath.Dir(localPath)
	month := filepath.Base(dir)
	year := filepath.Base(filepath.Dir(dir))
	return strings.TrimPrefix(path.Join(prefix, year, month, filepath.Base(localPath)), "/")
}

// ContentType returns the MIME type used for a backup upload.
func ContentType(localPath string) string {
	if strings.HasSuffix(localPath, ".gz") {
		return "application/gzip"
	}
	return "application/octet-stream"
}

// observe records the outcome of one upload.
func observe(metrics MetricsCollector, backend string, start time.Time, err error) {
	if metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		metrics.IncStorageErrors(backend, "upload")
	}
	metrics.IncArchiveUploads(backend, status)
	metrics.ObserveArchiveDuration(backend, time.Since(start).Seconds())
}
