package storage

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/jittakal/datalogger/internal/errors"
	"github.com/jittakal/datalogger/pkg/reading"
)

// DefaultMaxFileSize is the rotation threshold used when none is configured.
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// BackupTimeFormat is the timestamp layout embedded in backup file names.
const BackupTimeFormat = "20060102_150405"

// RotationConfig configures size-based rotation.
type RotationConfig struct {
	MaxSizeBytes int64
	Compress     bool
}

// SizeRotator renames a log file to a timestamped backup once it reaches the
// size threshold, optionally gzipping the backup.
type SizeRotator struct {
	maxSize  int64
	compress bool
	now      func() time.Time
	gzip     func(src string) (string, error)
	logger   *slog.Logger
}

// NewRotator creates a size-based rotator.
func NewRotator(config RotationConfig, logger *slog.Logger) *SizeRotator {
	maxSize := config.MaxSizeBytes
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &SizeRotator{
		maxSize:  maxSize,
		compress: config.Compress,
		now:      time.Now,
		gzip:     compressFile,
		logger:   logger,
	}
}

// MaxSize returns the rotation threshold in bytes.
func (r *SizeRotator) MaxSize() int64 {
	return r.maxSize
}

// ShouldRotate reports whether a file of the given size must be rotated.
// A file exactly at the threshold rotates.
func (r *SizeRotator) ShouldRotate(size int64) bool {
	return size >= r.maxSize
}

// MaybeRotate moves path aside if it has reached the threshold. It returns
// nil, nil when path does not exist or is still small enough. The caller
// must hold the lock for path.
func (r *SizeRotator) MaybeRotate(path string) (*reading.RotationRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStorageError("stat", path, err)
	}
	if !r.ShouldRotate(info.Size()) {
		return nil, nil
	}

	now := r.now()
	backup := backupPath(path, now)
	if err := os.Rename(path, backup); err != nil {
		return nil, errors.NewStorageError("rotate", path, err)
	}

	record := &reading.RotationRecord{
		Original:  path,
		Backup:    backup,
		RotatedAt: now,
	}

	if r.compress {
		compressed, err := r.gzip(backup)
		if err != nil {
			r.logger.Error("backup compression failed, keeping uncompressed backup",
				"backup", backup,
				"error", err,
			)
		} else {
			record.Backup = compressed
			record.Compressed = true
		}
	}

	r.logger.Info("file rotated",
		"file", path,
		"backup", record.Backup,
		"size", info.Size(),
		"compressed", record.Compressed,
	)

	return record, nil
}

// backupPath returns path.<YYYYMMDD_HHMMSS>.bak, inserting a sequence number
// when a backup from the same second already exists.
func backupPath(path string, t time.Time) string {
	base := fmt.Sprintf("%s.%s", path, t.Format(BackupTimeFormat))
	candidate := base + ".bak"
	for seq := 1; exists(candidate) || exists(candidate+".gz"); seq++ {
		candidate = fmt.Sprintf("%s.%d.bak", base, seq)
	}
	return candidate
}

// compressFile gzips src into src.gz. The source is removed only after the
// compressed copy has been flushed, closed and read back in full. On any
// failure the partial .gz is removed and src is left untouched.
func compressFile(src string) (dst string, err error) {
	dst = src + ".gz"

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open backup: %w", err)
	}
	defer in.Close()

	srcInfo, err := in.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat backup: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create compressed backup: %w", err)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(dst)
		}
	}()

	zw := gzip.NewWriter(out)
	if _, err = io.Copy(zw, in); err != nil {
		return "", fmt.Errorf("failed to compress backup: %w", err)
	}
	if err = zw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	if err = out.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync compressed backup: %w", err)
	}
	if err = out.Close(); err != nil {
		return "", fmt.Errorf("failed to close compressed backup: %w", err)
	}

	if err = verifyGzip(dst, srcInfo.Size()); err != nil {
		return "", err
	}

	in.Close()
	// A leftover .bak next to a verified .gz loses nothing.
	_ = os.Remove(src)
	return dst, nil
}

func verifyGzip(path string, wantSize int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to reopen compressed backup: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("compressed backup is not valid gzip: %w", err)
	}
	defer zr.Close()

	n, err := io.Copy(io.Discard, zr)
	if err != nil {
		return fmt.Errorf("compressed backup is corrupt: %w", err)
	}
	if n != wantSize {
		return fmt.Errorf("compressed backup holds %d bytes, want %d", n, wantSize)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
