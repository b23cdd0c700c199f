package storage

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jittakal/datalogger/internal/errors"
	"github.com/jittakal/datalogger/internal/filelock"
	"github.com/jittakal/datalogger/pkg/reading"
	"github.com/jittakal/datalogger/pkg/storage"
)

// MetricsCollector defines metrics operations for storage.
type MetricsCollector interface {
	IncLogAppends(kind string, status string)
	SetLogFileSize(kind string, size float64)
	IncRotations(kind string, compressed bool)
	IncStorageErrors(backend string, operation string)
}

// AppenderConfig holds the collaborators shared by both appenders.
type AppenderConfig struct {
	Locker   *filelock.Locker
	Rotator  storage.Rotator
	Archiver storage.Archiver // optional
	Logger   *slog.Logger
	Metrics  MetricsCollector // optional
}

// fileAppender runs the rotate-check, prepare and append sequence for one
// path under a single exclusive lock.
type fileAppender struct {
	kind     reading.LogKind
	locker   *filelock.Locker
	rotator  storage.Rotator
	archiver storage.Archiver
	logger   *slog.Logger
	metrics  MetricsCollector
	now      func() time.Time
}

func newFileAppender(kind reading.LogKind, config AppenderConfig) fileAppender {
	locker := config.Locker
	if locker == nil {
		locker = filelock.New()
	}
	return fileAppender{
		kind:     kind,
		locker:   locker,
		rotator:  config.Rotator,
		archiver: config.Archiver,
		logger:   config.Logger,
		metrics:  config.Metrics,
		now:      time.Now,
	}
}

// appendFn returns the bytes to append given the current size of the file
// after any rotation. A size of zero means the file is new.
type appendFn func(size int64) ([]byte, error)

func (a *fileAppender) append(ctx context.Context, path string, build appendFn) (reading.WriteResult, error) {
	result := reading.WriteResult{File: path}

	err := a.locker.WithLock(path, func() error {
		if a.rotator != nil {
			rotation, err := a.rotator.MaybeRotate(path)
			if err != nil {
				a.incError("rotate")
				return err
			}
			if rotation != nil {
				result.Rotation = rotation
				if a.metrics != nil {
					a.metrics.IncRotations(string(a.kind), rotation.Compressed)
				}
			}
		}

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			a.incError("open")
			return errors.NewStorageError("open", path, err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			a.incError("stat")
			return errors.NewStorageError("stat", path, err)
		}

		data, err := build(info.Size())
		if err != nil {
			a.incError("encode")
			return err
		}

		// One write call per append keeps a header and its first line together.
		if _, err := f.Write(data); err != nil {
			a.incError("write")
			return errors.NewStorageError("write", path, err)
		}
		if err := f.Close(); err != nil {
			a.incError("close")
			return errors.NewStorageError("close", path, err)
		}

		result.Size = info.Size() + int64(len(data))
		return nil
	})
	if err != nil {
		if !errors.IsStorage(err) {
			err = errors.NewStorageError("append", path, err)
		}
		result.Error = err.Error()
		if a.metrics != nil {
			a.metrics.IncLogAppends(string(a.kind), "error")
		}
		a.logger.Error("append failed",
			"kind", a.kind,
			"file", path,
			"error", err,
		)
		return result, err
	}

	result.Success = true
	if a.metrics != nil {
		a.metrics.IncLogAppends(string(a.kind), "success")
		a.metrics.SetLogFileSize(string(a.kind), float64(result.Size))
	}

	if result.Rotation != nil {
		a.archive(ctx, result.Rotation)
	}

	return result, nil
}

// archive uploads a rotated backup. It runs after the path lock has been
// released and never fails the append.
func (a *fileAppender) archive(ctx context.Context, rotation *reading.RotationRecord) {
	if a.archiver == nil {
		return
	}
	uri, err := a.archiver.Archive(ctx, rotation.Backup)
	if err != nil {
		a.logger.Error("failed to archive rotated backup",
			"backend", a.archiver.Name(),
			"backup", rotation.Backup,
			"error", err,
		)
		return
	}
	rotation.Archived = uri
}

func (a *fileAppender) incError(operation string) {
	if a.metrics != nil {
		a.metrics.IncStorageErrors("file", operation)
	}
}
