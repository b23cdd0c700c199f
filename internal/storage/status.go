package storage

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jittakal/datalogger/internal/errors"
	"github.com/jittakal/datalogger/pkg/reading"
	"github.com/jittakal/datalogger/pkg/storage"
)

// StatusReporter summarizes the active log files under the storage root.
type StatusReporter struct {
	root string
}

// NewStatusReporter creates a reporter for root.
func NewStatusReporter(root string) *StatusReporter {
	return &StatusReporter{root: root}
}

// Status walks the root and counts active line and record files. Backups
// and lock files are not counted. Files that disappear during the walk,
// for example because of a concurrent rotation, are skipped.
func (s *StatusReporter) Status() (storage.Status, error) {
	var st storage.Status

	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return st, nil
	}

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		kind, ok := classifyFile(d.Name())
		if !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		switch kind {
		case reading.LogLine:
			st.LineFileCount++
		case reading.LogRecord:
			st.RecordFileCount++
		}
		st.TotalSizeBytes += info.Size()
		return nil
	})
	if err != nil {
		return st, errors.NewStorageError("status", s.root, err)
	}
	return st, nil
}

func classifyFile(name string) (reading.LogKind, bool) {
	switch {
	case strings.HasSuffix(name, reading.LogRecord.Suffix()):
		return reading.LogRecord, true
	case strings.HasSuffix(name, reading.LogLine.Suffix()):
		return reading.LogLine, true
	default:
		return "", false
	}
}
