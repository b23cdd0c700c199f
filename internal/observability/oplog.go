package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jittakal/datalogger/internal/filelock"
)

// OpLogTimeFormat is the timestamp layout of operational log lines.
const OpLogTimeFormat = "2006-01-02 15:04:05"

// OpLogHandler is a slog.Handler that appends one line per record to the
// operational log file:
//
//	[2025-07-01 12:00:00] [INFO] message key=value
//
// Each append holds the file's exclusive lock.
type OpLogHandler struct {
	path   string
	level  slog.Leveler
	locker *filelock.Locker
	now    func() time.Time
	prefix string
	group  string
}

// NewOpLogHandler creates a handler appending to path.
func NewOpLogHandler(path string, level slog.Leveler, locker *filelock.Locker) *OpLogHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	if locker == nil {
		locker = filelock.New()
	}
	return &OpLogHandler{
		path:   path,
		level:  level,
		locker: locker,
		now:    time.Now,
	}
}

// Path returns the operational log file path.
func (h *OpLogHandler) Path() string {
	return h.path
}

func (h *OpLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *OpLogHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = h.now()
	}

	var b strings.Builder
	// one line per event
	msg := strings.ReplaceAll(r.Message, "\n", " ")
	fmt.Fprintf(&b, "[%s] [%s] %s", ts.Format(OpLogTimeFormat), r.Level.String(), msg)
	b.WriteString(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})
	b.WriteByte('\n')

	line := b.String()
	return h.locker.WithLock(h.path, func() error {
		f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open operational log: %w", err)
		}
		if _, err := f.WriteString(line); err != nil {
			f.Close()
			return fmt.Errorf("failed to write operational log: %w", err)
		}
		return f.Close()
	})
}

func (h *OpLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	var b strings.Builder
	b.WriteString(h.prefix)
	for _, a := range attrs {
		writeAttr(&b, h.group, a)
	}
	clone.prefix = b.String()
	return &clone
}

func (h *OpLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return &clone
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(b, key, ga)
		}
		return
	}
	val := a.Value.String()
	if strings.ContainsAny(val, " \t\"") {
		val = fmt.Sprintf("%q", val)
	}
	fmt.Fprintf(b, " %s=%s", key, val)
}
