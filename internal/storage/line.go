package storage

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jittakal/datalogger/pkg/reading"
)

// HeaderColumns are the fixed leading columns of every line file.
var HeaderColumns = []string{
	"timestamp",
	"temperature",
	"humidity",
	"rain",
	"illuminance",
	"wind_speed",
	"wind_direction",
}

// previewLength is how much of a line the operational log shows.
const previewLength = 50

// Header builds the header row for a new line file: the fixed columns
// followed by register_<addr> for each target address, in order.
//
// The header is committed by whichever request creates the file and is
// never rewritten, so a later request with different target addresses
// appends rows that do not match it. Rotation is the only way to get a new
// header for the same day.
func Header(md reading.Metadata) string {
	cols := make([]string, 0, len(HeaderColumns)+len(md.TargetAddresses))
	cols = append(cols, HeaderColumns...)
	for _, addr := range md.TargetAddresses {
		cols = append(cols, "register_"+strconv.Itoa(addr))
	}
	return strings.Join(cols, ",")
}

// LineAppender appends raw CSV lines to the daily line file.
type LineAppender struct {
	fileAppender
}

// NewLineAppender creates a line appender.
func NewLineAppender(config AppenderConfig) *LineAppender {
	a := &LineAppender{fileAppender: newFileAppender(reading.LogLine, config)}
	a.logger.Info("line appender created")
	return a
}

// AppendLine appends line to path, writing the header first when the file
// is new. Rotation, the header check and the append share one lock.
func (a *LineAppender) AppendLine(ctx context.Context, path string, line string, md reading.Metadata) (reading.WriteResult, error) {
	line = strings.TrimRight(line, "\r\n")

	result, err := a.append(ctx, path, func(size int64) ([]byte, error) {
		var b strings.Builder
		if size == 0 {
			b.WriteString(Header(md))
			b.WriteByte('\n')
		}
		b.WriteString(line)
		b.WriteByte('\n')
		return []byte(b.String()), nil
	})
	if err != nil {
		return result, err
	}

	a.logger.LogAttrs(ctx, slog.LevelInfo, "CSV data saved",
		slog.String("preview", Preview(line)),
		slog.String("file", path),
		slog.Int64("size", result.Size),
	)
	return result, nil
}

// Preview truncates s for log output.
func Preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLength {
		return s
	}
	return string(r[:previewLength]) + "..."
}
