// Package export converts a day's record log into an analytic file format.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jittakal/datalogger/internal/encoder"
	"github.com/jittakal/datalogger/internal/errors"
	"github.com/jittakal/datalogger/internal/ingest"
	"github.com/jittakal/datalogger/internal/storage"
	pkgencoder "github.com/jittakal/datalogger/pkg/encoder"
	"github.com/jittakal/datalogger/pkg/reading"
)

// DateFormat is the layout of the --date argument.
const DateFormat = "2006-01-02"

// maxLineBytes bounds a single record log line.
const maxLineBytes = 4 * 1024 * 1024

// Result reports one export run.
type Result struct {
	Input     string
	Output    string
	Rows      int
	Skipped   int
	SizeBytes int64
}

// Exporter reads record logs from the storage root.
type Exporter struct {
	root   string
	logger *slog.Logger
}

// NewExporter creates an exporter for the store at root.
func NewExporter(root string, logger *slog.Logger) *Exporter {
	return &Exporter{root: root, logger: logger}
}

// Export encodes the record log of day into <root>/YYYY/MM/<day><ext>.
// Lines that are not JSON objects are skipped and counted.
func (e *Exporter) Export(ctx context.Context, day time.Time, format pkgencoder.Format, compression string) (*Result, error) {
	enc, err := encoder.NewFactory(format, compression).CreateEncoder()
	if err != nil {
		return nil, err
	}

	dir := storage.NewPartitioner(e.root).Dir(day)
	input := filepath.Join(dir, storage.FileName(day, reading.LogRecord))
	output := filepath.Join(dir, day.Format(DateFormat)+enc.FileExtension())

	rows, skipped, err := e.readRows(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no readings to export in %s", input)
	}

	stats, err := enc.Encode(output, rows)
	if err != nil {
		return nil, errors.NewStorageError("export", output, err)
	}

	result := &Result{
		Input:     input,
		Output:    output,
		Rows:      stats.RowCount,
		Skipped:   skipped,
		SizeBytes: stats.SizeBytes,
	}
	e.logger.Info("record log exported",
		"input", input,
		"output", output,
		"format", format,
		"rows", result.Rows,
		"skipped", skipped,
		"size", result.SizeBytes,
	)
	return result, nil
}

func (e *Exporter) readRows(ctx context.Context, path string) ([]pkgencoder.Row, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.NewStorageError("open", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var rows []pkgencoder.Row
	skipped := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
		}
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}

		row, err := ParseRow(scanner.Bytes())
		if err != nil {
			skipped++
			e.logger.Warn("skipping malformed record line",
				"file", path,
				"line", lineNo,
				"error", err,
			)
			continue
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, errors.NewStorageError("read", path, err)
	}
	return rows, skipped, nil
}

// ParseRow flattens one record log line into an export row.
func ParseRow(line []byte) (pkgencoder.Row, error) {
	p, err := ingest.Classify(line)
	if err != nil {
		return pkgencoder.Row{}, err
	}
	if p.Kind != reading.KindRecord {
		return pkgencoder.Row{}, fmt.Errorf("line is not a JSON object")
	}

	md := p.Metadata()
	row := pkgencoder.Row{
		Timestamp:       stringField(p, reading.FieldTimestamp),
		TargetAddresses: "[]",
		ProcessedAt:     stringField(p, reading.FieldProcessedAt),
		ServerAddress:   stringField(p, reading.FieldServerAddress),
		UserAgent:       stringField(p, reading.FieldUserAgent),
	}

	if md.SlaveID != nil {
		id := int32(*md.SlaveID)
		row.SlaveID = &id
	}
	if len(md.TargetAddresses) > 0 {
		b, err := json.Marshal(md.TargetAddresses)
		if err != nil {
			return pkgencoder.Row{}, err
		}
		row.TargetAddresses = string(b)
	}
	if data, ok := p.Field(reading.FieldData); ok {
		b, err := json.Marshal(data)
		if err != nil {
			return pkgencoder.Row{}, err
		}
		row.Data = string(b)
	}

	if stats := ingest.Summarize(p, time.Time{}).Stats; stats != nil {
		row.ValueCount = int32(stats.Count)
		row.ValueMin = &stats.Min
		row.ValueMax = &stats.Max
		row.ValueAvg = &stats.Avg
	}
	return row, nil
}

func stringField(p reading.Payload, name string) string {
	v, ok := p.Field(name)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
