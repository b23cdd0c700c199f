package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/jittakal/datalogger/pkg/reading"
)

// ProcessedAtFormat is the layout of the processedAt enrichment field.
const ProcessedAtFormat = "2006-01-02 15:04:05"

// unknown fills request context fields that were not supplied.
const unknown = "unknown"

// RecordAppender appends structured readings to the daily record file as
// one JSON object per line.
type RecordAppender struct {
	fileAppender
}

// NewRecordAppender creates a record appender.
func NewRecordAppender(config AppenderConfig) *RecordAppender {
	a := &RecordAppender{fileAppender: newFileAppender(reading.LogRecord, config)}
	a.logger.Info("record appender created")
	return a
}

// AppendRecord enriches record with server-side fields and appends it to
// path. The caller's map is not modified.
func (a *RecordAppender) AppendRecord(ctx context.Context, path string, record map[string]any, rc reading.RequestContext) (reading.WriteResult, error) {
	result, err := a.append(ctx, path, func(int64) ([]byte, error) {
		enriched := Enrich(record, rc, a.now().Format(ProcessedAtFormat))

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(enriched); err != nil {
			return nil, fmt.Errorf("failed to encode record: %w", err)
		}
		return buf.Bytes(), nil
	})
	if err != nil {
		return result, err
	}

	a.logger.Info("JSON data saved",
		"file", path,
		"size", result.Size,
	)
	return result, nil
}

// Enrich returns a copy of record with processedAt, serverAddress and
// userAgent set.
func Enrich(record map[string]any, rc reading.RequestContext, processedAt string) map[string]any {
	enriched := make(map[string]any, len(record)+3)
	maps.Copy(enriched, record)
	enriched[reading.FieldProcessedAt] = processedAt
	enriched[reading.FieldServerAddress] = orUnknown(rc.ServerAddress)
	enriched[reading.FieldUserAgent] = orUnknown(rc.UserAgent)
	return enriched
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
