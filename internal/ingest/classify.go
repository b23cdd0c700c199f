// Package ingest turns a raw request body into persisted log entries.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jittakal/datalogger/internal/errors"
	"github.com/jittakal/datalogger/pkg/reading"
)

// Classify decides which payload variant a body carries from its first
// non-whitespace byte: '{' selects a Record, anything else a Line.
func Classify(body []byte) (reading.Payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return reading.Payload{}, errors.ErrEmptyBody
	}

	if trimmed[0] != '{' {
		return reading.NewLine(string(trimmed)), nil
	}

	record, err := decodeRecord(trimmed)
	if err != nil {
		return reading.Payload{}, &errors.MalformedRecordError{Detail: err.Error()}
	}
	return reading.NewRecord(record), nil
}

// decodeRecord parses exactly one JSON object. Numbers are kept as
// json.Number so values are written back unchanged.
func decodeRecord(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var record map[string]any
	if err := dec.Decode(&record); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after top-level object")
	}
	return record, nil
}
