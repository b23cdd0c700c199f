// Package reading defines the core types for sensor readings accepted by the
// data logger.
//
// A request body is classified into exactly one Payload variant: a raw
// delimited Line, or a structured Record decoded from a JSON object. Records
// may carry field-bus metadata (slave id and polled register addresses) that
// shapes the header of the day's line-oriented log file.
package reading

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind tags the active variant of a Payload.
type Kind string

const (
	KindLine   Kind = "line"
	KindRecord Kind = "record"
)

// Field names used by the device firmware. The camelCase aliases are
// accepted as well.
const (
	FieldTimestamp       = "timestamp"
	FieldData            = "data"
	FieldCSVLine         = "csv_line"
	FieldSlaveID         = "slave_id"
	FieldTargetAddresses = "target_addresses"

	FieldProcessedAt   = "processedAt"
	FieldServerAddress = "serverAddress"
	FieldUserAgent     = "userAgent"
)

var fieldAliases = map[string]string{
	FieldCSVLine:         "csvLine",
	FieldSlaveID:         "slaveId",
	FieldTargetAddresses: "targetAddresses",
}

// Payload is a tagged union: exactly one of Line or Record is meaningful,
// selected by Kind.
type Payload struct {
	Kind   Kind
	Line   string
	Record map[string]any
}

// NewLine returns a Line payload.
func NewLine(line string) Payload {
	return Payload{Kind: KindLine, Line: line}
}

// NewRecord returns a Record payload.
func NewRecord(record map[string]any) Payload {
	return Payload{Kind: KindRecord, Record: record}
}

// Field looks up a record field by its device name, falling back to the
// camelCase alias.
func (p Payload) Field(name string) (any, bool) {
	if p.Kind != KindRecord || p.Record == nil {
		return nil, false
	}
	if v, ok := p.Record[name]; ok && v != nil {
		return v, true
	}
	if alias, ok := fieldAliases[name]; ok {
		if v, ok := p.Record[alias]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// CSVLine returns the embedded raw line of a Record, if it carries one.
func (p Payload) CSVLine() (string, bool) {
	v, ok := p.Field(FieldCSVLine)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Metadata returns the field-bus metadata carried by a Record. Line payloads
// have none.
func (p Payload) Metadata() Metadata {
	var md Metadata
	if v, ok := p.Field(FieldSlaveID); ok {
		if id, ok := toInt(v); ok {
			md.SlaveID = &id
		}
	}
	if v, ok := p.Field(FieldTargetAddresses); ok {
		md.TargetAddresses = toInts(v)
	}
	return md
}

// Metadata holds optional fields extracted from a Record.
type Metadata struct {
	SlaveID         *int
	TargetAddresses []int
}

// RequestContext carries the transport-level facts a Record is enriched with.
type RequestContext struct {
	ServerAddress string
	RemoteAddress string
	UserAgent     string
}

// LogKind identifies which of the two daily log files a write targets.
type LogKind string

const (
	LogLine   LogKind = "line"
	LogRecord LogKind = "record"
)

// Suffix returns the file name suffix that follows the date.
func (k LogKind) Suffix() string {
	switch k {
	case LogRecord:
		return "_raw.json"
	default:
		return ".csv"
	}
}

// RotationRecord describes one rotation of an oversized log file.
type RotationRecord struct {
	Original   string
	Backup     string
	Compressed bool
	RotatedAt  time.Time

	// Archived is the remote URI of the uploaded backup, empty when the
	// backup was not archived.
	Archived string
}

// WriteResult reports the outcome of one append.
type WriteResult struct {
	Success bool   `json:"success"`
	File    string `json:"file"`
	Size    int64  `json:"size"`
	Error   string `json:"error,omitempty"`

	Rotation *RotationRecord `json:"-"`
}

// Stats are aggregate statistics over a Record's numeric observations.
type Stats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Count int     `json:"count"`
}

// Summary is computed per request and never persisted.
type Summary struct {
	Timestamp       string `json:"timestamp"`
	DataCount       int    `json:"data_count"`
	SlaveID         *int   `json:"slave_id"`
	TargetAddresses []int  `json:"target_addresses"`
	Stats           *Stats `json:"stats,omitempty"`
}

// String returns a short description used in log lines.
func (p Payload) String() string {
	switch p.Kind {
	case KindLine:
		return fmt.Sprintf("line(%d bytes)", len(p.Line))
	case KindRecord:
		return fmt.Sprintf("record(%d fields)", len(p.Record))
	default:
		return "payload(unknown)"
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

func toInts(v any) []int {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case string:
		// The configuration tool stores addresses as "203,212,218".
		for _, part := range strings.Split(t, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				items = append(items, n)
			}
		}
	default:
		return nil
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		if n, ok := toInt(item); ok {
			out = append(out, n)
		}
	}
	return out
}

// ToFloat converts a decoded JSON number to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
