package encoder

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jittakal/datalogger/pkg/encoder"
	"github.com/klauspost/compress/gzip"
	"github.com/linkedin/goavro/v2"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*AvroEncoder)(nil)

// AvroEncoder implements encoder.Encoder for Avro Object Container Files.
// "deflate" and "snappy" use the container's block codec; "gzip" wraps the
// whole file.
type AvroEncoder struct {
	codec       *goavro.Codec
	compression string
}

// NewAvroEncoder creates a new Avro encoder with specified compression.
func NewAvroEncoder(compression string) (*AvroEncoder, error) {
	codec, err := goavro.NewCodec(avroSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}

	return &AvroEncoder{
		codec:       codec,
		compression: strings.ToLower(compression),
	}, nil
}

// avroSchema returns the Avro schema for exported readings.
func avroSchema() string {
	return `{
		"type": "record",
		"name": "Reading",
		"namespace": "com.datalogger",
		"fields": [
			{"name": "timestamp", "type": "string"},
			{"name": "slave_id", "type": ["null", "int"], "default": null},
			{"name": "target_addresses", "type": "string"},
			{"name": "data", "type": "string"},
			{"name": "value_count", "type": "int"},
			{"name": "value_min", "type": ["null", "double"], "default": null},
			{"name": "value_max", "type": ["null", "double"], "default": null},
			{"name": "value_avg", "type": ["null", "double"], "default": null},
			{"name": "processed_at", "type": "string"},
			{"name": "server_address", "type": "string"},
			{"name": "user_agent", "type": "string"}
		]
	}`
}

// Codec returns the Avro codec used for encoding.
func (e *AvroEncoder) Codec() *goavro.Codec {
	return e.codec
}

// Encode writes rows to an Avro file.
func (e *AvroEncoder) Encode(filePath string, rows []encoder.Row) (*encoder.FileStats, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows to encode")
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	var writer io.Writer = file
	var gzipWriter *gzip.Writer
	if e.compression == "gzip" {
		gzipWriter = gzip.NewWriter(file)
		writer = gzipWriter
		defer gzipWriter.Close()
	}

	ocfWriter, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               writer,
		Codec:           e.codec,
		CompressionName: e.blockCodec(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OCF writer: %w", err)
	}

	native := make([]any, len(rows))
	for i, row := range rows {
		native[i] = toAvroMap(row)
	}
	if err := ocfWriter.Append(native); err != nil {
		return nil, fmt.Errorf("failed to write rows: %w", err)
	}

	if gzipWriter != nil {
		if err := gzipWriter.Close(); err != nil {
			return nil, fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return statFile(filePath, len(rows))
}

func (e *AvroEncoder) blockCodec() string {
	switch e.compression {
	case "deflate":
		return goavro.CompressionDeflateLabel
	case "snappy":
		return goavro.CompressionSnappyLabel
	default:
		return goavro.CompressionNullLabel
	}
}

// toAvroMap converts a Row to its native Avro form. Nullable fields use
// goavro.Union.
func toAvroMap(row encoder.Row) map[string]any {
	m := map[string]any{
		"timestamp":        row.Timestamp,
		"slave_id":         nil,
		"target_addresses": row.TargetAddresses,
		"data":             row.Data,
		"value_count":      row.ValueCount,
		"value_min":        nil,
		"value_max":        nil,
		"value_avg":        nil,
		"processed_at":     row.ProcessedAt,
		"server_address":   row.ServerAddress,
		"user_agent":       row.UserAgent,
	}
	if row.SlaveID != nil {
		m["slave_id"] = goavro.Union("int", *row.SlaveID)
	}
	if row.ValueMin != nil {
		m["value_min"] = goavro.Union("double", *row.ValueMin)
	}
	if row.ValueMax != nil {
		m["value_max"] = goavro.Union("double", *row.ValueMax)
	}
	if row.ValueAvg != nil {
		m["value_avg"] = goavro.Union("double", *row.ValueAvg)
	}
	return m
}

// Format returns the file format.
func (e *AvroEncoder) Format() encoder.Format {
	return encoder.FormatAvro
}

// FileExtension returns the file extension.
func (e *AvroEncoder) FileExtension() string {
	if e.compression == "gzip" {
		return ".avro.gz"
	}
	return ".avro"
}
