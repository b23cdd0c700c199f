// Package encoder implements file format encoders for exported readings.
package encoder

import (
	"fmt"
	"os"
	"strings"

	"github.com/jittakal/datalogger/pkg/encoder"
	"github.com/parquet-go/parquet-go"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*ParquetEncoder)(nil)

// ReadingParquet is the Parquet schema for exported readings. Optional
// columns are pointers so absent values are written as NULL.
type ReadingParquet struct {
	Timestamp       string   `parquet:"timestamp"`
	SlaveID         *int32   `parquet:"slave_id,optional"`
	TargetAddresses string   `parquet:"target_addresses,dict"`
	Data            string   `parquet:"data"`
	ValueCount      int32    `parquet:"value_count"`
	ValueMin        *float64 `parquet:"value_min,optional"`
	ValueMax        *float64 `parquet:"value_max,optional"`
	ValueAvg        *float64 `parquet:"value_avg,optional"`
	ProcessedAt     string   `parquet:"processed_at"`
	ServerAddress   string   `parquet:"server_address,dict"`
	UserAgent       string   `parquet:"user_agent,dict"`
}

// ParquetEncoder implements encoder.Encoder for Apache Parquet.
// Supported codecs: snappy (default), gzip, lz4, zstd, uncompressed.
type ParquetEncoder struct {
	compressionName string
}

// NewParquetEncoder creates a new Parquet encoder with specified compression.
func NewParquetEncoder(compression string) *ParquetEncoder {
	return &ParquetEncoder{
		compressionName: compression,
	}
}

// compressionCodec converts a compression name to a parquet WriterOption.
func compressionCodec(compression string) parquet.WriterOption {
	switch strings.ToLower(compression) {
	case "gzip":
		return parquet.Compression(&parquet.Gzip)
	case "lz4":
		return parquet.Compression(&parquet.Lz4Raw)
	case "zstd":
		return parquet.Compression(&parquet.Zstd)
	case "uncompressed", "none":
		return parquet.Compression(&parquet.Uncompressed)
	default:
		return parquet.Compression(&parquet.Snappy)
	}
}

// Encode writes rows to a Parquet file.
func (e *ParquetEncoder) Encode(filePath string, rows []encoder.Row) (*encoder.FileStats, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows to encode")
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	parquetRows := make([]ReadingParquet, len(rows))
	for i, row := range rows {
		parquetRows[i] = toParquetRow(row)
	}

	writer := parquet.NewGenericWriter[ReadingParquet](
		file,
		compressionCodec(e.compressionName),
		parquet.CreatedBy("datalogger", "1.0", "0"),
	)

	if _, err := writer.Write(parquetRows); err != nil {
		writer.Close()
		file.Close()
		return nil, fmt.Errorf("failed to write rows: %w", err)
	}

	if err := writer.Close(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return statFile(filePath, len(rows))
}

func toParquetRow(row encoder.Row) ReadingParquet {
	return ReadingParquet{
		Timestamp:       row.Timestamp,
		SlaveID:         row.SlaveID,
		TargetAddresses: row.TargetAddresses,
		Data:            row.Data,
		ValueCount:      row.ValueCount,
		ValueMin:        row.ValueMin,
		ValueMax:        row.ValueMax,
		ValueAvg:        row.ValueAvg,
		ProcessedAt:     row.ProcessedAt,
		ServerAddress:   row.ServerAddress,
		UserAgent:       row.UserAgent,
	}
}

// Format returns the file format.
func (e *ParquetEncoder) Format() encoder.Format {
	return encoder.FormatParquet
}

// FileExtension returns the file extension.
func (e *ParquetEncoder) FileExtension() string {
	return ".parquet"
}

func statFile(filePath string, rowCount int) (*encoder.FileStats, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return &encoder.FileStats{
		RowCount:  rowCount,
		SizeBytes: fileInfo.Size(),
	}, nil
}
