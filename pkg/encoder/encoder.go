// Package encoder defines interfaces for exporting record logs to analytic
// file formats.
package encoder

// Format represents the export file format.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatAvro    Format = "avro"
)

// Row is one exported reading, flattened from a record log line.
type Row struct {
	Timestamp       string
	SlaveID         *int32
	TargetAddresses string
	Data            string
	ValueCount      int32
	ValueMin        *float64
	ValueMax        *float64
	ValueAvg        *float64
	ProcessedAt     string
	ServerAddress   string
	UserAgent       string
}

// FileStats describes an encoded file.
type FileStats struct {
	RowCount  int
	SizeBytes int64
}

// Encoder encodes rows to a specific file format.
type Encoder interface {
	// Encode writes rows to a file and returns file statistics.
	Encode(filePath string, rows []Row) (*FileStats, error)

	// Format returns the file format this encoder produces.
	Format() Format

	// FileExtension returns the file extension (e.g., ".parquet", ".avro").
	FileExtension() string
}
