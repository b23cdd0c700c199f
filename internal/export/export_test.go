package export

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jittakal/datalogger/internal/errors"
	"github.com/jittakal/datalogger/pkg/encoder"
)

var day = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func writeRecordLog(t *testing.T, root string, lines ...string) {
	t.Helper()
	dir := filepath.Join(root, "2025", "07")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, "2025-07-01_raw.json"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestParseRow(t *testing.T) {
	line := `{"timestamp":"2025-07-01 14:05:09","slave_id":3,"target_addresses":[203,212],` +
		`"data":[{"address":203,"value":20},{"address":212,"value":25}],` +
		`"processedAt":"2025-07-01 14:05:10","serverAddress":"192.168.1.10","userAgent":"ESP32"}`

	row, err := ParseRow([]byte(line))
	if err != nil {
		t.Fatalf("ParseRow() error = %v", err)
	}

	if row.Timestamp != "2025-07-01 14:05:09" {
		t.Errorf("Timestamp = %q", row.Timestamp)
	}
	if row.SlaveID == nil || *row.SlaveID != 3 {
		t.Errorf("SlaveID = %v, want 3", row.SlaveID)
	}
	if row.TargetAddresses != "[203,212]" {
		t.Errorf("TargetAddresses = %q, want [203,212]", row.TargetAddresses)
	}
	if !strings.Contains(row.Data, `"value":25`) {
		t.Errorf("Data = %q", row.Data)
	}
	if row.ValueCount != 2 {
		t.Errorf("ValueCount = %d, want 2", row.ValueCount)
	}
	if row.ValueMin == nil || *row.ValueMin != 20 {
		t.Errorf("ValueMin = %v, want 20", row.ValueMin)
	}
	if row.ValueMax == nil || *row.ValueMax != 25 {
		t.Errorf("ValueMax = %v, want 25", row.ValueMax)
	}
	if row.ValueAvg == nil || *row.ValueAvg != 22.5 {
		t.Errorf("ValueAvg = %v, want 22.5", row.ValueAvg)
	}
	if row.ProcessedAt != "2025-07-01 14:05:10" || row.ServerAddress != "192.168.1.10" || row.UserAgent != "ESP32" {
		t.Errorf("enrichment = %q %q %q", row.ProcessedAt, row.ServerAddress, row.UserAgent)
	}
}

func TestParseRow_WithoutValues(t *testing.T) {
	row, err := ParseRow([]byte(`{"timestamp":"t","csv_line":"a,b"}`))
	if err != nil {
		t.Fatalf("ParseRow() error = %v", err)
	}
	if row.SlaveID != nil {
		t.Errorf("SlaveID = %v, want nil", *row.SlaveID)
	}
	if row.ValueMin != nil || row.ValueCount != 0 {
		t.Errorf("stats = %v/%d, want none", row.ValueMin, row.ValueCount)
	}
	if row.TargetAddresses != "[]" {
		t.Errorf("TargetAddresses = %q, want []", row.TargetAddresses)
	}
}

func TestParseRow_Malformed(t *testing.T) {
	tests := []string{
		`{"timestamp":`,
		`not json at all`,
		`{"a":1} trailing`,
	}
	for _, line := range tests {
		if _, err := ParseRow([]byte(line)); err == nil {
			t.Errorf("ParseRow(%q) error = nil, want error", line)
		}
	}
}

func TestExporter_Export(t *testing.T) {
	for _, format := range []encoder.Format{encoder.FormatParquet, encoder.FormatAvro} {
		t.Run(string(format), func(t *testing.T) {
			root := t.TempDir()
			writeRecordLog(t, root,
				`{"timestamp":"2025-07-01 14:05:09","slave_id":1,"data":[{"value":1.5}]}`,
				`{"timestamp":`,
				``,
				`{"timestamp":"2025-07-01 14:06:09","csv_line":"x,y"}`,
			)

			result, err := NewExporter(root, testLogger()).Export(context.Background(), day, format, "")
			if err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			if result.Rows != 2 {
				t.Errorf("Rows = %d, want 2", result.Rows)
			}
			if result.Skipped != 1 {
				t.Errorf("Skipped = %d, want 1", result.Skipped)
			}

			wantOutput := filepath.Join(root, "2025", "07", "2025-07-01."+string(format))
			if result.Output != wantOutput {
				t.Errorf("Output = %q, want %q", result.Output, wantOutput)
			}
			info, err := os.Stat(result.Output)
			if err != nil {
				t.Fatalf("output missing: %v", err)
			}
			if info.Size() != result.SizeBytes {
				t.Errorf("SizeBytes = %d, file is %d", result.SizeBytes, info.Size())
			}
		})
	}
}

func TestExporter_MissingLog(t *testing.T) {
	_, err := NewExporter(t.TempDir(), testLogger()).Export(context.Background(), day, encoder.FormatParquet, "")
	if err == nil {
		t.Fatal("Export() error = nil, want error")
	}
	if !errors.IsStorage(err) {
		t.Errorf("Export() error = %v, want StorageError", err)
	}
}

func TestExporter_NothingToExport(t *testing.T) {
	root := t.TempDir()
	writeRecordLog(t, root, `garbage`)

	if _, err := NewExporter(root, testLogger()).Export(context.Background(), day, encoder.FormatAvro, ""); err == nil {
		t.Error("Export() error = nil, want error when every line is malformed")
	}
}

func TestExporter_UnsupportedFormat(t *testing.T) {
	if _, err := NewExporter(t.TempDir(), testLogger()).Export(context.Background(), day, encoder.Format("csv"), ""); err == nil {
		t.Error("Export() error = nil, want error")
	}
}
