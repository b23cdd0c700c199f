package archive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jittakal/datalogger/internal/config/dto"
)

func TestS3Config_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  dto.S3Config
		wantErr bool
	}{
		{
			name:    "valid config",
			config:  dto.S3Config{Bucket: "test-bucket", Region: "us-east-1"},
			wantErr: false,
		},
		{
			name:    "empty bucket",
			config:  dto.S3Config{Region: "us-east-1"},
			wantErr: true,
		},
		{
			name:    "empty region",
			config:  dto.S3Config{Bucket: "test-bucket"},
			wantErr: true,
		},
		{
			name: "with SSE KMS key",
			config: dto.S3Config{
				Bucket:      "test-bucket",
				Region:      "us-east-1",
				SSEEnabled:  true,
				SSEKMSKeyID: "arn:aws:kms:us-east-1:123456789012:key/12345678-1234-1234-1234-123456789012",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// fakeS3 accepts PutObject requests and records what it received.
type fakeS3 struct {
	mu      sync.Mutex
	method  string
	path    string
	body    []byte
	ctype   string
	sse     string
	failing bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	if f.failing {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
		return
	}

	f.method = r.Method
	f.path = r.URL.Path
	f.body = body
	f.ctype = r.Header.Get("Content-Type")
	f.sse = r.Header.Get("X-Amz-Server-Side-Encryption")
	w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
	w.WriteHeader(http.StatusOK)
}

func newTestS3Archiver(t *testing.T, endpoint string, metrics MetricsCollector) *S3Archiver {
	t.Helper()
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	a, err := NewS3Archiver(dto.S3Config{
		Bucket:       "sensor-backups",
		Region:       "us-east-1",
		BasePath:     "datalogger",
		Endpoint:     endpoint,
		UsePathStyle: true,
		SSEEnabled:   true,
	}, testLogger(), metrics)
	if err != nil {
		t.Fatalf("NewS3Archiver() error = %v", err)
	}
	return a
}

func writeBackup(t *testing.T, content string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "2025", "07")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "2025-07-01.csv.20250701_140509.bak")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestS3Archiver_Archive(t *testing.T) {
	fake := &fakeS3{}
	server := httptest.NewServer(fake)
	defer server.Close()

	metrics := newMockMetrics()
	a := newTestS3Archiver(t, server.URL, metrics)
	defer a.Close()

	backup := writeBackup(t, "timestamp,temperature\n1,2\n")

	uri, err := a.Archive(context.Background(), backup)
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	wantKey := "datalogger/2025/07/2025-07-01.csv.20250701_140509.bak"
	if uri != "s3://sensor-backups/"+wantKey {
		t.Errorf("uri = %q", uri)
	}
	if fake.method != http.MethodPut {
		t.Errorf("method = %s, want PUT", fake.method)
	}
	if fake.path != "/sensor-backups/"+wantKey {
		t.Errorf("path = %q", fake.path)
	}
	if !strings.Contains(string(fake.body), "1,2") {
		t.Errorf("uploaded body = %q", fake.body)
	}
	if fake.ctype != "application/octet-stream" {
		t.Errorf("Content-Type = %q", fake.ctype)
	}
	if fake.sse != "AES256" {
		t.Errorf("SSE header = %q, want AES256", fake.sse)
	}
	if metrics.uploads["s3/success"] != 1 {
		t.Errorf("s3/success uploads = %d, want 1", metrics.uploads["s3/success"])
	}
	if a.Name() != "s3" {
		t.Errorf("Name() = %q", a.Name())
	}
}

func TestS3Archiver_ArchiveFailure(t *testing.T) {
	server := httptest.NewServer(&fakeS3{failing: true})
	defer server.Close()

	metrics := newMockMetrics()
	a := newTestS3Archiver(t, server.URL, metrics)

	if _, err := a.Archive(context.Background(), writeBackup(t, "x")); err == nil {
		t.Fatal("Archive() error = nil, want error")
	}
	if metrics.uploads["s3/error"] != 1 {
		t.Errorf("s3/error uploads = %d, want 1", metrics.uploads["s3/error"])
	}
	if metrics.storageErrors != 1 {
		t.Errorf("storage errors = %d, want 1", metrics.storageErrors)
	}
}

func TestS3Archiver_MissingFile(t *testing.T) {
	a := newTestS3Archiver(t, "http://127.0.0.1:1", nil)

	if _, err := a.Archive(context.Background(), filepath.Join(t.TempDir(), "absent.bak")); err == nil {
		t.Error("Archive() error = nil, want error for missing backup")
	}
}
