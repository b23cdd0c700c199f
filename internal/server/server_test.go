package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jittakal/datalogger/internal/filelock"
	"github.com/jittakal/datalogger/internal/ingest"
	"github.com/jittakal/datalogger/internal/storage"
	"github.com/jittakal/datalogger/internal/validator"
	"github.com/jittakal/datalogger/pkg/reading"
	pkgstorage "github.com/jittakal/datalogger/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

// newTestHandler wires the real pipeline over a temporary root.
func newTestHandler(t *testing.T) (http.Handler, string) {
	t.Helper()
	root := t.TempDir()
	logger := testLogger()

	appenderConfig := storage.AppenderConfig{
		Locker:  filelock.New(),
		Rotator: storage.NewRotator(storage.RotationConfig{}, logger),
		Logger:  logger,
	}
	service := ingest.NewService(ingest.Config{
		Partitioner: storage.NewPartitioner(root),
		Validator:   validator.NewRequestValidator(),
		Lines:       storage.NewLineAppender(appenderConfig),
		Records:     storage.NewRecordAppender(appenderConfig),
		Logger:      logger,
	})

	return NewHandler(HandlerConfig{
		Ingester:    service,
		Status:      storage.NewStatusReporter(root),
		Version:     "test",
		DataDir:     root,
		MaxFileSize: storage.DefaultMaxFileSize,
		Logger:      logger,
	}), root
}

func post(h http.Handler, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("User-Agent", "ESP32HTTPClient")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, w.Body.String())
	}
	return v
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestHandler_IngestLine(t *testing.T) {
	h, _ := newTestHandler(t)

	for _, path := range []string{"/", "/ingest", "/data_logger"} {
		t.Run(path, func(t *testing.T) {
			w := post(h, path, "2025-07-01 14:05:09,21.5,60,0,1200,3.2,180")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
			}

			resp := decode[IngestResponse](t, w)
			if !resp.Success {
				t.Errorf("success = false: %s", resp.Error)
			}
			if resp.Results == nil || resp.Results.Line == nil {
				t.Fatal("results.line missing")
			}
			if resp.Results.Record != nil {
				t.Error("results.record set for a line payload")
			}
			if resp.ServerInfo == nil || resp.ServerInfo.Version != "test" || resp.ServerInfo.MaxFileSize != "10.00 MB" {
				t.Errorf("server_info = %+v", resp.ServerInfo)
			}

			lines := readLines(t, resp.Results.Line.File)
			if got := lines[len(lines)-1]; got != "2025-07-01 14:05:09,21.5,60,0,1200,3.2,180" {
				t.Errorf("last line = %q", got)
			}
		})
	}
}

func TestHandler_IngestRecord(t *testing.T) {
	h, _ := newTestHandler(t)

	body := `{"timestamp":"2025-07-01 14:05:09","slave_id":2,"target_addresses":[203,212],` +
		`"data":[{"address":203,"value":10},{"address":212,"value":30}],"csv_line":"2025-07-01 14:05:09,10,30"}`
	w := post(h, "/", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	resp := decode[IngestResponse](t, w)
	if resp.Results.Line == nil || resp.Results.Record == nil {
		t.Fatalf("results = %+v, want both writes", resp.Results)
	}

	summary := resp.Results.Summary
	if summary == nil || summary.Stats == nil {
		t.Fatalf("summary = %+v, want stats", summary)
	}
	if summary.Stats.Avg != 20 || summary.Stats.Count != 2 {
		t.Errorf("stats = %+v", summary.Stats)
	}
	if summary.SlaveID == nil || *summary.SlaveID != 2 {
		t.Errorf("summary.slave_id = %v", summary.SlaveID)
	}

	lines := readLines(t, resp.Results.Line.File)
	if lines[0] != "timestamp,temperature,humidity,rain,illuminance,wind_speed,wind_direction,register_203,register_212" {
		t.Errorf("header = %q", lines[0])
	}

	records := readLines(t, resp.Results.Record.File)
	var stored map[string]any
	if err := json.Unmarshal([]byte(records[len(records)-1]), &stored); err != nil {
		t.Fatalf("record line is not JSON: %v", err)
	}
	if stored["userAgent"] != "ESP32HTTPClient" {
		t.Errorf("userAgent = %v", stored["userAgent"])
	}
	if stored["processedAt"] == nil || stored["serverAddress"] == nil {
		t.Errorf("enrichment missing: %v", stored)
	}
}

func TestHandler_ClientErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{name: "empty body", body: "   ", wantError: "empty"},
		{name: "malformed record", body: `{"timestamp": "x",`, wantError: "JSON parse error"},
		{name: "missing timestamp", body: `{"data":[]}`, wantError: "timestamp"},
		{name: "missing data", body: `{"timestamp":"2025-07-01 14:05:09"}`, wantError: "data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, root := newTestHandler(t)

			w := post(h, "/", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			resp := decode[IngestResponse](t, w)
			if resp.Success {
				t.Error("success = true, want false")
			}
			if !strings.Contains(resp.Error, tt.wantError) {
				t.Errorf("error = %q, want it to mention %q", resp.Error, tt.wantError)
			}

			st, err := storage.NewStatusReporter(root).Status()
			if err != nil {
				t.Fatal(err)
			}
			if st.LineFileCount+st.RecordFileCount != 0 {
				t.Errorf("files were written for a rejected request: %+v", st)
			}
		})
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t)

	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch} {
		req := httptest.NewRequest(method, "/ingest", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s status = %d, want 405", method, w.Code)
			continue
		}
		resp := decode[IngestResponse](t, w)
		if resp.Method != method {
			t.Errorf("method = %q, want %q", resp.Method, method)
		}
	}
}

func TestHandler_CORS(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("preflight status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Errorf("Access-Control-Allow-Methods = %q", got)
	}

	w = post(h, "/", "a,b")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestHandler_Status(t *testing.T) {
	h, root := newTestHandler(t)
	post(h, "/", "a,b")
	post(h, "/", `{"timestamp":"t","data":[{"value":1}]}`)

	for _, path := range []string{"/", "/status"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, w.Code)
		}
		resp := decode[StatusResponse](t, w)
		if resp.ServerStatus != "running" {
			t.Errorf("server_status = %q", resp.ServerStatus)
		}
		if resp.LineFileCount != 1 || resp.RecordFileCount != 1 {
			t.Errorf("counts = %d/%d, want 1/1", resp.LineFileCount, resp.RecordFileCount)
		}
		if resp.DataDirectory != root {
			t.Errorf("data_directory = %q, want %q", resp.DataDirectory, root)
		}

		var total int64
		filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
			if err == nil && !info.IsDir() && (strings.HasSuffix(p, ".csv") || strings.HasSuffix(p, "_raw.json")) {
				total += info.Size()
			}
			return nil
		})
		if resp.TotalSizeBytes != total {
			t.Errorf("total_size_bytes = %d, want %d", resp.TotalSizeBytes, total)
		}
	}
}

func TestHandler_UnknownPath(t *testing.T) {
	h, _ := newTestHandler(t)
	if w := post(h, "/nope", "a,b"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandler_Upload(t *testing.T) {
	h, _ := newTestHandler(t)

	form := url.Values{"csv_line": {"2025-07-01 14:05:09,1,2"}}
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("upload = %d %q, want 200 OK", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("other=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("missing field status = %d, want 400", w.Code)
	}
}

func TestHandler_ConcurrentLines(t *testing.T) {
	h, _ := newTestHandler(t)

	const n = 50
	var wg sync.WaitGroup
	files := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := post(h, "/", fmt.Sprintf("line-%03d,1,2", i))
			if w.Code != http.StatusOK {
				t.Errorf("request %d status = %d", i, w.Code)
				return
			}
			var resp IngestResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err == nil && resp.Results != nil && resp.Results.Line != nil {
				files <- resp.Results.Line.File
			}
		}(i)
	}
	wg.Wait()
	close(files)

	file := <-files
	lines := readLines(t, file)
	if len(lines) != n+1 {
		t.Fatalf("file has %d lines, want %d", len(lines), n+1)
	}
	headers := 0
	for _, l := range lines {
		if strings.HasPrefix(l, "timestamp,") {
			headers++
		}
	}
	if headers != 1 {
		t.Errorf("header lines = %d, want 1", headers)
	}
}

// failingIngester fails every request with a storage error.
type failingIngester struct{}

func (failingIngester) Ingest(ctx context.Context, body []byte, rc reading.RequestContext) (*ingest.Result, error) {
	wr := &reading.WriteResult{File: "/data/2025/07/2025-07-01.csv", Error: "storage error: permission denied"}
	return &ingest.Result{Kind: reading.KindLine, Line: wr}, stderrors.New("storage error: permission denied")
}

func (failingIngester) IngestLine(ctx context.Context, line string, rc reading.RequestContext) (*ingest.Result, error) {
	return nil, stderrors.New("storage error: permission denied")
}

type failingStatus struct{}

func (failingStatus) Status() (pkgstorage.Status, error) {
	return pkgstorage.Status{}, stderrors.New("walk failed")
}

func TestHandler_ServerErrors(t *testing.T) {
	h := NewHandler(HandlerConfig{
		Ingester: failingIngester{},
		Status:   failingStatus{},
		Logger:   testLogger(),
	})

	w := post(h, "/", "a,b")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	resp := decode[IngestResponse](t, w)
	if resp.Success || resp.Error != "failed to save data" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Results == nil || resp.Results.Line == nil || resp.Results.Line.Error != "write failed" {
		t.Errorf("results.line = %+v, want scrubbed error", resp.Results)
	}

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status endpoint = %d, want 500", w.Code)
	}

	form := url.Values{"csv_line": {"a,b"}}
	req = httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("upload = %d, want 500", w.Code)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    uint64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{10 * 1024 * 1024, "10.00 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestServer_Listeners(t *testing.T) {
	checker := &stubChecker{alive: true, ready: true}

	tests := []struct {
		name     string
		config   Config
		wantSrvs int
	}{
		{
			name:     "with metrics",
			config:   Config{IngestPort: 8080, HealthPort: 8081, MetricsPort: 9090, Registry: prometheus.NewRegistry()},
			wantSrvs: 3,
		},
		{
			name:     "metrics disabled",
			config:   Config{IngestPort: 8080, HealthPort: 8081},
			wantSrvs: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.HealthChecker = checker
			tt.config.Logger = testLogger()
			tt.config.Ingest = http.NotFoundHandler()

			s := NewServer(tt.config)
			if len(s.servers) != tt.wantSrvs {
				t.Errorf("servers = %d, want %d", len(s.servers), tt.wantSrvs)
			}
		})
	}
}

func TestServer_StartShutdown(t *testing.T) {
	s := NewServer(Config{
		HealthChecker: &stubChecker{alive: true},
		Ingest:        http.NotFoundHandler(),
		Logger:        testLogger(),
	})
	errs := s.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	select {
	case err := <-errs:
		t.Logf("listener reported %v", err)
	default:
	}
}
