package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/jittakal/datalogger/internal/errors"
	"github.com/jittakal/datalogger/internal/ingest"
	"github.com/jittakal/datalogger/pkg/reading"
	"github.com/jittakal/datalogger/pkg/storage"
)

// ResponseTimeFormat is the layout of response timestamps.
const ResponseTimeFormat = "2006-01-02 15:04:05"

// DefaultMaxBodyBytes bounds a request body when none is configured.
const DefaultMaxBodyBytes = 1 << 20

// Ingester runs the ingest pipeline.
type Ingester interface {
	Ingest(ctx context.Context, body []byte, rc reading.RequestContext) (*ingest.Result, error)
	IngestLine(ctx context.Context, line string, rc reading.RequestContext) (*ingest.Result, error)
}

// StatusReporter reports storage status.
type StatusReporter interface {
	Status() (storage.Status, error)
}

// HandlerConfig wires the ingest HTTP handler.
type HandlerConfig struct {
	Ingester     Ingester
	Status       StatusReporter
	Version      string
	DataDir      string
	MaxFileSize  int64
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// Handler serves the ingest, status and upload endpoints.
type Handler struct {
	ingester     Ingester
	status       StatusReporter
	version      string
	dataDir      string
	maxFileSize  int64
	maxBodyBytes int64
	logger       *slog.Logger
	now          func() time.Time
}

// ServerInfo is the diagnostic block attached to ingest responses.
type ServerInfo struct {
	Version     string `json:"version"`
	GoVersion   string `json:"go_version"`
	MemoryUsage string `json:"memory_usage"`
	MaxFileSize string `json:"max_file_size"`
	Goroutines  int    `json:"goroutines"`
}

// IngestResults holds the per-writer outcomes of one request.
type IngestResults struct {
	Line    *reading.WriteResult `json:"line,omitempty"`
	Record  *reading.WriteResult `json:"record,omitempty"`
	Summary *reading.Summary     `json:"summary,omitempty"`
}

// IngestResponse is the body of every ingest reply.
type IngestResponse struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
	Method     string         `json:"method,omitempty"`
	Timestamp  string         `json:"timestamp"`
	Results    *IngestResults `json:"results,omitempty"`
	ServerInfo *ServerInfo    `json:"server_info,omitempty"`
}

// StatusResponse is the body of a status reply.
type StatusResponse struct {
	ServerStatus    string `json:"server_status"`
	Timestamp       string `json:"timestamp"`
	LineFileCount   int    `json:"line_file_count"`
	RecordFileCount int    `json:"record_file_count"`
	TotalSizeBytes  int64  `json:"total_size_bytes"`
	DataDirectory   string `json:"data_directory"`
	GoVersion       string `json:"go_version"`
	MemoryUsage     string `json:"memory_usage"`
	Error           string `json:"error,omitempty"`
}

// NewHandler returns the ingest HTTP handler with CORS applied.
func NewHandler(config HandlerConfig) http.Handler {
	maxBody := config.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	h := &Handler{
		ingester:     config.Ingester,
		status:       config.Status,
		version:      config.Version,
		dataDir:      config.DataDir,
		maxFileSize:  config.MaxFileSize,
		maxBodyBytes: maxBody,
		logger:       config.Logger,
		now:          time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleRoot)
	mux.HandleFunc("/ingest", h.handleIngest)
	mux.HandleFunc("/data_logger", h.handleRoot)
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/upload", h.handleUpload)

	return CORS(mux)
}

// CORS adds permissive cross-origin headers and answers preflight requests.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleRoot serves status on GET and ingest on POST.
func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/data_logger" {
		http.NotFound(w, r)
		return
	}
	if r.Method == http.MethodGet {
		h.handleStatus(w, r)
		return
	}
	h.handleIngest(w, r)
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeJSON(w, http.StatusMethodNotAllowed, IngestResponse{
			Error:     errors.ErrMethodNotAllowed.Error(),
			Method:    r.Method,
			Timestamp: h.timestamp(),
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, IngestResponse{
			Error:     fmt.Sprintf("failed to read request body: %v", err),
			Timestamp: h.timestamp(),
		})
		return
	}

	result, err := h.ingester.Ingest(r.Context(), body, requestContext(r))
	h.respond(w, result, err)
}

// handleUpload accepts the legacy form post carrying a single csv_line.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, errors.ErrMethodNotAllowed.Error(), http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	line := r.PostFormValue(reading.FieldCSVLine)
	if line == "" {
		http.Error(w, "csv_line is required", http.StatusBadRequest)
		return
	}

	if _, err := h.ingester.IngestLine(r.Context(), line, requestContext(r)); err != nil {
		status := http.StatusInternalServerError
		if errors.IsClientError(err) {
			status = http.StatusBadRequest
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeJSON(w, http.StatusMethodNotAllowed, IngestResponse{
			Error:     "only GET is supported",
			Method:    r.Method,
			Timestamp: h.timestamp(),
		})
		return
	}

	resp := StatusResponse{
		ServerStatus:  "running",
		Timestamp:     h.timestamp(),
		DataDirectory: h.dataDir,
		GoVersion:     runtime.Version(),
		MemoryUsage:   memoryUsage(),
	}

	st, err := h.status.Status()
	if err != nil {
		h.logger.Error("failed to read storage status", "error", err)
		resp.ServerStatus = "degraded"
		resp.Error = "failed to read storage status"
		h.writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	resp.LineFileCount = st.LineFileCount
	resp.RecordFileCount = st.RecordFileCount
	resp.TotalSizeBytes = st.TotalSizeBytes
	h.writeJSON(w, http.StatusOK, resp)
}

// respond maps an ingest outcome to a status code and body. Storage
// failures keep the per-writer results but hide the underlying error.
func (h *Handler) respond(w http.ResponseWriter, result *ingest.Result, err error) {
	resp := IngestResponse{Timestamp: h.timestamp()}
	if result != nil {
		resp.Results = &IngestResults{
			Line:    result.Line,
			Record:  result.Record,
			Summary: &result.Summary,
		}
	}

	switch {
	case err == nil:
		resp.Success = true
		resp.Message = "Data saved successfully"
		resp.ServerInfo = h.serverInfo()
		h.writeJSON(w, http.StatusOK, resp)

	case errors.IsClientError(err):
		resp.Error = err.Error()
		h.writeJSON(w, http.StatusBadRequest, resp)

	default:
		h.logger.Error("failed to save data", "error", err)
		resp.Error = "failed to save data"
		if resp.Results != nil {
			scrub(resp.Results.Line)
			scrub(resp.Results.Record)
		}
		h.writeJSON(w, http.StatusInternalServerError, resp)
	}
}

func (h *Handler) serverInfo() *ServerInfo {
	return &ServerInfo{
		Version:     h.version,
		GoVersion:   runtime.Version(),
		MemoryUsage: memoryUsage(),
		MaxFileSize: formatBytes(uint64(h.maxFileSize)),
		Goroutines:  runtime.NumGoroutine(),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) timestamp() string {
	return h.now().Format(ResponseTimeFormat)
}

// scrub replaces a failed writer's error detail with a generic message.
func scrub(wr *reading.WriteResult) {
	if wr != nil && wr.Error != "" {
		wr.Error = "write failed"
	}
}

// requestContext extracts the enrichment fields of r.
func requestContext(r *http.Request) reading.RequestContext {
	rc := reading.RequestContext{
		UserAgent: r.UserAgent(),
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		rc.RemoteAddress = host
	} else {
		rc.RemoteAddress = r.RemoteAddr
	}
	if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
		if host, _, err := net.SplitHostPort(addr.String()); err == nil {
			rc.ServerAddress = host
		}
	}
	return rc
}

func memoryUsage() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return formatBytes(m.Alloc)
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
