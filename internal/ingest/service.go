package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jittakal/datalogger/pkg/reading"
	"github.com/jittakal/datalogger/pkg/storage"
)

// Validator checks a classified payload.
type Validator interface {
	Validate(p reading.Payload) error
}

// LineWriter appends raw lines to a line file.
type LineWriter interface {
	AppendLine(ctx context.Context, path string, line string, md reading.Metadata) (reading.WriteResult, error)
}

// RecordWriter appends structured records to a record file.
type RecordWriter interface {
	AppendRecord(ctx context.Context, path string, record map[string]any, rc reading.RequestContext) (reading.WriteResult, error)
}

// Forwarder relays a persisted payload downstream.
type Forwarder interface {
	Forward(ctx context.Context, p reading.Payload, rc reading.RequestContext) error
}

// MetricsCollector defines metrics operations for ingestion.
type MetricsCollector interface {
	IncIngestRequests(kind string, status string)
	ObserveIngestDuration(kind string, duration float64)
	IncForwarded(kind string, status string)
}

// Config wires a Service.
type Config struct {
	Partitioner storage.Partitioner
	Validator   Validator
	Lines       LineWriter
	Records     RecordWriter
	Forwarder   Forwarder        // optional
	Logger      *slog.Logger
	Metrics     MetricsCollector // optional
}

// Result reports what one request wrote. Line and Record are nil when the
// payload did not call for that write.
type Result struct {
	Kind    reading.Kind
	Line    *reading.WriteResult
	Record  *reading.WriteResult
	Summary reading.Summary
}

// Service runs the classify, validate and append pipeline.
type Service struct {
	partitioner storage.Partitioner
	validator   Validator
	lines       LineWriter
	records     RecordWriter
	forwarder   Forwarder
	logger      *slog.Logger
	metrics     MetricsCollector
	now         func() time.Time
}

// NewService creates an ingest service.
func NewService(config Config) *Service {
	config.Logger.Info("ingest service created",
		"data_dir", config.Partitioner.Root(),
		"forwarding", config.Forwarder != nil,
	)

	return &Service{
		partitioner: config.Partitioner,
		validator:   config.Validator,
		lines:       config.Lines,
		records:     config.Records,
		forwarder:   config.Forwarder,
		logger:      config.Logger,
		metrics:     config.Metrics,
		now:         time.Now,
	}
}

// Ingest classifies and validates body, then appends it to the day's line
// file, record file, or both. The two writes are independent: a failure in
// one is reported alongside the other's outcome and nothing is rolled back.
//
// Validation failures are returned with a nil Result. Storage failures are
// returned together with the Result describing each write.
func (s *Service) Ingest(ctx context.Context, body []byte, rc reading.RequestContext) (*Result, error) {
	start := s.now()
	p, err := Classify(body)
	if err != nil {
		return nil, s.reject(p, rc, start, err)
	}
	return s.process(ctx, p, rc, start)
}

// IngestLine persists line as a Line payload without classifying it. It
// serves form uploads, where the line is never a JSON object.
func (s *Service) IngestLine(ctx context.Context, line string, rc reading.RequestContext) (*Result, error) {
	return s.process(ctx, reading.NewLine(strings.TrimSpace(line)), rc, s.now())
}

func (s *Service) process(ctx context.Context, p reading.Payload, rc reading.RequestContext, start time.Time) (*Result, error) {
	if err := s.validator.Validate(p); err != nil {
		return nil, s.reject(p, rc, start, err)
	}

	result := &Result{Kind: p.Kind}
	var errs []error

	if line, ok := lineOf(p); ok {
		wr, err := s.appendLine(ctx, start, line, p.Metadata())
		result.Line = &wr
		if err != nil {
			errs = append(errs, err)
		}
	}

	if p.Kind == reading.KindRecord {
		wr, err := s.appendRecord(ctx, start, p.Record, rc)
		result.Record = &wr
		if err != nil {
			errs = append(errs, err)
		}
	}

	result.Summary = Summarize(p, s.now())

	if len(errs) > 0 {
		s.record(p.Kind, "error", start)
		return result, errors.Join(errs...)
	}

	s.forward(ctx, p, rc)
	s.record(p.Kind, "success", start)
	return result, nil
}

func (s *Service) reject(p reading.Payload, rc reading.RequestContext, start time.Time, err error) error {
	s.logger.Warn("request rejected",
		"remote_addr", rc.RemoteAddress,
		"error", err,
	)
	s.record(p.Kind, "rejected", start)
	return err
}

func (s *Service) appendLine(ctx context.Context, t time.Time, line string, md reading.Metadata) (reading.WriteResult, error) {
	path, err := s.partitioner.Resolve(t, reading.LogLine)
	if err != nil {
		return reading.WriteResult{Error: err.Error()}, err
	}
	return s.lines.AppendLine(ctx, path, line, md)
}

func (s *Service) appendRecord(ctx context.Context, t time.Time, record map[string]any, rc reading.RequestContext) (reading.WriteResult, error) {
	path, err := s.partitioner.Resolve(t, reading.LogRecord)
	if err != nil {
		return reading.WriteResult{Error: err.Error()}, err
	}
	return s.records.AppendRecord(ctx, path, record, rc)
}

// forward relays p after it has been persisted. Failures are logged and
// counted only.
func (s *Service) forward(ctx context.Context, p reading.Payload, rc reading.RequestContext) {
	if s.forwarder == nil {
		return
	}

	status := "success"
	if err := s.forwarder.Forward(ctx, p, rc); err != nil {
		status = "error"
		s.logger.Error("failed to forward reading",
			"kind", p.Kind,
			"error", err,
		)
	}
	if s.metrics != nil {
		s.metrics.IncForwarded(string(p.Kind), status)
	}
}

func (s *Service) record(kind reading.Kind, status string, start time.Time) {
	if s.metrics == nil {
		return
	}
	label := string(kind)
	if label == "" {
		label = "unknown"
	}
	s.metrics.IncIngestRequests(label, status)
	s.metrics.ObserveIngestDuration(label, s.now().Sub(start).Seconds())
}

// lineOf returns the raw line a payload asks to be written to the line
// file: the body itself for a Line, or an embedded csv_line for a Record.
func lineOf(p reading.Payload) (string, bool) {
	switch p.Kind {
	case reading.KindLine:
		return p.Line, true
	case reading.KindRecord:
		return p.CSVLine()
	default:
		return "", false
	}
}
