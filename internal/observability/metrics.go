package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Ingest metrics
	IngestRequests *prometheus.CounterVec
	IngestDuration *prometheus.HistogramVec

	// Storage metrics
	LogAppends    *prometheus.CounterVec
	LogFileSize   *prometheus.GaugeVec
	Rotations     *prometheus.CounterVec
	StorageErrors *prometheus.CounterVec

	// Archive metrics
	ArchiveUploads  *prometheus.CounterVec
	ArchiveDuration *prometheus.HistogramVec

	// Forwarding metrics
	ForwardedReadings *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		IngestRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_requests_total",
				Help: "Total number of ingest requests by payload kind and outcome",
			},
			[]string{"kind", "status"},
		),
		IngestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_duration_seconds",
				Help:    "Duration of ingest requests including all appends",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		LogAppends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "log_appends_total",
				Help: "Total number of appends to daily log files",
			},
			[]string{"kind", "status"},
		),
		LogFileSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "log_file_size_bytes",
				Help: "Size of the active log file after the last append",
			},
			[]string{"kind"},
		),
		Rotations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rotations_total",
				Help: "Total number of log file rotations",
			},
			[]string{"kind", "compressed"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"backend", "error_type"},
		),

		ArchiveUploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_uploads_total",
				Help: "Total number of rotated backups copied to remote storage",
			},
			[]string{"backend", "status"},
		),
		ArchiveDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archive_upload_duration_seconds",
				Help:    "Duration of backup uploads",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),

		ForwardedReadings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forwarded_readings_total",
				Help: "Total number of readings relayed to Kafka",
			},
			[]string{"kind", "status"},
		),
	}
}

// IncIngestRequests increments the ingest request counter.
func (m *Metrics) IncIngestRequests(kind string, status string) {
	m.IngestRequests.WithLabelValues(kind, status).Inc()
}

// ObserveIngestDuration observes ingest duration.
func (m *Metrics) ObserveIngestDuration(kind string, duration float64) {
	m.IngestDuration.WithLabelValues(kind).Observe(duration)
}

// IncLogAppends increments the append counter.
func (m *Metrics) IncLogAppends(kind string, status string) {
	m.LogAppends.WithLabelValues(kind, status).Inc()
}

// SetLogFileSize records the active file size.
func (m *Metrics) SetLogFileSize(kind string, size float64) {
	m.LogFileSize.WithLabelValues(kind).Set(size)
}

// IncRotations increments the rotation counter.
func (m *Metrics) IncRotations(kind string, compressed bool) {
	m.Rotations.WithLabelValues(kind, strconv.FormatBool(compressed)).Inc()
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}

// IncArchiveUploads increments the archive upload counter.
func (m *Metrics) IncArchiveUploads(backend string, status string) {
	m.ArchiveUploads.WithLabelValues(backend, status).Inc()
}

// ObserveArchiveDuration observes backup upload duration.
func (m *Metrics) ObserveArchiveDuration(backend string, duration float64) {
	m.ArchiveDuration.WithLabelValues(backend).Observe(duration)
}

// IncForwarded increments the relay counter.
func (m *Metrics) IncForwarded(kind string, status string) {
	m.ForwardedReadings.WithLabelValues(kind, status).Inc()
}
