package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/jittakal/datalogger/internal/config/dto"
	pkgstorage "github.com/jittakal/datalogger/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgstorage.Archiver = (*GCSArchiver)(nil)

// GCSArchiver uploads backups to Google Cloud Storage.
type GCSArchiver struct {
	client   *storage.Client
	bucket   string
	basePath string
	logger   *slog.Logger
	metrics  MetricsCollector
}

// GCSClientOptions returns the client options for cfg. Explicit JSON
// credentials win over a credentials file; with neither, application
// default credentials are used.
func GCSClientOptions(cfg dto.GCSConfig) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	switch {
	case cfg.UseDefaultCredential:
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	return opts
}

// NewGCSArchiver creates a new Google Cloud Storage archiver.
func NewGCSArchiver(cfg dto.GCSConfig, logger *slog.Logger, metrics MetricsCollector) (*GCSArchiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := storage.NewClient(context.Background(), GCSClientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	logger.Info("GCS archiver created",
		"bucket", cfg.Bucket,
		"project_id", cfg.ProjectID,
		"base_path", cfg.BasePath,
	)

	return &GCSArchiver{
		client:   client,
		bucket:   cfg.Bucket,
		basePath: cfg.BasePath,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Archive uploads the file at localPath and returns its gs:// URI.
func (a *GCSArchiver) Archive(ctx context.Context, localPath string) (uri string, err error) {
	start := time.Now()
	defer func() { observe(a.metrics, BackendGCS, start, err) }()

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open backup: %w", err)
	}
	defer file.Close()

	object := ObjectKey(a.basePath, localPath)
	w := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	w.ContentType = ContentType(localPath)

	written, err := io.Copy(w, file)
	if err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}

	uri = fmt.Sprintf("gs://%s/%s", a.bucket, object)
	a.logger.Info("archived backup to GCS",
		"bucket", a.bucket,
		"object", object,
		"bytes_written", written,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return uri, nil
}

// Name returns the backend name.
func (a *GCSArchiver) Name() string {
	return BackendGCS
}

// Close closes the GCS client.
func (a *GCSArchiver) Close() error {
	a.logger.Info("closing GCS archiver")
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}
