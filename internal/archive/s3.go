package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jittakal/datalogger/internal/config/dto"
	"github.com/jittakal/datalogger/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Archiver = (*S3Archiver)(nil)

// S3Archiver uploads backups to AWS S3 or an S3-compatible endpoint.
type S3Archiver struct {
	uploader    *manager.Uploader
	bucket      string
	basePath    string
	sseEnabled  bool
	sseKMSKeyID string
	logger      *slog.Logger
	metrics     MetricsCollector
}

// NewS3Archiver creates a new S3 archiver.
func NewS3Archiver(cfg dto.S3Config, logger *slog.Logger, metrics MetricsCollector) (*S3Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsConfig, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 2
	})

	logger.Info("S3 archiver created",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"base_path", cfg.BasePath,
		"sse_enabled", cfg.SSEEnabled,
	)

	return &S3Archiver{
		uploader:    uploader,
		bucket:      cfg.Bucket,
		basePath:    cfg.BasePath,
		sseEnabled:  cfg.SSEEnabled,
		sseKMSKeyID: cfg.SSEKMSKeyID,
		logger:      logger,
		metrics:     metrics,
	}, nil
}

// Archive uploads the file at localPath and returns its s3:// URI.
func (a *S3Archiver) Archive(ctx context.Context, localPath string) (uri string, err error) {
	start := time.Now()
	defer func() { observe(a.metrics, BackendS3, start, err) }()

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open backup: %w", err)
	}
	defer file.Close()

	key := ObjectKey(a.basePath, localPath)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(ContentType(localPath)),
	}

	if a.sseEnabled {
		if a.sseKMSKeyID != "" {
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			input.SSEKMSKeyId = aws.String(a.sseKMSKeyID)
		} else {
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}

	if _, err := a.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	uri = fmt.Sprintf("s3://%s/%s", a.bucket, key)
	a.logger.Info("archived backup to S3",
		"bucket", a.bucket,
		"key", key,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return uri, nil
}

// Name returns the backend name.
func (a *S3Archiver) Name() string {
	return BackendS3
}

// Close closes the S3 archiver.
func (a *S3Archiver) Close() error {
	a.logger.Info("closing S3 archiver")
	return nil
}
