package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/jittakal/datalogger/internal/config/dto"
	"github.com/jittakal/datalogger/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Archiver = (*AzureArchiver)(nil)

// AzureArchiver uploads backups to Azure Blob Storage.
type AzureArchiver struct {
	client    *azblob.Client
	container string
	basePath  string
	logger    *slog.Logger
	metrics   MetricsCollector
}

// AzureConnectionString builds a shared-key connection string for cfg.
func AzureConnectionString(cfg dto.AzureConfig) string {
	if cfg.Endpoint != "" {
		return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			cfg.AccountName, cfg.AccountKey, cfg.Endpoint)
	}
	return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
		cfg.AccountName, cfg.AccountKey)
}

// NewAzureArchiver creates a new Azure Blob archiver.
func NewAzureArchiver(cfg dto.AzureConfig, logger *slog.Logger, metrics MetricsCollector) (*AzureArchiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := azblob.NewClientFromConnectionString(AzureConnectionString(cfg), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	logger.Info("Azure archiver created",
		"container", cfg.Container,
		"account", cfg.AccountName,
		"base_path", cfg.BasePath,
	)

	return &AzureArchiver{
		client:    client,
		container: cfg.Container,
		basePath:  cfg.BasePath,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Archive uploads the file at localPath and returns its wasbs:// URI.
func (a *AzureArchiver) Archive(ctx context.Context, localPath string) (uri string, err error) {
	start := time.Now()
	defer func() { observe(a.metrics, BackendAzure, start, err) }()

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open backup: %w", err)
	}
	defer file.Close()

	blobName := ObjectKey(a.basePath, localPath)
	contentType := ContentType(localPath)
	_, err = a.client.UploadFile(ctx, a.container, blobName, file, &azblob.UploadFileOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}

	uri = fmt.Sprintf("wasbs://%s/%s", a.container, blobName)
	a.logger.Info("archived backup to Azure Blob",
		"container", a.container,
		"blob", blobName,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return uri, nil
}

// Name returns the backend name.
func (a *AzureArchiver) Name() string {
	return BackendAzure
}

// Close closes the Azure archiver.
func (a *AzureArchiver) Close() error {
	a.logger.Info("Azure archiver closed")
	return nil
}
