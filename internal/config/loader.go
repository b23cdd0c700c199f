package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jittakal/datalogger/internal/config/dto"
	"github.com/spf13/viper"
)

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Viper exposes the underlying viper instance so CLI flags can be bound.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from file and environment variables
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	// Set defaults
	l.setDefaults()

	// Load from file if provided
	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Expand environment variables in config values
	// Only expand if the value contains ${...} pattern
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "datalogger")
	l.v.SetDefault("application.version", "2.0")
	l.v.SetDefault("application.environment", "development")

	// Ingest server defaults
	l.v.SetDefault("server.port", 8888)
	l.v.SetDefault("server.read_timeout_seconds", 10)
	l.v.SetDefault("server.write_timeout_seconds", 30)
	l.v.SetDefault("server.max_body_bytes", 1024*1024)

	// Storage defaults
	l.v.SetDefault("storage.data_dir", "data")
	l.v.SetDefault("storage.max_file_size_mb", 10)
	l.v.SetDefault("storage.compress_backups", true)
	l.v.SetDefault("storage.operational_log", "logger.log")

	// Archive defaults
	l.v.SetDefault("archive.backend", "none")
	l.v.SetDefault("archive.s3.use_path_style", false)
	l.v.SetDefault("archive.s3.sse_enabled", true)

	// Forward defaults
	l.v.SetDefault("forward.enabled", false)
	l.v.SetDefault("forward.topic", "sensor-readings")
	l.v.SetDefault("forward.source", "/datalogger")
	l.v.SetDefault("forward.security_protocol", "PLAINTEXT")
	l.v.SetDefault("forward.sasl_mechanism", "PLAIN")
	l.v.SetDefault("forward.region", "us-east-1")
	l.v.SetDefault("forward.timeout_ms", 5000)
	l.v.SetDefault("forward.compression", "snappy")
	l.v.SetDefault("forward.tls_skip_verify", false)

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.metrics.path", "/metrics")
	l.v.SetDefault("observability.health.port", 8080)
	l.v.SetDefault("observability.health.liveness_path", "/health/live")
	l.v.SetDefault("observability.health.readiness_path", "/health/ready")

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 10)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	if config.Storage.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if config.Storage.MaxFileSizeMB <= 0 {
		return fmt.Errorf("invalid storage.max_file_size_mb: %v", config.Storage.MaxFileSizeMB)
	}

	switch config.Archive.Backend {
	case "", "none":
	case "s3":
		if config.Archive.S3.Bucket == "" {
			return errors.New("archive.s3.bucket is required for S3 backend")
		}
		if config.Archive.S3.Region == "" {
			return errors.New("archive.s3.region is required for S3 backend")
		}
	case "azure":
		if config.Archive.Azure.AccountName == "" {
			return errors.New("archive.azure.account_name is required for Azure backend")
		}
		if config.Archive.Azure.Container == "" {
			return errors.New("archive.azure.container is required for Azure backend")
		}
	case "gcs":
		if config.Archive.GCS.Bucket == "" {
			return errors.New("archive.gcs.bucket is required for GCS backend")
		}
	default:
		return fmt.Errorf("unsupported archive backend: %s", config.Archive.Backend)
	}

	if err := config.Forward.Validate(); err != nil {
		return err
	}

	// Port validation
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Observability.Metrics.Port < 1 || config.Observability.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", config.Observability.Metrics.Port)
	}
	if config.Observability.Health.Port < 1 || config.Observability.Health.Port > 65535 {
		return fmt.Errorf("invalid health port: %d", config.Observability.Health.Port)
	}

	return nil
}
