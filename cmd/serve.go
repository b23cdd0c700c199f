package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jittakal/datalogger/internal/archive"
	"github.com/jittakal/datalogger/internal/filelock"
	"github.com/jittakal/datalogger/internal/ingest"
	"github.com/jittakal/datalogger/internal/kafka"
	"github.com/jittakal/datalogger/internal/observability"
	"github.com/jittakal/datalogger/internal/server"
	"github.com/jittakal/datalogger/internal/storage"
	"github.com/jittakal/datalogger/internal/validator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingest server",
	Long: `Run the ingest server that:
- Accepts readings on POST /, /ingest and /data_logger
- Reports storage status on GET / and /status
- Rotates oversized logs and archives the backups
- Optionally relays readings to Kafka`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "ingest listener port")
	_ = loader.Viper().BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	locker := filelock.New()
	logger, err := newLogger(cfg, locker)
	if err != nil {
		return err
	}
	logger.Info("starting datalogger",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
		"data_dir", cfg.Storage.DataDir,
	)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	var cleanupFuncs []func() error
	addCleanup := func(name string, fn func() error) {
		cleanupFuncs = append(cleanupFuncs, fn)
		logger.Debug("registered cleanup", "component", name)
	}
	defer func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			if err := cleanupFuncs[i](); err != nil {
				logger.Error("cleanup failed", "error", err)
			}
		}
	}()

	archiver, err := archive.New(cfg.Archive, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create archiver: %w", err)
	}
	archiveBackend := archive.BackendNone
	if archiver != nil {
		archiveBackend = archiver.Name()
		addCleanup("archiver", archiver.Close)
	}

	var forwarder ingest.Forwarder
	forwardStatus := "disabled"
	if cfg.Forward.Enabled {
		f, err := kafka.NewForwarder(cfg.Forward, logger)
		if err != nil {
			return fmt.Errorf("failed to create forwarder: %w", err)
		}
		forwarder = f
		forwardStatus = "enabled"
		addCleanup("kafka-forwarder", f.Close)
	}

	appenderConfig := storage.AppenderConfig{
		Locker: locker,
		Rotator: storage.NewRotator(storage.RotationConfig{
			MaxSizeBytes: cfg.Storage.MaxFileSizeBytes(),
			Compress:     cfg.Storage.CompressBackups,
		}, logger),
		Archiver: archiver,
		Logger:   logger,
		Metrics:  metrics,
	}

	service := ingest.NewService(ingest.Config{
		Partitioner: storage.NewPartitioner(cfg.Storage.DataDir),
		Validator:   validator.NewRequestValidator(),
		Lines:       storage.NewLineAppender(appenderConfig),
		Records:     storage.NewRecordAppender(appenderConfig),
		Forwarder:   forwarder,
		Logger:      logger,
		Metrics:     metrics,
	})

	handler := server.NewHandler(server.HandlerConfig{
		Ingester:     service,
		Status:       storage.NewStatusReporter(cfg.Storage.DataDir),
		Version:      cfg.Application.Version,
		DataDir:      cfg.Storage.DataDir,
		MaxFileSize:  cfg.Storage.MaxFileSizeBytes(),
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Logger:       logger,
	})

	metricsPort := 0
	if cfg.Observability.Metrics.Enabled {
		metricsPort = cfg.Observability.Metrics.Port
	}

	httpServer := server.NewServer(server.Config{
		IngestPort:    cfg.Server.Port,
		HealthPort:    cfg.Observability.Health.Port,
		MetricsPort:   metricsPort,
		MetricsPath:   cfg.Observability.Metrics.Path,
		LivenessPath:  cfg.Observability.Health.LivenessPath,
		ReadinessPath: cfg.Observability.Health.ReadinessPath,
		ReadTimeout:   time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:  time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		Ingest:        handler,
		HealthChecker: server.NewStorageHealth(cfg.Storage.DataDir, map[string]string{
			"archive": archiveBackend,
			"forward": forwardStatus,
		}),
		Registry: registry,
		Logger:   logger,
	})

	serveErrs := httpServer.Start()
	logger.Info("application started successfully", "port", cfg.Server.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received termination signal", "signal", sig.String())
	case runErr = <-serveErrs:
		logger.Error("listener failed", "error", runErr)
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.GracePeriod())
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}

	logger.Info("shutdown complete")
	return runErr
}
