package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jittakal/datalogger/internal/config"
	"github.com/jittakal/datalogger/internal/config/dto"
	"github.com/jittakal/datalogger/internal/filelock"
	"github.com/jittakal/datalogger/internal/observability"
)

// defaultConfigPath is used when neither --config nor CONFIG_PATH is set.
const defaultConfigPath = "config/application.yaml"

var (
	cfgFile string
	loader  = config.NewLoader()

	rootCmd = &cobra.Command{
		Use:   "datalogger",
		Short: "HTTP data logger for field-bus sensor readings",
		Long: `Accepts one sensor reading per request, as a raw delimited line or a
JSON record, and appends it to date-partitioned log files:
- serve: run the ingest, health and metrics listeners
- status: print file counts and sizes of the local store
- export: convert a day's record log to Parquet or Avro`,
		SilenceUsage: true,
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $CONFIG_PATH or "+defaultConfigPath+")")
	rootCmd.PersistentFlags().String("data-dir", "", "storage root directory")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	if err := loader.Viper().BindPFlag("storage.data_dir", rootCmd.PersistentFlags().Lookup("data-dir")); err != nil {
		log.Fatalf("failed to bind data-dir flag: %v", err)
	}
	if err := loader.Viper().BindPFlag("observability.logging.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		log.Fatalf("failed to bind log-level flag: %v", err)
	}
}

// configPath resolves the config file: flag, then CONFIG_PATH, then the
// default path.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return envPath
	}
	return defaultConfigPath
}

func loadConfig() (*dto.ApplicationConfig, error) {
	cfg, err := loader.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// operationalLogPath places a relative operational log under the data dir.
func operationalLogPath(cfg *dto.ApplicationConfig) string {
	if filepath.IsAbs(cfg.Storage.OperationalLog) {
		return cfg.Storage.OperationalLog
	}
	return filepath.Join(cfg.Storage.DataDir, cfg.Storage.OperationalLog)
}

// newLogger creates the data directory and a logger writing to the console
// and, when configured, the operational log.
func newLogger(cfg *dto.ApplicationConfig, locker *filelock.Locker) (*slog.Logger, error) {
	logging := observability.LoggingConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cfg.Observability.Logging.Output,
	}
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	console := observability.NewHandler(logging)
	if cfg.Storage.OperationalLog == "" {
		return slog.New(console), nil
	}
	oplog := observability.NewOpLogHandler(operationalLogPath(cfg), observability.ParseLevel(logging.Level), locker)
	return observability.NewFanoutLogger(console, oplog), nil
}
