package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jittakal/datalogger/internal/export"
	"github.com/jittakal/datalogger/internal/filelock"
	"github.com/jittakal/datalogger/pkg/encoder"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Convert a day's record log to Parquet or Avro",
	Long: `Read <data_dir>/YYYY/MM/<date>_raw.json and write the readings to
<data_dir>/YYYY/MM/<date>.parquet or .avro. Malformed lines are skipped.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("date", "", "day to export (YYYY-MM-DD, default today)")
	exportCmd.Flags().String("format", string(encoder.FormatParquet), "output format (parquet, avro)")
	exportCmd.Flags().String("compression", "", "compression codec (default depends on format)")
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, filelock.New())
	if err != nil {
		return err
	}

	dateFlag, _ := cmd.Flags().GetString("date")
	format, _ := cmd.Flags().GetString("format")
	compression, _ := cmd.Flags().GetString("compression")

	day := time.Now()
	if dateFlag != "" {
		day, err = time.ParseInLocation(export.DateFormat, dateFlag, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", dateFlag, err)
		}
	}

	result, err := export.NewExporter(cfg.Storage.DataDir, logger).
		Export(context.Background(), day, encoder.Format(format), compression)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows, %d skipped, %d bytes\n",
		result.Output, result.Rows, result.Skipped, result.SizeBytes)
	return nil
}
