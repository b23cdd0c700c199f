package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jittakal/datalogger/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the local store status as JSON",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := storage.NewStatusReporter(cfg.Storage.DataDir).Status()
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		DataDirectory string `json:"data_directory"`
		LineFiles     int    `json:"line_file_count"`
		RecordFiles   int    `json:"record_file_count"`
		TotalSize     int64  `json:"total_size_bytes"`
	}{
		DataDirectory: cfg.Storage.DataDir,
		LineFiles:     st.LineFileCount,
		RecordFiles:   st.RecordFileCount,
		TotalSize:     st.TotalSizeBytes,
	})
}
