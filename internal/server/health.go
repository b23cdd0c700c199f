package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// LivenessHandler returns a handler for Kubernetes liveness probes.
// Liveness probes should only fail if the process needs to be restarted.
func LivenessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "alive"
		statusCode := http.StatusOK

		if !checker.Liveness() {
			status = "not alive"
			statusCode = http.StatusServiceUnavailable
		}

		response := HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)

		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error("failed to encode liveness response", "error", err)
		}
	}
}

// ReadinessHandler returns a handler for Kubernetes readiness probes.
// Readiness probes indicate if the application can handle traffic.
func ReadinessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		statusCode := http.StatusOK

		if !checker.Readiness(r.Context()) {
			status = "not ready"
			statusCode = http.StatusServiceUnavailable
		}

		response := HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checker.GetStatus(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)

		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error("failed to encode readiness response", "error", err)
		}
	}
}

// StorageHealth reports the logger healthy while its storage root is a
// writable directory.
type StorageHealth struct {
	dataDir string
	extra   map[string]string
}

// NewStorageHealth creates a checker for dataDir. extra is reported as-is
// in the readiness checks.
func NewStorageHealth(dataDir string, extra map[string]string) *StorageHealth {
	return &StorageHealth{dataDir: dataDir, extra: extra}
}

// Liveness always reports true; the process has no state that can wedge.
func (h *StorageHealth) Liveness() bool {
	return true
}

// Readiness reports whether the storage root accepts new files.
func (h *StorageHealth) Readiness(ctx context.Context) bool {
	return h.checkStorage() == nil
}

// IsHealthy reports the same as Readiness.
func (h *StorageHealth) IsHealthy() bool {
	return h.checkStorage() == nil
}

// GetStatus returns per-component check results.
func (h *StorageHealth) GetStatus() map[string]string {
	status := make(map[string]string, len(h.extra)+1)
	for k, v := range h.extra {
		status[k] = v
	}
	if err := h.checkStorage(); err != nil {
		status["storage"] = err.Error()
	} else {
		status["storage"] = "ok"
	}
	return status
}

func (h *StorageHealth) checkStorage() error {
	info, err := os.Stat(h.dataDir)
	if err != nil {
		return fmt.Errorf("data directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory %s is not a directory", h.dataDir)
	}
	probe, err := os.CreateTemp(h.dataDir, ".health-*")
	if err != nil {
		return fmt.Errorf("data directory not writable: %w", err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}

var _ HealthChecker = (*StorageHealth)(nil)
