// Package server implements the HTTP listeners for ingest, health checks and
// metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker interface for checking component health.
type HealthChecker interface {
	Liveness() bool
	Readiness(ctx context.Context) bool
	IsHealthy() bool
	GetStatus() map[string]string
}

// Config wires the HTTP listeners. A zero MetricsPort or nil Registry
// disables the metrics listener.
type Config struct {
	IngestPort    int
	HealthPort    int
	MetricsPort   int
	MetricsPath   string
	LivenessPath  string
	ReadinessPath string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration

	Ingest        http.Handler
	HealthChecker HealthChecker
	Registry      *prometheus.Registry
	Logger        *slog.Logger
}

// Server owns the ingest, health and metrics listeners.
type Server struct {
	servers []*http.Server
	names   []string
	logger  *slog.Logger
}

// NewServer creates the HTTP servers.
func NewServer(config Config) *Server {
	s := &Server{logger: config.Logger}

	readTimeout := config.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := config.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}

	s.add("ingest", &http.Server{
		Addr:         fmt.Sprintf(":%d", config.IngestPort),
		Handler:      config.Ingest,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	livePath := valueOr(config.LivenessPath, "/health/live")
	readyPath := valueOr(config.ReadinessPath, "/health/ready")
	healthMux := http.NewServeMux()
	healthMux.HandleFunc(livePath, LivenessHandler(config.HealthChecker, config.Logger))
	healthMux.HandleFunc(readyPath, ReadinessHandler(config.HealthChecker, config.Logger))

	s.add("health", &http.Server{
		Addr:         fmt.Sprintf(":%d", config.HealthPort),
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	if config.MetricsPort > 0 && config.Registry != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(valueOr(config.MetricsPath, "/metrics"), promhttp.HandlerFor(config.Registry, promhttp.HandlerOpts{}))

		s.add("metrics", &http.Server{
			Addr:         fmt.Sprintf(":%d", config.MetricsPort),
			Handler:      metricsMux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		})
	}

	return s
}

func (s *Server) add(name string, srv *http.Server) {
	s.servers = append(s.servers, srv)
	s.names = append(s.names, name)
}

// Start starts all listeners. Listener failures are sent on the returned
// channel.
func (s *Server) Start() <-chan error {
	errChan := make(chan error, len(s.servers))
	for i, srv := range s.servers {
		name := s.names[i]
		go func(srv *http.Server) {
			s.logger.Info("starting "+name+" server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Error(name+" server failed", "error", err)
				errChan <- fmt.Errorf("%s server: %w", name, err)
			}
		}(srv)
	}
	return errChan
}

// Shutdown gracefully shuts down all servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP servers")

	errChan := make(chan error, len(s.servers))
	for _, srv := range s.servers {
		go func(srv *http.Server) {
			errChan <- srv.Shutdown(ctx)
		}(srv)
	}

	var lastErr error
	for range s.servers {
		if err := <-errChan; err != nil {
			s.logger.Error("error shutting down server", "error", err)
			lastErr = err
		}
	}

	return lastErr
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
