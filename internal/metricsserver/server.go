// Package metricsserver implements the HTTP surface the broker exposes
// alongside its TCP session protocol: a Prometheus scrape endpoint and a
// liveness probe. Its Start/Stop shape and chi middleware stack are
// grounded on pkg/controlplane/api/server.go and router.go, generalized
// from the control-plane's authenticated REST API to a single
// unauthenticated operational surface.
package metricsserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/halvorsen-oss/mongobroker/internal/logger"
)

// HealthResponse is the liveness payload served at /healthz and polled by
// the CLI's status command.
type HealthResponse struct {
	Status    string `json:"status"`
	StartedAt string `json:"startedAt"`
	Uptime    string `json:"uptime"`
}

// StatsFunc produces the point-in-time operator-facing counters served at
// /stats and polled by the `mongobrokerd stats` command. Returning a plain
// map keeps this package ignorant of store.Stats/telemetrypipe's types.
type StatsFunc func() map[string]any

// Config controls the listener port for the metrics/health HTTP server and,
// optionally, the stats callback behind /stats.
type Config struct {
	Port  int
	Stats StatsFunc
}

// Server serves /metrics (Prometheus exposition) and /healthz (liveness).
type Server struct {
	server       *http.Server
	startedAt    time.Time
	shutdownOnce sync.Once
}

// New builds a Server bound to registry. registry may be nil, in which case
// /metrics responds with an empty exposition (metrics collection disabled).
func New(cfg Config, registry *prometheus.Registry) *Server {
	startedAt := time.Now().UTC()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","startedAt":%q,"uptime":%q}`,
			startedAt.Format(time.RFC3339), time.Since(startedAt).String())
	})

	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	} else {
		r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}

	if cfg.Stats != nil {
		r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(cfg.Stats()); err != nil {
				logger.Error("stats encode failed", "error", err)
			}
		})
	} else {
		r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		startedAt: startedAt,
	}
}

// Start listens and serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop gracefully shuts down the server. Safe to call multiple times.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("metrics server shutdown: %w", err)
		}
	})
	return shutdownErr
}
