package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// HealthServer exposes /health and /metrics for the pipeline.
type HealthServer struct {
	port    int
	runner  *Runner
	metrics *Metrics
	server  *http.Server
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status            string `json:"status"`
	RunsTotal         int64  `json:"runs_total"`
	RunErrors         int64  `json:"run_errors"`
	LastRunAt         string `json:"last_run_at,omitempty"`
	LagSeconds        int64  `json:"lag_seconds"`
	LastRunDurationMs int64  `json:"last_run_duration_ms"`
	LastRowsExtracted int64  `json:"last_rows_extracted"`
	LastMartRows      int64  `json:"last_mart_rows"`
	Watermark         string `json:"watermark,omitempty"`
}

// NewHealthServer creates a new health server
func NewHealthServer(port int, runner *Runner, metrics *Metrics) *HealthServer {
	return &HealthServer{
		port:    port,
		runner:  runner,
		metrics: metrics,
	}
}

// Start starts the health check HTTP server
func (hs *HealthServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hs.handleHealth)
	mux.Handle("/metrics", hs.metrics.Handler())

	hs.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", hs.port),
		Handler: mux,
	}

	log.Printf("🏥 Health server listening on :%d", hs.port)

	go func() {
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Health server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully stops the health server
func (hs *HealthServer) Stop() error {
	if hs.server != nil {
		return hs.server.Close()
	}
	return nil
}

// handleHealth handles the /health endpoint
func (hs *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := hs.runner.Stats()

	var lagSeconds int64
	if !stats.LastRunAt.IsZero() {
		lagSeconds = int64(time.Since(stats.LastRunAt).Seconds())
	}

	response := HealthResponse{
		Status:            "healthy",
		RunsTotal:         stats.RunsTotal,
		RunErrors:         stats.RunErrors,
		LagSeconds:        lagSeconds,
		LastRunDurationMs: stats.LastRunDuration.Milliseconds(),
		LastRowsExtracted: stats.LastRowsExtracted,
		LastMartRows:      stats.LastMartRows,
	}

	if !stats.LastRunAt.IsZero() {
		response.LastRunAt = stats.LastRunAt.Format(time.RFC3339)
	}
	if !stats.Watermark.IsZero() {
		response.Watermark = stats.Watermark.Format(time.RFC3339)
	}

	// Two missed cycles without a clean run means something is stuck.
	if lagSeconds > 2*int64(hs.runner.config.Service.PollIntervalSeconds) {
		response.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding health response: %v", err)
	}
}
