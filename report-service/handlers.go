package main

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// reportSource abstracts the mart read so handlers are testable without a
// warehouse.
type reportSource interface {
	FetchUserDaily(ctx context.Context, customerID string) ([]martRow, error)
}

// ReportHandlers serves the read-only report endpoints.
type ReportHandlers struct {
	reader reportSource
	config *Config
	logger *zap.Logger
}

// NewReportHandlers creates the report HTTP handlers
func NewReportHandlers(reader reportSource, config *Config, logger *zap.Logger) *ReportHandlers {
	return &ReportHandlers{
		reader: reader,
		config: config,
		logger: logger,
	}
}

// Routes registers all endpoints on a mux
func (h *ReportHandlers) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/reports", h.withCORS(h.withAuth(h.handleReport)))
	return mux
}

func (h *ReportHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withCORS grants the configured origin and answers preflight. Browsers
// send an OPTIONS preflight before any request carrying Authorization, and
// a preflight carries no credentials itself, so it must be answered before
// the auth check.
func (h *ReportHandlers) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.config.Service.CORSAllowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", h.config.Service.CORSAllowOrigin)
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// withAuth enforces the static bearer token when one is configured.
func (h *ReportHandlers) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.config.Auth.BearerToken != "" {
			if r.Header.Get("Authorization") != "Bearer "+h.config.Auth.BearerToken {
				h.writeError(w, http.StatusUnauthorized, "missing or invalid token")
				return
			}
		}
		next(w, r)
	}
}

// handleReport returns the pre-aggregated report for one customer. Falls
// back to the demo customer when no customer_id is given, matching the
// original report backend.
func (h *ReportHandlers) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		customerID = "c1"
	}

	rows, err := h.reader.FetchUserDaily(r.Context(), customerID)
	if err != nil {
		h.logger.Error("Failed to read mart", zap.String("customer_id", customerID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to read report data")
		return
	}

	if len(rows) == 0 {
		h.writeError(w, http.StatusNotFound, "report not found for given customer_id")
		return
	}

	report := UserReport{
		CustomerID: customerID,
		FullName:   rows[0].FullName,
		Country:    rows[0].Country,
		Days:       make([]DailyTelemetry, 0, len(rows)),
	}
	for _, row := range rows {
		report.Days = append(report.Days, DailyTelemetry{
			EventDate:       row.EventDate.Format("2006-01-02"),
			ProsthesisID:    row.ProsthesisID,
			Events:          row.Events,
			ErrEvents:       row.ErrEvents,
			AvgResponseMS:   row.AvgResponseMS,
			P95ResponseMS:   row.P95ResponseMS,
			AvgBatteryLevel: row.AvgBatteryLevel,
		})
	}

	h.logger.Info("Served report",
		zap.String("customer_id", customerID),
		zap.Int("days", len(report.Days)))
	h.writeJSON(w, http.StatusOK, report)
}

func (h *ReportHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	if h.config.Service.CORSAllowOrigin != "" {
		w.Header().Set("Access-Control-Allow-Origin", h.config.Service.CORSAllowOrigin)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *ReportHandlers) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"detail": detail})
}
