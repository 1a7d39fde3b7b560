package server

import (
	"encoding/json"
	"net/http"
	"time"

	"portal-relay/internal/relay"
)

// StatusSource provides the relay counters
type StatusSource interface {
	Snapshot() relay.Snapshot
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse represents the relay status response
type StatusResponse struct {
	Status  string         `json:"status"`
	Uptime  string         `json:"uptime"`
	Metrics relay.Snapshot `json:"metrics"`
}

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// StatusHandler handles GET /api/status
func StatusHandler(source StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := source.Snapshot()

		status := "ok"
		if snap.LastError != "" {
			status = "degraded"
		}

		writeJSON(w, http.StatusOK, StatusResponse{
			Status:  status,
			Uptime:  time.Since(snap.StartedAt).Round(time.Second).String(),
			Metrics: snap,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
