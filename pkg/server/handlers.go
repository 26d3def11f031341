package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/nicktill/tinynotes/pkg/config"
	"github.com/nicktill/tinynotes/pkg/httpx"
	"github.com/nicktill/tinynotes/pkg/notes"
	"github.com/nicktill/tinynotes/pkg/server/monitor"
	"github.com/nicktill/tinynotes/pkg/telemetry"
)

// Version is reported by the health endpoint.
const Version = "0.1.2"

var startTime = time.Now()

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Uptime      string            `json:"uptime"`
	Storage     string            `json:"storage"`
	Requests    telemetry.Counts  `json:"requests"`
	Export      monitor.JobStatus `json:"export"`
	Maintenance monitor.JobStatus `json:"maintenance"`
}

// handleHealth returns service health status. Only maintenance failures
// degrade it; an unreachable collector is reported but not fatal.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	maintenance := a.maintenanceMonitor.Status()
	overallStatus := "healthy"
	statusCode := http.StatusOK

	if !maintenance.Healthy {
		overallStatus = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:      overallStatus,
		Version:     Version,
		Uptime:      time.Since(startTime).Round(time.Second).String(),
		Storage:     a.cfg.Backend,
		Requests:    a.metrics.Snapshot(),
		Export:      a.exportMonitor.Status(),
		Maintenance: maintenance,
	}

	httpx.RespondJSON(w, statusCode, response)
}

// SetupRoutes configures all HTTP routes for the server.
func SetupRoutes(router *mux.Router, noteHandler *notes.Handler, app *App, logger zerolog.Logger) {
	router.Use(requestIDMiddleware(logger))
	router.Use(accessLogMiddleware)
	router.Use(timeoutMiddleware(config.RequestTimeout))

	// Note CRUD
	noteHandler.RegisterRoutes(router)

	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/health", app.handleHealth).Methods("GET")

	// WebSocket for note change events
	api.HandleFunc("/ws", app.hub.HandleWebSocket).Methods("GET")

	// Prometheus pull endpoint
	router.Handle("/metrics", app.metrics.Handler()).Methods("GET")
}
