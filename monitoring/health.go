package monitoring

import (
	"encoding/json"
	"net/http"
	"time"

	"uartviewer/session"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string         `json:"status"`
	InstanceID string         `json:"instance_id"`
	Version    string         `json:"version"`
	UptimeSec  int64          `json:"uptime_sec"`
	Ports      []session.Info `json:"ports"`
}

// HealthHandler creates an HTTP handler for health checks
type HealthHandler struct {
	instanceID string
	version    string
	startTime  time.Time
	registry   *session.Registry
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(instanceID, version string, registry *session.Registry) *HealthHandler {
	return &HealthHandler{
		instanceID: instanceID,
		version:    version,
		startTime:  time.Now(),
		registry:   registry,
	}
}

// ServeHTTP handles the /health endpoint. A connected port whose reader has
// stalled makes the instance degraded.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	infos := h.registry.Infos()

	// Determine overall status
	status := "healthy"
	for _, info := range infos {
		if info.State == session.StateConnected && info.Stalled {
			status = "degraded"
			break
		}
	}

	response := HealthResponse{
		Status:     status,
		InstanceID: h.instanceID,
		Version:    h.version,
		UptimeSec:  int64(time.Since(h.startTime).Seconds()),
		Ports:      infos,
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}
