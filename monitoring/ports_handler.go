package monitoring

import (
	"encoding/json"
	"net/http"

	"uartviewer/format"
	"uartviewer/serial"
)

// PortsHandler lists candidate serial ports
type PortsHandler struct {
	prefixes []string
	discover func(prefixes []string) ([]serial.PortInfo, error)
}

// NewPortsHandler creates a ports handler filtering by prefixes
func NewPortsHandler(prefixes []string) *PortsHandler {
	return &PortsHandler{
		prefixes: prefixes,
		discover: serial.DiscoverPorts,
	}
}

// ServeHTTP handles /api/ports. all=1 lists every enumerated port.
func (h *PortsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	prefixes := h.prefixes
	if r.URL.Query().Get("all") == "1" {
		prefixes = nil
	}

	ports, err := h.discover(prefixes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if ports == nil {
		ports = []serial.PortInfo{}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"ports":      ports,
		"baud_rates": serial.BaudRates,
	})
}

// TimestampRequest changes the shared timestamp settings. Nil fields are left
// unchanged.
type TimestampRequest struct {
	Enabled  *bool   `json:"enabled"`
	Timezone *string `json:"timezone"`
}

// TimestampResponse reports the timestamp settings
type TimestampResponse struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone"`
	Now      string `json:"now"`
	Error    string `json:"error,omitempty"`
}

// TimestampHandler reads and changes the clock every session stamps with
type TimestampHandler struct {
	clock *format.Clock
}

// NewTimestampHandler creates a new timestamp handler
func NewTimestampHandler(clock *format.Clock) *TimestampHandler {
	return &TimestampHandler{clock: clock}
}

// ServeHTTP handles /api/timestamp. An unknown zone falls back to local time
// and is reported with status 400.
func (h *TimestampHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status := http.StatusOK
	var tzErr error

	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req TimestampRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Enabled != nil {
			h.clock.SetEnabled(*req.Enabled)
		}
		if req.Timezone != nil {
			if tzErr = h.clock.SetTimezone(*req.Timezone); tzErr != nil {
				status = http.StatusBadRequest
			}
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := TimestampResponse{
		Enabled:  h.clock.Enabled(),
		Timezone: h.clock.Timezone(),
		Now:      h.clock.Timestamp(),
	}
	if tzErr != nil {
		resp.Error = tzErr.Error()
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
