package monitoring

import (
	"fmt"
	"net/http"

	"uartviewer/serial"
	"uartviewer/session"
)

// MetricsHandler creates an HTTP handler for Prometheus metrics
type MetricsHandler struct {
	registry *session.Registry
	hub      *Hub
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(registry *session.Registry, hub *Hub) *MetricsHandler {
	return &MetricsHandler{
		registry: registry,
		hub:      hub,
	}
}

// ServeHTTP handles the /metrics endpoint in Prometheus format
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	infos := h.registry.Infos()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Bytes received
	fmt.Fprintln(w, "# HELP uartviewer_bytes_received_total Bytes received on the current connection")
	fmt.Fprintln(w, "# TYPE uartviewer_bytes_received_total counter")
	for _, info := range infos {
		fmt.Fprintf(w, "uartviewer_bytes_received_total{port=%q} %d\n", info.ID, stats(info).BytesReceived)
	}

	// Bytes sent
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP uartviewer_bytes_sent_total Bytes sent on the current connection")
	fmt.Fprintln(w, "# TYPE uartviewer_bytes_sent_total counter")
	for _, info := range infos {
		fmt.Fprintf(w, "uartviewer_bytes_sent_total{port=%q} %d\n", info.ID, stats(info).BytesSent)
	}

	// Errors
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP uartviewer_port_errors_total Transport errors on the current connection")
	fmt.Fprintln(w, "# TYPE uartviewer_port_errors_total counter")
	for _, info := range infos {
		fmt.Fprintf(w, "uartviewer_port_errors_total{port=%q} %d\n", info.ID, stats(info).Errors)
	}

	// Chunks drained
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP uartviewer_chunks_drained_total Formatted chunks moved into the log")
	fmt.Fprintln(w, "# TYPE uartviewer_chunks_drained_total counter")
	for _, info := range infos {
		fmt.Fprintf(w, "uartviewer_chunks_drained_total{port=%q} %d\n", info.ID, info.ChunksDrained)
	}

	// Log size
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP uartviewer_log_bytes Size of the accumulated log")
	fmt.Fprintln(w, "# TYPE uartviewer_log_bytes gauge")
	for _, info := range infos {
		fmt.Fprintf(w, "uartviewer_log_bytes{port=%q} %d\n", info.ID, info.LogBytes)
	}

	// Pending chunks
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP uartviewer_pending_chunks Chunks waiting for the next drain")
	fmt.Fprintln(w, "# TYPE uartviewer_pending_chunks gauge")
	for _, info := range infos {
		fmt.Fprintf(w, "uartviewer_pending_chunks{port=%q} %d\n", info.ID, info.Pending)
	}

	// Port status
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP uartviewer_port_up Port status (1=connected and reading, 0=otherwise)")
	fmt.Fprintln(w, "# TYPE uartviewer_port_up gauge")
	for _, info := range infos {
		up := 0
		if info.State == session.StateConnected && !info.Stalled {
			up = 1
		}
		fmt.Fprintf(w, "uartviewer_port_up{port=%q,baud=\"%d\"} %d\n", info.ID, info.BaudRate, up)
	}

	// Last read timestamp
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP uartviewer_last_read_timestamp Unix timestamp of the last non-empty read")
	fmt.Fprintln(w, "# TYPE uartviewer_last_read_timestamp gauge")
	for _, info := range infos {
		if info.Port != nil && !info.Port.LastReadTime.IsZero() {
			fmt.Fprintf(w, "uartviewer_last_read_timestamp{port=%q} %d\n", info.ID, info.Port.LastReadTime.Unix())
		}
	}

	if h.hub != nil {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "# HELP uartviewer_ws_clients Connected websocket clients")
		fmt.Fprintln(w, "# TYPE uartviewer_ws_clients gauge")
		fmt.Fprintf(w, "uartviewer_ws_clients %d\n", h.hub.Subscribers())

		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "# HELP uartviewer_ws_dropped_total Events dropped for slow websocket clients")
		fmt.Fprintln(w, "# TYPE uartviewer_ws_dropped_total counter")
		fmt.Fprintf(w, "uartviewer_ws_dropped_total %d\n", h.hub.Dropped())
	}
}

// stats returns the port counters of a session, zero when it has never
// been connected.
func stats(info session.Info) serial.Stats {
	if info.Port == nil {
		return serial.Stats{}
	}
	return *info.Port
}
