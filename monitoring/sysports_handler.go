package monitoring

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"

	"uartviewer/session"
)

// DefaultProcSerialPath is where Linux reports on-board UART counters
const DefaultProcSerialPath = "/proc/tty/driver/serial"

// Example: "4: uart:16550A port:000002F0 irq:7 tx:1195 rx:1170 CTS|DSR|CD"
var procSerialLine = regexp.MustCompile(`^\s*(\d+):\s+uart:(\S+)\s+port:([0-9A-Fa-f]+)\s+irq:(\d+)\s+tx:(\d+)\s+rx:(\d+)(.*)$`)

// SysPortInfo contains system-level serial port information
type SysPortInfo struct {
	Device  string `json:"device"`
	UART    string `json:"uart"`
	Port    string `json:"port"`
	IRQ     int    `json:"irq"`
	TX      int64  `json:"tx"`
	RX      int64  `json:"rx"`
	Signals string `json:"signals"`
	Active  bool   `json:"active"`
	COMPort string `json:"com_port"`
	Session string `json:"session,omitempty"`
}

// SysPortsHandler handles requests for system serial port info
type SysPortsHandler struct {
	path     string
	registry *session.Registry
}

// NewSysPortsHandler creates a system ports handler reading path. Ports that
// have a session are marked with its state.
func NewSysPortsHandler(path string, registry *session.Registry) *SysPortsHandler {
	if path == "" {
		path = DefaultProcSerialPath
	}
	return &SysPortsHandler{path: path, registry: registry}
}

// ServeHTTP handles system port info requests
func (h *SysPortsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	file, err := os.Open(h.path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer file.Close()

	ports, err := parseProcSerial(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if h.registry != nil {
		for i := range ports {
			if sess, ok := h.registry.Get(ports[i].Device); ok {
				ports[i].Session = string(sess.State())
			}
		}
	}
	if ports == nil {
		ports = []SysPortInfo{}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"ports": ports,
	})
}

// parseProcSerial reads the driver table, keeping hardware ports only
func parseProcSerial(r io.Reader) ([]SysPortInfo, error) {
	var ports []SysPortInfo
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		matches := procSerialLine.FindStringSubmatch(scanner.Text())
		if len(matches) < 8 || matches[2] == "unknown" {
			continue
		}

		portNum, _ := strconv.Atoi(matches[1])
		irq, _ := strconv.Atoi(matches[4])
		tx, _ := strconv.ParseInt(matches[5], 10, 64)
		rx, _ := strconv.ParseInt(matches[6], 10, 64)
		signals := strings.TrimSpace(matches[7])

		// A cable is assumed when the remote raises a modem line or traffic
		// flows both ways
		hasRemoteSignals := strings.Contains(signals, "CTS") ||
			strings.Contains(signals, "DSR") ||
			strings.Contains(signals, "CD")

		ports = append(ports, SysPortInfo{
			Device:  "/dev/ttyS" + strconv.Itoa(portNum),
			UART:    matches[2],
			Port:    "0x" + strings.ToUpper(matches[3]),
			IRQ:     irq,
			TX:      tx,
			RX:      rx,
			Signals: signals,
			Active:  hasRemoteSignals || (tx > 0 && rx > 0),
			COMPort: "COM" + strconv.Itoa(portNum+1),
		})
	}

	return ports, scanner.Err()
}
