package serial

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// DefaultCandidatePrefixes matches USB CDC and USB-to-UART adapters on Linux
var DefaultCandidatePrefixes = []string{"ttyUSB", "ttyACM"}

var getDetailedPortsList = enumerator.GetDetailedPortsList

// PortInfo describes a discovered serial port
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// DiscoverPorts returns every port the enumerator reports whose base name
// starts with one of prefixes. An empty prefix list keeps every port.
func DiscoverPorts(prefixes []string) ([]PortInfo, error) {
	details, err := getDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerator error: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		if !matchesPrefix(d.Name, prefixes) {
			continue
		}
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}

// ListCandidatePorts returns the sorted device identifiers of DiscoverPorts
func ListCandidatePorts(prefixes []string) ([]string, error) {
	ports, err := DiscoverPorts(prefixes)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.Name
	}
	return names, nil
}

func matchesPrefix(name string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	base := filepath.Base(name)
	for _, p := range prefixes {
		if strings.HasPrefix(base, p) {
			return true
		}
	}
	return false
}
