package serial

import (
	"fmt"
	"sync"

	"go.bug.st/serial"
)

// RealPort implements Source using go.bug.st/serial
type RealPort struct {
	port   serial.Port
	config PortConfig

	mu     sync.Mutex
	isOpen bool
}

func openBugst(config PortConfig) (*RealPort, error) {
	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
		StopBits: convertStopBits(config.StopBits),
		Parity:   convertParity(config.Parity),
	}

	port, err := serial.Open(config.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", config.Device, err)
	}

	if err := port.SetReadTimeout(config.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	// Drop whatever the driver buffered before we attached
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset input buffer: %w", err)
	}

	return &RealPort{
		port:   port,
		config: config,
		isOpen: true,
	}, nil
}

// Read reads up to len(buf) bytes, returning (0, nil) on timeout
func (p *RealPort) Read(buf []byte) (int, error) {
	if !p.IsOpen() {
		return 0, ErrPortClosed
	}
	return p.port.Read(buf)
}

// Write writes data to the serial port
func (p *RealPort) Write(data []byte) (int, error) {
	if !p.IsOpen() {
		return 0, ErrPortClosed
	}
	n, err := p.port.Write(data)
	if err != nil {
		return n, err
	}
	return n, p.port.Drain()
}

// Close closes the serial port
func (p *RealPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isOpen {
		return nil
	}
	p.isOpen = false
	return p.port.Close()
}

// Device returns the device path
func (p *RealPort) Device() string {
	return p.config.Device
}

// IsOpen returns true if the port is currently open
func (p *RealPort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isOpen
}

// ListPorts returns a list of available serial ports
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

func convertStopBits(bits int) serial.StopBits {
	switch bits {
	case 1:
		return serial.OneStopBit
	case 2:
		return serial.TwoStopBits
	default:
		return serial.OneStopBit
	}
}

func convertParity(parity string) serial.Parity {
	switch parity {
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	case "mark":
		return serial.MarkParity
	case "space":
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}
