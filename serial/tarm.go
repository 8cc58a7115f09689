package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"

	tarm "github.com/tarm/serial"
)

// TarmPort implements Source using github.com/tarm/serial. It exists for
// adapters where the termios handling of go.bug.st/serial misbehaves.
type TarmPort struct {
	port   *tarm.Port
	config PortConfig

	mu     sync.Mutex
	isOpen bool
}

func openTarm(config PortConfig) (*TarmPort, error) {
	tarmCfg := &tarm.Config{
		Name:        config.Device,
		Baud:        config.BaudRate,
		ReadTimeout: config.ReadTimeout,
		Size:        byte(config.DataBits),
		Parity:      tarmParity(config.Parity),
		StopBits:    tarmStopBits(config.StopBits),
	}

	port, err := tarm.OpenPort(tarmCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", config.Device, err)
	}

	return &TarmPort{
		port:   port,
		config: config,
		isOpen: true,
	}, nil
}

// Read reads up to len(buf) bytes. tarm reports a timed-out read as io.EOF,
// which is folded into the (0, nil) timeout result.
func (p *TarmPort) Read(buf []byte) (int, error) {
	if !p.IsOpen() {
		return 0, ErrPortClosed
	}
	n, err := p.port.Read(buf)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

// Write writes data to the serial port
func (p *TarmPort) Write(data []byte) (int, error) {
	if !p.IsOpen() {
		return 0, ErrPortClosed
	}
	return p.port.Write(data)
}

// Close closes the serial port
func (p *TarmPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isOpen {
		return nil
	}
	p.isOpen = false
	return p.port.Close()
}

// Device returns the device path
func (p *TarmPort) Device() string {
	return p.config.Device
}

// IsOpen returns true if the port is currently open
func (p *TarmPort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isOpen
}

func tarmParity(parity string) tarm.Parity {
	switch parity {
	case "odd":
		return tarm.ParityOdd
	case "even":
		return tarm.ParityEven
	case "mark":
		return tarm.ParityMark
	case "space":
		return tarm.ParitySpace
	default:
		return tarm.ParityNone
	}
}

func tarmStopBits(bits int) tarm.StopBits {
	if bits == 2 {
		return tarm.Stop2
	}
	return tarm.Stop1
}
