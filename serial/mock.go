package serial

import (
	"bytes"
	"sync"
	"time"
)

// MockPort implements Source for testing purposes. Reads are served from a
// queue of scripted chunks; an empty queue behaves like a read timeout.
type MockPort struct {
	mu        sync.Mutex
	buffer    bytes.Buffer
	device    string
	isOpen    bool
	reads     [][]byte
	writes    [][]byte
	readErr   error // Returned once the read queue is empty
	writeErr  error // If set, Write will return this error
	readDelay time.Duration
	closes    int
}

// NewMockPort creates a new mock port
func NewMockPort(device string) *MockPort {
	return &MockPort{
		device:    device,
		isOpen:    true,
		writes:    make([][]byte, 0),
		readDelay: 2 * time.Millisecond,
	}
}

// QueueRead appends a chunk that a later Read will return
func (p *MockPort) QueueRead(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	chunk := make([]byte, len(data))
	copy(chunk, data)
	p.reads = append(p.reads, chunk)
}

// Pending returns the number of queued chunks not yet read
func (p *MockPort) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reads)
}

// Read returns the next queued chunk, or (0, nil) after a short delay when
// nothing is queued
func (p *MockPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if !p.isOpen {
		p.mu.Unlock()
		return 0, ErrPortClosed
	}
	if len(p.reads) > 0 {
		chunk := p.reads[0]
		n := copy(buf, chunk)
		if n < len(chunk) {
			p.reads[0] = chunk[n:]
		} else {
			p.reads = p.reads[1:]
		}
		p.mu.Unlock()
		return n, nil
	}
	if p.readErr != nil {
		err := p.readErr
		p.mu.Unlock()
		return 0, err
	}
	delay := p.readDelay
	p.mu.Unlock()

	time.Sleep(delay)
	return 0, nil
}

// Write writes data to the mock port buffer
func (p *MockPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isOpen {
		return 0, ErrPortClosed
	}

	if p.writeErr != nil {
		return 0, p.writeErr
	}

	// Store a copy of the data
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	p.writes = append(p.writes, dataCopy)

	return p.buffer.Write(data)
}

// Close closes the mock port
func (p *MockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isOpen = false
	p.closes++
	return nil
}

// Device returns the mock device path
func (p *MockPort) Device() string {
	return p.device
}

// IsOpen returns true if the mock port is open
func (p *MockPort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isOpen
}

// CloseCount returns how many times Close was called
func (p *MockPort) CloseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

// GetWrittenData returns all data written to the mock port
func (p *MockPort) GetWrittenData() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.buffer.Bytes()...)
}

// GetWrites returns all individual write operations
func (p *MockPort) GetWrites() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([][]byte, len(p.writes))
	for i, w := range p.writes {
		result[i] = make([]byte, len(w))
		copy(result[i], w)
	}
	return result
}

// Reset clears all written data and queued reads
func (p *MockPort) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer.Reset()
	p.writes = make([][]byte, 0)
	p.reads = nil
}

// SetReadError sets an error to be returned once queued reads are exhausted
func (p *MockPort) SetReadError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

// SetWriteError sets an error to be returned on subsequent writes
func (p *MockPort) SetWriteError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// ClearWriteError clears any write error
func (p *MockPort) ClearWriteError() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = nil
}

// Reopen reopens a closed mock port
func (p *MockPort) Reopen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isOpen = true
}

// MockOpener hands out MockPorts by device path and records every open
type MockOpener struct {
	mu      sync.Mutex
	ports   map[string]*MockPort
	configs []PortConfig
	openErr error
}

// NewMockOpener creates an opener with no ports yet
func NewMockOpener() *MockOpener {
	return &MockOpener{ports: make(map[string]*MockPort)}
}

// Open returns the mock port for cfg.Device, creating it on first use
func (o *MockOpener) Open(cfg PortConfig) (Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.configs = append(o.configs, cfg)
	if o.openErr != nil {
		return nil, o.openErr
	}

	port, ok := o.ports[cfg.Device]
	if !ok {
		port = NewMockPort(cfg.Device)
		o.ports[cfg.Device] = port
	} else {
		port.Reopen()
	}
	return port, nil
}

// Port returns the mock port for device, creating it if needed
func (o *MockOpener) Port(device string) *MockPort {
	o.mu.Lock()
	defer o.mu.Unlock()
	port, ok := o.ports[device]
	if !ok {
		port = NewMockPort(device)
		o.ports[device] = port
	}
	return port
}

// SetOpenError makes subsequent opens fail with err
func (o *MockOpener) SetOpenError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.openErr = err
}

// Configs returns the configurations passed to Open so far
func (o *MockOpener) Configs() []PortConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]PortConfig(nil), o.configs...)
}
