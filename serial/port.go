package serial

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"
)

// Backend names accepted in PortConfig.Backend
const (
	BackendBugst = "bugst"
	BackendTarm  = "tarm"
)

// DefaultReadTimeout bounds every Read so the ingestion loop can observe a
// stop signal within one timeout period.
const DefaultReadTimeout = 100 * time.Millisecond

var (
	// ErrPortClosed is returned by Read and Write after Close
	ErrPortClosed = errors.New("port is closed")

	// ErrInvalidBaud is returned when a baud rate is outside BaudRates
	ErrInvalidBaud = errors.New("invalid baud rate")
)

// BaudRates is the closed set of recognized baud rates, ascending
var BaudRates = []int{300, 600, 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}

// DefaultBaudRate is used when no baud rate is configured
const DefaultBaudRate = 115200

// ValidBaud reports whether rate is one of BaudRates
func ValidBaud(rate int) bool {
	for _, r := range BaudRates {
		if r == rate {
			return true
		}
	}
	return false
}

// CheckBaud returns ErrInvalidBaud wrapped with the offending value
func CheckBaud(rate int) error {
	if !ValidBaud(rate) {
		return fmt.Errorf("%w: %d", ErrInvalidBaud, rate)
	}
	return nil
}

// PortConfig contains serial port configuration settings
type PortConfig struct {
	Device      string
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      string // "none", "odd", "even", "mark", "space"
	ReadTimeout time.Duration
	Backend     string // "bugst" (default) or "tarm"
}

func (c PortConfig) withDefaults() PortConfig {
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.StopBits == 0 {
		c.StopBits = 1
	}
	if c.Parity == "" {
		c.Parity = "none"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.Backend == "" {
		c.Backend = BackendBugst
	}
	c.Parity = strings.ToLower(c.Parity)
	return c
}

// Source is an open serial connection.
//
// Read blocks for at most the configured read timeout. A return of (0, nil)
// means no data arrived within the timeout, not end of stream. Close is
// idempotent.
type Source interface {
	io.ReadWriteCloser

	// Device returns the device path
	Device() string
}

// Opener opens a Source for a port configuration
type Opener func(cfg PortConfig) (Source, error)

// Open opens a serial port with the backend named in cfg.Backend
func Open(cfg PortConfig) (Source, error) {
	cfg = cfg.withDefaults()
	if err := CheckBaud(cfg.BaudRate); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendBugst:
		port, err := openBugst(cfg)
		if err != nil {
			return nil, err
		}
		return port, nil
	case BackendTarm:
		port, err := openTarm(cfg)
		if err != nil {
			return nil, err
		}
		return port, nil
	default:
		return nil, fmt.Errorf("unknown serial backend: %s", cfg.Backend)
	}
}

// Stats tracks statistics for a serial port
type Stats struct {
	BytesReceived int64     `json:"bytes_received"`
	BytesSent     int64     `json:"bytes_sent"`
	Reads         int64     `json:"reads"`
	Errors        int64     `json:"errors"`
	LastReadTime  time.Time `json:"last_read_time"`
	OpenedAt      time.Time `json:"opened_at"`
}

// SourceWithStats wraps a Source with statistics tracking. Read and Write may
// be called from different goroutines.
type SourceWithStats struct {
	Source

	bytesReceived atomic.Int64
	bytesSent     atomic.Int64
	reads         atomic.Int64
	errors        atomic.Int64
	lastRead      atomic.Int64
	openedAt      time.Time
}

// NewSourceWithStats creates a new source wrapper with statistics
func NewSourceWithStats(src Source) *SourceWithStats {
	return &SourceWithStats{
		Source:   src,
		openedAt: time.Now(),
	}
}

// Read reads from the source and tracks statistics
func (s *SourceWithStats) Read(buf []byte) (int, error) {
	n, err := s.Source.Read(buf)
	if n > 0 {
		s.bytesReceived.Add(int64(n))
		s.reads.Add(1)
		s.lastRead.Store(time.Now().UnixNano())
	}
	if err != nil {
		s.errors.Add(1)
	}
	return n, err
}

// Write writes data to the source and tracks statistics
func (s *SourceWithStats) Write(data []byte) (int, error) {
	n, err := s.Source.Write(data)
	if err != nil {
		s.errors.Add(1)
		return n, err
	}
	s.bytesSent.Add(int64(n))
	return n, nil
}

// Stats returns a copy of the current statistics
func (s *SourceWithStats) Stats() Stats {
	st := Stats{
		BytesReceived: s.bytesReceived.Load(),
		BytesSent:     s.bytesSent.Load(),
		Reads:         s.reads.Load(),
		Errors:        s.errors.Load(),
		OpenedAt:      s.openedAt,
	}
	if ns := s.lastRead.Load(); ns != 0 {
		st.LastReadTime = time.Unix(0, ns)
	}
	return st
}
