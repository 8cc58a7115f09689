package session

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"uartviewer/format"
	"uartviewer/persist"
	"uartviewer/search"
	"uartviewer/serial"
)

// State is the connection state of a session
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
)

// Session defaults
const (
	DefaultJoinTimeout = time.Second
	DefaultIdleSleep   = 20 * time.Millisecond
	DefaultReadBuffer  = 4096
)

// Options configures how sessions open and read their ports
type Options struct {
	ReadTimeout time.Duration
	JoinTimeout time.Duration
	IdleSleep   time.Duration
	ReadBuffer  int

	// Opener opens the transport; serial.Open when nil
	Opener serial.Opener

	// Stamper is consulted for every complete line
	Stamper format.Stamper

	// OnStall is called once when a read loop stops on a transport error
	OnStall func(id string, err error)

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = serial.DefaultReadTimeout
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = DefaultJoinTimeout
	}
	if o.IdleSleep <= 0 {
		o.IdleSleep = DefaultIdleSleep
	}
	if o.ReadBuffer <= 0 {
		o.ReadBuffer = DefaultReadBuffer
	}
	if o.Opener == nil {
		o.Opener = serial.Open
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Info is a snapshot of a session for status reporting
type Info struct {
	ID            string        `json:"id"`
	BaudRate      int           `json:"baud_rate"`
	State         State         `json:"state"`
	Stalled       bool          `json:"stalled"`
	LastError     string        `json:"last_error,omitempty"`
	ConnectedAt   *time.Time    `json:"connected_at,omitempty"`
	ChunksDrained int64         `json:"chunks_drained"`
	Pending       int           `json:"pending"`
	LogBytes      int           `json:"log_bytes"`
	Port          *serial.Stats `json:"port,omitempty"`
}

// Session owns one serial port: it connects and disconnects it, runs the
// background reader that decodes and formats incoming bytes, and moves
// formatted text into the log on Drain.
type Session struct {
	id     string
	port   serial.PortConfig
	opts   Options
	logger *slog.Logger

	// Touched only by the reader goroutine. Starting a reader waits for the
	// previous one to exit, so there is never more than one.
	decoder   format.Decoder
	formatter *format.LineFormatter

	queue Queue
	log   LogBuffer

	// connectMu serializes Connect. mu guards the fields below it.
	connectMu sync.Mutex

	mu          sync.Mutex
	state       State
	source      *serial.SourceWithStats
	stopCh      chan struct{}
	doneCh      chan struct{}
	connectedAt time.Time

	stalled atomic.Bool
	drained atomic.Int64

	errMu   sync.RWMutex
	lastErr error

	findMu sync.Mutex
	cursor search.Cursor
}

// New creates a disconnected session for cfg.Device
func New(cfg serial.PortConfig, opts Options) *Session {
	opts = opts.withDefaults()
	if cfg.BaudRate == 0 {
		cfg.BaudRate = serial.DefaultBaudRate
	}
	cfg.ReadTimeout = opts.ReadTimeout

	return &Session{
		id:        cfg.Device,
		port:      cfg,
		opts:      opts,
		logger:    opts.Logger.With("device", cfg.Device),
		formatter: format.NewLineFormatter(opts.Stamper),
		state:     StateDisconnected,
	}
}

// ID returns the port identifier
func (s *Session) ID() string {
	return s.id
}

// Baud returns the baud rate of the current or most recent connection
func (s *Session) Baud() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.BaudRate
}

// State returns the connection state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether the session is connected
func (s *Session) Connected() bool {
	return s.State() == StateConnected
}

// Stalled reports whether the reader stopped on a transport error while the
// session is still connected
func (s *Session) Stalled() bool {
	return s.stalled.Load()
}

// LastError returns the most recent transport error, or nil
func (s *Session) LastError() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	return s.lastErr
}

func (s *Session) setLastError(err error) {
	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()
}

// Connect opens the port at baud and starts the reader. A baud of 0 uses the
// session's configured rate. On failure the session stays disconnected.
// s.mu is released while the port opens and while a previous reader is
// awaited.
func (s *Session) Connect(baud int) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	if baud == 0 {
		baud = s.port.BaudRate
	}
	cfg := s.port
	prev := s.doneCh
	s.mu.Unlock()

	if err := serial.CheckBaud(baud); err != nil {
		return err
	}

	// A reader from the previous connection may have outlived its join.
	// Only Connect replaces doneCh, and connectMu is held, so prev stays
	// current while we wait.
	if prev != nil {
		select {
		case <-prev:
		case <-time.After(s.opts.JoinTimeout):
			return &ConnectionError{Device: s.id, Err: ErrReaderBusy}
		}
	}

	cfg.BaudRate = baud
	src, err := s.opts.Opener(cfg)
	if err != nil {
		s.logger.Warn("Failed to open port", "baud", baud, "error", err)
		return &ConnectionError{Device: s.id, Err: err}
	}

	s.mu.Lock()
	s.port.BaudRate = baud
	s.source = serial.NewSourceWithStats(src)
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.connectedAt = time.Now()
	s.state = StateConnected
	s.stalled.Store(false)
	s.setLastError(nil)
	go s.readLoop(s.source, s.stopCh, s.doneCh)
	s.mu.Unlock()

	s.logger.Info("Session connected", "baud", baud)
	return nil
}

// Disconnect stops the reader, waiting at most the join timeout, and closes
// the port. It is safe to call in any state and never fails.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	src, stop, done := s.source, s.stopCh, s.doneCh
	s.source = nil
	s.stopCh = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(s.opts.JoinTimeout):
		s.logger.Warn("Reader did not stop in time, closing port anyway", "timeout", s.opts.JoinTimeout)
	}

	if err := src.Close(); err != nil {
		s.logger.Warn("Failed to close port", "error", err)
	}

	st := src.Stats()
	s.logger.Info("Session disconnected",
		"bytes_received", st.BytesReceived,
		"bytes_sent", st.BytesSent,
	)
}

// Send writes line followed by CR LF
func (s *Session) Send(line string) error {
	s.mu.Lock()
	src, state := s.source, s.state
	s.mu.Unlock()

	if state != StateConnected {
		return ErrNotConnected
	}

	if _, err := src.Write([]byte(line + "\r\n")); err != nil {
		s.logger.Warn("Write failed", "error", err)
		return &WriteError{Device: s.id, Err: err}
	}
	s.logger.Debug("Sent line", "bytes", len(line)+2)
	return nil
}

// Drain moves everything the reader has queued into the log and returns the
// text appended. It never blocks on the reader.
func (s *Session) Drain() string {
	chunks := s.queue.TakeAll()
	if len(chunks) == 0 {
		return ""
	}
	text := strings.Join(chunks, "")
	s.log.Append(text)
	s.drained.Add(int64(len(chunks)))
	return text
}

// Log returns the accumulated log
func (s *Session) Log() *LogBuffer {
	return &s.log
}

// Text returns the whole accumulated log
func (s *Session) Text() string {
	return s.log.String()
}

// SaveLog writes the accumulated log to path
func (s *Session) SaveLog(path string) error {
	if err := persist.WriteLog(path, s.log.String()); err != nil {
		s.logger.Warn("Failed to save log", "path", path, "error", err)
		return err
	}
	s.logger.Info("Saved log", "path", path, "bytes", s.log.Len())
	return nil
}

// Find searches the log from the session's search cursor
func (s *Session) Find(query string, caseSensitive bool, dir search.Direction) (search.Match, error) {
	s.findMu.Lock()
	defer s.findMu.Unlock()
	return s.cursor.Next(s.log.String(), query, caseSensitive, dir)
}

// ReopenFind resets or keeps the search cursor when the find UI reopens
func (s *Session) ReopenFind(resume bool) {
	s.findMu.Lock()
	defer s.findMu.Unlock()
	s.cursor.Reopen(resume)
}

// Info returns a status snapshot
func (s *Session) Info() Info {
	s.mu.Lock()
	info := Info{
		ID:       s.id,
		BaudRate: s.port.BaudRate,
		State:    s.state,
	}
	if s.state == StateConnected {
		at := s.connectedAt
		info.ConnectedAt = &at
		st := s.source.Stats()
		info.Port = &st
	}
	s.mu.Unlock()

	info.Stalled = s.stalled.Load()
	if err := s.LastError(); err != nil {
		info.LastError = err.Error()
	}
	info.ChunksDrained = s.drained.Load()
	info.Pending = s.queue.Len()
	info.LogBytes = s.log.Len()
	return info
}

func (s *Session) readLoop(src serial.Source, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	buf := make([]byte, s.opts.ReadBuffer)
	idle := time.NewTimer(s.opts.IdleSleep)
	defer idle.Stop()

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := src.Read(buf)
		if err != nil {
			select {
			case <-stop:
				// Closed under us by Disconnect
				return
			default:
			}
			s.stall(err)
			return
		}

		if n == 0 {
			s.enqueue(s.decoder.Flush())
			idle.Reset(s.opts.IdleSleep)
			select {
			case <-stop:
				return
			case <-idle.C:
			}
			continue
		}

		s.enqueue(s.decoder.Decode(buf[:n]))
	}
}

func (s *Session) enqueue(text string) {
	if text == "" {
		return
	}
	if out := s.formatter.Format(text); out != "" {
		s.queue.Push(out)
	}
}

// stall records a read failure. The state stays connected until Disconnect.
func (s *Session) stall(err error) {
	s.setLastError(err)
	s.stalled.Store(true)
	s.logger.Error("Read loop stopped", "error", err)
	if s.opts.OnStall != nil {
		s.opts.OnStall(s.id, err)
	}
}
