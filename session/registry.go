package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"uartviewer/serial"
)

// DefaultDrainInterval is the period of the drain tick
const DefaultDrainInterval = 50 * time.Millisecond

// Sink receives text drained from a session
type Sink interface {
	Append(id, text string)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(id, text string)

// Append implements Sink
func (f SinkFunc) Append(id, text string) { f(id, text) }

// Drained is the text one session produced in a drain cycle
type Drained struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Registry holds the open sessions, keyed by port identifier, in the order
// they were added
type Registry struct {
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	sessions []*Session
	sinks    []Sink
}

// NewRegistry creates an empty registry. Every session it creates shares
// opts, including the Stamper.
func NewRegistry(opts Options) *Registry {
	opts = opts.withDefaults()
	return &Registry{
		opts:     opts,
		logger:   opts.Logger,
		sessions: make([]*Session, 0),
	}
}

// AddSink registers a sink for DrainAll output
func (r *Registry) AddSink(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, sink)
}

// Add creates a disconnected session for id. A baud of 0 selects
// serial.DefaultBaudRate.
func (r *Registry) Add(id string, baud int) (*Session, error) {
	return r.AddPort(serial.PortConfig{Device: id, BaudRate: baud})
}

// AddPort creates a disconnected session with full port settings
func (r *Registry) AddPort(cfg serial.PortConfig) (*Session, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("empty port identifier")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.ID() == cfg.Device {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, cfg.Device)
		}
	}

	s := New(cfg, r.opts)
	r.sessions = append(r.sessions, s)
	r.logger.Info("Session added", "device", cfg.Device, "baud", s.Baud())
	return s, nil
}

// Remove disconnects and discards the session for id. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	var removed *Session
	for i, s := range r.sessions {
		if s.ID() == id {
			removed = s
			r.sessions = append(r.sessions[:i:i], r.sessions[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if removed == nil {
		return
	}
	removed.Disconnect()
	r.logger.Info("Session removed", "device", id)
}

// Get returns the session for id
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.ID() == id {
			return s, true
		}
	}
	return nil, false
}

// Sessions returns the registered sessions in insertion order
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*Session, len(r.sessions))
	copy(sessions, r.sessions)
	return sessions
}

// Len returns the number of registered sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Infos returns a status snapshot of every session
func (r *Registry) Infos() []Info {
	sessions := r.Sessions()
	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// DrainAll drains every session in insertion order, hands non-empty text to
// the sinks, and returns it
func (r *Registry) DrainAll() []Drained {
	r.mu.RLock()
	sessions := make([]*Session, len(r.sessions))
	copy(sessions, r.sessions)
	sinks := make([]Sink, len(r.sinks))
	copy(sinks, r.sinks)
	r.mu.RUnlock()

	var out []Drained
	for _, s := range sessions {
		text := s.Drain()
		if text == "" {
			continue
		}
		out = append(out, Drained{ID: s.ID(), Text: text})
		for _, sink := range sinks {
			sink.Append(s.ID(), text)
		}
	}
	return out
}

// Run calls DrainAll every interval until ctx is done. A final drain runs on
// the way out so nothing already read is left in the queues.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultDrainInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.DrainAll()
			return
		case <-ticker.C:
			r.DrainAll()
		}
	}
}

// Close disconnects every session concurrently. Sessions stay registered.
func (r *Registry) Close() {
	sessions := r.Sessions()
	r.logger.Info("Disconnecting sessions", "sessions", len(sessions))

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Disconnect()
		}(s)
	}
	wg.Wait()
}
