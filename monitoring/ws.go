package monitoring

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"uartviewer/session"
)

const (
	// hubClientDepth is the per-client event buffer
	hubClientDepth = 256

	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// Event is one drained chunk as delivered to websocket clients
type Event struct {
	Device string `json:"device"`
	Text   string `json:"text"`
}

// SendRequest is the message a websocket client sends to write a line to a port
type SendRequest struct {
	Device string `json:"device"`
	Line   string `json:"line"`
}

type subscriber struct {
	ch     chan Event
	device string
}

// Hub fans drained text out to websocket clients. It implements
// session.Sink so it can be registered with the registry directly.
// A client whose buffer is full misses the event; Append never blocks the
// drain tick.
type Hub struct {
	registry *session.Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]subscriber
	dropped atomic.Int64
}

// NewHub creates a hub. Lines received from clients are sent through the
// sessions of registry.
func NewHub(registry *session.Registry, logger *slog.Logger) *Hub {
	return &Hub{
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: make(map[uint64]subscriber),
	}
}

// Subscribe registers a listener. An empty device receives every port. The
// returned cancel func unregisters the listener and closes the channel.
func (h *Hub) Subscribe(device string) (<-chan Event, func()) {
	ch := make(chan Event, hubClientDepth)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = subscriber{ch: ch, device: device}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Append implements session.Sink
func (h *Hub) Append(id, text string) {
	ev := Event{Device: id, Text: text}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.device != "" && sub.device != id {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of registered listeners
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many events were discarded for slow listeners
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// ServeHTTP upgrades the connection and streams events until the client goes
// away. The optional device query parameter restricts the stream to one port.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	device := r.URL.Query().Get("device")
	events, cancel := h.Subscribe(device)
	defer cancel()

	h.logger.Debug("Websocket client connected", "remote", r.RemoteAddr, "device", device)

	closed := make(chan struct{})
	go h.readLoop(conn, closed)

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			h.logger.Debug("Websocket client disconnected", "remote", r.RemoteAddr)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// readLoop handles client messages and signals closed when the connection
// ends. Only SendRequest messages are understood.
func (h *Hub) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req SendRequest
		if err := json.Unmarshal(data, &req); err != nil {
			h.logger.Debug("Ignoring websocket message", "error", err)
			continue
		}
		sess, ok := h.registry.Get(req.Device)
		if !ok {
			h.logger.Warn("Websocket send to unknown port", "device", req.Device)
			continue
		}
		if err := sess.Send(req.Line); err != nil {
			h.logger.Warn("Websocket send failed", "device", req.Device, "error", err)
		}
	}
}
