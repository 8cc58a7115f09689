package monitoring

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"uartviewer/persist"
	"uartviewer/search"
	"uartviewer/serial"
	"uartviewer/session"
)

// PortRequest is the body of the session management endpoints
type PortRequest struct {
	Device   string `json:"device"`
	BaudRate int    `json:"baud_rate"`
	Connect  bool   `json:"connect"`
	Line     string `json:"line,omitempty"`
	Path     string `json:"path,omitempty"`
}

// errorStatus maps session, search and persist errors to HTTP status codes
func errorStatus(err error) int {
	var connErr *session.ConnectionError
	var writeErr *session.WriteError
	var ioErr *persist.IOError

	switch {
	case errors.Is(err, serial.ErrInvalidBaud), errors.Is(err, search.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrUnknownSession), errors.Is(err, search.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrDuplicateSession),
		errors.Is(err, session.ErrAlreadyConnected),
		errors.Is(err, session.ErrNotConnected):
		return http.StatusConflict
	case errors.As(err, &connErr), errors.As(err, &writeErr):
		return http.StatusBadGateway
	case errors.As(err, &ioErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), errorStatus(err))
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (PortRequest, bool) {
	var req PortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return req, false
	}
	if req.Device == "" {
		http.Error(w, "device is required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func lookup(w http.ResponseWriter, registry *session.Registry, device string) (*session.Session, bool) {
	if device == "" {
		http.Error(w, "device is required", http.StatusBadRequest)
		return nil, false
	}
	sess, ok := registry.Get(device)
	if !ok {
		http.Error(w, session.ErrUnknownSession.Error()+": "+device, http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

// SessionsHandler lists, adds and removes sessions
type SessionsHandler struct {
	registry *session.Registry
}

// NewSessionsHandler creates a new sessions handler
func NewSessionsHandler(registry *session.Registry) *SessionsHandler {
	return &SessionsHandler{registry: registry}
}

// ServeHTTP handles /api/sessions
func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sessions": h.registry.Infos(),
		})
	case http.MethodPost:
		req, ok := decodeRequest(w, r)
		if !ok {
			return
		}
		if req.BaudRate != 0 {
			if err := serial.CheckBaud(req.BaudRate); err != nil {
				writeError(w, err)
				return
			}
		}
		sess, err := h.registry.Add(req.Device, req.BaudRate)
		if err != nil {
			writeError(w, err)
			return
		}
		if req.Connect {
			if err := sess.Connect(0); err != nil {
				writeError(w, err)
				return
			}
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(sess.Info())
	case http.MethodDelete:
		device := r.URL.Query().Get("device")
		if device == "" {
			http.Error(w, "device is required", http.StatusBadRequest)
			return
		}
		h.registry.Remove(device)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ConnectHandler connects or disconnects an existing session
type ConnectHandler struct {
	registry *session.Registry
	connect  bool
}

// NewConnectHandler creates a handler for /api/sessions/connect
func NewConnectHandler(registry *session.Registry) *ConnectHandler {
	return &ConnectHandler{registry: registry, connect: true}
}

// NewDisconnectHandler creates a handler for /api/sessions/disconnect
func NewDisconnectHandler(registry *session.Registry) *ConnectHandler {
	return &ConnectHandler{registry: registry}
}

// ServeHTTP handles connect and disconnect requests
func (h *ConnectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	sess, ok := lookup(w, h.registry, req.Device)
	if !ok {
		return
	}

	if h.connect {
		if err := sess.Connect(req.BaudRate); err != nil {
			writeError(w, err)
			return
		}
	} else {
		sess.Disconnect()
	}
	json.NewEncoder(w).Encode(sess.Info())
}

// SendHandler writes a line to a connected port
type SendHandler struct {
	registry *session.Registry
}

// NewSendHandler creates a new send handler
func NewSendHandler(registry *session.Registry) *SendHandler {
	return &SendHandler{registry: registry}
}

// ServeHTTP handles /api/send
func (h *SendHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	sess, ok := lookup(w, h.registry, req.Device)
	if !ok {
		return
	}
	if err := sess.Send(req.Line); err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"device": req.Device,
		"bytes":  len(req.Line) + 2,
	})
}

// LogResponse carries a slice of a session log
type LogResponse struct {
	Device string `json:"device"`
	Length int    `json:"length"`
	Text   string `json:"text"`
}

// LogHandler returns accumulated log text. With offset it returns everything
// appended since that byte offset, with tail the last n bytes, otherwise the
// whole log.
type LogHandler struct {
	registry *session.Registry
}

// NewLogHandler creates a new log handler
func NewLogHandler(registry *session.Registry) *LogHandler {
	return &LogHandler{registry: registry}
}

// ServeHTTP handles /api/log
func (h *LogHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	q := r.URL.Query()
	sess, ok := lookup(w, h.registry, q.Get("device"))
	if !ok {
		return
	}

	log := sess.Log()
	text := ""
	switch {
	case q.Get("offset") != "":
		offset, err := strconv.Atoi(q.Get("offset"))
		if err != nil || offset < 0 {
			http.Error(w, "invalid offset", http.StatusBadRequest)
			return
		}
		text = log.Since(offset)
	case q.Get("tail") != "":
		n, err := strconv.Atoi(q.Get("tail"))
		if err != nil {
			http.Error(w, "invalid tail", http.StatusBadRequest)
			return
		}
		text = log.Tail(n)
	default:
		text = log.String()
	}

	json.NewEncoder(w).Encode(LogResponse{
		Device: sess.ID(),
		Length: log.Len(),
		Text:   text,
	})
}

// SearchResponse reports a match in a session log
type SearchResponse struct {
	Device string `json:"device"`
	Query  string `json:"query"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Line   string `json:"line"`
}

// SearchHandler steps a session's find cursor through its log
type SearchHandler struct {
	registry *session.Registry
	resume   bool
}

// NewSearchHandler creates a new search handler. resume controls whether
// reset=1 keeps the cursor position.
func NewSearchHandler(registry *session.Registry, resume bool) *SearchHandler {
	return &SearchHandler{registry: registry, resume: resume}
}

// ServeHTTP handles /api/search?device=&q=&case=&dir=down|up&reset=
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	q := r.URL.Query()
	sess, ok := lookup(w, h.registry, q.Get("device"))
	if !ok {
		return
	}

	dir := search.Forward
	if v := q.Get("dir"); v != "" {
		parsed, err := search.ParseDirection(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		dir = parsed
	}
	caseSensitive, _ := strconv.ParseBool(q.Get("case"))
	if reset, _ := strconv.ParseBool(q.Get("reset")); reset {
		sess.ReopenFind(h.resume)
	}

	match, err := sess.Find(q.Get("q"), caseSensitive, dir)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(SearchResponse{
		Device: sess.ID(),
		Query:  q.Get("q"),
		Start:  match.Start,
		End:    match.End,
		Line:   lineAround(sess.Text(), match),
	})
}

// lineAround returns the full line containing m
func lineAround(text string, m search.Match) string {
	if m.Start > len(text) || m.End > len(text) {
		return ""
	}
	start := m.Start
	for start > 0 && text[start-1] != '\n' {
		start--
	}
	end := m.End
	for end < len(text) && text[end] != '\n' {
		end++
	}
	return text[start:end]
}

// SaveHandler writes a session log to a file in the save directory
type SaveHandler struct {
	registry *session.Registry
	dir      string
}

// NewSaveHandler creates a new save handler writing below dir
func NewSaveHandler(registry *session.Registry, dir string) *SaveHandler {
	return &SaveHandler{registry: registry, dir: dir}
}

// ServeHTTP handles /api/save. Only the base name of a supplied path is used.
func (h *SaveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	sess, ok := lookup(w, h.registry, req.Device)
	if !ok {
		return
	}

	name := persist.DefaultLogName(sess.ID())
	if req.Path != "" {
		name = filepath.Base(req.Path)
	}
	path := filepath.Join(h.dir, name)

	if err := sess.SaveLog(path); err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"device": sess.ID(),
		"path":   path,
		"bytes":  sess.Log().Len(),
	})
}
