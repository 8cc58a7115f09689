package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"uartviewer/session"
)

// ConsoleSink prints drained text. With more than one session every line is
// prefixed by the base name of its port.
type ConsoleSink struct {
	mu       sync.Mutex
	w        io.Writer
	registry *session.Registry
}

// NewConsoleSink creates a sink printing to w
func NewConsoleSink(w io.Writer, registry *session.Registry) *ConsoleSink {
	return &ConsoleSink{w: w, registry: registry}
}

// Append implements session.Sink
func (c *ConsoleSink) Append(id, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.registry.Len() <= 1 {
		fmt.Fprint(c.w, text)
		return
	}

	prefix := "[" + filepath.Base(id) + "] "
	var b strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		b.WriteString(prefix)
		b.WriteString(line)
	}
	fmt.Fprint(c.w, b.String())
}

var errAmbiguousTarget = errors.New("several ports are open, prefix the line with @<port>")

// routeInput picks the session a console line is meant for. "@port text"
// addresses a port by identifier or base name; without it there must be
// exactly one session.
func routeInput(line string, sessions []*session.Session) (*session.Session, string, error) {
	if target, rest, ok := strings.Cut(line, " "); ok && strings.HasPrefix(target, "@") {
		target = strings.TrimPrefix(target, "@")
		for _, s := range sessions {
			if s.ID() == target || filepath.Base(s.ID()) == target {
				return s, rest, nil
			}
		}
		return nil, "", fmt.Errorf("%w: %s", session.ErrUnknownSession, target)
	}
	if strings.HasPrefix(line, "@") && !strings.Contains(line, " ") {
		return nil, "", fmt.Errorf("nothing to send to %s", line)
	}

	switch len(sessions) {
	case 0:
		return nil, "", session.ErrNotConnected
	case 1:
		return sessions[0], line, nil
	default:
		return nil, "", errAmbiguousTarget
	}
}

// readInput sends every line read from r until r ends or ctx is cancelled
func readInput(ctx context.Context, r io.Reader, registry *session.Registry, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimRight(scanner.Text(), "\r")

		sess, text, err := routeInput(line, registry.Sessions())
		if err != nil {
			logger.Warn("Input not sent", "error", err)
			continue
		}
		if err := sess.Send(text); err != nil {
			logger.Warn("Send failed", "device", sess.ID(), "error", err)
		}
	}
}
