package session

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// LogBuffer is the append-only text of a session. Drain is the only writer;
// any number of readers may run concurrently with it.
type LogBuffer struct {
	mu sync.RWMutex
	b  strings.Builder
}

// Append adds text to the end of the log
func (l *LogBuffer) Append(text string) {
	if text == "" {
		return
	}
	l.mu.Lock()
	l.b.WriteString(text)
	l.mu.Unlock()
}

// String returns the whole log
func (l *LogBuffer) String() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.b.String()
}

// Len returns the log size in bytes
func (l *LogBuffer) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.b.Len()
}

// Since returns the text appended after byte offset
func (l *LogBuffer) Since(offset int) string {
	s := l.String()
	if offset <= 0 {
		return s
	}
	if offset >= len(s) {
		return ""
	}
	return s[offset:]
}

// Tail returns at most the last n bytes, starting on a rune boundary. A
// non-positive n returns the whole log.
func (l *LogBuffer) Tail(n int) string {
	s := l.String()
	if n <= 0 || n >= len(s) {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
