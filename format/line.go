package format

import "strings"

// Stamper supplies the timestamp configuration read at format time
type Stamper interface {
	// Enabled reports whether complete lines should be prefixed
	Enabled() bool

	// Timestamp returns the prefix for a line completed now
	Timestamp() string
}

// LineFormatter splits decoded text into complete lines, optionally
// prefixing each with a timestamp, and carries the unterminated tail to the
// next call. The carried line is owned by the producer goroutine; the
// formatter is not safe for concurrent use.
type LineFormatter struct {
	stamper Stamper
	carry   string
}

// NewLineFormatter creates a formatter reading its settings from stamper.
// A nil stamper disables timestamps.
func NewLineFormatter(stamper Stamper) *LineFormatter {
	return &LineFormatter{stamper: stamper}
}

// Format returns the complete lines of carry+text ready to append to the
// log. The unterminated remainder is kept for the next call and is never
// emitted here, even if empty.
func (f *LineFormatter) Format(text string) string {
	if text == "" {
		return ""
	}

	lines := strings.Split(f.carry+text, "\n")
	f.carry = lines[len(lines)-1]
	lines = lines[:len(lines)-1]
	if len(lines) == 0 {
		return ""
	}

	enabled := f.stamper != nil && f.stamper.Enabled()

	var b strings.Builder
	for _, line := range lines {
		// Blank separator lines are never stamped
		if enabled && line != "" {
			b.WriteString(f.stamper.Timestamp())
			b.WriteByte(' ')
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Carry returns the partial line held for the next call
func (f *LineFormatter) Carry() string {
	return f.carry
}
