package format

import (
	"strings"
	"unicode/utf8"
)

// Decoder turns raw serial bytes into normalized text. It never fails:
// undecodable bytes become U+FFFD, NUL is dropped, and CR / CRLF become LF.
//
// A Decoder keeps state between calls so that a multi-byte rune or a CRLF
// pair split across two reads decodes the same as if it arrived whole. It
// must only be used from the goroutine that reads the port.
type Decoder struct {
	pending []byte // incomplete trailing UTF-8 sequence
	cr      bool   // previous chunk ended on CR
}

// Decode decodes one chunk of raw bytes
func (d *Decoder) Decode(raw []byte) string {
	data := raw
	if len(d.pending) > 0 {
		data = append(d.pending, raw...)
		d.pending = nil
	}

	if cut := incompleteSuffix(data); cut > 0 {
		d.pending = append([]byte(nil), data[len(data)-cut:]...)
		data = data[:len(data)-cut]
	}

	var b strings.Builder
	b.Grow(len(data))
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		i += size
		d.write(&b, r)
	}
	return b.String()
}

// Flush returns whatever Decode is holding back: a trailing CR becomes LF and
// an incomplete rune becomes U+FFFD. The read loop calls it when the line
// goes idle.
func (d *Decoder) Flush() string {
	if !d.cr && len(d.pending) == 0 {
		return ""
	}
	var b strings.Builder
	if len(d.pending) > 0 {
		d.pending = nil
		d.write(&b, utf8.RuneError)
	}
	if d.cr {
		b.WriteByte('\n')
		d.cr = false
	}
	return b.String()
}

func (d *Decoder) write(b *strings.Builder, r rune) {
	switch r {
	case 0:
		return
	case '\r':
		if d.cr {
			b.WriteByte('\n')
		}
		d.cr = true
		return
	case '\n':
		d.cr = false
		b.WriteByte('\n')
		return
	}
	if d.cr {
		b.WriteByte('\n')
		d.cr = false
	}
	b.WriteRune(r)
}

// incompleteSuffix returns the length of a truncated multi-byte sequence at
// the end of data, or 0
func incompleteSuffix(data []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(data); i++ {
		start := len(data) - i
		if utf8.RuneStart(data[start]) {
			if utf8.FullRune(data[start:]) {
				return 0
			}
			return i
		}
	}
	return 0
}
