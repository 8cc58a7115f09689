// Package search finds text in a session log, forward or backward, with
// wrap-around. Offsets are byte offsets into the searched buffer.
package search

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrEmptyQuery is returned for an empty query
	ErrEmptyQuery = errors.New("empty search query")

	// ErrNotFound is returned when the query occurs nowhere in the buffer
	ErrNotFound = errors.New("not found")
)

// Direction selects which way a search scans from the cursor
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "up"
	}
	return "down"
}

// ParseDirection accepts "down"/"forward" and "up"/"backward"
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "", "down", "forward", "next":
		return Forward, nil
	case "up", "backward", "prev", "previous":
		return Backward, nil
	default:
		return Forward, fmt.Errorf("invalid direction: %q", s)
	}
}

// Match is the span [Start, End) of an occurrence
type Match struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Find returns the first occurrence of query at or after cursor (Forward) or
// the last occurrence ending at or before cursor (Backward). When the scan
// reaches the buffer edge without a hit it wraps: forward continues from the
// start of the buffer, backward from the end.
func Find(buffer string, cursor int, query string, caseSensitive bool, dir Direction) (Match, error) {
	if query == "" {
		return Match{}, ErrEmptyQuery
	}
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(buffer) {
		cursor = len(buffer)
	}

	var (
		m  Match
		ok bool
	)
	if dir == Backward {
		if m, ok = lastBefore(buffer, cursor, query, caseSensitive); !ok {
			m, ok = lastBefore(buffer, len(buffer), query, caseSensitive)
		}
	} else {
		if m, ok = firstFrom(buffer, cursor, query, caseSensitive); !ok {
			m, ok = firstFrom(buffer, 0, query, caseSensitive)
		}
	}
	if !ok {
		return Match{}, ErrNotFound
	}
	return m, nil
}

func firstFrom(buffer string, from int, query string, caseSensitive bool) (Match, bool) {
	if caseSensitive {
		i := strings.Index(buffer[from:], query)
		if i < 0 {
			return Match{}, false
		}
		return Match{Start: from + i, End: from + i + len(query)}, true
	}

	for i := from; i < len(buffer); i++ {
		if !utf8.RuneStart(buffer[i]) {
			continue
		}
		if n, ok := hasPrefixFold(buffer[i:], query); ok {
			return Match{Start: i, End: i + n}, true
		}
	}
	return Match{}, false
}

func lastBefore(buffer string, until int, query string, caseSensitive bool) (Match, bool) {
	if caseSensitive {
		i := strings.LastIndex(buffer[:until], query)
		if i < 0 {
			return Match{}, false
		}
		return Match{Start: i, End: i + len(query)}, true
	}

	window := buffer[:until]
	for i := len(window) - 1; i >= 0; i-- {
		if !utf8.RuneStart(window[i]) {
			continue
		}
		if n, ok := hasPrefixFold(window[i:], query); ok {
			return Match{Start: i, End: i + n}, true
		}
	}
	return Match{}, false
}

// hasPrefixFold reports whether s starts with query under simple case
// folding, and how many bytes of s the match covers. The byte length can
// differ from len(query), e.g. KELVIN SIGN against "k".
func hasPrefixFold(s, query string) (int, bool) {
	i := 0
	for _, qr := range query {
		if i >= len(s) {
			return 0, false
		}
		sr, size := utf8.DecodeRuneInString(s[i:])
		if !foldEqual(sr, qr) {
			return 0, false
		}
		i += size
	}
	return i, true
}

func foldEqual(a, b rune) bool {
	if a == b {
		return true
	}
	if a < utf8.RuneSelf && b < utf8.RuneSelf {
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		return a == b
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}
