// Package simulator produces device-like serial output: lines replayed from a
// sample file or synthesized boot and telemetry messages, written in randomly
// sized chunks with mixed line endings.
package simulator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"
)

// Mode represents the simulator mode
type Mode string

const (
	ModeReplay    Mode = "replay"
	ModeSynthetic Mode = "synthetic"
)

// ErrEndOfSample is returned by NextLine when a non-looping replay is done
var ErrEndOfSample = errors.New("end of sample file reached")

// Options configures a Simulator
type Options struct {
	Mode           Mode
	SampleFile     string
	Loop           bool
	LinesPerMinute float64
	JitterPercent  float64
	// MaxChunk bounds the size of each write; 0 selects 16
	MaxChunk int
	// Endings are picked at random per line; empty selects LF, CRLF and CR
	Endings []string
	// Seed makes the output reproducible; 0 seeds from the clock
	Seed int64
}

// Simulator produces lines and writes them like a UART would deliver them
type Simulator struct {
	opts    Options
	random  *rand.Rand
	limiter *RateLimiter

	mu     sync.Mutex
	lines  []string
	index  int
	seq    int
	start  time.Time
	lastCR bool
}

// New creates a simulator. Replay mode loads the sample file up front.
func New(opts Options) (*Simulator, error) {
	if opts.Mode == "" {
		opts.Mode = ModeSynthetic
	}
	if opts.Mode != ModeReplay && opts.Mode != ModeSynthetic {
		return nil, fmt.Errorf("invalid mode: %s", opts.Mode)
	}
	if opts.MaxChunk <= 0 {
		opts.MaxChunk = 16
	}
	if len(opts.Endings) == 0 {
		opts.Endings = []string{"\n", "\r\n", "\r"}
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	random := rand.New(rand.NewSource(seed))

	s := &Simulator{
		opts:    opts,
		random:  random,
		// The ticker goroutine draws intervals, so it gets its own source
		limiter: NewRateLimiter(opts.LinesPerMinute, opts.JitterPercent, rand.New(rand.NewSource(seed+1))),
		start:   time.Now(),
	}

	if opts.Mode == ModeReplay {
		if err := s.loadSampleFile(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Simulator) loadSampleFile() error {
	if s.opts.SampleFile == "" {
		return fmt.Errorf("sample file is required for replay mode")
	}

	file, err := os.Open(s.opts.SampleFile)
	if err != nil {
		return fmt.Errorf("failed to open sample file: %w", err)
	}
	defer file.Close()

	lines, err := ReadLines(file)
	if err != nil {
		return fmt.Errorf("failed to read sample file: %w", err)
	}
	if len(lines) == 0 {
		return fmt.Errorf("no lines found in sample file")
	}

	s.lines = lines
	return nil
}

// ReadLines splits r into lines, dropping any CR/CRLF/LF terminator
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	return lines, scanner.Err()
}

// NextLine returns the next line without a terminator
func (s *Simulator) NextLine() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.Mode == ModeReplay {
		if s.index >= len(s.lines) {
			if !s.opts.Loop {
				return "", ErrEndOfSample
			}
			s.index = 0
		}
		line := s.lines[s.index]
		s.index++
		return line, nil
	}

	s.seq++
	return s.synthetic(), nil
}

var syntheticTemplates = []func(r *rand.Rand, seq int, uptime time.Duration) string{
	func(r *rand.Rand, seq int, uptime time.Duration) string {
		return fmt.Sprintf("I (%d) app: heartbeat seq=%d", uptime.Milliseconds(), seq)
	},
	func(r *rand.Rand, seq int, uptime time.Duration) string {
		return fmt.Sprintf("I (%d) sensor: temp=%.1f°C rh=%d%%", uptime.Milliseconds(), 18+r.Float64()*10, 30+r.Intn(40))
	},
	func(r *rand.Rand, seq int, uptime time.Duration) string {
		return fmt.Sprintf("D (%d) wifi: rssi=%d dBm", uptime.Milliseconds(), -40-r.Intn(50))
	},
	func(r *rand.Rand, seq int, uptime time.Duration) string {
		return fmt.Sprintf("W (%d) heap: free=%d bytes", uptime.Milliseconds(), 100000+r.Intn(150000))
	},
	func(r *rand.Rand, seq int, uptime time.Duration) string {
		return fmt.Sprintf("E (%d) i2c: timeout on addr 0x%02x", uptime.Milliseconds(), 0x20+r.Intn(0x50))
	},
}

// synthetic boots once, then emits telemetry
func (s *Simulator) synthetic() string {
	if s.seq == 1 {
		return "rst:0x1 (POWERON_RESET),boot:0x13 (SPI_FAST_FLASH_BOOT)"
	}
	tmpl := syntheticTemplates[s.random.Intn(len(syntheticTemplates))]
	return tmpl(s.random, s.seq, time.Since(s.start))
}

// Encode appends a randomly chosen line ending. An empty line right after a
// bare CR never gets a bare LF, which would read back as one CRLF.
func (s *Simulator) Encode(line string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	endings := s.opts.Endings
	if s.lastCR && line == "" {
		endings = withoutLF(endings)
	}
	ending := endings[s.random.Intn(len(endings))]
	s.lastCR = strings.HasSuffix(ending, "\r")
	return []byte(line + ending)
}

func withoutLF(endings []string) []string {
	out := make([]string, 0, len(endings))
	for _, e := range endings {
		if !strings.HasPrefix(e, "\n") {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return []string{"\r"}
	}
	return out
}

// Split cuts data into chunks between 1 and MaxChunk bytes. Chunks may end
// inside a multi-byte rune or between CR and LF.
func (s *Simulator) Split(data []byte) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	var chunks [][]byte
	for len(data) > 0 {
		n := 1 + s.random.Intn(s.opts.MaxChunk)
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

// Run writes lines to w at the configured rate until ctx ends or a
// non-looping replay runs out
func (s *Simulator) Run(ctx context.Context, w io.Writer) error {
	ticker := NewTicker(s.limiter)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		line, err := s.NextLine()
		if err != nil {
			return err
		}
		for _, chunk := range s.Split(s.Encode(line)) {
			if _, err := w.Write(chunk); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}
