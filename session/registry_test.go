package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"uartviewer/serial"
)

type recordingSink struct {
	mu  sync.Mutex
	got map[string]string
}

func (s *recordingSink) Append(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.got == nil {
		s.got = make(map[string]string)
	}
	s.got[id] += text
}

func (s *recordingSink) text(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.got[id]
}

func newTestRegistry(t *testing.T) (*Registry, *serial.MockOpener) {
	t.Helper()
	opener := serial.NewMockOpener()
	r := NewRegistry(testOptions(opener, nil))
	t.Cleanup(r.Close)
	return r, opener
}

func TestRegistryAdd(t *testing.T) {
	r, _ := newTestRegistry(t)

	s, err := r.Add("/dev/ttyUSB0", 0)
	require.NoError(t, err)
	require.Equal(t, serial.DefaultBaudRate, s.Baud())
	require.Equal(t, StateDisconnected, s.State())

	_, err = r.Add("/dev/ttyUSB0", 9600)
	require.ErrorIs(t, err, ErrDuplicateSession)

	_, err = r.Add("", 9600)
	require.Error(t, err)

	s2, err := r.AddPort(serial.PortConfig{Device: "/dev/ttyACM0", BaudRate: 9600, Parity: "even"})
	require.NoError(t, err)
	require.Equal(t, 9600, s2.Baud())

	got, ok := r.Get("/dev/ttyACM0")
	require.True(t, ok)
	require.Same(t, s2, got)
	_, ok = r.Get("/dev/nope")
	require.False(t, ok)

	ids := []string{}
	for _, s := range r.Sessions() {
		ids = append(ids, s.ID())
	}
	require.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyACM0"}, ids)
	require.Equal(t, 2, r.Len())
	require.Len(t, r.Infos(), 2)
}

func TestRegistryRemove(t *testing.T) {
	r, opener := newTestRegistry(t)

	s, err := r.Add("/dev/ttyUSB0", 115200)
	require.NoError(t, err)
	require.NoError(t, s.Connect(0))

	r.Remove("/dev/ttyUSB0")
	require.Equal(t, StateDisconnected, s.State())
	require.False(t, opener.Port("/dev/ttyUSB0").IsOpen())
	require.Zero(t, r.Len())

	// Idempotent
	r.Remove("/dev/ttyUSB0")
	r.Remove("/dev/never")

	// The identifier is free again
	_, err = r.Add("/dev/ttyUSB0", 115200)
	require.NoError(t, err)
}

func TestRegistryDrainAll(t *testing.T) {
	r, _ := newTestRegistry(t)
	sink := &recordingSink{}
	r.AddSink(sink)

	var calls int
	r.AddSink(SinkFunc(func(id, text string) { calls++ }))

	a, err := r.Add("/dev/ttyUSB0", 0)
	require.NoError(t, err)
	b, err := r.Add("/dev/ttyUSB1", 0)
	require.NoError(t, err)
	_, err = r.Add("/dev/ttyUSB2", 0)
	require.NoError(t, err)

	a.queue.Push("one\n")
	b.queue.Push("two\n")
	b.queue.Push("three\n")

	drained := r.DrainAll()
	require.Equal(t, []Drained{
		{ID: "/dev/ttyUSB0", Text: "one\n"},
		{ID: "/dev/ttyUSB1", Text: "two\nthree\n"},
	}, drained)
	require.Equal(t, "one\n", sink.text("/dev/ttyUSB0"))
	require.Equal(t, "two\nthree\n", sink.text("/dev/ttyUSB1"))
	require.Equal(t, 2, calls)

	require.Empty(t, r.DrainAll())
}

func TestRegistryRunDrainsUntilCancelled(t *testing.T) {
	r, opener := newTestRegistry(t)
	sink := &recordingSink{}
	r.AddSink(sink)

	s, err := r.Add("/dev/ttyUSB0", 0)
	require.NoError(t, err)
	opener.Port("/dev/ttyUSB0").QueueRead([]byte("tick\n"))
	require.NoError(t, s.Connect(0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return sink.text("/dev/ttyUSB0") == "tick\n"
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.Equal(t, "tick\n", s.Text())
}

func TestRegistryCloseDisconnectsAll(t *testing.T) {
	r, opener := newTestRegistry(t)

	devices := []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyACM0"}
	for _, d := range devices {
		s, err := r.Add(d, 0)
		require.NoError(t, err)
		require.NoError(t, s.Connect(0))
	}

	start := time.Now()
	r.Close()
	require.Less(t, time.Since(start), time.Second)

	for _, d := range devices {
		require.False(t, opener.Port(d).IsOpen(), d)
		s, ok := r.Get(d)
		require.True(t, ok)
		require.Equal(t, StateDisconnected, s.State())
	}
}

func TestRegistrySessionsShareStamper(t *testing.T) {
	opener := serial.NewMockOpener()
	stamper := &toggleStamper{}
	r := NewRegistry(testOptions(opener, stamper))
	t.Cleanup(r.Close)

	a, err := r.Add("/dev/ttyUSB0", 0)
	require.NoError(t, err)
	b, err := r.Add("/dev/ttyUSB1", 0)
	require.NoError(t, err)

	stamper.set(true)
	opener.Port("/dev/ttyUSB0").QueueRead([]byte("a\n"))
	opener.Port("/dev/ttyUSB1").QueueRead([]byte("b\n"))
	require.NoError(t, a.Connect(0))
	require.NoError(t, b.Connect(0))

	drainUntil(t, a, "[S] a\n")
	drainUntil(t, b, "[S] b\n")
}

type toggleStamper struct {
	mu sync.Mutex
	on bool
}

func (s *toggleStamper) set(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on = on
}

func (s *toggleStamper) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on
}

func (s *toggleStamper) Timestamp() string { return "[S]" }
