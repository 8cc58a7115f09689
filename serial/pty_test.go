//go:build linux

package serial

import (
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

var backends = []string{BackendBugst, BackendTarm}

func openPTYSource(t *testing.T, backend string) (Source, func([]byte)) {
	t.Helper()
	master, slave, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	t.Cleanup(func() { master.Close(); slave.Close() })

	src, err := Open(PortConfig{
		Device:      slave.Name(),
		BaudRate:    115200,
		ReadTimeout: 100 * time.Millisecond,
		Backend:     backend,
	})
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	return src, func(data []byte) {
		_, err := master.Write(data)
		require.NoError(t, err)
	}
}

func readWithin(t *testing.T, src Source, want int, timeout time.Duration) []byte {
	t.Helper()
	var got []byte
	buf := make([]byte, 4096)
	deadline := time.Now().Add(timeout)
	for len(got) < want && time.Now().Before(deadline) {
		n, err := src.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	return got
}

func TestOpenSelectsBackend(t *testing.T) {
	src, _ := openPTYSource(t, BackendBugst)
	require.IsType(t, &RealPort{}, src)

	src, _ = openPTYSource(t, BackendTarm)
	require.IsType(t, &TarmPort{}, src)
}

func TestPortReadOverPTY(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			src, write := openPTYSource(t, backend)

			write([]byte("hello\n"))
			got := readWithin(t, src, 6, 2*time.Second)
			require.Contains(t, string(got), "hello")
		})
	}
}

// Nothing written: each backend must report the timeout as an empty read,
// tarm included, whose driver signals it with io.EOF.
func TestPortReadTimeoutIsEmpty(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			src, _ := openPTYSource(t, backend)

			buf := make([]byte, 64)
			for i := 0; i < 3; i++ {
				start := time.Now()
				n, err := src.Read(buf)
				require.NoError(t, err)
				require.Zero(t, n)
				require.Less(t, time.Since(start), time.Second)
			}
		})
	}
}

func TestPortDataAfterTimeout(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			src, write := openPTYSource(t, backend)

			n, err := src.Read(make([]byte, 16))
			require.NoError(t, err)
			require.Zero(t, n)

			write([]byte("boot ok\n"))
			require.Contains(t, string(readWithin(t, src, 8, 2*time.Second)), "boot ok")
		})
	}
}

func TestPortCloseIsIdempotent(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			src, _ := openPTYSource(t, backend)

			require.NoError(t, src.Close())
			require.NoError(t, src.Close())

			_, err := src.Read(make([]byte, 8))
			require.ErrorIs(t, err, ErrPortClosed)
			_, err = src.Write([]byte("x"))
			require.ErrorIs(t, err, ErrPortClosed)
		})
	}
}
