package serial

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tarm "github.com/tarm/serial"
	bugst "go.bug.st/serial"
)

func TestValidBaud(t *testing.T) {
	for _, rate := range BaudRates {
		require.True(t, ValidBaud(rate), "rate %d", rate)
	}
	for _, rate := range []int{0, -9600, 110, 14400, 128000, 1000000} {
		require.False(t, ValidBaud(rate), "rate %d", rate)
	}
	require.True(t, ValidBaud(DefaultBaudRate))
}

func TestCheckBaud(t *testing.T) {
	require.NoError(t, CheckBaud(9600))

	err := CheckBaud(12345)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidBaud))
	require.Contains(t, err.Error(), "12345")
}

func TestPortConfigDefaults(t *testing.T) {
	cfg := PortConfig{Device: "/dev/ttyUSB0", BaudRate: 9600, Parity: "EVEN"}.withDefaults()

	require.Equal(t, 8, cfg.DataBits)
	require.Equal(t, 1, cfg.StopBits)
	require.Equal(t, "even", cfg.Parity)
	require.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
	require.Equal(t, BackendBugst, cfg.Backend)
}

func TestOpenRejectsInvalidBaud(t *testing.T) {
	_, err := Open(PortConfig{Device: "/dev/null", BaudRate: 1})
	require.ErrorIs(t, err, ErrInvalidBaud)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open(PortConfig{Device: "/dev/null", BaudRate: 9600, Backend: "bogus"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown serial backend")
}

func TestOpenFailureReturnsNilSource(t *testing.T) {
	for _, backend := range []string{BackendBugst, BackendTarm} {
		src, err := Open(PortConfig{Device: "/dev/does-not-exist-uart", BaudRate: 9600, Backend: backend})
		require.Error(t, err, backend)
		// require.Nil would accept a typed nil pointer inside the interface
		require.True(t, src == nil, "%s returned %#v", backend, src)
	}
}

func TestConvertParity(t *testing.T) {
	require.Equal(t, tarm.ParityOdd, tarmParity("odd"))
	require.Equal(t, tarm.ParityNone, tarmParity(""))
	require.Equal(t, tarm.Stop2, tarmStopBits(2))
	require.Equal(t, bugst.MarkParity, convertParity("mark"))
	require.Equal(t, bugst.NoParity, convertParity("bogus"))
	require.Equal(t, bugst.OneStopBit, convertStopBits(3))
}

func TestSourceWithStats(t *testing.T) {
	mock := NewMockPort("/dev/mock0")
	mock.QueueRead([]byte("hello"))
	src := NewSourceWithStats(mock)

	buf := make([]byte, 16)
	n, err := src.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	_, err = src.Write([]byte("PING\r\n"))
	require.NoError(t, err)

	mock.SetWriteError(errors.New("boom"))
	_, err = src.Write([]byte("x"))
	require.Error(t, err)

	st := src.Stats()
	require.Equal(t, int64(5), st.BytesReceived)
	require.Equal(t, int64(6), st.BytesSent)
	require.Equal(t, int64(1), st.Reads)
	require.Equal(t, int64(1), st.Errors)
	require.False(t, st.LastReadTime.IsZero())
	require.Equal(t, "/dev/mock0", src.Device())
}

func TestMockPortReadSemantics(t *testing.T) {
	mock := NewMockPort("/dev/mock0")
	buf := make([]byte, 4)

	// Empty queue behaves like a timeout
	start := time.Now()
	n, err := mock.Read(buf)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Less(t, time.Since(start), time.Second)

	// Chunks larger than the buffer are split across reads
	mock.QueueRead([]byte("abcdef"))
	n, err = mock.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "abcd", string(buf[:n]))
	n, err = mock.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ef", string(buf[:n]))

	readErr := errors.New("device gone")
	mock.SetReadError(readErr)
	_, err = mock.Read(buf)
	require.ErrorIs(t, err, readErr)

	require.NoError(t, mock.Close())
	require.NoError(t, mock.Close())
	_, err = mock.Read(buf)
	require.ErrorIs(t, err, ErrPortClosed)
	_, err = mock.Write([]byte("x"))
	require.ErrorIs(t, err, ErrPortClosed)
	require.Equal(t, 2, mock.CloseCount())
}

func TestMockOpener(t *testing.T) {
	opener := NewMockOpener()
	port := opener.Port("/dev/ttyUSB0")
	port.QueueRead([]byte("x"))

	src, err := opener.Open(PortConfig{Device: "/dev/ttyUSB0", BaudRate: 9600})
	require.NoError(t, err)
	require.Same(t, port, src)
	require.Equal(t, 1, port.Pending())

	opener.SetOpenError(errors.New("permission denied"))
	_, err = opener.Open(PortConfig{Device: "/dev/ttyUSB1", BaudRate: 9600})
	require.Error(t, err)

	configs := opener.Configs()
	require.Len(t, configs, 2)
	require.Equal(t, 9600, configs[0].BaudRate)
}
