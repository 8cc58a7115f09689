package persist

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultLogName(t *testing.T) {
	require.Equal(t, "uart_log__dev_ttyUSB0.txt", DefaultLogName("/dev/ttyUSB0"))
	require.Equal(t, "uart_log_COM3.txt", DefaultLogName("COM3"))
}

func TestWriteLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "log.txt")

	require.NoError(t, WriteLog(path, "[T] hello\nworld\n"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "[T] hello\nworld\n", string(data))

	// Overwrite leaves no temporary files behind
	require.NoError(t, WriteLog(path, "second"))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWriteLogErrors(t *testing.T) {
	err := WriteLog("", "x")
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	require.Equal(t, "validate", ioErr.Op)

	// A path whose parent is a regular file cannot be created
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err = WriteLog(filepath.Join(blocker, "log.txt"), "x")
	require.True(t, errors.As(err, &ioErr))
	require.Equal(t, "mkdir", ioErr.Op)
	require.Contains(t, err.Error(), "log.txt")
}
