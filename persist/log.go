package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IOError reports a failed log export
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("save %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// DefaultLogName returns the suggested file name for a port's log
func DefaultLogName(port string) string {
	return "uart_log_" + strings.ReplaceAll(port, "/", "_") + ".txt"
}

// WriteLog writes text to path through a temporary file in the same
// directory, so a reader never sees a half-written log
func WriteLog(path, text string) error {
	if path == "" {
		return &IOError{Path: path, Op: "validate", Err: fmt.Errorf("empty path")}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Path: path, Op: "mkdir", Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".uart_log-*.tmp")
	if err != nil {
		return &IOError{Path: path, Op: "create", Err: err}
	}
	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return &IOError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return &IOError{Path: path, Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return &IOError{Path: path, Op: "close", Err: err}
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return &IOError{Path: path, Op: "chmod", Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return &IOError{Path: path, Op: "rename", Err: err}
	}
	return nil
}
