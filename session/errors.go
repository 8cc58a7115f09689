package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send on a disconnected session
	ErrNotConnected = errors.New("session is not connected")

	// ErrAlreadyConnected is returned by Connect on a connected session
	ErrAlreadyConnected = errors.New("session is already connected")

	// ErrDuplicateSession is returned by Registry.Add for a known identifier
	ErrDuplicateSession = errors.New("session already registered")

	// ErrUnknownSession is returned when no session has the identifier
	ErrUnknownSession = errors.New("unknown session")

	// ErrReaderBusy means the reader of a previous connection has not exited
	ErrReaderBusy = errors.New("previous reader still running")
)

// ConnectionError reports a failure to open the transport
type ConnectionError struct {
	Device string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Device, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// WriteError reports a failed transport write. The session stays connected.
type WriteError struct {
	Device string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Device, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
