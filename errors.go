package sup

import (
	"errors"
	"fmt"
)

// Common errors returned by sup operations
var (
	// ErrNotYetConnected indicates Write was called before Connect
	ErrNotYetConnected = errors.New("sup: not yet connected")

	// ErrAlreadyConnected indicates Connect was called on a transport that already holds a connection
	ErrAlreadyConnected = errors.New("sup: already connected")

	// ErrWrongState indicates an operation is not valid in the transport's current state
	ErrWrongState = errors.New("sup: operation not valid in current state")

	// ErrConnectFailed indicates the control socket could not be reached
	ErrConnectFailed = errors.New("sup: connect failed")

	// ErrBindFailed indicates the control socket could not be bound
	ErrBindFailed = errors.New("sup: bind failed")

	// ErrChannelUnavailable indicates the connection queue was never initialized
	// or its producer has stopped
	ErrChannelUnavailable = errors.New("sup: connection queue unavailable")

	// ErrSendFailed indicates an I/O failure while writing
	ErrSendFailed = errors.New("sup: send failed")

	// ErrHalfCloseFailed indicates the write side of a connection could not be shut down
	ErrHalfCloseFailed = errors.New("sup: half-close failed")

	// ErrDecodeFailed indicates response bytes could not be decoded
	ErrDecodeFailed = errors.New("sup: decode failed")

	// ErrUnknownCommand is reported to clients that send an unrecognized command
	ErrUnknownCommand = errors.New("sup: unknown command")
)

// OpError represents an error from a transport operation
type OpError struct {
	// Op is the operation that failed
	Op Op
	// Path is the socket path involved in the operation
	Path string
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *OpError) Error() string {
	return fmt.Sprintf("sup %s %q: %v", e.Op.String(), e.Path, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *OpError) Unwrap() error {
	return e.Err
}

// MultiError aggregates multiple errors from bulk operations
type MultiError struct {
	// Errors contains all accumulated errors
	Errors []error
}

// Error returns a summary of the accumulated errors
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred", len(m.Errors))
}

// Unwrap exposes the accumulated errors to errors.Is and errors.As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add appends an error to the collection if it's not nil
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Err returns nil if no errors occurred, otherwise returns the MultiError itself
func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}
