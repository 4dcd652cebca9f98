package sup

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Conn is a duplex byte stream whose write direction can be shut down
// independently, leaving the read direction open for a reply.
// *net.UnixConn and *net.TCPConn satisfy it.
type Conn interface {
	io.ReadWriteCloser
	CloseWrite() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Transport carries control exchanges between supctl and supd.
//
// A transport is used either as a client (Connect, then Write once) or as a
// server (Serve in one goroutine, Read from another). Each operation is valid
// only from the state the previous one left the transport in; violations are
// reported as errors rather than silently replacing state.
type Transport interface {
	// Connect establishes the single outbound connection held by the transport
	Connect(ctx context.Context) error

	// Serve runs the accept loop until ctx is done or the transport is closed.
	// It returns early only if the socket cannot be bound.
	Serve(ctx context.Context) error

	// Read returns the next accepted connection in arrival order, waiting if none is queued
	Read(ctx context.Context) (Conn, error)

	// Write hands over the held connection: it sends p, half-closes the write
	// side and returns the connection so the caller can read the reply.
	// The transport no longer holds the connection afterwards.
	Write(p []byte) (Conn, error)

	// Close releases the listener or held connection
	Close() error
}

// Listener is implemented by transports that can bind their socket before
// serving. Server.Run calls Listen first so a bind failure is returned before
// any goroutine starts; a transport without it reports bind failures from Serve.
type Listener interface {
	Listen() error
}

// Backpressure selects what the accept loop does when the connection queue is full
type Backpressure int

const (
	// BackpressureBlock pauses accepting until the consumer drains the queue.
	// Pending clients wait in the kernel's listen backlog.
	BackpressureBlock Backpressure = iota
	// BackpressureReject closes the new connection and logs it
	BackpressureReject
)

// Backpressure string constants
const (
	backpressureBlockStr  = "block"
	backpressureRejectStr = "reject"
)

// String returns the configuration name of the policy
func (b Backpressure) String() string {
	switch b {
	case BackpressureReject:
		return backpressureRejectStr
	default:
		return backpressureBlockStr
	}
}

// ParseBackpressure maps a configuration name to a policy
func ParseBackpressure(name string) (Backpressure, error) {
	switch name {
	case "", backpressureBlockStr:
		return BackpressureBlock, nil
	case backpressureRejectStr:
		return BackpressureReject, nil
	default:
		return BackpressureBlock, fmt.Errorf("unknown backpressure policy %q", name)
	}
}

// sendAndHalfClose writes all of p to c and shuts down c's write side.
// The message ends where the stream ends, so nothing may be written after this.
func sendAndHalfClose(c Conn, p []byte, timeout time.Duration) error {
	if timeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(timeout))
	}

	if _, err := c.Write(p); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	if err := c.CloseWrite(); err != nil {
		return fmt.Errorf("%w: %w", ErrHalfCloseFailed, err)
	}
	return nil
}

// readToEOF reads from c until the peer half-closes or limit bytes have been read
func readToEOF(c Conn, limit int64, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(timeout))
	}
	return io.ReadAll(io.LimitReader(c, limit))
}

// discardToEOF reads and drops whatever the peer still sends until it
// half-closes, under the deadline already set on c. Closing a unix socket
// with unread input resets the peer, which would lose the reply.
func discardToEOF(c Conn) (int64, error) {
	return io.Copy(io.Discard, c)
}
