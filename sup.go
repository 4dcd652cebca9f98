package sup

import "time"

// Transport and protocol constants
const (
	// DefaultSocketPath is the control socket used when none is configured
	DefaultSocketPath = "/tmp/sup.sock"

	// PIDFieldSize is the exact size of the PID field that prefixes every response
	PIDFieldSize = 4

	// NonePID is the wire sentinel meaning the response carries no process identifier
	NonePID uint32 = 0

	// MaxRequestSize bounds how many request bytes the server keeps from one connection.
	// Anything beyond it is read and discarded. A well-formed request is exactly one
	// byte; anything longer decodes to CommandUnknown.
	MaxRequestSize = 16

	// MaxResponseSize bounds the response a client accepts; a longer one fails with ErrDecodeFailed
	MaxResponseSize = 1 << 20

	// DefaultQueueSize is the default capacity of the accepted-connection queue
	DefaultQueueSize = 64

	// DefaultDialTimeout is the default timeout for control socket connections
	DefaultDialTimeout = 2 * time.Second

	// DefaultWriteTimeout is the default timeout for writing a request or response
	DefaultWriteTimeout = 1 * time.Second

	// DefaultReadTimeout is the default timeout for reading a request or response.
	// Commands such as stop may wait for a program to exit, so this is generous.
	DefaultReadTimeout = 30 * time.Second

	// DefaultBackoffMin is the minimum backoff duration for connect retries
	DefaultBackoffMin = 10 * time.Millisecond

	// DefaultBackoffMax is the maximum backoff duration for connect retries
	DefaultBackoffMax = 1 * time.Second

	// DefaultMaxAttempts is the default maximum number of connect attempts
	DefaultMaxAttempts = 5

	// acceptBackoffMin and acceptBackoffMax bound the pause after a failed accept
	acceptBackoffMin = 5 * time.Millisecond
	acceptBackoffMax = 1 * time.Second

	// shutdownGrace is how long Server.Run waits for its goroutines when stopping
	shutdownGrace = 2 * time.Second
)

// Op identifies the transport operation that produced an OpError
type Op int

const (
	// OpUnknown represents an unknown operation
	OpUnknown Op = iota
	// OpConnect establishes the client connection
	OpConnect
	// OpListen binds the server socket
	OpListen
	// OpAccept accepts one connection in the accept loop
	OpAccept
	// OpRead takes the next connection off the queue
	OpRead
	// OpWrite sends bytes on the held connection
	OpWrite
	// OpHalfClose signals end of outbound data
	OpHalfClose
	// OpClose releases the listener or connection
	OpClose
	// OpSend is one complete client exchange
	OpSend
)

// Op string constants
const (
	opUnknownStr   = "unknown"
	opConnectStr   = "connect"
	opListenStr    = "listen"
	opAcceptStr    = "accept"
	opReadStr      = "read"
	opWriteStr     = "write"
	opHalfCloseStr = "half-close"
	opCloseStr     = "close"
	opSendStr      = "send"
)

// String returns the string representation of an Op
func (op Op) String() string {
	switch op {
	case OpConnect:
		return opConnectStr
	case OpListen:
		return opListenStr
	case OpAccept:
		return opAcceptStr
	case OpRead:
		return opReadStr
	case OpWrite:
		return opWriteStr
	case OpHalfClose:
		return opHalfCloseStr
	case OpClose:
		return opCloseStr
	case OpSend:
		return opSendStr
	default:
		return opUnknownStr
	}
}
