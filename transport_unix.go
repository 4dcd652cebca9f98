package sup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// transportState tracks which operations a UnixTransport currently accepts
type transportState int

const (
	stateIdle transportState = iota
	stateConnected
	stateListening
	stateClosed
)

// UnixTransport is a Transport over a Unix domain socket addressed by a filesystem path.
//
// On the server side a dedicated accept loop (Serve) pushes accepted
// connections onto a bounded FIFO queue and Read takes them off in arrival
// order, so the blocking accept never stalls the goroutine that services
// connections. On the client side Connect opens one connection and Write
// hands it back to the caller after sending.
type UnixTransport struct {
	// SocketPath is the filesystem path of the socket
	SocketPath string

	// DialTimeout is the timeout for establishing the client connection
	DialTimeout time.Duration

	// WriteTimeout is the timeout for sending a message
	WriteTimeout time.Duration

	// QueueSize is the capacity of the accepted-connection queue
	QueueSize int

	// Backpressure is the policy applied when the queue is full
	Backpressure Backpressure

	// Logger receives accept-loop diagnostics
	Logger zerolog.Logger

	mu       sync.Mutex
	state    transportState
	serving  bool
	conn     *net.UnixConn
	listener *net.UnixListener
	queue    chan Conn
	done     chan struct{}
}

var (
	_ Transport = (*UnixTransport)(nil)
	_ Listener  = (*UnixTransport)(nil)
)

// TransportOption configures a UnixTransport
type TransportOption func(*UnixTransport)

// WithConnectTimeout sets the timeout for establishing the client connection
func WithConnectTimeout(d time.Duration) TransportOption {
	return func(t *UnixTransport) {
		t.DialTimeout = d
	}
}

// WithSendTimeout sets the timeout for sending a message
func WithSendTimeout(d time.Duration) TransportOption {
	return func(t *UnixTransport) {
		t.WriteTimeout = d
	}
}

// WithQueueSize sets the capacity of the accepted-connection queue
func WithQueueSize(n int) TransportOption {
	return func(t *UnixTransport) {
		t.QueueSize = n
	}
}

// WithBackpressure sets the policy applied when the queue is full
func WithBackpressure(b Backpressure) TransportOption {
	return func(t *UnixTransport) {
		t.Backpressure = b
	}
}

// WithTransportLogger sets the logger used by the accept loop
func WithTransportLogger(l zerolog.Logger) TransportOption {
	return func(t *UnixTransport) {
		t.Logger = l
	}
}

// NewUnixTransport creates a transport for the socket at socketPath.
// The connection queue is allocated here; a zero UnixTransport has none and
// Read on it fails with ErrChannelUnavailable.
func NewUnixTransport(socketPath string, opts ...TransportOption) *UnixTransport {
	t := &UnixTransport{
		SocketPath:   socketPath,
		DialTimeout:  DefaultDialTimeout,
		WriteTimeout: DefaultWriteTimeout,
		QueueSize:    DefaultQueueSize,
		Backpressure: BackpressureBlock,
		Logger:       log.Logger,
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.QueueSize < 1 {
		t.QueueSize = 1
	}
	t.queue = make(chan Conn, t.QueueSize)

	return t
}

// Connect dials the socket and holds the connection for a later Write.
// Failure is reported as ErrConnectFailed so the caller can retry or give up.
func (t *UnixTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case stateIdle:
	case stateConnected:
		return &OpError{Op: OpConnect, Path: t.SocketPath, Err: ErrAlreadyConnected}
	default:
		return &OpError{Op: OpConnect, Path: t.SocketPath, Err: ErrWrongState}
	}

	d := net.Dialer{Timeout: t.DialTimeout}
	c, err := d.DialContext(ctx, "unix", t.SocketPath)
	if err != nil {
		return &OpError{Op: OpConnect, Path: t.SocketPath, Err: fmt.Errorf("%w: %w", ErrConnectFailed, err)}
	}

	t.conn = c.(*net.UnixConn)
	t.state = stateConnected
	return nil
}

// Write sends p on the held connection, half-closes it and returns it.
// The transport gives up the connection whether or not the send succeeds.
func (t *UnixTransport) Write(p []byte) (Conn, error) {
	t.mu.Lock()
	switch t.state {
	case stateConnected:
	case stateIdle:
		t.mu.Unlock()
		return nil, &OpError{Op: OpWrite, Path: t.SocketPath, Err: ErrNotYetConnected}
	default:
		t.mu.Unlock()
		return nil, &OpError{Op: OpWrite, Path: t.SocketPath, Err: ErrWrongState}
	}
	conn := t.conn
	t.conn = nil
	t.state = stateClosed
	t.mu.Unlock()

	if err := sendAndHalfClose(conn, p, t.WriteTimeout); err != nil {
		_ = conn.Close()
		op := OpWrite
		if errors.Is(err, ErrHalfCloseFailed) {
			op = OpHalfClose
		}
		return nil, &OpError{Op: op, Path: t.SocketPath, Err: err}
	}

	return conn, nil
}

// Listen removes a stale socket file left by a previous run and binds the socket.
// Serve calls it when needed; calling it first surfaces bind failures before
// any goroutine is started.
func (t *UnixTransport) Listen() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != stateIdle {
		return &OpError{Op: OpListen, Path: t.SocketPath, Err: ErrWrongState}
	}

	if _, err := os.Lstat(t.SocketPath); err == nil {
		if err := os.Remove(t.SocketPath); err != nil {
			return &OpError{Op: OpListen, Path: t.SocketPath, Err: fmt.Errorf("%w: removing stale socket: %w", ErrBindFailed, err)}
		}
	}

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: t.SocketPath, Net: "unix"})
	if err != nil {
		return &OpError{Op: OpListen, Path: t.SocketPath, Err: fmt.Errorf("%w: %w", ErrBindFailed, err)}
	}

	if t.queue == nil {
		size := t.QueueSize
		if size < 1 {
			size = DefaultQueueSize
		}
		t.queue = make(chan Conn, size)
	}

	t.listener = ln
	t.done = make(chan struct{})
	t.state = stateListening
	return nil
}

// Serve accepts connections and queues them until ctx is done or Close is
// called. A failed accept is logged and retried; only a bind failure makes
// Serve return an error. The queue is closed when Serve returns.
func (t *UnixTransport) Serve(ctx context.Context) error {
	t.mu.Lock()
	idle := t.state == stateIdle
	t.mu.Unlock()

	if idle {
		if err := t.Listen(); err != nil {
			return err
		}
	}

	t.mu.Lock()
	if t.state != stateListening || t.serving {
		t.mu.Unlock()
		return &OpError{Op: OpAccept, Path: t.SocketPath, Err: ErrWrongState}
	}
	t.serving = true
	ln, queue, done := t.listener, t.queue, t.done
	t.mu.Unlock()

	defer close(queue)

	// Unblock Accept when the context is cancelled.
	go func() {
		select {
		case <-ctx.Done():
			_ = t.Close()
		case <-done:
		}
	}()

	t.Logger.Info().Str("socket", t.SocketPath).Msg("control socket listening")

	var backoff time.Duration
	for {
		conn, err := ln.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}

			if backoff == 0 {
				backoff = acceptBackoffMin
			} else {
				backoff *= 2
			}
			if backoff > acceptBackoffMax {
				backoff = acceptBackoffMax
			}
			t.Logger.Error().Err(err).Str("socket", t.SocketPath).Dur("retry_in", backoff).Msg("accept failed")

			select {
			case <-done:
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		if !t.enqueue(queue, done, conn) {
			return nil
		}
	}
}

// enqueue hands conn to the consumer, applying the backpressure policy when
// the queue is full. It returns false if the transport closed while waiting.
func (t *UnixTransport) enqueue(queue chan<- Conn, done <-chan struct{}, conn *net.UnixConn) bool {
	select {
	case queue <- conn:
		return true
	default:
	}

	if t.Backpressure == BackpressureReject {
		t.Logger.Warn().Str("socket", t.SocketPath).Int("queue_size", cap(queue)).Msg("connection queue full, rejecting connection")
		_ = conn.Close()
		return true
	}

	t.Logger.Debug().Str("socket", t.SocketPath).Int("queue_size", cap(queue)).Msg("connection queue full, pausing accept")
	select {
	case queue <- conn:
		return true
	case <-done:
		_ = conn.Close()
		return false
	}
}

// Read returns the next queued connection. It fails with ErrChannelUnavailable
// if the transport has no queue or the accept loop has stopped and the queue is drained.
func (t *UnixTransport) Read(ctx context.Context) (Conn, error) {
	t.mu.Lock()
	queue := t.queue
	t.mu.Unlock()

	if queue == nil {
		return nil, &OpError{Op: OpRead, Path: t.SocketPath, Err: fmt.Errorf("%w: used before initialization", ErrChannelUnavailable)}
	}

	select {
	case conn, ok := <-queue:
		if !ok {
			return nil, &OpError{Op: OpRead, Path: t.SocketPath, Err: fmt.Errorf("%w: accept loop stopped", ErrChannelUnavailable)}
		}
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the accept loop and removes the socket file, or closes a held
// client connection. It is safe to call more than once.
func (t *UnixTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	switch t.state {
	case stateListening:
		close(t.done)
		err = t.listener.Close()
		if !t.serving {
			close(t.queue)
		}
	case stateConnected:
		err = t.conn.Close()
		t.conn = nil
	case stateIdle:
		if t.queue != nil {
			close(t.queue)
		}
	}
	t.state = stateClosed

	if err != nil {
		return &OpError{Op: OpClose, Path: t.SocketPath, Err: err}
	}
	return nil
}
