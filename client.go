package sup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Client sends control commands to a supd daemon over its control socket.
// Each command uses a fresh connection: one request, one response.
type Client struct {
	// SocketPath is the canonical path to the daemon's control socket
	SocketPath string

	// DialTimeout is the timeout for establishing control socket connections
	DialTimeout time.Duration

	// WriteTimeout is the timeout for writing the request
	WriteTimeout time.Duration

	// ReadTimeout is the timeout for reading the response
	ReadTimeout time.Duration

	// BackoffMin is the minimum duration between connect attempts
	BackoffMin time.Duration

	// BackoffMax is the maximum duration between connect attempts
	BackoffMax time.Duration

	// MaxAttempts is the maximum number of connect attempts
	MaxAttempts int
}

// Option configures a Client
type Option func(*Client)

// WithDialTimeout sets the timeout for control socket connections
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.DialTimeout = d
	}
}

// WithWriteTimeout sets the timeout for writing the request
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.WriteTimeout = d
	}
}

// WithReadTimeout sets the timeout for reading the response
func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.ReadTimeout = d
	}
}

// WithBackoff sets the minimum and maximum backoff durations for connect retries
func WithBackoff(minBackoff, maxBackoff time.Duration) Option {
	return func(c *Client) {
		c.BackoffMin = minBackoff
		c.BackoffMax = maxBackoff
	}
}

// WithMaxAttempts sets the maximum number of connect attempts
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		c.MaxAttempts = n
	}
}

// NewClient creates a Client for the daemon listening at socketPath
func NewClient(socketPath string, opts ...Option) (*Client, error) {
	if socketPath == "" {
		return nil, errors.New("sup: empty socket path")
	}

	absPath, err := filepath.Abs(socketPath)
	if err != nil {
		return nil, fmt.Errorf("resolving socket path: %w", err)
	}

	c := &Client{
		SocketPath:   absPath,
		DialTimeout:  DefaultDialTimeout,
		WriteTimeout: DefaultWriteTimeout,
		ReadTimeout:  DefaultReadTimeout,
		BackoffMin:   DefaultBackoffMin,
		BackoffMax:   DefaultBackoffMax,
		MaxAttempts:  DefaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}

	return c, nil
}

// connect opens a transport, retrying connect failures with exponential backoff
func (c *Client) connect(ctx context.Context) (*UnixTransport, error) {
	var lastErr error
	backoff := c.BackoffMin

	for attempt := 0; attempt < c.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}

			backoff *= 2
			if backoff > c.BackoffMax {
				backoff = c.BackoffMax
			}
		}

		tp := NewUnixTransport(c.SocketPath,
			WithConnectTimeout(c.DialTimeout),
			WithSendTimeout(c.WriteTimeout),
			WithQueueSize(1),
		)
		err := tp.Connect(ctx)
		if err == nil {
			return tp, nil
		}
		if !errors.Is(err, ErrConnectFailed) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// SendRaw writes arbitrary request bytes and decodes the daemon's response.
// Send should be preferred; SendRaw lets callers exercise the wire format directly.
func (c *Client) SendRaw(ctx context.Context, payload []byte) (Response, error) {
	tp, err := c.connect(ctx)
	if err != nil {
		return Response{}, err
	}

	conn, err := tp.Write(payload)
	if err != nil {
		return Response{}, err
	}
	defer func() { _ = conn.Close() }()

	raw, err := readToEOF(conn, MaxResponseSize+1, c.ReadTimeout)
	if err != nil {
		return Response{}, &OpError{Op: OpSend, Path: c.SocketPath, Err: err}
	}
	if len(raw) > MaxResponseSize {
		return Response{}, &OpError{
			Op:   OpSend,
			Path: c.SocketPath,
			Err:  fmt.Errorf("%w: response too large (over %d bytes)", ErrDecodeFailed, MaxResponseSize),
		}
	}

	resp, err := DecodeResponse(raw)
	if err != nil {
		return Response{}, &OpError{Op: OpSend, Path: c.SocketPath, Err: err}
	}
	return resp, nil
}

// Send performs one request/response exchange for cmd
func (c *Client) Send(ctx context.Context, cmd Command) (Response, error) {
	return c.SendRaw(ctx, Request{Cmd: cmd}.Encode())
}

// Start asks the daemon to start the program
func (c *Client) Start(ctx context.Context) (Response, error) {
	return c.Send(ctx, CommandStart)
}

// Stop asks the daemon to stop the program
func (c *Client) Stop(ctx context.Context) (Response, error) {
	return c.Send(ctx, CommandStop)
}

// Restart asks the daemon to stop and start the program
func (c *Client) Restart(ctx context.Context) (Response, error) {
	return c.Send(ctx, CommandRestart)
}

// Kill asks the daemon to kill the program and its children
func (c *Client) Kill(ctx context.Context) (Response, error) {
	return c.Send(ctx, CommandKill)
}

// Reload asks the daemon to reload the program configuration
func (c *Client) Reload(ctx context.Context) (Response, error) {
	return c.Send(ctx, CommandReload)
}

// Status asks the daemon for the program status
func (c *Client) Status(ctx context.Context) (Response, error) {
	return c.Send(ctx, CommandStatus)
}

// Exit asks the daemon to terminate
func (c *Client) Exit(ctx context.Context) (Response, error) {
	return c.Send(ctx, CommandExit)
}
