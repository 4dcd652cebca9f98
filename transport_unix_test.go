package sup

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// dialAndSend connects to path, writes p and half-closes
func dialAndSend(t *testing.T, path string, p []byte) *net.UnixConn {
	t.Helper()
	c, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Write(p)
	require.NoError(t, err)
	require.NoError(t, c.CloseWrite())
	return c
}

// serveInBackground binds tp and runs its accept loop until the test ends
func serveInBackground(t *testing.T, tp *UnixTransport) {
	t.Helper()
	require.NoError(t, tp.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tp.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("accept loop did not stop")
		}
	})
}

func readQueued(t *testing.T, tp *UnixTransport) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := tp.Read(ctx)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	return data
}

func TestTransportFIFO(t *testing.T) {
	tp := newTestTransport(t)
	serveInBackground(t, tp)

	for _, b := range []byte("ABC") {
		dialAndSend(t, tp.SocketPath, []byte{b})
	}

	require.Equal(t, []byte("A"), readQueued(t, tp))
	require.Equal(t, []byte("B"), readQueued(t, tp))
	require.Equal(t, []byte("C"), readQueued(t, tp))
}

func TestTransportBlockBackpressure(t *testing.T) {
	tp := newTestTransport(t, WithQueueSize(1), WithBackpressure(BackpressureBlock))
	serveInBackground(t, tp)

	// More clients than queue slots wait in the listen backlog and keep their order.
	for _, b := range []byte("12345") {
		dialAndSend(t, tp.SocketPath, []byte{b})
	}

	for _, b := range []byte("12345") {
		require.Equal(t, []byte{b}, readQueued(t, tp))
	}
}

func TestTransportRejectBackpressure(t *testing.T) {
	tp := newTestTransport(t, WithQueueSize(1), WithBackpressure(BackpressureReject))
	serveInBackground(t, tp)

	dialAndSend(t, tp.SocketPath, []byte("first"))
	require.Eventually(t, func() bool {
		return len(tp.queue) == 1
	}, 5*time.Second, 5*time.Millisecond)

	rejected, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: tp.SocketPath, Net: "unix"})
	require.NoError(t, err)
	defer func() { _ = rejected.Close() }()
	require.NoError(t, rejected.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = rejected.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF, "rejected connection should be closed by the server")

	require.Equal(t, []byte("first"), readQueued(t, tp))
}

func TestTransportClientExchange(t *testing.T) {
	server := newTestTransport(t)
	serveInBackground(t, server)

	client := NewUnixTransport(server.SocketPath)
	require.NoError(t, client.Connect(context.Background()))

	conn, err := client.Write(Request{Cmd: CommandStatus}.Encode())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sc, err := server.Read(ctx)
	require.NoError(t, err)

	raw, err := readToEOF(sc, MaxRequestSize, time.Second)
	require.NoError(t, err)
	require.Equal(t, CommandStatus, DecodeRequest(raw).Cmd)

	require.NoError(t, sendAndHalfClose(sc, NewResponse("up", 9).Encode(), time.Second))
	require.NoError(t, sc.Close())

	reply, err := readToEOF(conn, MaxResponseSize, time.Second)
	require.NoError(t, err)
	resp, err := DecodeResponse(reply)
	require.NoError(t, err)
	require.Equal(t, NewResponse("up", 9), resp)
}

func TestTransportStateErrors(t *testing.T) {
	server := newTestTransport(t)
	serveInBackground(t, server)
	ctx := context.Background()

	t.Run("write before connect", func(t *testing.T) {
		tp := NewUnixTransport(server.SocketPath)
		_, err := tp.Write([]byte{0})
		require.ErrorIs(t, err, ErrNotYetConnected)
	})

	t.Run("connect twice", func(t *testing.T) {
		tp := NewUnixTransport(server.SocketPath)
		require.NoError(t, tp.Connect(ctx))
		defer func() { _ = tp.Close() }()
		require.ErrorIs(t, tp.Connect(ctx), ErrAlreadyConnected)
	})

	t.Run("reuse after write", func(t *testing.T) {
		tp := NewUnixTransport(server.SocketPath)
		require.NoError(t, tp.Connect(ctx))
		conn, err := tp.Write([]byte{0})
		require.NoError(t, err)
		defer func() { _ = conn.Close() }()

		_, err = tp.Write([]byte{0})
		require.ErrorIs(t, err, ErrWrongState)
		require.ErrorIs(t, tp.Connect(ctx), ErrWrongState)
	})

	t.Run("listen while connected", func(t *testing.T) {
		tp := NewUnixTransport(server.SocketPath)
		require.NoError(t, tp.Connect(ctx))
		defer func() { _ = tp.Close() }()
		require.ErrorIs(t, tp.Listen(), ErrWrongState)
	})

	t.Run("connect while listening", func(t *testing.T) {
		require.ErrorIs(t, server.Connect(ctx), ErrWrongState)
	})

	t.Run("serve twice", func(t *testing.T) {
		require.Eventually(t, func() bool {
			server.mu.Lock()
			defer server.mu.Unlock()
			return server.serving
		}, 5*time.Second, 5*time.Millisecond)
		require.ErrorIs(t, server.Serve(ctx), ErrWrongState)
	})
}

func TestTransportReadUninitialized(t *testing.T) {
	var tp UnixTransport

	_, err := tp.Read(context.Background())
	require.ErrorIs(t, err, ErrChannelUnavailable)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, OpRead, opErr.Op)
}

func TestTransportReadAfterClose(t *testing.T) {
	tp := newTestTransport(t)
	require.NoError(t, tp.Close())

	_, err := tp.Read(context.Background())
	require.ErrorIs(t, err, ErrChannelUnavailable)
}

func TestTransportReadAfterServeStops(t *testing.T) {
	tp := newTestTransport(t)
	require.NoError(t, tp.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tp.Serve(ctx) }()

	dialAndSend(t, tp.SocketPath, []byte{1})
	require.Eventually(t, func() bool {
		return len(tp.queue) == 1
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	// Connections queued before the stop are still delivered.
	require.Equal(t, []byte{1}, readQueued(t, tp))

	_, err := tp.Read(context.Background())
	require.ErrorIs(t, err, ErrChannelUnavailable)

	_, statErr := os.Stat(tp.SocketPath)
	require.True(t, errors.Is(statErr, os.ErrNotExist), "socket file should be removed")
}

func TestTransportReadHonorsContext(t *testing.T) {
	tp := newTestTransport(t)
	serveInBackground(t, tp)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tp.Read(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransportConnectFailed(t *testing.T) {
	tp := NewUnixTransport(filepath.Join(t.TempDir(), "absent.sock"))

	err := tp.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnectFailed)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, OpConnect, opErr.Op)

	// A failed connect leaves the transport usable for another attempt.
	_, err = tp.Write([]byte{0})
	require.ErrorIs(t, err, ErrNotYetConnected)
}

func TestTransportBindFailed(t *testing.T) {
	tp := NewUnixTransport(filepath.Join(t.TempDir(), "missing", "dir", "s.sock"))

	err := tp.Listen()
	require.ErrorIs(t, err, ErrBindFailed)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, OpListen, opErr.Op)

	require.ErrorIs(t, tp.Serve(context.Background()), ErrBindFailed)
}

func TestTransportRemovesStaleSocket(t *testing.T) {
	path := shortSocketPath(t)

	stale, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)
	stale.SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())

	_, err = os.Lstat(path)
	require.NoError(t, err, "stale socket file should remain after close")

	tp := NewUnixTransport(path)
	require.NoError(t, tp.Listen())
	require.NoError(t, tp.Close())
}

func TestTransportCloseIdempotent(t *testing.T) {
	tp := newTestTransport(t)
	require.NoError(t, tp.Listen())

	require.NoError(t, tp.Close())
	require.NoError(t, tp.Close())
}

func TestBackpressureParse(t *testing.T) {
	for _, name := range []string{"", "block"} {
		b, err := ParseBackpressure(name)
		require.NoError(t, err)
		require.Equal(t, BackpressureBlock, b)
	}

	b, err := ParseBackpressure("reject")
	require.NoError(t, err)
	require.Equal(t, BackpressureReject, b)
	require.Equal(t, "reject", b.String())

	_, err = ParseBackpressure("drop")
	require.Error(t, err)
}
