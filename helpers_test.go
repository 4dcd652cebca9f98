package sup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// shortSocketPath returns a socket path short enough for sun_path.
// t.TempDir embeds the test name and can exceed the 104 byte limit on darwin.
func shortSocketPath(t testing.TB) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "sup")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

// echoHandler answers every named command with its name and pid
func echoHandler(pid uint32) Handler {
	return RejectUnknown(HandlerFunc(func(_ context.Context, req Request) Response {
		return NewResponse(req.Cmd.String(), pid)
	}))
}

// newTestTransport creates a quiet transport on a fresh socket path
func newTestTransport(t testing.TB, opts ...TransportOption) *UnixTransport {
	t.Helper()
	opts = append([]TransportOption{WithTransportLogger(zerolog.Nop())}, opts...)
	return NewUnixTransport(shortSocketPath(t), opts...)
}

// startTestServer runs a Server for h until the test ends and returns its socket path
func startTestServer(t testing.TB, h Handler, opts ...TransportOption) string {
	t.Helper()

	tp := newTestTransport(t, opts...)
	srv := NewServer(tp, h, WithServerLogger(zerolog.Nop()), WithRequestTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(tp.SocketPath)
		return err == nil
	}, 5*time.Second, 5*time.Millisecond, "server socket never appeared")

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	return tp.SocketPath
}

// newTestClient creates a client with short retry settings
func newTestClient(t testing.TB, socketPath string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithBackoff(5*time.Millisecond, 20*time.Millisecond),
		WithMaxAttempts(3),
		WithReadTimeout(5 * time.Second),
	}, opts...)
	c, err := NewClient(socketPath, opts...)
	require.NoError(t, err)
	return c
}
